// Package schema introspects the PostGIS database so the live table layout
// can be shown to clients and appended to the model instructions.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Querier is the subset of *sql.DB used for introspection.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Cache holds the last introspected schema.
type Cache struct {
	mu        sync.RWMutex
	tables    []Table
	refreshed time.Time
}

// Table is one base table in the public schema.
type Table struct {
	Name        string   `json:"name"`
	Columns     []Column `json:"columns"`
	RowEstimate int64    `json:"rowEstimate"`
}

// Column is one table column. GeometryType and SRID are set for PostGIS
// geometry and geography columns.
type Column struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Nullable     bool   `json:"nullable"`
	IsPK         bool   `json:"isPk"`
	GeometryType string `json:"geometryType,omitempty"`
	SRID         int    `json:"srid,omitempty"`
}

// IsSpatial reports whether the column holds PostGIS values.
func (c Column) IsSpatial() bool {
	return c.Type == "geometry" || c.Type == "geography"
}

// HasGeometry reports whether the table can be drawn on a map.
func (t Table) HasGeometry() bool {
	for _, c := range t.Columns {
		if c.IsSpatial() {
			return true
		}
	}
	return false
}

// PostGIS bookkeeping tables are never offered to the model.
var systemTables = map[string]bool{
	"spatial_ref_sys":   true,
	"geometry_columns":  true,
	"geography_columns": true,
}

func NewCache() *Cache {
	return &Cache{}
}

// Load replaces the cached schema with a fresh introspection.
func (c *Cache) Load(ctx context.Context, db Querier) error {
	tables, err := loadTables(ctx, db)
	if err != nil {
		return fmt.Errorf("load tables: %w", err)
	}

	c.mu.Lock()
	c.tables = tables
	c.refreshed = time.Now()
	c.mu.Unlock()
	return nil
}

// Tables returns a copy of the cached tables.
func (c *Cache) Tables() []Table {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Table, len(c.tables))
	copy(out, c.tables)
	return out
}

func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}

func (c *Cache) Refreshed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshed
}

// Text renders the schema for the model. An empty cache renders as "".
func (c *Cache) Text() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.tables) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("[LIVE DATABASE TABLES]\n")
	for _, t := range c.tables {
		writeTable(&sb, t)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeTable(sb *strings.Builder, t Table) {
	fmt.Fprintf(sb, "TABLE %s", t.Name)
	if t.RowEstimate > 0 {
		fmt.Fprintf(sb, " (~%d rows)", t.RowEstimate)
	}
	if !t.HasGeometry() {
		sb.WriteString(" [no geometry, join only]")
	}
	sb.WriteString("\n")

	for _, col := range t.Columns {
		typ := col.Type
		if col.IsSpatial() && col.GeometryType != "" {
			typ = fmt.Sprintf("%s(%s, %d)", col.Type, col.GeometryType, col.SRID)
		}
		fmt.Fprintf(sb, "  - %s: %s", col.Name, typ)

		var attrs []string
		if col.IsPK {
			attrs = append(attrs, "PK")
		}
		if !col.Nullable {
			attrs = append(attrs, "NOT NULL")
		}
		if col.IsSpatial() {
			attrs = append(attrs, "spatial")
		}
		if len(attrs) > 0 {
			sb.WriteString(", " + strings.Join(attrs, ", "))
		}
		sb.WriteString("\n")
	}
}

const columnsQuery = `
	SELECT
		c.table_name,
		c.column_name,
		c.udt_name,
		c.is_nullable = 'YES' AS nullable,
		EXISTS (
			SELECT 1
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = c.table_schema
			  AND tc.table_name = c.table_name
			  AND kcu.column_name = c.column_name
		) AS is_pk
	FROM information_schema.columns c
	JOIN information_schema.tables t
		ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE c.table_schema = 'public'
	  AND t.table_type = 'BASE TABLE'
	ORDER BY c.table_name, c.ordinal_position`

const geometryQuery = `
	SELECT f_table_name, f_geometry_column, type, srid
	FROM geometry_columns
	WHERE f_table_schema = 'public'`

const estimatesQuery = `
	SELECT relname, reltuples::bigint
	FROM pg_class
	WHERE relnamespace = 'public'::regnamespace
	  AND relkind = 'r'`

func loadTables(ctx context.Context, db Querier) ([]Table, error) {
	columns, order, err := getColumns(ctx, db)
	if err != nil {
		return nil, err
	}

	// Both lookups need PostGIS or catalog access; the schema is still
	// usable without them.
	geoms, err := getGeometryColumns(ctx, db)
	if err != nil {
		geoms = map[string]Column{}
	}
	estimates, err := getRowEstimates(ctx, db)
	if err != nil {
		estimates = map[string]int64{}
	}

	tables := make([]Table, 0, len(order))
	for _, name := range order {
		t := Table{Name: name, Columns: columns[name], RowEstimate: estimates[name]}
		for i, col := range t.Columns {
			if g, ok := geoms[name+"."+col.Name]; ok {
				t.Columns[i].GeometryType = g.GeometryType
				t.Columns[i].SRID = g.SRID
			}
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func getColumns(ctx context.Context, db Querier) (map[string][]Column, []string, error) {
	rows, err := db.QueryContext(ctx, columnsQuery)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns := make(map[string][]Column)
	var order []string
	for rows.Next() {
		var table string
		var col Column
		if err := rows.Scan(&table, &col.Name, &col.Type, &col.Nullable, &col.IsPK); err != nil {
			return nil, nil, err
		}
		if systemTables[table] {
			continue
		}
		if _, seen := columns[table]; !seen {
			order = append(order, table)
		}
		columns[table] = append(columns[table], col)
	}
	return columns, order, rows.Err()
}

func getGeometryColumns(ctx context.Context, db Querier) (map[string]Column, error) {
	rows, err := db.QueryContext(ctx, geometryQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Column)
	for rows.Next() {
		var table, column string
		var col Column
		if err := rows.Scan(&table, &column, &col.GeometryType, &col.SRID); err != nil {
			return nil, err
		}
		out[table+"."+column] = col
	}
	return out, rows.Err()
}

func getRowEstimates(ctx context.Context, db Querier) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, estimatesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	estimates := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		if count < 0 {
			count = 0
		}
		estimates[name] = count
	}
	return estimates, rows.Err()
}
