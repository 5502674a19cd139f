// Package seed loads the sample Nokbeon-dong dataset into a PostGIS database.
package seed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Building is one row of the buildings table.
type Building struct {
	Address   string
	BuildYear int
	Lon, Lat  float64
}

// Station is one row of the subway_stations table.
type Station struct {
	Name     string
	Lon, Lat float64
}

// Buildings around Nokbeon Station: two older than 30 years and one new.
var Buildings = []Building{
	{Address: "Nokbeon-dong 11-1", BuildYear: 1990, Lon: 126.9377, Lat: 37.5991},
	{Address: "Nokbeon-dong 11-2", BuildYear: 1985, Lon: 126.9378, Lat: 37.5992},
	{Address: "Nokbeon-dong 12-1", BuildYear: 2020, Lon: 126.9385, Lat: 37.5995},
}

var Stations = []Station{
	{Name: "Nokbeon Station", Lon: 126.9380, Lat: 37.6000},
}

var schemaStatements = []string{
	"CREATE EXTENSION IF NOT EXISTS postgis",
	"DROP TABLE IF EXISTS buildings",
	"CREATE TABLE buildings (id SERIAL PRIMARY KEY, address TEXT, build_year INT, geom GEOMETRY(Point, 4326))",
	"DROP TABLE IF EXISTS subway_stations",
	"CREATE TABLE subway_stations (id SERIAL PRIMARY KEY, station_name TEXT, geom GEOMETRY(Point, 4326))",
}

var indexStatements = []string{
	"CREATE INDEX IF NOT EXISTS buildings_geom_idx ON buildings USING GIST (geom)",
	"CREATE INDEX IF NOT EXISTS subway_stations_geom_idx ON subway_stations USING GIST (geom)",
}

const (
	insertBuilding = "INSERT INTO buildings (address, build_year, geom) VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326))"
	insertStation  = "INSERT INTO subway_stations (station_name, geom) VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326))"
)

// Execer is satisfied by pgx.Tx and *pgx.Conn.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Load connects with dsn and recreates the sample tables in one transaction.
func Load(ctx context.Context, dsn string, logger *zap.Logger) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		return Apply(ctx, tx, logger)
	})
}

// Apply runs the schema, data and index statements on ex.
func Apply(ctx context.Context, ex Execer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("seed")

	for _, stmt := range schemaStatements {
		if _, err := ex.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
		logger.Debug("executed", zap.String("sql", stmt))
	}

	for _, b := range Buildings {
		if _, err := ex.Exec(ctx, insertBuilding, b.Address, b.BuildYear, b.Lon, b.Lat); err != nil {
			return fmt.Errorf("insert building %s: %w", b.Address, err)
		}
	}
	for _, s := range Stations {
		if _, err := ex.Exec(ctx, insertStation, s.Name, s.Lon, s.Lat); err != nil {
			return fmt.Errorf("insert station %s: %w", s.Name, err)
		}
	}

	for _, stmt := range indexStatements {
		if _, err := ex.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}

	logger.Info("sample data loaded",
		zap.Int("buildings", len(Buildings)),
		zap.Int("stations", len(Stations)),
	)
	return nil
}
