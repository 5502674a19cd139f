package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(columnsQuery).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "udt_name", "nullable", "is_pk"}).
			AddRow("buildings", "id", "int4", false, true).
			AddRow("buildings", "address", "text", true, false).
			AddRow("buildings", "build_year", "int4", true, false).
			AddRow("buildings", "geom", "geometry", true, false).
			AddRow("spatial_ref_sys", "srid", "int4", false, true).
			AddRow("subway_stations", "id", "int4", false, true).
			AddRow("subway_stations", "geom", "geometry", true, false),
	)
	mock.ExpectQuery(geometryQuery).WillReturnRows(
		sqlmock.NewRows([]string{"f_table_name", "f_geometry_column", "type", "srid"}).
			AddRow("buildings", "geom", "POINT", 4326).
			AddRow("subway_stations", "geom", "POINT", 4326),
	)
	mock.ExpectQuery(estimatesQuery).WillReturnRows(
		sqlmock.NewRows([]string{"relname", "reltuples"}).
			AddRow("buildings", 10).
			AddRow("subway_stations", -1),
	)

	c := NewCache()
	require.NoError(t, c.Load(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())

	tables := c.Tables()
	require.Len(t, tables, 2)
	assert.Equal(t, 2, c.Count())
	assert.False(t, c.Refreshed().IsZero())

	b := tables[0]
	assert.Equal(t, "buildings", b.Name)
	assert.Equal(t, int64(10), b.RowEstimate)
	assert.True(t, b.HasGeometry())
	assert.True(t, b.Columns[0].IsPK)
	assert.Equal(t, "POINT", b.Columns[3].GeometryType)
	assert.Equal(t, 4326, b.Columns[3].SRID)
	assert.Equal(t, int64(0), tables[1].RowEstimate)

	text := c.Text()
	assert.Contains(t, text, "TABLE buildings (~10 rows)")
	assert.Contains(t, text, "  - id: int4, PK, NOT NULL")
	assert.Contains(t, text, "  - geom: geometry(POINT, 4326), spatial")
	assert.Contains(t, text, "TABLE subway_stations\n")
	assert.NotContains(t, text, "spatial_ref_sys")
	assert.NotContains(t, text, "no geometry")
}

func TestLoadWithoutPostGIS(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(columnsQuery).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "udt_name", "nullable", "is_pk"}).
			AddRow("notes", "body", "text", true, false),
	)
	mock.ExpectQuery(geometryQuery).WillReturnError(errors.New(`relation "geometry_columns" does not exist`))
	mock.ExpectQuery(estimatesQuery).WillReturnError(errors.New("permission denied"))

	c := NewCache()
	require.NoError(t, c.Load(context.Background(), db))

	tables := c.Tables()
	require.Len(t, tables, 1)
	assert.False(t, tables[0].HasGeometry())
	assert.Contains(t, c.Text(), "TABLE notes [no geometry, join only]\n")
}

func TestLoadFailureKeepsPreviousSchema(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	c := NewCache()
	c.tables = []Table{{Name: "buildings"}}

	mock.ExpectQuery(columnsQuery).WillReturnError(errors.New("connection refused"))
	assert.ErrorContains(t, c.Load(context.Background(), db), "connection refused")
	assert.Equal(t, 1, c.Count())
}

func TestEmptyCacheText(t *testing.T) {
	assert.Empty(t, NewCache().Text())
}
