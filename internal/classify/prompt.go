package classify

import (
	"fmt"
	"strings"
)

// DefaultSchema describes the sample PostGIS database loaded by `geoquery seed`.
const DefaultSchema = `[DATABASE SCHEMA]
1. buildings
   - id (INT, primary key)
   - address (TEXT): street address, e.g. 'Nokbeon-dong 11-1'
   - build_year (INT): year of construction, e.g. 1990
   - geom (GEOMETRY(Point, 4326)): location, EPSG:4326, units are degrees

2. subway_stations
   - id (INT, primary key)
   - station_name (TEXT): station name, e.g. 'Nokbeon Station'
   - geom (GEOMETRY(Point, 4326)): location, EPSG:4326, units are degrees

[POSTGIS FUNCTIONS]
* Every distance in meters must be computed on the geography type.
* Within distance: ST_DWithin(geom::geography, (SELECT geom FROM ...)::geography, 500)
* Buffer area: ST_Buffer(geom::geography, 50)::geometry (cast the result back to geometry)`

// BuildClassifierPrompt constructs the instruction document for three-way
// classification: SPATIAL_QUERY, CLIENT_COMMAND or GENERAL_ANSWER.
func BuildClassifierPrompt(schema string) string {
	return fmt.Sprintf(`You are a GIS expert and a general purpose assistant for a web map.
Classify the user's message into exactly one of three intents using the database schema below, and answer with a single JSON object.

RULES:
1. SPATIAL_QUERY: questions that must be shown on the map ("find buildings", "around Nokbeon Station", "within 500 meters").
   - Generate exactly one PostgreSQL/PostGIS SELECT statement.
   - Select every column of the source table (SELECT * ...) so the map popup can show all attributes.
   - Always include a data_type column used for styling, e.g. SELECT *, 'building' AS data_type FROM buildings ...
   - For thematic maps ("by decade") put the class label in data_type instead,
     e.g. SELECT *, CASE WHEN build_year < 1990 THEN 'before 1990' ELSE '1990 or later' END AS data_type FROM buildings
   - A geom column is mandatory (already in *, or aliased AS geom). Do not call ST_AsGeoJSON; the server does that.
   - For buffers: SELECT ST_Buffer(...)::geometry AS geom, 'search_area' AS data_type ...
   - For combined requests ("draw A and find B") join the parts with UNION ALL and make the column count and order identical in every branch.
     buildings column order is: id, address, build_year, geom, data_type
     e.g. SELECT *, 'building' AS data_type FROM buildings WHERE NOT ST_DWithin(geom::geography, (SELECT geom FROM subway_stations WHERE station_name = 'Nokbeon Station')::geography, 250)
          UNION ALL
          SELECT id, station_name AS address, NULL::integer AS build_year, ST_Buffer((SELECT geom FROM subway_stations WHERE station_name = 'Nokbeon Station')::geography, 250)::geometry AS geom, 'search_area' AS data_type FROM subway_stations WHERE station_name = 'Nokbeon Station'
   - Search addresses and names with LIKE and %%, e.g. address LIKE 'Nokbeon-dong%%'.
   - Compute ages with extract(year from now()), e.g. build_year < (extract(year from now()) - 30).
   - Format: {"type": "SPATIAL_QUERY", "content": "SELECT ..."}

2. CLIENT_COMMAND: requests to move or restyle the map itself, not to query data.
   - content must be exactly one of: %s
   - Format: {"type": "CLIENT_COMMAND", "content": "ZOOM_IN"}

3. GENERAL_ANSWER: anything unrelated to SQL ("what data do you have?", "what is PostGIS?", "hello").
   - Do not generate SQL. Write a short, friendly text answer.
   - Format: {"type": "GENERAL_ANSWER", "content": "I have building and subway station data."}

4. Respond with ONE JSON object only. No explanations, no markdown code fences.
5. If the intent is ambiguous, respond {"type": "GENERAL_ANSWER", "content": "%s"}.
6. Never return an empty string or null.

%s`, strings.Join(CommandTokens(), ", "), NotUnderstoodText, schema)
}

// BuildSQLPrompt constructs the instruction document for SQL-only mode, where
// every message is treated as a spatial query.
func BuildSQLPrompt(schema string) string {
	return fmt.Sprintf(`You are a PostGIS database expert.
Given the user's natural language question and the database schema below, write exactly one SQL query that PostGIS can execute.

RULES:
1. The SELECT list must include the geom column so the result can be converted to GeoJSON.
2. Do not call GeoJSON conversion functions such as ST_AsGeoJSON; the server does that.
3. Respond with the SQL query only. No explanations, no greetings.
4. If a table or column name is not in the schema, use the closest one.
5. Search addresses with LIKE and %%, e.g. address LIKE 'Nokbeon-dong%%'.
6. Compute ages with extract(year from now()), e.g. build_year < (extract(year from now()) - 30).

%s

EXAMPLES:

User: "buildings in Nokbeon-dong older than 30 years"
SELECT geom, id, address, build_year FROM buildings WHERE address LIKE 'Nokbeon-dong%%' AND build_year < (extract(year from now()) - 30)

User: "buildings within 500 meters of Nokbeon Station"
SELECT b.geom, b.id, b.address, s.station_name FROM buildings b JOIN subway_stations s ON ST_DWithin(b.geom::geography, s.geom::geography, 500) WHERE s.station_name = 'Nokbeon Station'`, schema)
}

// ComposeSchema joins the static schema document with the live introspection
// text, skipping empty parts.
func ComposeSchema(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n")
}
