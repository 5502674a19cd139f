// Package geo runs generated SQL against PostGIS and returns the result as a
// GeoJSON FeatureCollection.
package geo

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// WrapQuery embeds sql verbatim as a CTE and aggregates its rows into one
// FeatureCollection document. Every column except geom becomes a property.
// The inner statement sits on its own lines so a trailing line comment in it
// cannot swallow the closing parenthesis.
func WrapQuery(sql string) string {
	return `WITH analysis_result AS (
` + sql + `
)
SELECT json_build_object(
    'type', 'FeatureCollection',
    'features', COALESCE(json_agg(json_build_object(
        'type', 'Feature',
        'geometry', ST_AsGeoJSON(geom)::json,
        'properties', to_jsonb(analysis_result) - 'geom'
    )), '[]'::json)
)
FROM analysis_result
WHERE geom IS NOT NULL`
}

var (
	errEmptyQuery         = errors.New("query is required")
	errNotSelectQuery     = errors.New("only SELECT / WITH queries are allowed")
	errMultipleStatements = errors.New("only a single statement is allowed")

	stringLiteral  = regexp.MustCompile(`'(?:[^']|'')*'`)
	quotedIdent    = regexp.MustCompile(`"(?:[^"]|"")*"`)
	lineComment    = regexp.MustCompile(`--[^\n]*`)
	blockComment   = regexp.MustCompile(`(?s)/\*.*?\*/`)
	modifyingWords = regexp.MustCompile(`(?i)\b(insert|update|delete|merge|drop|alter|truncate|create|grant|revoke|copy|vacuum|call)\b`)
)

// CheckStatement accepts a single read-only SELECT or WITH statement. It is a
// keyword screen, not a parser: literals, quoted identifiers and comments are
// blanked before the checks run.
func CheckStatement(sql string) error {
	s := blockComment.ReplaceAllString(sql, " ")
	s = stringLiteral.ReplaceAllString(s, "''")
	s = quotedIdent.ReplaceAllString(s, `""`)
	s = lineComment.ReplaceAllString(s, " ")
	s = strings.TrimRight(strings.TrimSpace(s), "; \t\r\n")

	if s == "" {
		return errEmptyQuery
	}
	// Parenthesized set operations: (SELECT ...) UNION ALL (SELECT ...)
	lower := strings.ToLower(strings.TrimLeft(s, "( \t\r\n"))
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return errNotSelectQuery
	}
	if strings.Contains(s, ";") {
		return errMultipleStatements
	}
	if kw := modifyingWords.FindString(s); kw != "" {
		return fmt.Errorf("statement contains %q, only read queries are allowed", strings.ToUpper(kw))
	}
	return nil
}
