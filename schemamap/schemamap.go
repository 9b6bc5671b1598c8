// Package schemamap implements the public <-> SQLUser schema name
// mapping as two pure functions (spec §4.7): PostgreSQL clients only
// know about the `public` schema, IRIS only knows about `SQLUser`.
package schemamap

import (
	"regexp"
	"strings"
)

// schemaColumns is the set of output columns whose cell values get the
// SQLUser -> public rewrite (spec §4.7). %SYS is left untouched.
var schemaColumns = map[string]bool{
	"table_schema": true,
	"schema_name":  true,
	"nspname":      true,
}

var (
	publicQualRe = regexp.MustCompile(`(?i)\bpublic\.`)

	// publicLiteralRe only matches 'public' directly compared against a
	// schema-name column (spec §4.7: "adjacent to schema-related column
	// comparisons"), never a bare string literal anywhere else in the
	// statement — an ordinary value like INSERT ... VALUES ('public')
	// must pass through unchanged.
	publicLiteralRe = regexp.MustCompile(`(?i)\b(table_schema|schema_name|nspname)(\s*=\s*)'public'`)
)

// TranslateInputSQL rewrites 'public' string literals compared against a
// schema-name column, and public.ident qualifiers, to SQLUser,
// case-insensitively, before the statement is handed to the
// translator/backend.
func TranslateInputSQL(sql string) string {
	sql = publicQualRe.ReplaceAllString(sql, "SQLUser.")
	sql = publicLiteralRe.ReplaceAllString(sql, "${1}${2}'SQLUser'")
	return sql
}

// TranslateOutputRows rewrites cell values in schema-name columns from
// SQLUser back to public, in place, for the given column name list.
// rows is mutated and returned for convenience.
func TranslateOutputRows(rows [][]string, columnNames []string) [][]string {
	targets := make([]int, 0, len(columnNames))
	for i, name := range columnNames {
		if schemaColumns[strings.ToLower(name)] {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return rows
	}
	for _, row := range rows {
		for _, idx := range targets {
			if idx >= len(row) {
				continue
			}
			if row[idx] == "SQLUser" {
				row[idx] = "public"
			}
		}
	}
	return rows
}
