// Package sqlsafety inspects candidate SQL text before it reaches the warehouse.
//
// IsAllowed is a first-token check, not a parser. It accepts
// "SELECT 1; DELETE FROM t" and CTEs that wrap writes on engines that
// allow them. Callers must not treat it as a read-only proof: the pgx
// warehouse path refuses multi-statement text at prepare time, and the
// DuckDB path needs query.WithStatementCheck(duckdb.SingleStatement) because
// its driver runs every statement it is handed.
package sqlsafety

import (
	"regexp"
	"strings"
)

var (
	lineComment  = regexp.MustCompile(`(?m)--.*$`)
	blockComment = regexp.MustCompile(`/\*[\s\S]*?\*/`)
	limitClause  = regexp.MustCompile(`(?i)limit`)
	columnAlias  = regexp.MustCompile(`(?i)\s+as\s+`)
)

// StripComments removes line and block comments and trims the result.
func StripComments(sqlText string) string {
	cleaned := lineComment.ReplaceAllString(sqlText, "")
	cleaned = blockComment.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

func IsAllowed(sqlText string) bool {
	fields := strings.Fields(StripComments(sqlText))
	if len(fields) == 0 {
		return false
	}
	return strings.ToLower(fields[0]) == "select"
}

// HasLimit reports whether the text contains "limit" anywhere, case-insensitively.
func HasLimit(sqlText string) bool {
	return limitClause.MatchString(sqlText)
}

// ExtractColumns returns the select-list expressions between the first
// SELECT and the following FROM, lowercased, with aliases and "*" dropped.
func ExtractColumns(sqlText string) []string {
	lowered := strings.ToLower(sqlText)
	_, afterSelect, ok := strings.Cut(lowered, "select")
	if !ok {
		return nil
	}
	selectList, _, _ := strings.Cut(afterSelect, "from")

	columns := make([]string, 0)
	for _, part := range strings.Split(selectList, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "*" {
			continue
		}
		expr := columnAlias.Split(part, 2)[0]
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		columns = append(columns, expr)
	}
	return columns
}
