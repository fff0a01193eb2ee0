package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/querypilot/querypilot/internal/sqlsafety"
)

var (
	ErrUpstreamTimeout = errors.New("query: statement timed out")
	// ErrNotSingleStatement marks text that holds more than one statement or
	// a statement the warehouse will not treat as a plain read.
	ErrNotSingleStatement = errors.New("query: exactly one SELECT statement is allowed")
)

// QueryFailedError carries the warehouse's own message for a failed statement.
type QueryFailedError struct {
	SQL string
	Err error
}

func (e *QueryFailedError) Error() string {
	return e.Err.Error()
}

func (e *QueryFailedError) Unwrap() error {
	return e.Err
}

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	SQL      string
	Columns  []string
	Rows     []map[string]any
	Duration time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// ApplyRowLimit appends "LIMIT n;" when limit is positive and the text has no
// limit of its own. The existing-limit check is a case-insensitive substring test.
func ApplyRowLimit(sqlText string, limit int) string {
	if limit <= 0 || sqlsafety.HasLimit(sqlText) {
		return sqlText
	}
	trimmed := strings.TrimSuffix(strings.TrimSpace(sqlText), ";")
	return fmt.Sprintf("%s LIMIT %d;", trimmed, limit)
}
