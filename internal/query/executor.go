package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Executor struct {
	db               *sql.DB
	statementTimeout time.Duration
	statementCheck   StatementCheck
}

// StatementCheck inspects the final statement text on the connection that
// will run it. A non-nil error stops execution before the warehouse sees it.
type StatementCheck func(ctx context.Context, conn *sql.Conn, sqlText string) error

type ExecutorOption func(*Executor)

func WithStatementTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.statementTimeout = timeout
	}
}

func WithStatementCheck(check StatementCheck) ExecutorOption {
	return func(e *Executor) {
		e.statementCheck = check
	}
}

func NewExecutor(db *sql.DB, opts ...ExecutorOption) *Executor {
	executor := &Executor{db: db}
	for _, opt := range opts {
		opt(executor)
	}
	return executor
}

var _ Engine = (*Executor)(nil)

// Execute runs the request's statement, after the configured StatementCheck
// when there is one. Every store error is returned as a
// *QueryFailedError; a statement that outlives the timeout also matches
// ErrUpstreamTimeout.
func (e *Executor) Execute(ctx context.Context, request Request) (Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	sqlText := ApplyRowLimit(request.SQL, request.RowLimit)

	queryCtx := ctx
	if e.statementTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, e.statementTimeout)
		defer cancel()
	}

	start := time.Now()
	var queryer interface {
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	} = e.db
	if e.statementCheck != nil {
		conn, err := e.db.Conn(queryCtx)
		if err != nil {
			return Result{}, e.failure(queryCtx, sqlText, err)
		}
		defer func() { _ = conn.Close() }()
		if err := e.statementCheck(queryCtx, conn, sqlText); err != nil {
			return Result{}, e.failure(queryCtx, sqlText, err)
		}
		queryer = conn
	}

	rows, err := queryer.QueryContext(queryCtx, sqlText)
	if err != nil {
		return Result{}, e.failure(queryCtx, sqlText, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, e.failure(queryCtx, sqlText, err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, e.failure(queryCtx, sqlText, err)
		}
		resultRows = append(resultRows, toRecord(columns, values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, e.failure(queryCtx, sqlText, err)
	}

	return Result{
		SQL:      sqlText,
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

// Version probes the warehouse with SELECT version().
func (e *Executor) Version(ctx context.Context) (string, error) {
	var version string
	if err := e.db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", &QueryFailedError{SQL: "SELECT version()", Err: err}
	}
	return version, nil
}

func (e *Executor) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping warehouse db: %w", err)
	}
	return nil
}

func (e *Executor) failure(queryCtx context.Context, sqlText string, err error) error {
	if errors.Is(queryCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %v", ErrUpstreamTimeout, e.statementTimeout, err)
	}
	return &QueryFailedError{SQL: sqlText, Err: err}
}

func toRecord(columns []string, values []any) map[string]any {
	record := make(map[string]any, len(columns))
	for i, column := range columns {
		record[column] = normalizeValue(values[i])
	}
	return record
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}
