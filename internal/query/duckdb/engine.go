// Package duckdb opens an embedded DuckDB warehouse, optionally exposing
// local parquet files as views so they can be queried by name.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/tidwall/gjson"

	"github.com/querypilot/querypilot/internal/query"
	"github.com/querypilot/querypilot/internal/sqlpool"
)

const DriverName = "duckdb"

type Config struct {
	Pool sqlpool.Config
	// Views maps a view name to the parquet files it reads.
	Views map[string][]string
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	pool := cfg.Pool
	pool.Driver = DriverName
	if pool.Name == "" {
		pool.Name = "warehouse"
	}
	db, err := sqlpool.Open(ctx, pool)
	if err != nil {
		return nil, err
	}
	if err := createViews(ctx, db, cfg.Views); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SingleStatement is a query.StatementCheck backed by DuckDB's own parser.
// The driver executes every statement but the last while preparing, so text
// such as "SELECT 1; DROP TABLE t; SELECT 2" must be refused before it is run.
// json_serialize_sql only serializes SELECT statements and reports anything
// else as an error object.
func SingleStatement(ctx context.Context, conn *sql.Conn, sqlText string) error {
	var serialized string
	err := conn.QueryRowContext(ctx, `SELECT CAST(json_serialize_sql(?) AS VARCHAR)`, sqlText).Scan(&serialized)
	if err != nil {
		return fmt.Errorf("parse statement: %w", err)
	}

	parsed := gjson.Parse(serialized)
	if parsed.Get("error").Bool() {
		// Unparseable text fails statement extraction before anything runs;
		// let execution report the syntax error itself.
		if strings.EqualFold(parsed.Get("error_type").String(), "parser") {
			return nil
		}
		return fmt.Errorf("%w: %s", query.ErrNotSingleStatement, parsed.Get("error_message").String())
	}
	if count := parsed.Get("statements.#").Int(); count != 1 {
		return fmt.Errorf("%w: found %d statements", query.ErrNotSingleStatement, count)
	}
	return nil
}

func createViews(ctx context.Context, db *sql.DB, views map[string][]string) error {
	names := make([]string, 0, len(views))
	for name := range views {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		paths := views[name]
		if len(paths) == 0 {
			return fmt.Errorf("view %q has no parquet files", name)
		}
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(name), quoteStringArray(paths))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return fmt.Errorf("create view %q: %w", name, err)
		}
	}
	return nil
}

// ParseViews reads "name=path[;path],name2=path" into a view map.
func ParseViews(spec string) (map[string][]string, error) {
	views := map[string][]string{}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return views, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		name, rawPaths, ok := strings.Cut(strings.TrimSpace(entry), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parquet view entry %q: expected name=path[;path]", entry)
		}
		paths := make([]string, 0)
		for _, path := range strings.Split(rawPaths, ";") {
			path = strings.TrimSpace(path)
			if path != "" {
				paths = append(paths, path)
			}
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("invalid parquet view entry %q: at least one path is required", entry)
		}
		views[name] = append(views[name], paths...)
	}
	return views, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
