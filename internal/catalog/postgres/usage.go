package postgres

import (
	"context"
	"fmt"

	"github.com/querypilot/querypilot/internal/catalog"
)

func (r *Repository) IncrementColumnUsage(ctx context.Context, username string, columns []string) error {
	if len(columns) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin column usage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, column := range columns {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO column_usage (username, column_name, count)
VALUES ($1, $2, 1)
ON CONFLICT (username, column_name)
DO UPDATE SET count = column_usage.count + 1, updated_at = now()`, username, column); err != nil {
			return fmt.Errorf("increment column usage %q: %w", column, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit column usage tx: %w", err)
	}
	return nil
}

func (r *Repository) ListColumnUsage(ctx context.Context) ([]catalog.ColumnUsage, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT username, column_name, count, updated_at
FROM column_usage
ORDER BY username ASC, count DESC, column_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list column usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	usage := make([]catalog.ColumnUsage, 0)
	for rows.Next() {
		var entry catalog.ColumnUsage
		if err := rows.Scan(&entry.Username, &entry.ColumnName, &entry.Count, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan column usage row: %w", err)
		}
		usage = append(usage, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column usage rows: %w", err)
	}
	return usage, nil
}
