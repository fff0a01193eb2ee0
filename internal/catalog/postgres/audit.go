package postgres

import (
	"context"
	"fmt"

	"github.com/querypilot/querypilot/internal/catalog"
)

func (r *Repository) InsertChatTurn(ctx context.Context, in catalog.InsertChatTurnInput) error {
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO chat_messages (username, role, content, sql_query)
VALUES ($1, $2, $3, $4)`, in.Username, in.Role, in.Content, in.SQL); err != nil {
		return fmt.Errorf("insert chat turn: %w", err)
	}
	return nil
}

func (r *Repository) ListChatTurns(ctx context.Context, filter catalog.ListFilter) ([]catalog.ChatTurn, error) {
	limit := normalizeLimit(filter.Limit)
	query := `
SELECT id, username, role, content, sql_query, created_at
FROM chat_messages
WHERE username = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`
	args := []any{filter.Username, limit}
	if filter.All {
		query = `
SELECT id, username, role, content, sql_query, created_at
FROM chat_messages
ORDER BY created_at DESC, id DESC
LIMIT $1`
		args = []any{limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chat turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]catalog.ChatTurn, 0)
	for rows.Next() {
		var turn catalog.ChatTurn
		if err := rows.Scan(&turn.ID, &turn.Username, &turn.Role, &turn.Content, &turn.SQL, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat turn row: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat turn rows: %w", err)
	}
	return turns, nil
}

func (r *Repository) InsertQueryLog(ctx context.Context, in catalog.InsertQueryLogInput) error {
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO query_logs (username, query, status, rows_affected, execution_time_ms, error_message)
VALUES ($1, $2, $3, $4, $5, $6)`,
		in.Username, in.Query, in.Status, in.RowsAffected, in.ExecutionTimeMs, in.ErrorMessage); err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

func (r *Repository) ListQueryLogs(ctx context.Context, filter catalog.ListFilter) ([]catalog.QueryLogEntry, error) {
	limit := normalizeLimit(filter.Limit)
	query := `
SELECT id, username, query, status, rows_affected, execution_time_ms, error_message, created_at
FROM query_logs
WHERE username = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`
	args := []any{filter.Username, limit}
	if filter.All {
		query = `
SELECT id, username, query, status, rows_affected, execution_time_ms, error_message, created_at
FROM query_logs
ORDER BY created_at DESC, id DESC
LIMIT $1`
		args = []any{limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list query logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]catalog.QueryLogEntry, 0)
	for rows.Next() {
		var entry catalog.QueryLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Username,
			&entry.Query,
			&entry.Status,
			&entry.RowsAffected,
			&entry.ExecutionTimeMs,
			&entry.ErrorMessage,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan query log row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query log rows: %w", err)
	}
	return entries, nil
}
