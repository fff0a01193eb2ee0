package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/querypilot/querypilot/internal/catalog"
)

func (r *Repository) CreateSession(ctx context.Context, in catalog.CreateSessionInput) (int64, error) {
	messages := in.Messages
	if messages == nil {
		messages = []json.RawMessage{}
	}
	encoded, err := json.Marshal(messages)
	if err != nil {
		return 0, fmt.Errorf("encode session messages: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, `
INSERT INTO chat_sessions (username, session_name, messages)
VALUES ($1, $2, $3)
RETURNING id`, in.Username, in.Name, string(encoded)).Scan(&id); err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (r *Repository) ListSessions(ctx context.Context, username string, limit int) ([]catalog.ChatSession, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, username, session_name, messages, created_at
FROM chat_sessions
WHERE username = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, username, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]catalog.ChatSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return sessions, nil
}

// GetSession returns ErrNotFound both for unknown ids and for sessions owned by another user.
func (r *Repository) GetSession(ctx context.Context, id int64, username string) (catalog.ChatSession, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx, `
SELECT id, username, session_name, messages, created_at
FROM chat_sessions
WHERE id = $1 AND username = $2`, id, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.ChatSession{}, catalog.ErrNotFound
		}
		return catalog.ChatSession{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (r *Repository) DeleteSession(ctx context.Context, id int64, username string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM chat_sessions
WHERE id = $1 AND username = $2`, id, username)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read deleted session count: %w", err)
	}
	return affected > 0, nil
}

func scanSession(row rowScanner) (catalog.ChatSession, error) {
	var (
		session catalog.ChatSession
		raw     []byte
	)
	if err := row.Scan(&session.ID, &session.Username, &session.Name, &raw, &session.CreatedAt); err != nil {
		return catalog.ChatSession{}, err
	}
	session.Messages = decodeMessages(raw)
	return session, nil
}

// decodeMessages never fails: an unreadable transcript becomes an empty one.
func decodeMessages(raw []byte) []json.RawMessage {
	var messages []json.RawMessage
	if err := json.Unmarshal(raw, &messages); err != nil || messages == nil {
		return []json.RawMessage{}
	}
	return messages
}
