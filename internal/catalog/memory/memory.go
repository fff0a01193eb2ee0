// Package memory is a process-local catalog.Repository for the dev profile
// and tests. Nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/querypilot/querypilot/internal/catalog"
)

const defaultListLimit = 50

type Repository struct {
	mu       sync.Mutex
	now      func() time.Time
	nextID   int64
	users    map[int64]catalog.User
	turns    []catalog.ChatTurn
	logs     []catalog.QueryLogEntry
	sessions map[int64]catalog.ChatSession
	usage    map[usageKey]catalog.ColumnUsage
}

type usageKey struct {
	username string
	column   string
}

var _ catalog.Repository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{
		now:      func() time.Time { return time.Now().UTC() },
		nextID:   1,
		users:    map[int64]catalog.User{},
		sessions: map[int64]catalog.ChatSession{},
		usage:    map[usageKey]catalog.ColumnUsage{},
	}
}

func (r *Repository) HealthCheck(context.Context) error {
	return nil
}

func (r *Repository) id() int64 {
	id := r.nextID
	r.nextID++
	return id
}

func (r *Repository) CreateUser(_ context.Context, in catalog.CreateUserInput) (catalog.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.findUser(in.Username); ok {
		return catalog.User{}, catalog.ErrAlreadyExists
	}
	role := in.Role
	if role == "" {
		role = catalog.RoleUser
	}
	now := r.now()
	user := catalog.User{
		ID:           r.id(),
		Username:     in.Username,
		PasswordHash: in.PasswordHash,
		Role:         role,
		Schema:       in.Schema,
		AdminSchema:  in.AdminSchema,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *Repository) findUser(username string) (catalog.User, bool) {
	for _, user := range r.users {
		if user.Username == username {
			return user, true
		}
	}
	return catalog.User{}, false
}

func (r *Repository) GetUserByUsername(_ context.Context, username string) (catalog.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.findUser(username)
	if !ok {
		return catalog.User{}, catalog.ErrNotFound
	}
	return user, nil
}

func (r *Repository) GetUserByID(_ context.Context, id int64) (catalog.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return catalog.User{}, catalog.ErrNotFound
	}
	return user, nil
}

func (r *Repository) ListUsers(context.Context) ([]catalog.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]catalog.User, 0, len(r.users))
	for _, user := range r.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) UpdateUser(_ context.Context, id int64, in catalog.UpdateUserInput) (catalog.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return catalog.User{}, catalog.ErrNotFound
	}
	if in.Empty() {
		return user, nil
	}
	if in.Username != nil && *in.Username != user.Username {
		if _, taken := r.findUser(*in.Username); taken {
			return catalog.User{}, catalog.ErrAlreadyExists
		}
		user.Username = *in.Username
	}
	if in.PasswordHash != nil {
		user.PasswordHash = *in.PasswordHash
	}
	if in.Role != nil {
		user.Role = *in.Role
	}
	if in.Schema != nil {
		user.Schema = in.Schema
	}
	if in.AdminSchema != nil {
		user.AdminSchema = in.AdminSchema
	}
	user.UpdatedAt = r.now()
	r.users[id] = user
	return user, nil
}

func (r *Repository) DeleteUserByUsername(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.findUser(username)
	if !ok {
		return false, nil
	}
	delete(r.users, user.ID)
	return true, nil
}

func (r *Repository) InsertChatTurn(_ context.Context, in catalog.InsertChatTurnInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, catalog.ChatTurn{
		ID:        r.id(),
		Username:  in.Username,
		Role:      in.Role,
		Content:   in.Content,
		SQL:       in.SQL,
		CreatedAt: r.now(),
	})
	return nil
}

// ListChatTurns returns newest first.
func (r *Repository) ListChatTurns(_ context.Context, filter catalog.ListFilter) ([]catalog.ChatTurn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit := normalizeLimit(filter.Limit)
	out := make([]catalog.ChatTurn, 0)
	for i := len(r.turns) - 1; i >= 0 && len(out) < limit; i-- {
		turn := r.turns[i]
		if filter.All || turn.Username == filter.Username {
			out = append(out, turn)
		}
	}
	return out, nil
}

func (r *Repository) InsertQueryLog(_ context.Context, in catalog.InsertQueryLogInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, catalog.QueryLogEntry{
		ID:              r.id(),
		Username:        in.Username,
		Query:           in.Query,
		Status:          in.Status,
		RowsAffected:    in.RowsAffected,
		ExecutionTimeMs: in.ExecutionTimeMs,
		ErrorMessage:    in.ErrorMessage,
		CreatedAt:       r.now(),
	})
	return nil
}

func (r *Repository) ListQueryLogs(_ context.Context, filter catalog.ListFilter) ([]catalog.QueryLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit := normalizeLimit(filter.Limit)
	out := make([]catalog.QueryLogEntry, 0)
	for i := len(r.logs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := r.logs[i]
		if filter.All || entry.Username == filter.Username {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *Repository) CreateSession(_ context.Context, in catalog.CreateSessionInput) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages := make([]json.RawMessage, len(in.Messages))
	copy(messages, in.Messages)
	session := catalog.ChatSession{
		ID:        r.id(),
		Username:  in.Username,
		Name:      in.Name,
		Messages:  messages,
		CreatedAt: r.now(),
	}
	r.sessions[session.ID] = session
	return session.ID, nil
}

func (r *Repository) ListSessions(_ context.Context, username string, limit int) ([]catalog.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]catalog.ChatSession, 0)
	for _, session := range r.sessions {
		if session.Username == username {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) GetSession(_ context.Context, id int64, username string) (catalog.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || session.Username != username {
		return catalog.ChatSession{}, catalog.ErrNotFound
	}
	return session, nil
}

func (r *Repository) DeleteSession(_ context.Context, id int64, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || session.Username != username {
		return false, nil
	}
	delete(r.sessions, id)
	return true, nil
}

func (r *Repository) IncrementColumnUsage(_ context.Context, username string, columns []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for _, column := range columns {
		key := usageKey{username: username, column: column}
		entry := r.usage[key]
		entry.Username = username
		entry.ColumnName = column
		entry.Count++
		entry.UpdatedAt = now
		r.usage[key] = entry
	}
	return nil
}

// ListColumnUsage orders by username, then count descending, then column.
func (r *Repository) ListColumnUsage(context.Context) ([]catalog.ColumnUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]catalog.ColumnUsage, 0, len(r.usage))
	for _, entry := range r.usage {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ColumnName < out[j].ColumnName
	})
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
