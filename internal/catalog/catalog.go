package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("catalog: not found")
	ErrAlreadyExists = errors.New("catalog: already exists")
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)

const (
	QueryStatusOK    = "ok"
	QueryStatusError = "error"
)

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

type Repository interface {
	HealthCheck(ctx context.Context) error
	UserRepository
	AuditRepository
	SessionRepository
	UsageRepository
}

type UserRepository interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByID(ctx context.Context, id int64) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (User, error)
	DeleteUserByUsername(ctx context.Context, username string) (bool, error)
}

type AuditRepository interface {
	InsertChatTurn(ctx context.Context, in InsertChatTurnInput) error
	ListChatTurns(ctx context.Context, filter ListFilter) ([]ChatTurn, error)
	InsertQueryLog(ctx context.Context, in InsertQueryLogInput) error
	ListQueryLogs(ctx context.Context, filter ListFilter) ([]QueryLogEntry, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, in CreateSessionInput) (int64, error)
	ListSessions(ctx context.Context, username string, limit int) ([]ChatSession, error)
	GetSession(ctx context.Context, id int64, username string) (ChatSession, error)
	DeleteSession(ctx context.Context, id int64, username string) (bool, error)
}

type UsageRepository interface {
	IncrementColumnUsage(ctx context.Context, username string, columns []string) error
	ListColumnUsage(ctx context.Context) ([]ColumnUsage, error)
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	Schema       *string
	AdminSchema  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type CreateUserInput struct {
	Username     string
	PasswordHash string
	Role         string
	Schema       *string
	AdminSchema  *string
}

// UpdateUserInput applies only the non-nil fields.
type UpdateUserInput struct {
	Username     *string
	PasswordHash *string
	Role         *string
	Schema       *string
	AdminSchema  *string
}

func (in UpdateUserInput) Empty() bool {
	return in.Username == nil && in.PasswordHash == nil && in.Role == nil && in.Schema == nil && in.AdminSchema == nil
}

type ChatTurn struct {
	ID        int64
	Username  string
	Role      string
	Content   string
	SQL       *string
	CreatedAt time.Time
}

type InsertChatTurnInput struct {
	Username string
	Role     string
	Content  string
	SQL      *string
}

type QueryLogEntry struct {
	ID              int64
	Username        string
	Query           string
	Status          string
	RowsAffected    int64
	ExecutionTimeMs *int64
	ErrorMessage    *string
	CreatedAt       time.Time
}

type InsertQueryLogInput struct {
	Username        string
	Query           string
	Status          string
	RowsAffected    int64
	ExecutionTimeMs *int64
	ErrorMessage    *string
}

// ListFilter scopes audit reads. All ignores Username.
type ListFilter struct {
	Username string
	All      bool
	Limit    int
}

type ChatSession struct {
	ID        int64
	Username  string
	Name      string
	Messages  []json.RawMessage
	CreatedAt time.Time
}

type CreateSessionInput struct {
	Username string
	Name     string
	Messages []json.RawMessage
}

type ColumnUsage struct {
	Username   string
	ColumnName string
	Count      int64
	UpdatedAt  time.Time
}
