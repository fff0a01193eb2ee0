package api

import (
	"encoding/json"
	"time"

	"github.com/querypilot/querypilot/internal/catalog"
)

type userView struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	Schema      *string   `json:"schema"`
	AdminSchema *string   `json:"admin_schema"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toUserView(user catalog.User) userView {
	return userView{
		ID:          user.ID,
		Username:    user.Username,
		Role:        user.Role,
		Schema:      user.Schema,
		AdminSchema: user.AdminSchema,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}

type chatTurnView struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	SQLQuery  *string   `json:"sql_query"`
	CreatedAt time.Time `json:"created_at"`
}

type queryLogView struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	Query           string    `json:"query"`
	Status          string    `json:"status"`
	RowsAffected    int64     `json:"rows_affected"`
	ExecutionTimeMs *int64    `json:"execution_time_ms"`
	ErrorMessage    *string   `json:"error_message"`
	CreatedAt       time.Time `json:"created_at"`
}

type sessionView struct {
	ID          int64             `json:"id"`
	Username    string            `json:"username"`
	SessionName string            `json:"session_name"`
	Messages    []json.RawMessage `json:"messages"`
	CreatedAt   time.Time         `json:"created_at"`
}

func toSessionView(session catalog.ChatSession) sessionView {
	messages := session.Messages
	if messages == nil {
		messages = []json.RawMessage{}
	}
	return sessionView{
		ID:          session.ID,
		Username:    session.Username,
		SessionName: session.Name,
		Messages:    messages,
		CreatedAt:   session.CreatedAt,
	}
}

type columnUsageView struct {
	Username   string    `json:"username"`
	ColumnName string    `json:"column_name"`
	Count      int64     `json:"count"`
	UpdatedAt  time.Time `json:"updated_at"`
}
