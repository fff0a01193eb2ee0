package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/querypilot/querypilot/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// generateRequest accepts the browser client's optional schema and userId
// fields. The effective schema always comes from the caller's stored record.
type generateRequest struct {
	Prompt string          `json:"prompt"`
	Schema json.RawMessage `json:"schema,omitempty"`
	UserID json.RawMessage `json:"userId,omitempty"`
}

type runQueryRequest struct {
	SQL   string `json:"sql"`
	Limit *int   `json:"limit"`
}

func handleLogin(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := deps.Chat.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"token":    result.Token,
		"username": result.Username,
		"role":     result.Role,
		"schema":   result.Schema,
	})
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

func handleGenerateSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := deps.Chat.Generate(r.Context(), principal(r), req.Prompt)
	if err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	response := map[string]any{
		"sql":      result.SQL,
		"explain":  result.Explain,
		"provider": result.Provider,
	}
	if result.Preview != nil {
		response["preview"] = result.Preview
	}
	if result.PreviewError != "" {
		response["preview_error"] = result.PreviewError
	}
	writeJSON(w, http.StatusOK, response)
}

func handleRunQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	var req runQueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := deps.Chat.Run(r.Context(), principal(r), req.SQL, req.Limit)
	if err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	rows := result.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"columns": result.Columns,
		"rows":    rows,
		"stats": map[string]any{
			"row_count":   len(rows),
			"duration_ms": result.Duration.Milliseconds(),
		},
	})
}

func handleChatHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	turns, err := deps.Chat.History(r.Context(), principal(r))
	if err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	messages := make([]chatTurnView, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, chatTurnView{
			ID:        turn.ID,
			Username:  turn.Username,
			Role:      turn.Role,
			Content:   turn.Content,
			SQLQuery:  turn.SQL,
			CreatedAt: turn.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "messages": messages})
}

func handleQueryLogs(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "limit must be a non-negative integer", false, nil)
			return
		}
		limit = parsed
	}
	entries, err := deps.Chat.QueryLogs(r.Context(), principal(r), limit)
	if err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	logs := make([]queryLogView, 0, len(entries))
	for _, entry := range entries {
		logs = append(logs, queryLogView{
			ID:              entry.ID,
			Username:        entry.Username,
			Query:           entry.Query,
			Status:          entry.Status,
			RowsAffected:    entry.RowsAffected,
			ExecutionTimeMs: entry.ExecutionTimeMs,
			ErrorMessage:    entry.ErrorMessage,
			CreatedAt:       entry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "logs": logs})
}

func handleTestDB(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	version, err := deps.Chat.WarehouseVersion(r.Context())
	if err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": version})
}
