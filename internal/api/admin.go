package api

import (
	"net/http"

	"github.com/querypilot/querypilot/internal/chat"
)

type addUserRequest struct {
	Username    string  `json:"username"`
	Password    string  `json:"password"`
	Role        string  `json:"role"`
	Schema      string  `json:"schema"`
	AdminSchema *string `json:"admin_schema"`
}

type removeUserRequest struct {
	Username string `json:"username"`
}

type updateUserRequest struct {
	Username    *string `json:"username"`
	Password    *string `json:"password"`
	Role        *string `json:"role"`
	Schema      *string `json:"schema"`
	AdminSchema *string `json:"admin_schema"`
}

func handleAddUser(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	var req addUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := deps.Chat.AddUser(r.Context(), chat.AddUserInput{
		Username:    req.Username,
		Password:    req.Password,
		Role:        req.Role,
		Schema:      req.Schema,
		AdminSchema: req.AdminSchema,
	})
	if err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "id": user.ID})
}

func handleRemoveUser(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	var req removeUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := deps.Chat.RemoveUser(r.Context(), req.Username); err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func handleListUsers(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	users, err := deps.Chat.ListUsers(r.Context())
	if err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, user := range users {
		views = append(views, toUserView(user))
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "users": views})
}

func handleUpdateUser(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := deps.Chat.UpdateUser(r.Context(), id, chat.UpdateUserInput{
		Username:    req.Username,
		Password:    req.Password,
		Role:        req.Role,
		Schema:      req.Schema,
		AdminSchema: req.AdminSchema,
	})
	if err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "User updated successfully",
		"user":    toUserView(user),
	})
}

func handleColumnUsage(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	usage, err := deps.Chat.ColumnUsage(r.Context())
	if err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	views := make([]columnUsageView, 0, len(usage))
	for _, entry := range usage {
		views = append(views, columnUsageView{
			Username:   entry.Username,
			ColumnName: entry.ColumnName,
			Count:      entry.Count,
			UpdatedAt:  entry.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "usage": views})
}
