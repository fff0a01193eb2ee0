package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type saveSessionRequest struct {
	SessionName string            `json:"session_name"`
	Messages    []json.RawMessage `json:"messages"`
}

func handleSaveSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	var req saveSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := deps.Chat.SaveSession(r.Context(), principal(r), req.SessionName, req.Messages)
	if err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "session_id": id})
}

func handleListSessions(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	sessions, err := deps.Chat.ListSessions(r.Context(), principal(r))
	if err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, toSessionView(session))
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": views})
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	session, err := deps.Chat.GetSession(r.Context(), principal(r), id)
	if err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "session": toSessionView(session)})
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireChat(deps, w, r) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := deps.Chat.DeleteSession(r.Context(), principal(r), id); err != nil {
		writeChatError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": "Session deleted successfully"})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "id must be a positive integer", false, nil)
		return 0, false
	}
	return id, true
}
