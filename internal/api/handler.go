package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/chat"
	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Tokens            auth.TokenVerifier
	Chat              *chat.Service
	Now               func() time.Time
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"service":   cfg.Service.Name,
			"timestamp": deps.Now().UTC().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		handleLogin(deps, w, r)
	})

	protect := protector(deps)
	admin := func(h http.HandlerFunc) http.Handler {
		return protect(auth.RequireAdmin(h))
	}
	withDeps := func(fn func(Dependencies, http.ResponseWriter, *http.Request)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			fn(deps, w, r)
		}
	}

	mux.Handle("POST /api/generate-sql", protect(withDeps(handleGenerateSQL)))
	mux.Handle("POST /api/run-query", protect(withDeps(handleRunQuery)))
	mux.Handle("GET /api/chat-history", protect(withDeps(handleChatHistory)))
	mux.Handle("GET /api/query-logs", protect(withDeps(handleQueryLogs)))
	mux.Handle("GET /api/test-db", protect(withDeps(handleTestDB)))

	mux.Handle("POST /api/save-session", protect(withDeps(handleSaveSession)))
	mux.Handle("GET /api/chat-sessions", protect(withDeps(handleListSessions)))
	mux.Handle("GET /api/chat-session/{id}", protect(withDeps(handleGetSession)))
	mux.Handle("DELETE /api/chat-session/{id}", protect(withDeps(handleDeleteSession)))

	mux.Handle("POST /api/admin/add-user", admin(withDeps(handleAddUser)))
	mux.Handle("POST /api/admin/remove-user", admin(withDeps(handleRemoveUser)))
	mux.Handle("GET /api/admin/users", admin(withDeps(handleListUsers)))
	mux.Handle("PUT /api/admin/users/{id}", admin(withDeps(handleUpdateUser)))
	mux.Handle("GET /api/admin/column-usage", admin(withDeps(handleColumnUsage)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", "Not Found", false, nil)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, corsMiddleware)
	return chain(mux, middlewares...)
}

// protector wraps authenticated routes. A missing verifier or service fails
// closed instead of serving unauthenticated traffic.
func protector(deps Dependencies) func(http.Handler) http.Handler {
	if deps.Tokens == nil {
		if deps.Logger != nil {
			deps.Logger.Error("token verifier missing; protected routes disabled")
		}
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is not configured", false, nil)
			})
		}
	}
	return auth.Middleware(deps.Logger, deps.Tokens)
}

// NamedCheck prefixes the check's error with name.
func NamedCheck(name string, check func(ctx context.Context) error) ReadinessCheck {
	return func(ctx context.Context) error {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"error":      message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func requireChat(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat service is not configured", false, nil)
		return false
	}
	return true
}
