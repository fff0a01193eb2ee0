// Package audit records chat turns, query attempts and column usage.
// Writes never fail the caller: errors are logged and counted instead.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/querypilot/querypilot/internal/catalog"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/sqlsafety"
)

const writeTimeout = 5 * time.Second

type Store interface {
	catalog.AuditRepository
	catalog.UsageRepository
}

type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Recorder{store: store, logger: logger}
}

type QueryAttempt struct {
	Username     string
	SQL          string
	Status       string
	RowsAffected int64
	Elapsed      time.Duration
	ErrorMessage string
}

func (r *Recorder) LogTurn(ctx context.Context, username, role, content string, sql *string) {
	writeCtx, cancel := detached(ctx)
	defer cancel()

	err := r.store.InsertChatTurn(writeCtx, catalog.InsertChatTurnInput{
		Username: username,
		Role:     role,
		Content:  content,
		SQL:      sql,
	})
	if err != nil {
		r.reportFailure(ctx, "chat_turn", username, err)
	}
}

func (r *Recorder) LogQueryAttempt(ctx context.Context, attempt QueryAttempt) {
	writeCtx, cancel := detached(ctx)
	defer cancel()

	in := catalog.InsertQueryLogInput{
		Username:     attempt.Username,
		Query:        attempt.SQL,
		Status:       attempt.Status,
		RowsAffected: attempt.RowsAffected,
	}
	if attempt.Elapsed > 0 {
		elapsedMs := attempt.Elapsed.Milliseconds()
		in.ExecutionTimeMs = &elapsedMs
	}
	if attempt.ErrorMessage != "" {
		message := attempt.ErrorMessage
		in.ErrorMessage = &message
	}

	if err := r.store.InsertQueryLog(writeCtx, in); err != nil {
		r.reportFailure(ctx, "query_log", attempt.Username, err)
	}
}

// RecordColumnUsage counts the select-list columns of sqlText for username.
func (r *Recorder) RecordColumnUsage(ctx context.Context, username, sqlText string) {
	columns := sqlsafety.ExtractColumns(sqlText)
	if len(columns) == 0 {
		return
	}
	writeCtx, cancel := detached(ctx)
	defer cancel()

	if err := r.store.IncrementColumnUsage(writeCtx, username, columns); err != nil {
		r.reportFailure(ctx, "column_usage", username, err)
	}
}

// ListTurns returns newest-first turns. Admins see every user's turns.
func (r *Recorder) ListTurns(ctx context.Context, username string, limit int, isAdmin bool) ([]catalog.ChatTurn, error) {
	return r.store.ListChatTurns(ctx, catalog.ListFilter{Username: username, All: isAdmin, Limit: limit})
}

func (r *Recorder) ListQueryLogs(ctx context.Context, username string, limit int, isAdmin bool) ([]catalog.QueryLogEntry, error) {
	return r.store.ListQueryLogs(ctx, catalog.ListFilter{Username: username, All: isAdmin, Limit: limit})
}

func (r *Recorder) ListColumnUsage(ctx context.Context) ([]catalog.ColumnUsage, error) {
	return r.store.ListColumnUsage(ctx)
}

func (r *Recorder) reportFailure(ctx context.Context, kind, username string, err error) {
	observability.IncrementAuditWriteFailure(kind)
	r.logger.WarnContext(ctx, "audit write failed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("kind", kind),
		slog.String("username", username),
		slog.String("error", err.Error()),
	)
}

// detached keeps audit writes alive when the client goes away mid-request.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}
