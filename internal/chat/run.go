package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/querypilot/querypilot/internal/audit"
	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/catalog"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/query"
	"github.com/querypilot/querypilot/internal/sqlsafety"
)

type RunResult struct {
	SQL      string
	Columns  []string
	Rows     []map[string]any
	Duration time.Duration
}

// Run validates and executes sqlText. A nil limit runs the statement as written.
func (s *Service) Run(ctx context.Context, principal auth.Principal, sqlText string, limit *int) (RunResult, error) {
	username := principal.Username
	if strings.TrimSpace(sqlText) == "" {
		return RunResult{}, newError(KindInvalidArgument, "sql is required", nil)
	}
	rowLimit := 0
	if limit != nil {
		if *limit < 0 {
			return RunResult{}, newError(KindInvalidArgument, "limit must be >= 0", nil)
		}
		rowLimit = *limit
	}

	if !sqlsafety.IsAllowed(sqlText) {
		observability.IncrementValidationRejection("submitted")
		s.audit.LogQueryAttempt(ctx, audit.QueryAttempt{
			Username:     username,
			SQL:          sqlText,
			Status:       catalog.QueryStatusError,
			ErrorMessage: MessageNotSelectLog,
		})
		return RunResult{}, newError(KindValidationRejected, MessageNotSelect, nil)
	}

	start := time.Now()
	result, err := s.warehouse.Execute(ctx, query.Request{SQL: sqlText, RowLimit: rowLimit})
	elapsed := time.Since(start)
	if err != nil {
		s.audit.LogQueryAttempt(ctx, audit.QueryAttempt{
			Username:     username,
			SQL:          sqlText,
			Status:       catalog.QueryStatusError,
			Elapsed:      elapsed,
			ErrorMessage: err.Error(),
		})
		s.logger.WarnContext(ctx, "query execution failed", append(s.traceAttrs(ctx, username),
			slog.String("error", err.Error()),
		)...)
		if errors.Is(err, query.ErrNotSingleStatement) {
			observability.IncrementValidationRejection("submitted")
			return RunResult{}, newError(KindValidationRejected, MessageNotSelect, err)
		}
		if errors.Is(err, query.ErrUpstreamTimeout) {
			observability.ObserveQueryExecution("timeout", elapsed)
			return RunResult{}, newError(KindUpstreamTimeout, MessageQueryTimeout, err)
		}
		observability.ObserveQueryExecution("error", elapsed)
		return RunResult{}, newError(KindUpstreamFailure, MessageQueryFailed, err)
	}
	observability.ObserveQueryExecution("ok", elapsed)

	s.audit.LogQueryAttempt(ctx, audit.QueryAttempt{
		Username:     username,
		SQL:          sqlText,
		Status:       catalog.QueryStatusOK,
		RowsAffected: int64(len(result.Rows)),
		Elapsed:      elapsed,
	})
	return RunResult{
		SQL:      result.SQL,
		Columns:  result.Columns,
		Rows:     result.Rows,
		Duration: result.Duration,
	}, nil
}

// WarehouseVersion reports the warehouse's SELECT version() output.
func (s *Service) WarehouseVersion(ctx context.Context) (string, error) {
	version, err := s.warehouse.Version(ctx)
	if err != nil {
		return "", newError(KindUpstreamFailure, "Database connection failed", err)
	}
	return version, nil
}
