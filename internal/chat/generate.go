package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/catalog"
	"github.com/querypilot/querypilot/internal/nl2sql"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/query"
	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/sqlsafety"
)

type GenerateResult struct {
	SQL          string
	Explain      string
	Provider     string
	Model        string
	Preview      []map[string]any
	PreviewError string
}

// Generate turns prompt into a validated SELECT for the caller's effective schema.
func (s *Service) Generate(ctx context.Context, principal auth.Principal, prompt string) (GenerateResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return GenerateResult{}, newError(KindInvalidArgument, "prompt is required", nil)
	}
	user, err := s.loadUser(ctx, principal.Username)
	if err != nil {
		return GenerateResult{}, err
	}
	username := user.Username

	schemaText, ok := schema.Resolve(user)
	if !ok {
		s.audit.LogTurn(ctx, username, catalog.TurnRoleUser, prompt, nil)
		s.audit.LogTurn(ctx, username, catalog.TurnRoleAssistant, MessageNoSchemaAssistant, nil)
		return GenerateResult{}, newError(KindNoSchemaConfigured, MessageNoSchema, nil)
	}

	s.audit.LogTurn(ctx, username, catalog.TurnRoleUser, prompt, nil)

	provider := s.synthesizer.Provider()
	start := time.Now()
	outcome, err := s.synthesizer.Synthesize(ctx, nl2sql.Request{Prompt: prompt, Schema: schemaText})
	elapsed := time.Since(start)
	if err != nil {
		observability.ObserveSynthesis(provider, "error", elapsed)
		s.logger.ErrorContext(ctx, "sql synthesis failed", append(s.traceAttrs(ctx, username),
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)...)
		s.audit.LogTurn(ctx, username, catalog.TurnRoleAssistant, MessageSynthesisFailed, nil)
		if errors.Is(err, nl2sql.ErrTimeout) {
			return GenerateResult{}, newError(KindUpstreamTimeout, MessageSynthesisFailed, err)
		}
		return GenerateResult{}, newError(KindUpstreamFailure, MessageSynthesisFailed, err)
	}

	if outcome.Refused {
		observability.ObserveSynthesis(provider, "refused", elapsed)
		s.audit.LogTurn(ctx, username, catalog.TurnRoleAssistant, MessageRefused, nil)
		return GenerateResult{}, newError(KindSynthesisRefused, MessageRefused, nil)
	}
	observability.ObserveSynthesis(provider, "accepted", elapsed)

	candidate := outcome.SQL
	if !sqlsafety.IsAllowed(candidate) {
		observability.IncrementValidationRejection("generated")
		s.logger.WarnContext(ctx, "generated sql rejected", append(s.traceAttrs(ctx, username),
			slog.String("sql", candidate),
		)...)
		s.audit.LogTurn(ctx, username, catalog.TurnRoleAssistant, MessageNotSelectTurn, nil)
		rejected := newError(KindValidationRejected, MessageNotSelect, nil)
		rejected.Details = map[string]any{"sql": candidate}
		return GenerateResult{}, rejected
	}

	s.audit.LogTurn(ctx, username, catalog.TurnRoleAssistant, MessageProposedSQLPrefix+candidate, &candidate)
	s.audit.RecordColumnUsage(ctx, username, candidate)

	result := GenerateResult{
		SQL:      candidate,
		Explain:  MessageExplain,
		Provider: outcome.Provider,
		Model:    outcome.Model,
	}
	if s.opts.PreviewRows > 0 && s.warehouse != nil {
		result.Preview, result.PreviewError = s.preview(ctx, username, candidate)
	}
	return result, nil
}

// preview failures never fail generation; they are reported beside the SQL.
func (s *Service) preview(ctx context.Context, username, candidate string) ([]map[string]any, string) {
	start := time.Now()
	res, err := s.warehouse.Execute(ctx, query.Request{SQL: candidate, RowLimit: s.opts.PreviewRows})
	if err != nil {
		status := "error"
		message := MessageQueryFailed
		if errors.Is(err, query.ErrUpstreamTimeout) {
			status = "timeout"
			message = MessageQueryTimeout
		}
		observability.ObserveQueryExecution(status, time.Since(start))
		s.logger.WarnContext(ctx, "preview query failed", append(s.traceAttrs(ctx, username),
			slog.String("error", err.Error()),
		)...)
		return nil, message
	}
	observability.ObserveQueryExecution("ok", time.Since(start))
	return res.Rows, ""
}
