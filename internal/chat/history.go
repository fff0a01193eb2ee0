package chat

import (
	"context"

	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/catalog"
)

func (s *Service) History(ctx context.Context, principal auth.Principal) ([]catalog.ChatTurn, error) {
	admin, err := s.isAdmin(ctx, principal)
	if err != nil {
		return nil, err
	}
	turns, err := s.audit.ListTurns(ctx, principal.Username, s.opts.HistoryLimit, admin)
	if err != nil {
		return nil, newError(KindInternal, "Failed to load chat history", err)
	}
	return turns, nil
}

func (s *Service) QueryLogs(ctx context.Context, principal auth.Principal, limit int) ([]catalog.QueryLogEntry, error) {
	if limit <= 0 || limit > s.opts.QueryLogListLimit {
		limit = s.opts.QueryLogListLimit
	}
	admin, err := s.isAdmin(ctx, principal)
	if err != nil {
		return nil, err
	}
	logs, err := s.audit.ListQueryLogs(ctx, principal.Username, limit, admin)
	if err != nil {
		return nil, newError(KindInternal, "Failed to load query logs", err)
	}
	return logs, nil
}

func (s *Service) ColumnUsage(ctx context.Context) ([]catalog.ColumnUsage, error) {
	usage, err := s.audit.ListColumnUsage(ctx)
	if err != nil {
		return nil, newError(KindInternal, "Failed to load column usage", err)
	}
	return usage, nil
}
