// Package chat runs the per-turn pipeline: resolve the caller's schema,
// synthesize a candidate statement, validate it, execute it and audit
// every step.
package chat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/querypilot/querypilot/internal/audit"
	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/catalog"
	"github.com/querypilot/querypilot/internal/nl2sql"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/query"
)

type Warehouse interface {
	query.Engine
	Version(ctx context.Context) (string, error)
}

type TokenIssuer interface {
	Issue(subject, role string) (string, error)
}

type Dependencies struct {
	Users       catalog.UserRepository
	Sessions    catalog.SessionRepository
	Audit       *audit.Recorder
	Synthesizer nl2sql.Synthesizer
	Warehouse   Warehouse
	Tokens      TokenIssuer
	Logger      *slog.Logger
}

type Options struct {
	PreviewRows       int
	HistoryLimit      int
	SessionListLimit  int
	QueryLogListLimit int
}

type Service struct {
	users       catalog.UserRepository
	sessions    catalog.SessionRepository
	audit       *audit.Recorder
	synthesizer nl2sql.Synthesizer
	warehouse   Warehouse
	tokens      TokenIssuer
	logger      *slog.Logger
	opts        Options
}

func NewService(deps Dependencies, opts Options) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.SessionListLimit <= 0 {
		opts.SessionListLimit = 50
	}
	if opts.QueryLogListLimit <= 0 {
		opts.QueryLogListLimit = 100
	}
	return &Service{
		users:       deps.Users,
		sessions:    deps.Sessions,
		audit:       deps.Audit,
		synthesizer: deps.Synthesizer,
		warehouse:   deps.Warehouse,
		tokens:      deps.Tokens,
		logger:      logger,
		opts:        opts,
	}
}

func (s *Service) loadUser(ctx context.Context, username string) (catalog.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.User{}, newError(KindNotFound, MessageUserNotFound, err)
		}
		return catalog.User{}, newError(KindInternal, "Failed to load user", err)
	}
	return user, nil
}

// isAdmin trusts the stored role over the token claim so demotions apply immediately.
func (s *Service) isAdmin(ctx context.Context, principal auth.Principal) (bool, error) {
	user, err := s.loadUser(ctx, principal.Username)
	if err != nil {
		return false, err
	}
	return user.IsAdmin(), nil
}

func (s *Service) traceAttrs(ctx context.Context, username string) []any {
	return []any{
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("username", username),
	}
}
