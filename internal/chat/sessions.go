package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/catalog"
)

const defaultSessionName = "Chat session"

func (s *Service) SaveSession(ctx context.Context, principal auth.Principal, name string, messages []json.RawMessage) (int64, error) {
	if strings.TrimSpace(name) == "" {
		name = defaultSessionName
	}
	if messages == nil {
		messages = []json.RawMessage{}
	}
	id, err := s.sessions.CreateSession(ctx, catalog.CreateSessionInput{
		Username: principal.Username,
		Name:     name,
		Messages: messages,
	})
	if err != nil {
		return 0, newError(KindInternal, "Failed to save session", err)
	}
	return id, nil
}

func (s *Service) ListSessions(ctx context.Context, principal auth.Principal) ([]catalog.ChatSession, error) {
	sessions, err := s.sessions.ListSessions(ctx, principal.Username, s.opts.SessionListLimit)
	if err != nil {
		return nil, newError(KindInternal, "Failed to load sessions", err)
	}
	return sessions, nil
}

// GetSession reports another user's session exactly like a missing one.
func (s *Service) GetSession(ctx context.Context, principal auth.Principal, id int64) (catalog.ChatSession, error) {
	session, err := s.sessions.GetSession(ctx, id, principal.Username)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.ChatSession{}, newError(KindNotFound, MessageSessionNotFound, err)
		}
		return catalog.ChatSession{}, newError(KindInternal, "Failed to load session", err)
	}
	return session, nil
}

func (s *Service) DeleteSession(ctx context.Context, principal auth.Principal, id int64) error {
	deleted, err := s.sessions.DeleteSession(ctx, id, principal.Username)
	if err != nil {
		return newError(KindInternal, "Failed to delete session", err)
	}
	if !deleted {
		return newError(KindNotFound, MessageSessionNotFound, nil)
	}
	return nil
}
