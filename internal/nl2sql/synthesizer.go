package nl2sql

import (
	"context"
	"errors"
	"net"
)

var (
	ErrUpstream = errors.New("nl2sql: upstream model failure")
	ErrTimeout  = errors.New("nl2sql: upstream model timeout")
)

type Request struct {
	Prompt string
	Schema string
}

// Outcome is either an accepted candidate statement or a refusal.
// Callers branch on Refused and never inspect model text.
type Outcome struct {
	SQL      string
	Refused  bool
	Provider string
	Model    string
}

func Accepted(sql, provider, model string) Outcome {
	return Outcome{SQL: sql, Provider: provider, Model: model}
}

func Refused(provider, model string) Outcome {
	return Outcome{Refused: true, Provider: provider, Model: model}
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Outcome, error)
	Provider() string
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrUpstream
}
