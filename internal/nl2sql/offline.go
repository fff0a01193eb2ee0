package nl2sql

import "context"

const (
	ProviderOffline = "offline"
	OfflineSQL      = "SELECT 1 AS id;"
)

// OfflineSynthesizer answers every request with OfflineSQL. It backs the
// explicit degraded mode used when no model is configured.
type OfflineSynthesizer struct{}

func (OfflineSynthesizer) Synthesize(_ context.Context, _ Request) (Outcome, error) {
	return Accepted(OfflineSQL, ProviderOffline, ProviderOffline), nil
}

func (OfflineSynthesizer) Provider() string {
	return ProviderOffline
}
