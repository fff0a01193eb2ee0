package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("querypilot-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.AI.Provider != AIProviderOffline {
		t.Fatalf("AI.Provider = %q, want offline in dev", cfg.AI.Provider)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("Auth.TokenTTL = %s", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.TokenSecret == "" {
		t.Fatal("Auth.TokenSecret should have a dev default")
	}
	if cfg.Warehouse.Driver != WarehouseDriverPostgres {
		t.Fatalf("Warehouse.Driver = %q", cfg.Warehouse.Driver)
	}
	if cfg.Warehouse.PreviewRows != 5 {
		t.Fatalf("Warehouse.PreviewRows = %d", cfg.Warehouse.PreviewRows)
	}
	if cfg.Chat.HistoryLimit != 50 {
		t.Fatalf("Chat.HistoryLimit = %d", cfg.Chat.HistoryLimit)
	}
	if cfg.Store.MaxOpenConns != 10 {
		t.Fatalf("Store.MaxOpenConns = %d", cfg.Store.MaxOpenConns)
	}
}

func TestLoadProdProfileRequiresTokenSecret(t *testing.T) {
	_, err := Load("querypilot-api", mapLookup(map[string]string{"QUERYPILOT_PROFILE": "prod"}))
	if err == nil {
		t.Fatal("expected error when prod has no token secret")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("querypilot-api", mapLookup(map[string]string{
		"QUERYPILOT_PROFILE":           "prod",
		"QUERYPILOT_AUTH_TOKEN_SECRET": "s3cret",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AI.Provider != AIProviderAzure {
		t.Fatalf("AI.Provider = %q, want azure in prod", cfg.AI.Provider)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"QUERYPILOT_PROFILE":                     "test",
		"QUERYPILOT_HTTP_ADDR":                   ":9999",
		"QUERYPILOT_HTTP_READ_TIMEOUT":           "2s",
		"QUERYPILOT_LOG_LEVEL":                   "error",
		"QUERYPILOT_SERVICE_NAME":                "querypilot-custom",
		"QUERYPILOT_STORE_DSN":                   "postgres://store",
		"QUERYPILOT_STORE_MAX_OPEN_CONNS":        "42",
		"QUERYPILOT_WAREHOUSE_DRIVER":            "DuckDB",
		"QUERYPILOT_WAREHOUSE_DSN":               "/tmp/warehouse.duckdb",
		"QUERYPILOT_WAREHOUSE_STATEMENT_TIMEOUT": "7s",
		"QUERYPILOT_WAREHOUSE_PREVIEW_ROWS":      "0",
		"QUERYPILOT_WAREHOUSE_PARQUET_VIEWS":     "orders=/tmp/orders.parquet",
		"QUERYPILOT_AI_PROVIDER":                 "Anthropic",
		"QUERYPILOT_AI_API_KEY":                  "secret-key",
		"QUERYPILOT_AI_MODEL":                    "claude-haiku-4-5",
		"QUERYPILOT_AI_TEMPERATURE":              "0.3",
		"QUERYPILOT_AI_MAX_TOKENS":               "800",
		"QUERYPILOT_AI_TIMEOUT":                  "21s",
		"QUERYPILOT_AUTH_TOKEN_SECRET":           "abc",
		"QUERYPILOT_AUTH_TOKEN_TTL":              "1h",
		"QUERYPILOT_CHAT_HISTORY_LIMIT":          "25",
		"QUERYPILOT_BOOTSTRAP_ADMIN_USERNAME":    "root",
	})
	cfg, err := Load("querypilot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "querypilot-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Store.DSN != "postgres://store" || cfg.Store.MaxOpenConns != 42 {
		t.Fatalf("Store = %+v", cfg.Store)
	}
	if cfg.Warehouse.Driver != WarehouseDriverDuckDB {
		t.Fatalf("Warehouse.Driver = %q", cfg.Warehouse.Driver)
	}
	if cfg.Warehouse.StatementTimeout != 7*time.Second {
		t.Fatalf("Warehouse.StatementTimeout = %s", cfg.Warehouse.StatementTimeout)
	}
	if cfg.Warehouse.PreviewRows != 0 {
		t.Fatalf("Warehouse.PreviewRows = %d", cfg.Warehouse.PreviewRows)
	}
	if cfg.Warehouse.ParquetViews != "orders=/tmp/orders.parquet" {
		t.Fatalf("Warehouse.ParquetViews = %q", cfg.Warehouse.ParquetViews)
	}
	if cfg.AI.Provider != AIProviderAnthropic {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.MaxTokens != 800 || cfg.AI.Temperature != 0.3 || cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("Auth.TokenTTL = %s", cfg.Auth.TokenTTL)
	}
	if cfg.Chat.HistoryLimit != 25 {
		t.Fatalf("Chat.HistoryLimit = %d", cfg.Chat.HistoryLimit)
	}
	if cfg.Auth.BootstrapAdminUsername != "root" {
		t.Fatalf("Auth.BootstrapAdminUsername = %q", cfg.Auth.BootstrapAdminUsername)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"QUERYPILOT_PROFILE": "oops"},
		{"QUERYPILOT_HTTP_READ_TIMEOUT": "NaN"},
		{"QUERYPILOT_STORE_MAX_OPEN_CONNS": "oops"},
		{"QUERYPILOT_AI_PROVIDER": "gemini"},
		{"QUERYPILOT_AI_TEMPERATURE": "bad"},
		{"QUERYPILOT_WAREHOUSE_DRIVER": "mysql"},
		{"QUERYPILOT_WAREHOUSE_PREVIEW_ROWS": "-1"},
		{"QUERYPILOT_AUTH_TOKEN_TTL": "0s"},
		{"QUERYPILOT_LOG_JSON": "not-bool"},
		{"QUERYPILOT_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("querypilot-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
