package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "```sql\nSELECT 1;\n```", want: "SELECT 1;"},
		{in: "Here you go:\n```SQL\n  SELECT id FROM orders\n```\nthanks", want: "SELECT id FROM orders"},
		{in: "  `SELECT 2`  ", want: "SELECT 2"},
		{in: "SELECT 3", want: "SELECT 3"},
	}
	for _, tt := range tests {
		if got := extractSQL(tt.in); got != tt.want {
			t.Fatalf("extractSQL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInterpretRefusal(t *testing.T) {
	for _, text := range []string{RefusalSentinel, "Sorry. " + RefusalSentinel, "```sql\n```"} {
		outcome := interpret(text, "p", "m")
		if !outcome.Refused || outcome.SQL != "" {
			t.Fatalf("interpret(%q) = %+v, want refusal", text, outcome)
		}
	}
	outcome := interpret("```sql\nSELECT 1\n```", "p", "m")
	if outcome.Refused || outcome.SQL != "SELECT 1" {
		t.Fatalf("interpret() = %+v", outcome)
	}
}

func TestUserContent(t *testing.T) {
	if got := userContent(Request{Prompt: " hi "}); got != "hi" {
		t.Fatalf("userContent() = %q", got)
	}
	got := userContent(Request{Prompt: "show total sales", Schema: "CREATE TABLE orders(id int);"})
	if got != "Schema:\nCREATE TABLE orders(id int);\n\nRequest:\nshow total sales" {
		t.Fatalf("userContent() = %q", got)
	}
}

func chatCompletionServer(t *testing.T, check func(r *http.Request, payload map[string]any), content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if check != nil {
			check(r, payload)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAISynthesizerAccepted(t *testing.T) {
	server := chatCompletionServer(t, func(r *http.Request, payload map[string]any) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if payload["model"] != "gpt-test" {
			t.Errorf("model = %v", payload["model"])
		}
		messages, _ := payload["messages"].([]any)
		if len(messages) != 2 {
			t.Errorf("messages = %v", payload["messages"])
			return
		}
		user, _ := messages[1].(map[string]any)
		if content, _ := user["content"].(string); !strings.Contains(content, "CREATE TABLE orders") {
			t.Errorf("user content = %q", content)
		}
	}, "```sql\nSELECT SUM(total) FROM orders;\n```")

	synth, err := NewOpenAISynthesizer(OpenAIConfig{BaseURL: server.URL, APIKey: "test-key", Model: "gpt-test"})
	if err != nil {
		t.Fatalf("NewOpenAISynthesizer() error = %v", err)
	}
	outcome, err := synth.Synthesize(context.Background(), Request{
		Prompt: "show total sales",
		Schema: "CREATE TABLE orders(id int, total numeric);",
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if outcome.Refused || outcome.SQL != "SELECT SUM(total) FROM orders;" {
		t.Fatalf("outcome = %+v", outcome)
	}
	if outcome.Provider != ProviderOpenAI || synth.Provider() != ProviderOpenAI {
		t.Fatalf("provider = %q", outcome.Provider)
	}
}

func TestOpenAISynthesizerAzureMode(t *testing.T) {
	server := chatCompletionServer(t, func(r *http.Request, payload map[string]any) {
		if r.URL.Path != "/openai/deployments/dep-1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("api-version"); got != "2024-06-01" {
			t.Errorf("api-version = %q", got)
		}
		if got := r.Header.Get("api-key"); got != "azure-key" {
			t.Errorf("api-key = %q", got)
		}
		if _, ok := payload["model"]; ok {
			t.Errorf("azure payload should not carry model")
		}
		if payload["max_tokens"] != float64(400) {
			t.Errorf("max_tokens = %v", payload["max_tokens"])
		}
	}, RefusalSentinel)

	synth, err := NewOpenAISynthesizer(OpenAIConfig{
		BaseURL:    server.URL,
		APIKey:     "azure-key",
		Azure:      true,
		Deployment: "dep-1",
	})
	if err != nil {
		t.Fatalf("NewOpenAISynthesizer() error = %v", err)
	}
	outcome, err := synth.Synthesize(context.Background(), Request{Prompt: "hello there"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !outcome.Refused {
		t.Fatalf("outcome = %+v, want refusal", outcome)
	}
	if outcome.Provider != ProviderAzure {
		t.Fatalf("Provider = %q", outcome.Provider)
	}
}

func TestAzureEndpointAcceptsFullDeploymentURL(t *testing.T) {
	full := "https://x.openai.azure.com/openai/deployments/d/chat/completions?api-version=2024-06-01"
	if got := azureEndpoint(full, "ignored", "ignored"); got != full {
		t.Fatalf("azureEndpoint() = %q", got)
	}
}

func TestOpenAISynthesizerUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	synth, _ := NewOpenAISynthesizer(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	_, err := synth.Synthesize(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}
}

func TestOpenAISynthesizerEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	t.Cleanup(server.Close)

	synth, _ := NewOpenAISynthesizer(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	if _, err := synth.Synthesize(context.Background(), Request{Prompt: "x"}); !errors.Is(err, ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}
}

func TestOpenAISynthesizerTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	synth, _ := NewOpenAISynthesizer(OpenAIConfig{BaseURL: server.URL, APIKey: "k", Timeout: 50 * time.Millisecond})
	if _, err := synth.Synthesize(context.Background(), Request{Prompt: "x"}); !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestNewOpenAISynthesizerValidation(t *testing.T) {
	if _, err := NewOpenAISynthesizer(OpenAIConfig{APIKey: ""}); err == nil {
		t.Fatal("expected error for missing api key")
	}
	if _, err := NewOpenAISynthesizer(OpenAIConfig{APIKey: "k", Azure: true}); err == nil {
		t.Fatal("expected error for missing azure endpoint")
	}
	synth, err := NewOpenAISynthesizer(OpenAIConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAISynthesizer() error = %v", err)
	}
	if synth.endpoint != "https://api.openai.com/v1/chat/completions" {
		t.Fatalf("endpoint = %q", synth.endpoint)
	}
}
