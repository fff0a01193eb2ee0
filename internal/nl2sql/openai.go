package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"

	defaultOpenAIBaseURL = "https://api.openai.com"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// Azure switches to deployment URLs and the api-key header.
	Azure      bool
	Deployment string
	APIVersion string
}

// OpenAISynthesizer talks to OpenAI-compatible chat completion endpoints,
// including Azure OpenAI deployments.
type OpenAISynthesizer struct {
	endpoint    string
	apiKey      string
	azure       bool
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

func NewOpenAISynthesizer(cfg OpenAIConfig) (*OpenAISynthesizer, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		if cfg.Azure {
			return nil, fmt.Errorf("azure endpoint is required")
		}
		baseURL = defaultOpenAIBaseURL
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 400
	}

	endpoint := baseURL + "/v1/chat/completions"
	if cfg.Azure {
		endpoint = azureEndpoint(baseURL, cfg.Deployment, cfg.APIVersion)
		if strings.TrimSpace(cfg.Deployment) != "" {
			model = strings.TrimSpace(cfg.Deployment)
		}
	}

	return &OpenAISynthesizer{
		endpoint:    endpoint,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		azure:       cfg.Azure,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

// azureEndpoint accepts either a resource endpoint or a full deployment URL.
func azureEndpoint(baseURL, deployment, apiVersion string) string {
	if strings.Contains(baseURL, "/openai/deployments/") {
		return baseURL
	}
	deployment = strings.TrimSpace(deployment)
	if deployment == "" {
		deployment = "gpt-4o-mini"
	}
	apiVersion = strings.TrimSpace(apiVersion)
	if apiVersion == "" {
		apiVersion = "2024-06-01"
	}
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		baseURL, url.PathEscape(deployment), url.QueryEscape(apiVersion))
}

func (s *OpenAISynthesizer) Provider() string {
	if s.azure {
		return ProviderAzure
	}
	return ProviderOpenAI
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req Request) (Outcome, error) {
	body, err := json.Marshal(s.buildPayload(req))
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.azure {
		httpReq.Header.Set("api-key", s.apiKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: request chat completion: %v", classifyTransportError(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: read chat response body: %v", classifyTransportError(err), err)
	}
	if resp.StatusCode >= 400 {
		return Outcome{}, fmt.Errorf("%w: chat completion failed status=%d body=%s", ErrUpstream, resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Outcome{}, fmt.Errorf("%w: decode chat completion response: %v", ErrUpstream, err)
	}
	if len(parsed.Choices) == 0 {
		return Outcome{}, fmt.Errorf("%w: empty chat completion choices", ErrUpstream)
	}

	return interpret(parsed.Choices[0].Message.Content, s.Provider(), s.model), nil
}

func (s *OpenAISynthesizer) buildPayload(req Request) map[string]any {
	payload := map[string]any{
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userContent(req)},
		},
		"temperature": s.temperature,
		"max_tokens":  s.maxTokens,
	}
	if !s.azure {
		payload["model"] = s.model
	}
	return payload
}
