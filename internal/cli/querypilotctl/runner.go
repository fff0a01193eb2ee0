package querypilotctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type request struct {
	method string
	path   string
	body   any
	public bool
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("querypilotctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "querypilot API base URL")
	token := fs.String("token", defaults.Token, "bearer token from login")
	limit := fs.Int("limit", 0, "row limit for run (0 runs the statement as written)")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	req, err := buildRequest(command, rest, *limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}
	if !req.public && strings.TrimSpace(*token) == "" {
		_, _ = fmt.Fprintln(stderr, "command requires -token (or QUERYPILOT_TOKEN); run login first")
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req, endpoint, *token)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildRequest(command string, args []string, limit int) (request, error) {
	text := strings.TrimSpace(strings.Join(args, " "))
	switch command {
	case "health":
		return request{method: http.MethodGet, path: "/health", public: true}, nil
	case "ready":
		return request{method: http.MethodGet, path: "/ready", public: true}, nil
	case "login":
		if len(args) != 2 {
			return request{}, fmt.Errorf("login expects <username> <password>")
		}
		return request{
			method: http.MethodPost,
			path:   "/auth/login",
			body:   map[string]string{"username": args[0], "password": args[1]},
			public: true,
		}, nil
	case "generate":
		if text == "" {
			return request{}, fmt.Errorf("generate expects a prompt")
		}
		return request{method: http.MethodPost, path: "/api/generate-sql", body: map[string]string{"prompt": text}}, nil
	case "run":
		if text == "" {
			return request{}, fmt.Errorf("run expects a SQL statement")
		}
		body := map[string]any{"sql": text}
		if limit > 0 {
			body["limit"] = limit
		}
		return request{method: http.MethodPost, path: "/api/run-query", body: body}, nil
	case "history":
		return request{method: http.MethodGet, path: "/api/chat-history"}, nil
	case "sessions":
		return request{method: http.MethodGet, path: "/api/chat-sessions"}, nil
	case "session":
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil || id <= 0 {
			return request{}, fmt.Errorf("session expects a numeric id")
		}
		return request{method: http.MethodGet, path: "/api/chat-session/" + strconv.FormatInt(id, 10)}, nil
	case "logs":
		return request{method: http.MethodGet, path: "/api/query-logs"}, nil
	case "users":
		return request{method: http.MethodGet, path: "/api/admin/users"}, nil
	default:
		return request{}, fmt.Errorf("unknown command %q", command)
	}
}

func doRequest(ctx context.Context, client *http.Client, spec request, url, token string) (int, []byte, error) {
	var body io.Reader
	if spec.body != nil {
		encoded, err := json.Marshal(spec.body)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, spec.method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if spec.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !spec.public && strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: querypilotctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                    GET /health")
	_, _ = fmt.Fprintln(w, "  ready                     GET /ready")
	_, _ = fmt.Fprintln(w, "  login <user> <password>   POST /auth/login")
	_, _ = fmt.Fprintln(w, "  generate <prompt>         POST /api/generate-sql")
	_, _ = fmt.Fprintln(w, "  run <sql>                 POST /api/run-query (see -limit)")
	_, _ = fmt.Fprintln(w, "  history                   GET /api/chat-history")
	_, _ = fmt.Fprintln(w, "  sessions                  GET /api/chat-sessions")
	_, _ = fmt.Fprintln(w, "  session <id>              GET /api/chat-session/{id}")
	_, _ = fmt.Fprintln(w, "  logs                      GET /api/query-logs")
	_, _ = fmt.Fprintln(w, "  users                     GET /api/admin/users")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
