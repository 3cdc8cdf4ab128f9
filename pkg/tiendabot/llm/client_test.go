package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

type capturedRequest struct {
	Path   string
	Auth   string
	Model  string
	Parsed struct {
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
}

func newTestServer(t *testing.T, status int, body string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			captured.Path = r.URL.Path
			captured.Auth = r.Header.Get("Authorization")
			var raw struct {
				Model string `json:"model"`
			}
			payload, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(payload, &raw)
			_ = json.Unmarshal(payload, &captured.Parsed)
			captured.Model = raw.Model
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okBody = `{"choices":[{"message":{"content":"  Hay 3 kilos de frijol.  "},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`

func TestComplete(t *testing.T) {
	var got capturedRequest
	srv := newTestServer(t, http.StatusOK, okBody, &got)

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "sk-test", Model: "test-model"}, Config{}, nil)
	reply, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "Eres un asistente"},
		{Role: RoleUser, Content: "¿cuánto frijol hay?"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "Hay 3 kilos de frijol." {
		t.Errorf("reply = %q", reply)
	}
	if got.Path != "/chat/completions" {
		t.Errorf("path = %q", got.Path)
	}
	if got.Auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got.Auth)
	}
	if got.Model != "test-model" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Parsed.Messages) != 2 || got.Parsed.Messages[0].Role != "system" || got.Parsed.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", got.Parsed.Messages)
	}
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, ErrorAuth},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, ErrorRateLimit},
		{"quota", http.StatusForbidden, `{"error":{"code":"insufficient_quota"}}`, ErrorBilling},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"invalid model"}}`, ErrorBadRequest},
		{"server", http.StatusBadGateway, `upstream down`, ErrorServer},
		{"malformed body", http.StatusOK, `not json`, ErrorMalformed},
		{"no choices", http.StatusOK, `{"choices":[]}`, ErrorMalformed},
		{"error in 200 body", http.StatusOK, `{"error":{"message":"rate limit reached"}}`, ErrorRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, tt.body, nil)
			c := NewClient(Config{BaseURL: srv.URL, Model: "m"}, Config{}, nil)

			_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hola"}})
			var upErr *UpstreamError
			if !errors.As(err, &upErr) {
				t.Fatalf("error = %v, want *UpstreamError", err)
			}
			if upErr.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", upErr.Kind, tt.wantKind)
			}
		})
	}
}

func TestComplete_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url, Model: "m"}, Config{}, nil)
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hola"}})
	var upErr *UpstreamError
	if !errors.As(err, &upErr) || upErr.Kind != ErrorNetwork {
		t.Fatalf("error = %v, want network UpstreamError", err)
	}
	if upErr.Unwrap() == nil {
		t.Error("network error should carry a cause")
	}
}

func TestComplete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "m", Timeout: 50 * time.Millisecond}, Config{}, nil)
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hola"}})
	var upErr *UpstreamError
	if !errors.As(err, &upErr) || upErr.Kind != ErrorNetwork {
		t.Fatalf("error = %v, want network UpstreamError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error chain should include DeadlineExceeded: %v", err)
	}
}

func TestComplete_MessageOrder(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:0", Model: "m"}, Config{}, nil)

	tests := []struct {
		name     string
		messages []Message
	}{
		{"empty", nil},
		{"system after user", []Message{{Role: RoleUser, Content: "a"}, {Role: RoleSystem, Content: "b"}}},
		{"unknown role", []Message{{Role: "assistant", Content: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Complete(context.Background(), tt.messages)
			var upErr *UpstreamError
			if !errors.As(err, &upErr) || upErr.Kind != ErrorBadRequest {
				t.Errorf("error = %v, want bad_request UpstreamError", err)
			}
		})
	}
}

func TestDescribeImage(t *testing.T) {
	var got capturedRequest
	srv := newTestServer(t, http.StatusOK, okBody, &got)

	path := filepath.Join(t.TempDir(), "image_1.png")
	png := []byte("\x89PNG\r\n\x1a\n0000")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewClient(
		Config{BaseURL: "http://chat.invalid", APIKey: "chat-key", Model: "chat-model"},
		Config{BaseURL: srv.URL, Model: "vision-model"},
		nil,
	)
	if _, err := c.DescribeImage(context.Background(), "Leer el ticket", path); err != nil {
		t.Fatalf("DescribeImage() error = %v", err)
	}

	if got.Model != "vision-model" {
		t.Errorf("model = %q, want vision-model", got.Model)
	}
	if got.Auth != "Bearer chat-key" {
		t.Errorf("vision should inherit the chat key, Authorization = %q", got.Auth)
	}
	if len(got.Parsed.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(got.Parsed.Messages))
	}

	var parts []contentPart
	if err := json.Unmarshal(got.Parsed.Messages[0].Content, &parts); err != nil {
		t.Fatalf("content is not a part list: %v", err)
	}
	if len(parts) != 2 || parts[0].Text != "Leer el ticket" || parts[1].ImageURL == nil {
		t.Fatalf("parts = %+v", parts)
	}
	if !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("image url = %q", parts[1].ImageURL.URL[:40])
	}
}

func TestDescribeImage_MissingFile(t *testing.T) {
	c := NewClient(Config{Model: "m"}, Config{}, nil)
	_, err := c.DescribeImage(context.Background(), "x", filepath.Join(t.TempDir(), "nope.jpeg"))
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error chain should include ErrNotExist: %v", err)
	}
}

func TestUpstreamError_BodyKeepsValidUTF8(t *testing.T) {
	body := strings.Repeat("a", 199) + "ñandú"
	err := &UpstreamError{Kind: ErrorServer, StatusCode: 500, Body: body}
	msg := err.Error()
	if !utf8.ValidString(msg) {
		t.Fatalf("Error() is not valid UTF-8: %q", msg)
	}
	if !strings.HasSuffix(msg, strings.Repeat("a", 199)+"...") {
		t.Errorf("Error() = %q, want body cut before the split rune", msg)
	}
}
