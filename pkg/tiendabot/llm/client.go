// Package llm is the gateway to the external text-completion and vision
// services. Both use the OpenAI-compatible chat completions format, which works
// with OpenAI, Gemini's OpenAI endpoint, OpenRouter, Ollama and similar.
//
// Calls are single-shot: there is no retry, no fallback model and no
// conversation memory. Every failure is an *UpstreamError.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Roles accepted in a completion request.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one entry of a completion request.
type Message struct {
	Role    string
	Content string
}

// Config configures an OpenAI-compatible endpoint.
type Config struct {
	// BaseURL is the API base URL, e.g. https://api.openai.com/v1.
	BaseURL string `yaml:"base_url"`

	// APIKey is the bearer token. Usually ${TIENDABOT_API_KEY}.
	APIKey string `yaml:"api_key"`

	// Model is the model name sent with every request.
	Model string `yaml:"model"`

	// Timeout bounds a whole request. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig targets OpenAI.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	}
}

// Client calls the chat endpoint for text and the vision endpoint for images.
type Client struct {
	chat       Config
	vision     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client. Empty vision fields inherit the chat settings.
func NewClient(chat, vision Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if chat.BaseURL == "" {
		chat.BaseURL = DefaultConfig().BaseURL
	}
	chat.BaseURL = strings.TrimRight(chat.BaseURL, "/")

	if vision.BaseURL == "" {
		vision.BaseURL = chat.BaseURL
	}
	vision.BaseURL = strings.TrimRight(vision.BaseURL, "/")
	if vision.APIKey == "" {
		vision.APIKey = chat.APIKey
	}
	if vision.Model == "" {
		vision.Model = chat.Model
	}
	if vision.Timeout == 0 {
		vision.Timeout = chat.Timeout
	}

	return &Client{
		chat:   chat,
		vision: vision,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     120 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: logger.With("component", "llm"),
	}
}

// ---------- Wire Types (OpenAI-compatible) ----------

// contentPart is one part of multimodal content.
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// chatMessage's Content is a string or []contentPart.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ---------- Public Methods ----------

// Complete sends messages in order and returns the reply text.
// A system message, if present, must come before every user message.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := validateOrder(messages); err != nil {
		return "", &UpstreamError{Kind: ErrorBadRequest, Model: c.chat.Model, Cause: err}
	}

	wire := make([]chatMessage, len(messages))
	for i, m := range messages {
		wire[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	return c.completeOnce(ctx, c.chat, wire)
}

// DescribeImage sends the image at localPath with instruction to the vision
// model and returns its description.
func (c *Client) DescribeImage(ctx context.Context, instruction, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", &UpstreamError{Kind: ErrorBadRequest, Model: c.vision.Model, Cause: fmt.Errorf("reading image: %w", err)}
	}

	mimeType := imageMimeType(localPath, data)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	parts := []contentPart{
		{Type: "text", Text: instruction},
		{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
	}
	messages := []chatMessage{{Role: RoleUser, Content: parts}}

	return c.completeOnce(ctx, c.vision, messages)
}

// ---------- Internal ----------

func validateOrder(messages []Message) error {
	if len(messages) == 0 {
		return errors.New("no messages")
	}
	seenUser := false
	for i, m := range messages {
		switch m.Role {
		case RoleSystem:
			if seenUser {
				return fmt.Errorf("system message at index %d follows a user message", i)
			}
		case RoleUser:
			seenUser = true
		default:
			return fmt.Errorf("unsupported role %q at index %d", m.Role, i)
		}
	}
	return nil
}

func (c *Client) completeOnce(ctx context.Context, cfg Config, messages []chatMessage) (string, error) {
	bodyBytes, err := json.Marshal(chatRequest{Model: cfg.Model, Messages: messages})
	if err != nil {
		return "", &UpstreamError{Kind: ErrorBadRequest, Model: cfg.Model, Cause: fmt.Errorf("marshaling request: %w", err)}
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	endpoint := cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", &UpstreamError{Kind: ErrorBadRequest, Model: cfg.Model, Cause: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	c.logger.Debug("sending chat completion",
		"model", cfg.Model,
		"messages", len(messages),
		"endpoint", endpoint,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamError{Kind: ErrorNetwork, Model: cfg.Model, Cause: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UpstreamError{Kind: ErrorNetwork, StatusCode: resp.StatusCode, Model: cfg.Model, Cause: fmt.Errorf("reading response: %w", err)}
	}
	bodyStr := string(respBody)

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("API error",
			"model", cfg.Model,
			"status", resp.StatusCode,
			"body", truncate(bodyStr, 500),
		)
		return "", &UpstreamError{
			Kind:       classifyStatus(resp.StatusCode, bodyStr),
			StatusCode: resp.StatusCode,
			Model:      cfg.Model,
			Body:       bodyStr,
		}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", &UpstreamError{Kind: ErrorMalformed, StatusCode: resp.StatusCode, Model: cfg.Model, Cause: fmt.Errorf("parsing response: %w", err)}
	}
	if chatResp.Error != nil {
		return "", &UpstreamError{
			Kind:       classifyStatus(resp.StatusCode, chatResp.Error.Message),
			StatusCode: resp.StatusCode,
			Model:      cfg.Model,
			Body:       chatResp.Error.Message,
		}
	}
	if len(chatResp.Choices) == 0 {
		return "", &UpstreamError{Kind: ErrorMalformed, StatusCode: resp.StatusCode, Model: cfg.Model, Cause: errors.New("no response from model")}
	}

	choice := chatResp.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)

	c.logger.Info("chat completion done",
		"model", cfg.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", chatResp.Usage.PromptTokens,
		"completion_tokens", chatResp.Usage.CompletionTokens,
		"finish_reason", choice.FinishReason,
	)

	return content, nil
}

// imageMimeType guesses the MIME type from the extension, then the content.
func imageMimeType(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "image/") {
		return t
	}
	if t := http.DetectContentType(data); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/jpeg"
}
