// Package oracle talks to an OpenAI-compatible chat completions endpoint and
// turns its replies into execution plans and per-subtask commands. Everything
// above this package treats the model as a black box that either answers well,
// answers malformed, or fails transiently.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"termpilot/internal/logging"
	"termpilot/internal/retry"
)

// Message is one chat turn sent to or received from the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the minimal surface the planner and generator need.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// HTTPClient speaks the chat completions protocol over plain HTTP.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	retryCfg   retry.Config
	logger     *logging.Logger
}

// NewHTTPClient builds a client for the given endpoint. baseURL is the API
// root without the /chat/completions suffix.
func NewHTTPClient(baseURL, apiKey, model string, requestTimeout time.Duration) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		retryCfg:   retry.DefaultConfig(),
		logger:     logging.NewComponentLogger("Oracle"),
	}
}

// SetHTTPClient swaps the underlying transport, mainly for tests.
func (c *HTTPClient) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// Chat sends the messages and returns the first choice's content. Transient
// failures (network errors, 429, 5xx) are retried with backoff; anything else
// surfaces immediately.
func (c *HTTPClient) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("chat requires at least one message")
	}

	return retry.WithResult(ctx, c.retryCfg, func(ctx context.Context) (string, error) {
		return c.chatOnce(ctx, messages)
	})
}

func (c *HTTPClient) chatOnce(ctx context.Context, messages []Message) (string, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.2,
		MaxTokens:   2048,
		Stream:      false,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", &retry.Permanent{Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", &retry.Permanent{Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &retry.Transient{Err: fmt.Errorf("http request failed: %w", err)}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("closing response body: %v", cerr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &retry.Transient{Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("chat completions status %d: %s", resp.StatusCode, truncateBody(body))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", &retry.Transient{Err: err}
		}
		return "", &retry.Permanent{Err: err}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", &retry.Permanent{Err: fmt.Errorf("decode response: %w", err)}
	}
	if chatResp.Error != nil {
		return "", &retry.Permanent{Err: fmt.Errorf("api error: %s", chatResp.Error.Message)}
	}
	if len(chatResp.Choices) == 0 {
		return "", &retry.Permanent{Err: fmt.Errorf("response contained no choices")}
	}

	return chatResp.Choices[0].Message.Content, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := string(body)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
