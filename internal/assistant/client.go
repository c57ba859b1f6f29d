// Package assistant provides the client for the conversational answer
// service that backs general queries.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnavailable indicates the answer service could not be reached.
var ErrUnavailable = errors.New("assistant service unavailable")

// ClientConfig holds configuration for the assistant client.
type ClientConfig struct {
	ServerURL string        `json:"server_url"`
	APIKey    string        `json:"api_key"`
	Timeout   time.Duration `json:"timeout"`
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
	}
}

// Client talks to the answer service. Safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates an assistant client.
func NewClient(config *ClientConfig, logger zerolog.Logger) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.With().Str("component", "assistant").Logger(),
	}
}

type askRequest struct {
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

// Ask sends a question with optional conversation context and returns the
// answer text.
func (c *Client) Ask(ctx context.Context, question, conversationContext, userID string) (string, error) {
	payload, err := json.Marshal(askRequest{
		Question: question,
		Context:  conversationContext,
		UserID:   userID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.ServerURL+"/v1/answer", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var answer askResponse
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(answer.Answer) == "" {
		return "", fmt.Errorf("%w: empty answer", ErrUnavailable)
	}

	return answer.Answer, nil
}

// AskStream asks with server-sent event streaming, invoking onDelta for
// each answer fragment. Returns the full accumulated answer.
func (c *Client) AskStream(ctx context.Context, question, conversationContext, userID string, onDelta func(string)) (string, error) {
	payload, err := json.Marshal(askRequest{
		Question: question,
		Context:  conversationContext,
		UserID:   userID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.ServerURL+"/v1/answer/stream", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var full strings.Builder
	sse := NewSSEReader(resp.Body)
	for {
		if ctx.Err() != nil {
			return full.String(), ctx.Err()
		}

		event, err := sse.ReadEvent()
		if err != nil {
			if err == io.EOF {
				break
			}
			return full.String(), fmt.Errorf("read stream: %w", err)
		}

		switch event.Event {
		case "delta", "message":
			if event.Data == "" {
				continue
			}
			full.WriteString(event.Data)
			if onDelta != nil {
				onDelta(event.Data)
			}
		case "done":
			return full.String(), nil
		case "error":
			return full.String(), fmt.Errorf("%w: %s", ErrUnavailable, event.Data)
		}
	}

	if full.Len() == 0 {
		return "", fmt.Errorf("%w: empty answer", ErrUnavailable)
	}
	return full.String(), nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "assistant"
}

// Health checks if the answer service is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.ServerURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("assistant service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("assistant service unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}
