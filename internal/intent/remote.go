package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// RemoteClassifier calls the primary classification service over HTTP. The
// response is validated against the closed intent schema; any parse failure,
// schema violation, transport error, or timeout is reported as an error so the
// caller can run the fallback stage. A failed response is never partially used.
type RemoteClassifier struct {
	config     *RemoteConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// RemoteConfig holds configuration for the remote classifier.
type RemoteConfig struct {
	ServiceURL string        `json:"service_url"` // e.g., "http://localhost:8700"
	APIKey     string        `json:"api_key"`
	Timeout    time.Duration `json:"timeout"`
}

// DefaultRemoteConfig returns sensible defaults.
func DefaultRemoteConfig() *RemoteConfig {
	return &RemoteConfig{
		ServiceURL: "http://localhost:8700",
		Timeout:    4 * time.Second,
	}
}

// NewRemoteClassifier creates the primary-stage classifier client. The client
// is stateless per call and safe for concurrent use across sessions.
func NewRemoteClassifier(config *RemoteConfig, logger zerolog.Logger) *RemoteClassifier {
	if config == nil {
		config = DefaultRemoteConfig()
	}

	return &RemoteClassifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.With().Str("component", "intent-remote").Logger(),
	}
}

// Name returns the provider name.
func (c *RemoteClassifier) Name() string {
	return "intent-remote"
}

type classifyRequest struct {
	Text string `json:"text"`
}

// classifyResponse mirrors the service's loosely-typed JSON output. Confidence
// is a pointer so a missing field is distinguishable from 0.
type classifyResponse struct {
	Intent     string            `json:"intent"`
	Confidence *float64          `json:"confidence"`
	Entities   map[string]string `json:"entities"`
}

// Classify sends text to the classification service and returns a validated
// Result with Source set to primary.
func (c *RemoteClassifier) Classify(ctx context.Context, text string) (*Result, error) {
	payload, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.config.ServiceURL + "/v1/classify"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	var raw classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSchemaValidation, err)
	}

	result, err := validateClassification(&raw)
	if err != nil {
		c.logger.Error().Err(err).Str("intent", raw.Intent).Msg("Classifier response rejected (defect)")
		return nil, err
	}

	c.logger.Debug().
		Str("intent", string(result.Intent)).
		Float64("confidence", result.Confidence).
		Msg("Primary classification accepted")

	return result, nil
}

// validateClassification converts the raw service response into a Result,
// enforcing the closed intent set, the [0,1] confidence range, and the
// per-intent entity key whitelist. Any violation rejects the whole response.
func validateClassification(raw *classifyResponse) (*Result, error) {
	in := Intent(raw.Intent)
	if !in.Valid() {
		return nil, fmt.Errorf("%w: intent %q not in closed set", ErrSchemaValidation, raw.Intent)
	}

	if raw.Confidence == nil {
		return nil, fmt.Errorf("%w: missing confidence", ErrSchemaValidation)
	}
	confidence := *raw.Confidence
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", ErrSchemaValidation, confidence)
	}

	var entities map[string]string
	if len(raw.Entities) > 0 {
		allowed := AllowedEntities(in)
		entities = make(map[string]string, len(raw.Entities))
		for key, value := range raw.Entities {
			if !containsKey(allowed, key) {
				return nil, fmt.Errorf("%w: entity %q not allowed for intent %q", ErrSchemaValidation, key, in)
			}
			entities[key] = value
		}
	}

	return &Result{
		Intent:     in,
		Confidence: confidence,
		Entities:   entities,
		Source:     SourcePrimary,
	}, nil
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// Health checks if the classification service is reachable.
func (c *RemoteClassifier) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.ServiceURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("classification service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("classification service unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}
