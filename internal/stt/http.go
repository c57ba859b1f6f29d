package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPProvider sends audio to a transcription service over HTTP multipart.
type HTTPProvider struct {
	config     *HTTPConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// HTTPConfig holds configuration for the HTTP transcription provider
type HTTPConfig struct {
	ServiceURL string        `json:"service_url"` // e.g., "http://localhost:8899"
	APIKey     string        `json:"api_key"`
	Timeout    time.Duration `json:"timeout"`
	Language   string        `json:"language"` // Default language (e.g., "en")
}

// DefaultHTTPConfig returns sensible defaults
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		ServiceURL: "http://localhost:8899",
		Timeout:    10 * time.Second,
		Language:   "en",
	}
}

// NewHTTPProvider creates a new HTTP transcription provider
func NewHTTPProvider(config *HTTPConfig, logger zerolog.Logger) *HTTPProvider {
	if config == nil {
		config = DefaultHTTPConfig()
	}

	return &HTTPProvider{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.With().Str("provider", "stt-http").Logger(),
	}
}

// Name returns the provider identifier
func (p *HTTPProvider) Name() string {
	return "stt-http"
}

// Transcribe converts audio to text via the transcription service
func (p *HTTPProvider) Transcribe(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", "audio."+audioExt(req.Format))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	language := req.Language
	if language == "" {
		language = p.config.Language
	}

	url := fmt.Sprintf("%s/stt?language=%s&sample_rate=%d", p.config.ServiceURL, language, req.SampleRate)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	p.logger.Debug().Str("url", url).Int("bytes", len(req.Audio)).Msg("Sending transcription request")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, resp.StatusCode, string(bodyBytes))
	}

	var sttResp struct {
		Text       string  `json:"text"`
		Language   string  `json:"language"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sttResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	p.logger.Info().
		Str("text", sttResp.Text).
		Float64("confidence", sttResp.Confidence).
		Dur("processing_time", time.Since(startTime)).
		Msg("Transcription complete")

	return &Response{
		Text:       sttResp.Text,
		Confidence: sttResp.Confidence,
		Language:   sttResp.Language,
	}, nil
}

// Health checks if the transcription service is available
func (p *HTTPProvider) Health(ctx context.Context) error {
	url := p.config.ServiceURL + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transcription service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transcription service unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

func audioExt(format string) string {
	if format == "" {
		return "wav"
	}
	return format
}
