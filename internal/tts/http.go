package tts

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

// HTTPSynthesizer synthesizes speech via an HTTP service and plays the result
// through an injected Player. Each Speak call returns a cancellable handle.
type HTTPSynthesizer struct {
	config     *HTTPConfig
	httpClient *http.Client
	player     Player
	logger     zerolog.Logger
}

// HTTPConfig holds configuration for the HTTP synthesis provider
type HTTPConfig struct {
	ServiceURL string        `json:"service_url"` // e.g., "http://localhost:8880"
	APIKey     string        `json:"api_key"`
	VoiceID    string        `json:"voice_id"`
	Speed      float64       `json:"speed"`
	Format     string        `json:"format"`
	Timeout    time.Duration `json:"timeout"`
}

// DefaultHTTPConfig returns sensible defaults
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		ServiceURL: "http://localhost:8880",
		VoiceID:    "nova",
		Speed:      1.0,
		Format:     "wav",
		Timeout:    20 * time.Second,
	}
}

// NewHTTPSynthesizer creates a new HTTP synthesis provider. player renders
// the returned audio; a nil player discards audio (useful in tests).
func NewHTTPSynthesizer(config *HTTPConfig, player Player, logger zerolog.Logger) *HTTPSynthesizer {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if player == nil {
		player = func(ctx context.Context, audio []byte, format string) error { return nil }
	}

	return &HTTPSynthesizer{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		player: player,
		logger: logger.With().Str("provider", "tts-http").Logger(),
	}
}

// Name returns the provider identifier
func (s *HTTPSynthesizer) Name() string {
	return "tts-http"
}

type synthesizeRequest struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed,omitempty"`
	Format  string  `json:"format,omitempty"`
}

// Speak synthesizes text and starts playback. The returned handle completes
// when playback ends; Cancel stops it mid-playback for barge-in.
func (s *HTTPSynthesizer) Speak(ctx context.Context, req *SpeakRequest) (Playback, error) {
	if len(req.Text) > MaxTextLength {
		return nil, ErrTextTooLong
	}

	audio, err := s.synthesize(ctx, req)
	if err != nil {
		return nil, err
	}

	playCtx, cancel := context.WithCancel(ctx)
	handle := &playbackHandle{
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(handle.done)
		defer cancel()
		if err := s.player(playCtx, audio, s.config.Format); err != nil {
			handle.err = err
			if !errors.Is(err, context.Canceled) {
				s.logger.Warn().Err(err).Msg("Playback failed")
			}
		}
	}()

	return handle, nil
}

func (s *HTTPSynthesizer) synthesize(ctx context.Context, req *SpeakRequest) ([]byte, error) {
	startTime := time.Now()

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = s.config.VoiceID
	}
	speed := req.Speed
	if speed == 0 {
		speed = s.config.Speed
	}

	payload, err := json.Marshal(synthesizeRequest{
		Text:    req.Text,
		VoiceID: voiceID,
		Speed:   speed,
		Format:  s.config.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := s.config.ServiceURL + "/tts"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.httpClient.Do(httpReq)
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

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	s.logger.Debug().
		Int("bytes", len(audio)).
		Dur("processing_time", time.Since(startTime)).
		Msg("Synthesis complete")

	return audio, nil
}

// Health checks if the synthesis service is available
func (s *HTTPSynthesizer) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.ServiceURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("synthesis service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("synthesis service unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// playbackHandle implements Playback for an in-flight playback goroutine.
type playbackHandle struct {
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

func (h *playbackHandle) Done() <-chan struct{} { return h.done }
func (h *playbackHandle) Cancel()               { h.cancel() }
func (h *playbackHandle) Err() error            { <-h.done; return h.err }
