package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSRecognizer streams recognition results from a WebSocket endpoint that
// emits interim and final transcript fragments as JSON frames.
type WSRecognizer struct {
	config *WSConfig
	logger zerolog.Logger

	conn        *websocket.Conn
	connMu      sync.Mutex
	isConnected bool
}

// WSConfig holds configuration for the WebSocket recognizer
type WSConfig struct {
	Endpoint       string        `json:"endpoint"` // e.g., "ws://localhost:8810/listen"
	APIKey         string        `json:"api_key"`
	Language       string        `json:"language"`
	SampleRate     int           `json:"sample_rate"`
	Encoding       string        `json:"encoding"`
	InterimResults bool          `json:"interim_results"`
	DialTimeout    time.Duration `json:"dial_timeout"`
}

// DefaultWSConfig returns sensible defaults
func DefaultWSConfig() *WSConfig {
	return &WSConfig{
		Endpoint:       "ws://localhost:8810/listen",
		Language:       "en-US",
		SampleRate:     16000,
		Encoding:       "linear16",
		InterimResults: true,
		DialTimeout:    10 * time.Second,
	}
}

// NewWSRecognizer creates a WebSocket-backed recognition source.
func NewWSRecognizer(config *WSConfig, logger zerolog.Logger) *WSRecognizer {
	if config == nil {
		config = DefaultWSConfig()
	}

	return &WSRecognizer{
		config: config,
		logger: logger.With().Str("component", "speech-ws").Logger(),
	}
}

// recognitionFrame mirrors the service's JSON result frames.
type recognitionFrame struct {
	Type       string  `json:"type"` // "result", "error"
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
	Message    string  `json:"message,omitempty"`
}

func (r *WSRecognizer) connect(ctx context.Context) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.isConnected && r.conn != nil {
		return nil
	}

	url := fmt.Sprintf("%s?language=%s&encoding=%s&sample_rate=%d&interim_results=%t",
		r.config.Endpoint,
		r.config.Language,
		r.config.Encoding,
		r.config.SampleRate,
		r.config.InterimResults,
	)

	header := http.Header{}
	if r.config.APIKey != "" {
		header.Set("Authorization", "Token "+r.config.APIKey)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: r.config.DialTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			r.logger.Error().Int("status", resp.StatusCode).Err(err).Msg("Recognition WebSocket connection failed")
			// Capability failures are terminal, not retried.
			switch resp.StatusCode {
			case http.StatusForbidden, http.StatusUnauthorized:
				return fmt.Errorf("%w: status %d", ErrPermissionDenied, resp.StatusCode)
			case http.StatusNotImplemented, http.StatusNotFound:
				return fmt.Errorf("%w: status %d", ErrUnsupported, resp.StatusCode)
			}
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.isConnected = true
	r.logger.Info().Msg("Connected to recognition stream")

	return nil
}

// Fragments connects and starts delivering transcript fragments. The channel
// closes when the stream ends or ctx is cancelled.
func (r *WSRecognizer) Fragments(ctx context.Context) (<-chan Fragment, error) {
	if err := r.connect(ctx); err != nil {
		return nil, err
	}

	out := make(chan Fragment, 32)
	go r.readFrames(ctx, out)

	return out, nil
}

func (r *WSRecognizer) readFrames(ctx context.Context, out chan<- Fragment) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r.connMu.Lock()
		conn := r.conn
		r.connMu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Debug().Msg("Recognition stream closed normally")
				return
			}
			r.logger.Error().Err(err).Msg("Error reading recognition frame")
			return
		}

		var frame recognitionFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			r.logger.Warn().Err(err).Str("message", string(message)).Msg("Failed to parse recognition frame")
			continue
		}

		switch frame.Type {
		case "result":
			if frame.Transcript == "" {
				continue
			}
			fragment := Fragment{
				Text:       frame.Transcript,
				Confidence: frame.Confidence,
				IsFinal:    frame.IsFinal,
				Timestamp:  time.Now(),
			}
			select {
			case out <- fragment:
				r.logger.Debug().
					Str("text", frame.Transcript).
					Bool("final", frame.IsFinal).
					Msg("Transcript fragment")
			default:
				r.logger.Warn().Msg("Fragment channel full, dropping")
			}

		case "error":
			r.logger.Error().Str("message", frame.Message).Msg("Recognition service error")
		}
	}
}

// SendAudio forwards captured audio to the recognition stream.
func (r *WSRecognizer) SendAudio(audio []byte) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if !r.isConnected || r.conn == nil {
		return fmt.Errorf("not connected")
	}

	return r.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Close shuts down the recognition stream.
func (r *WSRecognizer) Close() error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn == nil {
		return nil
	}

	closeMsg := []byte(`{"type": "close"}`)
	if err := r.conn.WriteMessage(websocket.TextMessage, closeMsg); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to send close message")
	}

	err := r.conn.Close()
	r.conn = nil
	r.isConnected = false

	r.logger.Info().Msg("Recognition stream stopped")
	return err
}
