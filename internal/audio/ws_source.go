package audio

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSSource streams microphone audio from the local audio gateway over a
// WebSocket. Audio I/O happens in the gateway process; this side only
// receives PCM frames and hands them to the capture loop as chunks.
type WSSource struct {
	config *WSSourceConfig
	logger zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// WSSourceConfig configures the gateway connection.
type WSSourceConfig struct {
	GatewayURL string
	SampleRate int
	Channels   int
	// ChunkDuration is how much audio one gateway frame carries.
	ChunkDuration time.Duration
	DialTimeout   time.Duration
}

// DefaultWSSourceConfig returns sensible defaults
func DefaultWSSourceConfig() *WSSourceConfig {
	return &WSSourceConfig{
		GatewayURL:    "ws://localhost:8820/audio",
		SampleRate:    16000,
		Channels:      1,
		ChunkDuration: 100 * time.Millisecond,
		DialTimeout:   5 * time.Second,
	}
}

// NewWSSource dials the audio gateway. The connection stays open until
// Close; each Chunks call starts a fresh read loop.
func NewWSSource(config *WSSourceConfig, logger zerolog.Logger) (*WSSource, error) {
	if config == nil {
		config = DefaultWSSourceConfig()
	}

	dialer := websocket.Dialer{HandshakeTimeout: config.DialTimeout}
	conn, resp, err := dialer.Dial(config.GatewayURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("audio gateway at %s: %w", config.GatewayURL, ErrDeviceNotFound)
		}
		return nil, fmt.Errorf("dial audio gateway: %w", err)
	}

	return &WSSource{
		config: config,
		logger: logger.With().Str("component", "audio_source").Logger(),
		conn:   conn,
	}, nil
}

// Chunks starts streaming audio frames from the gateway. The returned
// channel closes when the context is cancelled, the source is closed, or
// the gateway disconnects.
func (s *WSSource) Chunks(ctx context.Context) (<-chan Chunk, error) {
	s.mu.Lock()
	if s.closed || s.conn == nil {
		s.mu.Unlock()
		return nil, ErrCaptureNotStarted
	}
	conn := s.conn
	s.mu.Unlock()

	out := make(chan Chunk, 16)

	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(s.config.ChunkDuration * 50))
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && !s.isClosed() {
					s.logger.Warn().Err(err).Msg("Audio gateway read failed")
				}
				return
			}
			if msgType != websocket.BinaryMessage || len(data) == 0 {
				continue
			}

			chunk := Chunk{
				Data:       data,
				Format:     FormatPCM,
				SampleRate: s.config.SampleRate,
				Channels:   s.config.Channels,
				Duration:   pcmDuration(len(data), s.config.SampleRate, s.config.Channels),
				Timestamp:  time.Now(),
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close shuts the gateway connection down.
func (s *WSSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *WSSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// pcmDuration converts a 16-bit PCM byte count to wall time.
func pcmDuration(byteLen, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := byteLen / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
