// Package stt provides the speech-to-text contract the pipeline consumes.
package stt

import (
	"context"
	"errors"
)

// MaxAudioBytes bounds the payload accepted by Transcribe. 16kHz mono 16-bit
// for the 15s capture cap is under 500KB; 2MB leaves generous headroom.
const MaxAudioBytes = 2 << 20

// Common errors
var (
	ErrProviderUnavailable = errors.New("transcription provider unavailable")
	ErrAudioEmpty          = errors.New("audio payload is empty")
	ErrAudioTooLarge       = errors.New("audio exceeds maximum size")
	ErrTimeout             = errors.New("transcription timeout")
)

// Transcriber converts a finite audio payload to text. Implementations are
// stateless per call and safe for concurrent use across sessions.
type Transcriber interface {
	// Name returns the provider identifier (e.g., "stt-http")
	Name() string

	// Transcribe converts audio to text
	Transcribe(ctx context.Context, req *Request) (*Response, error)

	// Health checks if the provider is available
	Health(ctx context.Context) error
}

// Request represents a transcription request
type Request struct {
	Audio      []byte `json:"-"`                  // Raw audio data
	Format     string `json:"format,omitempty"`   // Declared encoding (wav, pcm)
	SampleRate int    `json:"sample_rate"`        // Sample rate in Hz
	Channels   int    `json:"channels"`           // Number of channels
	Language   string `json:"language,omitempty"` // Language code (e.g., "en")
}

// Validate enforces the payload bounds before any provider call.
func (r *Request) Validate() error {
	if len(r.Audio) == 0 {
		return ErrAudioEmpty
	}
	if len(r.Audio) > MaxAudioBytes {
		return ErrAudioTooLarge
	}
	return nil
}

// Response represents a transcription result
type Response struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"` // 0 when the provider omits it
	Language   string  `json:"language,omitempty"`
}
