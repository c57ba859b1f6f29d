// Package tts provides the speech-synthesis contract the pipeline consumes:
// text in, a cancellable playback handle out.
package tts

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("synthesis provider unavailable")
	ErrTextTooLong         = errors.New("text exceeds maximum length")
	ErrTimeout             = errors.New("synthesis timeout")
)

// MaxTextLength bounds a single synthesis request.
const MaxTextLength = 2000

// SpeakRequest represents a synthesis request
type SpeakRequest struct {
	Text    string  `json:"text"`
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed,omitempty"` // 0.5 to 2.0
}

// Playback is an in-flight spoken response. Done closes when playback
// finishes or is cancelled; Cancel stops playback immediately (barge-in).
// After Done closes, Err reports how playback ended: nil for normal
// completion, context.Canceled for barge-in, or the playback failure.
type Playback interface {
	Done() <-chan struct{}
	Cancel()
	Err() error
}

// Synthesizer converts response text to spoken audio. Implementations are
// safe for concurrent use across sessions.
type Synthesizer interface {
	// Name returns the provider identifier (e.g., "tts-http")
	Name() string

	// Speak synthesizes and starts playing text, returning immediately with
	// a handle the caller awaits or cancels.
	Speak(ctx context.Context, req *SpeakRequest) (Playback, error)

	// Health checks if the provider is available
	Health(ctx context.Context) error
}

// Player renders synthesized audio on an output device. It must honor ctx
// cancellation mid-playback.
type Player func(ctx context.Context, audio []byte, format string) error
