// Package speech provides the continuous speech-recognition source that feeds
// the wake-word listener: a stream of interim and final transcript fragments.
package speech

import (
	"context"
	"errors"
	"time"
)

// Terminal capability errors. Neither is retried by the pipeline; the session
// surfaces them and stops until the environment changes.
var (
	ErrUnsupported      = errors.New("speech recognition not supported")
	ErrPermissionDenied = errors.New("microphone permission denied")
)

// Fragment is one partial or final transcription result from the continuous
// recognition stream.
type Fragment struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	IsFinal    bool      `json:"is_final"`
	Timestamp  time.Time `json:"timestamp"`
}

// Recognizer is a continuous speech-recognition source. Fragments starts the
// stream and delivers results until ctx is cancelled or Close is called. A
// capability or permission failure is reported as ErrUnsupported or
// ErrPermissionDenied from Fragments, never retried internally.
type Recognizer interface {
	Fragments(ctx context.Context) (<-chan Fragment, error)
	Close() error
}
