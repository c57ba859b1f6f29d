// Package audio provides microphone capture and voice activity detection for
// the command pipeline.
package audio

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrDeviceNotFound    = errors.New("audio device not found")
	ErrCaptureNotStarted = errors.New("capture not started")
	ErrEmptyCapture      = errors.New("capture produced no usable audio")
	ErrInvalidFormat     = errors.New("invalid audio format")
)

// Format represents audio encoding format
type Format string

const (
	FormatWAV  Format = "wav"
	FormatPCM  Format = "pcm"
	FormatOpus Format = "opus"
)

// Chunk represents a chunk of captured audio data
type Chunk struct {
	Data       []byte        `json:"data"`        // Raw audio bytes
	Format     Format        `json:"format"`      // Audio format
	SampleRate int           `json:"sample_rate"` // Sample rate in Hz
	Channels   int           `json:"channels"`    // Number of channels
	Duration   time.Duration `json:"duration"`    // Duration of this chunk
	Timestamp  time.Time     `json:"timestamp"`   // When this chunk was captured
}

// Segment is one complete recorded utterance.
type Segment struct {
	Audio      []byte        `json:"audio"`
	Format     Format        `json:"format"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Duration   time.Duration `json:"duration"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
}

// VADResult represents the result of voice activity detection
type VADResult struct {
	IsSpeech   bool    `json:"is_speech"`
	Confidence float64 `json:"confidence"`
	RMS        float64 `json:"rms"`
}

// CaptureConfig holds capture configuration
type CaptureConfig struct {
	SampleRate  int           `json:"sample_rate"`  // Default: 16000 Hz
	Channels    int           `json:"channels"`     // Default: 1 (mono)
	BitDepth    int           `json:"bit_depth"`    // Default: 16
	MaxDuration time.Duration `json:"max_duration"` // Hard cap on one utterance
	MinDuration time.Duration `json:"min_duration"` // Below this the capture is empty
	VAD         *VADConfig    `json:"vad"`
}

// DefaultCaptureConfig returns sensible defaults
func DefaultCaptureConfig() *CaptureConfig {
	return &CaptureConfig{
		SampleRate:  16000,
		Channels:    1,
		BitDepth:    16,
		MaxDuration: 15 * time.Second,
		MinDuration: 300 * time.Millisecond,
		VAD:         DefaultVADConfig(),
	}
}
