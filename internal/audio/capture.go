package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Source is an exclusive microphone stream. Chunks acquires the device and
// starts delivering audio; Close releases it. A Source belongs to exactly one
// capture at a time.
type Source interface {
	Chunks(ctx context.Context) (<-chan Chunk, error)
	Close() error
}

// SourceFactory opens a fresh Source for one capture.
type SourceFactory func() (Source, error)

// Capturer records one bounded utterance per Capture call. Recording stops on
// end-of-speech, on the configured maximum duration, or on context
// cancellation; the microphone source is released on every exit path.
type Capturer struct {
	config  *CaptureConfig
	sources SourceFactory
	logger  zerolog.Logger
}

// NewCapturer creates a capturer that records from sources.
func NewCapturer(config *CaptureConfig, sources SourceFactory, logger zerolog.Logger) *Capturer {
	if config == nil {
		config = DefaultCaptureConfig()
	}

	return &Capturer{
		config:  config,
		sources: sources,
		logger:  logger.With().Str("component", "capture").Logger(),
	}
}

// Capture records a single utterance. Leading silence is discarded; recording
// ends when the VAD reports end of speech after speech was heard, when
// MaxDuration elapses, or when ctx is cancelled. Captures shorter than
// MinDuration return ErrEmptyCapture instead of a segment.
func (c *Capturer) Capture(ctx context.Context) (*Segment, error) {
	src, err := c.sources()
	if err != nil {
		return nil, fmt.Errorf("open audio source: %w", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(ctx, c.config.MaxDuration)
	defer cancel()

	chunks, err := src.Chunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("start audio stream: %w", err)
	}

	vad := NewVAD(c.config.VAD)
	start := time.Now()

	var (
		buf         []byte
		speechHeard bool
		speechStart time.Time
		captured    time.Duration
	)

	c.logger.Debug().Msg("Capture started")

loop:
	for {
		select {
		case <-ctx.Done():
			// Max duration elapsed or the cycle was cancelled. A parent
			// cancellation aborts the capture outright.
			if ctx.Err() == context.Canceled {
				c.logger.Debug().Msg("Capture cancelled")
				return nil, ctx.Err()
			}
			break loop

		case chunk, ok := <-chunks:
			if !ok {
				break loop
			}

			res := vad.Process(chunk.Data, c.config.BitDepth)
			if res.IsSpeech {
				if !speechHeard {
					speechHeard = true
					speechStart = chunk.Timestamp
					c.logger.Debug().Float64("rms", res.RMS).Msg("Speech started")
				}
				buf = append(buf, chunk.Data...)
				captured += chunk.Duration
			} else if speechHeard {
				// End of speech (silence hangover already applied by the VAD)
				break loop
			}
		}
	}

	if !speechHeard || captured < c.config.MinDuration {
		c.logger.Debug().
			Dur("captured", captured).
			Dur("min", c.config.MinDuration).
			Msg("Capture below minimum duration")
		return nil, ErrEmptyCapture
	}

	end := time.Now()
	c.logger.Info().
		Dur("duration", captured).
		Int("bytes", len(buf)).
		Dur("elapsed", end.Sub(start)).
		Msg("Capture complete")

	return &Segment{
		Audio:      buf,
		Format:     FormatPCM,
		SampleRate: c.config.SampleRate,
		Channels:   c.config.Channels,
		Duration:   captured,
		StartTime:  speechStart,
		EndTime:    end,
	}, nil
}
