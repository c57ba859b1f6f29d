// Package wakeword watches a continuous transcript stream for the trigger
// phrase that arms command capture.
package wakeword

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/normanking/voxassist/internal/speech"
)

// Trigger is emitted when the wake phrase is heard.
type Trigger struct {
	Fragment speech.Fragment
	At       time.Time
}

// Config holds listener configuration.
type Config struct {
	// Phrase is the trigger phrase, matched case-insensitively with
	// normalized whitespace.
	Phrase string `json:"phrase"`
	// Variants are common misheard renderings of the phrase that also
	// trigger ("hey vox" vs "hey fox").
	Variants []string `json:"variants"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Phrase:   "hey vox",
		Variants: []string{"hey fox", "hey box", "a vox", "hey voice"},
	}
}

// Listener consumes interim and final transcript fragments and fires once per
// arming when a normalized fragment contains the trigger phrase. After firing
// it stays disarmed until Arm is called again, so overlapping partial results
// for the same utterance cannot double-trigger.
type Listener struct {
	mu       sync.Mutex
	phrases  []string
	armed    bool
	onTrig   func(Trigger)
	logger   zerolog.Logger
}

// NewListener creates an armed listener that calls onTrigger when the wake
// phrase is heard.
func NewListener(config *Config, onTrigger func(Trigger), logger zerolog.Logger) *Listener {
	if config == nil {
		config = DefaultConfig()
	}

	phrases := make([]string, 0, len(config.Variants)+1)
	phrases = append(phrases, normalize(config.Phrase))
	for _, v := range config.Variants {
		if n := normalize(v); n != "" {
			phrases = append(phrases, n)
		}
	}

	return &Listener{
		phrases: phrases,
		armed:   true,
		onTrig:  onTrigger,
		logger:  logger.With().Str("component", "wakeword").Logger(),
	}
}

// Run consumes the recognizer's fragment stream until ctx is cancelled or the
// stream ends. Capability and permission failures from the recognizer are
// returned as-is; they are terminal and must not be retried here.
func (l *Listener) Run(ctx context.Context, recognizer speech.Recognizer) error {
	fragments, err := recognizer.Fragments(ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("Recognition source unavailable")
		return err
	}

	l.logger.Info().Str("phrase", l.phrases[0]).Msg("Wake word listener running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fragment, ok := <-fragments:
			if !ok {
				l.logger.Info().Msg("Fragment stream ended")
				return nil
			}
			l.Feed(fragment)
		}
	}
}

// Feed checks one fragment against the trigger phrase. Returns true if the
// listener fired. Exposed separately from Run so callers with their own
// stream plumbing can drive the listener directly.
func (l *Listener) Feed(fragment speech.Fragment) bool {
	normalized := normalize(fragment.Text)
	if normalized == "" {
		return false
	}

	l.mu.Lock()
	if !l.armed || !l.matchesLocked(normalized) {
		l.mu.Unlock()
		return false
	}
	// Suspend further triggers until the session re-arms listening.
	l.armed = false
	onTrig := l.onTrig
	l.mu.Unlock()

	l.logger.Info().Str("text", fragment.Text).Msg("Wake word triggered")

	if onTrig != nil {
		onTrig(Trigger{Fragment: fragment, At: time.Now()})
	}
	return true
}

// Arm re-enables triggering. Called when the session returns to listening.
func (l *Listener) Arm() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.armed = true
}

// Armed reports whether the listener will fire on the next match.
func (l *Listener) Armed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.armed
}

// SetPhrase replaces the trigger phrase and variants (config hot reload).
func (l *Listener) SetPhrase(phrase string, variants []string) {
	phrases := make([]string, 0, len(variants)+1)
	if n := normalize(phrase); n != "" {
		phrases = append(phrases, n)
	}
	for _, v := range variants {
		if n := normalize(v); n != "" {
			phrases = append(phrases, n)
		}
	}
	if len(phrases) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.phrases = phrases
}

func (l *Listener) matchesLocked(normalized string) bool {
	for _, p := range l.phrases {
		if strings.Contains(normalized, p) {
			return true
		}
	}
	return false
}

// normalize lowercases, strips punctuation, and collapses whitespace so
// "Hey, Vox!" matches "hey vox".
func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
