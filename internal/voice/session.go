// Package voice coordinates the voice-command pipeline: one Session owns the
// state machine that sequences wake-word trigger, capture, transcription,
// classification, dispatch, and spoken response for a single user.
package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/voxassist/internal/audio"
	"github.com/normanking/voxassist/internal/bus"
	"github.com/normanking/voxassist/internal/dispatch"
	"github.com/normanking/voxassist/internal/intent"
	"github.com/normanking/voxassist/internal/stt"
	"github.com/normanking/voxassist/internal/tts"
	"github.com/normanking/voxassist/internal/wakeword"
)

// State is the session's position in the command cycle.
type State string

const (
	StateIdle         State = "idle"
	StateListening    State = "listening"
	StateCapturing    State = "capturing"
	StateTranscribing State = "transcribing"
	StateClassifying  State = "classifying"
	StateDispatching  State = "dispatching"
	StateSpeaking     State = "speaking"
	StateError        State = "error"
)

// Spoken failure messages. Provider and schema failures never reach the user;
// these cover the failures that do.
const (
	msgTranscribeFailed = "Sorry, I didn't catch that. Please try again."
	msgGenericFailure   = "Sorry, something went wrong. Please try again."
)

// Utterance is one transcribed user command. Immutable once produced.
type Utterance struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Capturer records one bounded utterance.
type Capturer interface {
	Capture(ctx context.Context) (*audio.Segment, error)
}

// Classifier resolves text to an intent. Structurally always succeeds.
type Classifier interface {
	Classify(ctx context.Context, text string) *intent.Result
}

// Dispatcher executes a classified command.
type Dispatcher interface {
	Dispatch(ctx context.Context, res *intent.Result, text, userID, sessionID string) (*dispatch.Result, error)
}

// Config holds session configuration.
type Config struct {
	// WakeWordEnabled selects the initial state: Listening when set, Idle
	// otherwise.
	WakeWordEnabled   bool          `json:"wake_word_enabled"`
	Language          string        `json:"language"`
	TranscribeTimeout time.Duration `json:"transcribe_timeout"`
	SpeakTimeout      time.Duration `json:"speak_timeout"`
	// IdleTimeout is how long a session may sit inactive before its owner
	// should tear it down.
	IdleTimeout time.Duration `json:"idle_timeout"`
	History     HistoryConfig `json:"-"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		WakeWordEnabled:   true,
		Language:          "en",
		TranscribeTimeout: 10 * time.Second,
		SpeakTimeout:      20 * time.Second,
		IdleTimeout:       5 * time.Minute,
		History:           DefaultHistoryConfig(),
	}
}

// Deps are the pipeline collaborators a session drives.
type Deps struct {
	Capturer    Capturer
	Transcriber stt.Transcriber
	Classifier  Classifier
	Dispatcher  Dispatcher
	Synthesizer tts.Synthesizer
	Events      *bus.EventBus
}

// Session is the state machine for one user's voice interaction. At most one
// command cycle is in flight at a time; every cycle carries a sequence number
// and results from a superseded cycle are discarded before they can touch
// session state. All mutation happens through the session's own pipeline.
type Session struct {
	id     string
	userID string

	mu                 sync.Mutex
	state              State
	cycleSeq           uint64
	cycleCancel        context.CancelFunc
	currentUtterance   *Utterance
	lastClassification *intent.Result
	lastResult         *dispatch.Result
	createdAt          time.Time
	lastActivityAt     time.Time
	closed             bool

	deps    Deps
	history *History
	config  *Config
	logger  zerolog.Logger

	// onListening fires whenever the session (re-)enters Listening, so the
	// wake-word listener can re-arm.
	onListening func()
}

// NewSession creates a session in Idle (or Listening if wake-word mode is
// enabled and Start is called).
func NewSession(userID string, deps Deps, config *Config, logger zerolog.Logger) *Session {
	if config == nil {
		config = DefaultConfig()
	}

	now := time.Now()
	return &Session{
		id:             uuid.NewString(),
		userID:         userID,
		state:          StateIdle,
		deps:           deps,
		history:        NewHistory(config.History),
		config:         config,
		logger:         logger.With().Str("component", "session").Str("user", userID).Logger(),
		createdAt:      now,
		lastActivityAt: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastClassification returns the most recent accepted classification.
func (s *Session) LastClassification() *intent.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastClassification
}

// LastResult returns the most recent dispatch outcome.
func (s *Session) LastResult() *dispatch.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// CurrentUtterance returns the utterance of the in-flight or last cycle.
func (s *Session) CurrentUtterance() *Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUtterance
}

// History returns the session's in-memory exchange history.
func (s *Session) History() *History { return s.history }

// LastActivity returns when the session last made progress.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

// IdleExpired reports whether the session has outlived its idle timeout.
func (s *Session) IdleExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivityAt) > s.config.IdleTimeout
}

// SetOnListening registers the re-arm callback invoked whenever the session
// enters Listening.
func (s *Session) SetOnListening(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onListening = fn
}

// Start arms the session. With wake-word mode enabled it enters Listening;
// otherwise it stays Idle until a trigger is delivered explicitly.
func (s *Session) Start() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.config.WakeWordEnabled {
		s.setStateLocked(StateListening)
	} else {
		s.setStateLocked(StateIdle)
	}
	s.mu.Unlock()
	s.rearm()
}

// HandleTrigger reacts to a wake-word trigger. In Listening it starts a new
// command cycle; in any other active state it is barge-in: the in-flight
// stage is cancelled and the session returns to Listening immediately. Late
// results from the cancelled cycle are discarded by the sequence guard.
func (s *Session) HandleTrigger(t wakeword.Trigger) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if s.state != StateListening {
		s.cancelCycleLocked()
		s.setStateLocked(StateListening)
		s.mu.Unlock()
		s.publish(bus.EventTypeWakeTriggered, map[string]any{"session": s.id, "barge_in": true})
		s.publish(bus.EventTypeCancelled, map[string]any{"session": s.id})
		s.rearm()
		return
	}

	s.cycleSeq++
	seq := s.cycleSeq
	ctx, cancel := context.WithCancel(context.Background())
	s.cycleCancel = cancel
	s.setStateLocked(StateCapturing)
	s.mu.Unlock()

	s.publish(bus.EventTypeWakeTriggered, map[string]any{"session": s.id, "barge_in": false})
	s.publish(bus.EventTypeCycleStarted, map[string]any{"session": s.id, "cycle": seq})
	go s.runCycle(ctx, seq)
}

// Stop is the external stop signal: cancel whatever is in flight and return
// to Listening.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cancelCycleLocked()
	s.setStateLocked(StateListening)
	s.mu.Unlock()

	s.publish(bus.EventTypeCancelled, map[string]any{"session": s.id})
	s.rearm()
}

// HandleSourceFailure records a terminal capability failure (recognition
// unsupported or microphone permission denied). The session parks in Error
// until the environment changes; nothing retries internally.
func (s *Session) HandleSourceFailure(err error) {
	s.logger.Error().Err(err).Msg("Speech source failed terminally")
	s.mu.Lock()
	s.cancelCycleLocked()
	s.setStateLocked(StateError)
	s.mu.Unlock()
}

// Close tears the session down: cancels any in-flight cycle and parks in
// Idle. The session cannot be reused afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelCycleLocked()
	s.setStateLocked(StateIdle)
	s.mu.Unlock()
	s.logger.Info().Msg("Session closed")
}

// runCycle drives one command through the pipeline stages. Every state
// mutation is guarded by seq so a superseded cycle cannot overwrite the
// results of a newer one.
func (s *Session) runCycle(ctx context.Context, seq uint64) {
	s.publish(bus.EventTypeCaptureStarted, map[string]any{"session": s.id})
	segment, err := s.deps.Capturer.Capture(ctx)
	if err != nil {
		switch {
		case errors.Is(err, audio.ErrEmptyCapture):
			// Silence: re-arm without bothering the user. The transcriber
			// is never called with an empty payload.
			s.publish(bus.EventTypeCaptureEmpty, map[string]any{"session": s.id})
			s.returnToListening(seq)
		case errors.Is(err, context.Canceled):
			// Superseded; the canceller already moved the state.
		default:
			s.logger.Error().Err(err).Msg("Capture failed")
			s.failCycle(ctx, seq, msgGenericFailure)
		}
		return
	}
	s.publish(bus.EventTypeCaptureDone, map[string]any{"session": s.id, "duration": segment.Duration})

	if !s.advance(seq, StateTranscribing) {
		return
	}
	// From here the wake word can barge in on the rest of the cycle.
	s.rearm()

	text, err := s.transcribe(ctx, segment)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn().Err(err).Msg("Transcription failed")
		s.publish(bus.EventTypeTranscriptFailed, map[string]any{"session": s.id})
		s.failCycle(ctx, seq, msgTranscribeFailed)
		return
	}

	utterance := &Utterance{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Text:      text,
		Timestamp: time.Now(),
	}
	if !s.storeUtterance(seq, utterance) {
		return
	}
	s.publish(bus.EventTypeTranscript, map[string]any{"session": s.id, "text": text})

	if !s.advance(seq, StateClassifying) {
		return
	}
	result := s.deps.Classifier.Classify(ctx, text)
	if ctx.Err() != nil {
		// Cancelled mid-call; discard the late result.
		return
	}
	if !s.storeClassification(seq, result) {
		return
	}
	s.publish(bus.EventTypeClassified, map[string]any{
		"session":    s.id,
		"intent":     string(result.Intent),
		"confidence": result.Confidence,
		"source":     string(result.Source),
	})

	if !s.advance(seq, StateDispatching) {
		return
	}
	actionResult, err := s.deps.Dispatcher.Dispatch(ctx, result, text, s.userID, s.id)
	if err != nil {
		// Registry misconfiguration, not user input. Logged as a defect.
		s.logger.Error().Err(err).Str("intent", string(result.Intent)).Msg("Dispatch failed (defect)")
		s.failCycle(ctx, seq, msgGenericFailure)
		return
	}
	if ctx.Err() != nil {
		return
	}
	if !s.storeResult(seq, actionResult) {
		return
	}
	s.publish(bus.EventTypeDispatched, map[string]any{
		"session": s.id,
		"success": actionResult.Success,
		"failure": string(actionResult.Failure),
	})

	if !s.advance(seq, StateSpeaking) {
		return
	}
	s.speak(ctx, actionResult.Message)

	s.history.Add(text, actionResult.Message, string(result.Intent))
	s.publish(bus.EventTypeCycleDone, map[string]any{"session": s.id, "cycle": seq})
	s.returnToListening(seq)
}

// transcribe makes the bounded transcription call with exactly one silent
// retry. A cancelled cycle aborts between attempts.
func (s *Session) transcribe(ctx context.Context, segment *audio.Segment) (string, error) {
	req := &stt.Request{
		Audio:      segment.Audio,
		Format:     string(segment.Format),
		SampleRate: segment.SampleRate,
		Channels:   segment.Channels,
		Language:   s.config.Language,
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.config.TranscribeTimeout)
		resp, err := s.deps.Transcriber.Transcribe(callCtx, req)
		cancel()
		if err == nil {
			return resp.Text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt == 0 {
			s.logger.Debug().Err(err).Msg("Transcription attempt failed, retrying once")
		}
	}
	return "", lastErr
}

// speak synthesizes and plays a response, honoring barge-in. Synthesis
// failures are best-effort: the session re-arms regardless.
func (s *Session) speak(ctx context.Context, message string) {
	if message == "" || s.deps.Synthesizer == nil {
		return
	}

	speakCtx, cancel := context.WithTimeout(ctx, s.config.SpeakTimeout)
	defer cancel()

	s.publish(bus.EventTypeSpeakingStarted, map[string]any{"session": s.id})
	defer s.publish(bus.EventTypeSpeakingStopped, map[string]any{"session": s.id})

	handle, err := s.deps.Synthesizer.Speak(speakCtx, &tts.SpeakRequest{Text: message})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Synthesis failed, returning to listening")
		return
	}

	select {
	case <-handle.Done():
	case <-ctx.Done():
		handle.Cancel()
		<-handle.Done()
	}
}

// failCycle parks the cycle in Error, speaks an apology, and re-arms.
func (s *Session) failCycle(ctx context.Context, seq uint64, message string) {
	if !s.advance(seq, StateError) {
		return
	}
	s.speak(ctx, message)
	s.returnToListening(seq)
}

func (s *Session) returnToListening(seq uint64) {
	if s.advance(seq, StateListening) {
		s.rearm()
	}
}

// advance transitions to state only if seq is still the live cycle.
func (s *Session) advance(seq uint64, state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.cycleSeq {
		return false
	}
	s.setStateLocked(state)
	return true
}

func (s *Session) storeUtterance(seq uint64, u *Utterance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.cycleSeq {
		return false
	}
	s.currentUtterance = u
	return true
}

func (s *Session) storeClassification(seq uint64, r *intent.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.cycleSeq {
		return false
	}
	s.lastClassification = r
	return true
}

func (s *Session) storeResult(seq uint64, r *dispatch.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.cycleSeq {
		return false
	}
	s.lastResult = r
	return true
}

// cancelCycleLocked cancels the in-flight cycle and bumps the sequence so
// its late results fail every guard.
func (s *Session) cancelCycleLocked() {
	if s.cycleCancel != nil {
		s.cycleCancel()
		s.cycleCancel = nil
	}
	s.cycleSeq++
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	old := s.state
	s.state = state
	s.lastActivityAt = time.Now()
	s.logger.Debug().Str("old", string(old)).Str("new", string(state)).Msg("Session state changed")

	if s.deps.Events != nil {
		s.deps.Events.Publish(bus.Event{
			Type: bus.EventTypeStateChanged,
			Data: map[string]any{
				"session":   s.id,
				"old_state": string(old),
				"new_state": string(state),
			},
		})
	}
}

func (s *Session) rearm() {
	s.mu.Lock()
	fn := s.onListening
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *Session) publish(eventType bus.EventType, data map[string]any) {
	if s.deps.Events != nil {
		s.deps.Events.Publish(bus.Event{Type: eventType, Data: data})
	}
}
