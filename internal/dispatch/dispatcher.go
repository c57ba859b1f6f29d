package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/voxassist/internal/bus"
	"github.com/normanking/voxassist/internal/intent"
)

// DefaultClarificationThreshold gates handler execution when no per-intent
// threshold is configured.
const DefaultClarificationThreshold = 0.5

// requiredEntities lists the slots that must be present and non-empty before a
// handler is invoked.
var requiredEntities = map[intent.Intent][]string{
	intent.IntentPlayMusic:   {intent.EntityMusicQuery},
	intent.IntentAddTask:     {intent.EntityTaskText},
	intent.IntentAddReminder: {intent.EntityReminderText},
	intent.IntentNavigate:    {intent.EntityNavigationTarget},
}

// clarifyPrompts are spoken when confidence is too low or a slot is missing.
var clarifyPrompts = map[intent.Intent]string{
	intent.IntentPlayMusic:   "What would you like me to play?",
	intent.IntentAddTask:     "What should the task say?",
	intent.IntentAddReminder: "What should I remind you about?",
	intent.IntentNavigate:    "Where would you like to go?",
}

// Config holds dispatcher configuration.
type Config struct {
	// Thresholds maps intents to clarification-confidence thresholds.
	// Intents not listed use DefaultThreshold.
	Thresholds       map[intent.Intent]float64
	DefaultThreshold float64
}

// DefaultConfig returns sensible defaults. General queries get a lower bar
// since answering is cheap; navigation gets a higher one since a wrong jump
// is disruptive.
func DefaultConfig() *Config {
	return &Config{
		DefaultThreshold: DefaultClarificationThreshold,
		Thresholds: map[intent.Intent]float64{
			intent.IntentGeneralQuery: 0.3,
			intent.IntentNavigate:     0.55,
		},
	}
}

// Dispatcher maps classification results to registered handlers. It never
// invokes a handler below the clarification threshold or with required
// entities missing, and handler panics or errors never propagate out.
type Dispatcher struct {
	mu       sync.RWMutex
	config   *Config
	handlers map[intent.Intent]Handler
	events   *bus.EventBus
	logger   zerolog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(config *Config, logger zerolog.Logger) *Dispatcher {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DefaultThreshold <= 0 {
		config.DefaultThreshold = DefaultClarificationThreshold
	}

	return &Dispatcher{
		config:   config,
		handlers: make(map[intent.Intent]Handler),
		logger:   logger.With().Str("component", "dispatch").Logger(),
	}
}

// SetEvents attaches the event bus for gate observability.
func (d *Dispatcher) SetEvents(events *bus.EventBus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = events
}

// Register binds a handler to an intent, replacing any previous binding.
func (d *Dispatcher) Register(in intent.Intent, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[in] = h
}

// Registered reports whether an intent has a handler.
func (d *Dispatcher) Registered(in intent.Intent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[in]
	return ok
}

// Validate checks that every intent in the closed set (except unknown, which
// is a classification outcome rather than an action) has a handler. Run at
// startup so a registry gap is a boot failure instead of a runtime surprise.
func (d *Dispatcher) Validate() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, in := range intent.AllIntents {
		if in == intent.IntentUnknown {
			continue
		}
		if _, ok := d.handlers[in]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownIntent, in)
		}
	}
	return nil
}

// Threshold returns the clarification threshold for an intent.
func (d *Dispatcher) Threshold(in intent.Intent) float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if t, ok := d.config.Thresholds[in]; ok {
		return t
	}
	return d.config.DefaultThreshold
}

// SetThresholds replaces the per-intent threshold table (config hot reload).
func (d *Dispatcher) SetThresholds(thresholds map[intent.Intent]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config.Thresholds = thresholds
}

// Dispatch resolves a classification result to an action outcome.
//
// Order of gates: handler lookup, confidence, required entities. Only when all
// pass is the handler invoked. The error return is non-nil only for
// ErrUnknownIntent, a registry misconfiguration rather than a user failure.
func (d *Dispatcher) Dispatch(ctx context.Context, res *intent.Result, text, userID, sessionID string) (*Result, error) {
	d.mu.RLock()
	handler, ok := d.handlers[res.Intent]
	d.mu.RUnlock()

	if !ok {
		d.logger.Error().
			Str("intent", string(res.Intent)).
			Msg("No handler registered for intent (defect)")
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntent, res.Intent)
	}

	if res.Confidence < d.Threshold(res.Intent) {
		d.logger.Warn().
			Str("intent", string(res.Intent)).
			Float64("confidence", res.Confidence).
			Float64("threshold", d.Threshold(res.Intent)).
			Str("source", string(res.Source)).
			Msg("Confidence below clarification threshold, handler not invoked")
		d.publish(bus.EventTypeLowConfidence, map[string]any{
			"intent":     string(res.Intent),
			"confidence": res.Confidence,
			"source":     string(res.Source),
		})
		return &Result{
			Success: false,
			Failure: FailureLowConfidence,
			Message: clarifyMessage(res.Intent),
		}, nil
	}

	if missing := missingEntity(res); missing != "" {
		d.logger.Warn().
			Str("intent", string(res.Intent)).
			Str("entity", missing).
			Msg("Required entity missing, handler not invoked")
		d.publish(bus.EventTypeMissingEntity, map[string]any{
			"intent": string(res.Intent),
			"entity": missing,
		})
		return &Result{
			Success: false,
			Failure: FailureMissingEntity,
			Message: clarifyMessage(res.Intent),
		}, nil
	}

	req := Request{
		Intent:    res.Intent,
		Text:      text,
		Entities:  res.Entities,
		UserID:    userID,
		SessionID: sessionID,
	}

	result, err := d.invoke(ctx, handler, req)
	if err != nil {
		d.logger.Error().Err(err).
			Str("intent", string(res.Intent)).
			Msg("Action handler failed")
		return &Result{
			Success: false,
			Failure: FailureExecution,
			Message: "Sorry, I couldn't complete that. Please try again.",
		}, nil
	}

	d.logger.Info().
		Str("intent", string(res.Intent)).
		Bool("success", result.Success).
		Msg("Action dispatched")
	return result, nil
}

// invoke runs the handler with panic recovery so a misbehaving handler cannot
// take down the pipeline.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, req Request) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	result, err = h.Handle(ctx, req)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("handler returned nil result")
	}
	return result, nil
}

func (d *Dispatcher) publish(eventType bus.EventType, data map[string]any) {
	d.mu.RLock()
	events := d.events
	d.mu.RUnlock()
	if events != nil {
		events.Publish(bus.Event{Type: eventType, Data: data})
	}
}

func missingEntity(res *intent.Result) string {
	for _, key := range requiredEntities[res.Intent] {
		if res.Entity(key) == "" {
			return key
		}
	}
	return ""
}

func clarifyMessage(in intent.Intent) string {
	if prompt, ok := clarifyPrompts[in]; ok {
		return prompt
	}
	return "Sorry, I didn't catch that. Could you say it again?"
}
