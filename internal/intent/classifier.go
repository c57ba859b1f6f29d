package intent

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/normanking/voxassist/internal/bus"
)

// PrimaryStage is the remote classification stage consumed by Classifier.
// Satisfied by *RemoteClassifier; tests substitute doubles.
type PrimaryStage interface {
	Classify(ctx context.Context, text string) (*Result, error)
}

// Classifier combines the primary remote stage with the deterministic local
// fallback. The fallback runs only when the primary stage fails, and the two
// stages are never mixed: the accepted result carries the Source of exactly
// one stage.
type Classifier struct {
	primary  PrimaryStage
	fallback *FallbackClassifier
	events   *bus.EventBus
	logger   zerolog.Logger
}

// NewClassifier creates a two-stage classifier. primary may be nil, in which
// case every utterance goes straight to the fallback rules.
func NewClassifier(primary PrimaryStage, logger zerolog.Logger) *Classifier {
	return &Classifier{
		primary:  primary,
		fallback: NewFallbackClassifier(),
		logger:   logger.With().Str("component", "intent").Logger(),
	}
}

// SetEvents attaches the event bus for stage observability.
func (c *Classifier) SetEvents(events *bus.EventBus) {
	c.events = events
}

// Classify resolves text to a Result. It structurally always succeeds: the
// worst case is a low-confidence general_query from the fallback stage.
// Primary-stage failures are logged internally and never surfaced to the user.
func (c *Classifier) Classify(ctx context.Context, text string) *Result {
	if c.primary != nil {
		result, err := c.primary.Classify(ctx, text)
		if err == nil {
			return result
		}
		if errors.Is(err, ErrSchemaValidation) {
			c.publish(bus.EventTypeSchemaRejected, map[string]any{"error": err.Error()})
		}
		c.logger.Warn().Err(err).Msg("Primary classification failed, using fallback")
	}

	result := c.fallback.Classify(text)
	c.publish(bus.EventTypeFallbackUsed, map[string]any{
		"intent":     string(result.Intent),
		"confidence": result.Confidence,
	})
	c.logger.Debug().
		Str("intent", string(result.Intent)).
		Float64("confidence", result.Confidence).
		Msg("Fallback classification")
	return result
}

func (c *Classifier) publish(eventType bus.EventType, data map[string]any) {
	if c.events != nil {
		c.events.Publish(bus.Event{Type: eventType, Data: data})
	}
}
