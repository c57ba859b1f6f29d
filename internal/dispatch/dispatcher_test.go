package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/voxassist/internal/bus"
	"github.com/normanking/voxassist/internal/intent"
)

type recordingHandler struct {
	calls  int
	last   Request
	result *Result
	err    error
}

func (h *recordingHandler) Handle(ctx context.Context, req Request) (*Result, error) {
	h.calls++
	h.last = req
	return h.result, h.err
}

func okHandler(message string) *recordingHandler {
	return &recordingHandler{result: &Result{Success: true, Message: message}}
}

func registerAll(d *Dispatcher) map[intent.Intent]*recordingHandler {
	handlers := make(map[intent.Intent]*recordingHandler)
	for _, in := range intent.AllIntents {
		if in == intent.IntentUnknown {
			continue
		}
		h := okHandler("done")
		handlers[in] = h
		d.Register(in, h)
	}
	return handlers
}

func TestDispatchInvokesHandler(t *testing.T) {
	d := NewDispatcher(nil, zerolog.Nop())
	h := okHandler("Playing jazz.")
	d.Register(intent.IntentPlayMusic, h)

	res, err := d.Dispatch(context.Background(), &intent.Result{
		Intent:     intent.IntentPlayMusic,
		Confidence: 0.9,
		Entities:   map[string]string{intent.EntityMusicQuery: "jazz"},
	}, "play some jazz", "user-1", "session-1")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, h.calls)
	assert.Equal(t, "jazz", h.last.Entities[intent.EntityMusicQuery])
	assert.Equal(t, "play some jazz", h.last.Text)
	assert.Equal(t, "user-1", h.last.UserID)
	assert.Equal(t, "session-1", h.last.SessionID)
}

func TestDispatchLowConfidenceNeverInvokesHandler(t *testing.T) {
	d := NewDispatcher(nil, zerolog.Nop())
	h := okHandler("done")
	d.Register(intent.IntentPlayMusic, h)

	res, err := d.Dispatch(context.Background(), &intent.Result{
		Intent:     intent.IntentPlayMusic,
		Confidence: 0.49,
		Entities:   map[string]string{intent.EntityMusicQuery: "jazz"},
	}, "play jazz", "user-1", "session-1")

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, FailureLowConfidence, res.Failure)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, 0, h.calls)
}

func TestDispatchPerIntentThresholds(t *testing.T) {
	d := NewDispatcher(DefaultConfig(), zerolog.Nop())
	general := okHandler("answer")
	nav := okHandler("opening")
	d.Register(intent.IntentGeneralQuery, general)
	d.Register(intent.IntentNavigate, nav)

	// 0.4 clears general_query's 0.3 bar.
	res, err := d.Dispatch(context.Background(), &intent.Result{
		Intent:     intent.IntentGeneralQuery,
		Confidence: 0.4,
	}, "what is this", "u", "s")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, general.calls)

	// 0.52 does not clear navigate's 0.55 bar.
	res, err = d.Dispatch(context.Background(), &intent.Result{
		Intent:     intent.IntentNavigate,
		Confidence: 0.52,
		Entities:   map[string]string{intent.EntityNavigationTarget: "settings"},
	}, "go to settings", "u", "s")
	require.NoError(t, err)
	assert.Equal(t, FailureLowConfidence, res.Failure)
	assert.Equal(t, 0, nav.calls)
}

func TestDispatchMissingEntity(t *testing.T) {
	d := NewDispatcher(nil, zerolog.Nop())

	tests := []struct {
		intent  intent.Intent
		missing string
	}{
		{intent.IntentPlayMusic, intent.EntityMusicQuery},
		{intent.IntentAddTask, intent.EntityTaskText},
		{intent.IntentAddReminder, intent.EntityReminderText},
		{intent.IntentNavigate, intent.EntityNavigationTarget},
	}

	for _, tt := range tests {
		t.Run(string(tt.intent), func(t *testing.T) {
			h := okHandler("done")
			d.Register(tt.intent, h)

			res, err := d.Dispatch(context.Background(), &intent.Result{
				Intent:     tt.intent,
				Confidence: 0.9,
			}, "text", "u", "s")

			require.NoError(t, err)
			assert.Equal(t, FailureMissingEntity, res.Failure)
			assert.NotEmpty(t, res.Message)
			assert.Equal(t, 0, h.calls)
		})
	}
}

func TestDispatchUnregisteredIntent(t *testing.T) {
	d := NewDispatcher(nil, zerolog.Nop())

	res, err := d.Dispatch(context.Background(), &intent.Result{
		Intent:     intent.IntentShowTasks,
		Confidence: 0.9,
	}, "show my tasks", "u", "s")

	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrUnknownIntent)
}

func TestDispatchHandlerErrorContained(t *testing.T) {
	d := NewDispatcher(nil, zerolog.Nop())
	d.Register(intent.IntentShowTasks, &recordingHandler{err: errors.New("db down")})

	res, err := d.Dispatch(context.Background(), &intent.Result{
		Intent:     intent.IntentShowTasks,
		Confidence: 0.9,
	}, "show my tasks", "u", "s")

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, FailureExecution, res.Failure)
	assert.NotEmpty(t, res.Message)
}

func TestDispatchHandlerPanicContained(t *testing.T) {
	d := NewDispatcher(nil, zerolog.Nop())
	d.Register(intent.IntentShowTasks, HandlerFunc(func(ctx context.Context, req Request) (*Result, error) {
		panic("boom")
	}))

	res, err := d.Dispatch(context.Background(), &intent.Result{
		Intent:     intent.IntentShowTasks,
		Confidence: 0.9,
	}, "show my tasks", "u", "s")

	require.NoError(t, err)
	assert.Equal(t, FailureExecution, res.Failure)
}

func TestDispatchPublishesGateEvents(t *testing.T) {
	events := bus.NewEventBus()
	var (
		mu        sync.Mutex
		published []bus.EventType
	)
	events.SubscribeMultiple([]bus.EventType{bus.EventTypeLowConfidence, bus.EventTypeMissingEntity}, func(e bus.Event) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, e.Type)
	})

	d := NewDispatcher(nil, zerolog.Nop())
	d.SetEvents(events)
	d.Register(intent.IntentPlayMusic, okHandler("done"))

	d.Dispatch(context.Background(), &intent.Result{
		Intent:     intent.IntentPlayMusic,
		Confidence: 0.2,
	}, "play", "u", "s")
	d.Dispatch(context.Background(), &intent.Result{
		Intent:     intent.IntentPlayMusic,
		Confidence: 0.9,
	}, "play", "u", "s")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(published) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []bus.EventType{bus.EventTypeLowConfidence, bus.EventTypeMissingEntity}, published)
}

func TestValidate(t *testing.T) {
	d := NewDispatcher(nil, zerolog.Nop())
	assert.ErrorIs(t, d.Validate(), ErrUnknownIntent)

	registerAll(d)
	assert.NoError(t, d.Validate())
}

func TestSetThresholds(t *testing.T) {
	d := NewDispatcher(nil, zerolog.Nop())
	registerAll(d)

	assert.Equal(t, DefaultClarificationThreshold, d.Threshold(intent.IntentShowTasks))

	d.SetThresholds(map[intent.Intent]float64{intent.IntentShowTasks: 0.8})
	assert.Equal(t, 0.8, d.Threshold(intent.IntentShowTasks))

	res, err := d.Dispatch(context.Background(), &intent.Result{
		Intent:     intent.IntentShowTasks,
		Confidence: 0.7,
	}, "show my tasks", "u", "s")
	require.NoError(t, err)
	assert.Equal(t, FailureLowConfidence, res.Failure)
}
