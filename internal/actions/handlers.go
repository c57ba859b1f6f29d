package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/normanking/voxassist/internal/assistant"
	"github.com/normanking/voxassist/internal/dispatch"
	"github.com/normanking/voxassist/internal/intent"
	"github.com/normanking/voxassist/internal/voice"
)

// Set bundles the built-in handlers and their shared state.
type Set struct {
	tasks     *TaskStore
	reminders *ReminderStore
	assistant *assistant.Client
	history   *voice.History
	logger    zerolog.Logger
}

// NewSet creates the built-in handler set. The assistant client may be nil;
// general queries then get a canned response. The history, when provided,
// is passed to the assistant as conversation context.
func NewSet(assistantClient *assistant.Client, history *voice.History, logger zerolog.Logger) *Set {
	return &Set{
		tasks:     NewTaskStore(),
		reminders: NewReminderStore(),
		assistant: assistantClient,
		history:   history,
		logger:    logger.With().Str("component", "actions").Logger(),
	}
}

// Tasks exposes the task store.
func (s *Set) Tasks() *TaskStore { return s.tasks }

// Reminders exposes the reminder store.
func (s *Set) Reminders() *ReminderStore { return s.reminders }

// RegisterAll registers a handler for every executable intent on the
// dispatcher.
func (s *Set) RegisterAll(d *dispatch.Dispatcher) {
	d.Register(intent.IntentPlayMusic, dispatch.HandlerFunc(s.playMusic))
	d.Register(intent.IntentAddTask, dispatch.HandlerFunc(s.addTask))
	d.Register(intent.IntentShowTasks, dispatch.HandlerFunc(s.showTasks))
	d.Register(intent.IntentAddReminder, dispatch.HandlerFunc(s.addReminder))
	d.Register(intent.IntentShowReminders, dispatch.HandlerFunc(s.showReminders))
	d.Register(intent.IntentNavigate, dispatch.HandlerFunc(s.navigate))
	d.Register(intent.IntentGeneralQuery, dispatch.HandlerFunc(s.generalQuery))
}

func (s *Set) playMusic(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	query := req.Entities[intent.EntityMusicQuery]
	s.logger.Info().Str("query", query).Msg("Starting music playback")

	return &dispatch.Result{
		Success: true,
		Message: fmt.Sprintf("Playing %s.", query),
		Data:    map[string]string{"query": query},
	}, nil
}

func (s *Set) addTask(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	text := req.Entities[intent.EntityTaskText]
	due := req.Entities[intent.EntityTime]
	task := s.tasks.Add(req.UserID, text, due)

	message := fmt.Sprintf("Added %q to your tasks.", text)
	if due != "" {
		message = fmt.Sprintf("Added %q to your tasks, due %s.", text, due)
	}
	return &dispatch.Result{Success: true, Message: message, Data: task}, nil
}

func (s *Set) showTasks(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	tasks := s.tasks.List(req.UserID)
	if len(tasks) == 0 {
		return &dispatch.Result{Success: true, Message: "You have no tasks."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You have %d %s. ", len(tasks), pluralize("task", len(tasks)))
	for i, t := range tasks {
		fmt.Fprintf(&sb, "%d: %s. ", i+1, t.Text)
	}
	return &dispatch.Result{Success: true, Message: strings.TrimSpace(sb.String()), Data: tasks}, nil
}

func (s *Set) addReminder(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	text := req.Entities[intent.EntityReminderText]
	at := req.Entities[intent.EntityTime]
	reminder := s.reminders.Add(req.UserID, text, at)

	message := fmt.Sprintf("I'll remind you to %s.", text)
	if at != "" {
		message = fmt.Sprintf("I'll remind you to %s at %s.", text, at)
	}
	return &dispatch.Result{Success: true, Message: message, Data: reminder}, nil
}

func (s *Set) showReminders(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	reminders := s.reminders.List(req.UserID)
	if len(reminders) == 0 {
		return &dispatch.Result{Success: true, Message: "You have no reminders."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You have %d %s. ", len(reminders), pluralize("reminder", len(reminders)))
	for i, r := range reminders {
		if r.Time != "" {
			fmt.Fprintf(&sb, "%d: %s at %s. ", i+1, r.Text, r.Time)
		} else {
			fmt.Fprintf(&sb, "%d: %s. ", i+1, r.Text)
		}
	}
	return &dispatch.Result{Success: true, Message: strings.TrimSpace(sb.String()), Data: reminders}, nil
}

func (s *Set) navigate(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	target := req.Entities[intent.EntityNavigationTarget]
	s.logger.Info().Str("target", target).Msg("Navigating")

	return &dispatch.Result{
		Success: true,
		Message: fmt.Sprintf("Opening %s.", target),
		Data:    map[string]string{"target": target},
	}, nil
}

func (s *Set) generalQuery(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	question := req.Text
	if s.assistant == nil {
		return &dispatch.Result{
			Success: true,
			Message: "I can't answer questions right now.",
		}, nil
	}

	var conversationContext string
	if s.history != nil {
		conversationContext = s.history.Context()
	}

	// Answers stream so long generations start arriving before the handler
	// deadline instead of buffering server-side.
	answer, err := s.assistant.AskStream(ctx, question, conversationContext, req.UserID, func(delta string) {
		s.logger.Debug().Int("bytes", len(delta)).Msg("Answer fragment")
	})
	if err != nil {
		return nil, fmt.Errorf("answer query: %w", err)
	}
	return &dispatch.Result{Success: true, Message: answer}, nil
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
