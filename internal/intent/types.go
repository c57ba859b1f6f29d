// Package intent provides two-stage intent classification for voice commands:
// a remote schema-validated classifier with a deterministic local fallback.
package intent

import (
	"errors"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("classification provider unavailable")
	ErrSchemaValidation    = errors.New("classification response failed schema validation")
	ErrTimeout             = errors.New("classification timeout")
)

// Intent is one of the closed set of actions a command can map to.
type Intent string

const (
	IntentPlayMusic     Intent = "play_music"
	IntentAddTask       Intent = "add_task"
	IntentShowTasks     Intent = "show_tasks"
	IntentAddReminder   Intent = "add_reminder"
	IntentShowReminders Intent = "show_reminders"
	IntentNavigate      Intent = "navigate"
	IntentGeneralQuery  Intent = "general_query"
	IntentUnknown       Intent = "unknown"
)

// AllIntents lists every value of the closed intent set, including unknown.
var AllIntents = []Intent{
	IntentPlayMusic,
	IntentAddTask,
	IntentShowTasks,
	IntentAddReminder,
	IntentShowReminders,
	IntentNavigate,
	IntentGeneralQuery,
	IntentUnknown,
}

// Valid reports whether i is in the closed intent set.
func (i Intent) Valid() bool {
	switch i {
	case IntentPlayMusic, IntentAddTask, IntentShowTasks, IntentAddReminder,
		IntentShowReminders, IntentNavigate, IntentGeneralQuery, IntentUnknown:
		return true
	}
	return false
}

// Entity slot keys. Which keys are allowed depends on the intent.
const (
	EntityMusicQuery       = "musicQuery"
	EntityTaskText         = "taskText"
	EntityReminderText     = "reminderText"
	EntityTime             = "time"
	EntityNavigationTarget = "navigationTarget"
)

// allowedEntities maps each intent to the slot keys it may carry.
var allowedEntities = map[Intent][]string{
	IntentPlayMusic:   {EntityMusicQuery},
	IntentAddTask:     {EntityTaskText, EntityTime},
	IntentAddReminder: {EntityReminderText, EntityTime},
	IntentNavigate:    {EntityNavigationTarget},
}

// AllowedEntities returns the slot keys an intent may carry. Intents with no
// slots return nil.
func AllowedEntities(i Intent) []string {
	return allowedEntities[i]
}

// Source identifies which classification stage produced a result.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// Result is a classification outcome. Produced fresh per utterance, never
// mutated; Entities only contains keys relevant to Intent.
type Result struct {
	Intent     Intent            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
	Source     Source            `json:"source"`
}

// Entity returns the named slot value, or "" if absent.
func (r *Result) Entity(key string) string {
	if r.Entities == nil {
		return ""
	}
	return r.Entities[key]
}
