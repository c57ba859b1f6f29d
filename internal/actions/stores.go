// Package actions implements the built-in handlers behind the command
// pipeline: task and reminder lists, music and navigation requests, and
// general queries answered by the assistant service.
package actions

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is one to-do item.
type Task struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Due       string    `json:"due,omitempty"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
}

// Reminder is one scheduled reminder. Time is kept as the user's spoken
// phrase ("5pm", "tomorrow"); scheduling is the caller's concern.
type Reminder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Time      string    `json:"time,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskStore keeps tasks in memory, per user.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string][]Task
}

// NewTaskStore creates an empty task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string][]Task)}
}

// Add appends a task for the user and returns it.
func (s *TaskStore) Add(userID, text, due string) Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := Task{
		ID:        uuid.NewString(),
		UserID:    userID,
		Text:      text,
		Due:       due,
		CreatedAt: time.Now(),
	}
	s.tasks[userID] = append(s.tasks[userID], task)
	return task
}

// List returns the user's tasks, oldest first.
func (s *TaskStore) List(userID string) []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Task, len(s.tasks[userID]))
	copy(out, s.tasks[userID])
	return out
}

// ReminderStore keeps reminders in memory, per user.
type ReminderStore struct {
	mu        sync.RWMutex
	reminders map[string][]Reminder
}

// NewReminderStore creates an empty reminder store.
func NewReminderStore() *ReminderStore {
	return &ReminderStore{reminders: make(map[string][]Reminder)}
}

// Add appends a reminder for the user and returns it.
func (s *ReminderStore) Add(userID, text, at string) Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	reminder := Reminder{
		ID:        uuid.NewString(),
		UserID:    userID,
		Text:      text,
		Time:      at,
		CreatedAt: time.Now(),
	}
	s.reminders[userID] = append(s.reminders[userID], reminder)
	return reminder
}

// List returns the user's reminders, oldest first.
func (s *ReminderStore) List(userID string) []Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Reminder, len(s.reminders[userID]))
	copy(out, s.reminders[userID])
	return out
}
