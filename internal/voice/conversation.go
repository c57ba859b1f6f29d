package voice

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
)

// Exchange represents one completed command turn: what the user said and what
// was spoken back.
type Exchange struct {
	UserText      string    `json:"userText"`
	AssistantText string    `json:"assistantText"`
	Intent        string    `json:"intent"`
	Timestamp     time.Time `json:"timestamp"`
}

// HistoryConfig configures the exchange history.
type HistoryConfig struct {
	// MaxExchanges is the maximum number of exchanges to retain (default: 10)
	MaxExchanges int
	// InactivityTimeout is the duration after which context expires (default: 5 minutes)
	InactivityTimeout time.Duration
}

// DefaultHistoryConfig returns sensible defaults.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		MaxExchanges:      10,
		InactivityTimeout: 5 * time.Minute,
	}
}

// History tracks recent command exchanges in memory for follow-up detection.
// Nothing is persisted; the history dies with the session.
type History struct {
	mu            sync.RWMutex
	exchanges     []Exchange
	lastActivity  time.Time
	config        HistoryConfig
	followUpWords []string
}

// NewHistory creates an empty History with the given config.
func NewHistory(config HistoryConfig) *History {
	if config.MaxExchanges <= 0 {
		config.MaxExchanges = 10
	}
	if config.InactivityTimeout <= 0 {
		config.InactivityTimeout = 5 * time.Minute
	}

	return &History{
		exchanges:    make([]Exchange, 0, config.MaxExchanges),
		lastActivity: time.Now(),
		config:       config,
		followUpWords: []string{
			// Pronouns referencing previous context
			"it", "that", "this", "they", "them", "those", "these",
			// Reference words
			"again", "also", "too", "more", "another", "same",
			// Explicit references
			"you said", "you mentioned", "earlier", "before", "previous",
			"last time", "just now",
			// Questions about prior content
			"why", "how come", "what do you mean", "tell me more",
		},
	}
}

// Add records a completed exchange, trimming to MaxExchanges.
func (h *History) Add(userText, assistantText, intentName string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Auto-expire if inactive
	if h.isExpiredLocked() {
		h.exchanges = h.exchanges[:0]
	}

	h.exchanges = append(h.exchanges, Exchange{
		UserText:      userText,
		AssistantText: assistantText,
		Intent:        intentName,
		Timestamp:     time.Now(),
	})
	h.lastActivity = time.Now()

	if len(h.exchanges) > h.config.MaxExchanges {
		h.exchanges = h.exchanges[len(h.exchanges)-h.config.MaxExchanges:]
	}
}

// Context returns the formatted exchange history, suitable as extra context
// for a general-query handler. Empty when expired or empty.
func (h *History) Context() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.isExpiredLocked() || len(h.exchanges) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation:\n")
	for i, ex := range h.exchanges {
		fmt.Fprintf(&sb, "[%d] User: %s\n", i+1, ex.UserText)
		assistantText := ex.AssistantText
		if len(assistantText) > 200 {
			assistantText = assistantText[:200] + "..."
		}
		fmt.Fprintf(&sb, "[%d] Assistant: %s\n", i+1, assistantText)
	}
	return sb.String()
}

// IsFollowUp detects if text references the previous exchange ("play it
// again", "why?"). Always false without live history.
func (h *History) IsFollowUp(text string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.exchanges) == 0 || h.isExpiredLocked() {
		return false
	}

	lowerText := strings.ToLower(text)

	for _, word := range h.followUpWords {
		if len(word) <= 4 {
			// Short words like "it" need word boundaries
			pattern := `\b` + regexp.QuoteMeta(word) + `\b`
			if matched, _ := regexp.MatchString(pattern, lowerText); matched {
				return true
			}
		} else if strings.Contains(lowerText, word) {
			return true
		}
	}

	for _, start := range []string{"and ", "but ", "so ", "also ", "then "} {
		if strings.HasPrefix(lowerText, start) {
			return true
		}
	}

	shortQuestions := []string{"why?", "how?", "what?", "really?", "why", "how"}
	return slices.Contains(shortQuestions, strings.TrimSpace(lowerText))
}

// Count returns the number of stored exchanges.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.exchanges)
}

// Exchanges returns a copy of the live history.
func (h *History) Exchanges() []Exchange {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.isExpiredLocked() {
		return nil
	}
	result := make([]Exchange, len(h.exchanges))
	copy(result, h.exchanges)
	return result
}

// Clear removes all history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exchanges = h.exchanges[:0]
}

func (h *History) isExpiredLocked() bool {
	if len(h.exchanges) == 0 {
		return false
	}
	return time.Since(h.lastActivity) > h.config.InactivityTimeout
}
