package intent

import (
	"regexp"
	"strings"
	"unicode"
)

// Fallback confidence bands. Rule matches sit in 0.6-0.8, deliberately below
// typical primary-stage confidence; no-match yields a low-confidence
// general_query.
const (
	fallbackReminderConfidence = 0.75
	fallbackMusicConfidence    = 0.75
	fallbackTaskConfidence     = 0.70
	fallbackNavigateConfidence = 0.65
	fallbackDefaultConfidence  = 0.40
)

// timePattern matches common spoken time expressions ("5pm", "17:30",
// "tomorrow", "in 10 minutes").
var timePattern = regexp.MustCompile(
	`\b\d{1,2}(?::\d{2})?\s*(?:a\.?m\.?|p\.?m\.?)\b` +
		`|\b\d{1,2}:\d{2}\b` +
		`|\bin \d+ (?:minutes?|hours?|days?|weeks?)\b` +
		`|\b(?:today|tonight|tomorrow|noon|midnight|morning|afternoon|evening)\b`,
)

// FallbackClassifier is the deterministic local classification stage. It runs
// a prioritized table of keyword rules and simple entity heuristics; identical
// input always yields identical output.
type FallbackClassifier struct {
	rules []fallbackRule
}

type fallbackRule struct {
	intent     Intent
	confidence float64
	match      func(text string) bool
	extract    func(text string) map[string]string
}

// NewFallbackClassifier creates the fallback stage with its built-in rule table.
func NewFallbackClassifier() *FallbackClassifier {
	return &FallbackClassifier{rules: buildFallbackRules()}
}

// Classify maps text to a Result with Source set to fallback. Pure function of
// its input: no network, no side effects, no randomness.
func (c *FallbackClassifier) Classify(text string) *Result {
	normalized := normalizeUtterance(text)

	for _, rule := range c.rules {
		if !rule.match(normalized) {
			continue
		}
		var entities map[string]string
		if rule.extract != nil {
			entities = rule.extract(normalized)
		}
		return &Result{
			Intent:     rule.intent,
			Confidence: rule.confidence,
			Entities:   entities,
			Source:     SourceFallback,
		}
	}

	return &Result{
		Intent:     IntentGeneralQuery,
		Confidence: fallbackDefaultConfidence,
		Source:     SourceFallback,
	}
}

func buildFallbackRules() []fallbackRule {
	showWords := []string{"show", "list", "view", "open", "what are"}

	return []fallbackRule{
		{
			intent:     IntentShowReminders,
			confidence: fallbackTaskConfidence,
			match: func(text string) bool {
				return strings.Contains(text, "reminder") && containsAny(text, showWords)
			},
		},
		{
			intent:     IntentAddReminder,
			confidence: fallbackReminderConfidence,
			match: func(text string) bool {
				return strings.Contains(text, "remind me") || strings.Contains(text, "reminder")
			},
			extract: extractReminderEntities,
		},
		{
			intent:     IntentShowTasks,
			confidence: fallbackTaskConfidence,
			match: func(text string) bool {
				return strings.Contains(text, "task") && containsAny(text, showWords)
			},
		},
		{
			intent:     IntentAddTask,
			confidence: fallbackTaskConfidence,
			match: func(text string) bool {
				return strings.Contains(text, "task") &&
					containsAny(text, []string{"add", "create", "new", "make"})
			},
			extract: extractTaskEntities,
		},
		{
			intent:     IntentNavigate,
			confidence: fallbackNavigateConfidence,
			match:      matchNavigate,
			extract:    extractNavigationEntities,
		},
		{
			intent:     IntentPlayMusic,
			confidence: fallbackMusicConfidence,
			match: func(text string) bool {
				return containsAny(text, []string{"play", "song", "music"})
			},
			extract: extractMusicEntities,
		},
	}
}

// normalizeUtterance lowercases, strips punctuation, and collapses whitespace.
func normalizeUtterance(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == ':' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// afterKeyword returns the substring following the first matching keyword,
// trimmed. Returns "" if no keyword is present.
func afterKeyword(text string, keywords ...string) string {
	for _, kw := range keywords {
		if idx := strings.Index(text, kw); idx >= 0 {
			return strings.TrimSpace(text[idx+len(kw):])
		}
	}
	return ""
}

// stripTimeClause removes a trailing "at <time>" clause so slot text stays
// focused ("call mom at 5pm" -> "call mom").
func stripTimeClause(text string) string {
	if loc := timePattern.FindStringIndex(text); loc != nil {
		head := strings.TrimSpace(text[:loc[0]])
		head = strings.TrimSuffix(head, " at")
		head = strings.TrimSuffix(head, " on")
		head = strings.TrimSuffix(head, " by")
		if head != "" {
			return strings.TrimSpace(head)
		}
	}
	return text
}

func extractReminderEntities(text string) map[string]string {
	entities := map[string]string{}

	if t := timePattern.FindString(text); t != "" {
		entities[EntityTime] = t
	}

	body := afterKeyword(text, "remind me to ", "remind me ", "reminder to ", "reminder for ", "reminder ")
	if body == "" {
		body = text
	}
	if body = stripTimeClause(body); body != "" {
		entities[EntityReminderText] = body
	}
	return entities
}

func extractTaskEntities(text string) map[string]string {
	entities := map[string]string{}

	if t := timePattern.FindString(text); t != "" {
		entities[EntityTime] = t
	}

	body := afterKeyword(text, "task to ", "task called ", "task for ", "task ")
	if body == "" {
		body = afterKeyword(text, "add ", "create ", "make ")
	}
	if body = stripTimeClause(body); body != "" {
		entities[EntityTaskText] = body
	}
	return entities
}

func extractMusicEntities(text string) map[string]string {
	query := afterKeyword(text, "play me ", "play some ", "play ", "listen to ")
	if query == "" {
		query = text
	}
	query = strings.TrimSuffix(query, " for me")
	if query == "" {
		return nil
	}
	return map[string]string{EntityMusicQuery: query}
}

// navSections are the app surfaces a user can ask to open by name.
var navSections = []string{"home", "dashboard", "tasks", "reminders", "music", "settings", "profile", "calendar"}

var navVerbs = []string{"go to ", "navigate to ", "take me to ", "go back to ", "switch to "}

func matchNavigate(text string) bool {
	if containsAny(text, navVerbs) {
		return true
	}
	// A bare section name is treated as a navigation request.
	for _, s := range navSections {
		if text == s || text == "open "+s {
			return true
		}
	}
	return false
}

func extractNavigationEntities(text string) map[string]string {
	target := afterKeyword(text, "go to ", "navigate to ", "take me to ", "go back to ", "switch to ", "open ")
	if target == "" {
		target = text
	}
	target = strings.TrimPrefix(target, "the ")
	target = strings.TrimSuffix(target, " page")
	target = strings.TrimSuffix(target, " section")
	target = strings.TrimSuffix(target, " screen")
	if target == "" {
		return nil
	}
	return map[string]string{EntityNavigationTarget: target}
}
