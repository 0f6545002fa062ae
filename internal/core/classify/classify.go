// Package classify assigns each normalized transcript message to one of
// five rendering categories. Classification is a pure, per-message decision:
// no neighbor context, no state.
package classify

import (
	"strings"

	"github.com/cctrail/cctrail/pkg/transcript"
)

// Category is the semantic role a message plays in the rendered
// conversation.
type Category string

const (
	// CategoryUser is real typed user input, including slash commands.
	CategoryUser Category = "user"
	// CategorySystem is local command output surfaced to the user.
	CategorySystem Category = "system"
	// CategoryCompact marks a context-summarization point.
	CategoryCompact Category = "compact"
	// CategoryAI is assistant output, including the internal user-role
	// wrappers that deliver tool results into the assistant turn.
	CategoryAI Category = "ai"
	// CategoryNoise must never be rendered as conversational content.
	// It is the conservative default for anything unrecognized.
	CategoryNoise Category = "noise"
)

// Classified pairs a message with its category.
type Classified struct {
	Message  transcript.Message
	Category Category
}

const (
	stdoutOpen  = "<local-command-stdout>"
	stdoutClose = "</local-command-stdout>"
	stderrOpen  = "<local-command-stderr>"
	stderrClose = "</local-command-stderr>"

	systemReminderTag = "<system-reminder>"
	caveatPrefix      = "Caveat: The messages below"

	interruptedMarker        = "[Request interrupted by user]"
	interruptedToolUseMarker = "[Request interrupted by user for tool use]"
)

// Classify maps a message to exactly one category. Rules are evaluated in
// order, first match wins; the order matters because the underlying data
// genuinely overlaps (e.g. a compact summary is also user-role).
func Classify(m transcript.Message) Category {
	// Non-conversational roles are noise regardless of any flag on them.
	switch m.Role {
	case transcript.RoleSystem, transcript.RoleSummary, transcript.RoleFileHistory:
		return CategoryNoise
	}

	if m.IsCompactSummary {
		return CategoryCompact
	}

	if m.Role == transcript.RoleAssistant && m.IsSynthetic() {
		return CategoryNoise
	}

	text := strings.TrimSpace(transcript.ExtractText(m))

	if text == interruptedMarker || text == interruptedToolUseMarker {
		return CategoryNoise
	}

	if inner, ok := CommandOutput(text); ok {
		if strings.TrimSpace(inner) == "" {
			return CategoryNoise
		}
		return CategorySystem
	}

	if strings.HasPrefix(text, caveatPrefix) || strings.Contains(text, systemReminderTag) {
		return CategoryNoise
	}

	switch m.Role {
	case transcript.RoleUser:
		if isMetaUser(m) {
			return CategoryAI
		}
		return CategoryUser
	case transcript.RoleAssistant:
		return CategoryAI
	}

	return CategoryNoise
}

// All classifies a message slice in order.
func All(msgs []transcript.Message) []Classified {
	out := make([]Classified, len(msgs))
	for i, m := range msgs {
		out[i] = Classified{Message: m, Category: Classify(m)}
	}
	return out
}

// isMetaUser reports whether a user-role message is an internal wrapper
// rather than typed input. Tool results are delivered as user turns without
// the meta flag always set, so carrying a result counts.
func isMetaUser(m transcript.Message) bool {
	return m.IsMeta || len(m.ToolResults) > 0
}

// CommandOutput extracts the payload of a local-command stdout/stderr
// wrapper. ok is false when no wrapper tag is present.
func CommandOutput(text string) (string, bool) {
	if inner, ok := between(text, stdoutOpen, stdoutClose); ok {
		if errInner, ok2 := between(text, stderrOpen, stderrClose); ok2 {
			return inner + errInner, true
		}
		return inner, true
	}
	if inner, ok := between(text, stderrOpen, stderrClose); ok {
		return inner, true
	}
	return "", false
}

func between(s, open, close string) (string, bool) {
	start := strings.Index(s, open)
	if start < 0 {
		return "", false
	}
	start += len(open)
	end := strings.Index(s[start:], close)
	if end < 0 {
		return s[start:], true
	}
	return s[start : start+end], true
}
