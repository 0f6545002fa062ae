package transcript

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Metrics aggregates usage and duration over a set of messages.
type Metrics struct {
	Usage        Usage
	First        time.Time
	Last         time.Time
	Duration     time.Duration
	MessageCount int
}

// RolePartition splits messages by semantic sender. User holds real typed
// input; Meta holds user-role wrappers that deliver tool results and other
// internal payloads.
type RolePartition struct {
	User      []Message
	Meta      []Message
	Assistant []Message
	System    []Message
	Other     []Message
}

// Session is the derived aggregate over one transcript file. It is always
// recomputed wholesale from the file, never mutated incrementally.
type Session struct {
	SessionID string
	Path      string
	Summary   string
	LeafID    string

	Messages   []Message
	MainThread []Message
	Sidechain  []Message
	Roles      RolePartition
	TaskCalls  []ToolCall

	Metrics Metrics
	Skipped int // malformed lines dropped during the read
}

// agentFilePrefix marks subagent transcripts. Their filename id is
// authoritative: the embedded sessionId names the parent session.
const agentFilePrefix = "agent-"

// ParseSession reads and reconstructs one transcript file. Decode failures
// on individual lines are skipped; a missing file satisfies
// errors.Is(err, ErrNotFound).
func ParseSession(fsys afero.Fs, path string, log *slog.Logger) (*Session, error) {
	records, skipped, err := ReadRecords(fsys, path, log)
	if err != nil {
		return nil, err
	}

	fileID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	isAgent := strings.HasPrefix(fileID, agentFilePrefix)

	s := &Session{
		SessionID: fileID,
		Path:      path,
		Skipped:   skipped,
	}

	seen := make(map[string]bool, len(records))
	for i, rec := range records {
		if rec.SessionID != "" && !isAgent && s.SessionID == fileID {
			s.SessionID = rec.SessionID
		}
		if rec.Type == string(RoleSummary) {
			if rec.Summary != "" {
				s.Summary = rec.Summary
			}
			if rec.LeafUUID != "" {
				s.LeafID = rec.LeafUUID
			}
		}

		msg, ok := Normalize(rec, i+1)
		if !ok {
			continue
		}
		// Parent references must point at an earlier-seen id; anything
		// else is treated as a root rather than an error.
		if msg.ParentID != "" && !seen[msg.ParentID] {
			msg.ParentID = ""
		}
		if msg.ID != "" {
			seen[msg.ID] = true
		}

		s.Messages = append(s.Messages, msg)
	}

	s.partition()
	s.Metrics = computeMetrics(s.MainThread)
	s.TaskCalls = TaskCalls(s.Messages)

	return s, nil
}

func (s *Session) partition() {
	for _, m := range s.Messages {
		if m.IsSidechain {
			s.Sidechain = append(s.Sidechain, m)
		} else {
			s.MainThread = append(s.MainThread, m)
		}

		switch m.Role {
		case RoleUser:
			if m.IsMeta || len(m.ToolResults) > 0 {
				s.Roles.Meta = append(s.Roles.Meta, m)
			} else {
				s.Roles.User = append(s.Roles.User, m)
			}
		case RoleAssistant:
			s.Roles.Assistant = append(s.Roles.Assistant, m)
		case RoleSystem:
			s.Roles.System = append(s.Roles.System, m)
		default:
			s.Roles.Other = append(s.Roles.Other, m)
		}
	}
}

func computeMetrics(msgs []Message) Metrics {
	m := Metrics{MessageCount: len(msgs)}
	for _, msg := range msgs {
		m.Usage.Add(msg.Usage)
	}
	m.First, m.Last, m.Duration = TimeRange(msgs)
	return m
}

// ResponsesAfter returns the contiguous run of assistant messages following
// the message with the given id, stopping at the next user-role message or
// the end of the sequence. An unknown id yields an empty result.
func ResponsesAfter(msgs []Message, userID string) []Message {
	start := -1
	for i, m := range msgs {
		if m.ID == userID {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}

	var out []Message
	for _, m := range msgs[start:] {
		if m.Role == RoleUser && !m.IsMeta && len(m.ToolResults) == 0 {
			break
		}
		if m.Role == RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

// TaskCalls returns every task-flagged tool call across all messages,
// preserving file order.
func TaskCalls(msgs []Message) []ToolCall {
	var out []ToolCall
	for _, m := range msgs {
		for _, c := range m.ToolCalls {
			if c.IsTask {
				out = append(out, c)
			}
		}
	}
	return out
}

// ToolCallsNamed returns every tool call with the given name, in file order.
func ToolCallsNamed(msgs []Message, name string) []ToolCall {
	var out []ToolCall
	for _, m := range msgs {
		for _, c := range m.ToolCalls {
			if c.Name == name {
				out = append(out, c)
			}
		}
	}
	return out
}

// FindToolResult scans all messages for the result matching a tool call id.
// The call id is valid session-wide; results can arrive many lines after
// their call. Returns the owning message and the result, or ok=false.
func FindToolResult(msgs []Message, toolCallID string) (owner *Message, result *ToolResult, ok bool) {
	for i := range msgs {
		for j := range msgs[i].ToolResults {
			if msgs[i].ToolResults[j].ToolUseID == toolCallID {
				return &msgs[i], &msgs[i].ToolResults[j], true
			}
		}
	}
	return nil, nil, false
}

// TimeRange returns the minimum and maximum timestamp over msgs and the
// derived duration. Empty input (or input without timestamps) yields zero
// values rather than an error. File order only approximates timestamp
// order, so both ends are scanned.
func TimeRange(msgs []Message) (first, last time.Time, duration time.Duration) {
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			continue
		}
		if first.IsZero() || m.Timestamp.Before(first) {
			first = m.Timestamp
		}
		if last.IsZero() || m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	if !first.IsZero() {
		duration = last.Sub(first)
	}
	return first, last, duration
}

// ChildrenOf returns the direct children of a message id, in file order.
func ChildrenOf(msgs []Message, id string) []Message {
	var out []Message
	for _, m := range msgs {
		if m.ParentID == id {
			out = append(out, m)
		}
	}
	return out
}

// BuildTree returns the full parent-to-children adjacency map. Roots are
// grouped under the empty id.
func BuildTree(msgs []Message) map[string][]Message {
	tree := make(map[string][]Message)
	for _, m := range msgs {
		tree[m.ParentID] = append(tree[m.ParentID], m)
	}
	return tree
}

// ExtractText returns the plain text of a message: string content verbatim,
// block content as the concatenation of text-bearing blocks only.
func ExtractText(m Message) string {
	if len(m.Blocks) == 0 {
		return m.Text
	}
	var parts []string
	for _, b := range m.Blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Preview returns the message text truncated to maxLen characters. A
// truncated preview carries a "..." suffix; shorter text is returned
// unchanged.
func Preview(m Message, maxLen int) string {
	return truncate(ExtractText(m), maxLen)
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
