// Package subagent locates and summarizes the nested transcripts spawned by
// Task tool invocations. Summaries are deliberately shallow: status, timing
// and a preview, without reconstructing the subagent's own conversation.
// Full reconstruction happens only on explicit drill-down.
package subagent

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/cctrail/cctrail/pkg/transcript"
)

// Status is the inferred lifecycle state of a subagent run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
	// StatusUnknown means the transcript could not be located: the
	// subagent may still be starting, or its log may have been pruned.
	StatusUnknown Status = "unknown"
)

const previewLen = 120

// Summary is the cheap per-invocation metadata attached to a parent chunk.
// Keyed by the originating tool call id, never by name: names repeat.
type Summary struct {
	CallID         string
	AgentType      string
	Description    string
	Status         Status
	StartedAt      time.Time
	EndedAt        time.Time
	Duration       time.Duration
	Preview        string
	TranscriptPath string
	AgentID        string
}

// Resolver finds subagent transcripts relative to a parent session file.
type Resolver struct {
	fsys afero.Fs
	log  *slog.Logger
}

func NewResolver(fsys afero.Fs, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{fsys: fsys, log: log}
}

// Locate returns the transcript path for a subagent id. Newer sessions keep
// them under {dir}/{sessionID}/subagents/; older ones as siblings of the
// parent file.
func (r *Resolver) Locate(sessionPath, agentID string) (string, bool) {
	if agentID == "" {
		return "", false
	}

	dir := filepath.Dir(sessionPath)
	base := filepath.Base(sessionPath)
	sessionID := strings.TrimSuffix(base, filepath.Ext(base))
	name := "agent-" + agentID + ".jsonl"

	candidates := []string{
		filepath.Join(dir, sessionID, "subagents", name),
		filepath.Join(dir, name),
	}
	for _, p := range candidates {
		if ok, err := afero.Exists(r.fsys, p); err == nil && ok {
			return p, true
		}
	}
	return "", false
}

// Summaries resolves one Summary per task invocation, keyed by call id. A
// missing transcript never fails the resolution; the invocation is reported
// with StatusUnknown instead.
func (r *Resolver) Summaries(sessionPath string, calls []transcript.ToolCall, parent []transcript.Message) map[string]Summary {
	return r.SummariesGuarded(sessionPath, calls, parent, nil)
}

// SummariesGuarded is Summaries with an explicit visited set of transcript
// paths. A located transcript already being resolved higher up the chain is
// a cyclic reference from malformed input; it is reported as unknown rather
// than recursed into.
func (r *Resolver) SummariesGuarded(sessionPath string, calls []transcript.ToolCall, parent []transcript.Message, visited map[string]bool) map[string]Summary {
	out := make(map[string]Summary, len(calls))
	for _, call := range calls {
		if !call.IsTask {
			continue
		}
		out[call.ID] = r.summarize(sessionPath, call, parent, visited)
	}
	return out
}

func (r *Resolver) summarize(sessionPath string, call transcript.ToolCall, parent []transcript.Message, visited map[string]bool) Summary {
	s := Summary{
		CallID:      call.ID,
		AgentType:   call.AgentType,
		Description: call.Description,
		Status:      StatusUnknown,
		AgentID:     call.ID,
	}

	// Timing starts at the message that issued the call.
	if owner := ownerOf(parent, call.ID); owner != nil {
		s.StartedAt = owner.Timestamp
	}

	resultOwner, result, hasResult := transcript.FindToolResult(parent, call.ID)
	if hasResult {
		if result.AgentID != "" {
			s.AgentID = result.AgentID
		}
		s.EndedAt = resultOwner.Timestamp
		s.Preview = truncate(result.Text, previewLen)
		if result.IsError {
			s.Status = StatusErrored
		} else {
			s.Status = StatusCompleted
		}
	}

	path, found := r.Locate(sessionPath, s.AgentID)
	if found {
		s.TranscriptPath = path
		if visited[canonical(path)] {
			r.log.Warn("cyclic subagent reference", "path", path, "call", call.ID)
			s.Status = StatusUnknown
			s.TranscriptPath = ""
		} else if !hasResult {
			// Transcript exists but no terminating result in the
			// parent: the subagent is still executing.
			s.Status = StatusRunning
			r.fillFromTranscript(&s, path)
		}
	}

	if !s.StartedAt.IsZero() && !s.EndedAt.IsZero() {
		s.Duration = s.EndedAt.Sub(s.StartedAt)
	}
	return s
}

// fillFromTranscript reads cheap tail metadata from a running subagent's
// own transcript: last timestamp and last assistant text as the preview.
func (r *Resolver) fillFromTranscript(s *Summary, path string) {
	records, _, err := transcript.ReadRecords(r.fsys, path, r.log)
	if err != nil {
		return
	}
	for i, rec := range records {
		msg, ok := transcript.Normalize(rec, i+1)
		if !ok {
			continue
		}
		if !msg.Timestamp.IsZero() {
			if s.StartedAt.IsZero() {
				s.StartedAt = msg.Timestamp
			}
			s.EndedAt = msg.Timestamp
		}
		if msg.Role == transcript.RoleAssistant {
			if text := transcript.ExtractText(msg); text != "" {
				s.Preview = truncate(text, previewLen)
			}
		}
	}
}

func ownerOf(msgs []transcript.Message, callID string) *transcript.Message {
	for i := range msgs {
		for _, c := range msgs[i].ToolCalls {
			if c.ID == callID {
				return &msgs[i]
			}
		}
	}
	return nil
}

func canonical(path string) string {
	return filepath.Clean(path)
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
