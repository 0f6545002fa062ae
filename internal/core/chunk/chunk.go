// Package chunk folds classified transcript messages into ordered, typed
// turn groupings, pairs tool calls with their results, and offers the
// coarser group and flat timeline materializations built from the same
// boundary scan.
package chunk

import (
	"sort"
	"strings"
	"time"

	"github.com/cctrail/cctrail/internal/core/classify"
	"github.com/cctrail/cctrail/internal/core/subagent"
	"github.com/cctrail/cctrail/pkg/transcript"
)

// Kind discriminates chunk variants.
type Kind string

const (
	KindUser    Kind = "user"
	KindAI      Kind = "ai"
	KindSystem  Kind = "system"
	KindCompact Kind = "compact"
)

// ToolExecution pairs a tool call with its result. Result is nil when the
// result never arrived; the pairing is session-wide by call id, so a result
// separated from its call by many lines still resolves.
type ToolExecution struct {
	Call      transcript.ToolCall
	Result    *transcript.ToolResult
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
}

// Resolved reports whether the result arrived.
func (e ToolExecution) Resolved() bool { return e.Result != nil }

// Chunk is one coherent display turn. Exactly the fields relevant to Kind
// are populated.
type Chunk struct {
	Kind Kind

	// KindUser
	User *transcript.Message

	// KindAI: one or more assistant responses with their tool executions,
	// subagent process summaries and associated sidechain messages.
	Responses []transcript.Message
	Tools     []ToolExecution
	Subagents []subagent.Summary
	Sidechain []transcript.Message

	// KindSystem
	Output string

	// KindCompact
	TokenDelta int
	Phase      int

	Messages []transcript.Message
	Usage    transcript.Usage
}

// Build performs the boundary scan over classified main-thread messages.
// Noise is dropped; a user message starts a new user chunk and flushes any
// open AI chunk; system and compact messages emit standalone chunks; AI
// messages coalesce into the current AI chunk, so a multi-step tool-using
// turn renders as one unit.
func Build(classified []classify.Classified, summaries map[string]subagent.Summary) []Chunk {
	return build(classified, nil, summaries)
}

// BuildWithSidechain is Build with the session's sidechain messages
// available for attachment to the AI chunks that spawned them.
func BuildWithSidechain(classified []classify.Classified, sidechain []transcript.Message, summaries map[string]subagent.Summary) []Chunk {
	return build(classified, sidechain, summaries)
}

func build(classified []classify.Classified, sidechain []transcript.Message, summaries map[string]subagent.Summary) []Chunk {
	results := indexResults(classified)

	var chunks []Chunk
	var open *Chunk
	phase := 0

	flush := func() {
		if open != nil {
			chunks = append(chunks, *open)
			open = nil
		}
	}

	for _, c := range classified {
		msg := c.Message
		switch c.Category {
		case classify.CategoryNoise:
			continue

		case classify.CategoryUser:
			flush()
			chunks = append(chunks, Chunk{
				Kind:     KindUser,
				User:     &msg,
				Messages: []transcript.Message{msg},
				Usage:    msg.Usage,
			})

		case classify.CategorySystem:
			flush()
			text := transcript.ExtractText(msg)
			if inner, ok := classify.CommandOutput(text); ok {
				text = strings.TrimSpace(inner)
			}
			chunks = append(chunks, Chunk{
				Kind:     KindSystem,
				Output:   text,
				Messages: []transcript.Message{msg},
				Usage:    msg.Usage,
			})

		case classify.CategoryCompact:
			flush()
			phase++
			chunks = append(chunks, Chunk{
				Kind:       KindCompact,
				TokenDelta: msg.Usage.Total(),
				Phase:      phase,
				Messages:   []transcript.Message{msg},
				Usage:      msg.Usage,
			})

		case classify.CategoryAI:
			if open == nil {
				open = &Chunk{Kind: KindAI}
			}
			open.Messages = append(open.Messages, msg)
			open.Usage.Add(msg.Usage)
			if msg.Role == transcript.RoleAssistant {
				open.Responses = append(open.Responses, msg)
			}
			for _, call := range msg.ToolCalls {
				exec := pair(call, msg, results)
				open.Tools = append(open.Tools, exec)
				if call.IsTask {
					if s, ok := summaries[call.ID]; ok {
						open.Subagents = append(open.Subagents, s)
					}
				}
			}
		}
	}
	flush()

	attachSidechain(chunks, sidechain)
	return chunks
}

// resultEntry remembers where a tool result landed so executions can derive
// their end time from the delivering message.
type resultEntry struct {
	result transcript.ToolResult
	at     time.Time
}

func indexResults(classified []classify.Classified) map[string]resultEntry {
	idx := make(map[string]resultEntry)
	for _, c := range classified {
		for _, r := range c.Message.ToolResults {
			if _, dup := idx[r.ToolUseID]; !dup {
				idx[r.ToolUseID] = resultEntry{result: r, at: c.Message.Timestamp}
			}
		}
	}
	return idx
}

func pair(call transcript.ToolCall, owner transcript.Message, results map[string]resultEntry) ToolExecution {
	exec := ToolExecution{Call: call, StartedAt: owner.Timestamp}
	if entry, ok := results[call.ID]; ok {
		r := entry.result
		exec.Result = &r
		exec.EndedAt = entry.at
		if !exec.StartedAt.IsZero() && !exec.EndedAt.IsZero() {
			exec.Duration = exec.EndedAt.Sub(exec.StartedAt)
		}
	}
	return exec
}

// attachSidechain distributes sidechain messages onto the AI chunks whose
// subagent processes produced them, matching by agent id.
func attachSidechain(chunks []Chunk, sidechain []transcript.Message) {
	if len(sidechain) == 0 {
		return
	}
	for i := range chunks {
		if chunks[i].Kind != KindAI || len(chunks[i].Subagents) == 0 {
			continue
		}
		agents := make(map[string]bool, len(chunks[i].Subagents))
		for _, s := range chunks[i].Subagents {
			agents[s.AgentID] = true
		}
		for _, m := range sidechain {
			if m.AgentID != "" && agents[m.AgentID] {
				chunks[i].Sidechain = append(chunks[i].Sidechain, m)
			}
		}
	}
}

// Group is the coarse materialization: one row per chunk exposing only the
// final output of each AI turn.
type Group struct {
	Kind     Kind
	Label    string
	Output   string
	Messages int
	Usage    transcript.Usage
}

// BuildGroups collapses chunks into groups. For AI chunks the output is the
// last assistant text, falling back to the last resolved tool result.
func BuildGroups(chunks []Chunk) []Group {
	out := make([]Group, 0, len(chunks))
	for _, ch := range chunks {
		g := Group{
			Kind:     ch.Kind,
			Messages: len(ch.Messages),
			Usage:    ch.Usage,
		}
		switch ch.Kind {
		case KindUser:
			g.Label = "user"
			if ch.User != nil {
				g.Output = transcript.ExtractText(*ch.User)
			}
		case KindSystem:
			g.Label = "command output"
			g.Output = ch.Output
		case KindCompact:
			g.Label = "context compacted"
		case KindAI:
			g.Label = "assistant"
			g.Output = lastOutput(ch)
		}
		out = append(out, g)
	}
	return out
}

func lastOutput(ch Chunk) string {
	for i := len(ch.Responses) - 1; i >= 0; i-- {
		if text := transcript.ExtractText(ch.Responses[i]); text != "" {
			return text
		}
	}
	for i := len(ch.Tools) - 1; i >= 0; i-- {
		if ch.Tools[i].Result != nil && ch.Tools[i].Result.Text != "" {
			return ch.Tools[i].Result.Text
		}
	}
	return ""
}

// SpanKind tags a timeline interval.
type SpanKind string

const (
	SpanTool     SpanKind = "tool"
	SpanSubagent SpanKind = "subagent"
)

// Span is one interval of the flattened visualization timeline.
type Span struct {
	Start time.Time
	End   time.Time
	Label string
	Kind  SpanKind
}

// BuildTimeline flattens every tool execution and subagent process into a
// list of intervals ordered by start time, original order as tie-break.
func BuildTimeline(chunks []Chunk) []Span {
	var spans []Span
	for _, ch := range chunks {
		if ch.Kind != KindAI {
			continue
		}
		for _, exec := range ch.Tools {
			if exec.Call.IsTask {
				continue // covered by the subagent span
			}
			spans = append(spans, Span{
				Start: exec.StartedAt,
				End:   exec.EndedAt,
				Label: exec.Call.Name,
				Kind:  SpanTool,
			})
		}
		for _, s := range ch.Subagents {
			label := s.AgentType
			if label == "" {
				label = transcript.TaskToolName
			}
			spans = append(spans, Span{
				Start: s.StartedAt,
				End:   s.EndedAt,
				Label: label,
				Kind:  SpanSubagent,
			})
		}
	}
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].Start.Before(spans[j].Start)
	})
	return spans
}
