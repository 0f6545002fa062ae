package transcript

import (
	"encoding/json"
	"strings"
	"time"
)

// Role identifies the sender of a message entry.
type Role string

const (
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleSystem      Role = "system"
	RoleSummary     Role = "summary"
	RoleFileHistory Role = "file-history-snapshot"
)

// SyntheticModel is the sentinel model tag Claude Code puts on injected
// placeholder assistant messages (interruption notices and the like).
const SyntheticModel = "<synthetic>"

// TaskToolName is the tool that spawns a subagent conversation.
const TaskToolName = "Task"

// BlockType tags one content block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
	// BlockUnknown retains block kinds this package does not model yet.
	BlockUnknown BlockType = "unknown"
)

// ContentBlock is one element of an array-form message payload. Exactly the
// field matching Type is meaningful; Raw keeps the original bytes for
// unknown kinds so nothing is dropped silently.
type ContentBlock struct {
	Type       BlockType
	Text       string
	ToolUse    *ToolCall
	ToolResult *ToolResult
	Raw        json.RawMessage
}

// ToolCall is a requested tool action extracted from an assistant message.
type ToolCall struct {
	ID     string
	Name   string
	Input  json.RawMessage
	IsTask bool

	// Task metadata, populated when IsTask is true.
	AgentType   string
	Description string
	Prompt      string
}

// ToolResult is the outcome of a tool call, correlated by ToolUseID. The
// result usually arrives wrapped in a later user-role message and may never
// arrive at all.
type ToolResult struct {
	ToolUseID string
	Text      string
	IsError   bool
	// AgentID links a Task result to its subagent transcript when the
	// record-level toolUseResult carries one.
	AgentID string
}

// Usage tracks per-message API token accounting.
type Usage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheReadTokens     int `json:"cache_read_input_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens"`
}

// Total returns all tokens attributed to the message.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheCreationTokens
}

// Add accumulates v into u.
func (u *Usage) Add(v Usage) {
	u.InputTokens += v.InputTokens
	u.OutputTokens += v.OutputTokens
	u.CacheReadTokens += v.CacheReadTokens
	u.CacheCreationTokens += v.CacheCreationTokens
}

// Message is one reconstructed conversation event. Content is either Text
// (string payload) or Blocks (array payload); at most one is set.
type Message struct {
	ID        string
	ParentID  string // empty means root
	Role      Role
	Timestamp time.Time
	Seq       int // line number in the source file

	Text   string
	Blocks []ContentBlock

	IsSidechain      bool
	IsMeta           bool
	IsCompactSummary bool
	Model            string
	AgentID          string

	Usage       Usage
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// IsSynthetic reports whether the message carries the injected-content
// model sentinel.
func (m *Message) IsSynthetic() bool {
	return m.Model == SyntheticModel
}

// rawMessage is the nested "message" payload of a record.
type rawMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   Usage           `json:"usage"`
}

// rawBlock covers every observed content block shape.
type rawBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type taskInput struct {
	SubagentType string `json:"subagent_type"`
	Description  string `json:"description"`
	Prompt       string `json:"prompt"`
}

// Normalize maps one decoded record into a canonical Message. ok is false
// for records that carry no message event at all (nothing to place in the
// conversation, e.g. an empty line object).
func Normalize(rec Record, seq int) (Message, bool) {
	msg := Message{
		ID:               rec.UUID,
		Role:             Role(rec.Type),
		Seq:              seq,
		IsSidechain:      rec.IsSidechain,
		IsMeta:           rec.IsMeta,
		IsCompactSummary: rec.IsCompactSummary,
		AgentID:          rec.AgentID,
	}
	if rec.ParentUUID != nil {
		msg.ParentID = *rec.ParentUUID
	}
	msg.Timestamp = parseTimestamp(rec.Timestamp)

	switch Role(rec.Type) {
	case RoleSummary:
		// Summary entries carry no uuid of their own; leafUuid points at
		// the message they summarize, so it is not usable as an id here.
		msg.Text = rec.Summary
	case RoleUser, RoleAssistant:
		decodePayload(&msg, rec.Message)
	case RoleSystem, RoleFileHistory:
		// No conversational payload to extract.
	default:
		if rec.Type == "" {
			return Message{}, false
		}
		// Unknown entry type: keep it so the classifier can reject it
		// rather than dropping a line we do not understand.
		decodePayload(&msg, rec.Message)
	}

	if len(rec.ToolUseResult) > 0 {
		attachAgentID(&msg, rec.ToolUseResult)
	}

	return msg, true
}

// decodePayload fills content, usage and extracted tool calls/results from
// the nested message payload. The payload content is either a plain string
// or an ordered array of typed blocks.
func decodePayload(msg *Message, payload json.RawMessage) {
	if len(payload) == 0 {
		return
	}

	var raw rawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return
	}
	msg.Model = raw.Model
	msg.Usage = raw.Usage

	var s string
	if err := json.Unmarshal(raw.Content, &s); err == nil {
		msg.Text = s
		return
	}

	var blocks []json.RawMessage
	if err := json.Unmarshal(raw.Content, &blocks); err != nil {
		return
	}
	for _, b := range blocks {
		msg.Blocks = append(msg.Blocks, decodeBlock(msg, b))
	}
}

func decodeBlock(msg *Message, data json.RawMessage) ContentBlock {
	var raw rawBlock
	if err := json.Unmarshal(data, &raw); err != nil {
		return ContentBlock{Type: BlockUnknown, Raw: data}
	}

	switch raw.Type {
	case "text":
		return ContentBlock{Type: BlockText, Text: raw.Text}
	case "thinking":
		return ContentBlock{Type: BlockThinking, Text: raw.Thinking}
	case "tool_use":
		call := ToolCall{ID: raw.ID, Name: raw.Name, Input: raw.Input}
		if raw.Name == TaskToolName {
			call.IsTask = true
			var ti taskInput
			if err := json.Unmarshal(raw.Input, &ti); err == nil {
				call.AgentType = ti.SubagentType
				call.Description = ti.Description
				call.Prompt = ti.Prompt
			}
		}
		msg.ToolCalls = append(msg.ToolCalls, call)
		block := call
		return ContentBlock{Type: BlockToolUse, ToolUse: &block}
	case "tool_result":
		result := ToolResult{
			ToolUseID: raw.ToolUseID,
			Text:      extractResultText(raw.Content),
			IsError:   raw.IsError,
		}
		msg.ToolResults = append(msg.ToolResults, result)
		block := result
		return ContentBlock{Type: BlockToolResult, ToolResult: &block}
	case "image":
		return ContentBlock{Type: BlockImage, Raw: data}
	default:
		return ContentBlock{Type: BlockUnknown, Raw: data}
	}
}

// extractResultText flattens a tool_result content payload, which is itself
// either a string or an array of text blocks.
func extractResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []rawBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// attachAgentID copies the agent id from a record-level toolUseResult onto
// the extracted results so Task invocations can be tied to their transcript.
func attachAgentID(msg *Message, raw json.RawMessage) {
	var tur struct {
		AgentID string `json:"agentId"`
	}
	if err := json.Unmarshal(raw, &tur); err != nil || tur.AgentID == "" {
		return
	}
	for i := range msg.ToolResults {
		msg.ToolResults[i].AgentID = tur.AgentID
	}
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
