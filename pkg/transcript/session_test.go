package transcript

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestParseSession(t *testing.T) {
	session, err := ParseSession(afero.NewOsFs(), "testdata/sample.jsonl", nil)
	if err != nil {
		t.Fatalf("ParseSession() error = %v", err)
	}

	if session.Summary != "Fix the flaky importer test" {
		t.Errorf("Summary = %q", session.Summary)
	}
	if session.SessionID != "4f9d2c1e-8a3b-4c5d-9e6f-0a1b2c3d4e5f" {
		t.Errorf("SessionID = %q", session.SessionID)
	}
	if session.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 (the non-JSON line)", session.Skipped)
	}
	// summary + user + assistant + meta + assistant
	if len(session.Messages) != 5 {
		t.Fatalf("Messages = %d, want 5", len(session.Messages))
	}

	if got := session.Metrics.Usage.InputTokens; got != 320 {
		t.Errorf("InputTokens = %d, want 320", got)
	}
	if got := session.Metrics.Usage.OutputTokens; got != 100 {
		t.Errorf("OutputTokens = %d, want 100", got)
	}

	if len(session.Roles.User) != 1 {
		t.Errorf("real user messages = %d, want 1", len(session.Roles.User))
	}
	if len(session.Roles.Meta) != 1 {
		t.Errorf("meta user messages = %d, want 1", len(session.Roles.Meta))
	}
	if len(session.Roles.Assistant) != 2 {
		t.Errorf("assistant messages = %d, want 2", len(session.Roles.Assistant))
	}
}

func TestParseSession_MissingFile(t *testing.T) {
	_, err := ParseSession(afero.NewMemMapFs(), "/gone.jsonl", nil)
	if err == nil {
		t.Fatal("ParseSession() should fail for a missing file")
	}
}

func TestParseSession_DanglingParent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	content := `{"type":"user","uuid":"u1","parentUuid":"never-seen","message":{"role":"user","content":"hi"}}
`
	if err := afero.WriteFile(fsys, "/s.jsonl", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	session, err := ParseSession(fsys, "/s.jsonl", nil)
	if err != nil {
		t.Fatalf("ParseSession() error = %v", err)
	}
	if got := session.Messages[0].ParentID; got != "" {
		t.Errorf("dangling parent kept: %q, want treated as root", got)
	}
}

func TestParseSession_AgentFileKeepsFilenameID(t *testing.T) {
	fsys := afero.NewMemMapFs()
	// The embedded sessionId of an agent transcript names the parent.
	content := `{"type":"user","uuid":"u1","sessionId":"parent-session","message":{"role":"user","content":"subtask"}}
`
	if err := afero.WriteFile(fsys, "/p/agent-xyz.jsonl", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	session, err := ParseSession(fsys, "/p/agent-xyz.jsonl", nil)
	if err != nil {
		t.Fatalf("ParseSession() error = %v", err)
	}
	if session.SessionID != "agent-xyz" {
		t.Errorf("SessionID = %q, want agent-xyz", session.SessionID)
	}
}

func msgsForQueries() []Message {
	ts := func(sec int) time.Time {
		return time.Date(2025, 6, 1, 10, 0, sec, 0, time.UTC)
	}
	return []Message{
		{ID: "u1", Role: RoleUser, Timestamp: ts(0), Text: "first question"},
		{ID: "a1", Role: RoleAssistant, Timestamp: ts(5), Blocks: []ContentBlock{{Type: BlockText, Text: "working"}},
			ToolCalls: []ToolCall{{ID: "t1", Name: "Read"}}},
		{ID: "m1", Role: RoleUser, IsMeta: true, Timestamp: ts(6),
			ToolResults: []ToolResult{{ToolUseID: "t1", Text: "file contents"}}},
		{ID: "a2", Role: RoleAssistant, Timestamp: ts(9), Blocks: []ContentBlock{{Type: BlockText, Text: "done"}}},
		{ID: "u2", Role: RoleUser, Timestamp: ts(20), Text: "second question"},
		{ID: "a3", Role: RoleAssistant, Timestamp: ts(25), Blocks: []ContentBlock{{Type: BlockText, Text: "answer"}}},
	}
}

func TestResponsesAfter(t *testing.T) {
	msgs := msgsForQueries()

	t.Run("known id", func(t *testing.T) {
		got := ResponsesAfter(msgs, "u1")
		if len(got) != 2 {
			t.Fatalf("responses = %d, want 2", len(got))
		}
		if got[0].ID != "a1" || got[1].ID != "a2" {
			t.Errorf("responses = %q, %q", got[0].ID, got[1].ID)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		if got := ResponsesAfter(msgs, "nope"); len(got) != 0 {
			t.Errorf("responses = %d, want 0", len(got))
		}
	})

	t.Run("last user", func(t *testing.T) {
		got := ResponsesAfter(msgs, "u2")
		if len(got) != 1 || got[0].ID != "a3" {
			t.Errorf("responses = %+v, want [a3]", got)
		}
	})
}

func TestFindToolResult(t *testing.T) {
	msgs := msgsForQueries()

	owner, result, ok := FindToolResult(msgs, "t1")
	if !ok {
		t.Fatal("FindToolResult() ok = false for existing id")
	}
	if owner.ID != "m1" {
		t.Errorf("owner = %q, want m1", owner.ID)
	}
	if result.Text != "file contents" {
		t.Errorf("result.Text = %q", result.Text)
	}

	if _, _, ok := FindToolResult(msgs, "missing"); ok {
		t.Error("FindToolResult() ok = true for non-existent id")
	}
}

func TestTimeRange(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		first, last, dur := TimeRange(nil)
		if !first.IsZero() || !last.IsZero() || dur != 0 {
			t.Errorf("TimeRange(nil) = %v, %v, %v, want zeros", first, last, dur)
		}
	})

	t.Run("out of order timestamps", func(t *testing.T) {
		msgs := []Message{
			{Timestamp: time.Date(2025, 6, 1, 10, 0, 30, 0, time.UTC)},
			{Timestamp: time.Date(2025, 6, 1, 10, 0, 10, 0, time.UTC)},
		}
		first, last, dur := TimeRange(msgs)
		if first.Second() != 10 || last.Second() != 30 {
			t.Errorf("range = %v..%v", first, last)
		}
		if dur != 20*time.Second {
			t.Errorf("duration = %v, want 20s", dur)
		}
	})
}

func TestBuildTree(t *testing.T) {
	msgs := []Message{
		{ID: "r"},
		{ID: "c1", ParentID: "r"},
		{ID: "c2", ParentID: "r"},
		{ID: "g1", ParentID: "c1"},
	}

	tree := BuildTree(msgs)
	if len(tree["r"]) != 2 {
		t.Errorf("children of r = %d, want 2", len(tree["r"]))
	}
	if len(tree[""]) != 1 {
		t.Errorf("roots = %d, want 1", len(tree[""]))
	}

	kids := ChildrenOf(msgs, "c1")
	if len(kids) != 1 || kids[0].ID != "g1" {
		t.Errorf("ChildrenOf(c1) = %+v", kids)
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"string content", Message{Text: "plain"}, "plain"},
		{
			"text blocks only",
			Message{Blocks: []ContentBlock{
				{Type: BlockThinking, Text: "pondering"},
				{Type: BlockText, Text: "visible"},
				{Type: BlockToolUse},
				{Type: BlockText, Text: "more"},
			}},
			"visible\nmore",
		},
		{"empty", Message{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractText(tt.msg); got != tt.want {
				t.Errorf("ExtractText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	long := Message{Text: "abcdefghijklmnopqrstuvwxyz"}
	short := Message{Text: "abc"}

	if got := Preview(long, 10); len(got) != 13 {
		t.Errorf("truncated preview length = %d, want 13", len(got))
	} else if got != "abcdefghij..." {
		t.Errorf("preview = %q", got)
	}

	if got := Preview(short, 10); got != "abc" {
		t.Errorf("untruncated preview = %q, want unchanged", got)
	}

	if got := Preview(Message{Text: "0123456789"}, 10); got != "0123456789" {
		t.Errorf("exact-length preview = %q, want unchanged", got)
	}
}

func TestToolCallsNamed(t *testing.T) {
	msgs := []Message{
		{ID: "a1", ToolCalls: []ToolCall{{ID: "t1", Name: "Read"}, {ID: "t2", Name: "Task", IsTask: true}}},
		{ID: "a2", ToolCalls: []ToolCall{{ID: "t3", Name: "Read"}}},
	}

	reads := ToolCallsNamed(msgs, "Read")
	if len(reads) != 2 || reads[0].ID != "t1" || reads[1].ID != "t3" {
		t.Errorf("ToolCallsNamed(Read) = %+v", reads)
	}

	tasks := TaskCalls(msgs)
	if len(tasks) != 1 || tasks[0].ID != "t2" {
		t.Errorf("TaskCalls() = %+v", tasks)
	}
}
