package chunk

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/cctrail/cctrail/internal/core/subagent"
	"github.com/cctrail/cctrail/pkg/transcript"
)

const (
	demoSessionID   = "22222222-2222-2222-2222-222222222222"
	demoSessionPath = "/projects/demo/" + demoSessionID + ".jsonl"
)

func lines(ls ...string) string { return strings.Join(ls, "\n") + "\n" }

// demoFs builds a session whose single turn spawns one completed subagent,
// plus the subagent's own transcript under the nested layout.
func demoFs(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()

	session := lines(
		`{"type":"user","uuid":"u1","sessionId":"`+demoSessionID+`","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"Investigate the crash"}}`,
		`{"type":"assistant","uuid":"a1","parentUuid":"u1","sessionId":"`+demoSessionID+`","timestamp":"2025-06-01T10:00:02Z","message":{"role":"assistant","content":[{"type":"text","text":"Spawning an explorer."},{"type":"tool_use","id":"task1","name":"Task","input":{"subagent_type":"explorer","description":"find the crash site","prompt":"grep for panics"}}],"usage":{"input_tokens":50,"output_tokens":10}}}`,
		`{"type":"user","uuid":"m1","parentUuid":"a1","sessionId":"`+demoSessionID+`","isMeta":true,"timestamp":"2025-06-01T10:01:00Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"task1","content":"panic in parser.go"}]},"toolUseResult":{"agentId":"abc"}}`,
		`{"type":"assistant","uuid":"a2","parentUuid":"m1","sessionId":"`+demoSessionID+`","timestamp":"2025-06-01T10:01:05Z","message":{"role":"assistant","content":[{"type":"text","text":"The parser is at fault."}],"usage":{"input_tokens":80,"output_tokens":20}}}`,
	)
	if err := afero.WriteFile(fsys, demoSessionPath, []byte(session), 0o644); err != nil {
		t.Fatal(err)
	}

	agentPath := filepath.Join("/projects/demo", demoSessionID, "subagents", "agent-abc.jsonl")
	agent := lines(
		`{"type":"user","uuid":"sa1","timestamp":"2025-06-01T10:00:10Z","message":{"role":"user","content":"grep for panics"}}`,
		`{"type":"assistant","uuid":"sa2","parentUuid":"sa1","timestamp":"2025-06-01T10:00:50Z","message":{"role":"assistant","content":[{"type":"text","text":"Found it in parser.go."}]}}`,
	)
	if err := afero.WriteFile(fsys, agentPath, []byte(agent), 0o644); err != nil {
		t.Fatal(err)
	}
	return fsys
}

func TestBuildSession_Pipeline(t *testing.T) {
	b := NewBuilder(demoFs(t), nil)

	view, err := b.BuildSession(demoSessionPath)
	if err != nil {
		t.Fatal(err)
	}

	if view.Session.SessionID != demoSessionID {
		t.Errorf("SessionID = %q", view.Session.SessionID)
	}
	if len(view.Chunks) != 2 {
		t.Fatalf("chunks = %d, want user + ai", len(view.Chunks))
	}
	ai := view.Chunks[1]
	if ai.Kind != KindAI || len(ai.Responses) != 2 {
		t.Fatalf("ai chunk = %+v", ai)
	}

	s, ok := view.Subagents["task1"]
	if !ok {
		t.Fatal("task invocation not summarized")
	}
	if s.Status != subagent.StatusCompleted {
		t.Errorf("Status = %v, want completed", s.Status)
	}
	if s.AgentID != "abc" {
		t.Errorf("AgentID = %q", s.AgentID)
	}
	if len(ai.Subagents) != 1 || ai.Subagents[0].CallID != "task1" {
		t.Errorf("summary not attached to spawning chunk: %+v", ai.Subagents)
	}
}

func TestBuildSession_Missing(t *testing.T) {
	b := NewBuilder(afero.NewMemMapFs(), nil)
	if _, err := b.BuildSession("/nope.jsonl"); !errors.Is(err, transcript.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSubagentDetail(t *testing.T) {
	b := NewBuilder(demoFs(t), nil)

	view, ok, err := b.SubagentDetail(demoSessionPath, "abc")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if len(view.Session.Messages) != 2 {
		t.Errorf("subagent messages = %d, want 2", len(view.Session.Messages))
	}
	if len(view.Chunks) != 2 {
		t.Errorf("subagent chunks = %d, want 2", len(view.Chunks))
	}
}

func TestSubagentDetail_NotFound(t *testing.T) {
	b := NewBuilder(demoFs(t), nil)

	view, ok, err := b.SubagentDetail(demoSessionPath, "no-such-agent")
	if err != nil {
		t.Fatalf("missing transcript must not be an error, got %v", err)
	}
	if ok || view != nil {
		t.Errorf("ok=%v view=%v, want not found", ok, view)
	}
}

func TestSubagentDetail_SelfReference(t *testing.T) {
	// A malformed agent transcript whose own task result points back at its
	// own agent id. Drill-down must terminate with the inner invocation left
	// unknown instead of recursing.
	fsys := afero.NewMemMapFs()

	session := lines(
		`{"type":"assistant","uuid":"a1","sessionId":"` + demoSessionID + `","timestamp":"2025-06-01T10:00:00Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"task1","name":"Task","input":{"subagent_type":"explorer"}}]}}`,
		`{"type":"user","uuid":"m1","parentUuid":"a1","isMeta":true,"timestamp":"2025-06-01T10:00:05Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"task1","content":"done"}]},"toolUseResult":{"agentId":"loop"}}`,
	)
	if err := afero.WriteFile(fsys, demoSessionPath, []byte(session), 0o644); err != nil {
		t.Fatal(err)
	}

	agentPath := filepath.Join("/projects/demo", "agent-loop.jsonl")
	agent := lines(
		`{"type":"assistant","uuid":"la1","timestamp":"2025-06-01T10:00:10Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"task2","name":"Task","input":{"subagent_type":"explorer"}}]}}`,
		`{"type":"user","uuid":"lm1","parentUuid":"la1","isMeta":true,"timestamp":"2025-06-01T10:00:15Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"task2","content":"done"}]},"toolUseResult":{"agentId":"loop"}}`,
	)
	if err := afero.WriteFile(fsys, agentPath, []byte(agent), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewBuilder(fsys, nil)
	view, ok, err := b.SubagentDetail(demoSessionPath, "loop")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}

	inner, found := view.Subagents["task2"]
	if !found {
		t.Fatal("inner invocation not summarized")
	}
	if inner.TranscriptPath != "" {
		t.Errorf("cyclic invocation must not expose a drill-down path, got %q", inner.TranscriptPath)
	}
}
