package cache

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/cctrail/cctrail/internal/core/chunk"
	"github.com/cctrail/cctrail/pkg/transcript"
)

const (
	testSessionID   = "33333333-3333-3333-3333-333333333333"
	testSessionPath = "/projects/demo/" + testSessionID + ".jsonl"
)

func newTestCache(t *testing.T) (*Cache, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()

	session := strings.Join([]string{
		`{"type":"user","uuid":"u1","sessionId":"` + testSessionID + `","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"hello"}}`,
		`{"type":"assistant","uuid":"a1","parentUuid":"u1","timestamp":"2025-06-01T10:00:01Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"task1","name":"Task","input":{"subagent_type":"explorer"}}]}}`,
		`{"type":"user","uuid":"m1","parentUuid":"a1","isMeta":true,"timestamp":"2025-06-01T10:00:09Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"task1","content":"done"}]},"toolUseResult":{"agentId":"abc"}}`,
	}, "\n") + "\n"
	if err := afero.WriteFile(fsys, testSessionPath, []byte(session), 0o644); err != nil {
		t.Fatal(err)
	}

	agentPath := filepath.Join("/projects/demo", testSessionID, "subagents", "agent-abc.jsonl")
	agent := `{"type":"user","uuid":"sa1","timestamp":"2025-06-01T10:00:02Z","message":{"role":"user","content":"explore"}}` + "\n"
	if err := afero.WriteFile(fsys, agentPath, []byte(agent), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := New(chunk.NewBuilder(fsys, nil), 64, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c, fsys
}

func TestSession_Memoized(t *testing.T) {
	c, _ := newTestCache(t)

	first, err := c.Session(testSessionPath)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Session(testSessionPath)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second access rebuilt the view instead of hitting the cache")
	}
}

func TestSession_ConcurrentSingleBuild(t *testing.T) {
	c, _ := newTestCache(t)

	const workers = 16
	views := make([]*chunk.SessionView, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Session(testSessionPath)
			if err != nil {
				t.Error(err)
				return
			}
			views[i] = v
		}(i)
	}
	wg.Wait()

	// All simultaneous first requests share the one in-flight build.
	for i := 1; i < workers; i++ {
		if views[i] != views[0] {
			t.Fatalf("worker %d got a distinct view", i)
		}
	}
}

func TestSession_MissingNotCached(t *testing.T) {
	c, _ := newTestCache(t)

	if _, err := c.Session("/nope.jsonl"); !errors.Is(err, transcript.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if c.Len() != 0 {
		t.Errorf("failed build left %d cache entries", c.Len())
	}
}

func TestSubagent(t *testing.T) {
	c, _ := newTestCache(t)

	view, ok, err := c.Subagent(testSessionPath, "abc")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if len(view.Session.Messages) != 1 {
		t.Errorf("subagent messages = %d, want 1", len(view.Session.Messages))
	}

	again, ok, err := c.Subagent(testSessionPath, "abc")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if again != view {
		t.Error("subagent view not memoized")
	}

	if _, ok, err := c.Subagent(testSessionPath, "missing"); err != nil || ok {
		t.Errorf("missing subagent: ok=%v err=%v, want silent miss", ok, err)
	}
}

func TestInvalidate(t *testing.T) {
	c, fsys := newTestCache(t)

	before, err := c.Session(testSessionPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Subagent(testSessionPath, "abc"); err != nil {
		t.Fatal(err)
	}

	// Append a turn, then invalidate: the next access re-parses the file.
	extra := `{"type":"user","uuid":"u2","parentUuid":"m1","timestamp":"2025-06-01T10:01:00Z","message":{"role":"user","content":"and then?"}}` + "\n"
	data, err := afero.ReadFile(fsys, testSessionPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, testSessionPath, append(data, extra...), 0o644); err != nil {
		t.Fatal(err)
	}

	c.Invalidate(testSessionPath)

	after, err := c.Session(testSessionPath)
	if err != nil {
		t.Fatal(err)
	}
	if after == before {
		t.Fatal("invalidation did not drop the session entry")
	}
	if len(after.Session.Messages) != len(before.Session.Messages)+1 {
		t.Errorf("rebuilt view has %d messages, want %d",
			len(after.Session.Messages), len(before.Session.Messages)+1)
	}
}

func TestInvalidateAll(t *testing.T) {
	c, _ := newTestCache(t)

	if _, err := c.Session(testSessionPath); err != nil {
		t.Fatal(err)
	}
	c.InvalidateAll()
	if c.Len() != 0 {
		t.Errorf("Len = %d after clear", c.Len())
	}
}
