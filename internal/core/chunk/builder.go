package chunk

import (
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/cctrail/cctrail/internal/core/classify"
	"github.com/cctrail/cctrail/internal/core/subagent"
	"github.com/cctrail/cctrail/pkg/transcript"
)

// SessionView is the fully reconstructed model for one transcript: the
// parsed session plus its chunked main thread. Rebuilt fresh on every
// request; holds no shared state.
type SessionView struct {
	Session   *transcript.Session
	Classified []classify.Classified
	Chunks    []Chunk
	Subagents map[string]subagent.Summary
}

// Builder runs the full reconstruction pipeline — parse, classify, resolve
// subagent summaries, chunk — against a filesystem. A single Builder is safe
// for concurrent use: each call operates on its own message slices.
type Builder struct {
	fsys     afero.Fs
	resolver *subagent.Resolver
	log      *slog.Logger
}

func NewBuilder(fsys afero.Fs, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{
		fsys:     fsys,
		resolver: subagent.NewResolver(fsys, log),
		log:      log,
	}
}

// BuildSession reconstructs the transcript at path. Malformed lines and
// missing subagent transcripts degrade the view; only a missing or
// unreadable session file is an error.
func (b *Builder) BuildSession(path string) (*SessionView, error) {
	return b.buildView(path, map[string]bool{canonicalPath(path): true})
}

// SubagentDetail reconstructs the full conversation of one subagent spawned
// from the session at path, recursively including that subagent's own task
// invocations. ok is false when the transcript cannot be located: the
// subagent may still be executing or its log pruned. That is a normal
// outcome, not an error.
func (b *Builder) SubagentDetail(sessionPath, subagentID string) (view *SessionView, ok bool, err error) {
	agentPath, found := b.resolver.Locate(sessionPath, subagentID)
	if !found {
		return nil, false, nil
	}

	visited := map[string]bool{
		canonicalPath(sessionPath): true,
	}
	if visited[canonicalPath(agentPath)] {
		b.log.Warn("subagent transcript references itself", "path", agentPath)
		return nil, false, nil
	}
	visited[canonicalPath(agentPath)] = true

	view, err = b.buildView(agentPath, visited)
	if err != nil {
		return nil, false, err
	}
	return view, true, nil
}

// buildView runs the pipeline once. visited carries every transcript
// identity on the current resolution chain so cyclic references from
// malformed logs are rejected instead of recursed into.
func (b *Builder) buildView(path string, visited map[string]bool) (*SessionView, error) {
	session, err := transcript.ParseSession(b.fsys, path, b.log)
	if err != nil {
		return nil, err
	}

	classified := classify.All(session.MainThread)
	summaries := b.resolver.SummariesGuarded(path, session.TaskCalls, session.Messages, visited)
	chunks := BuildWithSidechain(classified, session.Sidechain, summaries)

	return &SessionView{
		Session:   session,
		Classified: classified,
		Chunks:    chunks,
		Subagents: summaries,
	}, nil
}

func canonicalPath(path string) string {
	return filepath.Clean(path)
}
