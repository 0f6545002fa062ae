// Package scan enumerates session transcripts across all project
// directories and parses their headline data with bounded concurrency.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/cctrail/cctrail/internal/core/classify"
	"github.com/cctrail/cctrail/pkg/transcript"
)

// DefaultConcurrency bounds how many transcripts are parsed at once,
// capping peak open files and memory while overlapping I/O latency.
const DefaultConcurrency = 8

// Listing is one row of the cross-session index.
type Listing struct {
	SessionID   string
	Project     string // project directory name
	Path        string
	Summary     string
	FirstPrompt string
	Messages    int
	Modified    time.Time
	Size        int64
	// ValidID reports whether the filename is a conventional UUID
	// session id; agent transcripts and strays are listed but flagged.
	ValidID bool
}

// Scanner lists sessions under a projects root.
type Scanner struct {
	fsys        afero.Fs
	log         *slog.Logger
	concurrency int
}

func New(fsys afero.Fs, concurrency int, log *slog.Logger) *Scanner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{fsys: fsys, log: log, concurrency: concurrency}
}

// ListSessions walks {root}/{project}/*.jsonl, skipping subagent
// transcripts, and parses each file. Files are processed in concurrent
// batches bounded by the scanner's concurrency; unreadable files are
// logged and skipped rather than failing the listing. Results are sorted
// by modification time, newest first.
func (s *Scanner) ListSessions(ctx context.Context, root string) ([]Listing, error) {
	paths, err := s.discover(root)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var listings []Listing

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, p := range paths {
		p := p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			listing, err := s.describe(p)
			if err != nil {
				s.log.Warn("skipping unreadable session", "path", p, "error", err)
				return nil
			}
			mu.Lock()
			listings = append(listings, listing)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(listings, func(i, j int) bool {
		return listings[i].Modified.After(listings[j].Modified)
	})
	return listings, nil
}

// Resolve maps a bare session id to its transcript path under root. A path
// that already names a file is returned as is.
func (s *Scanner) Resolve(root, idOrPath string) (string, error) {
	if ok, err := afero.Exists(s.fsys, idOrPath); err == nil && ok {
		return idOrPath, nil
	}

	paths, err := s.discover(root)
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		if sessionIDOf(p) == idOrPath {
			return p, nil
		}
	}
	return "", fmt.Errorf("session %s: %w", idOrPath, transcript.ErrNotFound)
}

func (s *Scanner) discover(root string) ([]string, error) {
	projects, err := afero.ReadDir(s.fsys, root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("projects root %s: %w", root, transcript.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read projects root: %w", err)
	}

	var paths []string
	for _, project := range projects {
		if !project.IsDir() {
			continue
		}
		dir := filepath.Join(root, project.Name())
		files, err := afero.ReadDir(s.fsys, dir)
		if err != nil {
			s.log.Warn("skipping unreadable project dir", "dir", dir, "error", err)
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".jsonl" {
				continue
			}
			if strings.HasPrefix(f.Name(), "agent-") {
				continue // subagent transcript, addressed via its parent
			}
			paths = append(paths, filepath.Join(dir, f.Name()))
		}
	}
	return paths, nil
}

func (s *Scanner) describe(path string) (Listing, error) {
	session, err := transcript.ParseSession(s.fsys, path, s.log)
	if err != nil {
		return Listing{}, err
	}

	listing := Listing{
		SessionID: session.SessionID,
		Project:   filepath.Base(filepath.Dir(path)),
		Path:      path,
		Summary:   session.Summary,
		Messages:  len(session.Messages),
		Modified:  session.Metrics.Last,
	}

	if info, err := s.fsys.Stat(path); err == nil {
		listing.Size = info.Size()
		if listing.Modified.IsZero() {
			listing.Modified = info.ModTime()
		}
	}

	if _, err := uuid.Parse(sessionIDOf(path)); err == nil {
		listing.ValidID = true
	}

	listing.FirstPrompt = firstPrompt(session)
	return listing, nil
}

func firstPrompt(session *transcript.Session) string {
	for _, m := range session.Roles.User {
		if classify.Classify(m) != classify.CategoryUser {
			continue
		}
		if p := transcript.Preview(m, 80); p != "" {
			return strings.ReplaceAll(p, "\n", " ")
		}
	}
	return ""
}

func sessionIDOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
