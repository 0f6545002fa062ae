// Package cache memoizes reconstructed session views under session and
// (session, subagent) keys. Entries live until TTL expiry or an explicit
// invalidation from the file watcher; the pipeline itself stays stateless.
package cache

import (
	"fmt"
	"time"

	"github.com/maypok86/otter"
	"golang.org/x/sync/singleflight"

	"github.com/cctrail/cctrail/internal/core/chunk"
)

// Cache fronts a Builder with a TTL-evicting store. Concurrent requests for
// the same key are collapsed into a single build: the in-flight registry
// makes the one-build-per-key guarantee explicit instead of leaving
// duplicate work as a race.
type Cache struct {
	builder *chunk.Builder
	store   otter.Cache[string, *chunk.SessionView]
	flight  singleflight.Group
}

// New builds a cache with the given capacity (entries) and TTL.
func New(builder *chunk.Builder, capacity int, ttl time.Duration) (*Cache, error) {
	store, err := otter.MustBuilder[string, *chunk.SessionView](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build result cache: %w", err)
	}
	return &Cache{builder: builder, store: store}, nil
}

func sessionKey(path string) string { return "session:" + path }

func subagentKey(path, id string) string { return "subagent:" + path + "#" + id }

// Session returns the reconstructed view for a transcript, building it at
// most once per key no matter how many requests arrive together.
func (c *Cache) Session(path string) (*chunk.SessionView, error) {
	key := sessionKey(path)
	if view, ok := c.store.Get(key); ok {
		return view, nil
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		if view, ok := c.store.Get(key); ok {
			return view, nil
		}
		view, err := c.builder.BuildSession(path)
		if err != nil {
			return nil, err
		}
		c.store.Set(key, view)
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*chunk.SessionView), nil
}

// Subagent returns the full reconstruction of one subagent transcript.
// ok is false when the transcript cannot be located.
func (c *Cache) Subagent(sessionPath, subagentID string) (*chunk.SessionView, bool, error) {
	key := subagentKey(sessionPath, subagentID)
	if view, ok := c.store.Get(key); ok {
		return view, true, nil
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		if view, ok := c.store.Get(key); ok {
			return view, nil
		}
		view, found, err := c.builder.SubagentDetail(sessionPath, subagentID)
		if err != nil {
			return nil, err
		}
		if !found {
			// Not cached: the transcript may appear shortly.
			return (*chunk.SessionView)(nil), nil
		}
		c.store.Set(key, view)
		return view, nil
	})
	if err != nil {
		return nil, false, err
	}
	view := v.(*chunk.SessionView)
	if view == nil {
		return nil, false, nil
	}
	return view, true, nil
}

// Invalidate drops every entry derived from the given transcript path: the
// session view and all subagent views keyed under it. A changed file
// triggers a full re-parse on next access, never a delta.
func (c *Cache) Invalidate(path string) {
	c.store.Delete(sessionKey(path))
	prefix := "subagent:" + path + "#"
	var stale []string
	c.store.Range(func(key string, _ *chunk.SessionView) bool {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			stale = append(stale, key)
		}
		return true
	})
	for _, key := range stale {
		c.store.Delete(key)
	}
}

// InvalidateAll clears the cache.
func (c *Cache) InvalidateAll() {
	c.store.Clear()
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	return c.store.Size()
}

// Close releases the underlying store.
func (c *Cache) Close() {
	c.store.Close()
}
