package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cctrail/cctrail/internal/core/cache"
	"github.com/cctrail/cctrail/internal/core/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch transcripts and keep the result cache warm",
	Long: `Watch the projects root for transcript changes. Each changed file has
its cached reconstruction invalidated and rebuilt, so interactive consumers
always see a fresh view without re-parsing on every request.

Runs until interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	results, err := cache.New(e.builder, e.cfg.CacheCapacity, e.cfg.CacheTTL)
	if err != nil {
		return err
	}
	defer results.Close()

	watcher, err := watch.New(e.cfg.ProjectsRoot, results, e.log)
	if err != nil {
		return err
	}
	watcher.OnInvalidate = func(path string) {
		// Rebuild eagerly so the next request is a cache hit.
		if _, err := results.Session(path); err != nil {
			e.log.Warn("rebuild failed", "path", path, "error", err)
			return
		}
		fmt.Printf("✓ rebuilt %s\n", path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return watcher.Run(ctx)
}
