package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/cctrail/cctrail/internal/core/chunk"
	"github.com/cctrail/cctrail/internal/core/config"
	"github.com/cctrail/cctrail/internal/core/scan"
)

var (
	projectsRoot string
	verbose      bool
	versionInfo  string
)

// SetVersion sets the version information from build-time ldflags
func SetVersion(version, commit, date string) {
	versionInfo = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.Version = versionInfo
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cctrail",
	Short: "Claude Code transcript browser",
	Long: `cctrail - reconstruct and browse Claude Code session transcripts

Reads the append-only JSONL logs Claude Code writes per session, rebuilds the
conversation as ordered turn chunks with paired tool calls and subagent
processes, and renders it for the terminal.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectsRoot, "root", "", "Projects root (default: ~/.claude/projects)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// env bundles the per-command wiring: configuration, filesystem, pipeline.
// Built fresh for each invocation; no global state is shared between
// commands.
type env struct {
	cfg     *config.Config
	fsys    afero.Fs
	log     *slog.Logger
	builder *chunk.Builder
	scanner *scan.Scanner
}

func newEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if projectsRoot != "" {
		cfg.ProjectsRoot = projectsRoot
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	fsys := afero.NewOsFs()
	return &env{
		cfg:     cfg,
		fsys:    fsys,
		log:     log,
		builder: chunk.NewBuilder(fsys, log),
		scanner: scan.New(fsys, cfg.ScanConcurrency, log),
	}, nil
}

// resolveSession accepts either a transcript path or a bare session id.
func (e *env) resolveSession(idOrPath string) (string, error) {
	path, err := e.scanner.Resolve(e.cfg.ProjectsRoot, idOrPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve session: %w", err)
	}
	return path, nil
}
