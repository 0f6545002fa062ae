package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	listLimit   int
	listProject string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List Claude Code sessions",
	Long: `List sessions under the projects root in reverse chronological order.

Shows session summaries, project directories, message counts, and last
activity. Transcripts are parsed on the fly; nothing is persisted.

Examples:
  cctrail list
  cctrail list --limit 10
  cctrail list --project my-api`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of sessions to display")
	listCmd.Flags().StringVar(&listProject, "project", "", "Filter by project directory name")
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	listings, err := e.scanner.ListSessions(cmd.Context(), e.cfg.ProjectsRoot)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if listProject != "" {
		filtered := listings[:0]
		for _, l := range listings {
			if strings.Contains(l.Project, listProject) {
				filtered = append(filtered, l)
			}
		}
		listings = filtered
	}
	if len(listings) > listLimit {
		listings = listings[:listLimit]
	}

	if len(listings) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	for _, l := range listings {
		title := l.Summary
		if title == "" {
			title = l.FirstPrompt
		}
		if title == "" {
			title = "(no prompt)"
		}

		fmt.Printf("%s  %s\n", headerStyle.Render(shortID(l.SessionID)), title)
		fmt.Printf("    %s · %d messages · %s · %s\n",
			l.Project,
			l.Messages,
			humanize.Bytes(uint64(l.Size)),
			humanize.Time(l.Modified),
		)
	}

	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
