package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cctrail/cctrail/internal/core/chunk"
)

var timelineCmd = &cobra.Command{
	Use:   "timeline <session-id|path>",
	Short: "Show tool and subagent activity as a flat timeline",
	Long: `Flatten every tool execution and subagent process of a session into
(start, end, label) intervals ordered by start time.

Examples:
  cctrail timeline 0ccfddc4-00e7-443a-bb82-58ede5936619`,
	Args: cobra.ExactArgs(1),
	RunE: runTimeline,
}

func init() {
	rootCmd.AddCommand(timelineCmd)
}

func runTimeline(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	path, err := e.resolveSession(args[0])
	if err != nil {
		return err
	}

	view, err := e.builder.BuildSession(path)
	if err != nil {
		return fmt.Errorf("failed to build session: %w", err)
	}

	spans := chunk.BuildTimeline(view.Chunks)
	if len(spans) == 0 {
		fmt.Println("No tool activity.")
		return nil
	}

	for _, span := range spans {
		start := "        "
		if !span.Start.IsZero() {
			start = span.Start.Format("15:04:05")
		}
		dur := "-"
		if !span.Start.IsZero() && !span.End.IsZero() {
			dur = span.End.Sub(span.Start).Round(time.Millisecond).String()
		}

		style := toolStyle
		if span.Kind == chunk.SpanSubagent {
			style = aiStyle
		}
		fmt.Printf("%s  %-10s %s %s\n",
			dimStyle.Render(start),
			dur,
			style.Render(string(span.Kind)),
			span.Label,
		)
	}
	return nil
}
