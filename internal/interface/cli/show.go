package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cctrail/cctrail/internal/core/chunk"
	"github.com/cctrail/cctrail/internal/core/subagent"
	"github.com/cctrail/cctrail/pkg/transcript"
)

var (
	showGroups bool
	showFull   bool
)

var showCmd = &cobra.Command{
	Use:   "show <session-id|path>",
	Short: "Show a reconstructed session",
	Long: `Show a session as ordered conversation chunks.

Each chunk is one coherent turn: a user prompt, a multi-step assistant turn
with its tool executions and subagent processes, local command output, or a
context-compaction marker.

Examples:
  cctrail show 0ccfddc4-00e7-443a-bb82-58ede5936619
  cctrail show ./session.jsonl --groups
  cctrail show 0ccfddc4 --full`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showGroups, "groups", false, "Coarse view: one line per turn, final output only")
	showCmd.Flags().BoolVar(&showFull, "full", false, "Do not truncate message text")
}

func runShow(cmd *cobra.Command, args []string) error {
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

	printSessionHeader(view)

	if showGroups {
		for _, g := range chunk.BuildGroups(view.Chunks) {
			fmt.Printf("%s %s\n", dimStyle.Render("["+string(g.Kind)+"]"), clip(g.Output, 100))
		}
		return nil
	}

	for _, ch := range view.Chunks {
		printChunk(ch)
	}
	return nil
}

func printSessionHeader(view *chunk.SessionView) {
	s := view.Session
	title := s.Summary
	if title == "" {
		title = s.SessionID
	}
	fmt.Println(headerStyle.Render(title))
	fmt.Printf("%s\n\n", dimStyle.Render(fmt.Sprintf(
		"%d messages · %s tokens · %s",
		len(s.Messages),
		humanize.Comma(int64(s.Metrics.Usage.Total())),
		s.Metrics.Duration.Round(time.Second),
	)))
	if s.Skipped > 0 {
		fmt.Printf("%s\n\n", errStyle.Render(fmt.Sprintf("%d malformed lines skipped", s.Skipped)))
	}
}

func printChunk(ch chunk.Chunk) {
	switch ch.Kind {
	case chunk.KindUser:
		fmt.Println(userStyle.Render("> user"))
		if ch.User != nil {
			fmt.Println(indent(clipText(transcript.ExtractText(*ch.User))))
		}

	case chunk.KindSystem:
		fmt.Println(systemStyle.Render("> command output"))
		fmt.Println(indent(clipText(ch.Output)))

	case chunk.KindCompact:
		fmt.Println(systemStyle.Render(fmt.Sprintf("> context compacted (phase %d)", ch.Phase)))

	case chunk.KindAI:
		fmt.Println(aiStyle.Render("> assistant"))
		for _, resp := range ch.Responses {
			if text := transcript.ExtractText(resp); text != "" {
				fmt.Println(indent(clipText(text)))
			}
		}
		for _, exec := range ch.Tools {
			printTool(exec)
		}
		for _, s := range ch.Subagents {
			printSubagent(s)
		}
	}
	fmt.Println()
}

func printTool(exec chunk.ToolExecution) {
	status := "…"
	if exec.Resolved() {
		status = "ok"
		if exec.Result.IsError {
			status = errStyle.Render("error")
		}
	}
	line := fmt.Sprintf("⏺ %s [%s]", exec.Call.Name, status)
	if exec.Duration > 0 {
		line += dimStyle.Render(fmt.Sprintf(" %s", exec.Duration.Round(time.Millisecond)))
	}
	fmt.Println(indent(toolStyle.Render(line)))
	if exec.Resolved() && exec.Result.Text != "" {
		fmt.Println(indent(indent(clip(exec.Result.Text, 200))))
	}
}

func printSubagent(s subagent.Summary) {
	label := s.AgentType
	if label == "" {
		label = "subagent"
	}
	line := fmt.Sprintf("⏺ %s (%s)", label, s.Status)
	if s.Duration > 0 {
		line += dimStyle.Render(fmt.Sprintf(" %s", s.Duration.Round(time.Second)))
	}
	fmt.Println(indent(toolStyle.Render(line)))
	if s.Preview != "" {
		fmt.Println(indent(indent(clip(s.Preview, 200))))
	}
}

func clipText(s string) string {
	if showFull {
		return s
	}
	return clip(s, 500)
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
