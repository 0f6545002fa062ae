package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var subagentDetail string

var subagentsCmd = &cobra.Command{
	Use:   "subagents <session-id|path>",
	Short: "List the subagent processes of a session",
	Long: `List every Task invocation of a session with inferred status, timing
and output preview. Use --detail to reconstruct one subagent's own
conversation in full, including its nested subagents.

Examples:
  cctrail subagents 0ccfddc4-00e7-443a-bb82-58ede5936619
  cctrail subagents 0ccfddc4 --detail toolu_01AbCdE`,
	Args: cobra.ExactArgs(1),
	RunE: runSubagents,
}

func init() {
	rootCmd.AddCommand(subagentsCmd)
	subagentsCmd.Flags().StringVar(&subagentDetail, "detail", "", "Tool call id of the subagent to expand")
}

func runSubagents(cmd *cobra.Command, args []string) error {
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

	if subagentDetail != "" {
		// --detail takes the tool call id; the transcript lives under the
		// agent id the result reported.
		agentID := subagentDetail
		if s, ok := view.Subagents[subagentDetail]; ok {
			agentID = s.AgentID
		}
		detail, ok, err := e.builder.SubagentDetail(path, agentID)
		if err != nil {
			return fmt.Errorf("failed to build subagent detail: %w", err)
		}
		if !ok {
			fmt.Printf("Subagent %s: transcript not found (still running, or pruned)\n", subagentDetail)
			return nil
		}
		printSessionHeader(detail)
		for _, ch := range detail.Chunks {
			printChunk(ch)
		}
		return nil
	}

	if len(view.Subagents) == 0 {
		fmt.Println("No subagents in this session.")
		return nil
	}

	// Report in invocation order, not map order.
	for _, call := range view.Session.TaskCalls {
		s, ok := view.Subagents[call.ID]
		if !ok {
			continue
		}
		printSubagent(s)
		fmt.Printf("    %s\n", dimStyle.Render("call "+s.CallID))
	}
	return nil
}
