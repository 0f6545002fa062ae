package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cbroglie/mustache"
	"github.com/spf13/cobra"

	"github.com/cctrail/cctrail/internal/core/chunk"
	"github.com/cctrail/cctrail/pkg/transcript"
)

var (
	exportOutput   string
	exportTemplate string
)

// defaultExportTemplate renders a session as markdown. Users can supply
// their own mustache template with --template.
const defaultExportTemplate = `# {{title}}

**Session ID:** ` + "`{{session_id}}`" + `
**Messages:** {{message_count}}
**Tokens:** {{total_tokens}}

---

{{#chunks}}
{{#is_user}}## User

{{text}}
{{/is_user}}
{{#is_ai}}## Assistant

{{text}}
{{#tools}}
- **{{name}}** {{status}}{{#output}}: {{output}}{{/output}}
{{/tools}}
{{#subagents}}
- **subagent {{agent_type}}** ({{status}}) {{preview}}
{{/subagents}}
{{/is_ai}}
{{#is_system}}## Command output

` + "```" + `
{{text}}
` + "```" + `
{{/is_system}}
{{#is_compact}}*Context compacted (phase {{phase}}).*
{{/is_compact}}

{{/chunks}}
`

var exportCmd = &cobra.Command{
	Use:   "export <session-id|path>",
	Short: "Export a session to markdown",
	Long: `Export a reconstructed session through a mustache template.

By default writes session-<id>.md in the current directory with a built-in
markdown template.

Examples:
  cctrail export 0ccfddc4-00e7-443a-bb82-58ede5936619
  cctrail export 0ccfddc4 -o session.md
  cctrail export 0ccfddc4 --template my-template.mustache`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: session-<id>.md)")
	exportCmd.Flags().StringVar(&exportTemplate, "template", "", "Custom mustache template file")
}

func runExport(cmd *cobra.Command, args []string) error {
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

	template := defaultExportTemplate
	if exportTemplate != "" {
		data, err := os.ReadFile(exportTemplate)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}
		template = string(data)
	}

	rendered, err := mustache.Render(template, exportData(view))
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	outputPath := exportOutput
	if outputPath == "" {
		outputPath = fmt.Sprintf("session-%s.md", shortID(view.Session.SessionID))
	}
	if !filepath.IsAbs(outputPath) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		outputPath = filepath.Join(cwd, outputPath)
	}

	if err := os.WriteFile(outputPath, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Printf("Exported to %s\n", outputPath)
	return nil
}

// exportData flattens a session view into the mustache context.
func exportData(view *chunk.SessionView) map[string]interface{} {
	title := view.Session.Summary
	if title == "" {
		title = view.Session.SessionID
	}

	chunks := make([]map[string]interface{}, 0, len(view.Chunks))
	for _, ch := range view.Chunks {
		chunks = append(chunks, chunkData(ch))
	}

	return map[string]interface{}{
		"title":         title,
		"session_id":    view.Session.SessionID,
		"message_count": len(view.Session.Messages),
		"total_tokens":  view.Session.Metrics.Usage.Total(),
		"chunks":        chunks,
	}
}

func chunkData(ch chunk.Chunk) map[string]interface{} {
	data := map[string]interface{}{
		"is_user":    ch.Kind == chunk.KindUser,
		"is_ai":      ch.Kind == chunk.KindAI,
		"is_system":  ch.Kind == chunk.KindSystem,
		"is_compact": ch.Kind == chunk.KindCompact,
		"phase":      ch.Phase,
	}

	switch ch.Kind {
	case chunk.KindUser:
		if ch.User != nil {
			data["text"] = transcript.ExtractText(*ch.User)
		}
	case chunk.KindSystem:
		data["text"] = ch.Output
	case chunk.KindAI:
		var text string
		for _, resp := range ch.Responses {
			if t := transcript.ExtractText(resp); t != "" {
				if text != "" {
					text += "\n\n"
				}
				text += t
			}
		}
		data["text"] = text

		tools := make([]map[string]interface{}, 0, len(ch.Tools))
		for _, exec := range ch.Tools {
			status := "(no result)"
			output := ""
			if exec.Resolved() {
				status = "ok"
				if exec.Result.IsError {
					status = "error"
				}
				output = clip(exec.Result.Text, 120)
			}
			tools = append(tools, map[string]interface{}{
				"name":   exec.Call.Name,
				"status": status,
				"output": output,
			})
		}
		data["tools"] = tools

		subs := make([]map[string]interface{}, 0, len(ch.Subagents))
		for _, s := range ch.Subagents {
			subs = append(subs, map[string]interface{}{
				"agent_type": s.AgentType,
				"status":     string(s.Status),
				"preview":    s.Preview,
			})
		}
		data["subagents"] = subs
	}
	return data
}
