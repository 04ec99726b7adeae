package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ChicagoHAI/idea-explorer/cmd/idea-explorer/commands"
	"github.com/ChicagoHAI/idea-explorer/logger"
)

var rootCmd = &cobra.Command{
	Use:   "idea-explorer",
	Short: "idea-explorer - autonomous research pipeline orchestrator",
	Long: `idea-explorer runs research ideas through a multi-stage agent pipeline.

Each stage launches an external CLI agent (claude, codex, or gemini) in a
run workspace, supervises it to completion, and records durable state so
interrupted runs can be resumed.

Available commands:
  submit - Validate and register a research idea
  ideas  - List registered ideas
  run    - Start the pipeline for an idea
  resume - Continue an interrupted run
  status - Show run progress
  skip   - Mark a pending stage skipped
  config - Inspect and initialize configuration

Examples:
  idea-explorer submit my_idea.yaml
  idea-explorer run --idea sparse_attention_20260314_092653_ab12cd34
  idea-explorer resume --workdir runs/sparse-attention
  idea-explorer status --workdir runs/sparse-attention`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs instead of console output")

	rootCmd.AddCommand(commands.SubmitCmd)
	rootCmd.AddCommand(commands.IdeasCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ResumeCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.SkipCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
