package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ChicagoHAI/idea-explorer/config"
	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/pipeline"
)

// SkipCmd marks a pending stage as skipped in an existing run
var SkipCmd = &cobra.Command{
	Use:   "skip <stage>",
	Short: "Mark a pending stage as skipped",
	Long: `Mark a pending stage of an existing run as skipped.

Use this when a stage's work was done outside the pipeline, for example
when resources were gathered by hand. A subsequent resume proceeds past
the skipped stage. Only pending stages can be skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		workDir, _ := cmd.Flags().GetString("workdir")
		if workDir == "" {
			return errors.New("--workdir is required")
		}

		// Operate on the state file directly; no agent is launched
		lock, err := pipeline.AcquireLock(workDir)
		if err != nil {
			return err
		}
		defer lock.Release()

		store := pipeline.NewStateStore(workDir)
		run, err := store.Load()
		if err != nil {
			if errors.IsNotFoundError(err) {
				return errors.WithHint(err, "is this workspace from a previous run?")
			}
			return err
		}
		if err := run.SkipStage(args[0]); err != nil {
			return err
		}
		if err := store.Save(run); err != nil {
			return err
		}

		if cfg.Database.Path != "" {
			index, err := pipeline.OpenRunIndex(cfg.Database.Path, workDir)
			if err == nil {
				defer index.Close()
				if err := index.Record(run); err != nil {
					pterm.Warning.Printf("Could not update run index: %v\n", err)
				}
			}
		}

		pterm.Success.Printf("Stage %s marked skipped\n", args[0])
		pterm.Printf("Continue with: idea-explorer resume --workdir %s\n", workDir)
		return nil
	},
}

func init() {
	SkipCmd.Flags().String("workdir", "", "Run workspace directory")
}
