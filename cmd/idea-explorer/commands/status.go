package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ChicagoHAI/idea-explorer/config"
	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/pipeline"
)

// StatusCmd shows run progress
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline run progress",
	Long: `Show the stage-by-stage state of a run.

With --workdir, reads the run's state file directly. With --all, lists
every run recorded in the run index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, _ := cmd.Flags().GetString("workdir")
		all, _ := cmd.Flags().GetBool("all")
		jsonOut, _ := cmd.Flags().GetBool("json")

		if all {
			return showAllRuns(jsonOut)
		}
		if workDir == "" {
			return errors.New("one of --workdir or --all is required")
		}
		return showRun(workDir, jsonOut)
	},
}

func showRun(workDir string, jsonOut bool) error {
	run, err := pipeline.NewStateStore(workDir).Load()
	if err != nil {
		if errors.IsNotFoundError(err) {
			return errors.WithHint(err, "no pipeline has run in this workspace")
		}
		return err
	}

	if jsonOut {
		out, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to format run state")
		}
		fmt.Println(string(out))
		return nil
	}

	pterm.DefaultSection.Printf("Run %s", run.RunID)
	if run.IdeaID != "" {
		pterm.Info.Printf("Idea:     %s\n", run.IdeaID)
	}
	pterm.Info.Printf("Provider: %s\n", run.Provider)
	pterm.Info.Printf("Started:  %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
	if run.Completed {
		pterm.Success.Println("Run completed")
	} else if run.CurrentStage != "" {
		pterm.Info.Printf("Current stage: %s\n", run.CurrentStage)
	}
	pterm.Println()

	rows := pterm.TableData{{"Stage", "Status", "Attempts", "Error"}}
	for _, s := range run.Stages {
		errMsg := s.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		rows = append(rows, []string{
			s.Name,
			statusLabel(s.Status),
			fmt.Sprintf("%d", s.AttemptCount),
			errMsg,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func showAllRuns(jsonOut bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Database.Path == "" {
		return errors.New("no run index configured (database.path)")
	}

	index, err := pipeline.OpenRunIndex(cfg.Database.Path, "")
	if err != nil {
		return err
	}
	defer index.Close()

	runs, err := index.List("")
	if err != nil {
		return err
	}

	if jsonOut {
		out, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to format run list")
		}
		fmt.Println(string(out))
		return nil
	}

	if len(runs) == 0 {
		pterm.Info.Println("No runs recorded yet")
		return nil
	}

	rows := pterm.TableData{{"Run", "Idea", "Provider", "Status", "Workspace"}}
	for _, r := range runs {
		id := r.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{id, r.IdeaID, r.Provider, r.Status, r.Workspace})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func statusLabel(s pipeline.StageStatus) string {
	switch s {
	case pipeline.StageCompleted:
		return pterm.Green(string(s))
	case pipeline.StageFailed:
		return pterm.Red(string(s))
	case pipeline.StageRunning:
		return pterm.Yellow(string(s))
	case pipeline.StageSkipped:
		return pterm.Gray(string(s))
	default:
		return string(s)
	}
}

func init() {
	StatusCmd.Flags().String("workdir", "", "Run workspace directory")
	StatusCmd.Flags().Bool("all", false, "List every run in the run index")
	StatusCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
