package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ChicagoHAI/idea-explorer/config"
	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/idea"
)

// IdeasCmd lists registered ideas
var IdeasCmd = &cobra.Command{
	Use:   "ideas",
	Short: "List registered research ideas",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		statusFilter, _ := cmd.Flags().GetString("status")

		var status idea.Status
		switch statusFilter {
		case "":
		case string(idea.StatusSubmitted), string(idea.StatusInProgress), string(idea.StatusCompleted):
			status = idea.Status(statusFilter)
		default:
			return errors.Newf("unknown status %q (submitted, in_progress, completed)", statusFilter)
		}

		mgr, err := idea.NewManager(cfg.Workspace.IdeasDir)
		if err != nil {
			return err
		}
		ideas, err := mgr.List(status)
		if err != nil {
			return err
		}
		if len(ideas) == 0 {
			pterm.Info.Println("No ideas found")
			return nil
		}

		rows := pterm.TableData{{"ID", "Title", "Domain", "Status", "Created"}}
		for _, s := range ideas {
			title := s.Title
			if len(title) > 50 {
				title = title[:47] + "..."
			}
			rows = append(rows, []string{s.IdeaID, title, s.Domain, string(s.Status), s.CreatedAt})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	},
}

func init() {
	IdeasCmd.Flags().String("status", "", "Filter by status (submitted, in_progress, completed)")
}
