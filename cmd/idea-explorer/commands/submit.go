package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ChicagoHAI/idea-explorer/config"
	"github.com/ChicagoHAI/idea-explorer/idea"
)

// SubmitCmd registers a research idea from a YAML file
var SubmitCmd = &cobra.Command{
	Use:   "submit <idea.yaml>",
	Short: "Submit a research idea",
	Long: `Validate an idea specification and register it in the ideas tree.

The spec is validated, assigned a unique ID, and filed under the
submitted directory. Run it later with 'idea-explorer run --idea <id>'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		spec, err := idea.LoadSpec(args[0])
		if err != nil {
			return err
		}

		mgr, err := idea.NewManager(cfg.Workspace.IdeasDir)
		if err != nil {
			return err
		}
		ideaID, err := mgr.Submit(spec)
		if err != nil {
			return err
		}

		pterm.Success.Printf("Idea submitted: %s\n", ideaID)
		pterm.Info.Printf("Run it with: idea-explorer run --idea %s\n", ideaID)
		return nil
	},
}
