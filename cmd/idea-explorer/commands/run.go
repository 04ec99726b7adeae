package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/ChicagoHAI/idea-explorer/config"
	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/idea"
	"github.com/ChicagoHAI/idea-explorer/pipeline"
)

// workspaceSpecPath is where a run pins the idea spec it was started
// with, so resume composes identical prompts.
func workspaceSpecPath(workDir string) string {
	return filepath.Join(workDir, pipeline.StateDirName, "idea.yaml")
}

// RunCmd starts a fresh pipeline run for an idea
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the research pipeline for an idea",
	Long: `Start a fresh pipeline run in a workspace.

The idea comes either from the ideas tree (--idea <id>) or directly from
a YAML file (--idea-file). Each stage launches the configured agent CLI
and supervises it to completion. With --pause-after-resources the
pipeline stops after resource gathering for human review; continue it
with 'idea-explorer resume'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyAgentFlags(cmd, cfg)

		ideaID, _ := cmd.Flags().GetString("idea")
		ideaFile, _ := cmd.Flags().GetString("idea-file")
		workDir, _ := cmd.Flags().GetString("workdir")
		pause, _ := cmd.Flags().GetBool("pause-after-resources")
		skipResources, _ := cmd.Flags().GetBool("skip-resources")
		if !cmd.Flags().Changed("pause-after-resources") {
			pause = cfg.Pipeline.PauseAfterResources
		}

		spec, mgr, err := loadIdea(cfg, ideaID, ideaFile)
		if err != nil {
			return err
		}
		if ideaID == "" && spec.Idea.Metadata != nil {
			ideaID = spec.Idea.Metadata.IdeaID
		}
		if workDir == "" {
			if ideaID == "" {
				return errors.New("--workdir is required when the idea has no ID")
			}
			workDir = filepath.Join(cfg.Workspace.Dir, ideaID)
		}

		var skip []string
		if skipResources {
			skip = []string{stageResourceFinder}
		}
		orch, index, err := buildOrchestrator(cfg, spec, workDir, ideaID, pause, skip)
		if err != nil {
			return err
		}
		if index != nil {
			defer index.Close()
		}

		if err := idea.SaveSpec(workspaceSpecPath(workDir), spec); err != nil {
			return err
		}
		if mgr != nil && ideaID != "" {
			if err := mgr.UpdateStatus(ideaID, idea.StatusInProgress); err != nil {
				pterm.Warning.Printf("Could not update idea status: %v\n", err)
			}
		}

		pterm.DefaultHeader.WithFullWidth().Printf("Research Pipeline")
		pterm.Println()
		pterm.Info.Printf("Workspace: %s\n", workDir)
		pterm.Info.Printf("Provider:  %s\n", cfg.Agent.Provider)
		pterm.Println()

		stopWatch := watchCheckpointConfig(orch)
		defer stopWatch()

		return finishRun(cmd.Context(), cfg, mgr, spec, ideaID, workDir, orch.Run(cmd.Context()))
	},
}

// ResumeCmd continues an interrupted or paused run
var ResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue an interrupted or paused run",
	Long: `Continue a run from its persisted state.

Completed and skipped stages are left alone. A stage that was running
when the orchestrator died is re-executed, as is a previously failed
stage once the cause has been addressed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyAgentFlags(cmd, cfg)

		workDir, _ := cmd.Flags().GetString("workdir")
		if workDir == "" {
			return errors.New("--workdir is required")
		}
		pause, _ := cmd.Flags().GetBool("pause-after-resources")
		if !cmd.Flags().Changed("pause-after-resources") {
			pause = cfg.Pipeline.PauseAfterResources
		}

		spec, err := idea.LoadSpec(workspaceSpecPath(workDir))
		if err != nil {
			return errors.WithHint(err, "is this workspace from a previous run?")
		}
		ideaID := ""
		if spec.Idea.Metadata != nil {
			ideaID = spec.Idea.Metadata.IdeaID
		}

		orch, index, err := buildOrchestrator(cfg, spec, workDir, ideaID, pause, nil)
		if err != nil {
			return err
		}
		if index != nil {
			defer index.Close()
		}

		var mgr *idea.Manager
		if cfg.Workspace.IdeasDir != "" {
			mgr, _ = idea.NewManager(cfg.Workspace.IdeasDir)
		}

		pterm.Info.Printf("Resuming pipeline in %s\n", workDir)

		stopWatch := watchCheckpointConfig(orch)
		defer stopWatch()

		return finishRun(cmd.Context(), cfg, mgr, spec, ideaID, workDir, orch.Resume(cmd.Context()))
	},
}

// finishRun translates the orchestrator outcome for the operator and,
// on success, handles idea status and optional publishing.
func finishRun(ctx context.Context, cfg *config.Config, mgr *idea.Manager, spec *idea.Spec, ideaID, workDir string, runErr error) error {
	if errors.IsCheckpoint(runErr) {
		pterm.Println()
		pterm.Warning.Println("Pipeline paused for human review.")
		pterm.Println()
		pterm.Println("Please review the gathered resources:")
		pterm.Printf("   - Literature review: %s\n", filepath.Join(workDir, "literature_review.md"))
		pterm.Printf("   - Resources catalog: %s\n", filepath.Join(workDir, "resources.md"))
		pterm.Println()
		pterm.Printf("Continue with: idea-explorer resume --workdir %s\n", workDir)
		return nil
	}
	if runErr != nil {
		pterm.Error.Printf("Pipeline halted: %v\n", runErr)
		return runErr
	}

	pterm.Println()
	pterm.Success.Println("Pipeline completed successfully!")

	if mgr != nil && ideaID != "" {
		if err := mgr.UpdateStatus(ideaID, idea.StatusCompleted); err != nil {
			pterm.Warning.Printf("Could not update idea status: %v\n", err)
		}
	}

	if cfg.GitHub.Enabled {
		if err := publishResults(ctx, cfg, spec, workDir, ideaID); err != nil {
			pterm.Warning.Printf("Publishing failed: %v\n", err)
			return nil
		}
	}
	return nil
}

// watchCheckpointConfig lets the operator flip pause_after_resources in
// the project config while stages run for hours. Returns a stop func;
// runs without a project config file get a no-op.
func watchCheckpointConfig(orch *pipeline.Orchestrator) func() {
	path := config.ProjectConfigPath()
	if path == "" {
		return func() {}
	}
	watcher, err := config.NewWatcher(path)
	if err != nil {
		pterm.Warning.Printf("Config watch unavailable: %v\n", err)
		return func() {}
	}
	watcher.OnReload(func(updated *config.Config) error {
		target := ""
		if updated.Pipeline.PauseAfterResources {
			target = stageResourceFinder
		}
		return orch.SetPauseAfter(target)
	})
	watcher.Start()
	return func() { watcher.Stop() }
}

// loadIdea resolves the idea spec from either an ID in the ideas tree or
// an explicit file.
func loadIdea(cfg *config.Config, ideaID, ideaFile string) (*idea.Spec, *idea.Manager, error) {
	if ideaID == "" && ideaFile == "" {
		return nil, nil, errors.New("one of --idea or --idea-file is required")
	}
	if ideaID != "" && ideaFile != "" {
		return nil, nil, errors.New("--idea and --idea-file are mutually exclusive")
	}

	if ideaFile != "" {
		spec, err := idea.LoadSpec(ideaFile)
		if err != nil {
			return nil, nil, err
		}
		if result := idea.Validate(spec); !result.Valid() {
			return nil, nil, errors.Newf("idea file is invalid: %v", result.Errors)
		}
		return spec, nil, nil
	}

	mgr, err := idea.NewManager(cfg.Workspace.IdeasDir)
	if err != nil {
		return nil, nil, err
	}
	spec, err := mgr.Get(ideaID)
	if err != nil {
		return nil, nil, err
	}
	return spec, mgr, nil
}

// applyAgentFlags lets command-line flags override configured agent
// settings for this invocation.
func applyAgentFlags(cmd *cobra.Command, cfg *config.Config) {
	if provider, _ := cmd.Flags().GetString("provider"); provider != "" {
		cfg.Agent.Provider = provider
	}
	if cmd.Flags().Changed("full-permissions") {
		cfg.Agent.FullPermissions, _ = cmd.Flags().GetBool("full-permissions")
	}
	// The stage list must be identical on resume, so the flag has to be
	// repeated (or set in config) when continuing a paper-writing run
	if cmd.Flags().Changed("write-paper") {
		cfg.Pipeline.WritePaper, _ = cmd.Flags().GetBool("write-paper")
	}
}

func init() {
	for _, c := range []*cobra.Command{RunCmd, ResumeCmd} {
		c.Flags().String("workdir", "", "Run workspace directory")
		c.Flags().String("provider", "", fmt.Sprintf("Agent provider (%s)", "claude, codex, gemini"))
		c.Flags().Bool("full-permissions", true, "Pass the provider's permission-bypass flag")
		c.Flags().Bool("pause-after-resources", false, "Pause for human review after resource gathering")
		c.Flags().Bool("write-paper", false, "Add a paper-writing stage after experiments")
	}
	RunCmd.Flags().String("idea", "", "Registered idea ID to run")
	RunCmd.Flags().String("idea-file", "", "Idea YAML file to run directly")
	RunCmd.Flags().Bool("skip-resources", false, "Skip the resource-gathering stage (resources already in place)")
}
