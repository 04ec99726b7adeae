package commands

import (
	"os"
	"time"

	"github.com/ChicagoHAI/idea-explorer/agent"
	"github.com/ChicagoHAI/idea-explorer/config"
	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/idea"
	"github.com/ChicagoHAI/idea-explorer/pipeline"
	"github.com/ChicagoHAI/idea-explorer/prompt"
)

// Stage names, in pipeline order
const (
	stageResourceFinder   = "resource_finder"
	stageExperimentRunner = "experiment_runner"
	stagePaperWriter      = "paper_writer"
)

// resourceMarker is the file the resource-gathering agent writes when it
// considers its work done
const resourceMarker = ".resource_finder_complete"

// newExecutor builds the production stage executor from configuration.
// Marker detection uses filesystem notifications; the watcher degrades
// to polling at the configured interval where inotify is unreliable.
func newExecutor(cfg *config.Config) *agent.Executor {
	pollInterval := time.Duration(cfg.Pipeline.PollIntervalSeconds) * time.Second
	signal := agent.NewMarkerWatcher(pollInterval * 6)
	killGrace := time.Duration(cfg.Pipeline.KillGraceSeconds) * time.Second
	return agent.NewExecutor(signal, killGrace, cfg.Agent.MinAvailableMemoryMB, nil)
}

type stageDef struct {
	name    string
	timeout time.Duration
	marker  string
	outputs map[string]string
}

// stageDefs returns the pipeline's stage table for one run. The
// paper-writing stage only exists when the run opts in.
func stageDefs(cfg *config.Config) []stageDef {
	defs := []stageDef{
		{
			name:    stageResourceFinder,
			timeout: time.Duration(cfg.Agent.ResourceTimeoutSeconds) * time.Second,
			marker:  resourceMarker,
			outputs: map[string]string{
				"literature_review": "literature_review.md",
				"resources":         "resources.md",
			},
		},
		{
			// The experiment agent runs to completion and exits; its
			// exit code is the completion signal
			name:    stageExperimentRunner,
			timeout: time.Duration(cfg.Agent.ExperimentTimeoutSeconds) * time.Second,
		},
	}
	if cfg.Pipeline.WritePaper {
		// Exit-code completion, like the experiment stage
		defs = append(defs, stageDef{
			name:    stagePaperWriter,
			timeout: time.Duration(cfg.Agent.PaperTimeoutSeconds) * time.Second,
		})
	}
	return defs
}

// buildStages composes the stage specs for one run: provider command
// line, stage prompts, timeouts, markers, and output contracts.
func buildStages(cfg *config.Config, spec *idea.Spec, workDir string) ([]agent.StageSpec, error) {
	provider, err := agent.LookupProvider(cfg.Agent.Provider)
	if err != nil {
		return nil, err
	}
	if err := provider.Preflight(); err != nil {
		return nil, err
	}

	command := provider.CommandLine(cfg.Agent.FullPermissions, true)
	gen := prompt.NewGenerator(cfg.Workspace.TemplatesDir)

	defs := stageDefs(cfg)
	stages := make([]agent.StageSpec, 0, len(defs))
	for _, def := range defs {
		input, err := gen.StagePrompt(def.name, spec)
		if err != nil {
			return nil, err
		}
		if _, err := prompt.SavePrompt(workDir, def.name, input); err != nil {
			return nil, err
		}
		stages = append(stages, agent.StageSpec{
			Name:            def.name,
			Command:         command,
			Input:           input,
			WorkDir:         workDir,
			Timeout:         def.timeout,
			Marker:          def.marker,
			RequiredOutputs: def.outputs,
			ExtraEnv:        provider.ExtraEnv,
		})
	}
	return stages, nil
}

// buildOrchestrator wires stages, executor, run index, and checkpoint
// configuration for a workspace.
func buildOrchestrator(cfg *config.Config, spec *idea.Spec, workDir, ideaID string, pauseAfterResources bool, skipStages []string) (*pipeline.Orchestrator, *pipeline.RunIndex, error) {
	if err := os.MkdirAll(workDir, config.DefaultDirPermissions); err != nil {
		return nil, nil, errors.Wrap(err, "failed to create run workspace")
	}

	stages, err := buildStages(cfg, spec, workDir)
	if err != nil {
		return nil, nil, err
	}

	var index *pipeline.RunIndex
	if cfg.Database.Path != "" {
		index, err = pipeline.OpenRunIndex(cfg.Database.Path, workDir)
		if err != nil {
			return nil, nil, err
		}
	}

	pauseAfter := ""
	if pauseAfterResources {
		pauseAfter = stageResourceFinder
	}

	orch, err := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		WorkDir:     workDir,
		Executor:    newExecutor(cfg),
		Stages:      stages,
		PauseAfter:  pauseAfter,
		SkipStages:  skipStages,
		MaxAttempts: cfg.Pipeline.MaxStageAttempts,
		Index:       index,
		IdeaID:      ideaID,
		Provider:    cfg.Agent.Provider,
	})
	if err != nil {
		if index != nil {
			index.Close()
		}
		return nil, nil, err
	}
	return orch, index, nil
}
