package commands

import (
	"context"
	"os"

	"github.com/pterm/pterm"

	"github.com/ChicagoHAI/idea-explorer/config"
	"github.com/ChicagoHAI/idea-explorer/idea"
	"github.com/ChicagoHAI/idea-explorer/publish"
)

// publishResults pushes the workspace to GitHub after a successful run,
// creating the results repository on first publish.
func publishResults(ctx context.Context, cfg *config.Config, spec *idea.Spec, workDir, ideaID string) error {
	token := os.Getenv("GITHUB_TOKEN")
	publisher := publish.NewPublisher(cfg.GitHub.Org, token, cfg.GitHub.MaxCallsPerMinute)

	spinner, _ := pterm.DefaultSpinner.Start("Publishing research artifacts to GitHub...")

	repoName := publish.RepoName(spec.Idea.Title, ideaID, false)
	url, err := publisher.CreateRepo(ctx, repoName, "Automated research results: "+spec.Idea.Title, false)
	if err != nil {
		spinner.Fail("Could not create results repository")
		return err
	}
	if err := publisher.EnsureRepo(workDir, url); err != nil {
		spinner.Fail("Could not prepare workspace repository")
		return err
	}

	pushed, err := publisher.CommitAndPush(ctx, workDir, "Research execution completed", "main")
	if err != nil {
		spinner.Fail("Publishing failed")
		return err
	}
	if !pushed {
		spinner.Info("No changes to publish")
		return nil
	}
	spinner.Success("Research artifacts pushed to " + url)
	return nil
}
