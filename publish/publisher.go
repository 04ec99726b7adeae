package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/time/rate"

	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/logger"
	"github.com/ChicagoHAI/idea-explorer/security"
)

// maxFileSize is GitHub's hard per-file limit
const maxFileSize = 100 * 1024 * 1024

const (
	commitAuthorName  = "Idea Explorer"
	commitAuthorEmail = "idea-explorer@chicagohai.org"
)

// Publisher owns all GitHub interaction for a workspace: repo creation
// and PRs go through the gh CLI (which carries its own auth), while
// commits and pushes use go-git with a token.
type Publisher struct {
	org     string
	token   string
	limiter *rate.Limiter
	retry   RetryConfig
}

// NewPublisher creates a publisher for the given org (or user account).
// maxCallsPerMinute throttles gh API calls; token authenticates pushes.
func NewPublisher(org, token string, maxCallsPerMinute int) *Publisher {
	if maxCallsPerMinute <= 0 {
		maxCallsPerMinute = 10
	}
	return &Publisher{
		org:     org,
		token:   token,
		limiter: rate.NewLimiter(rate.Limit(float64(maxCallsPerMinute)/60.0), 1),
		retry:   DefaultRetry,
	}
}

// RepoName derives a GitHub-safe repository name from a research title.
// A short hash keeps concurrent runs of the same idea from colliding;
// noHash drops it for single-operator setups.
func RepoName(title, ideaID string, noHash bool) string {
	slug := kebab(title)
	if slug == "" {
		slug = kebab(ideaID)
	}
	if slug == "" {
		slug = "research"
	}
	if noHash {
		return slug
	}
	sum := sha256.Sum256([]byte(ideaID + title))
	return slug + "-" + hex.EncodeToString(sum[:])[:6]
}

// CreateRepo creates the remote repository and returns its HTTPS URL.
// An already existing repository is reused, not an error.
func (p *Publisher) CreateRepo(ctx context.Context, name, description string, private bool) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "rate limit wait cancelled")
	}

	full := p.org + "/" + name
	visibility := "--public"
	if private {
		visibility = "--private"
	}
	// gh rejects control characters in descriptions
	description = strings.Join(strings.Fields(description), " ")

	var out []byte
	err := withRetry(ctx, p.retry, "create repository", func() error {
		// No initial README: the first push from the workspace must not
		// race a remote commit
		cmd := exec.CommandContext(ctx, "gh", "repo", "create", full,
			visibility,
			"--description", description)
		var runErr error
		out, runErr = cmd.CombinedOutput()
		if runErr != nil && strings.Contains(string(out), "already exists") {
			logger.Infow("repository already exists, reusing it", "repo", full)
			out = []byte("https://github.com/" + full)
			return nil
		}
		if runErr != nil {
			return errors.Wrapf(runErr, "gh repo create: %s", strings.TrimSpace(string(out)))
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimSpace(string(out))
	if url == "" {
		url = "https://github.com/" + full
	}
	logger.Infow("repository ready", "repo", full, "url", url)
	return url, nil
}

// EnsureRepo makes the workspace a git repository with origin pointing
// at url. A workspace that is already a repository is left untouched.
func (p *Publisher) EnsureRepo(workDir, url string) error {
	if _, err := git.PlainOpen(workDir); err == nil {
		return nil
	}
	repo, err := git.PlainInit(workDir, false)
	if err != nil {
		return errors.Wrapf(err, "failed to init repository in %s", workDir)
	}
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	if err != nil {
		return errors.Wrap(err, "failed to add origin remote")
	}
	return nil
}

// Clone clones the repository into localPath
func (p *Publisher) Clone(ctx context.Context, url, localPath string) error {
	_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
		URL:  url,
		Auth: p.auth(),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to clone %s", url)
	}
	return nil
}

// CommitAndPush stages the whole workspace, commits, and pushes to the
// branch. Logs are sanitized and files over GitHub's size limit are left
// out of the commit (they stay on disk). Returns false when there was
// nothing to commit.
func (p *Publisher) CommitAndPush(ctx context.Context, repoPath, message, branch string) (bool, error) {
	if n, err := security.SanitizeLogsDir(filepath.Join(repoPath, "logs")); err != nil {
		return false, err
	} else if n > 0 {
		logger.Infow("sanitized log files before publishing", "files", n)
	}

	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return false, errors.Wrapf(err, "not a git repository: %s", repoPath)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, errors.Wrap(err, "failed to open worktree")
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return false, errors.Wrap(err, "failed to stage changes")
	}

	if err := p.unstageLargeFiles(wt, repoPath); err != nil {
		return false, err
	}

	status, err := wt.Status()
	if err != nil {
		return false, errors.Wrap(err, "failed to read worktree status")
	}
	if status.IsClean() {
		logger.Infow("no changes to publish", logger.FieldFile, repoPath)
		return false, nil
	}

	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  commitAuthorName,
			Email: commitAuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to commit")
	}

	// HEAD:refs/heads/<branch> pushes even when the local branch name
	// differs from the remote default
	refSpec := gitconfig.RefSpec("HEAD:refs/heads/" + branch)
	err = withRetry(ctx, p.retry, "push", func() error {
		pushErr := repo.PushContext(ctx, &git.PushOptions{
			RemoteName: "origin",
			RefSpecs:   []gitconfig.RefSpec{refSpec},
			Auth:       p.auth(),
		})
		if errors.Is(pushErr, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return pushErr
	})
	if err != nil {
		return false, err
	}

	logger.Infow("pushed research artifacts",
		logger.FieldFile, repoPath,
		"branch", branch,
		"message", message)
	return true, nil
}

// PullLatest fast-forwards the local checkout. Already-up-to-date is not
// an error.
func (p *Publisher) PullLatest(ctx context.Context, repoPath, branch string) error {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return errors.Wrapf(err, "not a git repository: %s", repoPath)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "failed to open worktree")
	}

	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName: "origin",
		Auth:       p.auth(),
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to pull %s", branch)
	}
	return nil
}

// CreateSummaryPR opens a pull request describing the run's results and
// returns its URL.
func (p *Publisher) CreateSummaryPR(ctx context.Context, repoName, title, body, head, base string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "rate limit wait cancelled")
	}

	var out []byte
	err := withRetry(ctx, p.retry, "create pull request", func() error {
		cmd := exec.CommandContext(ctx, "gh", "pr", "create",
			"--repo", p.org+"/"+repoName,
			"--title", title,
			"--body", body,
			"--head", head,
			"--base", base)
		var runErr error
		out, runErr = cmd.CombinedOutput()
		if runErr != nil {
			return errors.Wrapf(runErr, "gh pr create: %s", strings.TrimSpace(string(out)))
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimSpace(string(out))
	logger.Infow("summary pull request created", "url", url)
	return url, nil
}

// unstageLargeFiles removes anything over the size limit from the index,
// leaving the file on disk.
func (p *Publisher) unstageLargeFiles(wt *git.Worktree, repoPath string) error {
	status, err := wt.Status()
	if err != nil {
		return errors.Wrap(err, "failed to read worktree status")
	}

	var large []string
	for rel, st := range status {
		if st.Staging == git.Unmodified || st.Staging == git.Deleted {
			continue
		}
		info, err := os.Stat(filepath.Join(repoPath, rel))
		if err != nil {
			continue
		}
		if info.Size() > maxFileSize {
			large = append(large, rel)
			logger.Warnw("excluding file over size limit from commit",
				logger.FieldFile, rel,
				"size_mb", info.Size()/(1024*1024))
		}
	}

	if len(large) == 0 {
		return nil
	}
	err = wt.Restore(&git.RestoreOptions{Staged: true, Files: large})
	if err != nil {
		return errors.Wrap(err, "failed to unstage oversized files")
	}
	return nil
}

func (p *Publisher) auth() *githttp.BasicAuth {
	if p.token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: p.token}
}

// kebab lowercases and collapses non-alphanumerics to hyphens, capped at
// 40 characters.
func kebab(s string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(s) {
		if b.Len() >= 40 {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen && b.Len() > 0 {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}
