package idea

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/logger"
)

// Manager stores idea specs under ideas/{submitted,in_progress,completed},
// one YAML file per idea, moved between directories as status changes.
type Manager struct {
	ideasDir string
}

// Summary is the listing view of an idea
type Summary struct {
	IdeaID    string
	Title     string
	Domain    string
	Status    Status
	CreatedAt string
	Path      string
}

// NewManager creates the status directories if needed
func NewManager(ideasDir string) (*Manager, error) {
	for _, status := range []Status{StatusSubmitted, StatusInProgress, StatusCompleted} {
		dir := filepath.Join(ideasDir, string(status))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create ideas directory %s", dir)
		}
	}
	return &Manager{ideasDir: ideasDir}, nil
}

// Submit validates the spec, stamps it with an ID and metadata, and writes
// it into the submitted directory. Returns the new idea ID.
func (m *Manager) Submit(spec *Spec) (string, error) {
	result := Validate(spec)
	for _, w := range result.Warnings {
		logger.Warnw("idea validation warning", "warning", w)
	}
	if !result.Valid() {
		err := errors.Newf("idea validation failed: %s", strings.Join(result.Errors, "; "))
		return "", errors.WithHint(err, "fix the listed fields and resubmit")
	}

	now := time.Now()
	ideaID := GenerateID(spec.Idea.Title, now)
	spec.Idea.Metadata = &Metadata{
		IdeaID:    ideaID,
		Status:    StatusSubmitted,
		CreatedAt: now.Format(time.RFC3339),
	}

	path := m.pathFor(StatusSubmitted, ideaID)
	if err := writeSpec(path, spec); err != nil {
		return "", err
	}

	logger.Infow("idea submitted",
		logger.FieldIdeaID, ideaID,
		"title", spec.Idea.Title,
		logger.FieldFile, path)
	return ideaID, nil
}

// Get retrieves an idea by ID, searching every status directory.
// Returns ErrNotFound when no directory holds it.
func (m *Manager) Get(ideaID string) (*Spec, error) {
	path, _, err := m.locate(ideaID)
	if err != nil {
		return nil, err
	}
	return readSpec(path)
}

// UpdateStatus moves an idea to a new lifecycle status, relocating its
// file to the matching directory.
func (m *Manager) UpdateStatus(ideaID string, newStatus Status) error {
	if !IsValidStatus(string(newStatus)) {
		return errors.Newf("invalid idea status %q", newStatus)
	}

	currentPath, _, err := m.locate(ideaID)
	if err != nil {
		return err
	}
	spec, err := readSpec(currentPath)
	if err != nil {
		return err
	}

	if spec.Idea.Metadata == nil {
		spec.Idea.Metadata = &Metadata{IdeaID: ideaID}
	}
	spec.Idea.Metadata.Status = newStatus
	spec.Idea.Metadata.UpdatedAt = time.Now().Format(time.RFC3339)

	newPath := m.pathFor(newStatus, ideaID)
	if err := writeSpec(newPath, spec); err != nil {
		return err
	}
	if newPath != currentPath {
		if err := os.Remove(currentPath); err != nil {
			return errors.Wrap(err, "failed to remove idea from previous status directory")
		}
	}

	logger.Infow("idea status updated",
		logger.FieldIdeaID, ideaID,
		logger.FieldStatus, string(newStatus))
	return nil
}

// List returns idea summaries, newest first, optionally filtered by status
func (m *Manager) List(status Status) ([]Summary, error) {
	statuses := []Status{StatusSubmitted, StatusInProgress, StatusCompleted}
	if status != "" {
		if !IsValidStatus(string(status)) {
			return nil, errors.Newf("invalid idea status %q", status)
		}
		statuses = []Status{status}
	}

	var summaries []Summary
	for _, st := range statuses {
		dir := filepath.Join(m.ideasDir, string(st))
		matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan ideas directory")
		}
		for _, path := range matches {
			spec, err := readSpec(path)
			if err != nil {
				logger.Warnw("skipping unreadable idea file",
					logger.FieldFile, path, logger.FieldError, err)
				continue
			}
			summaries = append(summaries, summarize(spec, st, path))
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt > summaries[j].CreatedAt
	})
	return summaries, nil
}

// locate finds which status directory holds the idea
func (m *Manager) locate(ideaID string) (string, Status, error) {
	for _, status := range []Status{StatusSubmitted, StatusInProgress, StatusCompleted} {
		path := m.pathFor(status, ideaID)
		if _, err := os.Stat(path); err == nil {
			return path, status, nil
		}
	}
	return "", "", errors.Wrapf(errors.ErrNotFound, "idea %s not found", ideaID)
}

func (m *Manager) pathFor(status Status, ideaID string) string {
	return filepath.Join(m.ideasDir, string(status), ideaID+".yaml")
}

func summarize(spec *Spec, status Status, path string) Summary {
	s := Summary{
		Title:  spec.Idea.Title,
		Domain: spec.Idea.Domain,
		Status: status,
		Path:   path,
	}
	if s.Title == "" {
		s.Title = "Untitled"
	}
	if md := spec.Idea.Metadata; md != nil {
		s.IdeaID = md.IdeaID
		s.CreatedAt = md.CreatedAt
	}
	if s.IdeaID == "" {
		s.IdeaID = strings.TrimSuffix(filepath.Base(path), ".yaml")
	}
	return s
}

func readSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.ErrNotFound, "no idea file at %s", path)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read idea file")
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, errors.Wrapf(err, "failed to parse idea file %s", path)
	}
	return &spec, nil
}

func writeSpec(path string, spec *Spec) error {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal idea spec")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write idea file")
	}
	return nil
}

// LoadSpec reads and parses one idea file from an explicit path, for
// submitting specs authored outside the ideas tree.
func LoadSpec(path string) (*Spec, error) {
	return readSpec(path)
}

// SaveSpec writes a spec to an explicit path, creating parent
// directories as needed. Used to pin the spec a run was started with
// inside its workspace.
func SaveSpec(path string, spec *Spec) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create idea spec directory")
	}
	return writeSpec(path, spec)
}
