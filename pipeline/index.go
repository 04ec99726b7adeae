package pipeline

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ChicagoHAI/idea-explorer/errors"
)

const runIndexSchema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id        TEXT PRIMARY KEY,
	idea_id       TEXT,
	provider      TEXT,
	workspace     TEXT,
	status        TEXT NOT NULL,
	current_stage TEXT,
	created_at    TIMESTAMP NOT NULL,
	completed_at  TIMESTAMP,
	stages        TEXT NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_idea ON pipeline_runs(idea_id);
`

// RunSummary is one row of the cross-run index
type RunSummary struct {
	RunID        string
	IdeaID       string
	Provider     string
	Workspace    string
	Status       string
	CurrentStage string
	CreatedAt    time.Time
	CompletedAt  *time.Time
	UpdatedAt    time.Time
}

// RunIndex is a SQLite mirror of run state across workspaces, so "what is
// running and what failed" can be answered without crawling directories.
// The per-workspace state file stays authoritative; the index is derived
// and can be rebuilt from the state files at any time.
type RunIndex struct {
	db        *sql.DB
	workspace string
}

// OpenRunIndex opens (creating if needed) the index database
func OpenRunIndex(path, workspace string) (*RunIndex, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open run index")
	}
	if _, err := db.Exec(runIndexSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize run index schema")
	}
	return &RunIndex{db: db, workspace: workspace}, nil
}

// NewRunIndexWithDB wraps an existing database handle; used by tests
func NewRunIndexWithDB(db *sql.DB, workspace string) *RunIndex {
	return &RunIndex{db: db, workspace: workspace}
}

// Close releases the database handle
func (ix *RunIndex) Close() error {
	return ix.db.Close()
}

// Record upserts the run's current snapshot into the index
func (ix *RunIndex) Record(run *Run) error {
	stagesJSON, err := json.Marshal(run.Stages)
	if err != nil {
		return errors.Wrap(err, "failed to marshal stage records")
	}

	query := `
		INSERT INTO pipeline_runs (
			run_id, idea_id, provider, workspace, status,
			current_stage, created_at, completed_at, stages, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			current_stage = excluded.current_stage,
			completed_at = excluded.completed_at,
			stages = excluded.stages,
			updated_at = excluded.updated_at
	`

	completedAt := sql.NullTime{}
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *run.CompletedAt, Valid: true}
	}

	_, err = ix.db.Exec(query,
		run.RunID,
		run.IdeaID,
		run.Provider,
		ix.workspace,
		indexStatus(run),
		run.CurrentStage,
		run.CreatedAt,
		completedAt,
		string(stagesJSON),
		time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to record run")
	}
	return nil
}

// Get retrieves one run's summary by ID
func (ix *RunIndex) Get(runID string) (*RunSummary, error) {
	query := `
		SELECT run_id, idea_id, provider, workspace, status,
		       current_stage, created_at, completed_at, updated_at
		FROM pipeline_runs WHERE run_id = ?
	`
	row := ix.db.QueryRow(query, runID)
	summary, err := scanRunSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "run %s not in index", runID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get run")
	}
	return summary, nil
}

// List returns run summaries, newest first, optionally filtered by status
func (ix *RunIndex) List(status string) ([]*RunSummary, error) {
	query := `
		SELECT run_id, idea_id, provider, workspace, status,
		       current_stage, created_at, completed_at, updated_at
		FROM pipeline_runs
	`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := ix.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var summaries []*RunSummary
	for rows.Next() {
		summary, err := scanRunSummary(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run row")
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate run rows")
	}
	return summaries, nil
}

// indexStatus derives a coarse run status for querying
func indexStatus(run *Run) string {
	if run.Completed {
		return "completed"
	}
	for _, s := range run.Stages {
		if s.Status == StageRunning {
			return "running"
		}
		if s.Status == StageFailed {
			return "failed"
		}
	}
	return "pending"
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRunSummary(row rowScanner) (*RunSummary, error) {
	var summary RunSummary
	var completedAt sql.NullTime
	err := row.Scan(
		&summary.RunID,
		&summary.IdeaID,
		&summary.Provider,
		&summary.Workspace,
		&summary.Status,
		&summary.CurrentStage,
		&summary.CreatedAt,
		&completedAt,
		&summary.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		summary.CompletedAt = &t
	}
	return &summary, nil
}
