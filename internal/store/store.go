package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fixbench/runner/internal/domain"
)

// Store provides SQLite-backed run history persistence
type Store struct {
	db *sql.DB
}

// Run is a single pipeline run as persisted in the history database.
type Run struct {
	ID            string
	TaskID        string
	Status        domain.RunStatus
	StartedAt     time.Time
	FinishedAt    time.Time
	Duration      float64
	Tokens        domain.TokenUsage
	CostUSD       float64
	PatchApplied  bool
	FailureReason string
	ArtifactsDir  string
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records a run that has begun executing.
func (s *Store) StartRun(runID, taskID, artifactsDir string, startedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, task_id, status, started_at, artifacts_dir)
		VALUES (?, ?, ?, ?, ?)
	`, runID, taskID, string(domain.StatusError), startedAt.UTC(), artifactsDir)
	return err
}

// FinishRun folds the extracted result record into the run's row.
func (s *Store) FinishRun(runID string, rec *domain.ResultRecord, finishedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE runs SET
			status = ?,
			finished_at = ?,
			duration_seconds = ?,
			tokens_prompt = ?,
			tokens_completion = ?,
			tokens_tool = ?,
			cost_usd = ?,
			patch_applied = ?,
			failure_reason = ?
		WHERE id = ?
	`,
		string(rec.Status),
		finishedAt.UTC(),
		rec.DurationSeconds,
		rec.TokenUsage.Prompt,
		rec.TokenUsage.Completion,
		rec.TokenUsage.Tool,
		rec.EstimatedCost,
		rec.PatchApplied,
		rec.FailureReason,
		runID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT id, task_id, status, started_at, finished_at, duration_seconds,
		       tokens_prompt, tokens_completion, tokens_tool, cost_usd,
		       patch_applied, failure_reason, artifacts_dir
		FROM runs WHERE id = ?
	`, runID)
	return scanRun(row.Scan)
}

// ListRecent returns the most recently started runs, newest first.
func (s *Store) ListRecent(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, task_id, status, started_at, finished_at, duration_seconds,
		       tokens_prompt, tokens_completion, tokens_tool, cost_usd,
		       patch_applied, failure_reason, artifacts_dir
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Prune deletes runs started before the cutoff and returns their
// artifact directories so the caller can remove them from disk.
func (s *Store) Prune(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT artifacts_dir FROM runs WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dirs []string
	for rows.Next() {
		var dir string
		if err := rows.Scan(&dir); err != nil {
			return nil, err
		}
		dirs = append(dirs, dir)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.db.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff.UTC()); err != nil {
		return nil, err
	}
	return dirs, nil
}

func scanRun(scan func(dest ...interface{}) error) (*Run, error) {
	var run Run
	var status string
	var startedAt, finishedAt sql.NullTime
	var failureReason sql.NullString

	err := scan(
		&run.ID, &run.TaskID, &status, &startedAt, &finishedAt, &run.Duration,
		&run.Tokens.Prompt, &run.Tokens.Completion, &run.Tokens.Tool, &run.CostUSD,
		&run.PatchApplied, &failureReason, &run.ArtifactsDir,
	)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	if startedAt.Valid {
		run.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	if failureReason.Valid {
		run.FailureReason = failureReason.String
	}
	return &run, nil
}
