package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
)

// JobRepository persists migration runs.
//
// The cursor columns checkpoint the last pagination state successfully
// processed; a failed job keeps its final checkpoint for manual resume.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new JobRepository with the given database connection.
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job.
func (r *JobRepository) Create(job *models.Job) error {
	if job.ID == "" {
		job.ID = shared.GenerateID()
	}
	if job.Status == "" {
		job.Status = models.JobPending
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	ts := now()
	job.CreatedAt = ts
	job.UpdatedAt = ts

	query := `
		INSERT INTO jobs (id, environment, platform, status, cursor_kind, cursor_payload, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		job.ID,
		job.Environment,
		job.Platform,
		job.Status,
		nullable(job.CursorKind),
		job.CursorPayload,
		nullable(job.Error),
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID. Returns [shared.ErrJobNotFound] when absent.
func (r *JobRepository) Get(id string) (*models.Job, error) {
	query := `
		SELECT id, environment, platform, status, cursor_kind, cursor_payload, error, created_at, updated_at
		FROM jobs
		WHERE id = ?
	`

	var job models.Job
	var cursorKind, errMsg sql.NullString

	err := r.db.QueryRow(query, id).Scan(
		&job.ID,
		&job.Environment,
		&job.Platform,
		&job.Status,
		&cursorKind,
		&job.CursorPayload,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.CursorKind = stringOrEmpty(cursorKind)
	job.Error = stringOrEmpty(errMsg)
	return &job, nil
}

// SetCursor checkpoints the job's pagination state.
func (r *JobRepository) SetCursor(id, kind string, payload []byte) error {
	return r.update(id, "cursor_kind = ?, cursor_payload = ?", nullable(kind), payload)
}

// SetStatus updates the job's lifecycle status and, for failures, the
// job-level error surfaced to the operator.
func (r *JobRepository) SetStatus(id string, status models.JobStatus, errMsg string) error {
	return r.update(id, "status = ?, error = ?", status, nullable(errMsg))
}

func (r *JobRepository) update(id, set string, args ...any) error {
	query := fmt.Sprintf("UPDATE jobs SET %s, updated_at = ? WHERE id = ?", set)
	args = append(args, now(), id)

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	return nil
}
