package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
)

// ReportRepository persists the append-only progress ledger consumed by the
// job status endpoint. It implements the pipeline's Tracker interface.
type ReportRepository struct {
	db *sql.DB
}

// NewReportRepository creates a new ReportRepository with the given database connection.
func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Report appends one progress entry for a video within a job.
func (r *ReportRepository) Report(report models.Report) error {
	if report.JobID == "" || report.VideoID == "" {
		return fmt.Errorf("report missing job or video id")
	}
	if report.ID == "" {
		report.ID = shared.GenerateID()
	}

	query := `
		INSERT INTO job_reports (id, job_id, video_id, status, progress, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		report.ID,
		report.JobID,
		report.VideoID,
		report.Status,
		report.Progress,
		nullable(report.Reason),
		now(),
	)
	if err != nil {
		return fmt.Errorf("failed to append report: %w", err)
	}
	return nil
}

// ListByJob retrieves a job's ledger in append order.
func (r *ReportRepository) ListByJob(jobID string) ([]models.Report, error) {
	query := `
		SELECT id, job_id, video_id, status, progress, reason, created_at
		FROM job_reports
		WHERE job_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		var report models.Report
		var reason sql.NullString

		if err := rows.Scan(
			&report.ID,
			&report.JobID,
			&report.VideoID,
			&report.Status,
			&report.Progress,
			&reason,
			&report.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		report.Reason = stringOrEmpty(reason)
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return reports, nil
}
