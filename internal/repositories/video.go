package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
)

const videoColumns = `uuid, environment, source_id, title, status, location, job_id,
	destination_asset_id, destination_playback_id, streaming_url, thumbnail_url,
	created_at, updated_at`

// VideoRepository persists durable video records keyed by (environment, source_id).
//
// The transient access URL is deliberately absent from the schema; it never
// outlives a migration attempt.
type VideoRepository struct {
	db *sql.DB
}

// NewVideoRepository creates a new VideoRepository with the given database connection.
func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// UpsertDiscovered records a candidate discovered during enumeration. A new
// record starts unmigrated; an existing record keeps its status and
// destination fields, refreshing only the descriptive columns. Safe to repeat
// for the same (environment, source_id) across overlapping jobs.
func (r *VideoRepository) UpsertDiscovered(video *models.Video) error {
	if err := video.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if video.UUID == "" {
		video.UUID = shared.GenerateID()
	}

	ts := now()
	query := `
		INSERT INTO videos (uuid, environment, source_id, title, status, location, job_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (environment, source_id) DO UPDATE SET
			title = excluded.title,
			location = excluded.location,
			job_id = excluded.job_id,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		video.UUID,
		video.Environment,
		video.SourceID,
		nullable(video.Title),
		models.StatusUnmigrated,
		nullable(video.Location),
		nullable(video.JobID),
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert video: %w", err)
	}

	return nil
}

// Get retrieves the record for one source video within an environment.
// Returns [shared.ErrVideoNotFound] when no record exists.
func (r *VideoRepository) Get(environment, sourceID string) (*models.Video, error) {
	query := fmt.Sprintf(`SELECT %s FROM videos WHERE environment = ? AND source_id = ?`, videoColumns)
	return r.scanOne(r.db.QueryRow(query, environment, sourceID))
}

// MarkInProgress transitions the record to in-progress at submission time,
// recording the job that submitted it and the destination asset identifier
// the ingest API assigned.
func (r *VideoRepository) MarkInProgress(environment, sourceID, jobID, assetID string) error {
	return r.setStatus(environment, sourceID, models.StatusInProgress,
		"job_id = ?, destination_asset_id = ?", jobID, nullable(assetID))
}

// MarkFailed transitions the record to failed.
func (r *VideoRepository) MarkFailed(environment, sourceID string) error {
	return r.setStatus(environment, sourceID, models.StatusFailed, "")
}

func (r *VideoRepository) setStatus(environment, sourceID string, status models.VideoStatus, extra string, extraArgs ...any) error {
	set := "status = ?, updated_at = ?"
	if extra != "" {
		set += ", " + extra
	}

	args := append([]any{status, now()}, extraArgs...)
	args = append(args, environment, sourceID)

	result, err := r.db.Exec(fmt.Sprintf("UPDATE videos SET %s WHERE environment = ? AND source_id = ?", set), args...)
	if err != nil {
		return fmt.Errorf("failed to update video status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s/%s", shared.ErrVideoNotFound, environment, sourceID)
	}
	return nil
}

// Finalize records the destination asset identifiers and derived playback
// URLs and transitions the record to completed. The update is an
// unconditional set keyed by (environment, source_id), so replaying the same
// completion event converges on the identical record.
func (r *VideoRepository) Finalize(environment, sourceID string, assetID, playbackID, streamingURL, thumbnailURL string) error {
	query := `
		UPDATE videos
		SET status = ?,
			destination_asset_id = ?,
			destination_playback_id = ?,
			streaming_url = ?,
			thumbnail_url = ?,
			updated_at = ?
		WHERE environment = ? AND source_id = ?
	`

	result, err := r.db.Exec(query,
		models.StatusCompleted,
		nullable(assetID),
		nullable(playbackID),
		nullable(streamingURL),
		nullable(thumbnailURL),
		now(),
		environment,
		sourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize video: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s/%s", shared.ErrVideoNotFound, environment, sourceID)
	}
	return nil
}

// ListByStatus retrieves up to limit records in creation order, filtered by
// status and, when location is non-empty, by the source account marker. This
// is the scan backing the resume path.
func (r *VideoRepository) ListByStatus(environment string, status models.VideoStatus, location string, limit int) ([]*models.Video, error) {
	query := fmt.Sprintf(`SELECT %s FROM videos WHERE environment = ? AND status = ?`, videoColumns)
	args := []any{environment, status}

	if location != "" {
		query += " AND location = ?"
		args = append(args, location)
	}

	query += " ORDER BY created_at ASC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	var videos []*models.Video
	for rows.Next() {
		video, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate videos: %w", err)
	}
	return videos, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *VideoRepository) scanOne(row *sql.Row) (*models.Video, error) {
	video, err := r.scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrVideoNotFound
	}
	return video, err
}

func (r *VideoRepository) scanRow(row rowScanner) (*models.Video, error) {
	var video models.Video
	var title, location, jobID, assetID, playbackID, streamingURL, thumbnailURL sql.NullString

	err := row.Scan(
		&video.UUID,
		&video.Environment,
		&video.SourceID,
		&title,
		&video.Status,
		&location,
		&jobID,
		&assetID,
		&playbackID,
		&streamingURL,
		&thumbnailURL,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan video: %w", err)
	}

	video.Title = stringOrEmpty(title)
	video.Location = stringOrEmpty(location)
	video.JobID = stringOrEmpty(jobID)
	video.DestinationAssetID = stringOrEmpty(assetID)
	video.DestinationPlaybackID = stringOrEmpty(playbackID)
	video.StreamingURL = stringOrEmpty(streamingURL)
	video.ThumbnailURL = stringOrEmpty(thumbnailURL)

	return &video, nil
}
