package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vmx/internal/ingest"
	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/providers"
	"github.com/desertthunder/vmx/internal/shared"
)

// Engine defines operations for migrating video catalogs between platforms.
type Engine interface {
	// Enumerate drives the source platform's pagination to exhaustion and
	// returns the candidates that survive the idempotency guard, in
	// discovery order.
	Enumerate(ctx context.Context, job *models.Job, cred models.Credential, progress chan<- ProgressUpdate) ([]models.Video, error)

	// Migrate dispatches candidates through resolve-and-submit. It returns
	// once every candidate is submitted or terminally failed; completion
	// arrives later through the webhook channel.
	Migrate(ctx context.Context, job *models.Job, cred models.Credential, videos []models.Video, progress chan<- ProgressUpdate) (*RunResult, error)

	// Resume re-queues previously discovered but unfinished videos from the
	// durable store instead of re-listing the source platform.
	Resume(ctx context.Context, job *models.Job, cred models.Credential, progress chan<- ProgressUpdate) (*RunResult, error)
}

// Submitter hands one access URL plus correlation payload to the destination.
// ingest.Client is the production implementation.
type Submitter interface {
	Submit(ctx context.Context, accessURL string, passthrough models.Passthrough) (*ingest.Submission, error)
}

// MigrationEngine implements [Engine].
type MigrationEngine struct {
	registry *providers.Registry
	ingest   Submitter
	videos   VideoStore
	jobs     JobStore
	guard    *Guard
	tracker  Tracker
	logger   *log.Logger

	resultCap      int           // bounds one enumeration run
	workers        int           // per-provider concurrent resolutions and submissions
	resolveTimeout time.Duration // bounds one access-URL resolution
	retry          RetryConfig
}

// EngineOpts contains configuration options for creating a MigrationEngine.
type EngineOpts struct {
	Registry  *providers.Registry
	Ingest    Submitter
	Videos    VideoStore
	Jobs      JobStore
	Tracker   Tracker
	Logger    *log.Logger
	ResultCap int
	Workers   int
	Retry     *RetryConfig
}

// NewMigrationEngine creates a new MigrationEngine with the provided dependencies.
func NewMigrationEngine(opts EngineOpts) *MigrationEngine {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.ResultCap <= 0 {
		opts.ResultCap = 1000
	}
	if opts.Workers <= 0 {
		opts.Workers = 10
	}

	retry := DefaultRetryConfig
	if opts.Retry != nil {
		retry = *opts.Retry
	}

	return &MigrationEngine{
		registry:       opts.Registry,
		ingest:         opts.Ingest,
		videos:         opts.Videos,
		jobs:           opts.Jobs,
		guard:          NewGuard(opts.Videos),
		tracker:        opts.Tracker,
		logger:         opts.Logger,
		resultCap:      opts.ResultCap,
		workers:        opts.Workers,
		resolveTimeout: 30 * time.Second,
		retry:          retry,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *MigrationEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// report appends one entry to the durable ledger, logging rather than
// propagating failures so a status hiccup never aborts a migration.
func (e *MigrationEngine) report(jobID, videoID string, status models.VideoStatus, progress int, reason string) {
	if e.tracker == nil {
		return
	}
	err := e.tracker.Report(models.Report{
		JobID:    jobID,
		VideoID:  videoID,
		Status:   status,
		Progress: progress,
		Reason:   reason,
	})
	if err != nil {
		e.logger.Error("failed to append status report", "job", jobID, "video", videoID, "error", err)
	}
}

// Enumerate drives FetchPage from a nil cursor until the provider reports
// exhaustion or the result cap is reached. The last successfully processed
// cursor is checkpointed on the job record after every page, so a
// pagination-level failure leaves the job resumable from its final good
// state. Enumeration is single-threaded; cursors are not safe for concurrent
// advancement.
func (e *MigrationEngine) Enumerate(ctx context.Context, job *models.Job, cred models.Credential, progress chan<- ProgressUpdate) ([]models.Video, error) {
	provider, err := e.registry.Get(job.Platform)
	if err != nil {
		return nil, err
	}

	var survivors []models.Video
	var cursor *providers.Cursor
	pages := 0

	for {
		if ctx.Err() != nil {
			return survivors, ctx.Err()
		}

		page, err := provider.FetchPage(ctx, cred, cursor)
		if err != nil {
			return survivors, fmt.Errorf("enumeration aborted at page %d: %w", pages+1, err)
		}
		pages++

		for i := range page.Videos {
			video := page.Videos[i]
			video.Environment = job.Environment
			video.JobID = job.ID

			disposition, err := e.guard.Check(&video, true)
			if err != nil {
				// One candidate's store hiccup must not abort the page.
				e.logger.Warn("guard check failed", "video", video.SourceID, "error", err)
				continue
			}
			if disposition == Skip {
				e.report(job.ID, video.SourceID, models.StatusSkipped, 100, "already migrated")
				e.sendProgress(progress, skippedUpdate(video))
				continue
			}

			survivors = append(survivors, video)
		}

		e.sendProgress(progress, fetchPageUpdate(pages, len(survivors)))

		if page.Next != nil && e.jobs != nil {
			if err := e.jobs.SetCursor(job.ID, page.Next.Kind, page.Next.Payload); err != nil {
				return survivors, fmt.Errorf("failed to checkpoint cursor: %w", err)
			}
		}

		if page.Exhausted || len(survivors) >= e.resultCap {
			if len(survivors) > e.resultCap {
				survivors = survivors[:e.resultCap]
			}
			return survivors, nil
		}

		cursor = page.Next
	}
}
