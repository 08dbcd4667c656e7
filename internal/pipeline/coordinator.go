package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/desertthunder/vmx/internal/ingest"
	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/providers"
	"github.com/desertthunder/vmx/internal/shared"
)

// VideoState names a video's position in the per-video state machine.
type VideoState string

const (
	StateDiscovered  VideoState = "discovered"
	StateURLResolved VideoState = "url-resolved"
	StateSubmitted   VideoState = "submitted"
	StateFailed      VideoState = "failed"
	StateSkipped     VideoState = "skipped"
)

// VideoOutcome records where one video ended up when Migrate returned.
// Submitted videos reach their terminal state later, via webhooks.
type VideoOutcome struct {
	SourceID string
	State    VideoState
	AssetID  string
	Err      error
}

// RunResult summarizes one Migrate or Resume invocation.
type RunResult struct {
	Total     int
	Submitted int
	Skipped   int
	Failed    int
	Outcomes  []VideoOutcome
}

// Migrate runs each candidate through resolve-and-submit on a worker pool
// bounded by the provider's concurrency limit.
//
// Per video: the idempotency guard re-checks the durable record (a
// concurrent job may have submitted it since enumeration), the provider
// resolves a transient access URL, and the URL plus correlation payload goes
// to the destination. Submission failures retry with backoff; retry
// exhaustion and NotFound both finalize the video as failed with progress
// 100. One video's failure never aborts its siblings, and Migrate never
// waits for a webhook.
func (e *MigrationEngine) Migrate(ctx context.Context, job *models.Job, cred models.Credential, videos []models.Video, progress chan<- ProgressUpdate) (*RunResult, error) {
	provider, err := e.registry.Get(job.Platform)
	if err != nil {
		return nil, err
	}
	if e.ingest == nil {
		return nil, fmt.Errorf("%w: ingest client not initialized", shared.ErrInvalidConfig)
	}

	result := &RunResult{
		Total:    len(videos),
		Outcomes: make([]VideoOutcome, len(videos)),
	}

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := range videos {
		wg.Add(1)
		go func(i int, video models.Video) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				mu.Lock()
				result.Outcomes[i] = VideoOutcome{SourceID: video.SourceID, State: StateDiscovered, Err: ctx.Err()}
				mu.Unlock()
				return
			}
			defer func() { <-sem }()

			outcome := e.migrateOne(ctx, job, cred, provider, video, i+1, len(videos), progress)

			mu.Lock()
			result.Outcomes[i] = outcome
			switch outcome.State {
			case StateSubmitted:
				result.Submitted++
			case StateSkipped:
				result.Skipped++
			case StateFailed:
				result.Failed++
			}
			mu.Unlock()
		}(i, videos[i])
	}

	wg.Wait()
	return result, nil
}

// migrateOne walks one video through the state machine up to submission.
func (e *MigrationEngine) migrateOne(ctx context.Context, job *models.Job, cred models.Credential, provider providers.Provider, video models.Video, step, total int, progress chan<- ProgressUpdate) VideoOutcome {
	// Dispatch-time re-check; last check wins.
	disposition, err := e.guard.Check(&video, false)
	if err != nil {
		e.logger.Warn("dispatch guard check failed", "video", video.SourceID, "error", err)
	} else if disposition == Skip {
		e.report(job.ID, video.SourceID, models.StatusSkipped, 100, "already migrated")
		e.sendProgress(progress, skippedUpdate(video))
		return VideoOutcome{SourceID: video.SourceID, State: StateSkipped}
	}

	e.sendProgress(progress, resolveUpdate(step, total, video.SourceID))

	resolved, err := retryDo(ctx, e.retry, func() (*models.Video, error) {
		resolveCtx, cancel := context.WithTimeout(ctx, e.resolveTimeout)
		defer cancel()
		return provider.FetchVideo(resolveCtx, cred, providers.VideoRef{SourceID: video.SourceID, Location: video.Location})
	})
	if err != nil {
		reason := fmt.Sprintf("failed to resolve access URL: %v", err)
		if errors.Is(err, shared.ErrNotFound) {
			reason = "source video not found"
		}
		return e.failVideo(job, video, step, total, reason, err, progress)
	}

	passthrough := models.Passthrough{
		JobID:         job.ID,
		SourceVideoID: video.SourceID,
		Environment:   job.Environment,
		Title:         video.Title,
	}

	submission, err := retryDo(ctx, e.retry, func() (*ingest.Submission, error) {
		return e.ingest.Submit(ctx, resolved.AccessURL, passthrough)
	})
	if err != nil {
		return e.failVideo(job, video, step, total, fmt.Sprintf("submission failed: %v", err), err, progress)
	}

	if err := e.videos.MarkInProgress(job.Environment, video.SourceID, job.ID, submission.AssetID); err != nil {
		e.logger.Error("failed to mark video in-progress", "video", video.SourceID, "error", err)
	}
	e.report(job.ID, video.SourceID, models.StatusInProgress, 50, "")
	e.sendProgress(progress, submitUpdate(step, total, video.SourceID, submission.AssetID))

	return VideoOutcome{SourceID: video.SourceID, State: StateSubmitted, AssetID: submission.AssetID}
}

func (e *MigrationEngine) failVideo(job *models.Job, video models.Video, step, total int, reason string, cause error, progress chan<- ProgressUpdate) VideoOutcome {
	if err := e.videos.MarkFailed(job.Environment, video.SourceID); err != nil {
		e.logger.Error("failed to mark video failed", "video", video.SourceID, "error", err)
	}
	e.report(job.ID, video.SourceID, models.StatusFailed, 100, reason)
	e.sendProgress(progress, failedUpdate(step, total, video.SourceID, cause))
	return VideoOutcome{SourceID: video.SourceID, State: StateFailed, Err: cause}
}

// Resume scans the durable store for this job's environment and re-queues
// every unmigrated record through Migrate. This is the store-query
// enumeration strategy: authoritative once the store is populated, and far
// cheaper than re-listing the source platform.
func (e *MigrationEngine) Resume(ctx context.Context, job *models.Job, cred models.Credential, progress chan<- ProgressUpdate) (*RunResult, error) {
	records, err := e.videos.ListByStatus(job.Environment, models.StatusUnmigrated, "", e.resultCap)
	if err != nil {
		return nil, fmt.Errorf("failed to scan store for unfinished videos: %w", err)
	}

	videos := make([]models.Video, 0, len(records))
	for _, record := range records {
		video := *record
		video.JobID = job.ID
		videos = append(videos, video)
	}

	return e.Migrate(ctx, job, cred, videos, progress)
}
