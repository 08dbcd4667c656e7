package pipeline

import (
	"sync"

	"github.com/desertthunder/vmx/internal/models"
)

// Tracker receives the append-only progress ledger for a job.
//
// Implementations must tolerate concurrent reports from the coordinator's
// worker pool and from webhook handlers running in other goroutines.
// repositories.ReportRepository is the durable implementation.
type Tracker interface {
	Report(report models.Report) error
}

// VideoStore is the durable store surface the pipeline mutates. Every method
// is a single-document keyed operation; see the repositories package for the
// SQLite implementation.
type VideoStore interface {
	UpsertDiscovered(video *models.Video) error
	Get(environment, sourceID string) (*models.Video, error)
	MarkInProgress(environment, sourceID, jobID, assetID string) error
	MarkFailed(environment, sourceID string) error
	ListByStatus(environment string, status models.VideoStatus, location string, limit int) ([]*models.Video, error)
}

// JobStore is the job surface the pipeline checkpoints cursors and status to.
type JobStore interface {
	SetCursor(id, kind string, payload []byte) error
	SetStatus(id string, status models.JobStatus, errMsg string) error
}

// MemoryTracker is an in-memory Tracker for tests and dry runs.
type MemoryTracker struct {
	mu      sync.Mutex
	reports []models.Report
}

// NewMemoryTracker creates an empty MemoryTracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{}
}

// Report appends the report to the in-memory ledger.
func (t *MemoryTracker) Report(report models.Report) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reports = append(t.reports, report)
	return nil
}

// Reports returns a copy of the ledger in append order.
func (t *MemoryTracker) Reports() []models.Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Report, len(t.reports))
	copy(out, t.reports)
	return out
}

// ByVideo returns the ledger entries for one video in append order.
func (t *MemoryTracker) ByVideo(videoID string) []models.Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []models.Report
	for _, r := range t.reports {
		if r.VideoID == videoID {
			out = append(out, r)
		}
	}
	return out
}
