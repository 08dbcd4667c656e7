package server

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
)

// JobStore is the subset of the job repository used by the status endpoint.
type JobStore interface {
	Get(id string) (*models.Job, error)
}

// ReportLister reads back a job's status ledger.
type ReportLister interface {
	ListByJob(jobID string) ([]models.Report, error)
}

// JobStatusHandler serves read-only snapshots of a migration job: the job's
// own lifecycle state plus the per-video report ledger with aggregate counts.
type JobStatusHandler struct {
	jobs    JobStore
	reports ReportLister
	logger  *log.Logger
}

// NewJobStatusHandler creates the job status endpoint.
func NewJobStatusHandler(jobs JobStore, reports ReportLister, logger *log.Logger) *JobStatusHandler {
	return &JobStatusHandler{jobs: jobs, reports: reports, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *JobStatusHandler) Routes() []string {
	return []string{"GET /jobs/{id}/status"}
}

// jobStatusResponse is the status endpoint's response body.
type jobStatusResponse struct {
	JobID       string           `json:"jobId"`
	Environment string           `json:"environment"`
	Platform    string           `json:"platform"`
	Status      models.JobStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	Counts      map[string]int   `json:"counts"`
	Reports     []models.Report  `json:"reports"`
}

// ServeHTTP handles a job status request.
func (h *JobStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	job, err := h.jobs.Get(id)
	if err != nil {
		if errors.Is(err, shared.ErrJobNotFound) {
			writeJSON(w, http.StatusNotFound, ackResponse{Ok: false, Message: "job not found"})
			return
		}
		h.logger.Error("failed to load job", "job", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, ackResponse{Ok: false, Message: "failed to load job"})
		return
	}

	reports, err := h.reports.ListByJob(id)
	if err != nil {
		h.logger.Error("failed to load job reports", "job", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, ackResponse{Ok: false, Message: "failed to load reports"})
		return
	}

	// Count each video once, by its latest report.
	latest := map[string]models.VideoStatus{}
	for _, report := range reports {
		latest[report.VideoID] = report.Status
	}
	counts := map[string]int{}
	for _, status := range latest {
		counts[string(status)]++
	}

	writeJSON(w, http.StatusOK, jobStatusResponse{
		JobID:       job.ID,
		Environment: job.Environment,
		Platform:    job.Platform,
		Status:      job.Status,
		Error:       job.Error,
		Counts:      counts,
		Reports:     reports,
	})
}
