package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/vmx/internal/shared"
)

// VideoStatus enumerates the migration lifecycle of a single video.
type VideoStatus string

const (
	StatusUnmigrated VideoStatus = "unmigrated"
	StatusInProgress VideoStatus = "in-progress"
	StatusCompleted  VideoStatus = "completed"
	StatusFailed     VideoStatus = "failed"
	StatusSkipped    VideoStatus = "skipped"
)

// Terminal reports whether the status permits no further transition.
func (s VideoStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
//
// The relation is monotonic: unmigrated → in-progress → {completed, failed},
// with skipped reachable only from unmigrated. Re-applying a terminal state to
// itself is permitted so finalization stays idempotent under at-least-once
// webhook delivery.
func (s VideoStatus) CanTransition(next VideoStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusUnmigrated:
		return next == StatusInProgress || next == StatusSkipped || next == StatusFailed
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// Valid reports whether s is a known status value.
func (s VideoStatus) Valid() bool {
	switch s {
	case StatusUnmigrated, StatusInProgress, StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Video represents one source asset under migration.
//
// AccessURL is a transient, time-limited read URL resolved immediately before
// submission; it is never written to the durable store.
type Video struct {
	UUID                  string
	Environment           string
	SourceID              string
	Title                 string
	AccessURL             string
	Status                VideoStatus
	Location              string // container, bucket, or account marker on the source platform
	JobID                 string
	DestinationAssetID    string
	DestinationPlaybackID string
	StreamingURL          string
	ThumbnailURL          string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Validate checks that the video carries the fields every stage depends on.
func (v *Video) Validate() error {
	if v.SourceID == "" {
		return fmt.Errorf("video missing source id")
	}
	if v.Environment == "" {
		return fmt.Errorf("video missing environment")
	}
	if v.Status != "" && !v.Status.Valid() {
		return fmt.Errorf("invalid video status: %s", v.Status)
	}
	return nil
}

// JobStatus enumerates the lifecycle of a migration run.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobAbandoned JobStatus = "abandoned"
)

// Job represents one migration run, scoped to one source-platform credential
// set and one destination configuration.
//
// The ID doubles as the correlation token embedded in every downstream request
// to the destination platform. CursorKind and CursorPayload hold the last
// pagination state successfully processed, preserved on failure for manual
// resume.
type Job struct {
	ID            string
	Environment   string
	Platform      string
	Status        JobStatus
	CursorKind    string
	CursorPayload []byte
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the job's identifying fields.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job missing id")
	}
	if j.Environment == "" {
		return fmt.Errorf("job missing environment")
	}
	if j.Platform == "" {
		return fmt.Errorf("job missing platform")
	}
	return nil
}

// Credential is the capability bundle for one source platform. The pipeline
// treats it as opaque; each provider interprets the keys and metadata bag
// according to its own protocol.
type Credential struct {
	PublicKey string
	SecretKey string
	Metadata  map[string]string
}

// Meta returns the named metadata value, or the empty string when absent.
func (c Credential) Meta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

// Passthrough is the correlation payload embedded verbatim in every ingest
// request and echoed back on the destination's webhook channel. The webhook
// correlator reconstructs the originating job and video from it without any
// additional lookup.
//
// The wire format is a JSON string carried in an opaque field; any other shape
// fails closed on decode.
type Passthrough struct {
	JobID         string `json:"jobId"`
	SourceVideoID string `json:"sourceVideoId"`
	Environment   string `json:"environment"`
	Title         string `json:"title"`
}

// Encode serializes the payload to its wire form.
func (p Passthrough) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode passthrough: %w", err)
	}
	return string(data), nil
}

// DecodePassthrough parses the wire form back into a Passthrough, requiring
// the job and source video identifiers to be present.
func DecodePassthrough(raw string) (*Passthrough, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty passthrough", shared.ErrCorrelationMismatch)
	}

	var p Passthrough
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrCorrelationMismatch, err)
	}

	if p.JobID == "" || p.SourceVideoID == "" {
		return nil, fmt.Errorf("%w: missing correlation identifiers", shared.ErrCorrelationMismatch)
	}

	return &p, nil
}

// Report is one entry in a job's append-only progress ledger.
type Report struct {
	ID        string      `json:"id"`
	JobID     string      `json:"jobId"`
	VideoID   string      `json:"videoId"`
	Status    VideoStatus `json:"status"`
	Progress  int         `json:"progress"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}
