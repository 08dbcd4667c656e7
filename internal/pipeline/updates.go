package pipeline

import (
	"fmt"

	"github.com/desertthunder/vmx/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display. These are
// advisory and lossy; the durable ledger goes through [Tracker].
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced consumers
}

// Operation phase enumeration
type Phase int

const (
	FetchPage Phase = iota
	FilterCandidates
	ResolveURL
	Submit
	Finalize
)

func (p Phase) String() string {
	switch p {
	case FetchPage:
		return "fetch_page"
	case FilterCandidates:
		return "filter_candidates"
	case ResolveURL:
		return "resolve_url"
	case Submit:
		return "submit"
	case Finalize:
		return "finalize"
	default:
		return ""
	}
}

func fetchPageUpdate(page, found int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPage,
		Step:    page,
		Total:   page,
		Message: fmt.Sprintf("Page %d: %d candidates so far", page, found),
	}
}

func skippedUpdate(video models.Video) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FilterCandidates,
		Message: fmt.Sprintf("Skipping %s (already migrated)", video.SourceID),
		Data:    video,
	}
}

func resolveUpdate(step, total int, sourceID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveURL,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Resolving %s", step, total, sourceID),
	}
}

func submitUpdate(step, total int, sourceID, assetID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Submit,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Submitted %s (asset %s)", step, total, sourceID, assetID),
	}
}

func failedUpdate(step, total int, sourceID string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Submit,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, sourceID, err),
	}
}
