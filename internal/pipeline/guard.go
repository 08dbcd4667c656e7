package pipeline

import (
	"errors"
	"fmt"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
)

// Disposition is the idempotency guard's verdict on a candidate.
type Disposition int

const (
	// Migrate allows the candidate through the pipeline.
	Migrate Disposition = iota
	// Skip short-circuits a candidate that already has a destination asset.
	Skip
)

// Guard decides whether a candidate discovered during enumeration still needs
// migration by cross-referencing the durable store.
//
// The check runs before any access URL is resolved — resolution can incur
// cost or rate limits on the source platform — and again at dispatch time to
// tolerate concurrent jobs migrating overlapping catalogs. Last check wins;
// the residual double-submission window is covered by the destination
// platform's own deduplication.
type Guard struct {
	videos VideoStore
}

// NewGuard creates a Guard over the given store.
func NewGuard(videos VideoStore) *Guard {
	return &Guard{videos: videos}
}

// Check returns the candidate's disposition. When mark is true a previously
// unknown candidate is recorded as discovered, so re-scans and concurrent
// runs observe it.
func (g *Guard) Check(video *models.Video, mark bool) (Disposition, error) {
	existing, err := g.videos.Get(video.Environment, video.SourceID)
	if err != nil {
		if !errors.Is(err, shared.ErrVideoNotFound) {
			return Skip, fmt.Errorf("guard lookup failed: %w", err)
		}

		// Never seen: allow, optionally recording discovery.
		if mark {
			if err := g.videos.UpsertDiscovered(video); err != nil {
				return Skip, err
			}
		}
		return Migrate, nil
	}

	if existing.DestinationAssetID != "" {
		return Skip, nil
	}

	// Known but never handed to the destination: allow again.
	return Migrate, nil
}
