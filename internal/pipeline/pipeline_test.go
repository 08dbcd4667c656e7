package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/desertthunder/vmx/internal/ingest"
	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
)

// fakeVideoStore is an in-memory VideoStore recording every mutation.
type fakeVideoStore struct {
	mu      sync.Mutex
	records map[string]*models.Video
	getErr  error

	upserts    []string
	inProgress map[string]string // source id -> asset id
	failed     []string
}

func newFakeVideoStore() *fakeVideoStore {
	return &fakeVideoStore{
		records:    map[string]*models.Video{},
		inProgress: map[string]string{},
	}
}

func storeKey(environment, sourceID string) string {
	return environment + "/" + sourceID
}

func (s *fakeVideoStore) seed(video models.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[storeKey(video.Environment, video.SourceID)] = &video
}

func (s *fakeVideoStore) UpsertDiscovered(video *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey(video.Environment, video.SourceID)
	if _, ok := s.records[key]; !ok {
		copied := *video
		copied.Status = models.StatusUnmigrated
		s.records[key] = &copied
	}
	s.upserts = append(s.upserts, video.SourceID)
	return nil
}

func (s *fakeVideoStore) Get(environment, sourceID string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	record, ok := s.records[storeKey(environment, sourceID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrVideoNotFound, sourceID)
	}
	copied := *record
	return &copied, nil
}

func (s *fakeVideoStore) MarkInProgress(environment, sourceID, jobID, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress[sourceID] = assetID
	if record, ok := s.records[storeKey(environment, sourceID)]; ok {
		record.Status = models.StatusInProgress
		record.DestinationAssetID = assetID
		record.JobID = jobID
	}
	return nil
}

func (s *fakeVideoStore) MarkFailed(environment, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, sourceID)
	if record, ok := s.records[storeKey(environment, sourceID)]; ok {
		record.Status = models.StatusFailed
	}
	return nil
}

func (s *fakeVideoStore) ListByStatus(environment string, status models.VideoStatus, location string, limit int) ([]*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Video
	for _, record := range s.records {
		if record.Environment != environment || record.Status != status {
			continue
		}
		if location != "" && record.Location != location {
			continue
		}
		copied := *record
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// fakeJobStore records cursor checkpoints and status changes.
type fakeJobStore struct {
	mu        sync.Mutex
	cursors   []string // kind:payload per checkpoint
	statuses  []models.JobStatus
	cursorErr error
}

func (s *fakeJobStore) SetCursor(id, kind string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursorErr != nil {
		return s.cursorErr
	}
	s.cursors = append(s.cursors, kind+":"+string(payload))
	return nil
}

func (s *fakeJobStore) SetStatus(id string, status models.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

// fakeSubmitter replays a scripted error per call, then succeeds with an
// asset id derived from the source video.
type fakeSubmitter struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (f *fakeSubmitter) Submit(ctx context.Context, accessURL string, passthrough models.Passthrough) (*ingest.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.calls < len(f.errs) {
		err = f.errs[f.calls]
	}
	f.calls++
	if err != nil {
		return nil, err
	}
	return &ingest.Submission{
		AssetID:    "asset-" + passthrough.SourceVideoID,
		PlaybackID: "play-" + passthrough.SourceVideoID,
		Status:     "preparing",
	}, nil
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errStore = errors.New("store unavailable")

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxRetries: 2, InitialWait: 1, MaxWait: 1, Multiplier: 1}
}
