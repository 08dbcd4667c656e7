package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/providers"
	"github.com/desertthunder/vmx/internal/shared"
	tu "github.com/desertthunder/vmx/internal/testing"
)

func testJob() *models.Job {
	return &models.Job{ID: "job-1", Environment: "qa", Platform: "mock", Status: models.JobRunning}
}

func newTestEngine(provider providers.Provider, store *fakeVideoStore, jobs *fakeJobStore, submitter Submitter, tracker Tracker) *MigrationEngine {
	return NewMigrationEngine(EngineOpts{
		Registry: providers.NewRegistry(provider),
		Ingest:   submitter,
		Videos:   store,
		Jobs:     jobs,
		Tracker:  tracker,
		Workers:  2,
		Retry:    fastRetry(),
	})
}

func TestEnumerate(t *testing.T) {
	t.Run("drains pagination and records discoveries", func(t *testing.T) {
		provider := &tu.MockProvider{
			Pages: []*providers.Page{
				{
					Videos: []models.Video{{SourceID: "v1"}, {SourceID: "v2"}},
					Next:   &providers.Cursor{Kind: "mock", Payload: []byte("page-2")},
				},
				{
					Videos:    []models.Video{{SourceID: "v3"}},
					Exhausted: true,
				},
			},
		}
		store := newFakeVideoStore()
		jobs := &fakeJobStore{}
		engine := newTestEngine(provider, store, jobs, &fakeSubmitter{}, NewMemoryTracker())

		videos, err := engine.Enumerate(context.Background(), testJob(), models.Credential{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(videos) != 3 {
			t.Fatalf("expected 3 candidates, got %d", len(videos))
		}
		for i, want := range []string{"v1", "v2", "v3"} {
			if videos[i].SourceID != want {
				t.Errorf("candidate %d: expected %s, got %s", i, want, videos[i].SourceID)
			}
			if videos[i].Environment != "qa" || videos[i].JobID != "job-1" {
				t.Errorf("candidate %s missing job attribution: %+v", want, videos[i])
			}
		}
		if provider.PageCalls() != 2 {
			t.Errorf("expected 2 page fetches, got %d", provider.PageCalls())
		}
		if len(store.upserts) != 3 {
			t.Errorf("expected 3 discovery upserts, got %v", store.upserts)
		}
		if len(jobs.cursors) != 1 || jobs.cursors[0] != "mock:page-2" {
			t.Errorf("expected one cursor checkpoint mock:page-2, got %v", jobs.cursors)
		}
	})

	t.Run("skips already migrated videos and reports them", func(t *testing.T) {
		provider := &tu.MockProvider{
			Pages: []*providers.Page{
				{
					Videos:    []models.Video{{SourceID: "v1"}, {SourceID: "v2"}},
					Exhausted: true,
				},
			},
		}
		store := newFakeVideoStore()
		store.seed(models.Video{Environment: "qa", SourceID: "v1", DestinationAssetID: "asset-old"})
		tracker := NewMemoryTracker()
		engine := newTestEngine(provider, store, &fakeJobStore{}, &fakeSubmitter{}, tracker)

		videos, err := engine.Enumerate(context.Background(), testJob(), models.Credential{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(videos) != 1 || videos[0].SourceID != "v2" {
			t.Fatalf("expected only v2 to survive, got %+v", videos)
		}

		reports := tracker.ByVideo("v1")
		if len(reports) != 1 {
			t.Fatalf("expected one skip report for v1, got %d", len(reports))
		}
		if reports[0].Status != models.StatusSkipped || reports[0].Progress != 100 {
			t.Errorf("unexpected skip report: %+v", reports[0])
		}
	})

	t.Run("truncates at the result cap", func(t *testing.T) {
		provider := &tu.MockProvider{
			Pages: []*providers.Page{
				{
					Videos: []models.Video{{SourceID: "v1"}, {SourceID: "v2"}, {SourceID: "v3"}},
					Next:   &providers.Cursor{Kind: "mock", Payload: []byte("more")},
				},
			},
		}
		engine := NewMigrationEngine(EngineOpts{
			Registry:  providers.NewRegistry(provider),
			Videos:    newFakeVideoStore(),
			Tracker:   NewMemoryTracker(),
			ResultCap: 2,
		})

		videos, err := engine.Enumerate(context.Background(), testJob(), models.Credential{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(videos) != 2 {
			t.Errorf("expected 2 candidates at the cap, got %d", len(videos))
		}
		if provider.PageCalls() != 1 {
			t.Errorf("expected enumeration to stop after one page, got %d", provider.PageCalls())
		}
	})

	t.Run("unknown platform", func(t *testing.T) {
		engine := newTestEngine(&tu.MockProvider{}, newFakeVideoStore(), &fakeJobStore{}, &fakeSubmitter{}, NewMemoryTracker())

		job := testJob()
		job.Platform = "vimeo"
		_, err := engine.Enumerate(context.Background(), job, models.Credential{}, nil)
		if !errors.Is(err, shared.ErrUnknownPlatform) {
			t.Errorf("expected ErrUnknownPlatform, got %v", err)
		}
	})

	t.Run("pagination failure aborts with context", func(t *testing.T) {
		provider := &tu.MockProvider{PageErr: errors.New("listing denied")}
		engine := newTestEngine(provider, newFakeVideoStore(), &fakeJobStore{}, &fakeSubmitter{}, NewMemoryTracker())

		_, err := engine.Enumerate(context.Background(), testJob(), models.Credential{}, nil)
		if err == nil || !errors.Is(err, provider.PageErr) {
			t.Errorf("expected wrapped listing error, got %v", err)
		}
	})

	t.Run("re-enumeration after submission yields no candidates", func(t *testing.T) {
		page := &providers.Page{
			Videos:    []models.Video{{SourceID: "v1"}},
			Exhausted: true,
		}
		store := newFakeVideoStore()
		engine := newTestEngine(&tu.MockProvider{Pages: []*providers.Page{page}}, store, &fakeJobStore{}, &fakeSubmitter{}, NewMemoryTracker())

		first, err := engine.Enumerate(context.Background(), testJob(), models.Credential{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(first) != 1 {
			t.Fatalf("expected one candidate on the first pass, got %d", len(first))
		}

		if err := store.MarkInProgress("qa", "v1", "job-1", "asset-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rerun := newTestEngine(&tu.MockProvider{Pages: []*providers.Page{page}}, store, &fakeJobStore{}, &fakeSubmitter{}, NewMemoryTracker())
		videos, err := rerun.Enumerate(context.Background(), testJob(), models.Credential{}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(videos) != 0 {
			t.Errorf("expected no candidates after submission, got %+v", videos)
		}
	})
}

func TestProgressNeverBlocks(t *testing.T) {
	provider := &tu.MockProvider{
		Pages: []*providers.Page{
			{
				Videos:    []models.Video{{SourceID: "v1"}, {SourceID: "v2"}},
				Exhausted: true,
			},
		},
	}
	engine := newTestEngine(provider, newFakeVideoStore(), &fakeJobStore{}, &fakeSubmitter{}, NewMemoryTracker())

	// An unbuffered channel with no reader would deadlock a blocking send.
	progress := make(chan ProgressUpdate)
	videos, err := engine.Enumerate(context.Background(), testJob(), models.Credential{}, progress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(videos) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(videos))
	}
}
