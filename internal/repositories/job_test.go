package repositories

import (
	"errors"
	"testing"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
)

func TestJobRepository(t *testing.T) {
	t.Run("create fills defaults and round-trips", func(t *testing.T) {
		repo := NewJobRepository(testDB(t))

		job := &models.Job{Environment: "qa", Platform: "azure"}
		if err := repo.Create(job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.ID == "" {
			t.Fatal("expected a generated job id")
		}
		if job.Status != models.JobPending {
			t.Errorf("expected pending default, got %s", job.Status)
		}

		loaded, err := repo.Get(job.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loaded.Environment != "qa" || loaded.Platform != "azure" {
			t.Errorf("round-trip lost fields: %+v", loaded)
		}
		if loaded.CreatedAt.IsZero() || loaded.UpdatedAt.IsZero() {
			t.Error("expected timestamps to be set")
		}
	})

	t.Run("create rejects an incomplete job", func(t *testing.T) {
		repo := NewJobRepository(testDB(t))

		if err := repo.Create(&models.Job{Environment: "qa"}); err == nil {
			t.Error("expected validation error for a job without a platform")
		}
	})

	t.Run("get missing job", func(t *testing.T) {
		repo := NewJobRepository(testDB(t))

		_, err := repo.Get("ghost")
		if !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})

	t.Run("cursor checkpoints persist", func(t *testing.T) {
		repo := NewJobRepository(testDB(t))

		job := &models.Job{Environment: "qa", Platform: "cloudflare-stream"}
		if err := repo.Create(job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := repo.SetCursor(job.ID, "cloudflare-stream", []byte("2026-08-01T00:00:00Z")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		loaded, err := repo.Get(job.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loaded.CursorKind != "cloudflare-stream" {
			t.Errorf("expected cursor kind persisted, got %q", loaded.CursorKind)
		}
		if string(loaded.CursorPayload) != "2026-08-01T00:00:00Z" {
			t.Errorf("expected cursor payload persisted, got %q", loaded.CursorPayload)
		}
	})

	t.Run("status updates keep the latest error", func(t *testing.T) {
		repo := NewJobRepository(testDB(t))

		job := &models.Job{Environment: "qa", Platform: "azure", Status: models.JobRunning}
		if err := repo.Create(job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := repo.SetStatus(job.ID, models.JobFailed, "2 of 5 videos failed"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		loaded, err := repo.Get(job.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loaded.Status != models.JobFailed || loaded.Error != "2 of 5 videos failed" {
			t.Errorf("unexpected job state: %+v", loaded)
		}

		if err := repo.SetStatus(job.ID, models.JobCompleted, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		loaded, err = repo.Get(job.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loaded.Status != models.JobCompleted || loaded.Error != "" {
			t.Errorf("expected error cleared on completion, got %+v", loaded)
		}
	})

	t.Run("updates against missing jobs fail", func(t *testing.T) {
		repo := NewJobRepository(testDB(t))

		if err := repo.SetCursor("ghost", "azure", nil); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound from SetCursor, got %v", err)
		}
		if err := repo.SetStatus("ghost", models.JobAbandoned, ""); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound from SetStatus, got %v", err)
		}
	})
}
