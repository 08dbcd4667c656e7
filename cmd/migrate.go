package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/vmx/internal/formatter"
	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/pipeline"
	"github.com/urfave/cli/v3"
)

// MigrateRun enumerates a source platform's catalog and dispatches every
// unmigrated video to the destination under a fresh job.
func (r *Runner) MigrateRun(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}
	environment := cmd.String("env")
	platform := cmd.String("platform")
	limit := cmd.Int("limit")
	workers := cmd.Int("workers")

	credential, err := r.credentialFor(platform)
	if err != nil {
		return err
	}

	stores, err := r.openStores(environment)
	if err != nil {
		return err
	}
	defer stores.Close()

	engine := r.engineFor(stores, int(limit), int(workers))

	job := &models.Job{Environment: environment, Platform: platform, Status: models.JobRunning}
	if err := stores.jobs.Create(job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	r.logger.Info("starting migration", "job", job.ID, "environment", environment, "platform", platform)
	r.writePlain("Job: %s\n", job.ID)

	progressCh := make(chan pipeline.ProgressUpdate, 50)
	go r.renderProgress(progressCh)

	videos, err := engine.Enumerate(ctx, job, credential, progressCh)
	if err != nil {
		close(progressCh)
		r.abandonJob(stores, job, err)
		return fmt.Errorf("enumeration failed: %w", err)
	}

	r.writePlain("\nDiscovered %d candidate(s)\n\n", len(videos))

	result, err := engine.Migrate(ctx, job, credential, videos, progressCh)
	close(progressCh)
	if err != nil {
		r.abandonJob(stores, job, err)
		return err
	}

	r.finishJob(stores, job, result)
	r.writePlain("\n%s", formatter.RenderRunSummary(job, result))
	return nil
}

// MigrateResume re-queues a prior job's unfinished videos from the durable
// store without re-listing the source platform.
func (r *Runner) MigrateResume(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}
	environment := cmd.String("env")
	jobID := cmd.String("job")
	workers := cmd.Int("workers")

	stores, err := r.openStores(environment)
	if err != nil {
		return err
	}
	defer stores.Close()

	job, err := stores.jobs.Get(jobID)
	if err != nil {
		return err
	}

	credential, err := r.credentialFor(job.Platform)
	if err != nil {
		return err
	}

	if err := stores.jobs.SetStatus(job.ID, models.JobRunning, ""); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	job.Status = models.JobRunning

	r.logger.Info("resuming migration", "job", job.ID, "environment", job.Environment, "platform", job.Platform)

	engine := r.engineFor(stores, int(cmd.Int("limit")), int(workers))

	progressCh := make(chan pipeline.ProgressUpdate, 50)
	go r.renderProgress(progressCh)

	result, err := engine.Resume(ctx, job, credential, progressCh)
	close(progressCh)
	if err != nil {
		r.abandonJob(stores, job, err)
		return err
	}

	r.finishJob(stores, job, result)
	r.writePlain("\n%s", formatter.RenderRunSummary(job, result))
	return nil
}

// renderProgress consumes lossy progress updates and prints a line per event.
func (r *Runner) renderProgress(progressCh <-chan pipeline.ProgressUpdate) {
	for update := range progressCh {
		switch update.Phase {
		case pipeline.FetchPage:
			r.writePlain("📥 %s\n", update.Message)
		case pipeline.FilterCandidates:
			r.writePlain("   %s\n", update.Message)
		case pipeline.Submit:
			r.writePlain("📤 %s\n", update.Message)
		case pipeline.Finalize:
			r.writePlain("✗  %s\n", update.Message)
		}
	}
}

// finishJob settles the job record from the run result. Submitted videos are
// still encoding, so a run with no failures is completed from the CLI's
// perspective; the webhook channel settles individual videos later.
func (r *Runner) finishJob(s *stores, job *models.Job, result *pipeline.RunResult) {
	status := models.JobCompleted
	errMsg := ""
	if result.Failed > 0 {
		status = models.JobFailed
		errMsg = fmt.Sprintf("%d of %d videos failed", result.Failed, result.Total)
	}

	if err := s.jobs.SetStatus(job.ID, status, errMsg); err != nil {
		r.logger.Error("failed to settle job status", "job", job.ID, "error", err)
		return
	}
	job.Status = status
	job.Error = errMsg
}

// abandonJob marks a job abandoned after an unrecoverable error, preserving
// its checkpoint cursor for manual resume.
func (r *Runner) abandonJob(s *stores, job *models.Job, cause error) {
	if err := s.jobs.SetStatus(job.ID, models.JobAbandoned, cause.Error()); err != nil {
		r.logger.Error("failed to mark job abandoned", "job", job.ID, "error", err)
	}
	job.Status = models.JobAbandoned
}

// migrateCommand handles catalog migration operations.
func migrateCommand(r *Runner) *cli.Command {
	commonFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.StringFlag{
			Name:     "env",
			Aliases:  []string{"e"},
			Usage:    "Target environment",
			Required: true,
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of videos to process in one run",
			Value: 1000,
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Concurrent submissions",
			Value: 10,
		},
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "Migrate video catalogs to the destination platform",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Enumerate a source platform and submit every unmigrated video",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "platform",
						Aliases:  []string{"p"},
						Usage:    "Source platform (azure, s3, cloudflare-stream, api-video)",
						Required: true,
					},
				}, commonFlags...),
				Action: r.MigrateRun,
			},
			{
				Name:  "resume",
				Usage: "Re-queue a prior job's unfinished videos from the durable store",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "job",
						Aliases:  []string{"j"},
						Usage:    "Job ID to resume",
						Required: true,
					},
				}, commonFlags...),
				Action: r.MigrateResume,
			},
		},
	}
}
