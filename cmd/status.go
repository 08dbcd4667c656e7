package main

import (
	"context"

	"github.com/desertthunder/vmx/internal/formatter"
	"github.com/urfave/cli/v3"
)

// Status prints a job's lifecycle state and its per-video report ledger.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}
	environment := cmd.String("env")
	jobID := cmd.String("job")

	stores, err := r.openStores(environment)
	if err != nil {
		return err
	}
	defer stores.Close()

	job, err := stores.jobs.Get(jobID)
	if err != nil {
		return err
	}

	reports, err := stores.reports.ListByJob(job.ID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		data, err := formatter.ToJobJSON(job, reports)
		if err != nil {
			return err
		}
		r.writePlain("%s\n", data)
		return nil
	}

	if base := cmd.String("export"); base != "" {
		result, err := formatter.WriteJobExport(job, reports, base)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %s and %s\n", result.ReportsFile, result.MetadataFile)
		return nil
	}

	r.writePlain("%s", formatter.RenderJobStatus(job, reports))
	return nil
}

// statusCommand handles job status inspection.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Inspect a migration job's report ledger",
		Flags: []cli.Flag{
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
			&cli.StringFlag{
				Name:     "job",
				Aliases:  []string{"j"},
				Usage:    "Job ID",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.StringFlag{
				Name:  "export",
				Usage: "Write {base}_reports.csv and {base}_job.json with this base path",
			},
		},
		Action: r.Status,
	}
}
