package main

import (
	"context"
	"sort"

	"github.com/desertthunder/vmx/internal/ingest"
	"github.com/urfave/cli/v3"
)

// CredentialsValidate probes each configured credential with a live read-only
// request and prints a per-platform verdict. The destination token pair is
// checked alongside the sources unless a single platform was requested.
func (r *Runner) CredentialsValidate(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}
	platform := cmd.String("platform")

	platforms := []string{}
	if platform != "" {
		platforms = append(platforms, platform)
	} else {
		for name := range r.config.Providers {
			platforms = append(platforms, name)
		}
		sort.Strings(platforms)
	}

	r.writePlainHeader("Credential Validation")

	failures := 0
	for _, name := range platforms {
		provider, err := r.registry.Get(name)
		if err != nil {
			r.writePlain("✗ %s: %v\n", name, err)
			failures++
			continue
		}

		credential, err := r.credentialFor(name)
		if err != nil {
			r.writePlain("✗ %s: %v\n", name, err)
			failures++
			continue
		}

		if err := provider.ValidateCredential(ctx, credential); err != nil {
			r.logger.Warn("credential rejected", "platform", name, "error", err)
			r.writePlain("✗ %s: %v\n", name, err)
			failures++
			continue
		}
		r.writePlain("✓ %s\n", name)
	}

	if platform == "" {
		client := ingest.NewClient(r.config.Destination, r.httpClient)
		if err := client.ValidateCredential(ctx); err != nil {
			r.logger.Warn("destination credential rejected", "error", err)
			r.writePlain("✗ destination: %v\n", err)
			failures++
		} else {
			r.writePlain("✓ destination\n")
		}
	}

	if failures > 0 {
		r.writePlainln("%d credential(s) failed validation", failures)
	}
	return nil
}

// credentialsCommand handles credential operations.
func credentialsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "credentials",
		Aliases: []string{"creds"},
		Usage:   "Manage source platform credentials",
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Probe configured credentials with live read-only requests",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
					&cli.StringFlag{
						Name:    "platform",
						Aliases: []string{"p"},
						Usage:   "Validate a single platform (default: all configured)",
					},
				},
				Action: r.CredentialsValidate,
			},
		},
	}
}
