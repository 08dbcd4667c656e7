package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/vmx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup prepares the config file and initializes each environment's durable store.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	environment := cmd.String("env")

	var config *shared.Config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		}
	}
	r.config = config

	environments := []string{}
	if environment != "" {
		if _, err := config.Environment(environment); err != nil {
			return err
		}
		environments = append(environments, environment)
	} else {
		for name := range config.Environments {
			environments = append(environments, name)
		}
	}

	for _, name := range environments {
		if err := r.setupEnvironment(name); err != nil {
			return err
		}
	}

	r.writePlain("✓ Setup complete for %d environment(s)\n", len(environments))
	return nil
}

func (r *Runner) setupEnvironment(name string) error {
	env, err := r.config.Environment(name)
	if err != nil {
		return err
	}

	r.logger.Info("initializing environment store", "environment", name, "path", env.DatabasePath)

	db, err := shared.NewDatabase(env.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to create database for %s: %w", name, err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations for %s: %w", name, err)
	}

	r.logger.Info("environment ready", "environment", name)
	return nil
}

// setupCommand handles database and configuration bootstrap.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize config and environment databases",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Initialize a single environment (default: all)",
			},
		},
		Action: r.Setup,
	}
}
