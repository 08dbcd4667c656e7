package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/vmx/internal/providers"
	"github.com/desertthunder/vmx/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	registry := providers.NewRegistry(
		providers.NewAzureService(),
		providers.NewS3Service(),
		providers.NewCloudflareService("", nil),
		providers.NewAPIVideoService("", nil),
	)

	runner := NewRunner(RunnerOpts{
		Config:   config,
		Registry: registry,
		Logger:   logger,
	})

	app := &cli.Command{
		Name:     "vmx",
		Usage:    "Migrate video catalogs from source platforms to a managed destination",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		err_ := errors.Unwrap(err)
		if errors.Is(err_, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		} else {
			logger.Fatalf("application error: %v", err)
		}
	}
}
