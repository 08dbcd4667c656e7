package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vmx/internal/ingest"
	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/pipeline"
	"github.com/desertthunder/vmx/internal/providers"
	"github.com/desertthunder/vmx/internal/repositories"
	"github.com/desertthunder/vmx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	registry   *providers.Registry
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	Registry   *providers.Registry
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Registry == nil {
		opts.Registry = providers.NewRegistry()
	}

	return &Runner{
		config:     opts.Config,
		registry:   opts.Registry,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, credentialsCommand, migrateCommand, statusCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// reloadConfig replaces the runner's config when the command names an
// explicit path, so every action honors a --config flag uniformly.
func (r *Runner) reloadConfig(cmd *cli.Command) error {
	configPath := cmd.String("config")
	if configPath == "" {
		return nil
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", configPath, err)
	}
	r.config = config
	return nil
}

// credentialFor builds the capability bundle for one source platform from config.
func (r *Runner) credentialFor(platform string) (models.Credential, error) {
	provider, ok := r.config.Providers[platform]
	if !ok {
		return models.Credential{}, fmt.Errorf("%w: no credentials configured for %s", shared.ErrMissingCredentials, platform)
	}
	return models.Credential{
		PublicKey: provider.PublicKey,
		SecretKey: provider.SecretKey,
		Metadata:  provider.Metadata,
	}, nil
}

// stores bundles the per-environment repositories over one database handle.
type stores struct {
	db      *sql.DB
	videos  *repositories.VideoRepository
	jobs    *repositories.JobRepository
	reports *repositories.ReportRepository
}

func (s *stores) Close() error {
	return s.db.Close()
}

// openStores opens the named environment's database and wraps it in repositories.
func (r *Runner) openStores(environment string) (*stores, error) {
	db, err := r.config.OpenEnvironment(environment)
	if err != nil {
		return nil, err
	}

	return &stores{
		db:      db,
		videos:  repositories.NewVideoRepository(db),
		jobs:    repositories.NewJobRepository(db),
		reports: repositories.NewReportRepository(db),
	}, nil
}

// engineFor assembles a migration engine over the given stores.
func (r *Runner) engineFor(s *stores, limit, workers int) *pipeline.MigrationEngine {
	return pipeline.NewMigrationEngine(pipeline.EngineOpts{
		Registry:  r.registry,
		Ingest:    ingest.NewClient(r.config.Destination, r.httpClient),
		Videos:    s.videos,
		Jobs:      s.jobs,
		Tracker:   s.reports,
		Logger:    r.logger,
		ResultCap: limit,
		Workers:   workers,
	})
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
