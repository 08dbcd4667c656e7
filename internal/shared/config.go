package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Environments map[string]EnvironmentConfig `toml:"environments"`
	Providers    map[string]ProviderConfig    `toml:"providers"`
	Destination  DestinationConfig            `toml:"destination"`
	Database     DatabaseConfig               `toml:"database"`
	Server       ServerConfig                 `toml:"server"`
}

// EnvironmentConfig selects the durable store instance for one logical environment.
//
// Every job is pinned to exactly one environment for its entire lifetime.
type EnvironmentConfig struct {
	DatabasePath string `toml:"database_path"`
}

// ProviderConfig contains source-platform credentials: a public key, a secret
// key, and a provider-specific metadata bag (container names, regions,
// subscription identifiers, and so on).
type ProviderConfig struct {
	PublicKey string            `toml:"public_key"`
	SecretKey string            `toml:"secret_key"`
	Metadata  map[string]string `toml:"metadata"`
}

// DestinationConfig contains settings for the destination ingest platform.
type DestinationConfig struct {
	BaseURL     string `toml:"base_url"`
	TokenID     string `toml:"token_id"`
	TokenSecret string `toml:"token_secret"`
	StreamHost  string `toml:"stream_host"`
	ImageHost   string `toml:"image_host"`
}

// DatabaseConfig contains connection pool settings applied to every environment's store.
type DatabaseConfig struct {
	MaxOpenConns int `toml:"max_open_conns"`
	MaxIdleConns int `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings for the webhook and status endpoints.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// A .env file in the working directory, if present, is loaded first so secret
// keys can be supplied through the environment instead of the TOML file.
// Environment overrides are applied after parsing (see ApplyEnvOverrides).
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyEnvOverrides()
	return &config, nil
}

// ApplyEnvOverrides overlays credential material from the process environment.
//
// Provider keys follow VMX_<PLATFORM>_PUBLIC_KEY / VMX_<PLATFORM>_SECRET_KEY
// with dashes mapped to underscores (VMX_CLOUDFLARE_STREAM_SECRET_KEY), and the
// destination secret follows VMX_DESTINATION_TOKEN_SECRET.
func (c *Config) ApplyEnvOverrides() {
	for name, provider := range c.Providers {
		prefix := "VMX_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		if v := os.Getenv(prefix + "_PUBLIC_KEY"); v != "" {
			provider.PublicKey = v
		}
		if v := os.Getenv(prefix + "_SECRET_KEY"); v != "" {
			provider.SecretKey = v
		}
		c.Providers[name] = provider
	}

	if v := os.Getenv("VMX_DESTINATION_TOKEN_ID"); v != "" {
		c.Destination.TokenID = v
	}
	if v := os.Getenv("VMX_DESTINATION_TOKEN_SECRET"); v != "" {
		c.Destination.TokenSecret = v
	}
}

// Environment returns the configuration for the named environment.
func (c *Config) Environment(name string) (EnvironmentConfig, error) {
	env, ok := c.Environments[name]
	if !ok {
		return EnvironmentConfig{}, fmt.Errorf("%w: %s", ErrUnknownEnvironment, name)
	}
	return env, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	// Write the embedded example config to the file
	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
