// Package config loads prospect-engine configuration from YAML and the
// environment. Environment variables always override YAML values; secrets
// (API keys, passwords) must only come from environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/prospecthq/prospect-engine/pkg/apperrors"
)

// Config holds all configuration for prospect-engine.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"`

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Geocode   GeocodeConfig   `yaml:"geocode"`
	EPC       EPCConfig       `yaml:"epc"`
	Broadband BroadbandConfig `yaml:"broadband"`
	Planning  PlanningConfig  `yaml:"planning"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`

	// Sources are the listing feeds and licensing registers to ingest, in the
	// order they should run. YAML-only: source lists do not map onto flat
	// environment variables.
	Sources []SourceConfig `yaml:"sources" env:"-"`
}

// SourceConfig describes one external feed.
type SourceConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"` // "listing_feed" or "licensing_register"
	BaseURL string `yaml:"base_url"`
}

// DatabaseConfig holds PostgreSQL settings for the persistence gateway.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"prospect"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"prospect_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// URL renders the database config as a connection URL for pgx.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds optional Redis settings for the long-lived geocode cache
// tier. If Host is empty the engine runs with the in-memory cache only.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTLHours int    `yaml:"ttl_hours" env:"REDIS_TTL_HOURS" env-default:"720"`
}

// GeocodeConfig holds the two geocoding provider tiers. The address tier is
// optional (key required when enabled); the postcode tier is always available.
type GeocodeConfig struct {
	AddressBaseURL   string `yaml:"address_base_url" env:"GEOCODE_ADDRESS_BASE_URL" env-default:""`
	AddressAPIKey    string `yaml:"-" env:"GEOCODE_ADDRESS_API_KEY"` // Secret - not in YAML
	PostcodeBaseURL  string `yaml:"postcode_base_url" env:"GEOCODE_POSTCODE_BASE_URL" env-default:"https://api.postcodes.io"`
	MinIntervalMS    int    `yaml:"min_interval_ms" env:"GEOCODE_MIN_INTERVAL_MS" env-default:"1000"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms" env:"GEOCODE_REQUEST_TIMEOUT_MS" env-default:"5000"`
}

// AddressTierEnabled reports whether address-level geocoding is configured.
func (c *GeocodeConfig) AddressTierEnabled() bool {
	return c.AddressBaseURL != ""
}

// EPCConfig holds the energy-certificate register client settings. The
// register uses HTTP basic auth; both credentials are required when enabled.
type EPCConfig struct {
	Enabled   bool   `yaml:"enabled" env:"EPC_ENABLED" env-default:"true"`
	BaseURL   string `yaml:"base_url" env:"EPC_BASE_URL" env-default:"https://epc.opendatacommunities.org/api/v1"`
	AuthEmail string `yaml:"-" env:"EPC_AUTH_EMAIL"` // Secret - not in YAML
	AuthKey   string `yaml:"-" env:"EPC_AUTH_KEY"`   // Secret - not in YAML
}

// BroadbandConfig holds the broadband coverage API settings.
type BroadbandConfig struct {
	Enabled bool   `yaml:"enabled" env:"BROADBAND_ENABLED" env-default:"false"`
	BaseURL string `yaml:"base_url" env:"BROADBAND_BASE_URL" env-default:""`
	APIKey  string `yaml:"-" env:"BROADBAND_API_KEY"` // Secret - not in YAML
}

// PlanningConfig locates the planning constraint dataset.
type PlanningConfig struct {
	// DatasetPath is a GeoJSON FeatureCollection of restricted-area polygons.
	DatasetPath string `yaml:"dataset_path" env:"PLANNING_DATASET_PATH" env-default:""`
}

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	Concurrency    int `yaml:"concurrency" env:"PIPELINE_CONCURRENCY" env-default:"4"`
	StalenessDays  int `yaml:"staleness_days" env:"PIPELINE_STALENESS_DAYS" env-default:"30"`
	DefaultLimit   int `yaml:"default_limit" env:"PIPELINE_DEFAULT_LIMIT" env-default:"0"`
	TimeBudgetMins int `yaml:"time_budget_mins" env:"PIPELINE_TIME_BUDGET_MINS" env-default:"0"`
}

// StalenessWindow returns the no-sight window after which records are marked
// stale.
func (c *PipelineConfig) StalenessWindow() time.Duration {
	return time.Duration(c.StalenessDays) * 24 * time.Hour
}

// Load reads config.yaml if present, then applies environment overrides, then
// validates. The version string is set at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.Version = version

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every enabled provider has its required credentials.
// A failure here is fatal: no partial progress is possible without them.
func (c *Config) Validate() error {
	if c.EPC.Enabled && (c.EPC.AuthEmail == "" || c.EPC.AuthKey == "") {
		return fmt.Errorf("%w: EPC register enabled but EPC_AUTH_EMAIL/EPC_AUTH_KEY not set", apperrors.ErrConfiguration)
	}
	if c.Broadband.Enabled && c.Broadband.BaseURL == "" {
		return fmt.Errorf("%w: broadband enabled but BROADBAND_BASE_URL not set", apperrors.ErrConfiguration)
	}
	if c.Geocode.AddressTierEnabled() && c.Geocode.AddressAPIKey == "" {
		return fmt.Errorf("%w: address geocoding enabled but GEOCODE_ADDRESS_API_KEY not set", apperrors.ErrConfiguration)
	}
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("%w: pipeline concurrency must be at least 1", apperrors.ErrConfiguration)
	}
	for _, src := range c.Sources {
		if src.Name == "" || src.BaseURL == "" {
			return fmt.Errorf("%w: source entries need both name and base_url", apperrors.ErrConfiguration)
		}
		if src.Kind != "listing_feed" && src.Kind != "licensing_register" {
			return fmt.Errorf("%w: unknown source kind %q for %s", apperrors.ErrConfiguration, src.Kind, src.Name)
		}
	}
	return nil
}
