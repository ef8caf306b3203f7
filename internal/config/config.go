package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // rules.timezone must resolve on hosts without a zoneinfo database

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/satscheck/ledger-cli/internal/model"
	"github.com/satscheck/ledger-cli/internal/snapshot"
)

// Config holds the full application configuration.
type Config struct {
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Snapshot   SnapshotConfig   `yaml:"snapshot" mapstructure:"snapshot"`
	Region     RegionConfig     `yaml:"region" mapstructure:"region"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// LedgerConfig locates the ledger files and the submission batch.
type LedgerConfig struct {
	LocationsPath   string `yaml:"locations_path" mapstructure:"locations_path"`
	ChecksPath      string `yaml:"checks_path" mapstructure:"checks_path"`
	SubmissionsPath string `yaml:"submissions_path" mapstructure:"submissions_path"`
}

// SnapshotConfig configures the upstream feed and the local snapshot file.
type SnapshotConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	Format      string `yaml:"format" mapstructure:"format"`
	Path        string `yaml:"path" mapstructure:"path"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// RegionConfig describes the tracked city.
type RegionConfig struct {
	Name        string  `yaml:"name" mapstructure:"name"`
	IDPrefix    string  `yaml:"id_prefix" mapstructure:"id_prefix"`
	DefaultCity string  `yaml:"default_city" mapstructure:"default_city"`
	MinLat      float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MinLon      float64 `yaml:"min_lon" mapstructure:"min_lon"`
	MaxLat      float64 `yaml:"max_lat" mapstructure:"max_lat"`
	MaxLon      float64 `yaml:"max_lon" mapstructure:"max_lon"`
}

// RulesConfig holds the bounty program rules.
type RulesConfig struct {
	CooldownDays          int    `yaml:"cooldown_days" mapstructure:"cooldown_days"`
	ActivityWindowDays    int    `yaml:"activity_window_days" mapstructure:"activity_window_days"`
	ConfirmationThreshold int    `yaml:"confirmation_threshold" mapstructure:"confirmation_threshold"`
	Timezone              string `yaml:"timezone" mapstructure:"timezone"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MonitoringConfig configures run health alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	StaleAfterHours      int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ledger.locations_path", "data/locations.csv")
	v.SetDefault("ledger.checks_path", "data/checks.csv")
	v.SetDefault("ledger.submissions_path", "data/approved_submissions.json")
	v.SetDefault("snapshot.url", "https://static.btcmap.org/api/v2/elements.json")
	v.SetDefault("snapshot.format", "btcmap")
	v.SetDefault("snapshot.path", "data/snapshot.csv")
	v.SetDefault("snapshot.user_agent", "ledger-cli/1.0")
	v.SetDefault("snapshot.timeout_secs", 120)
	v.SetDefault("snapshot.max_retries", 3)
	v.SetDefault("region.name", "Berlin")
	v.SetDefault("region.id_prefix", "DE-BE")
	v.SetDefault("region.default_city", "Berlin")
	v.SetDefault("region.min_lat", 52.33)
	v.SetDefault("region.min_lon", 13.07)
	v.SetDefault("region.max_lat", 52.68)
	v.SetDefault("region.max_lon", 13.78)
	v.SetDefault("rules.cooldown_days", 90)
	v.SetDefault("rules.activity_window_days", 90)
	v.SetDefault("rules.confirmation_threshold", 3)
	v.SetDefault("rules.timezone", "Europe/Berlin")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ledger.db")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.lookback_window_hours", 168)
	v.SetDefault("monitoring.stale_after_hours", 48)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "ledger" (offline ledger jobs), "snapshot" (network fetch) and "store".
func (c *Config) Validate(mode string) error {
	var errs []string

	validateLedger := func() {
		if c.Ledger.LocationsPath == "" {
			errs = append(errs, "ledger.locations_path is required")
		}
		if c.Ledger.ChecksPath == "" {
			errs = append(errs, "ledger.checks_path is required")
		}
		if strings.TrimSpace(c.Region.IDPrefix) == "" {
			errs = append(errs, "region.id_prefix is required")
		}
		if c.Region.MinLat >= c.Region.MaxLat || c.Region.MinLon >= c.Region.MaxLon {
			errs = append(errs, "region bounding box must have min < max")
		}
		if c.Rules.CooldownDays < 1 {
			errs = append(errs, "rules.cooldown_days must be >= 1")
		}
		if c.Rules.ActivityWindowDays < 1 {
			errs = append(errs, "rules.activity_window_days must be >= 1")
		}
		if c.Rules.ConfirmationThreshold < 1 {
			errs = append(errs, "rules.confirmation_threshold must be >= 1")
		}
		if _, err := time.LoadLocation(c.Rules.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("rules.timezone %q is not a known zone", c.Rules.Timezone))
		}
	}

	switch mode {
	case "ledger":
		validateLedger()
	case "snapshot":
		validateLedger()
		if c.Snapshot.URL == "" {
			errs = append(errs, "snapshot.url is required")
		}
		if _, err := snapshot.ParseFormat(c.Snapshot.Format); err != nil {
			errs = append(errs, fmt.Sprintf("snapshot.format %q must be btcmap or overpass", c.Snapshot.Format))
		}
		if c.Snapshot.Path == "" {
			errs = append(errs, "snapshot.path is required")
		}
	case "store":
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// BuildRegion returns the configured region.
func (c *Config) BuildRegion() (snapshot.Region, error) {
	r := c.Region
	return snapshot.NewRegion(r.Name, r.DefaultCity, r.MinLat, r.MinLon, r.MaxLat, r.MaxLon)
}

// Today returns the calendar date of now in the configured timezone.
func (c *Config) Today(now time.Time) (model.Date, error) {
	loc, err := time.LoadLocation(c.Rules.Timezone)
	if err != nil {
		return model.Date{}, eris.Wrapf(err, "config: load timezone %q", c.Rules.Timezone)
	}
	return model.DateOf(now.In(loc)), nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
