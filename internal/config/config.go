// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Portal  PortalConfig  `mapstructure:"portal"`
	Browser BrowserConfig `mapstructure:"browser"`
	DB      DBConfig      `mapstructure:"db"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Limiter LimiterConfig `mapstructure:"limiter"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// PortalConfig describes the regulatory portal's search surface.
type PortalConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	SearchFormPath string `mapstructure:"search_form_path"`
	SubmitPath     string `mapstructure:"submit_path"`
	BeginDateField string `mapstructure:"begin_date_field"`
	EndDateField   string `mapstructure:"end_date_field"`
	OffsetParam    string `mapstructure:"offset_param"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxPages       int    `mapstructure:"max_pages"`
}

// BrowserConfig configures the headless fallback engine.
type BrowserConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// WorkerConfig governs the enrichment loop.
type WorkerConfig struct {
	BatchLimit         int     `mapstructure:"batch_limit"`
	RetryCooldownHours int     `mapstructure:"retry_cooldown_hours"`
	WeightWellbore     float64 `mapstructure:"weight_wellbore"`
	WeightFieldName    float64 `mapstructure:"weight_field_name"`
	WeightAcres        float64 `mapstructure:"weight_acres"`
	WeightWellCount    float64 `mapstructure:"weight_well_count"`
	OKThreshold        float64 `mapstructure:"ok_threshold"`
	OKMinFields        int     `mapstructure:"ok_min_fields"`
}

// LimiterConfig paces outbound requests.
type LimiterConfig struct {
	MinIntervalMs int `mapstructure:"min_interval_ms"`
	JitterMs      int `mapstructure:"jitter_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PERMITS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Empty defaults register the keys so AutomaticEnv can see them.
	v.SetDefault("portal.base_url", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("portal.search_form_path", "/dp/initializePublicQueryAction.do")
	v.SetDefault("portal.submit_path", "/dp/publicQueryAction.do")
	v.SetDefault("portal.begin_date_field", "searchArgs.submittedDtFrom")
	v.SetDefault("portal.end_date_field", "searchArgs.submittedDtTo")
	v.SetDefault("portal.offset_param", "pager.offset")
	v.SetDefault("portal.user_agent", "permit-pipeline/0.1")
	v.SetDefault("portal.timeout_seconds", 20)
	v.SetDefault("portal.max_pages", 25)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("db.table", "permits")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("worker.batch_limit", 50)
	v.SetDefault("worker.retry_cooldown_hours", 6)
	v.SetDefault("worker.weight_wellbore", 0.3)
	v.SetDefault("worker.weight_field_name", 0.3)
	v.SetDefault("worker.weight_acres", 0.2)
	v.SetDefault("worker.weight_well_count", 0.2)
	v.SetDefault("worker.ok_threshold", 0.6)
	v.SetDefault("worker.ok_min_fields", 2)
	v.SetDefault("limiter.min_interval_ms", 1500)
	v.SetDefault("limiter.jitter_ms", 750)
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url must be set")
	}
	if c.Portal.TimeoutSeconds <= 0 {
		return fmt.Errorf("portal.timeout_seconds must be > 0")
	}
	if c.Portal.MaxPages <= 0 {
		return fmt.Errorf("portal.max_pages must be > 0")
	}
	if c.Worker.BatchLimit <= 0 {
		return fmt.Errorf("worker.batch_limit must be > 0")
	}
	if c.Worker.OKThreshold < 0 || c.Worker.OKThreshold > 1 {
		return fmt.Errorf("worker.ok_threshold must be in [0,1]")
	}
	if c.Limiter.MinIntervalMs < 0 {
		return fmt.Errorf("limiter.min_interval_ms must be >= 0")
	}
	return nil
}

// PortalTimeout converts the configured request timeout into a duration.
func (c Config) PortalTimeout() time.Duration {
	return time.Duration(c.Portal.TimeoutSeconds) * time.Second
}

// RetryCooldown converts the configured cooldown into a duration.
func (c Config) RetryCooldown() time.Duration {
	return time.Duration(c.Worker.RetryCooldownHours) * time.Hour
}
