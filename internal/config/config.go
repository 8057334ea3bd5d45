package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when neither a flag nor CREDITSTUDIO_CONFIG is provided.
const DefaultConfigPath = "config.yaml"

// Missing-pricing strategies.
const (
	// MissingStrategyFallback returns a flat per-service-type credit amount.
	MissingStrategyFallback = "fallback"
	// MissingStrategyDisableService fails closed, signalling the service should be disabled.
	MissingStrategyDisableService = "disable_service"
	// MissingStrategyException fails with a pricing-not-found error.
	MissingStrategyException = "exception"
)

// AppConfig holds process-level options resolved from flags.
type AppConfig struct {
	ConfigPath string
}

// Config is the decoded configuration file.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Redis     RedisConfig      `yaml:"redis"`
	JWT       JWTConfig        `yaml:"jwt"`
	Logging   LoggingConfig    `yaml:"logging"`
	Pricing   PricingConfig    `yaml:"pricing"`
	Workflow  WorkflowConfig   `yaml:"workflow"`
	Providers []ProviderConfig `yaml:"providers"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	Mode string `yaml:"mode"`
}

// DatabaseConfig holds the database DSN.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig configures the optional redis connection used for chat locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a redis address is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// JWTConfig holds JWT signing settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LoggingConfig controls log level, format and rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// PricingConfig is the configuration surface consumed by the pricing resolver.
type PricingConfig struct {
	MissingStrategy      string           `yaml:"missing_strategy"`
	FallbackCredits      map[string]int64 `yaml:"fallback_credits"`
	PartialMatching      *bool            `yaml:"partial_matching"`
	DefaultFallback      *bool            `yaml:"default_fallback"`
	DefaultCurrency      string           `yaml:"default_currency"`
	CreditToCurrencyRate float64          `yaml:"credit_to_currency_rate"`
	LogResolutions       bool             `yaml:"log_resolutions"`
	LogMissing           *bool            `yaml:"log_missing"`
}

// PartialMatchingEnabled reports whether the partial-match tier is active.
func (c PricingConfig) PartialMatchingEnabled() bool {
	return c.PartialMatching == nil || *c.PartialMatching
}

// DefaultFallbackEnabled reports whether the is_default tier is active.
func (c PricingConfig) DefaultFallbackEnabled() bool {
	return c.DefaultFallback == nil || *c.DefaultFallback
}

// LogMissingEnabled reports whether missing pricing is logged.
func (c PricingConfig) LogMissingEnabled() bool {
	return c.LogMissing == nil || *c.LogMissing
}

// WorkflowConfig controls workflow step execution.
type WorkflowConfig struct {
	ProviderTimeout time.Duration    `yaml:"provider_timeout"`
	HistoryLimit    int              `yaml:"history_limit"`
	AutoAdvance     bool             `yaml:"auto_advance"`
	EstimateCredits map[string]int64 `yaml:"estimate_credits"`
	LockExpiry      time.Duration    `yaml:"lock_expiry"`
	// SweepInterval is how often stranded pending/processing messages are failed. Negative disables.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ProviderConfig declares one generation adapter.
type ProviderConfig struct {
	Name         string            `yaml:"name"`
	Type         string            `yaml:"type"`
	Model        string            `yaml:"model"`
	ModelType    string            `yaml:"model_type"`
	Endpoint     string            `yaml:"endpoint"`
	APIKey       string            `yaml:"api_key"`
	Headers      map[string]string `yaml:"headers"`
	ResponsePath string            `yaml:"response_path"`
	OutputKind   string            `yaml:"output_kind"`
}

// DefaultEstimateCredits are the flat per-model-type costs used when pricing cannot be resolved for a step.
func DefaultEstimateCredits() map[string]int64 {
	return map[string]int64{
		"text":  5,
		"image": 10,
		"audio": 15,
		"video": 20,
	}
}

// ResolveConfigPath returns the configured path, the CREDITSTUDIO_CONFIG env value, or the default.
func ResolveConfigPath(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return filepath.Clean(trimmed)
	}
	if env := strings.TrimSpace(os.Getenv("CREDITSTUDIO_CONFIG")); env != "" {
		return filepath.Clean(env)
	}
	return DefaultConfigPath
}

// LoadConfig reads, defaults and validates the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a Config and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: decode: %w", errUnmarshal)
	}
	cfg.ApplyDefaults()
	if errValidate := cfg.Validate(); errValidate != nil {
		return nil, errValidate
	}
	return cfg, nil
}

// ApplyDefaults fills zero values with their defaults.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = ":8080"
	}
	if strings.TrimSpace(c.Server.Mode) == "" {
		c.Server.Mode = "release"
	}
	if c.JWT.Expiry <= 0 {
		c.JWT.Expiry = 24 * time.Hour
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = "text"
	}
	c.Pricing.ApplyDefaults()
	c.Workflow.ApplyDefaults()
}

// ApplyDefaults fills zero pricing values.
func (c *PricingConfig) ApplyDefaults() {
	c.MissingStrategy = strings.ToLower(strings.TrimSpace(c.MissingStrategy))
	if c.MissingStrategy == "" {
		c.MissingStrategy = MissingStrategyFallback
	}
	if c.FallbackCredits == nil {
		c.FallbackCredits = map[string]int64{}
	}
	c.DefaultCurrency = strings.ToUpper(strings.TrimSpace(c.DefaultCurrency))
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "USD"
	}
	if c.CreditToCurrencyRate <= 0 {
		c.CreditToCurrencyRate = 1.0
	}
}

// ApplyDefaults fills zero workflow values.
func (c *WorkflowConfig) ApplyDefaults() {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 120 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 20
	}
	if c.LockExpiry <= 0 {
		c.LockExpiry = c.ProviderTimeout + 30*time.Second
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 10 * time.Minute
	}
	defaults := DefaultEstimateCredits()
	if c.EstimateCredits == nil {
		c.EstimateCredits = defaults
		return
	}
	for k, v := range defaults {
		if _, ok := c.EstimateCredits[k]; !ok {
			c.EstimateCredits[k] = v
		}
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database.dsn is required")
	}
	switch c.Pricing.MissingStrategy {
	case MissingStrategyFallback, MissingStrategyDisableService, MissingStrategyException:
	default:
		return fmt.Errorf("config: unknown pricing.missing_strategy %q", c.Pricing.MissingStrategy)
	}
	for k, v := range c.Pricing.FallbackCredits {
		if v < 0 {
			return fmt.Errorf("config: pricing.fallback_credits[%s] must not be negative", k)
		}
	}
	for k, v := range c.Workflow.EstimateCredits {
		if v < 0 {
			return fmt.Errorf("config: workflow.estimate_credits[%s] must not be negative", k)
		}
	}
	seen := make(map[string]struct{}, len(c.Providers))
	for i, p := range c.Providers {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return fmt.Errorf("config: providers[%d].name is required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("config: duplicate provider %q", p.Name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
