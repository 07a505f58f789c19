// Package config loads application configuration and initializes logging.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`
	Poll    PollConfig    `yaml:"poll" mapstructure:"poll"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	History HistoryConfig `yaml:"history" mapstructure:"history"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Bridge  BridgeConfig  `yaml:"bridge" mapstructure:"bridge"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// BackendConfig configures the investigations backend client. Token is
// sourced from the host shell's credential store via INTEL_BACKEND_TOKEN.
type BackendConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Token       string  `yaml:"token" mapstructure:"token"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// Timeout returns the per-request timeout.
func (c BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PollConfig configures job lifecycle polling.
type PollConfig struct {
	IntervalSecs int `yaml:"interval_secs" mapstructure:"interval_secs"`
	// MaxConsecutiveFailures stops a loop after that many transport
	// failures in a row. 0 polls indefinitely until cancelled.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
}

// Interval returns the polling cadence.
func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// ExportConfig configures artifact downloads.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// HistoryConfig configures the local run-history database.
type HistoryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// CatalogConfig points at an optional provider catalog override file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// BridgeConfig configures the localhost bridge server for the desktop
// shell.
type BridgeConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("INTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("backend.base_url", "http://127.0.0.1:8000/api")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout_secs", 30)
	v.SetDefault("backend.max_retries", 3)
	v.SetDefault("backend.rate_per_sec", 10)
	v.SetDefault("poll.interval_secs", 5)
	v.SetDefault("poll.max_consecutive_failures", 0)
	v.SetDefault("export.dir", "exports")
	v.SetDefault("history.path", "intel-history.db")
	v.SetDefault("bridge.port", 8787)
	v.SetDefault("bridge.allowed_origins", []string{"http://localhost:3000", "app://."})
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
