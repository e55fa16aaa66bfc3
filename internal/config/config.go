// Package config loads the command line configuration: a YAML file, an
// optional .env file and COINCAP_* environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"coincap"
	"coincap/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvBaseURL   = "COINCAP_BASE_URL"
	EnvStreamURL = "COINCAP_STREAM_URL"
	EnvTimeout   = "COINCAP_TIMEOUT"
	EnvLogLevel  = "COINCAP_LOG_LEVEL"
	EnvDatabase  = "COINCAP_DB"
	EnvSymbols   = "COINCAP_SYMBOLS"
)

// Config is the CLI configuration.
type Config struct {
	Client         coincap.Config `yaml:"client" validate:"-"`
	LogLevel       string         `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	Symbols        []string       `yaml:"symbols"`
	CandleInterval time.Duration  `yaml:"candle_interval" validate:"gt=0"`
	Database       string         `yaml:"database" validate:"required"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Client:         coincap.DefaultConfig(),
		LogLevel:       "info",
		CandleInterval: 5 * time.Second,
		Database:       "trades.db",
	}
}

// Load reads filename over the defaults. An empty filename yields the defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	return cfg, nil
}

// LoadEnv loads the given .env files, skipping missing ones, and applies the
// COINCAP_* overrides to cfg. Variables already set in the process
// environment take precedence over .env entries.
func LoadEnv(cfg *Config, envFiles ...string) error {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	if v, ok := os.LookupEnv(EnvBaseURL); ok {
		cfg.Client.BaseURL = v
	}
	if v, ok := os.LookupEnv(EnvStreamURL); ok {
		cfg.Client.StreamURL = v
	}
	if v, ok := os.LookupEnv(EnvTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvTimeout, v, err)
		}
		cfg.Client.Timeout = d
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv(EnvDatabase); ok {
		cfg.Database = v
	}
	if v, ok := os.LookupEnv(EnvSymbols); ok {
		symbols, err := utils.SplitSymbols(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvSymbols, v, err)
		}
		cfg.Symbols = symbols
	}
	return nil
}

// Validate checks the CLI settings. Client settings are checked by coincap.New.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// Level returns the zerolog level for LogLevel, info when it does not parse.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
