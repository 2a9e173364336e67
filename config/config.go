// Package config loads server settings.
//
// Sources, lowest precedence first:
//
//	defaults -> YAML file (BILLING_CONFIG) -> .env file -> process env
//
// Command-line flags in cmd/server override the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warp/hostel-billing/billing"
)

// SchedulerConfig controls the periodic arrears sweep.
type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// Config defines server configuration.
type Config struct {
	Port          string          `yaml:"port"`
	DBPath        string          `yaml:"db_path"`
	CadencePolicy string          `yaml:"cadence_policy"`
	CORSOrigins   []string        `yaml:"cors_origins"`
	Scheduler     SchedulerConfig `yaml:"scheduler"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Port:          "8080",
		DBPath:        "billing.db",
		CadencePolicy: billing.PolicyMajority,
		CORSOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
	}
}

// Load reads configuration. envFile may be empty; a missing .env is not an error.
func Load(envFile string) (Config, error) {
	cfg := Default()

	if path := os.Getenv("BILLING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read env file %s: %w", envFile, err)
		}
		if values != nil {
			dotenv = values
		}
	}
	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}

	if v := lookup("BILLING_PORT"); v != "" {
		cfg.Port = v
	}
	if v := lookup("BILLING_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := lookup("BILLING_CADENCE_POLICY"); v != "" {
		cfg.CadencePolicy = v
	}
	if v := lookup("BILLING_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
	if v := lookup("BILLING_SCHEDULER_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("BILLING_SCHEDULER_ENABLED: %w", err)
		}
		cfg.Scheduler.Enabled = enabled
	}
	if v := lookup("BILLING_SCHEDULER_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("BILLING_SCHEDULER_INTERVAL: %w", err)
		}
		cfg.Scheduler.Interval = interval
	}

	return cfg, cfg.Validate()
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: port required")
	}
	if c.DBPath == "" {
		return errors.New("config: db path required")
	}
	if _, err := billing.PolicyByName(c.CadencePolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return errors.New("config: scheduler interval must be positive")
	}
	return nil
}

func splitCSV(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
