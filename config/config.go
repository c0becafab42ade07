package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every configurable value for a capture run.
type Config struct {
	PID      int32         // process to observe; defaults to this process
	Interval time.Duration // time between samples
	Duration time.Duration // total capture time; 0 means run until interrupted
	OutPath  string        // optional SQLite file to persist the session to
	LogLevel string        // debug|info|warn|error
}

// Load reads configuration from (in decreasing priority):
//  1. command-line flags (handled in main - not part of this pkg)
//  2. environment variables (e.g. PROCWATCH_INTERVAL)
//  3. a yaml file (./configs/config.yaml) if it exists.
//
// It returns a fully populated *Config or an error.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("PID", os.Getpid())
	v.SetDefault("Interval", time.Second)
	v.SetDefault("Duration", time.Duration(0))
	v.SetDefault("OutPath", "")
	v.SetDefault("LogLevel", "info")

	v.SetEnvPrefix("procwatch")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Optional yaml file - useful for local dev
	v.SetConfigName("config")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // ignore error - file is optional

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}

	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	if cfg.Duration < 0 {
		return nil, fmt.Errorf("duration must not be negative, got %s", cfg.Duration)
	}

	return &cfg, nil
}
