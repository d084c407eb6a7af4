// Package config loads service settings from .env, the environment and an
// optional reconciler.yaml.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/leasepay/reconciler/internal/matching"
)

type Config struct {
	Port        string
	DBPath      string
	LogLevel    string
	LogFormat   string
	Parallelism int
	Matching    MatchingConfig
}

type MatchingConfig struct {
	ReferencePrefixes   []string
	ToleranceMinorUnits int64
	FuzzyWindow         time.Duration
	HighValueMinorUnits int64
}

// Options converts the settings into matcher options.
func (m MatchingConfig) Options() []matching.Option {
	return []matching.Option{
		matching.WithReferencePrefixes(m.ReferencePrefixes...),
		matching.WithTolerance(m.ToleranceMinorUnits),
		matching.WithFuzzyWindow(m.FuzzyWindow),
		matching.WithHighValueThreshold(m.HighValueMinorUnits),
	}
}

// Load reads configuration. file may name a YAML file; when empty,
// ./reconciler.yaml is used if present. Environment variables use the
// RECON_ prefix with dots replaced by underscores
// (RECON_MATCHING_TOLERANCE_MINOR_UNITS); PORT and DB_PATH are also honored.
func Load(file string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("port", "RECON_PORT", "PORT")
	_ = v.BindEnv("db_path", "RECON_DB_PATH", "DB_PATH")

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("reconciler")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Port:        v.GetString("port"),
		DBPath:      v.GetString("db_path"),
		LogLevel:    v.GetString("log_level"),
		LogFormat:   v.GetString("log_format"),
		Parallelism: v.GetInt("runs.parallelism"),
		Matching: MatchingConfig{
			ReferencePrefixes:   splitList(v.GetStringSlice("matching.reference_prefixes")),
			ToleranceMinorUnits: v.GetInt64("matching.tolerance_minor_units"),
			FuzzyWindow:         time.Duration(v.GetInt64("matching.fuzzy_window_hours")) * time.Hour,
			HighValueMinorUnits: v.GetInt64("matching.high_value_minor_units"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "reconciler.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("runs.parallelism", 4)
	v.SetDefault("matching.reference_prefixes", matching.DefaultReferencePrefixes)
	v.SetDefault("matching.tolerance_minor_units", 0)
	v.SetDefault("matching.fuzzy_window_hours", int64(matching.DefaultFuzzyWindow/time.Hour))
	v.SetDefault("matching.high_value_minor_units", 0)
}

func (c *Config) Validate() error {
	if c.Parallelism < 1 {
		return fmt.Errorf("runs.parallelism must be at least 1, got %d", c.Parallelism)
	}
	if c.Matching.ToleranceMinorUnits < 0 {
		return fmt.Errorf("matching.tolerance_minor_units must not be negative")
	}
	if c.Matching.FuzzyWindow < 0 {
		return fmt.Errorf("matching.fuzzy_window_hours must not be negative")
	}
	return nil
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	out := []string{}
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
