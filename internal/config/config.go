// Package config loads player settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Equalizer is a startup equalizer preset in dB.
type Equalizer struct {
	Bands  []float64 `yaml:"bands,flow,omitempty"`
	Global float64   `yaml:"global,omitempty"`
}

type Config struct {
	SampleRate    int           `yaml:"sample_rate"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	SpectrumMode  string        `yaml:"spectrum_mode"`
	SpectrumDBMax float64       `yaml:"spectrum_db_max"`
	StoreDir      string        `yaml:"store_dir,omitempty"`
	LogLevel      string        `yaml:"log_level"`
	Volume        float64       `yaml:"volume"`
	Equalizer     Equalizer     `yaml:"equalizer,omitempty"`
}

func Default() Config {
	return Config{
		SampleRate:    44100,
		PollInterval:  100 * time.Millisecond,
		SpectrumMode:  "db",
		SpectrumDBMax: 90,
		LogLevel:      "info",
		Volume:        1,
	}
}

// DefaultPath returns <user config dir>/echoplayer/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "echoplayer", "config.yaml"), nil
}

// Load starts from Default, applies the YAML file at path if it exists, then
// the ECHOPLAYER_* environment variables, and validates the result. An empty
// path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.SampleRate = envInt("ECHOPLAYER_SAMPLE_RATE", c.SampleRate)
	c.PollInterval = envDuration("ECHOPLAYER_POLL_INTERVAL", c.PollInterval)
	c.SpectrumMode = envStr("ECHOPLAYER_SPECTRUM_MODE", c.SpectrumMode)
	c.SpectrumDBMax = envFloat("ECHOPLAYER_SPECTRUM_DB_MAX", c.SpectrumDBMax)
	c.StoreDir = envStr("ECHOPLAYER_STORE_DIR", c.StoreDir)
	c.LogLevel = envStr("ECHOPLAYER_LOG_LEVEL", c.LogLevel)
	c.Volume = envFloat("ECHOPLAYER_VOLUME", c.Volume)
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate %d out of range [8000, 192000]", c.SampleRate))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.SpectrumMode != "db" && c.SpectrumMode != "linear" {
		errs = append(errs, fmt.Errorf("spectrum_mode %q must be db or linear", c.SpectrumMode))
	}
	if c.SpectrumDBMax <= 0 {
		errs = append(errs, fmt.Errorf("spectrum_db_max must be positive, got %v", c.SpectrumDBMax))
	}
	if c.Volume < 0 || c.Volume > 1 {
		errs = append(errs, fmt.Errorf("volume %v out of range [0, 1]", c.Volume))
	}
	if len(c.Equalizer.Bands) > 12 {
		errs = append(errs, fmt.Errorf("equalizer has %d bands, at most 12", len(c.Equalizer.Bands)))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
