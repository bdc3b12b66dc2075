package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envVars = []string{
	"ECHOPLAYER_SAMPLE_RATE", "ECHOPLAYER_POLL_INTERVAL", "ECHOPLAYER_SPECTRUM_MODE",
	"ECHOPLAYER_SPECTRUM_DB_MAX", "ECHOPLAYER_STORE_DIR", "ECHOPLAYER_LOG_LEVEL",
	"ECHOPLAYER_VOLUME",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", cfg.SampleRate)
	}
	if cfg.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want 100ms", cfg.PollInterval)
	}
	if cfg.SpectrumMode != "db" || cfg.SpectrumDBMax != 90 {
		t.Errorf("spectrum = %q/%v, want db/90", cfg.SpectrumMode, cfg.SpectrumDBMax)
	}
	if cfg.Volume != 1 {
		t.Errorf("Volume = %v, want 1", cfg.Volume)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", cfg.SampleRate)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `sample_rate: 48000
poll_interval: 250ms
spectrum_mode: linear
equalizer:
  bands: [3, 0, -2]
  global: -1.5
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ECHOPLAYER_SAMPLE_RATE", "96000")
	t.Setenv("ECHOPLAYER_VOLUME", "0.5")
	t.Setenv("ECHOPLAYER_SPECTRUM_DB_MAX", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SampleRate != 96000 {
		t.Errorf("SampleRate = %d, want env 96000", cfg.SampleRate)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval)
	}
	if cfg.SpectrumMode != "linear" {
		t.Errorf("SpectrumMode = %q, want linear", cfg.SpectrumMode)
	}
	if cfg.SpectrumDBMax != 90 {
		t.Errorf("SpectrumDBMax = %v, want fallback 90", cfg.SpectrumDBMax)
	}
	if cfg.Volume != 0.5 {
		t.Errorf("Volume = %v, want 0.5", cfg.Volume)
	}
	if len(cfg.Equalizer.Bands) != 3 || cfg.Equalizer.Bands[2] != -2 || cfg.Equalizer.Global != -1.5 {
		t.Errorf("Equalizer = %+v", cfg.Equalizer)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sample_rate: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.SampleRate = 100
	cfg.SpectrumMode = "bars"
	cfg.Volume = 2
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"sample_rate", "spectrum_mode", "volume"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
