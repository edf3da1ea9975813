package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"coalesce/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if got := cfg.Matching.Weights.Sum(); got != 100 {
		t.Fatalf("default weights sum = %d, want 100", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, path, exists, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("config %s should not exist", path)
	}
	if cfg.Matching.Threshold != 90 {
		t.Fatalf("threshold = %d, want default 90", cfg.Matching.Threshold)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("data dir not expanded: %q", cfg.Paths.DataDir)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coalesce.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[matching]
threshold = 80
reject_floor = 5
scan_workers = 2

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("config file should exist")
	}
	if cfg.Matching.Threshold != 80 {
		t.Fatalf("threshold = %d, want 80", cfg.Matching.Threshold)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("format = %q, want json", cfg.Logging.Format)
	}
	// Unset sections keep defaults.
	if cfg.Matching.Weights.Sum() != 100 {
		t.Fatalf("weights should default to the documented rubric")
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := config.Default()
	cfg.Matching.Weights.Phone = 30
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "sum to 100") {
		t.Fatalf("expected weight-sum error, got %v", err)
	}
}

func TestValidateRejectsFloorAboveThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Matching.RejectFloor = 95
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected reject_floor validation error")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("sample should exist")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, p := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			t.Fatalf("directory %s missing: %v", p, err)
		}
	}
	if cfg.DatabasePath() != filepath.Join(cfg.Paths.DataDir, "coalesce.db") {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath())
	}
}
