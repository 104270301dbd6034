package config

import (
	"os"
	"path/filepath"
	"testing"

	"mediadupes/internal/hash"
	"mediadupes/internal/match"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mediadupes.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ParsedVariant() != hash.VariantAdvanced {
		t.Errorf("variant = %s, want advanced", cfg.Variant)
	}
	if !cfg.IncludeRotations {
		t.Error("rotations should be enabled by default")
	}
	if cfg.Workers != 1 {
		t.Errorf("workers = %d, want 1", cfg.Workers)
	}
	if cfg.BatchSize != match.DefaultBatchSize {
		t.Errorf("batch size = %d, want %d", cfg.BatchSize, match.DefaultBatchSize)
	}
	if cfg.DBPath == "" {
		t.Error("db path should default to a file in the home directory")
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
variant: basic
threshold: 92.5
include_rotations: false
workers: 4
db: /tmp/dupes.db
batch_size: 50
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ParsedVariant() != hash.VariantBasic {
		t.Errorf("variant = %s, want basic", cfg.Variant)
	}
	if cfg.Threshold == nil || *cfg.Threshold != 92.5 {
		t.Errorf("threshold = %v, want 92.5", cfg.Threshold)
	}
	if cfg.IncludeRotations {
		t.Error("rotations should be disabled")
	}
	if cfg.Workers != 4 || cfg.BatchSize != 50 || cfg.DBPath != "/tmp/dupes.db" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "threshold: 80\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Threshold == nil || *cfg.Threshold != 80 {
		t.Errorf("threshold = %v, want 80", cfg.Threshold)
	}
	if !cfg.IncludeRotations || cfg.Workers != 1 || cfg.ParsedVariant() != hash.VariantAdvanced {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoad_ExplicitZeroThreshold(t *testing.T) {
	cfg, err := Load(writeConfig(t, "threshold: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Threshold == nil || *cfg.Threshold != 0 {
		t.Errorf("threshold = %v, want an explicit 0", cfg.Threshold)
	}

	cfg, err = Load(writeConfig(t, "workers: 2\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Threshold != nil {
		t.Errorf("threshold = %v, want unset", *cfg.Threshold)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown variant", "variant: fancy\n"},
		{"threshold too high", "threshold: 120\n"},
		{"negative threshold", "threshold: -5\n"},
		{"negative workers", "workers: -2\n"},
		{"invalid yaml", "variant: [unterminated\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
