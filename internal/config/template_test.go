package config

import (
	"path/filepath"
	"testing"

	"github.com/dceres/releasectl/internal/testutil/testlog"
)

func TestWriteTemplateProducesLoadableConfig(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "releasectl.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}

	cfg, err := LoadReleaseConfig(path)
	if err != nil {
		t.Fatalf("template must load cleanly: %v", err)
	}
	if len(cfg.Components) != 5 {
		t.Fatalf("expected 5 template components, got %d", len(cfg.Components))
	}
	if len(cfg.Probes) != 2 {
		t.Fatalf("expected 2 template probes, got %d", len(cfg.Probes))
	}
	if cfg.Lock.Mode != LockModeWait {
		t.Fatalf("template lock mode = %q", cfg.Lock.Mode)
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "releasectl.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatal("expected overwrite refusal")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
}
