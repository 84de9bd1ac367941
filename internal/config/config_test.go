package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.DryRun {
		t.Errorf("dry_run should default to true")
	}
	if cfg.Rules == "" {
		t.Errorf("rules path should have a default")
	}
	if cfg.Journal.Enabled {
		t.Errorf("journal should default off")
	}
}

func TestLoad_ParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	content := "rules: /etc/plumb_rules\ndry_run: false\njournal:\n  enabled: true\n  path: /var/log/plumb.db\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Rules != "/etc/plumb_rules" || cfg.DryRun || !cfg.Journal.Enabled {
		t.Errorf("got %+v", cfg)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("rules: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Errorf("empty rules path should fail validation")
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(":not yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Errorf("bad yaml should fail")
	}
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plumb")
	if err := WriteDefault(dir); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# plumb configuration") {
		t.Errorf("missing comment header")
	}
	if _, err := Load(dir); err != nil {
		t.Errorf("written default does not load: %v", err)
	}
}
