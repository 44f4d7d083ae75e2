package batchconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestLoadMasterConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	outlets := writeFile(t, dir, "outlets_74.toml", "")
	master := writeFile(t, dir, "master.toml", `
[settings]
output_dir = "/tmp/out"

[[regions]]
name = "74"
outlets = "`+outlets+`"
`)

	cfg, err := LoadMasterConfig(master)
	if err != nil {
		t.Fatalf("LoadMasterConfig: %v", err)
	}
	if cfg.Settings.MaxFails != 50 {
		t.Fatalf("expected default max_fails=50, got %d", cfg.Settings.MaxFails)
	}
	if cfg.Settings.FillThresholdPixels != 100 {
		t.Fatalf("expected default fill_threshold_pixels=100, got %d", cfg.Settings.FillThresholdPixels)
	}
	if len(cfg.Regions) != 1 || cfg.Regions[0].Name != "74" {
		t.Fatalf("unexpected regions: %+v", cfg.Regions)
	}
}

func TestLoadMasterConfigRequiresOutputDir(t *testing.T) {
	dir := t.TempDir()
	master := writeFile(t, dir, "master.toml", `
[[regions]]
name = "74"
outlets = "outlets.toml"
`)
	if _, err := LoadMasterConfig(master); err == nil {
		t.Fatalf("expected error for missing output_dir")
	}
}

func TestLoadMasterConfigRequiresAtLeastOneRegion(t *testing.T) {
	dir := t.TempDir()
	master := writeFile(t, dir, "master.toml", `
[settings]
output_dir = "/tmp/out"
`)
	if _, err := LoadMasterConfig(master); err == nil {
		t.Fatalf("expected error for no regions")
	}
}

func TestLoadOutletFileValidatesRanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "outlets.toml", `
[[outlets]]
gauge_id = "g1"
lat = 95
lng = 0
`)
	if _, err := LoadOutletFile(path); err == nil {
		t.Fatalf("expected error for out-of-range lat")
	}
}

func TestLoadOutletFileRejectsDuplicateGaugeID(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "outlets.toml", `
[[outlets]]
gauge_id = "g1"
lat = 1
lng = 1

[[outlets]]
gauge_id = "g1"
lat = 2
lng = 2
`)
	if _, err := LoadOutletFile(path); err == nil {
		t.Fatalf("expected error for duplicate gauge_id")
	}
}

func TestLoadOutletFileHappyPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "outlets.toml", `
[[outlets]]
gauge_id = "g1"
lat = 10.5
lng = -20.25
gauge_name = "Test Gauge"
`)
	f, err := LoadOutletFile(path)
	if err != nil {
		t.Fatalf("LoadOutletFile: %v", err)
	}
	if len(f.Outlets) != 1 || f.Outlets[0].GaugeID != "g1" || f.Outlets[0].GaugeName != "Test Gauge" {
		t.Fatalf("unexpected outlets: %+v", f.Outlets)
	}
}
