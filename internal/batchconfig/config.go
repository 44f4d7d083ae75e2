// Package batchconfig loads the batch driver's TOML master config and
// per-region outlet files (spec.md §1 calls TOML config explicitly
// external to the delineation core; this package is that boundary).
package batchconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// MasterConfig is the top-level batch run configuration: one
// `[settings]` table plus one `[[regions]]` entry per region to
// process.
type MasterConfig struct {
	Settings Settings `toml:"settings"`
	Regions  []Region `toml:"regions"`
}

type Settings struct {
	OutputDir           string  `toml:"output_dir"`
	DataDir             string  `toml:"data_dir"`
	MaxFails            int     `toml:"max_fails"`
	FillThresholdPixels int     `toml:"fill_threshold_pixels"`
	HighResAreaLimitKM2 float64 `toml:"high_res_area_limit_km2"`
	IncludeRivers       bool    `toml:"include_rivers"`
}

type Region struct {
	Name        string `toml:"name"`
	OutletsPath string `toml:"outlets"`
}

// LoadMasterConfig parses path as the batch driver's TOML master
// config, the same way the teacher's own LoadConfig reads settings
// from its environment-derived Config, except sourced from a file
// since spec.md §1 specifically calls out TOML config as the batch
// driver's own concern, not the core's.
func LoadMasterConfig(path string) (*MasterConfig, error) {
	var cfg MasterConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("batchconfig: decoding %s: %w", path, err)
	}
	if cfg.Settings.OutputDir == "" {
		return nil, fmt.Errorf("batchconfig: %s: settings.output_dir is required", path)
	}
	if cfg.Settings.MaxFails <= 0 {
		cfg.Settings.MaxFails = 50
	}
	if cfg.Settings.FillThresholdPixels <= 0 {
		cfg.Settings.FillThresholdPixels = 100
	}
	if cfg.Settings.HighResAreaLimitKM2 <= 0 {
		cfg.Settings.HighResAreaLimitKM2 = 10000
	}
	if len(cfg.Regions) == 0 {
		return nil, fmt.Errorf("batchconfig: %s: at least one [[regions]] entry is required", path)
	}
	for _, r := range cfg.Regions {
		if r.Name == "" {
			return nil, fmt.Errorf("batchconfig: %s: region missing name", path)
		}
		if r.OutletsPath == "" {
			return nil, fmt.Errorf("batchconfig: %s: region %q missing outlets path", path, r.Name)
		}
	}
	return &cfg, nil
}

// OutletFile is one region's list of gauges to delineate.
type OutletFile struct {
	Outlets []OutletEntry `toml:"outlets"`
}

type OutletEntry struct {
	GaugeID   string  `toml:"gauge_id"`
	Lat       float64 `toml:"lat"`
	Lng       float64 `toml:"lng"`
	GaugeName string  `toml:"gauge_name"`
}

// LoadOutletFile parses a region's `[[outlets]]` TOML file and
// validates each entry per spec.md §3's outlet invariants.
func LoadOutletFile(path string) (*OutletFile, error) {
	var f OutletFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("batchconfig: decoding %s: %w", path, err)
	}

	seen := make(map[string]bool, len(f.Outlets))
	for i, o := range f.Outlets {
		if o.GaugeID == "" {
			return nil, fmt.Errorf("batchconfig: %s: outlet %d missing gauge_id", path, i)
		}
		if seen[o.GaugeID] {
			return nil, fmt.Errorf("batchconfig: %s: duplicate gauge_id %q", path, o.GaugeID)
		}
		seen[o.GaugeID] = true
		if o.Lat < -90 || o.Lat > 90 {
			return nil, fmt.Errorf("batchconfig: %s: outlet %q lat %v out of range", path, o.GaugeID, o.Lat)
		}
		if o.Lng < -180 || o.Lng > 180 {
			return nil, fmt.Errorf("batchconfig: %s: outlet %q lng %v out of range", path, o.GaugeID, o.Lng)
		}
	}
	return &f, nil
}
