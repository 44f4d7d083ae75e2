package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/merit-hydro/delineator/internal/batchconfig"
	"github.com/merit-hydro/delineator/internal/delineate"
	"github.com/merit-hydro/delineator/internal/delineateerr"
	"github.com/merit-hydro/delineator/internal/merit"
	"github.com/merit-hydro/delineator/internal/writer"
)

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

// stubLocator resolves every point into basin "74"; used so tests don't
// need a real shapefile-backed locator.Locator.
type stubLocator struct{}

func (stubLocator) PointToBasin(lng, lat float64) (string, error) { return "74", nil }

// failingLocator always returns a no-river-found style error, for
// exercising the fail-budget and FAILED.csv paths.
type failingLocator struct{}

func (failingLocator) PointToBasin(lng, lat float64) (string, error) {
	return "", delineateerr.New(delineateerr.KindNoRiverFound, "outlet not in any catchment")
}

type stubStore struct{}

func (stubStore) GetOrLoad(basinCode string) (*merit.BasinData, error) {
	return &merit.BasinData{
		BasinCode: basinCode,
		Catchments: map[int]merit.UnitCatchment{
			1: {COMID: 1, Polygon: square(0, 0, 1, 1)},
		},
		Rivers: map[int]merit.RiverReach{
			1: {COMID: 1, Centerline: orb.LineString{{0.5, 0.1}, {0.5, 0.9}}, UpAreaKM2: 25},
		},
	}, nil
}

type stubRasterPaths struct{}

func (stubRasterPaths) FlowDirRaster(basinCode string) string { return "" }
func (stubRasterPaths) AccumRaster(basinCode string) string    { return "" }

func writeOutletFile(t *testing.T, dir, name string, entries ...batchconfig.OutletEntry) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var body string
	for _, e := range entries {
		body += fmt.Sprintf("[[outlets]]\ngauge_id = %q\nlat = %v\nlng = %v\ngauge_name = %q\n\n", e.GaugeID, e.Lat, e.Lng, e.GaugeName)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing outlet file: %v", err)
	}
	return path
}

func baseOptions() delineate.Options {
	opts := delineate.DefaultOptions()
	opts.UseHighRes = false
	return opts
}

func TestRunAllSuccess(t *testing.T) {
	dir := t.TempDir()
	outletsPath := writeOutletFile(t, dir, "outlets_74.toml",
		batchconfig.OutletEntry{GaugeID: "g1", Lat: 0.5, Lng: 0.5, GaugeName: "Gauge One"},
	)
	cfg := &batchconfig.MasterConfig{
		Settings: batchconfig.Settings{OutputDir: filepath.Join(dir, "out")},
		Regions:  []batchconfig.Region{{Name: "74", OutletsPath: outletsPath}},
	}

	d := &Driver{
		Locator:     stubLocator{},
		Store:       stubStore{},
		RasterPaths: stubRasterPaths{},
		Layout:      writer.Layout{OutDir: cfg.Settings.OutputDir},
		Options:     baseOptions(),
		MaxFails:    50,
	}

	code, stats, err := d.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != ExitAllSuccess {
		t.Fatalf("expected ExitAllSuccess, got %d", code)
	}
	if stats.Processed != 1 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	gpkgPath := d.Layout.GeoPackagePath("74")
	if _, err := os.Stat(gpkgPath); err != nil {
		t.Fatalf("expected geopackage output: %v", err)
	}
}

func TestRunPartialWhenSomeOutletsFail(t *testing.T) {
	dir := t.TempDir()
	outletsPath := writeOutletFile(t, dir, "outlets_74.toml",
		batchconfig.OutletEntry{GaugeID: "g1", Lat: 0.5, Lng: 0.5, GaugeName: "Gauge One"},
		batchconfig.OutletEntry{GaugeID: "g2", Lat: 89, Lng: 99, GaugeName: "Gauge Two"},
	)
	cfg := &batchconfig.MasterConfig{
		Settings: batchconfig.Settings{OutputDir: filepath.Join(dir, "out")},
		Regions:  []batchconfig.Region{{Name: "74", OutletsPath: outletsPath}},
	}

	d := &Driver{
		Locator:     stubOutlierLocator{miss: "g2"},
		Store:       stubStore{},
		RasterPaths: stubRasterPaths{},
		Layout:      writer.Layout{OutDir: cfg.Settings.OutputDir},
		Options:     baseOptions(),
		MaxFails:    50,
	}

	code, stats, err := d.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != ExitPartial {
		t.Fatalf("expected ExitPartial, got %d", code)
	}
	if stats.Processed != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	failedCSV := d.Layout.FailedCSVPath()
	ids, err := writer.LoadFailedGaugeIDs(failedCSV)
	if err != nil {
		t.Fatalf("LoadFailedGaugeIDs: %v", err)
	}
	if !ids["g2"] {
		t.Fatalf("expected g2 recorded in FAILED.csv, got %v", ids)
	}
}

func TestRunNoSuccessesWhenAllOutletsFail(t *testing.T) {
	dir := t.TempDir()
	outletsPath := writeOutletFile(t, dir, "outlets_74.toml",
		batchconfig.OutletEntry{GaugeID: "g1", Lat: 89, Lng: 99},
	)
	cfg := &batchconfig.MasterConfig{
		Settings: batchconfig.Settings{OutputDir: filepath.Join(dir, "out")},
		Regions:  []batchconfig.Region{{Name: "74", OutletsPath: outletsPath}},
	}

	d := &Driver{
		Locator:     failingLocator{},
		Store:       stubStore{},
		RasterPaths: stubRasterPaths{},
		Layout:      writer.Layout{OutDir: cfg.Settings.OutputDir},
		Options:     baseOptions(),
		MaxFails:    50,
	}

	code, stats, err := d.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != ExitNoSuccesses {
		t.Fatalf("expected ExitNoSuccesses, got %d", code)
	}
	if stats.Processed != 0 {
		t.Fatalf("expected no processed outlets, got %+v", stats)
	}
}

func TestRunAbortsAtMaxFails(t *testing.T) {
	dir := t.TempDir()
	outletsPath := writeOutletFile(t, dir, "outlets_74.toml",
		batchconfig.OutletEntry{GaugeID: "g1", Lat: 89, Lng: 99},
		batchconfig.OutletEntry{GaugeID: "g2", Lat: 88, Lng: 98},
		batchconfig.OutletEntry{GaugeID: "g3", Lat: 87, Lng: 97},
	)
	cfg := &batchconfig.MasterConfig{
		Settings: batchconfig.Settings{OutputDir: filepath.Join(dir, "out")},
		Regions:  []batchconfig.Region{{Name: "74", OutletsPath: outletsPath}},
	}

	d := &Driver{
		Locator:     failingLocator{},
		Store:       stubStore{},
		RasterPaths: stubRasterPaths{},
		Layout:      writer.Layout{OutDir: cfg.Settings.OutputDir},
		Options:     baseOptions(),
		MaxFails:    1,
	}

	_, stats, err := d.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("expected driver to stop after max_fails=1, got %+v", stats)
	}
}

func TestRunSkipExistingHonoursPreviouslyWrittenGaugeIDs(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	layout := writer.Layout{OutDir: outDir}

	existing := []writer.Record{{GaugeID: "g1", Geometry: square(0, 0, 1, 1)}}
	if err := writer.WriteGeoPackage(layout.GeoPackagePath("74"), existing, writer.ModeCreate); err != nil {
		t.Fatalf("seeding existing output: %v", err)
	}

	outletsPath := writeOutletFile(t, dir, "outlets_74.toml",
		batchconfig.OutletEntry{GaugeID: "g1", Lat: 0.5, Lng: 0.5},
		batchconfig.OutletEntry{GaugeID: "g2", Lat: 0.5, Lng: 0.5},
	)
	cfg := &batchconfig.MasterConfig{
		Settings: batchconfig.Settings{OutputDir: outDir},
		Regions:  []batchconfig.Region{{Name: "74", OutletsPath: outletsPath}},
	}

	d := &Driver{
		Locator:     stubLocator{},
		Store:       stubStore{},
		RasterPaths: stubRasterPaths{},
		Layout:      layout,
		Options:     baseOptions(),
		MaxFails:    50,
		Mode:        ModeSkipExisting,
	}

	_, stats, err := d.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Skipped != 1 || stats.Processed != 1 {
		t.Fatalf("expected to skip g1 and process g2, got %+v", stats)
	}
}

func TestRunInterruptReturnsExitInterrupted(t *testing.T) {
	dir := t.TempDir()
	outletsPath := writeOutletFile(t, dir, "outlets_74.toml",
		batchconfig.OutletEntry{GaugeID: "g1", Lat: 0.5, Lng: 0.5},
	)
	cfg := &batchconfig.MasterConfig{
		Settings: batchconfig.Settings{OutputDir: filepath.Join(dir, "out")},
		Regions:  []batchconfig.Region{{Name: "74", OutletsPath: outletsPath}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Driver{
		Locator:     stubLocator{},
		Store:       stubStore{},
		RasterPaths: stubRasterPaths{},
		Layout:      writer.Layout{OutDir: cfg.Settings.OutputDir},
		Options:     baseOptions(),
		MaxFails:    50,
	}

	code, _, err := d.Run(ctx, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != ExitInterrupted {
		t.Fatalf("expected ExitInterrupted, got %d", code)
	}
}

// stubOutlierLocator fails for any outlet with a coordinate above 90 (in
// the fixtures above, g2's longitude of 99) and succeeds for everything
// else; its miss field is not consulted.
type stubOutlierLocator struct{ miss string }

func (s stubOutlierLocator) PointToBasin(lng, lat float64) (string, error) {
	if lng > 90 || lat > 90 {
		return "", delineateerr.New(delineateerr.KindNoRiverFound, "outlet not in any catchment")
	}
	return "74", nil
}
