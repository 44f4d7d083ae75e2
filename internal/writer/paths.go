// Package writer implements the output writer (C8): partitioned
// GeoPackage/Shapefile output, resume bookkeeping, and the FAILED.csv
// error log (spec.md §6, §9).
package writer

import "path/filepath"

// DataType names the on-disk output format partition.
type DataType string

const (
	DataTypeGeoPackage DataType = "geopackage"
	DataTypeShapefiles DataType = "shapefiles"
)

// Mode controls how an existing output directory is treated.
type Mode int

const (
	ModeCreate Mode = iota
	ModeOverwrite
	ModeAppend
)

// Layout resolves the `<out>/REGION_NAME={region}/data_type={...}/...`
// partitioned directory structure spec.md §6 requires.
type Layout struct {
	OutDir string
}

func (l Layout) RegionDir(region string, dt DataType) string {
	return filepath.Join(l.OutDir, "REGION_NAME="+region, "data_type="+string(dt))
}

func (l Layout) GeoPackagePath(region string) string {
	return filepath.Join(l.RegionDir(region, DataTypeGeoPackage), region+".gpkg")
}

// ShapefileBase returns the directory and basename for a region's
// watershed shapefile (`{region}_shapes.shp` + sidecars).
func (l Layout) ShapefileBase(region string) (dir, basename string) {
	return l.RegionDir(region, DataTypeShapefiles), region + "_shapes"
}

// RiverShapefileBase returns the directory and basename for a region's
// optional river-geometry sidecar shapefile (`{region}_rivers.shp`).
func (l Layout) RiverShapefileBase(region string) (dir, basename string) {
	return l.RegionDir(region, DataTypeShapefiles), region + "_rivers"
}

func (l Layout) PartialGeoPackagePath(region string) string {
	return filepath.Join(l.RegionDir(region, DataTypeGeoPackage), region+"_PARTIAL.gpkg")
}

// FailedCSVPath is the single, centralised failure log at the output
// root (spec.md §6): all regions in a batch run share one FAILED.csv.
func (l Layout) FailedCSVPath() string {
	return filepath.Join(l.OutDir, "FAILED.csv")
}
