package merit

import (
	"fmt"
	"path/filepath"
)

// Paths resolves the on-disk layout a data directory is expected to
// follow (spec.md §6).
type Paths struct {
	DataDir string
}

func (p Paths) FlowDirRaster(basinCode string) string {
	return filepath.Join(p.DataDir, "raster", "flowdir_basins", fmt.Sprintf("flowdir%s.tif", basinCode))
}

func (p Paths) AccumRaster(basinCode string) string {
	return filepath.Join(p.DataDir, "raster", "accum_basins", fmt.Sprintf("accum%s.tif", basinCode))
}

func (p Paths) CatchmentShapefileDir(basinCode string) (dir, basename string) {
	return filepath.Join(p.DataDir, "shp", "merit_catchments"),
		fmt.Sprintf("cat_pfaf_%s_MERIT_Hydro_v07_Basins_v01", basinCode)
}

func (p Paths) RiverShapefileDir(basinCode string) (dir, basename string) {
	return filepath.Join(p.DataDir, "shp", "merit_rivers"),
		fmt.Sprintf("riv_pfaf_%s_MERIT_Hydro_v07_Basins_v01", basinCode)
}

func (p Paths) BasinLevel2ShapefileDir() (dir, basename string) {
	return filepath.Join(p.DataDir, "shp", "basins_level2"), "merit_hydro_vect_level2"
}

// requiredShapefileExts lists the sidecar extensions check_availability must find
// alongside a shapefile basename for it to count as "present" (.prj/.cpg
// are optional projection/codepage hints, not load-bearing).
var requiredShapefileExts = []string{".shp", ".dbf", ".shx"}
