package merit

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/twpayne/go-shapefile"

	"github.com/merit-hydro/delineator/internal/delineateerr"
)

// Store loads and caches per-basin vector data (spec.md §4.2, C2).
// Load performs an uncached read; GetOrLoad is the LRU-backed variant the
// HTTP facade and orchestrator use so repeated outlets in the same basin
// don't re-parse shapefiles on every request.
type Store struct {
	paths Paths
	log   *slog.Logger

	mu    sync.Mutex
	cache *lru.Cache[string, *BasinData]
}

// DefaultCacheSize matches spec.md §4.2's "capacity small, e.g., 5 basins".
const DefaultCacheSize = 5

func NewStore(dataDir string, log *slog.Logger) (*Store, error) {
	cache, err := lru.New[string, *BasinData](DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("merit: building basin cache: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{paths: Paths{DataDir: dataDir}, log: log, cache: cache}, nil
}

// Load reads the unit-catchment and river-reach shapefiles for basinCode
// from disk, indexing both by COMID. It does not consult or populate the
// LRU cache; use GetOrLoad for that.
func (s *Store) Load(basinCode string) (*BasinData, error) {
	catchments, err := s.loadCatchments(basinCode)
	if err != nil {
		return nil, err
	}
	rivers, err := s.loadRivers(basinCode)
	if err != nil {
		return nil, err
	}
	return &BasinData{BasinCode: basinCode, Catchments: catchments, Rivers: rivers}, nil
}

// GetOrLoad returns the cached BasinData for basinCode, loading it on a
// cache miss.
func (s *Store) GetOrLoad(basinCode string) (*BasinData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bd, ok := s.cache.Get(basinCode); ok {
		return bd, nil
	}

	bd, err := s.Load(basinCode)
	if err != nil {
		return nil, err
	}
	s.cache.Add(basinCode, bd)
	s.log.Info("loaded basin", "basin_code", basinCode, "catchments", len(bd.Catchments), "rivers", len(bd.Rivers))
	return bd, nil
}

func (s *Store) loadCatchments(basinCode string) (map[int]UnitCatchment, error) {
	dir, basename := s.paths.CatchmentShapefileDir(basinCode)
	shp, err := openShapefile(dir, basename)
	if err != nil {
		return nil, delineateerr.Wrap(delineateerr.KindDataMissing, fmt.Sprintf("catchment shapefile for basin %s", basinCode), err)
	}

	out := make(map[int]UnitCatchment, len(shp.SHP.Records))
	for i := range shp.SHP.Records {
		fields, g := shp.Record(i)
		comid, err := fieldInt(fields, "COMID")
		if err != nil {
			return nil, delineateerr.Wrap(delineateerr.KindDataCorrupt, fmt.Sprintf("catchment record %d in basin %s", i, basinCode), err)
		}
		poly, err := polygonFromGeom(g)
		if err != nil {
			return nil, delineateerr.Wrap(delineateerr.KindDataCorrupt, fmt.Sprintf("catchment COMID %d in basin %s", comid, basinCode), err)
		}
		out[comid] = UnitCatchment{COMID: comid, Polygon: poly}
	}
	return out, nil
}

func (s *Store) loadRivers(basinCode string) (map[int]RiverReach, error) {
	dir, basename := s.paths.RiverShapefileDir(basinCode)
	shp, err := openShapefile(dir, basename)
	if err != nil {
		return nil, delineateerr.Wrap(delineateerr.KindDataMissing, fmt.Sprintf("river shapefile for basin %s", basinCode), err)
	}

	out := make(map[int]RiverReach, len(shp.SHP.Records))
	for i := range shp.SHP.Records {
		fields, g := shp.Record(i)
		comid, err := fieldInt(fields, "COMID")
		if err != nil {
			return nil, delineateerr.Wrap(delineateerr.KindDataCorrupt, fmt.Sprintf("river record %d in basin %s", i, basinCode), err)
		}
		centerline, err := lineStringFromGeom(g)
		if err != nil {
			return nil, delineateerr.Wrap(delineateerr.KindDataCorrupt, fmt.Sprintf("river COMID %d in basin %s", comid, basinCode), err)
		}
		up1, _ := fieldInt(fields, "up1")
		up2, _ := fieldInt(fields, "up2")
		up3, _ := fieldInt(fields, "up3")
		up4, _ := fieldInt(fields, "up4")
		uparea, err := fieldFloat(fields, "uparea")
		if err != nil {
			return nil, delineateerr.Wrap(delineateerr.KindDataCorrupt, fmt.Sprintf("river COMID %d uparea in basin %s", comid, basinCode), err)
		}
		out[comid] = RiverReach{
			COMID:      comid,
			Centerline: centerline,
			Up1:        up1, Up2: up2, Up3: up3, Up4: up4,
			UpAreaKM2: uparea,
		}
	}
	return out, nil
}

func openShapefile(dir, basename string) (*shapefile.Shapefile, error) {
	return shapefile.ReadFS(os.DirFS(dir), basename)
}

// Availability reports, per requested basin, whether its complete file
// set (rasters + both shapefile triples) is present on disk.
type Availability struct {
	Present []string
	Missing map[string][]string // basin code -> missing file paths
}

// CheckAvailability implements C2's check_availability, used by the batch
// driver (C9) before a run starts so that incomplete basins fail fast with
// an actionable file list rather than mid-run.
func CheckAvailability(basins []string, dataDir string) Availability {
	paths := Paths{DataDir: dataDir}
	avail := Availability{Missing: make(map[string][]string)}

	for _, basin := range basins {
		var missing []string
		for _, f := range []string{paths.FlowDirRaster(basin), paths.AccumRaster(basin)} {
			if !fileExists(f) {
				missing = append(missing, f)
			}
		}
		catDir, catBase := paths.CatchmentShapefileDir(basin)
		missing = append(missing, missingShapefileParts(catDir, catBase)...)
		rivDir, rivBase := paths.RiverShapefileDir(basin)
		missing = append(missing, missingShapefileParts(rivDir, rivBase)...)

		if len(missing) == 0 {
			avail.Present = append(avail.Present, basin)
		} else {
			avail.Missing[basin] = missing
		}
	}
	return avail
}

func missingShapefileParts(dir, basename string) []string {
	var missing []string
	for _, ext := range requiredShapefileExts {
		f := dir + "/" + basename + ext
		if !fileExists(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
