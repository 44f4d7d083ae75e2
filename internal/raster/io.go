package raster

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/merit-hydro/delineator/internal/delineateerr"
)

// gdalMu serialises all GDAL calls: libgdal keeps process-global state
// that is not safe for concurrent access from multiple goroutines, the
// same constraint the teacher's own GDAL-backed reader documents.
var gdalMu sync.Mutex

var registerOnce sync.Once

func ensureRegistered() {
	registerOnce.Do(godal.RegisterAll)
}

// ReadWindowByte opens the GeoTIFF at path and reads the pixels covering w
// into a row-major buffer of size w.Cols*w.Rows, assuming (as MERIT
// rasters guarantee) that the file shares this package's global 1/1200°
// pixel grid so no resampling is needed.
func ReadWindowByte(path string, w Window) ([]uint8, error) {
	ensureRegistered()
	gdalMu.Lock()
	defer gdalMu.Unlock()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, delineateerr.Wrap(delineateerr.KindDataMissing, path, err)
	}
	defer ds.Close()

	xOff, yOff, err := pixelOffset(ds, w)
	if err != nil {
		return nil, delineateerr.Wrap(delineateerr.KindDataCorrupt, path, err)
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, delineateerr.New(delineateerr.KindDataCorrupt, fmt.Sprintf("%s: no bands", path))
	}

	buf := make([]uint8, w.Cols*w.Rows)
	if err := bands[0].Read(xOff, yOff, buf, w.Cols, w.Rows); err != nil {
		return nil, delineateerr.Wrap(delineateerr.KindDataCorrupt, path, err)
	}
	return buf, nil
}

// ReadWindowFloat32 is ReadWindowByte for the flow-accumulation raster,
// which MERIT stores as a floating-point pixel-count grid.
func ReadWindowFloat32(path string, w Window) ([]float32, error) {
	ensureRegistered()
	gdalMu.Lock()
	defer gdalMu.Unlock()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, delineateerr.Wrap(delineateerr.KindDataMissing, path, err)
	}
	defer ds.Close()

	xOff, yOff, err := pixelOffset(ds, w)
	if err != nil {
		return nil, delineateerr.Wrap(delineateerr.KindDataCorrupt, path, err)
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, delineateerr.New(delineateerr.KindDataCorrupt, fmt.Sprintf("%s: no bands", path))
	}

	buf := make([]float32, w.Cols*w.Rows)
	if err := bands[0].Read(xOff, yOff, buf, w.Cols, w.Rows); err != nil {
		return nil, delineateerr.Wrap(delineateerr.KindDataCorrupt, path, err)
	}
	return buf, nil
}

func pixelOffset(ds *godal.Dataset, w Window) (xOff, yOff int, err error) {
	gt, err := ds.GeoTransform()
	if err != nil {
		return 0, 0, fmt.Errorf("geotransform: %w", err)
	}
	// gt[0],gt[3] = origin; gt[1] = pixel width; gt[5] = pixel height (negative).
	xOff = int((w.MinLon - gt[0]) / gt[1])
	yOff = int((w.MaxLat - gt[3]) / gt[5])
	return xOff, yOff, nil
}
