package raster

import (
	"github.com/paulmach/orb"

	"github.com/merit-hydro/delineator/internal/geometry"
)

// Result is C5's output: either a refined polygon plus the snapped
// coordinates, or (if flood-fill failed after a successful snap) just
// the snapped coordinates, or nothing at all if snapping itself failed
// (spec.md §4.5 step 6).
type Result struct {
	Polygon        orb.Geometry
	SnapLon, SnapLat float64
	Snapped        bool
	Polygonised    bool
}

// Delineate runs the full C5 pipeline over an already-loaded raster
// window: mask construction, snap-to-stream, reverse D8 flood-fill, and
// polygonisation. flowdir and accum must already be windowed to w and
// NOT yet masked; this function applies the mask itself so callers don't
// need to duplicate spec.md §4.5 step 2's masking trick.
func Delineate(
	w Window,
	terminalPolygon orb.Polygon,
	outlet orb.Point,
	flowdir []uint8,
	accum []float32,
	upstreamAreaKM2 *float64,
	singleCatchment bool,
) (Result, error) {
	closed, err := geometry.CloseHoles(terminalPolygon, 0)
	if err != nil {
		return Result{}, err
	}
	maskPoly := closed.(orb.Polygon)

	mask := RasterizeMask(maskPoly, w)
	ApplyMask(flowdir, mask)
	ApplyMaskF(accum, mask)

	threshold := SnapThresholdPixels(upstreamAreaKM2, singleCatchment)
	snapCol, snapRow, ok := SnapToStream(accum, mask, w, outlet, threshold)
	if !ok {
		return Result{}, nil
	}
	snapLon, snapLat := w.ColRowToLonLat(snapCol, snapRow)

	filled := FloodFillUpstream(flowdir, w, snapCol, snapRow)
	geom := Polygonize(filled, w)
	if geom == nil {
		return Result{Snapped: true, SnapLon: snapLon, SnapLat: snapLat}, nil
	}

	if mp, isMulti := geom.(orb.MultiPolygon); isMulti {
		geom = geometry.LargestPart(mp)
	}

	// Nudge the pour point: +h to longitude, -h to latitude (step 5).
	return Result{
		Polygon:     geom,
		SnapLon:     snapLon + HalfPixelDeg,
		SnapLat:     snapLat - HalfPixelDeg,
		Snapped:     true,
		Polygonised: true,
	}, nil
}
