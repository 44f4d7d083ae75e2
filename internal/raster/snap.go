package raster

import (
	"math"

	"github.com/paulmach/orb"
)

// SnapThresholdPixels picks the flow-accumulation pixel-count threshold T
// used to identify "stream" pixels, per the heuristic table of spec.md
// §4.5 step 3. This table has no stated derivation in the source
// implementation and is preserved verbatim rather than smoothed, per
// spec.md's Open Questions.
func SnapThresholdPixels(upstreamAreaKM2 *float64, singleCatchment bool) int {
	if upstreamAreaKM2 == nil {
		if singleCatchment {
			return 500
		}
		return 5000
	}
	a := *upstreamAreaKM2
	switch {
	case a < 50:
		return 300
	case a < 200:
		return 500
	case a < 1000:
		return 1000
	case a < 5000:
		return 2000
	default:
		return 5000
	}
}

// SnapToStream finds the mask-interior pixel whose flow accumulation
// exceeds threshold and which is nearest (in pixel-centre geographic
// distance) to the outlet. Returns ok=false if no such pixel exists
// (spec.md §4.5 step 3: "snapping fails").
func SnapToStream(accum []float32, mask []uint8, w Window, outlet orb.Point, threshold int) (col, row int, ok bool) {
	lon, lat := outlet[0], outlet[1]

	bestDist := math.MaxFloat64
	found := false
	for r := 0; r < w.Rows; r++ {
		for c := 0; c < w.Cols; c++ {
			idx := w.index(c, r)
			if mask[idx] == 0 {
				continue
			}
			if float64(accum[idx]) <= float64(threshold) {
				continue
			}
			pxLon, pxLat := w.ColRowToLonLat(c, r)
			d := (pxLon-lon)*(pxLon-lon) + (pxLat-lat)*(pxLat-lat)
			if d < bestDist {
				bestDist = d
				col, row = c, r
				found = true
			}
		}
	}
	return col, row, found
}
