// Package raster implements the pixel-scale sub-delineation: windowed
// read, mask construction, snap-to-stream, D8 reverse flood-fill, and
// polygonisation of one unit catchment's flow-direction grid (spec.md
// §4.5, C5).
package raster

import (
	"math"

	"github.com/paulmach/orb"
)

// PixelSizeDeg is one MERIT pixel width/height: 3 arc-seconds.
const PixelSizeDeg = 1.0 / 1200.0

// HalfPixelDeg is half a pixel, used both for lattice alignment and for
// the ½-pixel pour-point nudge (spec.md §4.5 step 1 and step 5).
const HalfPixelDeg = PixelSizeDeg / 2

// Window is a rectangular, pixel-lattice-aligned subview of a MERIT
// raster (spec.md §3's RasterWindow).
type Window struct {
	MinLon, MinLat float64
	MaxLon, MaxLat float64
	Cols, Rows     int
}

// NewWindow snaps bound outward to the pixel-centre lattice: coordinates
// are rounded outward by the formula spec.md §4.5 step 1 specifies,
// `floor(coord*1200)/1200 − h` on the low side and `ceil(coord*1200)/1200
// + h` on the high side, so the raster library always reads
// cleanly-aligned pixels rather than a fractional-pixel slice.
func NewWindow(bound orb.Bound) Window {
	minLon := math.Floor(bound.Min[0]*1200)/1200 - HalfPixelDeg
	minLat := math.Floor(bound.Min[1]*1200)/1200 - HalfPixelDeg
	maxLon := math.Ceil(bound.Max[0]*1200)/1200 + HalfPixelDeg
	maxLat := math.Ceil(bound.Max[1]*1200)/1200 + HalfPixelDeg

	cols := int(math.Round((maxLon - minLon) / PixelSizeDeg))
	rows := int(math.Round((maxLat - minLat) / PixelSizeDeg))

	return Window{MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat, Cols: cols, Rows: rows}
}

// ColRowToLonLat converts a pixel's column/row index (row 0 = north edge)
// to the geographic coordinate of its centre.
func (w Window) ColRowToLonLat(col, row int) (lon, lat float64) {
	lon = w.MinLon + (float64(col)+0.5)*PixelSizeDeg
	lat = w.MaxLat - (float64(row)+0.5)*PixelSizeDeg
	return lon, lat
}

// LonLatToColRow converts a geographic coordinate to its containing
// pixel's column/row index. Results outside [0,Cols)x[0,Rows) are not
// clamped; callers check bounds explicitly.
func (w Window) LonLatToColRow(lon, lat float64) (col, row int) {
	col = int(math.Floor((lon - w.MinLon) / PixelSizeDeg))
	row = int(math.Floor((w.MaxLat - lat) / PixelSizeDeg))
	return col, row
}

func (w Window) index(col, row int) int { return row*w.Cols + col }

func (w Window) inBounds(col, row int) bool {
	return col >= 0 && col < w.Cols && row >= 0 && row < w.Rows
}
