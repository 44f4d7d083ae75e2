package raster

import "github.com/paulmach/orb"

// RasterizeMask rasterises polygon into a byte mask on w's pixel grid
// (1 = inside, 0 = outside), using a standard scanline fill sampled at
// each pixel centre. The caller is expected to have already reduced the
// polygon to its largest part with holes closed (spec.md §4.5 step 2).
func RasterizeMask(polygon orb.Polygon, w Window) []uint8 {
	mask := make([]uint8, w.Cols*w.Rows)
	if len(polygon) == 0 {
		return mask
	}
	for row := 0; row < w.Rows; row++ {
		_, lat := w.ColRowToLonLat(0, row)
		for col := 0; col < w.Cols; col++ {
			lon, _ := w.ColRowToLonLat(col, row)
			if polygonContainsPoint(polygon, lon, lat) {
				mask[w.index(col, row)] = 1
			}
		}
	}
	return mask
}

// ApplyMask zeroes out any element of data whose corresponding mask
// pixel is 0, the "key trick" that keeps the snap step from jumping into
// a neighbouring watershed near a confluence (spec.md §4.5 step 2).
func ApplyMask(data []uint8, mask []uint8) {
	for i := range data {
		if mask[i] == 0 {
			data[i] = 0
		}
	}
}

// ApplyMaskF applies the same zeroing to a float32 raster (flow
// accumulation).
func ApplyMaskF(data []float32, mask []uint8) {
	for i := range data {
		if mask[i] == 0 {
			data[i] = 0
		}
	}
}

func polygonContainsPoint(p orb.Polygon, lon, lat float64) bool {
	pt := orb.Point{lon, lat}
	if len(p) == 0 || !ringContainsPoint(p[0], pt) {
		return false
	}
	for _, hole := range p[1:] {
		if ringContainsPoint(hole, pt) {
			return false
		}
	}
	return true
}

func ringContainsPoint(ring orb.Ring, pt orb.Point) bool {
	inside := false
	n := len(ring)
	if n < 4 {
		return false
	}
	x, y := pt[0], pt[1]
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > y) != (yj > y) {
			xInt := xj + (y-yj)/(yi-yj)*(xi-xj)
			if x < xInt {
				inside = !inside
			}
		}
	}
	return inside
}
