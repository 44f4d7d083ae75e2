package raster

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestNewWindowAlignsToPixelLattice(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{-105.03, 39.97}, Max: orb.Point{-104.97, 40.03}}
	w := NewWindow(bound)

	if w.MinLon > bound.Min[0] || w.MinLat > bound.Min[1] {
		t.Fatalf("window must not be smaller than the input bound: %+v vs %v", w, bound)
	}
	if w.MaxLon < bound.Max[0] || w.MaxLat < bound.Max[1] {
		t.Fatalf("window must not be smaller than the input bound: %+v vs %v", w, bound)
	}

	// Window edges should land on the half-pixel lattice.
	snapped := math.Mod((w.MinLon+HalfPixelDeg)*1200, 1.0)
	if math.Abs(snapped) > 1e-6 && math.Abs(snapped-1) > 1e-6 {
		t.Errorf("MinLon not aligned to pixel lattice: %v", w.MinLon)
	}
}

func TestWindowColRowRoundTrip(t *testing.T) {
	w := Window{MinLon: -105, MinLat: 39, MaxLon: -104, MaxLat: 40, Cols: 1200, Rows: 1200}
	lon, lat := w.ColRowToLonLat(10, 20)
	col, row := w.LonLatToColRow(lon, lat)
	if col != 10 || row != 20 {
		t.Errorf("round trip mismatch: got (%d,%d), want (10,20)", col, row)
	}
}

func TestRasterizeMask(t *testing.T) {
	w := Window{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1, Cols: 10, Rows: 10}
	p := orb.Polygon{{
		{0.2, 0.2}, {0.8, 0.2}, {0.8, 0.8}, {0.2, 0.8}, {0.2, 0.2},
	}}
	mask := RasterizeMask(p, w)

	var count int
	for _, v := range mask {
		if v != 0 {
			count++
		}
	}
	if count == 0 {
		t.Fatalf("expected some pixels inside the polygon, got none")
	}
	if count == len(mask) {
		t.Fatalf("expected some pixels outside the polygon, got all inside")
	}
}

func TestSnapThresholdPixelsTable(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	testCases := []struct {
		name            string
		upstreamAreaKM2 *float64
		singleCatchment bool
		want            int
	}{
		{"under 50 km2", f(25), false, 300},
		{"under 200 km2", f(150), false, 500},
		{"under 1000 km2", f(600), false, 1000},
		{"under 5000 km2", f(3000), false, 2000},
		{"5000 or more", f(10000), false, 5000},
		{"unknown single catchment", nil, true, 500},
		{"unknown multi catchment", nil, false, 5000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := SnapThresholdPixels(tc.upstreamAreaKM2, tc.singleCatchment)
			if got != tc.want {
				t.Errorf("SnapThresholdPixels(%v, %v) = %d, want %d", tc.upstreamAreaKM2, tc.singleCatchment, got, tc.want)
			}
		})
	}
}

func TestSnapToStreamFindsNearestAboveThreshold(t *testing.T) {
	w := Window{MinLon: 0, MinLat: 0, MaxLon: 0.01, MaxLat: 0.01, Cols: 10, Rows: 10}
	mask := make([]uint8, 100)
	accum := make([]float32, 100)
	for i := range mask {
		mask[i] = 1
	}
	// Stream pixel far from the outlet and one close to it, both above threshold.
	accum[w.index(5, 5)] = 1000
	accum[w.index(1, 1)] = 1000

	outletLon, outletLat := w.ColRowToLonLat(1, 2)
	col, row, ok := SnapToStream(accum, mask, w, orb.Point{outletLon, outletLat}, 500)
	if !ok {
		t.Fatalf("expected a stream pixel to be found")
	}
	if col != 1 || row != 1 {
		t.Errorf("expected nearest stream pixel (1,1), got (%d,%d)", col, row)
	}
}

func TestSnapToStreamFailsWithNoStreamPixels(t *testing.T) {
	w := Window{MinLon: 0, MinLat: 0, MaxLon: 0.01, MaxLat: 0.01, Cols: 10, Rows: 10}
	mask := make([]uint8, 100)
	for i := range mask {
		mask[i] = 1
	}
	accum := make([]float32, 100) // all zero, nothing exceeds any positive threshold

	_, _, ok := SnapToStream(accum, mask, w, orb.Point{0.005, 0.005}, 500)
	if ok {
		t.Fatalf("expected snap to fail when no pixel exceeds the threshold")
	}
}

func TestFloodFillUpstreamSinglePixel(t *testing.T) {
	w := Window{MinLon: 0, MinLat: 0, MaxLon: 0.01, MaxLat: 0.01, Cols: 10, Rows: 10}
	flowdir := make([]uint8, 100) // all zero: isolated pixel, nothing flows in

	got := FloodFillUpstream(flowdir, w, 5, 5)
	var count int
	for _, v := range got {
		if v != 0 {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly the snap pixel included, got %d pixels", count)
	}
	if got[w.index(5, 5)] == 0 {
		t.Fatalf("expected snap pixel itself to be included")
	}
}

func TestFloodFillUpstreamChain(t *testing.T) {
	w := Window{MinLon: 0, MinLat: 0, MaxLon: 0.01, MaxLat: 0.01, Cols: 10, Rows: 10}
	flowdir := make([]uint8, 100)
	// Chain: (0,5) -> (1,5) -> (2,5) -> ... -> (5,5), all flowing East.
	for c := 0; c < 5; c++ {
		flowdir[w.index(c, 5)] = DirE
	}

	got := FloodFillUpstream(flowdir, w, 5, 5)
	for c := 0; c <= 5; c++ {
		if got[w.index(c, 5)] == 0 {
			t.Errorf("expected pixel (%d,5) to be included in upstream mask", c)
		}
	}
	if got[w.index(6, 5)] != 0 {
		t.Errorf("expected pixel downstream of the snap to be excluded")
	}
}

func TestPolygonizeSquare(t *testing.T) {
	w := Window{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1, Cols: 10, Rows: 10}
	mask := make([]uint8, 100)
	for r := 2; r < 6; r++ {
		for c := 2; c < 6; c++ {
			mask[w.index(c, r)] = 1
		}
	}

	geom := Polygonize(mask, w)
	poly, ok := geom.(orb.Polygon)
	if !ok {
		t.Fatalf("expected a single Polygon, got %T", geom)
	}
	if len(poly) != 1 {
		t.Fatalf("expected no holes in a solid square, got %d rings", len(poly))
	}

	area := math.Abs(ringArea(poly[0]))
	if area <= 0 {
		t.Fatalf("expected positive area, got %v", area)
	}
}

func TestPolygonizeWithHole(t *testing.T) {
	w := Window{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1, Cols: 20, Rows: 20}
	mask := make([]uint8, 400)
	for r := 2; r < 18; r++ {
		for c := 2; c < 18; c++ {
			mask[w.index(c, r)] = 1
		}
	}
	// Punch a hole in the middle.
	for r := 8; r < 12; r++ {
		for c := 8; c < 12; c++ {
			mask[w.index(c, r)] = 0
		}
	}

	geom := Polygonize(mask, w)
	poly, ok := geom.(orb.Polygon)
	if !ok {
		t.Fatalf("expected a single Polygon, got %T", geom)
	}
	if len(poly) != 2 {
		t.Fatalf("expected exterior + 1 hole, got %d rings", len(poly))
	}
}

func TestPolygonizeEmptyMaskReturnsNil(t *testing.T) {
	w := Window{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1, Cols: 10, Rows: 10}
	mask := make([]uint8, 100)
	if geom := Polygonize(mask, w); geom != nil {
		t.Fatalf("expected nil geometry for an empty mask, got %v", geom)
	}
}
