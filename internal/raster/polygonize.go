package raster

import "github.com/paulmach/orb"

// pixelVertex is a lattice corner in (col, row) pixel-index space: corner
// (c, r) is the shared corner of pixels (c-1,r-1), (c,r-1), (c-1,r), (c,r).
type pixelVertex struct{ col, row int }

// Polygonize converts a binary mask into polygon geometry. Boundary
// edges are traced in pixel-index space so that, once projected to
// geographic coordinates, each connected component's outer boundary
// winds counter-clockwise and each hole winds clockwise — the standard
// convention, and one that lets holes be matched to their owning
// exterior purely by signed area and point-in-ring containment.
//
// If the mask has more than one connected component, spec.md §4.5 step 5
// calls for taking the union and keeping the largest part; since
// components produced by this tracer are already disjoint simple
// polygons, that reduces to just picking the component with the largest
// area.
func Polygonize(mask []uint8, w Window) orb.Geometry {
	next := buildBoundaryEdges(mask, w)
	rings := traceRings(next, w)
	if len(rings) == 0 {
		return nil
	}

	var exteriors []orb.Polygon
	var holes []orb.Ring
	for _, ring := range rings {
		if ringArea(ring) > 0 {
			exteriors = append(exteriors, orb.Polygon{ring})
		} else {
			holes = append(holes, ring)
		}
	}

	for _, hole := range holes {
		owner := findOwner(exteriors, hole)
		if owner >= 0 {
			exteriors[owner] = append(exteriors[owner], hole)
		}
	}

	if len(exteriors) == 1 {
		return exteriors[0]
	}
	if len(exteriors) == 0 {
		return nil
	}
	best := 0
	bestArea := ringArea(exteriors[0][0])
	for i := 1; i < len(exteriors); i++ {
		a := ringArea(exteriors[i][0])
		if a > bestArea {
			bestArea = a
			best = i
		}
	}
	return exteriors[best]
}

func findOwner(exteriors []orb.Polygon, hole orb.Ring) int {
	if len(hole) == 0 {
		return -1
	}
	for i, ext := range exteriors {
		if ringContainsPoint(ext[0], hole[0]) {
			return i
		}
	}
	return -1
}

func buildBoundaryEdges(mask []uint8, w Window) map[pixelVertex]pixelVertex {
	filled := func(c, r int) bool {
		if c < 0 || c >= w.Cols || r < 0 || r >= w.Rows {
			return false
		}
		return mask[w.index(c, r)] != 0
	}

	next := make(map[pixelVertex]pixelVertex)
	for r := 0; r < w.Rows; r++ {
		for c := 0; c < w.Cols; c++ {
			if !filled(c, r) {
				continue
			}
			if !filled(c, r-1) { // north neighbour missing
				next[pixelVertex{c + 1, r}] = pixelVertex{c, r}
			}
			if !filled(c+1, r) { // east neighbour missing
				next[pixelVertex{c + 1, r + 1}] = pixelVertex{c + 1, r}
			}
			if !filled(c, r+1) { // south neighbour missing
				next[pixelVertex{c, r + 1}] = pixelVertex{c + 1, r + 1}
			}
			if !filled(c-1, r) { // west neighbour missing
				next[pixelVertex{c, r}] = pixelVertex{c, r + 1}
			}
		}
	}
	return next
}

// traceRings follows next's edges into closed loops and converts each to
// a geographic orb.Ring.
func traceRings(next map[pixelVertex]pixelVertex, w Window) []orb.Ring {
	used := make(map[pixelVertex]bool, len(next))
	var rings []orb.Ring

	for start := range next {
		if used[start] {
			continue
		}
		var verts []pixelVertex
		v := start
		for {
			if used[v] {
				break
			}
			used[v] = true
			verts = append(verts, v)
			nv, ok := next[v]
			if !ok {
				break
			}
			v = nv
			if v == start {
				break
			}
		}
		if len(verts) < 3 {
			continue
		}
		ring := make(orb.Ring, 0, len(verts)+1)
		for _, pv := range verts {
			lon := w.MinLon + float64(pv.col)*PixelSizeDeg
			lat := w.MaxLat - float64(pv.row)*PixelSizeDeg
			ring = append(ring, orb.Point{lon, lat})
		}
		ring = append(ring, ring[0])
		rings = append(rings, ring)
	}
	return rings
}

// ringArea is the signed shoelace area: positive for a counter-clockwise
// ring (exterior, in this package's convention), negative for clockwise
// (hole).
func ringArea(ring orb.Ring) float64 {
	n := len(ring)
	if n < 4 {
		return 0
	}
	var sum float64
	for i := 0; i < n-1; i++ {
		x1, y1 := ring[i][0], ring[i][1]
		x2, y2 := ring[i+1][0], ring[i+1][1]
		sum += x1*y2 - x2*y1
	}
	return sum / 2
}
