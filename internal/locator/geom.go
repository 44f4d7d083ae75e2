package locator

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geom"
)

// polygonFromGeom converts a go-geom polygon-like geometry to orb.Polygon.
// Basin boundaries are occasionally stored multi-part (a continental
// basin with offshore islands), so parts are merged into one ring list.
func polygonFromGeom(g geom.T) (orb.Polygon, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return ringsFromPolygon(t), nil
	case *geom.MultiPolygon:
		var rings orb.Polygon
		for i := 0; i < t.NumPolygons(); i++ {
			rings = append(rings, ringsFromPolygon(t.Polygon(i))...)
		}
		return rings, nil
	default:
		return nil, fmt.Errorf("locator: unsupported basin geometry type %T", g)
	}
}

func ringsFromPolygon(p *geom.Polygon) orb.Polygon {
	coords := p.Coords()
	rings := make(orb.Polygon, len(coords))
	for i, ring := range coords {
		r := make(orb.Ring, len(ring))
		for j, c := range ring {
			r[j] = orb.Point{c[0], c[1]}
		}
		rings[i] = r
	}
	return rings
}

// polygonContains is an even-odd ray cast, sufficient for the basin
// layer's simple (at most lightly multi-part) polygons.
func polygonContains(p orb.Polygon, pt orb.Point) bool {
	if len(p) == 0 || !ringContains(p[0], pt) {
		return false
	}
	for _, hole := range p[1:] {
		if ringContains(hole, pt) {
			return false
		}
	}
	return true
}

func ringContains(ring orb.Ring, pt orb.Point) bool {
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
