package merit

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geom"
)

// polygonFromGeom converts a twpayne/go-geom polygon-like geometry into an
// orb.Polygon. MERIT unit catchments are occasionally stored as
// single-part MultiPolygon features after a dissolve upstream in the data
// pipeline; in that case the parts are merged into one orb.Polygon's ring
// list (unit catchments are not expected to be truly multi-part, per
// spec.md §3's "one polygon" invariant).
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
		return nil, fmt.Errorf("merit: unsupported catchment geometry type %T", g)
	}
}

func ringsFromPolygon(p *geom.Polygon) orb.Polygon {
	coords := p.Coords()
	rings := make(orb.Polygon, len(coords))
	for i, ring := range coords {
		rings[i] = ringFromCoords(ring)
	}
	return rings
}

func ringFromCoords(coords []geom.Coord) orb.Ring {
	ring := make(orb.Ring, len(coords))
	for i, c := range coords {
		ring[i] = orb.Point{c[0], c[1]}
	}
	return ring
}

// lineStringFromGeom converts a go-geom LineString (or the first, longest
// part of a MultiLineString) to an orb.LineString. River reaches are
// single-part centerlines in MERIT-Basins; the MultiLineString branch
// exists defensively for malformed source files.
func lineStringFromGeom(g geom.T) (orb.LineString, error) {
	switch t := g.(type) {
	case *geom.LineString:
		return lineStringFromCoords(t.Coords()), nil
	case *geom.MultiLineString:
		if t.NumLineStrings() == 0 {
			return nil, fmt.Errorf("merit: empty river centerline")
		}
		best := t.LineString(0)
		for i := 1; i < t.NumLineStrings(); i++ {
			if ls := t.LineString(i); len(ls.Coords()) > len(best.Coords()) {
				best = ls
			}
		}
		return lineStringFromCoords(best.Coords()), nil
	default:
		return nil, fmt.Errorf("merit: unsupported river geometry type %T", g)
	}
}

func lineStringFromCoords(coords []geom.Coord) orb.LineString {
	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		ls[i] = orb.Point{c[0], c[1]}
	}
	return ls
}

// fieldInt reads an integer-valued DBF field. twpayne/go-shapefile decodes
// numeric DBF fields as float64, so whole-number attributes like COMID and
// up1..up4 need a narrowing conversion.
func fieldInt(fields map[string]any, name string) (int, error) {
	v, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("merit: missing field %q", name)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("merit: field %q has unexpected type %T", name, v)
	}
}

func fieldFloat(fields map[string]any, name string) (float64, error) {
	v, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("merit: missing field %q", name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("merit: field %q has unexpected type %T", name, v)
	}
}
