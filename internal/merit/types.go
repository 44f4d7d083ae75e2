// Package merit loads the MERIT-Basins vector layers (unit catchments and
// river reaches) for a Pfafstetter Level-2 basin and indexes them by
// COMID (spec.md §3, §4.2).
package merit

import "github.com/paulmach/orb"

// UnitCatchment is the smallest polygon in the MERIT-Basins vector
// dataset, identified by COMID.
type UnitCatchment struct {
	COMID   int
	Polygon orb.Polygon
}

// RiverReach carries a unit catchment's centerline and upstream topology.
// Up1..Up4 are zero when there is no tributary in that slot.
type RiverReach struct {
	COMID       int
	Centerline  orb.LineString
	Up1, Up2, Up3, Up4 int
	UpAreaKM2   float64
}

// Upstreams returns the non-zero upstream COMIDs of r, in the fixed
// Up1..Up4 order. Preserving this order matters: spec.md's Open
// Questions note that collect_upstream's determinism depends on it.
func (r RiverReach) Upstreams() []int {
	var ups []int
	for _, u := range []int{r.Up1, r.Up2, r.Up3, r.Up4} {
		if u != 0 {
			ups = append(ups, u)
		}
	}
	return ups
}

// BasinData holds one basin's loaded catchments and rivers, indexed by
// COMID, normalised to EPSG:4326.
type BasinData struct {
	BasinCode   string
	Catchments  map[int]UnitCatchment
	Rivers      map[int]RiverReach
}

// CatchmentContaining returns the COMID of the unit catchment whose
// polygon contains pt, or (0, false) if none does. Unit catchments do not
// overlap (spec.md §3 invariant), so the first hit is the answer.
func (b *BasinData) CatchmentContaining(pt orb.Point) (int, bool) {
	for comid, uc := range b.Catchments {
		if polygonContains(uc.Polygon, pt) {
			return comid, true
		}
	}
	return 0, false
}

// polygonContains is a standard even-odd ray cast over the exterior ring
// with holes subtracted, sufficient for point-in-unit-catchment queries
// (MERIT unit catchments are simple polygons with at most a few holes).
func polygonContains(p orb.Polygon, pt orb.Point) bool {
	if len(p) == 0 {
		return false
	}
	if !ringContains(p[0], pt) {
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
