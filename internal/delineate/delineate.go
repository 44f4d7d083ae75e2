// Package delineate implements the orchestrator (C6) that ties the
// basin locator, basin data store, network traversal, and raster
// sub-delineator together into a single `Delineate` call producing a
// complete watershed record (spec.md §4.6).
package delineate

import (
	"log/slog"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/merit-hydro/delineator/internal/country"
	"github.com/merit-hydro/delineator/internal/delineateerr"
	"github.com/merit-hydro/delineator/internal/geometry"
	"github.com/merit-hydro/delineator/internal/merit"
	"github.com/merit-hydro/delineator/internal/network"
	"github.com/merit-hydro/delineator/internal/raster"
)

// HoleAreaPerPixelDeg2 is the "area of one MERIT pixel, in sq deg at
// equator-scale approximation" spec.md §4.6 step 7 names. Preserved as
// the fixed constant the source implementation uses, not re-derived per
// latitude — see DESIGN.md's Open Question notes on the resulting
// high-latitude under-fill.
const HoleAreaPerPixelDeg2 = 6.95e-7

// Options are the orchestrator's tunable knobs (spec.md §4.6).
type Options struct {
	UseHighRes          bool
	HighResAreaLimitKM2 float64
	FillThresholdPixels int
	IncludeRivers       bool
	Country             country.Lookup
}

// DefaultOptions matches spec.md §4.6's stated defaults.
func DefaultOptions() Options {
	return Options{
		UseHighRes:          true,
		HighResAreaLimitKM2: 10000,
		FillThresholdPixels: 100,
		IncludeRivers:       false,
		Country:             country.None{},
	}
}

// RiverAttributes is the optional per-COMID river info attached when
// Options.IncludeRivers is set.
type RiverAttributes struct {
	Centerline    orb.LineString
	UpAreaKM2     float64
	StrahlerOrder int
	ShreveOrder   int
}

// Watershed is the orchestrator's output record (spec.md §3's
// DelineatedWatershed).
type Watershed struct {
	GaugeID       string
	GaugeName     string
	OrigLat       float64
	OrigLng       float64
	SnapLat       float64
	SnapLng       float64
	SnapDistanceM float64
	Country       string
	AreaKM2       float64
	Geometry      orb.Geometry
	Resolution    string // "high_res" or "low_res"
	Rivers        map[int]RiverAttributes
}

// Outlet identifies the request: an outlet point plus the caller's
// label for it.
type Outlet struct {
	GaugeID   string
	GaugeName string
	Lat, Lng  float64
}

// RasterPaths resolves flow-direction/flow-accumulation files for a
// basin code, kept as an interface so C6 doesn't hard-code merit.Paths.
type RasterPaths interface {
	FlowDirRaster(basinCode string) string
	AccumRaster(basinCode string) string
}

// Delineate runs the full C6 algorithm (spec.md §4.6 steps 1-12).
func Delineate(outlet Outlet, basin *merit.BasinData, paths RasterPaths, opts Options, log *slog.Logger) (*Watershed, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.Country == nil {
		opts.Country = country.None{}
	}

	pt := orb.Point{outlet.Lng, outlet.Lat}

	// Step 1: spatial join against the basin's unit catchments.
	terminal, found := basin.CatchmentContaining(pt)
	if !found {
		return nil, delineateerr.New(delineateerr.KindNoRiverFound, "no unit catchment contains the outlet")
	}

	// Step 2: collect upstream set and the known upstream area.
	upstream := network.CollectUpstream(terminal, basin.Rivers)
	terminalReach, hasReach := basin.Rivers[terminal]
	var upstreamArea *float64
	if hasReach {
		a := terminalReach.UpAreaKM2
		upstreamArea = &a
	}

	// Step 3: decide resolution mode, logging any demotion.
	highRes := opts.UseHighRes
	if upstreamArea != nil && *upstreamArea > opts.HighResAreaLimitKM2 {
		if highRes {
			log.Info("demoting to low_res: upstream area exceeds high-res limit",
				"gauge_id", outlet.GaugeID, "upstream_area_km2", *upstreamArea, "limit_km2", opts.HighResAreaLimitKM2)
		}
		highRes = false
	}

	// Step 4: extract subset of unit catchments, cloned so the cached
	// basin data is never mutated by this request.
	subset := make(map[int]orb.Polygon, len(upstream))
	for _, comid := range upstream {
		if uc, ok := basin.Catchments[comid]; ok {
			subset[comid] = clonePolygon(uc.Polygon)
		}
	}
	if len(subset) == 0 {
		return nil, delineateerr.New(delineateerr.KindDataCorrupt, "no unit catchment polygons available for the upstream set")
	}

	var snapLat, snapLng float64
	var resolution string

	if highRes {
		// Step 5: raster sub-delineation of the terminal catchment only.
		terminalPoly, ok := subset[terminal]
		if !ok {
			return nil, delineateerr.New(delineateerr.KindDataCorrupt, "terminal catchment missing from subset")
		}

		basinCode := basinCodeFromComid(terminal)
		flowDirPath, accumPath := paths.FlowDirRaster(basinCode), paths.AccumRaster(basinCode)
		w := raster.NewWindow(terminalPoly.Bound())
		flowdir, err := raster.ReadWindowByte(flowDirPath, w)
		if err != nil {
			return nil, err
		}
		accum, err := raster.ReadWindowFloat32(accumPath, w)
		if err != nil {
			return nil, err
		}

		singleCatchment := len(upstream) == 1
		result, err := raster.Delineate(w, terminalPoly, pt, flowdir, accum, upstreamArea, singleCatchment)
		if err != nil {
			return nil, delineateerr.Wrap(delineateerr.KindDelineationFailed, "raster sub-delineation", err)
		}
		if !result.Snapped {
			return nil, delineateerr.New(delineateerr.KindDelineationFailed, "snap-to-stream found no stream pixel")
		}
		if !result.Polygonised {
			return nil, delineateerr.New(delineateerr.KindDelineationFailed, "flood-fill produced no polygon after snapping")
		}

		switch g := result.Polygon.(type) {
		case orb.Polygon:
			subset[terminal] = g
		case orb.MultiPolygon:
			subset[terminal] = geometry.LargestPart(g)
		default:
			return nil, delineateerr.New(delineateerr.KindDelineationFailed, "unexpected raster polygon type")
		}

		snapLat, snapLng = result.SnapLat, result.SnapLon
		resolution = "high_res"
	} else {
		// Step 6: low-res snap is the terminal river's downstream endpoint.
		if !hasReach || len(terminalReach.Centerline) == 0 {
			return nil, delineateerr.New(delineateerr.KindDataCorrupt, "terminal river reach has no centerline")
		}
		first := terminalReach.Centerline[0]
		snapLng, snapLat = first[0], first[1]
		resolution = "low_res"
	}

	// Step 7: dissolve + hole-fill.
	polys := make([]orb.Polygon, 0, len(subset))
	for _, p := range subset {
		polys = append(polys, p)
	}
	dissolved, err := geometry.Dissolve(polys)
	if err != nil {
		return nil, delineateerr.Wrap(delineateerr.KindDelineationFailed, "dissolve", err)
	}
	areaMax := float64(opts.FillThresholdPixels) * HoleAreaPerPixelDeg2
	closed, err := geometry.CloseHoles(dissolved, areaMax)
	if err != nil {
		return nil, delineateerr.Wrap(delineateerr.KindDelineationFailed, "close_holes", err)
	}

	// Step 8: repair.
	var finalGeom orb.Geometry
	switch g := closed.(type) {
	case orb.Polygon:
		repaired, err := geometry.Repair(g)
		if err != nil {
			return nil, delineateerr.Wrap(delineateerr.KindDelineationFailed, "repair", err)
		}
		finalGeom = repaired
	case orb.MultiPolygon:
		repairedParts := make(orb.MultiPolygon, 0, len(g))
		for _, p := range g {
			r, err := geometry.Repair(p)
			if err != nil {
				return nil, delineateerr.Wrap(delineateerr.KindDelineationFailed, "repair", err)
			}
			repairedParts = append(repairedParts, r)
		}
		finalGeom = repairedParts
	default:
		return nil, delineateerr.New(delineateerr.KindDelineationFailed, "unexpected dissolved geometry type")
	}

	// Step 9: area + snap distance.
	var areaPoly orb.Polygon
	switch g := finalGeom.(type) {
	case orb.Polygon:
		areaPoly = g
	case orb.MultiPolygon:
		areaPoly = geometry.LargestPart(g)
	}
	areaKM2, err := geometry.AreaKM2(areaPoly)
	if err != nil {
		return nil, delineateerr.Wrap(delineateerr.KindDelineationFailed, "area_km2", err)
	}
	snapDistanceM := geometry.GreatCircleM(outlet.Lat, outlet.Lng, snapLat, snapLng)

	// Step 10: country lookup, falling back to Unknown on any failure.
	countryName, err := opts.Country.Country(snapLat, snapLng)
	if err != nil || countryName == "" {
		countryName = country.Unknown
	}

	w := &Watershed{
		GaugeID:       outlet.GaugeID,
		GaugeName:     outlet.GaugeName,
		OrigLat:       outlet.Lat,
		OrigLng:       outlet.Lng,
		SnapLat:       snapLat,
		SnapLng:       snapLng,
		SnapDistanceM: snapDistanceM,
		Country:       countryName,
		AreaKM2:       areaKM2,
		Geometry:      finalGeom,
		Resolution:    resolution,
	}

	// Step 11: optional rivers sub-collection with stream orders.
	if opts.IncludeRivers {
		riversSubset := make(map[int]merit.RiverReach, len(upstream))
		for _, comid := range upstream {
			if r, ok := basin.Rivers[comid]; ok {
				riversSubset[comid] = r
			}
		}
		strahler, shreve := network.StreamOrders(riversSubset)
		rivers := make(map[int]RiverAttributes, len(riversSubset))
		for comid, r := range riversSubset {
			rivers[comid] = RiverAttributes{
				Centerline:    r.Centerline,
				UpAreaKM2:     r.UpAreaKM2,
				StrahlerOrder: strahler[comid],
				ShreveOrder:   shreve[comid],
			}
		}
		w.Rivers = rivers
	}

	return w, nil
}

// basinCodeFromComid derives the high-res raster partition's basin
// code from the terminal COMID's leading two digits, an undocumented
// but consistent MERIT-Basins convention (spec.md §4.6 step 5) — not
// to be confused with the coarse Pfafstetter-Level-2 basin code C3's
// locator resolves, which only selects which C2 unit-catchment/river
// vector set to load.
func basinCodeFromComid(comid int) string {
	s := strconv.Itoa(comid)
	if len(s) < 2 {
		return s
	}
	return s[:2]
}

func clonePolygon(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		r := make(orb.Ring, len(ring))
		copy(r, ring)
		out[i] = r
	}
	return out
}
