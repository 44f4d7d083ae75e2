package writer

import "github.com/paulmach/orb"

// Record is the flattened, write-ready shape of one delineated
// watershed (spec.md §9's output attribute table). Writers depend on
// this instead of internal/delineate.Watershed directly so the output
// format stays decoupled from the orchestrator's in-memory result type.
type Record struct {
	GaugeID       string
	GaugeName     string
	GaugeLat      float64
	GaugeLon      float64
	SnapLat       float64
	SnapLon       float64
	SnapDistanceM float64
	Country       string
	AreaKM2       float64
	Geometry      orb.Geometry
}

// FailureRecord is one row of the centralised FAILED.csv: columns
// `region_name, gauge_id, lat, lng, error` (spec.md §6).
type FailureRecord struct {
	Region  string
	GaugeID string
	Lat     float64
	Lng     float64
	Reason  string
}
