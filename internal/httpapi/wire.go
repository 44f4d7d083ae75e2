package httpapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/merit-hydro/delineator/internal/delineate"
)

// delineateRequest is POST /delineate's body (spec.md §4.10).
type delineateRequest struct {
	GaugeID       string  `json:"gauge_id"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	GaugeName     string  `json:"gauge_name,omitempty"`
	ForceLowRes   bool    `json:"force_low_res,omitempty"`
	IncludeRivers bool    `json:"include_rivers,omitempty"`
}

func (r delineateRequest) validate() error {
	if r.GaugeID == "" {
		return fmt.Errorf("gauge_id is required")
	}
	if r.Lat < -90 || r.Lat > 90 {
		return fmt.Errorf("lat %v out of range [-90,90]", r.Lat)
	}
	if r.Lng < -180 || r.Lng > 180 {
		return fmt.Errorf("lng %v out of range [-180,180]", r.Lng)
	}
	return nil
}

// wireRiver is the JSON shape of one attached river reach.
type wireRiver struct {
	Centerline    *geojson.Geometry `json:"centerline"`
	UpAreaKM2     float64           `json:"uparea_km2"`
	StrahlerOrder int               `json:"strahler_order"`
	ShreveOrder   int               `json:"shreve_order"`
}

// wireWatershed is the JSON shape persisted in the cache and returned
// from both POST /delineate and GET /export (format=geojson). It keeps
// geometry as GeoJSON via paulmach/orb/geojson, the same library used
// for every other geometry conversion in this module, rather than
// inventing a bespoke wire geometry encoding.
type wireWatershed struct {
	GaugeID       string            `json:"gauge_id"`
	GaugeName     string            `json:"gauge_name,omitempty"`
	Status        string            `json:"status"`
	OrigLat       float64           `json:"lat"`
	OrigLng       float64           `json:"lng"`
	SnapLat       float64           `json:"snap_lat"`
	SnapLng       float64           `json:"snap_lng"`
	SnapDistanceM float64           `json:"snap_distance_m"`
	Country       string            `json:"country"`
	AreaKM2       float64           `json:"area_km2"`
	Resolution    string            `json:"resolution"`
	Geometry      *geojson.Geometry `json:"geometry"`
	Rivers        map[int]wireRiver `json:"rivers,omitempty"`
	CreatedAt     string            `json:"created_at"`
	Cached        bool              `json:"cached"`
}

func toWireWatershed(ws *delineate.Watershed) wireWatershed {
	w := wireWatershed{
		GaugeID:       ws.GaugeID,
		GaugeName:     ws.GaugeName,
		Status:        "success",
		OrigLat:       ws.OrigLat,
		OrigLng:       ws.OrigLng,
		SnapLat:       ws.SnapLat,
		SnapLng:       ws.SnapLng,
		SnapDistanceM: ws.SnapDistanceM,
		Country:       ws.Country,
		AreaKM2:       ws.AreaKM2,
		Resolution:    ws.Resolution,
		Geometry:      geojson.NewGeometry(ws.Geometry),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if len(ws.Rivers) > 0 {
		w.Rivers = make(map[int]wireRiver, len(ws.Rivers))
		for comid, r := range ws.Rivers {
			w.Rivers[comid] = wireRiver{
				Centerline:    geojson.NewGeometry(r.Centerline),
				UpAreaKM2:     r.UpAreaKM2,
				StrahlerOrder: r.StrahlerOrder,
				ShreveOrder:   r.ShreveOrder,
			}
		}
	}
	return w
}

func marshalWireWatershed(ws *delineate.Watershed) (json.RawMessage, error) {
	b, err := json.Marshal(toWireWatershed(ws))
	if err != nil {
		return nil, fmt.Errorf("httpapi: marshalling watershed: %w", err)
	}
	return b, nil
}

// errorResponse is the `{gauge_id, status:"error", ...}` shape spec.md
// §4.10 defines for every failed request.
type errorResponse struct {
	GaugeID      string `json:"gauge_id"`
	Status       string `json:"status"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}
