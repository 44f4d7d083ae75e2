package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/merit-hydro/delineator/internal/cache"
	"github.com/merit-hydro/delineator/internal/delineate"
	"github.com/merit-hydro/delineator/internal/delineateerr"
	"github.com/merit-hydro/delineator/internal/merit"
)

func square(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

type stubLocator struct{}

func (stubLocator) PointToBasin(lng, lat float64) (string, error) { return "74", nil }

type failingLocator struct{}

func (failingLocator) PointToBasin(lng, lat float64) (string, error) {
	return "", delineateerr.New(delineateerr.KindNoRiverFound, "outlet not in any catchment")
}

type stubStore struct{}

func (stubStore) GetOrLoad(basinCode string) (*merit.BasinData, error) {
	return &merit.BasinData{
		BasinCode: basinCode,
		Catchments: map[int]merit.UnitCatchment{
			1: {COMID: 1, Polygon: square(0, 0, 1, 1)},
		},
		Rivers: map[int]merit.RiverReach{
			1: {COMID: 1, Centerline: orb.LineString{{0.5, 0.1}, {0.5, 0.9}}, UpAreaKM2: 25},
		},
	}, nil
}

type stubRasterPaths struct{}

func (stubRasterPaths) FlowDirRaster(basinCode string) string { return "" }
func (stubRasterPaths) AccumRaster(basinCode string) string    { return "" }

func newTestServer(t *testing.T, loc BasinLocator) *Server {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	opts := delineate.DefaultOptions()
	opts.UseHighRes = false
	return NewServer(stubStore{}, loc, c, stubRasterPaths{}, opts, nil, nil)
}

func TestHandleDelineateSuccess(t *testing.T) {
	s := newTestServer(t, stubLocator{})
	body, _ := json.Marshal(delineateRequest{GaugeID: "g1", Lat: 0.5, Lng: 0.5})
	req := httptest.NewRequest(http.MethodPost, "/delineate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.handleDelineate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp wireWatershed
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.GaugeID != "g1" || resp.Status != "success" || resp.AreaKM2 <= 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleDelineateInvalidCoordinates(t *testing.T) {
	s := newTestServer(t, stubLocator{})
	body, _ := json.Marshal(delineateRequest{GaugeID: "g1", Lat: 999, Lng: 0.5})
	req := httptest.NewRequest(http.MethodPost, "/delineate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.handleDelineate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp.ErrorCode != "INVALID_COORDINATES" {
		t.Fatalf("expected INVALID_COORDINATES, got %q", resp.ErrorCode)
	}
}

func TestHandleDelineateNoRiverFound(t *testing.T) {
	s := newTestServer(t, failingLocator{})
	body, _ := json.Marshal(delineateRequest{GaugeID: "g1", Lat: 0.5, Lng: 0.5})
	req := httptest.NewRequest(http.MethodPost, "/delineate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.handleDelineate(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if resp.ErrorCode != "NO_RIVER_FOUND" {
		t.Fatalf("expected NO_RIVER_FOUND, got %q", resp.ErrorCode)
	}
}

func TestHandleDelineateIsCachedOnSecondCall(t *testing.T) {
	s := newTestServer(t, stubLocator{})

	gaugeIDs := []string{"g1", "g2"}
	var responses []wireWatershed
	for i, gaugeID := range gaugeIDs {
		body, _ := json.Marshal(delineateRequest{GaugeID: gaugeID, Lat: 0.5, Lng: 0.5})
		req := httptest.NewRequest(http.MethodPost, "/delineate", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		s.handleDelineate(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d", i, rec.Code)
		}
		var resp wireWatershed
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("call %d: decoding response: %v", i, err)
		}
		responses = append(responses, resp)
	}

	if responses[0].Cached {
		t.Fatalf("expected first call (cache miss) to have cached=false, got %+v", responses[0])
	}
	if !responses[1].Cached {
		t.Fatalf("expected second call (cache hit) to have cached=true, got %+v", responses[1])
	}
	// Same coordinates, different gauge_id: the cache key doesn't
	// include gauge_id, so the stored response must be re-stamped with
	// the second caller's gauge_id rather than served verbatim.
	if responses[1].GaugeID != "g2" {
		t.Fatalf("expected second call's response to carry gauge_id %q, got %q", "g2", responses[1].GaugeID)
	}

	stats, err := s.Cache.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.EntryCount != 1 {
		t.Fatalf("expected exactly one cache entry after two requests at the same coordinates, got %d", stats.EntryCount)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, stubLocator{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleCacheStatsAndDelete(t *testing.T) {
	s := newTestServer(t, stubLocator{})
	body, _ := json.Marshal(delineateRequest{GaugeID: "g1", Lat: 0.5, Lng: 0.5})
	req := httptest.NewRequest(http.MethodPost, "/delineate", bytes.NewReader(body))
	s.handleDelineate(httptest.NewRecorder(), req)

	statsReq := httptest.NewRequest(http.MethodGet, "/cache/stats", nil)
	statsRec := httptest.NewRecorder()
	s.handleCacheStats(statsRec, statsReq)
	if statsRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", statsRec.Code)
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/cache/g1", nil)
	delRec := httptest.NewRecorder()
	s.handleCacheDelete(delRec, delReq)
	if delRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", delRec.Code, delRec.Body.String())
	}

	entries, err := s.Cache.GetByGaugeID("g1")
	if err != nil {
		t.Fatalf("GetByGaugeID: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries after delete, got %d", len(entries))
	}
}

func TestHandleExportGeoJSON(t *testing.T) {
	s := newTestServer(t, stubLocator{})
	body, _ := json.Marshal(delineateRequest{GaugeID: "g1", Lat: 0.5, Lng: 0.5})
	s.handleDelineate(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/delineate", bytes.NewReader(body)))

	req := httptest.NewRequest(http.MethodGet, "/export/g1?format=geojson", nil)
	rec := httptest.NewRecorder()
	s.handleExport(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleExportUnknownGaugeID(t *testing.T) {
	s := newTestServer(t, stubLocator{})
	req := httptest.NewRequest(http.MethodGet, "/export/does-not-exist?format=geojson", nil)
	rec := httptest.NewRecorder()
	s.handleExport(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleExportGeoPackage(t *testing.T) {
	s := newTestServer(t, stubLocator{})
	body, _ := json.Marshal(delineateRequest{GaugeID: "g1", Lat: 0.5, Lng: 0.5})
	s.handleDelineate(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/delineate", bytes.NewReader(body)))

	req := httptest.NewRequest(http.MethodGet, "/export/g1?format=geopackage", nil)
	rec := httptest.NewRecorder()
	s.handleExport(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected non-empty geopackage body")
	}
}

func TestCORSOriginsFromEnv(t *testing.T) {
	t.Setenv("TEST_CORS_ORIGINS", "https://a.example, https://b.example")
	got := CORSOriginsFromEnv("TEST_CORS_ORIGINS")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", got)
	}
}
