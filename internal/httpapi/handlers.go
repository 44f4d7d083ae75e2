package httpapi

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/merit-hydro/delineator/internal/cache"
	"github.com/merit-hydro/delineator/internal/delineate"
	"github.com/merit-hydro/delineator/internal/delineateerr"
	"github.com/merit-hydro/delineator/internal/writer"
)

// handleDelineate handles POST /delineate. On a cache miss it dispatches
// the orchestrator through a bounded semaphore so concurrent heavy
// delineations can't exhaust memory (spec.md §5) — Go's net/http already
// runs every request on its own goroutine, so there is no shared event
// loop to protect; the semaphore is the idiomatic stand-in for the
// "worker thread dispatch" spec.md describes for an event-loop runtime.
func (s *Server) handleDelineate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req delineateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "", delineateerr.KindInvalidInput, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, req.GaugeID, delineateerr.KindInvalidInput, err.Error())
		return
	}

	start := time.Now()
	key := cache.Key(req.Lat, req.Lng, req.ForceLowRes, req.IncludeRivers)

	cached := true
	entry, err := s.Cache.GetOrLoad(key, func() (cache.Entry, error) {
		cached = false
		ws, err := s.runDelineation(req)
		if err != nil {
			return cache.Entry{}, err
		}
		raw, err := marshalWireWatershed(ws)
		if err != nil {
			return cache.Entry{}, err
		}
		return cache.Entry{
			CacheKey:  key,
			GaugeID:   req.GaugeID,
			Response:  raw,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Lat:       req.Lat,
			Lng:       req.Lng,
			AreaKM2:   ws.AreaKM2,
		}, nil
	})

	dur := time.Since(start)
	if err != nil {
		kind := delineateerr.KindOf(err)
		s.logLine(req.GaugeID, req.Lat, req.Lng, false, dur, cached, delineateerr.WireCode(kind))
		s.writeError(w, req.GaugeID, kind, err.Error())
		return
	}

	s.logLine(req.GaugeID, req.Lat, req.Lng, true, dur, cached, "")
	w.Header().Set("Content-Type", "application/json")

	// A cache hit's stored response may have been written under a
	// different caller's gauge_id, since the cache key is derived from
	// coordinates and options, not gauge_id (spec.md §4.7's Get()
	// contract). Re-stamp it for this caller before serving.
	if cached {
		var wire wireWatershed
		if err := json.Unmarshal(entry.Response, &wire); err != nil {
			http.Error(w, fmt.Sprintf("corrupt cache entry: %v", err), http.StatusInternalServerError)
			return
		}
		wire.GaugeID = req.GaugeID
		wire.Cached = true
		raw, err := json.Marshal(wire)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write(raw)
		return
	}

	w.Write(entry.Response)
}

func (s *Server) runDelineation(req delineateRequest) (*delineate.Watershed, error) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	basinCode, err := s.Locator.PointToBasin(req.Lng, req.Lat)
	if err != nil {
		return nil, err
	}
	basin, err := s.Store.GetOrLoad(basinCode)
	if err != nil {
		return nil, err
	}

	opts := s.Options
	if req.ForceLowRes {
		opts.UseHighRes = false
	}
	opts.IncludeRivers = req.IncludeRivers

	outlet := delineate.Outlet{GaugeID: req.GaugeID, GaugeName: req.GaugeName, Lat: req.Lat, Lng: req.Lng}
	return delineate.Delineate(outlet, basin, s.RasterPaths, opts, s.Log)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.Cache.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleCacheDelete handles DELETE /cache/{gauge_id}.
func (s *Server) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	gaugeID := strings.TrimPrefix(r.URL.Path, "/cache/")
	if gaugeID == "" {
		http.Error(w, "gauge_id is required", http.StatusBadRequest)
		return
	}
	n, err := s.Cache.DeleteByGaugeID(gaugeID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"deleted": n})
}

// handleExport handles GET /export/{gauge_id}?format=geojson|shapefile|geopackage.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	gaugeID := strings.TrimPrefix(r.URL.Path, "/export/")
	if gaugeID == "" {
		http.Error(w, "gauge_id is required", http.StatusBadRequest)
		return
	}

	entries, err := s.Cache.GetByGaugeID(gaugeID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(entries) == 0 {
		s.writeError(w, gaugeID, delineateerr.KindWatershedNotFound, "no cached watershed for this gauge_id")
		return
	}
	latest := entries[len(entries)-1]

	var wire wireWatershed
	if err := json.Unmarshal(latest.Response, &wire); err != nil {
		http.Error(w, fmt.Sprintf("corrupt cache entry: %v", err), http.StatusInternalServerError)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "geojson"
	}

	switch format {
	case "geojson":
		w.Header().Set("Content-Type", "application/geo+json")
		json.NewEncoder(w).Encode(wire)
	case "shapefile", "geopackage":
		s.exportBinary(w, gaugeID, wire, format)
	default:
		http.Error(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
	}
}

func (s *Server) exportBinary(w http.ResponseWriter, gaugeID string, wire wireWatershed, format string) {
	rec := writer.Record{
		GaugeID:       wire.GaugeID,
		GaugeName:     wire.GaugeName,
		GaugeLat:      wire.OrigLat,
		GaugeLon:      wire.OrigLng,
		SnapLat:       wire.SnapLat,
		SnapLon:       wire.SnapLng,
		SnapDistanceM: wire.SnapDistanceM,
		Country:       wire.Country,
		AreaKM2:       wire.AreaKM2,
		Geometry:      wire.Geometry.Geometry(),
	}

	tmpDir, err := os.MkdirTemp("", "export-"+gaugeID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(tmpDir)

	if format == "geopackage" {
		path := tmpDir + "/" + gaugeID + ".gpkg"
		if err := writer.WriteGeoPackage(path, []writer.Record{rec}, writer.ModeCreate); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		f, err := os.Open(path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer f.Close()
		w.Header().Set("Content-Type", "application/geopackage+sqlite3")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gpkg", gaugeID))
		io.Copy(w, f)
		return
	}

	if err := writer.WriteShapefile(tmpDir, gaugeID, []writer.Record{rec}, writer.ModeCreate); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s_shapefile.zip", gaugeID))
	if err := zipShapefile(w, tmpDir, gaugeID); err != nil {
		s.Log.Error("exporting shapefile zip", "gauge_id", gaugeID, "error", err)
	}
}

// zipShapefile bundles the .shp/.shx/.dbf triple into a zip archive
// written directly to w. archive/zip is stdlib; no zip-writing library
// appears anywhere in the retrieved pack, and this is a flat,
// compression-agnostic bundling task stdlib already covers completely.
func zipShapefile(w io.Writer, dir, basename string) error {
	zw := zip.NewWriter(w)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		if err := addFileToZip(zw, filepath.Join(dir, basename+ext), basename+ext); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addFileToZip(zw *zip.Writer, path, nameInZip string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	entry, err := zw.Create(nameInZip)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}

func (s *Server) writeError(w http.ResponseWriter, gaugeID string, kind delineateerr.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(delineateerr.HTTPStatus(kind))
	json.NewEncoder(w).Encode(errorResponse{
		GaugeID:      gaugeID,
		Status:       "error",
		ErrorCode:    delineateerr.WireCode(kind),
		ErrorMessage: message,
	})
}
