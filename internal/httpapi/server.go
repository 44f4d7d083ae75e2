// Package httpapi implements the HTTP facade (C10): POST /delineate,
// GET /health, GET /cache/stats, DELETE /cache/{gauge_id}, and
// GET /export/{gauge_id} (spec.md §4.10).
package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/merit-hydro/delineator/internal/cache"
	"github.com/merit-hydro/delineator/internal/delineate"
	"github.com/merit-hydro/delineator/internal/merit"
)

// requestIDHeader is the response header each request's generated ID
// is echoed on, so a caller can correlate a response with this
// server's own logs.
const requestIDHeader = "X-Request-Id"

// DefaultMaxConcurrentDelineations bounds in-flight heavy work so
// concurrent raster windows don't exhaust memory (spec.md §5).
const DefaultMaxConcurrentDelineations = 4

// BasinLocator resolves an outlet point to its basin code. Satisfied
// by *locator.Locator; narrowed to an interface, the same testability
// pattern internal/batch uses for its own collaborators.
type BasinLocator interface {
	PointToBasin(lng, lat float64) (string, error)
}

// BasinStore loads (and caches) per-basin vector data. Satisfied by
// *merit.Store.
type BasinStore interface {
	GetOrLoad(basinCode string) (*merit.BasinData, error)
}

// Server wires the basin store, locator, cache, and orchestrator
// options into HTTP handlers: thin handlers, with delineation itself
// delegated to the collaborators below.
type Server struct {
	Store       BasinStore
	Locator     BasinLocator
	Cache       *cache.Cache
	RasterPaths delineate.RasterPaths
	Options     delineate.Options
	CORSOrigins []string
	Log         *slog.Logger

	sem chan struct{}
}

// NewServer builds a Server. corsOrigins, if empty, defaults to
// localhost per spec.md §4.10.
func NewServer(store BasinStore, loc BasinLocator, c *cache.Cache, paths delineate.RasterPaths, opts delineate.Options, corsOrigins []string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost", "http://localhost:3000"}
	}
	return &Server{
		Store:       store,
		Locator:     loc,
		Cache:       c,
		RasterPaths: paths,
		Options:     opts,
		CORSOrigins: corsOrigins,
		Log:         log,
		sem:         make(chan struct{}, DefaultMaxConcurrentDelineations),
	}
}

// CORSOriginsFromEnv parses a comma-separated env var the way config.go
// reads its own comma-free env vars, split out here since this is the
// one setting that needs list parsing.
func CORSOriginsFromEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var origins []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/delineate", s.withRequestID(s.withCORS(s.handleDelineate)))
	mux.HandleFunc("/health", s.withRequestID(s.withCORS(s.handleHealth)))
	mux.HandleFunc("/cache/stats", s.withRequestID(s.withCORS(s.handleCacheStats)))
	mux.HandleFunc("/cache/", s.withRequestID(s.withCORS(s.handleCacheDelete)))
	mux.HandleFunc("/export/", s.withRequestID(s.withCORS(s.handleExport)))
	return mux
}

// withRequestID mints a request ID (the same uuid.New() the teacher's
// api.go uses for job IDs) and echoes it on the response so a caller
// can correlate this request with the server's own logs.
func (s *Server) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.New().String()
		w.Header().Set(requestIDHeader, reqID)
		next(w, r)
	}
}

// Start blocks serving HTTP on addr, mirroring api.go's Start shape.
func (s *Server) Start(addr string) error {
	s.Log.Info("starting delineation API server", "addr", addr)
	return http.ListenAndServe(addr, s.mux())
}

func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.CORSOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// logLine writes the per-request structured log line spec.md §4.10
// mandates: `{gauge_id} | {lat}, {lng} | {SUCCESS|ERROR} | {duration}s |
// cached={bool} | [error_code]`.
func (s *Server) logLine(gaugeID string, lat, lng float64, ok bool, dur time.Duration, cached bool, errorCode string) {
	status := "SUCCESS"
	if !ok {
		status = "ERROR"
	}
	msg := fmt.Sprintf("%s | %v, %v | %s | %.1fs | cached=%v", gaugeID, lat, lng, status, dur.Seconds(), cached)
	if errorCode != "" {
		msg += " | " + errorCode
	}
	if ok {
		s.Log.Info(msg)
	} else {
		s.Log.Error(msg)
	}
}
