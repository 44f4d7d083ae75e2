// Command delineate runs a single watershed delineation against a
// MERIT-Hydro/MERIT-Basins data directory and prints the result as
// GeoJSON, following main.go's flag-based subcommand style.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulmach/orb/geojson"

	"github.com/merit-hydro/delineator/internal/appconfig"
	"github.com/merit-hydro/delineator/internal/country"
	"github.com/merit-hydro/delineator/internal/delineate"
	"github.com/merit-hydro/delineator/internal/delineateerr"
	"github.com/merit-hydro/delineator/internal/locator"
	"github.com/merit-hydro/delineator/internal/merit"
)

func main() {
	configPath := flag.String("config", ".env", "path to env config file")
	dataDir := flag.String("data-dir", "", "MERIT-Hydro/MERIT-Basins data directory (overrides MERIT_DATA_DIR)")
	gaugeID := flag.String("gauge-id", "", "gauge identifier")
	gaugeName := flag.String("gauge-name", "", "gauge display name")
	lat := flag.Float64("lat", 0, "outlet latitude")
	lng := flag.Float64("lng", 0, "outlet longitude")
	forceLowRes := flag.Bool("force-low-res", false, "skip the high-resolution raster sub-delineator")
	includeRivers := flag.Bool("include-rivers", false, "attach upstream river reaches to the result")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if *gaugeID == "" {
		slog.Error("-gauge-id is required")
		os.Exit(1)
	}

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	store, err := merit.NewStore(cfg.DataDir, logger)
	if err != nil {
		slog.Error("failed to initialise basin store", "error", err)
		os.Exit(1)
	}
	loc := locator.New(cfg.DataDir, logger)
	paths := merit.Paths{DataDir: cfg.DataDir}

	var countryLookup country.Lookup = country.None{}
	if cfg.CountryDBDSN != "" {
		pg, err := country.NewPostgresLookup(cfg.CountryDBDSN, "admin_boundaries")
		if err != nil {
			slog.Error("failed to connect country lookup database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		countryLookup = pg
	}

	opts := delineate.DefaultOptions()
	opts.HighResAreaLimitKM2 = cfg.HighResLimit
	opts.FillThresholdPixels = cfg.FillThreshold
	opts.IncludeRivers = *includeRivers
	opts.Country = countryLookup
	if *forceLowRes {
		opts.UseHighRes = false
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("received shutdown signal")
		cancel()
	}()

	basinCode, err := loc.PointToBasin(*lng, *lat)
	if err != nil {
		exitWithError(*gaugeID, err)
	}
	basin, err := store.Load(basinCode)
	if err != nil {
		exitWithError(*gaugeID, err)
	}

	outlet := delineate.Outlet{GaugeID: *gaugeID, GaugeName: *gaugeName, Lat: *lat, Lng: *lng}
	ws, err := delineate.Delineate(outlet, basin, paths, opts, logger)
	if err != nil {
		exitWithError(*gaugeID, err)
	}

	select {
	case <-ctx.Done():
		slog.Error("cancelled before output could be written")
		os.Exit(130)
	default:
	}

	out := map[string]any{
		"gauge_id":        ws.GaugeID,
		"gauge_name":      ws.GaugeName,
		"lat":             ws.OrigLat,
		"lng":             ws.OrigLng,
		"snap_lat":        ws.SnapLat,
		"snap_lng":        ws.SnapLng,
		"snap_distance_m": ws.SnapDistanceM,
		"country":         ws.Country,
		"area_km2":        ws.AreaKM2,
		"resolution":      ws.Resolution,
		"geometry":        geojson.NewGeometry(ws.Geometry),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		slog.Error("failed to encode output", "error", err)
		os.Exit(1)
	}
}

func exitWithError(gaugeID string, err error) {
	kind := delineateerr.KindOf(err)
	fmt.Fprintf(os.Stderr, "%s: %s: %v\n", gaugeID, delineateerr.WireCode(kind), err)
	os.Exit(1)
}
