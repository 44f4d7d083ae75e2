// Command apiserver starts the synchronous HTTP delineation facade
// (C10), following main.go's cmdServe signal-handling/startup style.
package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/merit-hydro/delineator/internal/appconfig"
	"github.com/merit-hydro/delineator/internal/cache"
	"github.com/merit-hydro/delineator/internal/country"
	"github.com/merit-hydro/delineator/internal/delineate"
	"github.com/merit-hydro/delineator/internal/httpapi"
	"github.com/merit-hydro/delineator/internal/locator"
	"github.com/merit-hydro/delineator/internal/merit"
)

func main() {
	configPath := flag.String("config", ".env", "path to env config file")
	port := flag.Int("port", 8080, "port to listen on")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting watershed delineation API server", "port", *port, "data_dir", cfg.DataDir)

	store, err := merit.NewStore(cfg.DataDir, logger)
	if err != nil {
		slog.Error("failed to initialise basin store", "error", err)
		os.Exit(1)
	}
	loc := locator.New(cfg.DataDir, logger)
	paths := merit.Paths{DataDir: cfg.DataDir}

	c, err := cache.Open(cfg.CacheDBPath)
	if err != nil {
		slog.Error("failed to open result cache", "error", err, "path", filepath.Clean(cfg.CacheDBPath))
		os.Exit(1)
	}
	defer c.Close()

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
	opts.IncludeRivers = true
	opts.Country = countryLookup

	corsOrigins := httpapi.CORSOriginsFromEnv("CORS_ORIGINS")
	server := httpapi.NewServer(store, loc, c, paths, opts, corsOrigins, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(*port)
		if err := server.Start(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		slog.Error("server failed to start", "error", err)
		os.Exit(1)
	case sig := <-sigChan:
		slog.Info("received shutdown signal, stopping server", "signal", sig)
		os.Exit(0)
	}
}
