// Command batch runs the batch driver (C9) against a TOML master
// config across one or more regions, following main.go's flag-based
// CLI and signal-handling style.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/merit-hydro/delineator/internal/appconfig"
	"github.com/merit-hydro/delineator/internal/batch"
	"github.com/merit-hydro/delineator/internal/batchconfig"
	"github.com/merit-hydro/delineator/internal/country"
	"github.com/merit-hydro/delineator/internal/delineate"
	"github.com/merit-hydro/delineator/internal/jobstore"
	"github.com/merit-hydro/delineator/internal/locator"
	"github.com/merit-hydro/delineator/internal/merit"
	"github.com/merit-hydro/delineator/internal/publish"
	"github.com/merit-hydro/delineator/internal/writer"
)

func main() {
	configPath := flag.String("config", ".env", "path to env config file")
	masterConfigPath := flag.String("master-config", "", "path to the batch master TOML config (required)")
	skipExisting := flag.Bool("skip-existing", false, "resume: skip gauge_ids already present in a region's output")
	force := flag.Bool("force", false, "overwrite existing region output instead of failing")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if *masterConfigPath == "" {
		slog.Error("-master-config is required")
		os.Exit(2)
	}
	if *skipExisting && *force {
		slog.Error("-skip-existing and -force are mutually exclusive")
		os.Exit(2)
	}

	appCfg, err := appconfig.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	masterCfg, err := batchconfig.LoadMasterConfig(*masterConfigPath)
	if err != nil {
		slog.Error("failed to load master config", "error", err)
		os.Exit(2)
	}

	dataDir := masterCfg.Settings.DataDir
	if dataDir == "" {
		dataDir = appCfg.DataDir
	}

	store, err := merit.NewStore(dataDir, logger)
	if err != nil {
		slog.Error("failed to initialise basin store", "error", err)
		os.Exit(2)
	}
	loc := locator.New(dataDir, logger)
	paths := merit.Paths{DataDir: dataDir}

	var countryLookup country.Lookup = country.None{}
	if appCfg.CountryDBDSN != "" {
		pg, err := country.NewPostgresLookup(appCfg.CountryDBDSN, "admin_boundaries")
		if err != nil {
			slog.Error("failed to connect country lookup database", "error", err)
			os.Exit(2)
		}
		defer pg.Close()
		countryLookup = pg
	}

	opts := delineate.DefaultOptions()
	opts.HighResAreaLimitKM2 = masterCfg.Settings.HighResAreaLimitKM2
	opts.FillThresholdPixels = masterCfg.Settings.FillThresholdPixels
	opts.IncludeRivers = masterCfg.Settings.IncludeRivers
	opts.Country = countryLookup

	mode := batch.ModeFailIfExists
	switch {
	case *skipExisting:
		mode = batch.ModeSkipExisting
	case *force:
		mode = batch.ModeForce
	}

	driver := &batch.Driver{
		Locator:     loc,
		Store:       store,
		RasterPaths: paths,
		Layout:      writer.Layout{OutDir: masterCfg.Settings.OutputDir},
		Options:     opts,
		MaxFails:    masterCfg.Settings.MaxFails,
		Mode:        mode,
		Log:         logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var js *jobstore.Store
	if dsn := os.Getenv("JOBSTORE_DSN"); dsn != "" {
		js, err = jobstore.Open(dsn)
		if err != nil {
			slog.Error("failed to open jobstore, continuing without run tracking", "error", err)
			js = nil
		} else {
			defer js.Close()
			runID, err := js.StartRun(ctx, *masterConfigPath, len(masterCfg.Regions))
			if err != nil {
				slog.Error("failed to start jobstore run, continuing without run tracking", "error", err)
				js = nil
			} else {
				driver.Reporter = js
				driver.RunID = runID
			}
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("received shutdown signal, finishing current outlet before interrupting")
		cancel()
	}()

	code, stats, err := driver.Run(ctx, masterCfg)
	if err != nil {
		slog.Error("batch run failed", "error", err)
		os.Exit(2)
	}

	if js != nil {
		if err := js.CompleteRun(context.Background(), driver.RunID, code, stats.Processed, stats.Failed, stats.Skipped); err != nil {
			slog.Warn("failed to record run completion in jobstore", "error", err)
		}
	}

	if bucket := os.Getenv("PUBLISH_S3_BUCKET"); bucket != "" && code != batch.ExitNoSuccesses {
		publishOutput(masterCfg, bucket)
	}

	slog.Info("batch run finished", "processed", stats.Processed, "failed", stats.Failed, "skipped", stats.Skipped, "exit_code", code)
	os.Exit(code)
}

// publishOutput uploads every region's output partition to the
// configured S3-compatible bucket. Failures are logged, not fatal —
// the local output layout written by the driver is always the
// authoritative result.
func publishOutput(masterCfg *batchconfig.MasterConfig, bucket string) {
	client, err := publish.NewClient(publish.Config{
		Endpoint:        os.Getenv("PUBLISH_S3_ENDPOINT"),
		Region:          os.Getenv("PUBLISH_S3_REGION"),
		Bucket:          bucket,
		BucketPath:      os.Getenv("PUBLISH_S3_BUCKET_PATH"),
		AccessKeyID:     os.Getenv("PUBLISH_S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("PUBLISH_S3_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		slog.Error("failed to initialise publish client, skipping upload", "error", err)
		return
	}

	layout := writer.Layout{OutDir: masterCfg.Settings.OutputDir}
	for _, region := range masterCfg.Regions {
		for _, dt := range []writer.DataType{writer.DataTypeGeoPackage, writer.DataTypeShapefiles} {
			dir := layout.RegionDir(region.Name, dt)
			if _, err := os.Stat(dir); err != nil {
				continue
			}
			files, bytes, err := client.UploadDirectory(context.Background(), dir, filepath.Join(region.Name, string(dt)))
			if err != nil {
				slog.Error("failed to publish region output", "region", region.Name, "data_type", dt, "error", err)
				continue
			}
			slog.Info("published region output", "region", region.Name, "data_type", dt, "files", files, "bytes", bytes)
		}
	}
}
