// Package batch implements the batch driver (C9): iterates outlets
// across regions, loads basin data lazily via the C2 store, and
// applies resume/fail-budget/partitioned-output semantics (spec.md §8).
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/merit-hydro/delineator/internal/batchconfig"
	"github.com/merit-hydro/delineator/internal/delineate"
	"github.com/merit-hydro/delineator/internal/delineateerr"
	"github.com/merit-hydro/delineator/internal/merit"
	"github.com/merit-hydro/delineator/internal/writer"
)

// BasinLocator resolves an outlet point to its Pfafstetter basin code.
// Satisfied by *locator.Locator; narrowed to an interface so the driver
// can be tested without a loaded shapefile layer.
type BasinLocator interface {
	PointToBasin(lng, lat float64) (string, error)
}

// BasinStore loads (and caches) per-basin vector data. Satisfied by
// *merit.Store.
type BasinStore interface {
	GetOrLoad(basinCode string) (*merit.BasinData, error)
}

// Reporter mirrors outlet-level progress to an external observability
// store. Satisfied by *jobstore.Store; a Driver with no Reporter set
// behaves exactly as if the run were unobserved.
type Reporter interface {
	RecordOutletStart(ctx context.Context, runID, region, gaugeID string) error
	RecordOutletResult(ctx context.Context, runID, region, gaugeID, errorReason string) error
}

// Exit codes, per spec.md §8.
const (
	ExitAllSuccess  = 0
	ExitPartial     = 1
	ExitNoSuccesses = 2
	ExitInterrupted = 130
)

// Mode selects how a region whose output already exists is treated.
// SkipExisting and Force are mutually exclusive; the zero value is the
// default "fail if region output already exists".
type Mode int

const (
	ModeFailIfExists Mode = iota
	ModeSkipExisting
	ModeForce
)

// Stats tallies one batch run's outcome across all regions.
type Stats struct {
	Processed int
	Failed    int
	Skipped   int
}

// Driver ties the locator (C3), basin store (C2), orchestrator (C6),
// and output writer (C8) together into a multi-outlet run.
type Driver struct {
	Locator     BasinLocator
	Store       BasinStore
	RasterPaths delineate.RasterPaths
	Layout      writer.Layout
	Options     delineate.Options
	MaxFails    int
	Mode        Mode
	Log         *slog.Logger

	// Reporter and RunID are both optional; when Reporter is nil, no
	// outlet-level progress is mirrored anywhere outside this run's own
	// return value and the GeoPackage/shapefile/FAILED.csv it writes.
	Reporter Reporter
	RunID    string
}

// Run processes every region in cfg in order, writing one GeoPackage
// and shapefile pair per region and a single centralised FAILED.csv at
// the end. ctx cancellation (e.g. SIGINT) flushes the current region's
// in-memory results to a `_PARTIAL` output before returning.
func (d *Driver) Run(ctx context.Context, cfg *batchconfig.MasterConfig) (exitCode int, stats Stats, err error) {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	layout := d.Layout

	var allFailures []writer.FailureRecord

	for _, region := range cfg.Regions {
		outletFile, err := batchconfig.LoadOutletFile(region.OutletsPath)
		if err != nil {
			return ExitNoSuccesses, stats, fmt.Errorf("batch: region %s: %w", region.Name, err)
		}

		existing := map[string]bool{}
		gpkgPath := layout.GeoPackagePath(region.Name)
		switch d.Mode {
		case ModeFailIfExists:
			if writer.CheckOutputExists(gpkgPath) {
				return ExitNoSuccesses, stats, fmt.Errorf("batch: region %s: output already exists at %s (use skip_existing or force)", region.Name, gpkgPath)
			}
		case ModeSkipExisting:
			existing, err = writer.ReadExistingGaugeIDs(gpkgPath)
			if err != nil {
				return ExitNoSuccesses, stats, fmt.Errorf("batch: region %s: %w", region.Name, err)
			}
		case ModeForce:
			// overwrite: proceed, WriteGeoPackage below uses ModeOverwrite.
		}

		var records []writer.Record
		interrupted := false

	outletLoop:
		for _, o := range outletFile.Outlets {
			select {
			case <-ctx.Done():
				interrupted = true
				break outletLoop
			default:
			}

			if existing[o.GaugeID] {
				stats.Skipped++
				continue
			}

			d.reportStart(ctx, region.Name, o.GaugeID)

			basinCode, err := d.Locator.PointToBasin(o.Lng, o.Lat)
			if err != nil {
				stats.Failed++
				allFailures = append(allFailures, writer.FailureRecord{Region: region.Name, GaugeID: o.GaugeID, Lat: o.Lat, Lng: o.Lng, Reason: err.Error()})
				d.reportResult(ctx, region.Name, o.GaugeID, err.Error())
				if stats.Failed >= d.MaxFails {
					break outletLoop
				}
				continue
			}

			basin, err := d.Store.GetOrLoad(basinCode)
			if err != nil {
				stats.Failed++
				allFailures = append(allFailures, writer.FailureRecord{Region: region.Name, GaugeID: o.GaugeID, Lat: o.Lat, Lng: o.Lng, Reason: err.Error()})
				d.reportResult(ctx, region.Name, o.GaugeID, err.Error())
				if stats.Failed >= d.MaxFails {
					break outletLoop
				}
				continue
			}

			ws, err := delineate.Delineate(delineate.Outlet{GaugeID: o.GaugeID, GaugeName: o.GaugeName, Lat: o.Lat, Lng: o.Lng}, basin, d.RasterPaths, d.Options, log)
			if err != nil {
				stats.Failed++
				reason := string(delineateerr.KindOf(err))
				allFailures = append(allFailures, writer.FailureRecord{Region: region.Name, GaugeID: o.GaugeID, Lat: o.Lat, Lng: o.Lng, Reason: reason})
				d.reportResult(ctx, region.Name, o.GaugeID, reason)
				if stats.Failed >= d.MaxFails {
					log.Error("batch: max_fails exceeded, aborting region", "region", region.Name, "failed", stats.Failed)
					break outletLoop
				}
				continue
			}

			d.reportResult(ctx, region.Name, o.GaugeID, "")
			records = append(records, toWriterRecord(ws))
			stats.Processed++
		}

		outPath := gpkgPath
		gpkgMode := writer.ModeCreate
		switch d.Mode {
		case ModeSkipExisting:
			gpkgMode = writer.ModeAppend
		case ModeForce:
			gpkgMode = writer.ModeOverwrite
		}
		if interrupted {
			outPath = layout.PartialGeoPackagePath(region.Name)
		}

		if len(records) > 0 {
			if err := writer.WriteGeoPackage(outPath, records, gpkgMode); err != nil {
				return ExitNoSuccesses, stats, fmt.Errorf("batch: region %s: writing output: %w", region.Name, err)
			}
			shpDir, shpBase := layout.ShapefileBase(region.Name)
			if interrupted {
				shpBase += "_PARTIAL"
			}
			if err := writer.WriteShapefile(shpDir, shpBase, records, gpkgMode); err != nil {
				return ExitNoSuccesses, stats, fmt.Errorf("batch: region %s: writing shapefile: %w", region.Name, err)
			}
		}

		if interrupted {
			if err := writer.WriteFailedCSV(layout.FailedCSVPath(), allFailures); err != nil {
				log.Error("batch: failed to flush FAILED.csv on interrupt", "error", err)
			}
			return ExitInterrupted, stats, nil
		}
	}

	if err := writer.WriteFailedCSV(layout.FailedCSVPath(), allFailures); err != nil {
		return ExitNoSuccesses, stats, fmt.Errorf("batch: writing FAILED.csv: %w", err)
	}

	switch {
	case stats.Processed == 0:
		return ExitNoSuccesses, stats, nil
	case stats.Failed > 0:
		return ExitPartial, stats, nil
	default:
		return ExitAllSuccess, stats, nil
	}
}

func (d *Driver) reportStart(ctx context.Context, region, gaugeID string) {
	if d.Reporter == nil {
		return
	}
	if err := d.Reporter.RecordOutletStart(ctx, d.RunID, region, gaugeID); err != nil {
		d.log().Warn("batch: failed to report outlet start", "region", region, "gauge_id", gaugeID, "error", err)
	}
}

func (d *Driver) reportResult(ctx context.Context, region, gaugeID, errorReason string) {
	if d.Reporter == nil {
		return
	}
	if err := d.Reporter.RecordOutletResult(ctx, d.RunID, region, gaugeID, errorReason); err != nil {
		d.log().Warn("batch: failed to report outlet result", "region", region, "gauge_id", gaugeID, "error", err)
	}
}

func (d *Driver) log() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

func toWriterRecord(ws *delineate.Watershed) writer.Record {
	return writer.Record{
		GaugeID:       ws.GaugeID,
		GaugeName:     ws.GaugeName,
		GaugeLat:      ws.OrigLat,
		GaugeLon:      ws.OrigLng,
		SnapLat:       ws.SnapLat,
		SnapLon:       ws.SnapLng,
		SnapDistanceM: ws.SnapDistanceM,
		Country:       ws.Country,
		AreaKM2:       ws.AreaKM2,
		Geometry:      ws.Geometry,
	}
}
