// Package jobstore is an optional Postgres-backed observability store
// for batch runs (C9): a second, independent database connection that
// a batch.Driver can report outlet-level progress to, so a fleet of
// batch runs can be monitored centrally without parsing log files or
// the region FAILED.csv files. Entirely optional — a driver with no
// Store configured behaves exactly as if this package didn't exist.
package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Status mirrors the per-outlet lifecycle states recorded in
// OutletJob.Status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Store wraps a Postgres connection used purely for batch-run
// observability; it has no bearing on delineation correctness.
type Store struct {
	conn *sql.DB
}

// Open connects to dsn and verifies it's reachable.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("jobstore: opening connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("jobstore: pinging database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{conn: db}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// StartRun registers a new batch run and returns its generated ID.
// The ID is minted in Go via uuid.New() rather than left to Postgres's
// gen_random_uuid(), the same split the teacher's api.go uses: the
// caller (batch.Driver) needs the run ID before the row is
// necessarily committed, to pass to Reporter calls made concurrently
// with the insert's own transaction.
func (s *Store) StartRun(ctx context.Context, masterConfigPath string, regionCount int) (string, error) {
	runID := uuid.New().String()
	query := `
		INSERT INTO batch_run (id, master_config_path, region_count, status, started_at)
		VALUES ($1, $2, $3, 'running', NOW())
	`
	if _, err := s.conn.ExecContext(ctx, query, runID, masterConfigPath, regionCount); err != nil {
		return "", fmt.Errorf("jobstore: starting run: %w", err)
	}
	return runID, nil
}

// CompleteRun records the final outcome of a batch run.
func (s *Store) CompleteRun(ctx context.Context, runID string, exitCode, processed, failed, skipped int) error {
	query := `
		UPDATE batch_run
		SET status = 'completed', exit_code = $1, processed = $2, failed = $3, skipped = $4, completed_at = NOW()
		WHERE id = $5
	`
	_, err := s.conn.ExecContext(ctx, query, exitCode, processed, failed, skipped, runID)
	if err != nil {
		return fmt.Errorf("jobstore: completing run: %w", err)
	}
	return nil
}

// RecordOutletStart upserts a pending->running transition for one
// outlet within a run's region.
func (s *Store) RecordOutletStart(ctx context.Context, runID, region, gaugeID string) error {
	query := `
		INSERT INTO outlet_job (run_id, region, gauge_id, status, started_at)
		VALUES ($1, $2, $3, 'running', NOW())
		ON CONFLICT (run_id, region, gauge_id)
		DO UPDATE SET status = 'running', started_at = NOW()
	`
	_, err := s.conn.ExecContext(ctx, query, runID, region, gaugeID)
	if err != nil {
		return fmt.Errorf("jobstore: recording outlet start: %w", err)
	}
	return nil
}

// RecordOutletResult records the terminal status of one outlet:
// completed (errorReason == "") or failed (errorReason from
// delineateerr.Kind).
func (s *Store) RecordOutletResult(ctx context.Context, runID, region, gaugeID, errorReason string) error {
	status := StatusCompleted
	if errorReason != "" {
		status = StatusFailed
	}
	query := `
		UPDATE outlet_job
		SET status = $1, error_reason = $2, completed_at = NOW()
		WHERE run_id = $3 AND region = $4 AND gauge_id = $5
	`
	_, err := s.conn.ExecContext(ctx, query, status, errorReason, runID, region, gaugeID)
	if err != nil {
		return fmt.Errorf("jobstore: recording outlet result: %w", err)
	}
	return nil
}

// RunSummary is a point-in-time view of a batch run's progress.
type RunSummary struct {
	ID          string
	Status      string
	RegionCount int
	Processed   int
	Failed      int
	Skipped     int
	StartedAt   time.Time
	CompletedAt sql.NullTime
}

// GetRun retrieves the current state of a batch run.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	query := `
		SELECT id, status, region_count, processed, failed, skipped, started_at, completed_at
		FROM batch_run
		WHERE id = $1
	`
	r := &RunSummary{}
	err := s.conn.QueryRowContext(ctx, query, runID).Scan(
		&r.ID, &r.Status, &r.RegionCount, &r.Processed, &r.Failed, &r.Skipped,
		&r.StartedAt, &r.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("jobstore: run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: querying run: %w", err)
	}
	return r, nil
}
