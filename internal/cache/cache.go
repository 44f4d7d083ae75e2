// Package cache implements the result cache (C7): a SQLite-backed,
// keyed store so that repeat requests for the same outlet and request
// options skip re-running the delineation pipeline (spec.md §4.7).
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"
)

const schema = `
CREATE TABLE IF NOT EXISTS watershed_cache (
	cache_key     TEXT PRIMARY KEY,
	gauge_id      TEXT NOT NULL,
	response_json TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	lat           REAL NOT NULL,
	lng           REAL NOT NULL,
	area_km2      REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_watershed_cache_gauge_id ON watershed_cache(gauge_id);
`

// Entry is one cached delineation result. Response holds the already
// serialised watershed payload (whatever shape the caller puts in),
// kept opaque to the cache so it never needs to know about
// internal/delineate's types.
type Entry struct {
	CacheKey  string
	GaugeID   string
	Response  json.RawMessage
	CreatedAt string
	Lat, Lng  float64
	AreaKM2   float64
}

// Stats summarises the cache's contents.
type Stats struct {
	EntryCount   int
	TotalAreaKM2 float64
}

// Cache wraps a SQLite connection plus a singleflight group that
// collapses concurrent misses for the same key into one caller-supplied
// load, the same pattern the teacher's GDAL tile cache uses to avoid
// duplicate loads under concurrent access.
type Cache struct {
	db *sql.DB
	sf singleflight.Group
}

// Open creates (or reuses) a SQLite database file at path and ensures
// the schema exists.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("cache: opening sqlite3: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: creating schema: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Key builds the cache key spec.md §4.7 defines: outlet coordinates
// rounded to 6 decimal places plus the two request flags that change
// the resulting geometry.
func Key(lat, lng float64, forceLowRes, includeRivers bool) string {
	return fmt.Sprintf("%.6f,%.6f|force_low_res=%s|include_rivers=%s",
		lat, lng, boolFlag(forceLowRes), boolFlag(includeRivers))
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Get returns the cached entry for key, or (nil, false) on a miss.
func (c *Cache) Get(key string) (*Entry, bool, error) {
	row := c.db.QueryRow(`SELECT cache_key, gauge_id, response_json, created_at, lat, lng, area_km2
		FROM watershed_cache WHERE cache_key = ?`, key)
	e := &Entry{}
	err := row.Scan(&e.CacheKey, &e.GaugeID, &e.Response, &e.CreatedAt, &e.Lat, &e.Lng, &e.AreaKM2)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}
	return e, true, nil
}

// GetByGaugeID returns all cached entries recorded under gaugeID
// (a gauge may have multiple cached entries under different request
// option combinations).
func (c *Cache) GetByGaugeID(gaugeID string) ([]*Entry, error) {
	rows, err := c.db.Query(`SELECT cache_key, gauge_id, response_json, created_at, lat, lng, area_km2
		FROM watershed_cache WHERE gauge_id = ?`, gaugeID)
	if err != nil {
		return nil, fmt.Errorf("cache: get_by_gauge_id: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.CacheKey, &e.GaugeID, &e.Response, &e.CreatedAt, &e.Lat, &e.Lng, &e.AreaKM2); err != nil {
			return nil, fmt.Errorf("cache: get_by_gauge_id: scanning row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: get_by_gauge_id: %w", err)
	}
	return entries, nil
}

// Put inserts or idempotently replaces the entry for e.CacheKey.
func (c *Cache) Put(e Entry) error {
	_, err := c.db.Exec(`
		INSERT INTO watershed_cache (cache_key, gauge_id, response_json, created_at, lat, lng, area_km2)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			gauge_id = excluded.gauge_id,
			response_json = excluded.response_json,
			created_at = excluded.created_at,
			lat = excluded.lat,
			lng = excluded.lng,
			area_km2 = excluded.area_km2
	`, e.CacheKey, e.GaugeID, e.Response, e.CreatedAt, e.Lat, e.Lng, e.AreaKM2)
	if err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}

// DeleteByGaugeID removes every cached entry for gaugeID and reports
// how many rows were removed.
func (c *Cache) DeleteByGaugeID(gaugeID string) (int64, error) {
	res, err := c.db.Exec(`DELETE FROM watershed_cache WHERE gauge_id = ?`, gaugeID)
	if err != nil {
		return 0, fmt.Errorf("cache: delete_by_gauge_id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache: delete_by_gauge_id: %w", err)
	}
	return n, nil
}

// Stats reports the cache's current size.
func (c *Cache) Stats() (Stats, error) {
	row := c.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(area_km2), 0) FROM watershed_cache`)
	var s Stats
	if err := row.Scan(&s.EntryCount, &s.TotalAreaKM2); err != nil {
		return Stats{}, fmt.Errorf("cache: stats: %w", err)
	}
	return s, nil
}

// GetOrLoad returns the cached entry for key if present; otherwise it
// calls load exactly once even if GetOrLoad is called concurrently for
// the same key by multiple goroutines, stores the result, and returns
// it. load's own errors are not cached.
func (c *Cache) GetOrLoad(key string, load func() (Entry, error)) (*Entry, error) {
	if e, ok, err := c.Get(key); err != nil {
		return nil, err
	} else if ok {
		return e, nil
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if e, ok, err := c.Get(key); err != nil {
			return nil, err
		} else if ok {
			return e, nil
		}
		e, err := load()
		if err != nil {
			return nil, err
		}
		if err := c.Put(e); err != nil {
			return nil, err
		}
		return &e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}
