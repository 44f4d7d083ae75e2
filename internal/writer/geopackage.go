package writer

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
)

const gpkgSchema = `
CREATE TABLE IF NOT EXISTS gpkg_spatial_ref_sys (
	srs_name TEXT NOT NULL, srs_id INTEGER NOT NULL PRIMARY KEY,
	organization TEXT NOT NULL, organization_coordsys_id INTEGER NOT NULL,
	definition TEXT NOT NULL, description TEXT
);
CREATE TABLE IF NOT EXISTS gpkg_contents (
	table_name TEXT NOT NULL PRIMARY KEY, data_type TEXT NOT NULL,
	identifier TEXT UNIQUE, description TEXT DEFAULT '',
	last_change TEXT NOT NULL, min_x REAL, min_y REAL, max_x REAL, max_y REAL,
	srs_id INTEGER
);
CREATE TABLE IF NOT EXISTS gpkg_geometry_columns (
	table_name TEXT NOT NULL, column_name TEXT NOT NULL, geometry_type_name TEXT NOT NULL,
	srs_id INTEGER NOT NULL, z TINYINT NOT NULL, m TINYINT NOT NULL,
	PRIMARY KEY (table_name, column_name)
);
CREATE TABLE IF NOT EXISTS watersheds (
	fid INTEGER PRIMARY KEY AUTOINCREMENT,
	geom BLOB,
	gauge_id TEXT, gauge_name TEXT,
	gauge_lat REAL, gauge_lon REAL,
	snap_lat REAL, snap_lon REAL,
	snap_distance_m REAL, country TEXT, area_km2 REAL
);
`

// WriteGeoPackage creates (or replaces, per mode) a GeoPackage at path
// containing one `watersheds` feature table.
func WriteGeoPackage(path string, records []Record, mode Mode) error {
	if mode == ModeOverwrite {
		os.Remove(path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("writer: opening geopackage: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(gpkgSchema); err != nil {
		return fmt.Errorf("writer: creating geopackage schema: %w", err)
	}

	if err := registerGpkgMetadata(db, records); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("writer: begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO watersheds
			(geom, gauge_id, gauge_name, gauge_lat, gauge_lon, snap_lat, snap_lon, snap_distance_m, country, area_km2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("writer: preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		geomBlob, err := encodeGeoPackageBinary(r.Geometry, 4326)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("writer: encoding geometry for %s: %w", r.GaugeID, err)
		}
		if _, err := stmt.Exec(geomBlob, r.GaugeID, r.GaugeName, r.GaugeLat, r.GaugeLon,
			r.SnapLat, r.SnapLon, r.SnapDistanceM, r.Country, r.AreaKM2); err != nil {
			tx.Rollback()
			return fmt.Errorf("writer: inserting %s: %w", r.GaugeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("writer: committing geopackage: %w", err)
	}
	return nil
}

func registerGpkgMetadata(db *sql.DB, records []Record) error {
	_, err := db.Exec(`INSERT OR IGNORE INTO gpkg_spatial_ref_sys
		(srs_name, srs_id, organization, organization_coordsys_id, definition)
		VALUES ('WGS 84', 4326, 'EPSG', 4326, 'GEOGCS["WGS 84"]')`)
	if err != nil {
		return fmt.Errorf("writer: registering srs: %w", err)
	}

	minX, minY, maxX, maxY := boundOf(records)
	_, err = db.Exec(`INSERT OR REPLACE INTO gpkg_contents
		(table_name, data_type, identifier, last_change, min_x, min_y, max_x, max_y, srs_id)
		VALUES ('watersheds', 'features', 'watersheds', ?, ?, ?, ?, ?, 4326)`,
		time.Now().UTC().Format(time.RFC3339), minX, minY, maxX, maxY)
	if err != nil {
		return fmt.Errorf("writer: registering contents: %w", err)
	}

	_, err = db.Exec(`INSERT OR REPLACE INTO gpkg_geometry_columns
		(table_name, column_name, geometry_type_name, srs_id, z, m)
		VALUES ('watersheds', 'geom', 'MULTIPOLYGON', 4326, 0, 0)`)
	if err != nil {
		return fmt.Errorf("writer: registering geometry column: %w", err)
	}
	return nil
}

func boundOf(records []Record) (minX, minY, maxX, maxY float64) {
	minX, minY, maxX, maxY = math.MaxFloat64, math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64
	for _, r := range records {
		b := r.Geometry.Bound()
		minX, minY = math.Min(minX, b.Min[0]), math.Min(minY, b.Min[1])
		maxX, maxY = math.Max(maxX, b.Max[0]), math.Max(maxY, b.Max[1])
	}
	if minX > maxX {
		return 0, 0, 0, 0
	}
	return
}

// encodeGeoPackageBinary wraps a WKB geometry in the GeoPackage Binary
// (GPB) header: magic "GP", version, flags (no envelope, little-endian
// WKB), srs_id, then the WKB body. Header layout grounded on
// `kartoza-DecisionTheatre/internal/geodata/gpkg_store.go`'s
// `gpbToGeoJSON` decoder, which documents the same 8-byte header this
// function produces the encoding side of.
func encodeGeoPackageBinary(g orb.Geometry, srsID int32) ([]byte, error) {
	wkbBody, err := encodeWKB(g)
	if err != nil {
		return nil, err
	}
	header := make([]byte, 8)
	header[0], header[1] = 'G', 'P'
	header[2] = 0    // version
	header[3] = 0x01 // flags: bit0=1 little-endian, envelope indicator bits left 0 (no envelope)
	binary.LittleEndian.PutUint32(header[4:8], uint32(srsID))
	return append(header, wkbBody...), nil
}

const (
	wkbPolygon      = 3
	wkbMultiPolygon = 6
)

// encodeWKB hand-encodes Polygon/MultiPolygon as little-endian WKB.
// No WKB-writing library appears in the example pack (the reference
// gpkg_store.go only decodes); this mirrors that file's own WKB byte
// layout in the write direction.
func encodeWKB(g orb.Geometry) ([]byte, error) {
	switch v := g.(type) {
	case orb.Polygon:
		return encodeWKBPolygon(v), nil
	case orb.MultiPolygon:
		return encodeWKBMultiPolygon(v), nil
	default:
		return nil, fmt.Errorf("writer: unsupported geometry type %T", g)
	}
}

func encodeWKBPolygon(p orb.Polygon) []byte {
	buf := []byte{1} // little-endian byte order marker
	buf = appendUint32(buf, wkbPolygon)
	buf = appendUint32(buf, uint32(len(p)))
	for _, ring := range p {
		buf = appendRing(buf, ring)
	}
	return buf
}

func encodeWKBMultiPolygon(mp orb.MultiPolygon) []byte {
	buf := []byte{1}
	buf = appendUint32(buf, wkbMultiPolygon)
	buf = appendUint32(buf, uint32(len(mp)))
	for _, p := range mp {
		buf = append(buf, encodeWKBPolygon(p)...)
	}
	return buf
}

func appendRing(buf []byte, ring orb.Ring) []byte {
	buf = appendUint32(buf, uint32(len(ring)))
	for _, pt := range ring {
		buf = appendFloat64(buf, pt[0])
		buf = appendFloat64(buf, pt[1])
	}
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendFloat64(buf []byte, v float64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	return append(buf, b[:]...)
}
