package country

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresLookup resolves a country name via a PostGIS-backed admin
// boundary table (admin_level=2 polygons, the OSM convention for
// country-level boundaries), the way a reverse-geocoding side table is
// typically queried alongside a spatial dataset.
type PostgresLookup struct {
	db    *sql.DB
	table string
}

// NewPostgresLookup opens (lazily, via database/sql's connection pool)
// a PostGIS database containing a table with a `way` geometry column and
// a `name`/`admin_level` column pair, as OSM-derived boundary extracts
// commonly ship.
func NewPostgresLookup(dataSourceName, table string) (*PostgresLookup, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("country: opening postgres: %w", err)
	}
	return &PostgresLookup{db: db, table: table}, nil
}

func (p *PostgresLookup) Close() error { return p.db.Close() }

func (p *PostgresLookup) Country(lat, lng float64) (string, error) {
	query := fmt.Sprintf(`
		SELECT name FROM %s
		WHERE boundary = 'administrative'
		  AND admin_level = '2'
		  AND ST_Contains(way, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		LIMIT 1
	`, p.table)

	var name string
	err := p.db.QueryRow(query, lng, lat).Scan(&name)
	if err == sql.ErrNoRows {
		return Unknown, nil
	}
	if err != nil {
		return Unknown, fmt.Errorf("country: lookup: %w", err)
	}
	return name, nil
}
