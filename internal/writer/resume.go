package writer

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// CheckOutputExists reports whether a GeoPackage already exists at
// path, for the batch driver's skip_existing/force mode decision.
func CheckOutputExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadExistingGaugeIDs opens an existing GeoPackage and returns the set
// of gauge IDs already written to its `watersheds` table, so a resumed
// batch run can skip them.
func ReadExistingGaugeIDs(path string) (map[string]bool, error) {
	ids := make(map[string]bool)
	if !CheckOutputExists(path) {
		return ids, nil
	}

	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("writer: opening %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT gauge_id FROM watersheds`)
	if err != nil {
		return nil, fmt.Errorf("writer: reading gauge IDs from %s: %w", path, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("writer: scanning gauge ID: %w", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("writer: reading gauge IDs from %s: %w", path, err)
	}
	return ids, nil
}
