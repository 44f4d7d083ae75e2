package writer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// WriteFailedCSV atomically (re)writes path with one row per failure,
// via a temp-file-then-rename so a crash mid-write never leaves a
// truncated FAILED.csv behind. encoding/csv is stdlib; no example repo
// or ecosystem library in the retrieved pack offers CSV writing beyond
// what the standard library already covers for this flat a format.
func WriteFailedCSV(path string, failures []FailureRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("writer: creating output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".failed-*.csv.tmp")
	if err != nil {
		return fmt.Errorf("writer: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{"region_name", "gauge_id", "lat", "lng", "error"}); err != nil {
		tmp.Close()
		return fmt.Errorf("writer: writing csv header: %w", err)
	}
	for _, f := range failures {
		row := []string{f.Region, f.GaugeID, strconv.FormatFloat(f.Lat, 'f', 6, 64), strconv.FormatFloat(f.Lng, 'f', 6, 64), f.Reason}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("writer: writing csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("writer: flushing csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writer: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("writer: renaming temp file into place: %w", err)
	}
	return nil
}

// LoadFailedGaugeIDs reads an existing FAILED.csv (if any) and returns
// the set of gauge IDs already recorded as failed, for batch resume.
func LoadFailedGaugeIDs(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("writer: opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("writer: reading %s: %w", path, err)
	}

	ids := make(map[string]bool)
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue // header
		}
		ids[row[1]] = true
	}
	return ids, nil
}
