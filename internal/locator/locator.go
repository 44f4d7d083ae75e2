// Package locator maps a point or bounding box to the Pfafstetter
// Level-2 basin(s) it falls in, using a single pre-built basin-index
// polygon layer (spec.md §4.3, C3).
package locator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-shapefile"

	"github.com/merit-hydro/delineator/internal/delineateerr"
)

// pointExpandDeg is "≈111 m" at the equator, the amount a degenerate
// (point) query bbox is padded by in each direction so bbox queries and
// point queries share one code path (spec.md §4.3).
const pointExpandDeg = 0.001

type basinPolygon struct {
	code    string
	polygon orb.Polygon
	bound   orb.Bound
}

// Locator lazily loads the Level-2 basin layer once per process and
// answers bbox/point basin-membership queries against it.
type Locator struct {
	dataDir string
	log     *slog.Logger

	once   sync.Once
	loadErr error
	basins []basinPolygon
}

func New(dataDir string, log *slog.Logger) *Locator {
	if log == nil {
		log = slog.Default()
	}
	return &Locator{dataDir: dataDir, log: log}
}

func (l *Locator) ensureLoaded() error {
	l.once.Do(func() {
		l.basins, l.loadErr = l.load()
		if l.loadErr == nil {
			l.log.Info("loaded basin locator layer", "basins", len(l.basins))
		}
	})
	return l.loadErr
}

func (l *Locator) load() ([]basinPolygon, error) {
	dir := filepath.Join(l.dataDir, "shp", "basins_level2")
	const basename = "merit_hydro_vect_level2"

	shp, err := shapefile.ReadFS(os.DirFS(dir), basename)
	if err != nil {
		return nil, delineateerr.Wrap(delineateerr.KindDataMissing, "basin locator layer", err)
	}

	basins := make([]basinPolygon, 0, len(shp.SHP.Records))
	for i := range shp.SHP.Records {
		fields, g := shp.Record(i)
		code := fmt.Sprintf("%v", fields["BASIN"])
		poly, err := polygonFromGeom(g)
		if err != nil {
			return nil, delineateerr.Wrap(delineateerr.KindDataCorrupt, fmt.Sprintf("basin locator record %d", i), err)
		}
		basins = append(basins, basinPolygon{code: code, polygon: poly, bound: poly.Bound()})
	}
	return basins, nil
}

// BasinsForBBox returns the sorted, deduplicated list of basin codes
// whose polygon intersects the query box. A degenerate box (min == max on
// either axis) is expanded by pointExpandDeg so point queries share this
// path; inputs are clamped to WGS-84 ranges first; inverted bounds fail.
func (l *Locator) BasinsForBBox(minLon, minLat, maxLon, maxLat float64) ([]string, error) {
	minLon, maxLon = clamp(minLon, -180, 180), clamp(maxLon, -180, 180)
	minLat, maxLat = clamp(minLat, -90, 90), clamp(maxLat, -90, 90)

	if minLon > maxLon || minLat > maxLat {
		return nil, delineateerr.New(delineateerr.KindInvalidInput, "inverted bounding box")
	}

	isPoint := minLon == maxLon && minLat == maxLat
	pointLon, pointLat := minLon, minLat

	if minLon == maxLon {
		minLon -= pointExpandDeg
		maxLon += pointExpandDeg
	}
	if minLat == maxLat {
		minLat -= pointExpandDeg
		maxLat += pointExpandDeg
	}

	if err := l.ensureLoaded(); err != nil {
		return nil, err
	}

	query := orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}

	var hits []string
	for _, b := range l.basins {
		if !b.bound.Intersects(query) {
			continue
		}
		if isPoint {
			if !polygonContains(b.polygon, orb.Point{pointLon, pointLat}) {
				continue
			}
		}
		hits = append(hits, b.code)
	}
	sort.Strings(hits)
	return hits, nil
}

// PointToBasin is BasinsForBBox with min == max, returning a single code.
func (l *Locator) PointToBasin(lng, lat float64) (string, error) {
	codes, err := l.BasinsForBBox(lng, lat, lng, lat)
	if err != nil {
		return "", err
	}
	if len(codes) == 0 {
		return "", delineateerr.New(delineateerr.KindWatershedNotFound, "point does not fall within any known basin")
	}
	return codes[0], nil
}

// AllBasinCodes returns every basin code present in the loaded layer,
// sorted. The layer is the source of truth for "the externally defined
// set of 61 values" spec.md §3 describes — there is no separate static
// table to keep in sync with it.
func (l *Locator) AllBasinCodes() ([]string, error) {
	if err := l.ensureLoaded(); err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(l.basins))
	for _, b := range l.basins {
		codes = append(codes, b.code)
	}
	sort.Strings(codes)
	return codes, nil
}

// Validate checks that every code in codes is a syntactically valid
// Pfafstetter Level-2 code (two digits, 1..9, no zero) and, if the layer
// has been loaded, that it is actually one of the known basins. It
// returns an error listing every invalid code, not just the first.
func (l *Locator) Validate(codes []string) error {
	var invalid []string
	known, _ := l.AllBasinCodes() // best-effort; a load failure here still lets syntax checks run

	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}

	for _, c := range codes {
		if !isSyntacticallyValid(c) {
			invalid = append(invalid, c)
			continue
		}
		if len(knownSet) > 0 && !knownSet[c] {
			invalid = append(invalid, c)
		}
	}
	if len(invalid) > 0 {
		return delineateerr.New(delineateerr.KindInvalidInput, fmt.Sprintf("invalid basin codes: %v", invalid))
	}
	return nil
}

func isSyntacticallyValid(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < '1' || r > '9' {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
