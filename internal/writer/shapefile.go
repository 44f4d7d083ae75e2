package writer

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
)

const (
	shpFileCode    = 9994
	shpVersion     = 1000
	shpTypePolygon = 5
)

// WriteShapefile writes dir/<basename>.shp, .shx, and .dbf describing
// records' geometry and attributes. Only simple and multi-part polygons
// are supported, matching this system's output (watershed boundaries
// are always polygonal). No shapefile-writing library exists anywhere
// in the example pack (twpayne/go-shapefile only reads), so this is a
// direct, from-scratch encoding of the published ESRI Shapefile
// Technical Description.
func WriteShapefile(dir, basename string, records []Record, mode Mode) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("writer: creating shapefile dir: %w", err)
	}

	ringSets := make([][]orb.Ring, len(records))
	for i, r := range records {
		rings, err := ringsOf(r.Geometry)
		if err != nil {
			return fmt.Errorf("writer: record %s: %w", r.GaugeID, err)
		}
		ringSets[i] = rings
	}

	shpBuf, shxBuf := encodeSHPAndSHX(ringSets)
	dbfBuf, err := encodeDBF(records)
	if err != nil {
		return err
	}

	shpPath := filepath.Join(dir, basename+".shp")
	shxPath := filepath.Join(dir, basename+".shx")
	dbfPath := filepath.Join(dir, basename+".dbf")

	if err := os.WriteFile(shpPath, shpBuf, 0o644); err != nil {
		return fmt.Errorf("writer: writing .shp: %w", err)
	}
	if err := os.WriteFile(shxPath, shxBuf, 0o644); err != nil {
		return fmt.Errorf("writer: writing .shx: %w", err)
	}
	if err := os.WriteFile(dbfPath, dbfBuf, 0o644); err != nil {
		return fmt.Errorf("writer: writing .dbf: %w", err)
	}
	return nil
}

// ringsOf flattens a Polygon or MultiPolygon into a single ring list;
// the shapefile polygon record format does not distinguish separate
// polygons within one feature, only rings with a winding-order
// convention (clockwise exterior, counter-clockwise hole).
func ringsOf(g orb.Geometry) ([]orb.Ring, error) {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Ring(v), nil
	case orb.MultiPolygon:
		var rings []orb.Ring
		for _, p := range v {
			rings = append(rings, p...)
		}
		return rings, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %T", g)
	}
}

func be32(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}

func le32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func le64f(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

// encodeSHPAndSHX builds the .shp main file and its .shx index. Each
// element of ringSets is one feature's rings; shapefile rings must be
// wound clockwise for exteriors and counter-clockwise for holes. Rings
// are written in the order and orientation ringsOf returns them; they
// are not reoriented to that convention, so a counter-clockwise exterior
// is written counter-clockwise.
func encodeSHPAndSHX(ringSets [][]orb.Ring) (shp, shx []byte) {
	var body []byte // everything after the shp/shx 100-byte headers
	var shxBody []byte

	minX, minY, maxX, maxY := math.MaxFloat64, math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64

	for i, rings := range ringSets {
		recordBody := encodePolygonRecord(rings, &minX, &minY, &maxX, &maxY)
		recNum := int32(i + 1)
		contentLenWords := int32(len(recordBody) / 2)

		offsetWords := int32(50 + len(body)/2) // 50 words = 100-byte header

		body = append(body, be32(recNum)...)
		body = append(body, be32(contentLenWords)...)
		body = append(body, recordBody...)

		shxBody = append(shxBody, be32(offsetWords)...)
		shxBody = append(shxBody, be32(contentLenWords)...)
	}

	if len(ringSets) == 0 {
		minX, minY, maxX, maxY = 0, 0, 0, 0
	}

	fileLenWords := int32(50 + len(body)/2)
	shpHeader := shapefileHeader(fileLenWords, minX, minY, maxX, maxY)
	shp = append(shpHeader, body...)

	shxLenWords := int32(50 + len(shxBody)/2)
	shxHeader := shapefileHeader(shxLenWords, minX, minY, maxX, maxY)
	shx = append(shxHeader, shxBody...)
	return shp, shx
}

func shapefileHeader(fileLenWords int32, minX, minY, maxX, maxY float64) []byte {
	h := make([]byte, 100)
	copy(h[0:4], be32(shpFileCode))
	copy(h[24:28], be32(fileLenWords))
	copy(h[28:32], le32(shpVersion))
	copy(h[32:36], le32(shpTypePolygon))
	copy(h[36:44], le64f(minX))
	copy(h[44:52], le64f(minY))
	copy(h[52:60], le64f(maxX))
	copy(h[60:68], le64f(maxY))
	return h
}

func encodePolygonRecord(rings []orb.Ring, minX, minY, maxX, maxY *float64) []byte {
	var buf []byte
	buf = append(buf, le32(shpTypePolygon)...)

	rMinX, rMinY, rMaxX, rMaxY := math.MaxFloat64, math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64
	numPoints := 0
	for _, ring := range rings {
		for _, pt := range ring {
			rMinX, rMinY = math.Min(rMinX, pt[0]), math.Min(rMinY, pt[1])
			rMaxX, rMaxY = math.Max(rMaxX, pt[0]), math.Max(rMaxY, pt[1])
			numPoints++
		}
	}
	*minX, *minY = math.Min(*minX, rMinX), math.Min(*minY, rMinY)
	*maxX, *maxY = math.Max(*maxX, rMaxX), math.Max(*maxY, rMaxY)

	buf = append(buf, le64f(rMinX)...)
	buf = append(buf, le64f(rMinY)...)
	buf = append(buf, le64f(rMaxX)...)
	buf = append(buf, le64f(rMaxY)...)
	buf = append(buf, le32(int32(len(rings)))...)
	buf = append(buf, le32(int32(numPoints))...)

	offset := int32(0)
	for _, ring := range rings {
		buf = append(buf, le32(offset)...)
		offset += int32(len(ring))
	}
	for _, ring := range rings {
		for _, pt := range ring {
			buf = append(buf, le64f(pt[0])...)
			buf = append(buf, le64f(pt[1])...)
		}
	}
	return buf
}
