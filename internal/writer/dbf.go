package writer

import (
	"encoding/binary"
	"fmt"
)

type dbfField struct {
	name     string
	fieldLen byte
	decimals byte
	numeric  bool
}

func dbfFields() []dbfField {
	return []dbfField{
		{"gauge_id", 40, 0, false},
		{"gauge_name", 80, 0, false},
		{"gauge_lat", 18, 8, true},
		{"gauge_lon", 18, 8, true},
		{"snap_lat", 18, 8, true},
		{"snap_lon", 18, 8, true},
		{"snap_dist", 18, 3, true},
		{"country", 40, 0, false},
		{"area", 18, 3, true},
	}
}

// encodeDBF writes a dBASE III table (the shapefile attribute sidecar)
// with one row per record, columns per dbfFields() (already truncated
// to the 10-character DBF field-name limit per the writer's attribute
// table).
func encodeDBF(records []Record) ([]byte, error) {
	fields := dbfFields()

	recordLen := 1 // deletion flag byte
	for _, f := range fields {
		recordLen += int(f.fieldLen)
	}

	headerLen := 32 + 32*len(fields) + 1
	var buf []byte

	header := make([]byte, headerLen)
	header[0] = 0x03 // dBASE III, no memo
	now := [3]byte{26, 1, 1}
	header[1], header[2], header[3] = now[0], now[1], now[2]
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(records)))
	binary.LittleEndian.PutUint16(header[8:10], uint16(headerLen))
	binary.LittleEndian.PutUint16(header[10:12], uint16(recordLen))

	for i, f := range fields {
		off := 32 + i*32
		nameBytes := []byte(f.name)
		if len(nameBytes) > 10 {
			return nil, fmt.Errorf("dbf field name %q exceeds 10 chars", f.name)
		}
		copy(header[off:off+10], nameBytes)
		fieldType := byte('C')
		if f.numeric {
			fieldType = 'N'
		}
		header[off+11] = fieldType
		header[off+16] = f.fieldLen
		header[off+17] = f.decimals
	}
	header[headerLen-1] = 0x0D // header terminator
	buf = append(buf, header...)

	for _, r := range records {
		row := make([]byte, recordLen)
		row[0] = ' ' // not deleted
		pos := 1
		values := dbfRowValues(r)
		for i, f := range fields {
			cell := formatDBFField(values[i], f)
			copy(row[pos:pos+int(f.fieldLen)], padDBF(cell, int(f.fieldLen), f.numeric))
			pos += int(f.fieldLen)
		}
		buf = append(buf, row...)
	}
	buf = append(buf, 0x1A) // end-of-file marker
	return buf, nil
}

func dbfRowValues(r Record) []string {
	return []string{
		r.GaugeID,
		r.GaugeName,
		formatFloat(r.GaugeLat),
		formatFloat(r.GaugeLon),
		formatFloat(r.SnapLat),
		formatFloat(r.SnapLon),
		formatFloat(r.SnapDistanceM),
		r.Country,
		formatFloat(r.AreaKM2),
	}
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%f", v)
}

func formatDBFField(v string, f dbfField) string {
	if len(v) > int(f.fieldLen) {
		return v[:f.fieldLen]
	}
	return v
}

// padDBF right-pads character fields and left-pads numeric fields with
// spaces, the dBASE convention for fixed-width cells.
func padDBF(v string, width int, numeric bool) []byte {
	out := make([]byte, width)
	for i := range out {
		out[i] = ' '
	}
	if numeric {
		copy(out[width-len(v):], v)
	} else {
		copy(out[:len(v)], v)
	}
	return out
}
