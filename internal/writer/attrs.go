package writer

// shapefileFieldOrder and shapefileFieldNames mirror spec.md §9's
// explicit truncation table for the DBF format's 10-character field
// name limit — field names are fixed and NOT derived by mechanically
// truncating the long name, since several long names collide on their
// first 10 characters (gauge_name / gauge_lat / gauge_lon would not,
// but snap_distance_m and snap_distance_km would).
var shapefileFieldOrder = []string{
	"gauge_id", "gauge_name", "gauge_lat", "gauge_lon",
	"snap_lat", "snap_lon", "snap_dist", "country", "area",
}

// shapefileFieldNames maps the canonical attribute name (used in
// GeoPackage output and in API responses) to its truncated DBF field
// name.
var shapefileFieldNames = map[string]string{
	"gauge_id":        "gauge_id",
	"gauge_name":      "gauge_name",
	"gauge_lat":       "gauge_lat",
	"gauge_lon":       "gauge_lon",
	"snap_lat":        "snap_lat",
	"snap_lon":        "snap_lon",
	"snap_distance_m": "snap_dist",
	"country":         "country",
	"area_km2":        "area",
}
