package geometry

import "math"

// wgs84Radius is the mean Earth radius (m) used for the spherical Albers
// approximation. The source dataset is WGS-84 but MERIT-Basins polygons
// span small-to-moderate extents, so the spherical form (rather than the
// full ellipsoidal one) matches the precision spec.md §8 requires (area
// within 1%).
const wgs84Radius = 6371008.8

// albers implements the spherical Albers Equal-Area forward projection
// with standard parallels chosen from a polygon's own latitude extent, as
// spec.md §4.1 requires ("an Albers Equal Area projection whose standard
// parallels are set from the polygon's latitude extent").
type albers struct {
	phi0, lambda0   float64 // origin latitude/longitude, radians
	phi1, phi2      float64 // standard parallels, radians
	n, c, rho0      float64
}

func newAlbers(minLat, maxLat, centerLngDeg float64) *albers {
	phi1 := deg2rad(minLat + (maxLat-minLat)*0.25)
	phi2 := deg2rad(minLat + (maxLat-minLat)*0.75)
	phi0 := deg2rad((minLat + maxLat) / 2)
	lambda0 := deg2rad(centerLngDeg)

	n := (math.Sin(phi1) + math.Sin(phi2)) / 2
	c := math.Cos(phi1)*math.Cos(phi1) + 2*n*math.Sin(phi1)
	rho0 := wgs84Radius / n * math.Sqrt(c-2*n*math.Sin(phi0))

	return &albers{phi0: phi0, lambda0: lambda0, phi1: phi1, phi2: phi2, n: n, c: c, rho0: rho0}
}

// forward projects (latDeg, lngDeg) to planar (x, y) meters.
func (a *albers) forward(latDeg, lngDeg float64) (float64, float64) {
	phi := deg2rad(latDeg)
	lambda := deg2rad(lngDeg)

	if math.Abs(a.n) < 1e-12 {
		// Standard parallels symmetric about the equator make n zero; the
		// Albers limit there is the cylindrical equal-area projection.
		k := math.Cos(a.phi1)
		return wgs84Radius * k * (lambda - a.lambda0), wgs84Radius * math.Sin(phi) / k
	}

	rho := wgs84Radius / a.n * math.Sqrt(a.c-2*a.n*math.Sin(phi))
	theta := a.n * (lambda - a.lambda0)

	x := rho * math.Sin(theta)
	y := a.rho0 - rho*math.Cos(theta)
	return x, y
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
