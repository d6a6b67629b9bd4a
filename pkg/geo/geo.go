package geo

import (
	"math"

	"github.com/paulmach/orb"
)

const earthRadius = 6371000 // meters

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Valid reports whether the point is a plausible WGS84 coordinate.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// PageBounds returns the bounding box covering one printed page at the
// given scale denominator, anchored at its northwest corner. The region
// extends south and east of the anchor: the page width (in mm) maps to
// ground distance eastward, the page height southward.
func PageBounds(nw Point, scale int, pageWidthMM, pageHeightMM float64) orb.Bound {
	groundWidthM := (pageWidthMM / 1000.0) * float64(scale)
	groundHeightM := (pageHeightMM / 1000.0) * float64(scale)

	latChange := (groundHeightM / earthRadius) * (180.0 / math.Pi)
	seLat := nw.Lat - latChange

	// Longitude change shrinks with latitude; use the band's average.
	avgLat := (nw.Lat + seLat) / 2
	lonChange := (groundWidthM / (earthRadius * math.Cos(avgLat*(math.Pi/180.0)))) * (180.0 / math.Pi)
	seLon := nw.Lon + lonChange

	return orb.Bound{
		Min: orb.Point{nw.Lon, seLat},
		Max: orb.Point{seLon, nw.Lat},
	}
}
