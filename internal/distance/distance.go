// Package distance computes great-circle distances from each city to the
// nearest competing facility.
package distance

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/sells-group/opportunity-cli/internal/cityref"
	"github.com/sells-group/opportunity-cli/internal/model"
)

// EarthRadiusKM is the mean Earth radius (IUGG).
const EarthRadiusKM = 6371.0088

// Travel willingness radii by city size (kilometers).
const (
	urbanRadiusKM     = 5.0
	midSizeRadiusKM   = 10.0
	smallTownRadiusKM = 15.0

	urbanPopulation   = 50_000
	midSizePopulation = 20_000
)

// KM returns the great-circle distance between two points in kilometers.
func KM(a, b cityref.Point) float64 {
	return angleKM(s2.LatLngFromDegrees(a.Lat, a.Lng), s2.LatLngFromDegrees(b.Lat, b.Lng))
}

func angleKM(a, b s2.LatLng) float64 {
	return a.Distance(b).Radians() * EarthRadiusKM
}

// Calculator fills DistanceToNearestKM for every city.
type Calculator struct {
	table *cityref.Table
}

// New returns a Calculator that resolves zero-facility cities against the
// given reference table.
func New(table *cityref.Table) *Calculator {
	return &Calculator{table: table}
}

type facility struct {
	city string
	ll   s2.LatLng
}

// Compute returns copies of stats with DistanceToNearestKM set.
//
// A city with facilities measures from its facility centroid to the nearest
// facility in any other city. A city without facilities measures from its
// reference center to the nearest facility anywhere. When there is nothing
// to measure against the distance is 0.
func (c *Calculator) Compute(stats []model.CityStats, records []model.Location) []model.CityStats {
	out := model.CloneAll(stats)

	facilities := make([]facility, len(records))
	for i, r := range records {
		facilities[i] = facility{city: r.City, ll: s2.LatLngFromDegrees(r.Latitude, r.Longitude)}
	}

	for i := range out {
		cs := &out[i]
		var d float64
		if cs.TotalFacilities > 0 {
			origin := s2.LatLngFromDegrees(cs.CenterLat, cs.CenterLng)
			d = nearest(origin, facilities, cs.City)
		} else {
			d = nearest(c.referenceCenter(cs), facilities, "")
		}
		cs.DistanceToNearestKM = model.Float(d)
	}
	return out
}

// referenceCenter returns the fixed center for a city, falling back to the
// stats center for cities missing from the table.
func (c *Calculator) referenceCenter(cs *model.CityStats) s2.LatLng {
	if c.table != nil {
		if e, ok := c.table.Lookup(cs.City); ok {
			return s2.LatLngFromDegrees(e.Center.Lat, e.Center.Lng)
		}
	}
	return s2.LatLngFromDegrees(cs.CenterLat, cs.CenterLng)
}

// nearest returns the minimum distance from origin to any facility whose city
// differs from exclude ("" excludes nothing), or 0 if there is none.
func nearest(origin s2.LatLng, facilities []facility, exclude string) float64 {
	best := math.Inf(1)
	for _, f := range facilities {
		if exclude != "" && f.city == exclude {
			continue
		}
		if d := angleKM(origin, f.ll); d < best {
			best = d
		}
	}
	if math.IsInf(best, 1) {
		return 0
	}
	return best
}

// TravelWillingnessRadius estimates how far residents travel to play, by
// population: 5 km above 50,000, 10 km from 20,000 to 50,000, 15 km below.
func TravelWillingnessRadius(population int) float64 {
	switch {
	case population > urbanPopulation:
		return urbanRadiusKM
	case population >= midSizePopulation:
		return midSizeRadiusKM
	default:
		return smallTownRadiusKM
	}
}
