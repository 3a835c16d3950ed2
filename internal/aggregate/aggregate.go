// Package aggregate groups deduplicated location records into one statistics
// record per known city.
package aggregate

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/opportunity-cli/internal/cityref"
	"github.com/sells-group/opportunity-cli/internal/model"
)

// per10k scales facility density to facilities per 10,000 residents.
const per10k = 10_000

// Aggregator builds CityStats against a fixed reference table.
type Aggregator struct {
	table *cityref.Table
}

// New returns an Aggregator over the given reference table.
func New(table *cityref.Table) *Aggregator {
	return &Aggregator{table: table}
}

// Aggregate returns exactly one CityStats per reference city, in table order.
// Cities without records get zero counts, nil ratings and the reference
// center. Records for cities outside the table are ignored.
func (a *Aggregator) Aggregate(records []model.Location) []model.CityStats {
	byCity := make(map[string][]model.Location)
	var unknown int
	for _, r := range records {
		if _, ok := a.table.Lookup(r.City); !ok {
			unknown++
			continue
		}
		byCity[r.City] = append(byCity[r.City], r)
	}
	if unknown > 0 {
		zap.L().Debug("aggregate: records outside reference table excluded",
			zap.String("region", a.table.Name()),
			zap.Int("records", unknown),
		)
	}

	entries := a.table.Entries()
	out := make([]model.CityStats, 0, len(entries))
	for _, e := range entries {
		out = append(out, cityStats(e, byCity[e.Name]))
	}
	return out
}

func cityStats(e cityref.Entry, records []model.Location) model.CityStats {
	cs := model.CityStats{
		City:            e.Name,
		TotalFacilities: len(records),
		Population:      e.Population,
		CenterLat:       e.Center.Lat,
		CenterLng:       e.Center.Lng,
	}

	if len(records) > 0 {
		var sumLat, sumLng float64
		ratings := make([]float64, 0, len(records))
		for _, r := range records {
			sumLat += r.Latitude
			sumLng += r.Longitude
			cs.TotalReviews += r.ReviewCount
			if r.Rating != nil {
				ratings = append(ratings, *r.Rating)
			}
		}
		n := float64(len(records))
		cs.CenterLat = sumLat / n
		cs.CenterLng = sumLng / n
		cs.AvgRating, cs.MedianRating = ratingStats(ratings)
	}

	if e.Population != nil && *e.Population > 0 {
		cs.FacilitiesPer10k = model.Float(float64(cs.TotalFacilities) / float64(*e.Population) * per10k)
	} else if e.Population != nil {
		// Zero population: density is defined as 0.
		cs.FacilitiesPer10k = model.Float(0)
	}

	return cs
}

// ratingStats returns mean and median of the given ratings, or nils when there
// are none.
func ratingStats(ratings []float64) (mean, median *float64) {
	if len(ratings) == 0 {
		return nil, nil
	}
	var sum float64
	for _, r := range ratings {
		sum += r
	}
	sorted := make([]float64, len(ratings))
	copy(sorted, ratings)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	med := sorted[mid]
	if len(sorted)%2 == 0 {
		med = (sorted[mid-1] + sorted[mid]) / 2
	}
	return model.Float(sum / float64(len(ratings))), model.Float(med)
}
