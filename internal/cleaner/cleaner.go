// Package cleaner prepares raw location records for scoring: it normalizes
// city names, clamps ratings and drops records that cannot be placed.
package cleaner

import (
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/opportunity-cli/internal/cityref"
	"github.com/sells-group/opportunity-cli/internal/model"
)

const (
	minRating = 0.0
	maxRating = 5.0
)

// Drop reasons, as reported in Report.Dropped.
const (
	ReasonMissingCity = "missing_city"
	ReasonInvalid     = "invalid"
	ReasonOutOfBounds = "out_of_bounds"
)

// Report counts what Clean changed.
type Report struct {
	Input   int            `json:"input"`
	Kept    int            `json:"kept"`
	Clamped int            `json:"ratings_clamped"`
	Dropped map[string]int `json:"dropped"`
}

// Cleaner validates records against a region.
type Cleaner struct {
	table    *cityref.Table
	validate *validator.Validate
}

// New returns a Cleaner for the region described by table. A table without
// bounds accepts any coordinate.
func New(table *cityref.Table) *Cleaner {
	return &Cleaner{
		table:    table,
		validate: validator.New(),
	}
}

// Clean returns new records with trimmed, Title-cased city names and ratings
// clamped to [0,5]. Records with no city, records failing validation and
// records outside the region's bounding box are dropped.
func (c *Cleaner) Clean(records []model.Location) ([]model.Location, Report) {
	rep := Report{Input: len(records), Dropped: map[string]int{}}
	title := cases.Title(language.Portuguese)

	out := make([]model.Location, 0, len(records))
	for _, r := range records {
		r.City = NormalizeCity(title, r.City)
		if r.City == "" {
			rep.Dropped[ReasonMissingCity]++
			continue
		}

		if r.Rating != nil {
			v := *r.Rating
			if clamped := clamp(v, minRating, maxRating); !math.IsNaN(v) && clamped != v {
				rep.Clamped++
				v = clamped
			}
			r.Rating = &v
		}
		if r.NumCourts != nil {
			n := *r.NumCourts
			r.NumCourts = &n
		}

		if err := c.validate.Struct(r); err != nil {
			zap.L().Debug("cleaner: invalid record",
				zap.String("place_id", r.ID),
				zap.String("name", r.Name),
				zap.Error(err),
			)
			rep.Dropped[ReasonInvalid]++
			continue
		}

		if c.table != nil && !c.table.Contains(r.Latitude, r.Longitude) {
			rep.Dropped[ReasonOutOfBounds]++
			continue
		}

		out = append(out, r)
	}
	rep.Kept = len(out)

	zap.L().Info("cleaner: cleaned records",
		zap.Int("input", rep.Input),
		zap.Int("kept", rep.Kept),
		zap.Int("ratings_clamped", rep.Clamped),
		zap.Int("missing_city", rep.Dropped[ReasonMissingCity]),
		zap.Int("invalid", rep.Dropped[ReasonInvalid]),
		zap.Int("out_of_bounds", rep.Dropped[ReasonOutOfBounds]),
	)
	return out, rep
}

// NormalizeCity collapses whitespace and Title-cases a city name so that
// "  vila  do bispo" and "VILA DO BISPO" both become "Vila Do Bispo".
func NormalizeCity(title cases.Caser, city string) string {
	city = strings.Join(strings.Fields(city), " ")
	if city == "" {
		return ""
	}
	return title.String(city)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
