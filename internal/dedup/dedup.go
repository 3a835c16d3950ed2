// Package dedup collapses duplicate location records before aggregation.
package dedup

import (
	"math"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/opportunity-cli/internal/model"
)

// coordScale rounds coordinates to 3 decimal places (~111 m of latitude).
const coordScale = 1000

// Stats reports how many records each pass removed.
type Stats struct {
	Input   int `json:"input"`
	Unique  int `json:"unique"`
	ByID    int `json:"removed_by_id"`
	ByFuzzy int `json:"removed_by_fuzzy"`
}

// fuzzyKey identifies records that describe the same venue.
type fuzzyKey struct {
	city string
	name string
	lat  int64
	lng  int64
}

// Deduplicate removes duplicate records. See Run for the rules.
func Deduplicate(records []model.Location) []model.Location {
	out, _ := Run(records)
	return out
}

// Run removes duplicates in two passes and reports what it removed.
//
// Pass 1 keeps the first record for each ID. Pass 2 groups the survivors by
// city, folded name and coordinates rounded to 3 decimals, and keeps the
// record with the most populated optional fields; ties keep the earlier
// record. Each group's survivor takes the position of the group's first
// member, so output order follows input order.
func Run(records []model.Location) ([]model.Location, Stats) {
	st := Stats{Input: len(records)}
	if len(records) == 0 {
		return []model.Location{}, st
	}

	byID := make([]model.Location, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		byID = append(byID, r)
	}
	st.ByID = len(records) - len(byID)

	fold := cases.Fold()
	groups := make(map[fuzzyKey]int, len(byID))
	out := make([]model.Location, 0, len(byID))
	for _, r := range byID {
		k := keyOf(fold, r)
		i, ok := groups[k]
		if !ok {
			groups[k] = len(out)
			out = append(out, r)
			continue
		}
		if r.Completeness() > out[i].Completeness() {
			out[i] = r
		}
	}
	st.ByFuzzy = len(byID) - len(out)
	st.Unique = len(out)

	return out, st
}

func keyOf(fold cases.Caser, r model.Location) fuzzyKey {
	return fuzzyKey{
		city: r.City,
		name: NormalizeName(fold, r.Name),
		lat:  int64(math.Round(r.Latitude * coordScale)),
		lng:  int64(math.Round(r.Longitude * coordScale)),
	}
}

// NormalizeName case-folds a name and collapses internal whitespace.
func NormalizeName(fold cases.Caser, name string) string {
	return strings.Join(strings.Fields(fold.String(name)), " ")
}
