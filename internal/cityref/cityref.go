// Package cityref holds the fixed reference tables of known cities. A table
// is the source of truth for which cities exist in a scoring run.
package cityref

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Entry is one known city.
type Entry struct {
	Name       string `json:"name"`
	Population *int   `json:"population,omitempty"`
	Center     Point  `json:"center"`
}

// Table is an immutable, ordered lookup of known cities keyed by name.
type Table struct {
	name        string
	description string
	entries     []Entry
	index       map[string]int
	bounds      *geom.Bounds
}

// NewTable validates entries and builds a Table. Entry order is preserved and
// is the output order of the aggregator.
func NewTable(name string, entries []Entry) (*Table, error) {
	t := &Table{
		name:    name,
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if e.Name == "" {
			return nil, eris.Errorf("cityref: %s: entry with empty name", name)
		}
		if _, dup := t.index[e.Name]; dup {
			return nil, eris.Errorf("cityref: %s: duplicate city %q", name, e.Name)
		}
		if e.Center.Lat < -90 || e.Center.Lat > 90 || e.Center.Lng < -180 || e.Center.Lng > 180 {
			return nil, eris.Errorf("cityref: %s: city %q has invalid center (%f, %f)",
				name, e.Name, e.Center.Lat, e.Center.Lng)
		}
		if e.Population != nil && *e.Population < 0 {
			return nil, eris.Errorf("cityref: %s: city %q has negative population", name, e.Name)
		}
		t.index[e.Name] = len(t.entries)
		t.entries = append(t.entries, e.clone())
	}
	return t, nil
}

// WithBounds returns a copy of the table restricted to the given bounding
// box (inclusive). Bounds are only consulted by the upstream cleaner.
func (t *Table) WithBounds(minLat, maxLat, minLng, maxLng float64) (*Table, error) {
	if minLat > maxLat || minLng > maxLng {
		return nil, eris.Errorf("cityref: %s: inverted bounds", t.name)
	}
	cp := *t
	cp.bounds = geom.NewBounds(geom.XY).Set(minLng, minLat, maxLng, maxLat)
	return &cp, nil
}

// Name returns the table (region) name.
func (t *Table) Name() string { return t.name }

// Description returns a human-readable label for the table.
func (t *Table) Description() string { return t.description }

// Len returns the number of known cities.
func (t *Table) Len() int { return len(t.entries) }

// Entries returns a copy of all entries in table order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.clone()
	}
	return out
}

// Names returns all city names in table order.
func (t *Table) Names() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Name
	}
	return out
}

// Lookup returns the entry for a city name.
func (t *Table) Lookup(city string) (Entry, bool) {
	i, ok := t.index[city]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i].clone(), true
}

// Contains reports whether a coordinate lies inside the table's bounds. A
// table without bounds contains every coordinate.
func (t *Table) Contains(lat, lng float64) bool {
	if t.bounds == nil {
		return true
	}
	return t.bounds.OverlapsPoint(geom.XY, geom.Coord{lng, lat})
}

func (e Entry) clone() Entry {
	if e.Population != nil {
		p := *e.Population
		e.Population = &p
	}
	return e
}
