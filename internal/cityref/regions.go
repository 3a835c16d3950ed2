package cityref

import (
	"embed"
	"path"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed regions/*.yaml
var regionFS embed.FS

// DefaultRegion is the region used when none is configured.
const DefaultRegion = "algarve"

type regionFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Bounds      *struct {
		MinLat float64 `yaml:"min_lat"`
		MaxLat float64 `yaml:"max_lat"`
		MinLng float64 `yaml:"min_lng"`
		MaxLng float64 `yaml:"max_lng"`
	} `yaml:"bounds"`
	Cities []struct {
		Name       string  `yaml:"name"`
		Population *int    `yaml:"population"`
		Lat        float64 `yaml:"lat"`
		Lng        float64 `yaml:"lng"`
	} `yaml:"cities"`
}

// Regions returns the names of the built-in regions, sorted.
func Regions() []string {
	files, err := regionFS.ReadDir("regions")
	if err != nil {
		return nil
	}
	var names []string
	for _, f := range files {
		names = append(names, strings.TrimSuffix(f.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Region loads one of the built-in reference tables by name.
func Region(name string) (*Table, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultRegion
	}
	data, err := regionFS.ReadFile(path.Join("regions", name+".yaml"))
	if err != nil {
		return nil, eris.Errorf("cityref: unknown region %q (known: %s)", name, strings.Join(Regions(), ", "))
	}
	return parseRegion(data)
}

func parseRegion(data []byte) (*Table, error) {
	var rf regionFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, eris.Wrap(err, "cityref: parse region")
	}

	entries := make([]Entry, 0, len(rf.Cities))
	for _, c := range rf.Cities {
		entries = append(entries, Entry{
			Name:       c.Name,
			Population: c.Population,
			Center:     Point{Lat: c.Lat, Lng: c.Lng},
		})
	}

	t, err := NewTable(rf.Name, entries)
	if err != nil {
		return nil, err
	}
	t.description = rf.Description
	if rf.Bounds != nil {
		return t.WithBounds(rf.Bounds.MinLat, rf.Bounds.MaxLat, rf.Bounds.MinLng, rf.Bounds.MaxLng)
	}
	return t, nil
}
