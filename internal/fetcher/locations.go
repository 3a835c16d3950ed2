package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/opportunity-cli/internal/model"
)

// Format identifies an input encoding.
type Format string

// Supported input formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// maxParallelSources bounds concurrent loads in LoadAll.
const maxParallelSources = 4

// column aliases accepted in tabular headers, keyed by canonical name.
var columnAliases = map[string][]string{
	"place_id":       {"place_id", "id"},
	"name":           {"name"},
	"address":        {"address"},
	"city":           {"city"},
	"postal_code":    {"postal_code"},
	"latitude":       {"latitude", "lat"},
	"longitude":      {"longitude", "lng", "lon"},
	"rating":         {"rating"},
	"review_count":   {"review_count"},
	"google_url":     {"google_url"},
	"facility_type":  {"facility_type"},
	"num_courts":     {"num_courts"},
	"indoor_outdoor": {"indoor_outdoor"},
	"phone":          {"phone"},
	"website":        {"website"},
	"collected_at":   {"collected_at"},
	"last_updated":   {"last_updated"},
}

var requiredColumns = []string{"place_id", "name", "city", "latitude", "longitude"}

// timestamp layouts seen in collector output, tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// IsURL reports whether src should be fetched over HTTP.
func IsURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// FormatFromPath infers the input format from a file path or URL extension.
func FormatFromPath(src string) (Format, error) {
	p := src
	if IsURL(src) {
		u, err := url.Parse(src)
		if err != nil {
			return "", eris.Wrapf(err, "fetcher: parse url %s", src)
		}
		p = u.Path
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("fetcher: unsupported input %q (want .csv, .json or .xlsx)", src)
	}
}

// LoadLocations decodes location records from r.
func LoadLocations(ctx context.Context, r io.Reader, format Format) ([]model.Location, error) {
	switch format {
	case FormatCSV:
		rows, err := ReadCSV(ctx, r, CSVOptions{TrimSpace: true})
		if err != nil {
			return nil, err
		}
		return RowsToLocations(rows)
	case FormatXLSX:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: read workbook")
		}
		rows, err := ReadXLSXBinary(data, XLSXOptions{})
		if err != nil {
			return nil, err
		}
		return RowsToLocations(rows)
	case FormatJSON:
		return decodeLocationsJSON(ctx, r)
	default:
		return nil, eris.Errorf("fetcher: unknown format %q", format)
	}
}

// LoadLocationsFile reads location records from a local file, inferring the
// format from its extension.
func LoadLocationsFile(ctx context.Context, path string) ([]model.Location, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	locs, err := LoadLocations(ctx, f, format)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: load %s", path)
	}
	return locs, nil
}

// Load reads location records from a local path or, for http(s) sources,
// through f.
func Load(ctx context.Context, f Fetcher, src string) ([]model.Location, error) {
	if !IsURL(src) {
		return LoadLocationsFile(ctx, src)
	}

	format, err := FormatFromPath(src)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, eris.Errorf("fetcher: no http fetcher for %s", src)
	}
	body, err := f.Download(ctx, src)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", src)
	}
	locs, err := LoadLocations(ctx, bytes.NewReader(data), format)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: load %s", src)
	}
	return locs, nil
}

// LoadAll loads every source concurrently and concatenates the records in
// source order. The first failure cancels the remaining loads.
func LoadAll(ctx context.Context, f Fetcher, srcs []string) ([]model.Location, error) {
	results := make([][]model.Location, len(srcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSources)
	for i, src := range srcs {
		g.Go(func() error {
			locs, err := Load(gctx, f, src)
			if err != nil {
				return err
			}
			results[i] = locs
			zap.L().Info("fetcher: loaded locations",
				zap.String("source", src),
				zap.Int("records", len(locs)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, r := range results {
		total += len(r)
	}
	out := make([]model.Location, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func decodeLocationsJSON(ctx context.Context, r io.Reader) ([]model.Location, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outCh, errCh := DecodeJSONArray[model.Location](ctx, r)
	locs := []model.Location{}
	for l := range outCh {
		locs = append(locs, l)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return locs, nil
}

// RowsToLocations maps a header row plus data rows to location records.
// Blank rows are skipped. Empty optional cells stay unset.
func RowsToLocations(rows [][]string) ([]model.Location, error) {
	locs := []model.Location{}
	if len(rows) == 0 {
		return locs, nil
	}

	idx := headerIndex(rows[0])
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("fetcher: missing required column %q", col)
		}
	}

	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		loc, err := rowToLocation(idx, row)
		if err != nil {
			// +2: one for the header, one for 1-based numbering.
			return nil, eris.Wrapf(err, "fetcher: row %d", n+2)
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

func headerIndex(header []string) map[string]int {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}
	idx := make(map[string]int, len(columnAliases))
	for canonical, aliases := range columnAliases {
		for _, a := range aliases {
			if i, ok := byName[a]; ok {
				idx[canonical] = i
				break
			}
		}
	}
	return idx
}

func rowToLocation(idx map[string]int, row []string) (model.Location, error) {
	cell := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	loc := model.Location{
		ID:            cell("place_id"),
		Name:          cell("name"),
		Address:       cell("address"),
		City:          cell("city"),
		PostalCode:    cell("postal_code"),
		GoogleURL:     cell("google_url"),
		FacilityType:  cell("facility_type"),
		IndoorOutdoor: strings.ToLower(cell("indoor_outdoor")),
		Phone:         cell("phone"),
		Website:       cell("website"),
	}

	var err error
	if loc.Latitude, err = parseFloat("latitude", cell("latitude")); err != nil {
		return loc, err
	}
	if loc.Longitude, err = parseFloat("longitude", cell("longitude")); err != nil {
		return loc, err
	}
	if v := cell("rating"); v != "" {
		r, err := parseFloat("rating", v)
		if err != nil {
			return loc, err
		}
		loc.Rating = &r
	}
	if v := cell("review_count"); v != "" {
		c, err := parseCount("review_count", v)
		if err != nil {
			return loc, err
		}
		loc.ReviewCount = c
	}
	if v := cell("num_courts"); v != "" {
		c, err := parseCount("num_courts", v)
		if err != nil {
			return loc, err
		}
		loc.NumCourts = &c
	}
	if loc.CollectedAt, err = parseTime("collected_at", cell("collected_at")); err != nil {
		return loc, err
	}
	if loc.LastUpdated, err = parseTime("last_updated", cell("last_updated")); err != nil {
		return loc, err
	}
	return loc, nil
}

func parseFloat(col, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse %s %q", col, v)
	}
	return f, nil
}

// parseCount accepts "12" and the "12.0" that spreadsheet tools emit for
// integer columns with gaps.
func parseCount(col, v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != float64(int(f)) {
		return 0, eris.Errorf("parse %s %q: not an integer", col, v)
	}
	return int(f), nil
}

func parseTime(col, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("parse %s %q: unrecognized timestamp", col, v)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
