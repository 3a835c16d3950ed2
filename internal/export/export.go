// Package export writes ranked city statistics as CSV, XLSX or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-cli/internal/model"
)

// Format is an export encoding.
type Format string

// Supported export formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "city_stats"

const timestampLayout = "2006-01-02_15-04-05"

// Columns is the ordered header of tabular exports. Names match the JSON
// field names of model.CityStats.
var Columns = []string{
	"city",
	"total_facilities",
	"avg_rating",
	"median_rating",
	"total_reviews",
	"center_lat",
	"center_lng",
	"population",
	"facilities_per_10k",
	"distance_to_nearest_km",
	"population_weight",
	"saturation_weight",
	"quality_gap_weight",
	"geographic_gap_weight",
	"opportunity_score",
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatJSON:
		return f, nil
	default:
		return "", eris.Errorf("export: unsupported format %q", s)
	}
}

// Filename returns "<prefix>_export_YYYY-MM-DD_HH-MM-SS.<ext>".
func Filename(prefix string, format Format, now time.Time) string {
	return prefix + "_export_" + now.Format(timestampLayout) + "." + string(format)
}

// cell is one exported value. Nil pointers become empty cells.
type cell struct {
	num   float64
	isNum bool
	str   string
}

func row(cs model.CityStats) []cell {
	return []cell{
		{str: cs.City},
		intCell(&cs.TotalFacilities),
		floatCell(cs.AvgRating),
		floatCell(cs.MedianRating),
		intCell(&cs.TotalReviews),
		floatCell(&cs.CenterLat),
		floatCell(&cs.CenterLng),
		intCell(cs.Population),
		floatCell(cs.FacilitiesPer10k),
		floatCell(cs.DistanceToNearestKM),
		floatCell(&cs.PopulationFactor),
		floatCell(&cs.SaturationFactor),
		floatCell(&cs.QualityGapFactor),
		floatCell(&cs.GeographicGapFactor),
		floatCell(&cs.OpportunityScore),
	}
}

func floatCell(v *float64) cell {
	if v == nil {
		return cell{}
	}
	return cell{num: *v, isNum: true, str: strconv.FormatFloat(*v, 'f', -1, 64)}
}

func intCell(v *int) cell {
	if v == nil {
		return cell{}
	}
	return cell{num: float64(*v), isNum: true, str: strconv.Itoa(*v)}
}

// Row renders one city as CSV fields in Columns order.
func Row(cs model.CityStats) []string {
	cells := row(cs)
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.str
	}
	return out
}

// WriteCSV writes a header row followed by one row per city.
func WriteCSV(w io.Writer, stats []model.CityStats) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write CSV header")
	}
	for _, cs := range stats {
		if err := cw.Write(Row(cs)); err != nil {
			return eris.Wrap(err, "export: write CSV row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush CSV")
	}
	return nil
}

// WriteXLSX writes a workbook with a single city_stats sheet.
func WriteXLSX(w io.Writer, stats []model.CityStats) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range Columns {
		header.AddCell().SetString(c)
	}
	for _, cs := range stats {
		r := sheet.AddRow()
		for _, c := range row(cs) {
			xc := r.AddCell()
			switch {
			case c.isNum:
				xc.SetFloat(c.num)
			case c.str != "":
				xc.SetString(c.str)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

// WriteJSON writes stats as an indented JSON array. Nil values are null.
func WriteJSON(w io.Writer, stats []model.CityStats) error {
	if stats == nil {
		stats = []model.CityStats{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		return eris.Wrap(err, "export: encode JSON")
	}
	return nil
}

// Write dispatches on format.
func Write(w io.Writer, format Format, stats []model.CityStats) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, stats)
	case FormatXLSX:
		return WriteXLSX(w, stats)
	case FormatJSON:
		return WriteJSON(w, stats)
	default:
		return eris.Errorf("export: unsupported format %q", format)
	}
}

// WriteFile creates dir if needed and writes stats to a timestamped file in
// it, returning the file's path. Exporting no cities is an error.
func WriteFile(dir, prefix string, format Format, stats []model.CityStats, now time.Time) (string, error) {
	if len(stats) == 0 {
		return "", eris.Errorf("export: nothing to export (prefix: %s)", prefix)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "export: create dir %s", dir)
	}

	path := filepath.Join(dir, Filename(prefix, format, now))
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "export: create file %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := Write(f, format, stats); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "export: close %s", path)
	}

	zap.L().Info("export: wrote file",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("rows", len(stats)),
	)
	return path, nil
}
