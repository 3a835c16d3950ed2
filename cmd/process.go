package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/opportunity-cli/internal/cityref"
	"github.com/sells-group/opportunity-cli/internal/cleaner"
	"github.com/sells-group/opportunity-cli/internal/config"
	"github.com/sells-group/opportunity-cli/internal/distance"
	"github.com/sells-group/opportunity-cli/internal/export"
	"github.com/sells-group/opportunity-cli/internal/fetcher"
	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/pipeline"
	"github.com/sells-group/opportunity-cli/internal/scorer"
)

// exportPrefix names exported result files.
const exportPrefix = "opportunity"

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Score cities from collected facility records",
	Long: `Load padel facility records, clean and deduplicate them, aggregate per
city, compute nearest-facility distances and rank cities by opportunity score.

Inputs are CSV, JSON or XLSX files, or http(s) URLs to them. Several inputs are
loaded concurrently and concatenated in the order given.

Examples:
  # Print the top 5 cities
  process --input data/padel_facilities.csv

  # Merge two collections and export all cities to XLSX
  process --input data/google.csv --input data/manual.json --format xlsx

  # Use percentile-rank normalization and show factor contributions
  process --input data/padel.csv --normalization rank --explain

  # Persist the run for later inspection with 'runs' and 'serve'
  process --input data/padel.csv --save`,
	RunE: runProcess,
}

func init() {
	addProcessFlags(processCmd)
	rootCmd.AddCommand(processCmd)
}

func addProcessFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringArray("input", nil, "input file or URL (repeatable, default from input.paths)")
	f.String("region", "", "reference region (overrides config)")
	f.String("normalization", "", "normalization strategy: minmax or rank (overrides config)")
	f.String("format", "", "output format: table, csv, xlsx or json (overrides config)")
	f.String("output", "", "export directory for csv/xlsx/json (overrides config)")
	f.Int("top", -1, "number of cities in the table summary (0 = all)")
	f.Bool("explain", false, "print each factor's contribution to the score")
	f.Bool("save", false, "save the run to the configured store")
}

// processOptions are the per-invocation settings not carried by config.
type processOptions struct {
	Inputs  []string
	Explain bool
	Save    bool
}

// processResult is what one process invocation produced.
type processResult struct {
	Loaded     int
	Clean      cleaner.Report
	Result     *pipeline.Result
	Scorer     *scorer.OpportunityScorer
	ExportPath string
	RunID      string
}

func runProcess(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := applyProcessOverrides(cmd, cfg)
	if err := c.Validate("process"); err != nil {
		return err
	}

	inputs, _ := cmd.Flags().GetStringArray("input")
	explain, _ := cmd.Flags().GetBool("explain")
	save, _ := cmd.Flags().GetBool("save")
	if len(inputs) == 0 {
		inputs = c.Input.Paths
	}

	res, err := executeProcess(ctx, c, processOptions{Inputs: inputs, Explain: explain, Save: save}, os.Stdout)
	if err != nil {
		return err
	}
	printProcessSummary(os.Stdout, res)
	return nil
}

// applyProcessOverrides returns a copy of the base config with CLI flag
// overrides applied.
func applyProcessOverrides(cmd *cobra.Command, base *config.Config) *config.Config {
	c := *base

	if v, _ := cmd.Flags().GetString("region"); v != "" {
		c.Region = v
	}
	if v, _ := cmd.Flags().GetString("normalization"); v != "" {
		c.Scoring.Normalization = v
	}
	if v, _ := cmd.Flags().GetString("format"); v != "" {
		c.Output.Format = strings.ToLower(v)
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		c.Output.Dir = v
	}
	if v, _ := cmd.Flags().GetInt("top"); v >= 0 {
		c.Output.Top = v
	}

	return &c
}

// buildPipeline resolves the region table and scorer for c.
func buildPipeline(c *config.Config) (*pipeline.Pipeline, error) {
	table, err := cityref.Region(c.Region)
	if err != nil {
		return nil, err
	}
	norm, err := scorer.NormalizerByName(c.Scoring.Normalization)
	if err != nil {
		return nil, err
	}
	sc, err := scorer.New(c.Scoring.Weights(), scorer.WithNormalizer(norm))
	if err != nil {
		return nil, err
	}
	return pipeline.New(table, sc), nil
}

// executeProcess loads, cleans and scores the inputs, then writes the
// requested output to out (table) or to the export directory.
func executeProcess(ctx context.Context, c *config.Config, opts processOptions, out io.Writer) (*processResult, error) {
	if len(opts.Inputs) == 0 {
		return nil, eris.New("process: no input (use --input or input.paths)")
	}

	log := zap.L().With(zap.String("command", "process"))

	p, err := buildPipeline(c)
	if err != nil {
		return nil, eris.Wrap(err, "process: build pipeline")
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   c.Input.UserAgent,
		RatePerHost: rate.Limit(c.Input.RateLimit),
	})
	records, err := fetcher.LoadAll(ctx, f, opts.Inputs)
	if err != nil {
		return nil, eris.Wrap(err, "process: load inputs")
	}

	cleaned, report := cleaner.New(p.Table()).Clean(records)

	log.Info("scoring cities",
		zap.String("region", p.Table().Name()),
		zap.Int("records", len(cleaned)),
		zap.String("normalization", p.Scorer().Normalization()),
		zap.String("config_hash", p.Scorer().ConfigHash()),
	)
	result := p.Run(cleaned)

	res := &processResult{
		Loaded: len(records),
		Clean:  report,
		Result: result,
		Scorer: p.Scorer(),
	}

	if c.Output.Format == "table" {
		if err := writeOpportunityTable(out, result.Cities, c.Output.Top); err != nil {
			return nil, err
		}
	} else {
		format, err := export.ParseFormat(c.Output.Format)
		if err != nil {
			return nil, err
		}
		path, err := export.WriteFile(c.Output.Dir, exportPrefix, format, result.Cities, time.Now())
		if err != nil {
			return nil, eris.Wrap(err, "process: export")
		}
		res.ExportPath = path
	}
	if opts.Explain {
		if err := writeBreakdown(out, p.Scorer(), topN(result.Cities, c.Output.Top)); err != nil {
			return nil, err
		}
	}

	if opts.Save {
		id, err := saveRun(ctx, c, p, result)
		if err != nil {
			return nil, err
		}
		res.RunID = id
	}

	return res, nil
}

// saveRun persists result as a new run and returns its ID.
func saveRun(ctx context.Context, c *config.Config, p *pipeline.Pipeline, result *pipeline.Result) (string, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return "", eris.Wrap(err, "process: open store")
	}
	defer st.Close() //nolint:errcheck

	run := &model.Run{
		Region:        p.Table().Name(),
		InputRecords:  result.Stats.InputRecords,
		UniqueRecords: result.Stats.UniqueRecords,
		Weights:       p.Scorer().Weights(),
		Normalization: p.Scorer().Normalization(),
		ConfigHash:    p.Scorer().ConfigHash(),
		Cities:        result.Cities,
	}
	if err := st.SaveRun(ctx, run); err != nil {
		return "", eris.Wrap(err, "process: save run")
	}
	zap.L().Info("run saved", zap.String("run_id", run.ID), zap.Int("cities", len(run.Cities)))
	return run.ID, nil
}

func topN(stats []model.CityStats, n int) []model.CityStats {
	if n <= 0 || n >= len(stats) {
		return stats
	}
	return stats[:n]
}

func writeOpportunityTable(w io.Writer, stats []model.CityStats, top int) error {
	header := fmt.Sprintf("%4s  %-28s %6s %10s %7s %10s %8s %11s %10s\n",
		"Rank", "City", "Score", "Facilities", "Rating", "Population", "Per 10k", "Nearest km", "Radius km")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "process: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 104)); err != nil {
		return eris.Wrap(err, "process: write table separator")
	}

	for i, cs := range topN(stats, top) {
		radius := "-"
		if cs.Population != nil {
			radius = fmt.Sprintf("%.0f", distance.TravelWillingnessRadius(*cs.Population))
		}
		line := fmt.Sprintf("%4d  %-28s %6.1f %10d %7s %10s %8s %11s %10s\n",
			i+1, truncate(cs.City, 28), cs.OpportunityScore, cs.TotalFacilities,
			formatFloat(cs.AvgRating, 2), formatInt(cs.Population),
			formatFloat(cs.FacilitiesPer10k, 2), formatFloat(cs.DistanceToNearestKM, 1), radius)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "process: write table row")
		}
	}
	return nil
}

// scoreComponents lists the factors in display order.
var scoreComponents = []string{
	scorer.ComponentPopulation,
	scorer.ComponentSaturation,
	scorer.ComponentQualityGap,
	scorer.ComponentGeographicGap,
}

func writeBreakdown(w io.Writer, sc *scorer.OpportunityScorer, stats []model.CityStats) error {
	if _, err := fmt.Fprintln(w, "\n--- Score breakdown (points) ---"); err != nil {
		return eris.Wrap(err, "process: write breakdown")
	}
	for _, cs := range stats {
		parts := sc.Breakdown(cs)
		var b strings.Builder
		fmt.Fprintf(&b, "%-28s %6.1f =", truncate(cs.City, 28), cs.OpportunityScore)
		for i, name := range scoreComponents {
			if i > 0 {
				b.WriteString(" +")
			}
			fmt.Fprintf(&b, " %s %.1f", name, parts[name])
		}
		b.WriteString("\n")
		if _, err := fmt.Fprint(w, b.String()); err != nil {
			return eris.Wrap(err, "process: write breakdown")
		}
	}
	return nil
}

func printProcessSummary(w io.Writer, res *processResult) {
	s := res.Result.Stats
	fmt.Fprintf(w, "\n--- Summary ---\n")
	fmt.Fprintf(w, "Records loaded:     %d\n", res.Loaded)
	fmt.Fprintf(w, "Dropped cleaning:   %d", res.Clean.Input-res.Clean.Kept)
	var reasons []string
	for _, r := range []string{cleaner.ReasonMissingCity, cleaner.ReasonInvalid, cleaner.ReasonOutOfBounds} {
		if n := res.Clean.Dropped[r]; n > 0 {
			reasons = append(reasons, fmt.Sprintf("%s=%d", r, n))
		}
	}
	if len(reasons) > 0 {
		fmt.Fprintf(w, " (%s)", strings.Join(reasons, ", "))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Duplicates removed: %d (id %d, fuzzy %d)\n", s.RemovedByID+s.RemovedByFuzzy, s.RemovedByID, s.RemovedByFuzzy)
	fmt.Fprintf(w, "Unique facilities:  %d\n", s.UniqueRecords)
	fmt.Fprintf(w, "Unknown city:       %d\n", s.UnknownCity)
	fmt.Fprintf(w, "Cities scored:      %d\n", s.Cities)
	fmt.Fprintf(w, "Config hash:        %s\n", res.Scorer.ConfigHash())
	if res.ExportPath != "" {
		fmt.Fprintf(w, "Exported to:        %s\n", res.ExportPath)
	}
	if res.RunID != "" {
		fmt.Fprintf(w, "Saved run:          %s\n", res.RunID)
	}
}

func formatFloat(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.*f", prec, *v)
}

func formatInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
