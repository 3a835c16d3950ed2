// Package pipeline wires deduplication, aggregation, distance and scoring
// into a single batch computation over a set of location records.
package pipeline

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/opportunity-cli/internal/aggregate"
	"github.com/sells-group/opportunity-cli/internal/cityref"
	"github.com/sells-group/opportunity-cli/internal/dedup"
	"github.com/sells-group/opportunity-cli/internal/distance"
	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/scorer"
)

// Stage names, in execution order.
const (
	StageDedup     = "dedup"
	StageAggregate = "aggregate"
	StageDistance  = "distance"
	StageScore     = "score"
)

// Stats summarizes one Process call.
type Stats struct {
	InputRecords   int `json:"input_records"`
	UniqueRecords  int `json:"unique_records"`
	RemovedByID    int `json:"removed_by_id"`
	RemovedByFuzzy int `json:"removed_by_fuzzy"`
	UnknownCity    int `json:"unknown_city_records"`
	Cities         int `json:"cities"`
}

// Result is the ranked output of a run plus its counters.
type Result struct {
	Cities []model.CityStats `json:"cities"`
	Stats  Stats             `json:"stats"`
}

// Pipeline runs the four stages against one reference table.
type Pipeline struct {
	table      *cityref.Table
	aggregator *aggregate.Aggregator
	distance   *distance.Calculator
	scorer     *scorer.OpportunityScorer
}

// New creates a Pipeline. The scorer must already be validated (see
// scorer.New), so Process itself never fails.
func New(table *cityref.Table, sc *scorer.OpportunityScorer) *Pipeline {
	return &Pipeline{
		table:      table,
		aggregator: aggregate.New(table),
		distance:   distance.New(table),
		scorer:     sc,
	}
}

// Table returns the reference table the pipeline aggregates against.
func (p *Pipeline) Table() *cityref.Table { return p.table }

// Scorer returns the pipeline's scorer.
func (p *Pipeline) Scorer() *scorer.OpportunityScorer { return p.scorer }

// Process runs dedup, aggregate, distance and score and returns exactly one
// CityStats per reference city, ranked by opportunity score.
func (p *Pipeline) Process(records []model.Location) []model.CityStats {
	return p.Run(records).Cities
}

// Run is Process with counters.
func (p *Pipeline) Run(records []model.Location) *Result {
	log := zap.L().With(zap.String("region", p.table.Name()))

	var (
		unique []model.Location
		dst    dedup.Stats
		stats  []model.CityStats
	)

	track(log, StageDedup, func() {
		unique, dst = dedup.Run(records)
	})
	log.Info("pipeline: deduplicated records",
		zap.Int("input", dst.Input),
		zap.Int("unique", dst.Unique),
		zap.Int("removed_by_id", dst.ByID),
		zap.Int("removed_by_fuzzy", dst.ByFuzzy),
	)

	track(log, StageAggregate, func() {
		stats = p.aggregator.Aggregate(unique)
	})
	track(log, StageDistance, func() {
		stats = p.distance.Compute(stats, unique)
	})
	track(log, StageScore, func() {
		stats = p.scorer.Score(stats)
	})

	Rank(stats)

	res := &Result{
		Cities: stats,
		Stats: Stats{
			InputRecords:   dst.Input,
			UniqueRecords:  dst.Unique,
			RemovedByID:    dst.ByID,
			RemovedByFuzzy: dst.ByFuzzy,
			UnknownCity:    p.countUnknown(unique),
			Cities:         len(stats),
		},
	}
	log.Info("pipeline: scored cities",
		zap.Int("cities", res.Stats.Cities),
		zap.Int("unknown_city_records", res.Stats.UnknownCity),
	)
	return res
}

// Rank sorts stats in place by opportunity score descending, then by city
// name ascending.
func Rank(stats []model.CityStats) {
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].OpportunityScore != stats[j].OpportunityScore {
			return stats[i].OpportunityScore > stats[j].OpportunityScore
		}
		return stats[i].City < stats[j].City
	})
}

func (p *Pipeline) countUnknown(records []model.Location) int {
	n := 0
	for i := range records {
		if _, ok := p.table.Lookup(records[i].City); !ok {
			n++
		}
	}
	return n
}

func track(log *zap.Logger, stage string, fn func()) {
	start := time.Now()
	fn()
	log.Debug("pipeline: stage complete",
		zap.String("stage", stage),
		zap.Int64("duration_us", time.Since(start).Microseconds()),
	)
}
