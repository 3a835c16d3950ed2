package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/opportunity-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path, creating its parent
// directory, and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create dir %s", dir)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	region         TEXT NOT NULL,
	input_records  INTEGER NOT NULL,
	unique_records INTEGER NOT NULL,
	weights        TEXT NOT NULL,
	normalization  TEXT NOT NULL,
	config_hash    TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_cities (
	run_id                 TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	rank                   INTEGER NOT NULL,
	city                   TEXT NOT NULL,
	total_facilities       INTEGER NOT NULL,
	avg_rating             REAL,
	median_rating          REAL,
	total_reviews          INTEGER NOT NULL,
	center_lat             REAL NOT NULL,
	center_lng             REAL NOT NULL,
	population             INTEGER,
	facilities_per_10k     REAL,
	distance_to_nearest_km REAL,
	population_factor      REAL NOT NULL,
	saturation_factor      REAL NOT NULL,
	quality_gap_factor     REAL NOT NULL,
	geographic_gap_factor  REAL NOT NULL,
	opportunity_score      REAL NOT NULL,
	PRIMARY KEY (run_id, rank)
);

CREATE INDEX IF NOT EXISTS idx_runs_region ON runs(region);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

const sqliteInsertCity = `INSERT INTO run_cities (
	run_id, rank, city, total_facilities, avg_rating, median_rating, total_reviews,
	center_lat, center_lng, population, facilities_per_10k, distance_to_nearest_km,
	population_factor, saturation_factor, quality_gap_factor, geographic_gap_factor, opportunity_score
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const runColumns = `id, region, input_records, unique_records, weights, normalization, config_hash, created_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts the run and its cities in one transaction. A missing ID or
// creation time is filled in on run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run) error {
	if err := prepareRun(run); err != nil {
		return err
	}
	weightsJSON, err := json.Marshal(run.Weights)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal weights")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Region, run.InputRecords, run.UniqueRecords,
		string(weightsJSON), run.Normalization, run.ConfigHash, run.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}

	stmt, err := tx.PrepareContext(ctx, sqliteInsertCity)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare city insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, cs := range run.Cities {
		_, err := stmt.ExecContext(ctx,
			run.ID, i+1, cs.City, cs.TotalFacilities, nullable(cs.AvgRating), nullable(cs.MedianRating), cs.TotalReviews,
			cs.CenterLat, cs.CenterLng, nullable(cs.Population), nullable(cs.FacilitiesPer10k), nullable(cs.DistanceToNearestKM),
			cs.PopulationFactor, cs.SaturationFactor, cs.QualityGapFactor, cs.GeographicGapFactor, cs.OpportunityScore,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert city %s", cs.City)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit run")
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	if r.Cities, err = s.cities(ctx, r.ID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) LatestRun(ctx context.Context, region string) (*model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if region != "" {
		query += ` WHERE region = ?`
		args = append(args, region)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT 1`

	r, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest run")
	}
	if r.Cities, err = s.cities(ctx, r.ID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Region != "" {
		query += ` AND region = ?`
		args = append(args, filter.Region)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limitOf(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	runs := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list runs")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) cities(ctx context.Context, runID string) ([]model.CityStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		city, total_facilities, avg_rating, median_rating, total_reviews,
		center_lat, center_lng, population, facilities_per_10k, distance_to_nearest_km,
		population_factor, saturation_factor, quality_gap_factor, geographic_gap_factor, opportunity_score
		FROM run_cities WHERE run_id = ? ORDER BY rank`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query cities for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.CityStats{}
	for rows.Next() {
		var (
			cs                        model.CityStats
			avg, median, per10k, dist sql.NullFloat64
			pop                       sql.NullInt64
		)
		if err := rows.Scan(
			&cs.City, &cs.TotalFacilities, &avg, &median, &cs.TotalReviews,
			&cs.CenterLat, &cs.CenterLng, &pop, &per10k, &dist,
			&cs.PopulationFactor, &cs.SaturationFactor, &cs.QualityGapFactor, &cs.GeographicGapFactor, &cs.OpportunityScore,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan city")
		}
		cs.AvgRating = nullFloat(avg)
		cs.MedianRating = nullFloat(median)
		cs.FacilitiesPer10k = nullFloat(per10k)
		cs.DistanceToNearestKM = nullFloat(dist)
		if pop.Valid {
			cs.Population = model.Int(int(pop.Int64))
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate cities")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var weightsJSON string

	err := row.Scan(&r.ID, &r.Region, &r.InputRecords, &r.UniqueRecords,
		&weightsJSON, &r.Normalization, &r.ConfigHash, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan run")
	}
	if err := json.Unmarshal([]byte(weightsJSON), &r.Weights); err != nil {
		return nil, eris.Wrap(err, "unmarshal weights")
	}
	return &r, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return model.Float(v.Float64)
}

// nullable maps a nil pointer to SQL NULL and dereferences anything else.
func nullable[T int | float64](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
