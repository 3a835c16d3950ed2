package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/opportunity-cli/internal/db"
	"github.com/sells-group/opportunity-cli/internal/model"
)

// srid is WGS 84, the reference system of all stored city centers.
const srid = 4326

// PostgresStore implements Store using pgxpool. City centers are stored as
// PostGIS points.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	region         TEXT NOT NULL,
	input_records  INTEGER NOT NULL,
	unique_records INTEGER NOT NULL,
	weights        JSONB NOT NULL,
	normalization  TEXT NOT NULL,
	config_hash    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_cities (
	run_id                 TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	rank                   INTEGER NOT NULL,
	city                   TEXT NOT NULL,
	total_facilities       INTEGER NOT NULL,
	avg_rating             DOUBLE PRECISION,
	median_rating          DOUBLE PRECISION,
	total_reviews          INTEGER NOT NULL,
	center                 geometry(Point, 4326) NOT NULL,
	population             INTEGER,
	facilities_per_10k     DOUBLE PRECISION,
	distance_to_nearest_km DOUBLE PRECISION,
	population_factor      DOUBLE PRECISION NOT NULL,
	saturation_factor      DOUBLE PRECISION NOT NULL,
	quality_gap_factor     DOUBLE PRECISION NOT NULL,
	geographic_gap_factor  DOUBLE PRECISION NOT NULL,
	opportunity_score      DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, rank)
);

CREATE INDEX IF NOT EXISTS idx_runs_region ON runs(region);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_cities_center ON run_cities USING GIST (center);
`

const postgresInsertCity = `INSERT INTO run_cities (
	run_id, rank, city, total_facilities, avg_rating, median_rating, total_reviews, center,
	population, facilities_per_10k, distance_to_nearest_km,
	population_factor, saturation_factor, quality_gap_factor, geographic_gap_factor, opportunity_score
) VALUES ($1, $2, $3, $4, $5, $6, $7, ST_GeomFromEWKB($8), $9, $10, $11, $12, $13, $14, $15, $16)`

const postgresSelectCities = `SELECT
	city, total_facilities, avg_rating, median_rating, total_reviews, ST_AsEWKB(center),
	population, facilities_per_10k, distance_to_nearest_km,
	population_factor, saturation_factor, quality_gap_factor, geographic_gap_factor, opportunity_score
	FROM run_cities WHERE run_id = $1 ORDER BY rank`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveRun inserts the run and its cities in one transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, run *model.Run) error {
	if err := prepareRun(run); err != nil {
		return err
	}
	weightsJSON, err := json.Marshal(run.Weights)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal weights")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Region, run.InputRecords, run.UniqueRecords,
		weightsJSON, run.Normalization, run.ConfigHash, run.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", run.ID)
	}

	for i, cs := range run.Cities {
		center, err := EncodeCenter(cs.CenterLat, cs.CenterLng)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, postgresInsertCity,
			run.ID, i+1, cs.City, cs.TotalFacilities, cs.AvgRating, cs.MedianRating, cs.TotalReviews, center,
			cs.Population, cs.FacilitiesPer10k, cs.DistanceToNearestKM,
			cs.PopulationFactor, cs.SaturationFactor, cs.QualityGapFactor, cs.GeographicGapFactor, cs.OpportunityScore,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert city %s", cs.City)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit run")
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, err := s.scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	if r.Cities, err = s.cities(ctx, r.ID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) LatestRun(ctx context.Context, region string) (*model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if region != "" {
		query += ` WHERE region = $1`
		args = append(args, region)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	r, err := s.scanRun(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run")
	}
	if r.Cities, err = s.cities(ctx, r.ID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Region != "" {
		query += fmt.Sprintf(` AND region = $%d`, argIdx)
		args = append(args, filter.Region)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, limitOf(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		r, err := s.scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list runs")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) scanRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var weightsJSON []byte

	err := row.Scan(&r.ID, &r.Region, &r.InputRecords, &r.UniqueRecords,
		&weightsJSON, &r.Normalization, &r.ConfigHash, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan run")
	}
	if err := json.Unmarshal(weightsJSON, &r.Weights); err != nil {
		return nil, eris.Wrap(err, "unmarshal weights")
	}
	return &r, nil
}

func (s *PostgresStore) cities(ctx context.Context, runID string) ([]model.CityStats, error) {
	rows, err := s.pool.Query(ctx, postgresSelectCities, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query cities for run %s", runID)
	}
	defer rows.Close()

	out := []model.CityStats{}
	for rows.Next() {
		var cs model.CityStats
		var center []byte
		if err := rows.Scan(
			&cs.City, &cs.TotalFacilities, &cs.AvgRating, &cs.MedianRating, &cs.TotalReviews, &center,
			&cs.Population, &cs.FacilitiesPer10k, &cs.DistanceToNearestKM,
			&cs.PopulationFactor, &cs.SaturationFactor, &cs.QualityGapFactor, &cs.GeographicGapFactor, &cs.OpportunityScore,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan city")
		}
		if cs.CenterLat, cs.CenterLng, err = DecodeCenter(center); err != nil {
			return nil, eris.Wrapf(err, "postgres: city %s", cs.City)
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate cities")
}

// EncodeCenter converts a latitude/longitude pair to EWKB with SRID 4326.
func EncodeCenter(lat, lng float64) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(srid)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode center")
	}
	return data, nil
}

// DecodeCenter parses an EWKB point into latitude and longitude.
func DecodeCenter(data []byte) (lat, lng float64, err error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return 0, 0, eris.Wrap(err, "decode center")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("decode center: expected point, got %T", g)
	}
	return p.Y(), p.X(), nil
}
