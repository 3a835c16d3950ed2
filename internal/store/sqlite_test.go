package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opportunity-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "runs.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	run := testRun()

	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "algarve", got.Region)
	assert.Equal(t, 6, got.InputRecords)
	assert.Equal(t, 4, got.UniqueRecords)
	assert.Equal(t, run.Weights, got.Weights)
	assert.Equal(t, "abc123", got.ConfigHash)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", run.CreatedAt, got.CreatedAt)
	require.Len(t, got.Cities, 2)

	faro := got.Cities[0]
	assert.Equal(t, "Faro", faro.City)
	require.NotNil(t, faro.AvgRating)
	assert.InDelta(t, 4.5, *faro.AvgRating, 1e-9)
	require.NotNil(t, faro.Population)
	assert.Equal(t, 60000, *faro.Population)
	require.NotNil(t, faro.DistanceToNearestKM)
	assert.InDelta(t, 3.2, *faro.DistanceToNearestKM, 1e-9)
	assert.InDelta(t, 66.4, faro.OpportunityScore, 1e-9)

	lagos := got.Cities[1]
	assert.Equal(t, "Lagos", lagos.City)
	assert.Nil(t, lagos.AvgRating)
	assert.Nil(t, lagos.MedianRating)
	assert.Nil(t, lagos.Population)
	assert.Nil(t, lagos.FacilitiesPer10k)
	assert.Nil(t, lagos.DistanceToNearestKM)
}

func TestSQLiteStore_SaveRun_AssignsID(t *testing.T) {
	s := newTestSQLite(t)
	run := &model.Run{Region: "algarve", Normalization: "rank"}

	require.NoError(t, s.SaveRun(context.Background(), run))
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())

	got, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Cities)
}

func TestSQLiteStore_SaveRun_Duplicate(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, testRun()))
	assert.Error(t, s.SaveRun(ctx, testRun()))
}

func TestSQLiteStore_GetRun_NotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func seedRuns(t *testing.T, s Store) {
	t.Helper()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	runs := []*model.Run{
		{ID: "a1", Region: "algarve", Normalization: "minmax", CreatedAt: base},
		{ID: "l1", Region: "lisbon", Normalization: "minmax", CreatedAt: base.Add(time.Hour)},
		{ID: "a2", Region: "algarve", Normalization: "minmax", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "a3", Region: "algarve", Normalization: "rank", CreatedAt: base.Add(3 * time.Hour)},
	}
	for _, r := range runs {
		require.NoError(t, s.SaveRun(context.Background(), r))
	}
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	s := newTestSQLite(t)
	seedRuns(t, s)

	tests := []struct {
		name   string
		filter RunFilter
		want   []string
	}{
		{name: "all newest first", want: []string{"a3", "a2", "l1", "a1"}},
		{name: "region", filter: RunFilter{Region: "algarve"}, want: []string{"a3", "a2", "a1"}},
		{name: "limit", filter: RunFilter{Limit: 2}, want: []string{"a3", "a2"}},
		{name: "limit offset", filter: RunFilter{Region: "algarve", Limit: 1, Offset: 1}, want: []string{"a2"}},
		{name: "no match", filter: RunFilter{Region: "porto"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.ListRuns(context.Background(), tt.filter)
			require.NoError(t, err)
			ids := []string{}
			for _, r := range runs {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLiteStore_LatestRun(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.LatestRun(ctx, "")
	assert.True(t, errors.Is(err, ErrNotFound))

	seedRuns(t, s)

	r, err := s.LatestRun(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "a3", r.ID)

	r, err = s.LatestRun(ctx, "lisbon")
	require.NoError(t, err)
	assert.Equal(t, "l1", r.ID)

	_, err = s.LatestRun(ctx, "porto")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	require.NoError(t, s.SaveRun(ctx, testRun()))
	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
