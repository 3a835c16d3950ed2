package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opportunity-cli/internal/cityref"
	"github.com/sells-group/opportunity-cli/internal/config"
	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/store"
)

const facilitiesCSV = `place_id,name,city,latitude,longitude,rating,review_count
p1,Padel Faro,Faro,37.02,-7.93,4.5,120
p2,Clube de Padel Ria Formosa,faro ,37.03,-7.94,4.0,80
p3,Lagos Padel,Lagos,37.10,-8.67,4.8,50
p3,Lagos Padel,Lagos,37.10,-8.67,4.8,50
p4,Nowhere Padel,,37.10,-8.00,4.0,10
p5,Madrid Padel,Faro,40.40,-3.70,4.0,10
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Region: "algarve",
		Scoring: config.ScoringConfig{
			PopulationWeight:    0.2,
			SaturationWeight:    0.3,
			QualityGapWeight:    0.2,
			GeographicGapWeight: 0.3,
			Normalization:       "minmax",
		},
		Output: config.OutputConfig{Dir: filepath.Join(dir, "exports"), Format: "table", Top: 5},
		Store:  config.StoreConfig{Driver: store.DriverSQLite, DatabaseURL: filepath.Join(dir, "runs.db")},
		Server: config.ServerConfig{Port: 8080},
		Log:    config.LogConfig{Level: "info", Format: "json"},
	}
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facilities.csv")
	require.NoError(t, os.WriteFile(path, []byte(facilitiesCSV), 0o644))
	return path
}

func TestExecuteProcess_Table(t *testing.T) {
	c := testConfig(t)
	var out bytes.Buffer

	res, err := executeProcess(context.Background(), c, processOptions{Inputs: []string{writeInput(t)}}, &out)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Loaded)
	assert.Equal(t, 4, res.Clean.Kept)
	assert.Equal(t, 1, res.Clean.Dropped["missing_city"])
	assert.Equal(t, 1, res.Clean.Dropped["out_of_bounds"])

	s := res.Result.Stats
	assert.Equal(t, 4, s.InputRecords)
	assert.Equal(t, 3, s.UniqueRecords)
	assert.Equal(t, 1, s.RemovedByID)

	table, err := cityref.Region("algarve")
	require.NoError(t, err)
	require.Len(t, res.Result.Cities, table.Len())

	byCity := map[string]model.CityStats{}
	for _, cs := range res.Result.Cities {
		byCity[cs.City] = cs
	}
	assert.Equal(t, 2, byCity["Faro"].TotalFacilities)
	assert.Equal(t, 1, byCity["Lagos"].TotalFacilities)
	assert.Equal(t, 0, byCity["Tavira"].TotalFacilities)

	for i := 1; i < len(res.Result.Cities); i++ {
		assert.GreaterOrEqual(t, res.Result.Cities[i-1].OpportunityScore, res.Result.Cities[i].OpportunityScore)
	}

	output := out.String()
	assert.Contains(t, output, "Rank")
	assert.Contains(t, output, "Nearest km")
	assert.Contains(t, output, res.Result.Cities[0].City)
	assert.Empty(t, res.ExportPath)
	assert.Empty(t, res.RunID)
}

func TestExecuteProcess_ExportAndSave(t *testing.T) {
	c := testConfig(t)
	c.Output.Format = "csv"
	var out bytes.Buffer

	res, err := executeProcess(context.Background(), c,
		processOptions{Inputs: []string{writeInput(t)}, Save: true, Explain: true}, &out)
	require.NoError(t, err)

	require.NotEmpty(t, res.ExportPath)
	assert.FileExists(t, res.ExportPath)
	assert.Equal(t, c.Output.Dir, filepath.Dir(res.ExportPath))
	assert.Contains(t, out.String(), "Score breakdown")

	require.NotEmpty(t, res.RunID)
	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "algarve", run.Region)
	assert.Equal(t, 3, run.UniqueRecords)
	assert.Equal(t, "minmax", run.Normalization)
	assert.Equal(t, res.Scorer.ConfigHash(), run.ConfigHash)
	require.Len(t, run.Cities, len(res.Result.Cities))
	assert.Equal(t, res.Result.Cities[0].City, run.Cities[0].City)
}

func TestExecuteProcess_Errors(t *testing.T) {
	t.Run("no inputs", func(t *testing.T) {
		_, err := executeProcess(context.Background(), testConfig(t), processOptions{}, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no input")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := executeProcess(context.Background(), testConfig(t),
			processOptions{Inputs: []string{filepath.Join(t.TempDir(), "missing.csv")}}, &bytes.Buffer{})
		assert.Error(t, err)
	})

	t.Run("unknown region", func(t *testing.T) {
		c := testConfig(t)
		c.Region = "atlantis"
		_, err := executeProcess(context.Background(), c, processOptions{Inputs: []string{writeInput(t)}}, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown region")
	})
}

func TestApplyProcessOverrides(t *testing.T) {
	base := testConfig(t)

	cmd := &cobra.Command{}
	addProcessFlags(cmd)
	require.NoError(t, cmd.Flags().Set("normalization", "rank"))
	require.NoError(t, cmd.Flags().Set("format", "JSON"))
	require.NoError(t, cmd.Flags().Set("top", "0"))

	c := applyProcessOverrides(cmd, base)
	assert.Equal(t, "rank", c.Scoring.Normalization)
	assert.Equal(t, "json", c.Output.Format)
	assert.Equal(t, 0, c.Output.Top)
	assert.Equal(t, "algarve", c.Region)

	// Base config is untouched.
	assert.Equal(t, "minmax", base.Scoring.Normalization)
	assert.Equal(t, "table", base.Output.Format)

	// Unset flags keep config values.
	c = applyProcessOverrides(newFlaggedProcessCmd(), base)
	assert.Equal(t, 5, c.Output.Top)
	assert.Equal(t, base.Output.Dir, c.Output.Dir)
}

func newFlaggedProcessCmd() *cobra.Command {
	cmd := &cobra.Command{}
	addProcessFlags(cmd)
	return cmd
}

func TestWriteOpportunityTable(t *testing.T) {
	stats := []model.CityStats{
		{
			City: "Vila Real De Santo António", TotalFacilities: 1, AvgRating: model.Float(4.25),
			Population: model.Int(19156), FacilitiesPer10k: model.Float(0.522),
			DistanceToNearestKM: model.Float(21.4), OpportunityScore: 70,
		},
		{City: "Aljezur", OpportunityScore: 55.5},
		{City: "Faro", TotalFacilities: 4, Population: model.Int(64560), OpportunityScore: 20},
	}

	var buf bytes.Buffer
	require.NoError(t, writeOpportunityTable(&buf, stats, 2))

	output := buf.String()
	assert.Contains(t, output, "Vila Real De Santo António")
	assert.Contains(t, output, "70.0")
	assert.Contains(t, output, "4.25")
	assert.Contains(t, output, "21.4")
	assert.Contains(t, output, "19156")
	assert.Contains(t, output, "Aljezur")
	assert.NotContains(t, output, "Faro")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Faro", truncate("Faro", 28))
	assert.Equal(t, "São B...", truncate("São Brás De Alportel", 8))
}

func TestTopN(t *testing.T) {
	stats := make([]model.CityStats, 4)
	assert.Len(t, topN(stats, 0), 4)
	assert.Len(t, topN(stats, 2), 2)
	assert.Len(t, topN(stats, 10), 4)
}
