package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// No config.yaml or .env in a fresh temp dir
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "algarve", cfg.Region)
	assert.InDelta(t, 0.2, cfg.Scoring.PopulationWeight, 0.001)
	assert.InDelta(t, 0.3, cfg.Scoring.SaturationWeight, 0.001)
	assert.InDelta(t, 0.2, cfg.Scoring.QualityGapWeight, 0.001)
	assert.InDelta(t, 0.3, cfg.Scoring.GeographicGapWeight, 0.001)
	assert.Equal(t, "minmax", cfg.Scoring.Normalization)
	assert.Empty(t, cfg.Input.Paths)
	assert.Equal(t, "data/exports", cfg.Output.Dir)
	assert.Equal(t, "table", cfg.Output.Format)
	assert.Equal(t, 5, cfg.Output.Top)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/opportunity.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.NoError(t, cfg.Validate("process"))
	assert.NoError(t, cfg.Validate("serve"))
	assert.NoError(t, cfg.Validate("runs"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
region: algarve
scoring:
  population_weight: 0.25
  saturation_weight: 0.25
  quality_gap_weight: 0.25
  geographic_gap_weight: 0.25
  normalization: rank
input:
  paths:
    - data/padel.csv
    - data/extra.json
store:
  driver: postgres
  database_url: postgres://localhost/opportunity
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.25, cfg.Scoring.PopulationWeight, 0.001)
	assert.Equal(t, "rank", cfg.Scoring.Normalization)
	assert.Equal(t, []string{"data/padel.csv", "data/extra.json"}, cfg.Input.Paths)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/opportunity", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/exports", cfg.Output.Dir)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("OPPORTUNITY_STORE_DRIVER", "postgres")
	t.Setenv("OPPORTUNITY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("OPPORTUNITY_SERVER_PORT", "3000")
	t.Setenv("OPPORTUNITY_SCORING_NORMALIZATION", "rank")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "rank", cfg.Scoring.Normalization)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPPORTUNITY_OUTPUT_FORMAT=csv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("OPPORTUNITY_OUTPUT_FORMAT") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "csv", cfg.Output.Format)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("scoring: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	return &Config{
		Region: "algarve",
		Scoring: ScoringConfig{
			PopulationWeight:    0.2,
			SaturationWeight:    0.3,
			QualityGapWeight:    0.2,
			GeographicGapWeight: 0.3,
			Normalization:       "minmax",
		},
		Output: OutputConfig{Dir: "data/exports", Format: "table", Top: 5},
		Store:  StoreConfig{Driver: "sqlite", DatabaseURL: "data/opportunity.db"},
		Server: ServerConfig{Port: 8080},
	}
}

func TestValidateProcess(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "weights do not sum to one",
			mutate:  func(c *Config) { c.Scoring.PopulationWeight = 0.5 },
			wantErr: "weights must sum to 1.0",
		},
		{
			name: "weight out of range",
			mutate: func(c *Config) {
				c.Scoring.PopulationWeight = -0.1
				c.Scoring.SaturationWeight = 0.6
			},
			wantErr: "population_weight must be between 0 and 1",
		},
		{
			name:    "unknown normalization",
			mutate:  func(c *Config) { c.Scoring.Normalization = "zscore" },
			wantErr: `scoring.normalization "zscore" is not supported`,
		},
		{
			name:    "unknown region",
			mutate:  func(c *Config) { c.Region = "atlantis" },
			wantErr: `region "atlantis" is not known`,
		},
		{
			name:    "bad output format",
			mutate:  func(c *Config) { c.Output.Format = "pdf" },
			wantErr: "output.format",
		},
		{
			name:    "negative top",
			mutate:  func(c *Config) { c.Output.Top = -1 },
			wantErr: "output.top must be >= 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("process")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate("serve"))
}

func TestValidateRuns_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("runs")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql" must be sqlite or postgres`)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestScoringConfigWeights(t *testing.T) {
	w := validDefaults().Scoring.Weights()
	assert.InDelta(t, 1.0, w.Sum(), 1e-9)
	assert.InDelta(t, 0.3, w.GeographicGap, 1e-9)
}

func TestStoreConfigPoolConfig(t *testing.T) {
	pc := StoreConfig{MaxConns: 8, MinConns: 2}.PoolConfig()
	assert.Equal(t, int32(8), pc.MaxConns)
	assert.Equal(t, int32(2), pc.MinConns)
}
