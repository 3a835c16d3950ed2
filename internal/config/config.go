package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/opportunity-cli/internal/cityref"
	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/scorer"
	"github.com/sells-group/opportunity-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Region  string        `yaml:"region" mapstructure:"region"`
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
	Input   InputConfig   `yaml:"input" mapstructure:"input"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ScoringConfig holds the opportunity score coefficients and the
// normalization strategy.
type ScoringConfig struct {
	PopulationWeight    float64 `yaml:"population_weight" mapstructure:"population_weight"`
	SaturationWeight    float64 `yaml:"saturation_weight" mapstructure:"saturation_weight"`
	QualityGapWeight    float64 `yaml:"quality_gap_weight" mapstructure:"quality_gap_weight"`
	GeographicGapWeight float64 `yaml:"geographic_gap_weight" mapstructure:"geographic_gap_weight"`
	Normalization       string  `yaml:"normalization" mapstructure:"normalization"`
}

// Weights returns the coefficients as a model.Weights.
func (s ScoringConfig) Weights() model.Weights {
	return model.Weights{
		Population:    s.PopulationWeight,
		Saturation:    s.SaturationWeight,
		QualityGap:    s.QualityGapWeight,
		GeographicGap: s.GeographicGapWeight,
	}
}

// InputConfig lists the facility sources read by process when no --input
// flag is given. Entries may be file paths or http(s) URLs.
type InputConfig struct {
	Paths     []string `yaml:"paths" mapstructure:"paths"`
	UserAgent string   `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// OutputConfig configures where and how results are written.
type OutputConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"`
	Top    int    `yaml:"top" mapstructure:"top"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PoolConfig returns the Postgres pool tuning for the store.
func (s StoreConfig) PoolConfig() *store.PoolConfig {
	return &store.PoolConfig{MaxConns: s.MaxConns, MinConns: s.MinConns}
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Output formats accepted by process.
var outputFormats = map[string]bool{"table": true, "csv": true, "xlsx": true, "json": true}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	// Missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OPPORTUNITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	w := scorer.DefaultWeights()
	v.SetDefault("region", cityref.DefaultRegion)
	v.SetDefault("scoring.population_weight", w.Population)
	v.SetDefault("scoring.saturation_weight", w.Saturation)
	v.SetDefault("scoring.quality_gap_weight", w.QualityGap)
	v.SetDefault("scoring.geographic_gap_weight", w.GeographicGap)
	v.SetDefault("scoring.normalization", scorer.NormalizationMinMax)
	v.SetDefault("input.paths", []string{})
	v.SetDefault("input.user_agent", "opportunity-cli/1.0")
	v.SetDefault("input.rate_limit", 5.0)
	v.SetDefault("output.dir", "data/exports")
	v.SetDefault("output.format", "table")
	v.SetDefault("output.top", 5)
	v.SetDefault("store.driver", store.DriverSQLite)
	v.SetDefault("store.database_url", "data/opportunity.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required by a command. Mode is one of
// "process", "serve" or "runs".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "process":
		if err := scorer.ValidateWeights(c.Scoring.Weights()); err != nil {
			errs = append(errs, err.Error())
		}
		if _, err := scorer.NormalizerByName(c.Scoring.Normalization); err != nil {
			errs = append(errs, fmt.Sprintf("scoring.normalization %q is not supported", c.Scoring.Normalization))
		}
		if _, err := cityref.Region(c.Region); err != nil {
			errs = append(errs, fmt.Sprintf("region %q is not known", c.Region))
		}
		if !outputFormats[c.Output.Format] {
			errs = append(errs, fmt.Sprintf("output.format %q must be one of table, csv, xlsx, json", c.Output.Format))
		}
		if c.Output.Top < 0 {
			errs = append(errs, "output.top must be >= 0")
		}
		if c.Input.RateLimit < 0 {
			errs = append(errs, "input.rate_limit must be >= 0")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		errs = append(errs, c.validateStore()...)
	case "runs":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.MaxConns < 0 || c.Store.MinConns < 0 {
		errs = append(errs, "store.max_conns and store.min_conns must be >= 0")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
