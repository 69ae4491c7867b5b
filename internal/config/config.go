package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/YuminosukeSato/cytodash/pkg/errors"
	"github.com/YuminosukeSato/cytodash/pkg/log"
	"github.com/YuminosukeSato/cytodash/preprocessing"
)

type Config struct {
	Data     Data
	Training Training
	Server   Server
	Log      Log
}

type Data struct {
	Path     string `env:"CYTODASH_DATA_PATH" envDefault:"data/data.csv"`
	ModelDir string `env:"CYTODASH_MODEL_DIR" envDefault:"model"`
}

type Training struct {
	TestSize     float64 `env:"CYTODASH_TEST_SIZE" envDefault:"0.2"`
	RandomState  int64   `env:"CYTODASH_RANDOM_STATE" envDefault:"42"`
	MaxIter      int     `env:"CYTODASH_MAX_ITER" envDefault:"1000"`
	C            float64 `env:"CYTODASH_C" envDefault:"1.0"`
	ZeroVariance string  `env:"CYTODASH_ZERO_VARIANCE" envDefault:"reject"`
}

type Server struct {
	Addr            string        `env:"CYTODASH_HTTP_ADDR" envDefault:":8501"`
	MetricsAddr     string        `env:"CYTODASH_METRICS_ADDR" envDefault:":9090"`
	ShutdownTimeout time.Duration `env:"CYTODASH_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ChartCacheTTL   time.Duration `env:"CYTODASH_CHART_CACHE_TTL" envDefault:"5m"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file from the working directory, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	return parse(env.Options{})
}

// LoadFile is Load with an explicit .env file, which must exist.
func LoadFile(path string) (Config, error) {
	if err := godotenv.Load(path); err != nil {
		return Config{}, fmt.Errorf("godotenv.Load: %w", err)
	}

	return parse(env.Options{})
}

// LoadFromMap parses settings from m only, ignoring the process environment.
func LoadFromMap(m map[string]string) (Config, error) {
	return parse(env.Options{Environment: m})
}

func parse(opts env.Options) (Config, error) {
	var config Config

	if err := env.ParseWithOptions(&config, opts); err != nil {
		return Config{}, fmt.Errorf("env.Parse: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks values env cannot check by type alone.
func (c Config) Validate() error {
	if !(c.Training.TestSize > 0 && c.Training.TestSize < 1) {
		return errors.NewValidationError("CYTODASH_TEST_SIZE", "must be in (0, 1)", c.Training.TestSize)
	}
	if c.Training.MaxIter < 1 {
		return errors.NewValidationError("CYTODASH_MAX_ITER", "must be at least 1", c.Training.MaxIter)
	}
	if !(c.Training.C > 0) {
		return errors.NewValidationError("CYTODASH_C", "must be positive", c.Training.C)
	}
	if _, err := c.Training.Policy(); err != nil {
		return err
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.NewValidationError("CYTODASH_SHUTDOWN_TIMEOUT", "must be positive", c.Server.ShutdownTimeout)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case log.FormatJSON, log.FormatConsole, log.FormatCloud:
	default:
		return errors.NewValidationError("LOG_FORMAT", "must be json, console or cloud", c.Log.Format)
	}
	return nil
}

// MetricsDisabled is the CYTODASH_METRICS_ADDR value that turns the metrics listener off.
const MetricsDisabled = "off"

// MetricsEnabled reports whether the metrics listener should run.
func (s Server) MetricsEnabled() bool {
	return s.MetricsAddr != "" && s.MetricsAddr != MetricsDisabled
}

// Policy returns the zero-variance policy of the scaler.
func (t Training) Policy() (preprocessing.ZeroVariancePolicy, error) {
	return preprocessing.ParseZeroVariancePolicy(t.ZeroVariance)
}
