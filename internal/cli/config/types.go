// Package config provides configuration management for the LeapPrep CLI.
package config

import (
	"github.com/leapstack-labs/leapprep/internal/transform"
)

// Config holds all CLI configuration options.
type Config struct {
	InputPath    string         `koanf:"input_path"`
	OutputPath   string         `koanf:"output_path"`
	StatePath    string         `koanf:"state_path"`
	Environment  string         `koanf:"environment"`
	Verbose      bool           `koanf:"verbose"`
	OutputFormat string         `koanf:"output"`
	Log          LogConfig      `koanf:"log"`
	Loader       LoaderConfig   `koanf:"loader"`
	Pipeline     PipelineConfig `koanf:"pipeline"`
	Split        SplitConfig    `koanf:"split"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	SeqURL string `koanf:"seq_url"`
}

// LoaderConfig selects how the input table is read.
type LoaderConfig struct {
	Engine   string         `koanf:"engine"`
	DropRows []int          `koanf:"drop_rows"`
	Params   map[string]any `koanf:"params"`
}

// PipelineConfig configures the transformers.
type PipelineConfig struct {
	Workers    int                 `koanf:"workers"`
	WaterIndex string              `koanf:"water_index"`
	Projection string              `koanf:"projection"`
	Geo        transform.GeoConfig `koanf:"geo"`
}

// Options converts the pipeline section to transform options.
func (p PipelineConfig) Options() transform.Options {
	return transform.Options{
		Geo:        p.Geo,
		Projection: p.Projection,
		IndexKind:  p.WaterIndex,
		Workers:    p.Workers,
	}
}

// SplitConfig configures the train/test split.
type SplitConfig struct {
	Target    string   `koanf:"target"`
	TestRatio float64  `koanf:"test_ratio"`
	Seed      uint64   `koanf:"seed"`
	Drop      []string `koanf:"drop"`
	TrainPath string   `koanf:"train_path"`
	TestPath  string   `koanf:"test_path"`
}

// Default configuration values.
const (
	DefaultInputPath  = "data/kc_house_data.csv"
	DefaultOutputPath = "build/kc_house_features.csv"
	DefaultStateFile  = ".leapprep/state.db"
	DefaultEnv        = "dev"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultTrainPath  = "build/train.csv"
	DefaultTestPath   = "build/test.csv"
)
