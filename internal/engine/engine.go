// Package engine runs the preprocessing pipeline over an input file.
// It handles loading, schema validation, step tracking and atomic output.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/leapstack-labs/leapprep/internal/dataset"
	"github.com/leapstack-labs/leapprep/internal/state"
	"github.com/leapstack-labs/leapprep/internal/transform"
	"github.com/leapstack-labs/leapprep/pkg/frame"
)

// Engine orchestrates pipeline runs.
type Engine struct {
	logger *slog.Logger

	store       state.Store
	pipeline    *transform.Pipeline
	lineage     *transform.Lineage
	environment string

	inputPath  string
	outputPath string
	loader     LoaderConfig
	sinkParams map[string]any

	mu   sync.Mutex
	last *frame.Table
}

// LoaderConfig selects how the input is read.
type LoaderConfig struct {
	// Engine is a registered dataset engine (csv, duckdb).
	Engine string
	// Params are engine-specific options.
	Params map[string]any
	// DropRows are row indices removed before the pipeline runs.
	DropRows []int
}

// Config holds engine configuration.
type Config struct {
	// InputPath is the raw table to read.
	InputPath string
	// OutputPath is where the feature table is written. Empty skips writing.
	OutputPath string
	// StatePath is the path to the SQLite state database
	StatePath string
	// Environment is the current environment (dev, staging, prod)
	Environment string
	// Loader selects the input engine.
	Loader LoaderConfig
	// SinkParams are engine-specific options for the output.
	SinkParams map[string]any
	// Pipeline configures the transformers.
	Pipeline transform.Options
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an engine, opening the state store and building the pipeline.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing engine", "input", cfg.InputPath, "environment", cfg.Environment)

	if cfg.Pipeline.Logger == nil {
		cfg.Pipeline.Logger = logger
	}
	pipeline, err := transform.NewPipeline(cfg.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	lineage, err := pipeline.Lineage()
	if err != nil {
		return nil, fmt.Errorf("failed to build lineage: %w", err)
	}

	statePath := cfg.StatePath
	if statePath == "" {
		statePath = ":memory:"
	}
	if statePath != ":memory:" {
		if dir := filepath.Dir(statePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}
	store := state.NewSQLiteStore(logger)
	if err := store.Open(statePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	env := cfg.Environment
	if env == "" {
		env = "dev"
	}
	loader := cfg.Loader
	if loader.Engine == "" {
		loader.Engine = dataset.EngineCSV
	}

	return &Engine{
		logger:      logger,
		store:       store,
		pipeline:    pipeline,
		lineage:     lineage,
		environment: env,
		inputPath:   cfg.InputPath,
		outputPath:  cfg.OutputPath,
		loader:      loader,
		sinkParams:  cfg.SinkParams,
	}, nil
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %w", errors.Join(errs...))
	}
	return nil
}

// Pipeline returns the pipeline the engine runs.
func (e *Engine) Pipeline() *transform.Pipeline {
	return e.pipeline
}

// Lineage returns the column lineage of the pipeline.
func (e *Engine) Lineage() *transform.Lineage {
	return e.lineage
}

// Steps lists the pipeline steps in execution order.
func (e *Engine) Steps() []transform.StepRef {
	return e.pipeline.Steps()
}

// StateStore returns the state store.
func (e *Engine) StateStore() state.Store {
	return e.store
}

// Environment returns the environment runs are recorded under.
func (e *Engine) Environment() string {
	return e.environment
}

// Result returns the table produced by the last successful run, or nil.
func (e *Engine) Result() *frame.Table {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Preview returns the first n rows of the last successful run, or nil.
func (e *Engine) Preview(n int) *frame.Table {
	last := e.Result()
	if last == nil {
		return nil
	}
	return last.Head(n)
}
