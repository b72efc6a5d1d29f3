package commands

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapprep/internal/cli/config"
	"github.com/leapstack-labs/leapprep/internal/cli/output"
	"github.com/leapstack-labs/leapprep/internal/dataset"
	"github.com/leapstack-labs/leapprep/internal/engine"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx, err := NewCommandContextWithoutEngine(cmd)
	if err != nil {
		return nil, nil, err
	}

	eng, err := createEngine(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Engine = eng

	cleanup := func() {
		if err := eng.Close(); err != nil {
			cmdCtx.Logger.Warn("failed to close engine", "error", err)
		}
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that only describe the pipeline.
func NewCommandContextWithoutEngine(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}, nil
}

// getConfig returns the configuration loaded by the root command, loading
// file and environment settings when a command runs standalone.
func getConfig() (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	return config.LoadConfig("", nil)
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	return engine.New(engineConfig(cfg, logger))
}

func engineConfig(cfg *config.Config, logger *slog.Logger) engine.Config {
	return engine.Config{
		InputPath:   cfg.InputPath,
		OutputPath:  cfg.OutputPath,
		StatePath:   cfg.StatePath,
		Environment: cfg.Environment,
		Loader: engine.LoaderConfig{
			Engine:   cfg.Loader.Engine,
			Params:   cfg.Loader.Params,
			DropRows: cfg.Loader.DropRows,
		},
		SinkParams: sinkParams(cfg, cfg.OutputPath),
		Pipeline:   cfg.Pipeline.Options(),
		Logger:     logger,
	}
}

// sinkParams returns the loader params for a sink at path. Parquet outputs
// are always written by duckdb, so params of another engine do not apply.
func sinkParams(cfg *config.Config, path string) map[string]any {
	if strings.EqualFold(filepath.Ext(path), ".parquet") && cfg.Loader.Engine != dataset.EngineDuckDB {
		return nil
	}
	return cfg.Loader.Params
}
