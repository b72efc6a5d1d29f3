package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/leapprep/internal/dataset"
	"github.com/leapstack-labs/leapprep/internal/geo"
	"github.com/leapstack-labs/leapprep/internal/split"
	"github.com/leapstack-labs/leapprep/internal/transform"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix is the prefix of environment variable overrides.
// LEAPPREP_PIPELINE__WORKERS sets pipeline.workers.
const EnvPrefix = "LEAPPREP_"

var configNames = []string{"leapprep.yaml", "leapprep.yml"}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// flagKeys maps flags whose names differ from their config keys.
var flagKeys = map[string]string{
	"input":       "input_path",
	"output-path": "output_path",
	"state":       "state_path",
	"env":         "environment",
	"log-level":   "log.level",
	"log-format":  "log.format",
}

// pathFlags are resolved against the working directory, not the project root.
var pathFlags = map[string]bool{"input": true, "output-path": true, "state": true}

// configExistsIn returns the config file in dir, or "".
func configExistsIn(dir string) string {
	for _, name := range configNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findConfigUpward searches upward from startDir for a config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findConfigUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if found := configExistsIn(dir); found != "" {
			return found
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, absolute or :memory:.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

func defaults() map[string]any {
	g := transform.DefaultGeoConfig()
	s := split.DefaultOptions()
	return map[string]any{
		"input_path":                   DefaultInputPath,
		"output_path":                  DefaultOutputPath,
		"state_path":                   DefaultStateFile,
		"environment":                  DefaultEnv,
		"verbose":                      false,
		"output":                       DefaultOutput,
		"log.level":                    "info",
		"log.format":                   "text",
		"log.seq_url":                  "",
		"loader.engine":                dataset.EngineCSV,
		"loader.drop_rows":             []int{},
		"pipeline.workers":             0,
		"pipeline.water_index":         geo.IndexKDTree,
		"pipeline.projection":          geo.Equirectangular{}.Name(),
		"pipeline.geo.center_lat":      g.CenterLat,
		"pipeline.geo.center_long":     g.CenterLong,
		"pipeline.geo.correction_lat":  g.CorrectionLat,
		"pipeline.geo.earth_radius_km": g.EarthRadiusKM,
		"split.target":                 s.Target,
		"split.test_ratio":             s.TestRatio,
		"split.seed":                   s.Seed,
		"split.drop":                   s.Drop,
		"split.train_path":             DefaultTrainPath,
		"split.test_path":              DefaultTestPath,
	}
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file; its directory becomes the project root
	projectRoot := cwd
	if cfgFile == "" {
		cfgFile = findConfigUpward(cwd)
	} else if _, err := os.Stat(cfgFile); err != nil {
		return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
	}
	configFileUsed = cfgFile
	if configFileUsed != "" {
		if abs, err := filepath.Abs(configFileUsed); err == nil {
			projectRoot = filepath.Dir(abs)
		}
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (LEAPPREP_ prefix, __ separates levels)
	// Transform: LEAPPREP_LOG__LEVEL -> log.level
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			val := posflag.FlagVal(flags, f)
			if pathFlags[f.Name] {
				if s, ok := val.(string); ok && s != "" && s != ":memory:" {
					if abs, err := filepath.Abs(s); err == nil {
						val = abs
					}
				}
			}
			return key, val
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Resolve relative paths against the project root
	cfg.ProjectRoot = projectRoot
	cfg.InputPath = resolvePathRelativeTo(cfg.InputPath, projectRoot)
	cfg.OutputPath = resolvePathRelativeTo(cfg.OutputPath, projectRoot)
	cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	cfg.Split.TrainPath = resolvePathRelativeTo(cfg.Split.TrainPath, projectRoot)
	cfg.Split.TestPath = resolvePathRelativeTo(cfg.Split.TestPath, projectRoot)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	currentConfig = &cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// WithLogger stores the logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}
