// Package dataset reads house sale tables from files and writes pipeline
// results back out.
//
// Engines are registered by name. "csv" reads and writes delimited text with
// encoding/csv; "duckdb" reads anything DuckDB can scan (csv, parquet, json)
// and writes parquet.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"github.com/leapstack-labs/leapprep/pkg/frame"
)

// Source loads a table.
type Source interface {
	Load(ctx context.Context) (*frame.Table, error)
}

// Sink stores a table. Implementations write atomically: either the whole
// table lands at the destination or the destination is left untouched.
type Sink interface {
	Write(ctx context.Context, t *frame.Table) error
}

// Config selects and configures an engine.
type Config struct {
	// Engine is a registered engine name.
	Engine string
	// Path is the file to read or write.
	Path string
	// Params holds engine-specific options, decoded with mapstructure.
	Params map[string]any
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// Engine constructs sources and sinks for one storage format.
type Engine struct {
	NewSource func(Config) (Source, error)
	NewSink   func(Config) (Sink, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Engine)
)

// Register adds an engine under name. Engines register in init().
func Register(name string, e Engine) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = e
}

// Engines returns the registered engine names, sorted.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Engine, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[name]
	if !ok {
		return Engine{}, &UnknownEngineError{Engine: name, Available: Engines()}
	}
	return e, nil
}

// OpenSource returns a source for cfg.
func OpenSource(cfg Config) (Source, error) {
	e, err := lookup(cfg.Engine)
	if err != nil {
		return nil, err
	}
	return e.NewSource(cfg)
}

// OpenSink returns a sink for cfg. A path ending in .parquet always uses the
// duckdb engine.
func OpenSink(cfg Config) (Sink, error) {
	if strings.EqualFold(filepath.Ext(cfg.Path), ".parquet") {
		cfg.Engine = EngineDuckDB
	}
	e, err := lookup(cfg.Engine)
	if err != nil {
		return nil, err
	}
	if e.NewSink == nil {
		return nil, fmt.Errorf("engine %q cannot write tables", cfg.Engine)
	}
	return e.NewSink(cfg)
}

// UnknownEngineError is returned when an unknown engine is requested.
type UnknownEngineError struct {
	Engine    string
	Available []string
}

func (e *UnknownEngineError) Error() string {
	return fmt.Sprintf("unknown loader engine %q\nAvailable engines: %v\nHint: Check loader.engine in leapprep.yaml", e.Engine, e.Available)
}

// decodeParams decodes engine params into out, rejecting unknown keys.
// String values are converted, so params set through environment variables
// decode into numeric and boolean fields.
func decodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("invalid loader params: %w", err)
	}
	return nil
}
