package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/leapstack-labs/leapprep/pkg/frame"
)

// EngineCSV is the name of the delimited text engine.
const EngineCSV = "csv"

func init() {
	Register(EngineCSV, Engine{
		NewSource: func(cfg Config) (Source, error) { return NewCSVSource(cfg) },
		NewSink:   func(cfg Config) (Sink, error) { return NewCSVSink(cfg) },
	})
}

// CSVParams holds csv engine options.
type CSVParams struct {
	// Delimiter is a single character, "," by default.
	Delimiter string `mapstructure:"delimiter"`
	// MissingMarkers are read as missing in numeric columns.
	// Defaults to frame.DefaultMissingMarkers.
	MissingMarkers []string `mapstructure:"missing_markers"`
	// Comment lines start with this character. Empty disables comments.
	Comment string `mapstructure:"comment"`
}

func (p CSVParams) runes() (delim, comment rune, err error) {
	delim = ','
	if p.Delimiter != "" {
		r, size := utf8.DecodeRuneInString(p.Delimiter)
		if size != len(p.Delimiter) {
			return 0, 0, fmt.Errorf("delimiter must be a single character, got %q", p.Delimiter)
		}
		delim = r
	}
	if p.Comment != "" {
		r, size := utf8.DecodeRuneInString(p.Comment)
		if size != len(p.Comment) {
			return 0, 0, fmt.Errorf("comment must be a single character, got %q", p.Comment)
		}
		comment = r
	}
	return delim, comment, nil
}

// CSVSource reads a headed csv file.
type CSVSource struct {
	cfg    Config
	params CSVParams
}

// NewCSVSource creates a csv source from cfg.
func NewCSVSource(cfg Config) (*CSVSource, error) {
	var p CSVParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return nil, err
	}
	if _, _, err := p.runes(); err != nil {
		return nil, err
	}
	return &CSVSource{cfg: cfg, params: p}, nil
}

// Load implements Source.
func (s *CSVSource) Load(ctx context.Context) (*frame.Table, error) {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	t, err := s.read(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.cfg.Path, err)
	}
	s.cfg.logger().Debug("loaded csv", "path", s.cfg.Path, "rows", t.Len(), "columns", t.Width())
	return t, nil
}

func (s *CSVSource) read(ctx context.Context, r io.Reader) (*frame.Table, error) {
	delim, comment, _ := s.params.runes()
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.Comment = comment

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty file: no header row")
	}
	if err != nil {
		return nil, err
	}

	var records [][]string
	for {
		if len(records)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return frame.FromRecords(header, records, frame.RecordOptions{MissingMarkers: s.params.MissingMarkers})
}

// CSVSink writes a table as csv with a header row.
type CSVSink struct {
	cfg    Config
	params CSVParams
}

// NewCSVSink creates a csv sink from cfg.
func NewCSVSink(cfg Config) (*CSVSink, error) {
	var p CSVParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return nil, err
	}
	if _, _, err := p.runes(); err != nil {
		return nil, err
	}
	return &CSVSink{cfg: cfg, params: p}, nil
}

// Write implements Sink.
func (s *CSVSink) Write(ctx context.Context, t *frame.Table) error {
	delim, _, _ := s.params.runes()
	err := writeAtomic(s.cfg.Path, func(w io.Writer) error {
		return writeCSV(ctx, w, t, delim)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", s.cfg.Path, err)
	}
	s.cfg.logger().Debug("wrote csv", "path", s.cfg.Path, "rows", t.Len(), "columns", t.Width())
	return nil
}

func writeCSV(ctx context.Context, w io.Writer, t *frame.Table, delim rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delim

	header, records := t.Records()
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, rec := range records {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeAtomic writes to a temporary file next to path and renames it into
// place once fill succeeds.
func writeAtomic(path string, fill func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = fill(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
