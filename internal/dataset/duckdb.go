package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/leapstack-labs/leapprep/pkg/frame"
)

// EngineDuckDB is the name of the DuckDB engine.
const EngineDuckDB = "duckdb"

func init() {
	Register(EngineDuckDB, Engine{
		NewSource: func(cfg Config) (Source, error) { return NewDuckDBSource(cfg) },
		NewSink:   func(cfg Config) (Sink, error) { return NewDuckDBSink(cfg) },
	})
}

// DuckDBParams holds duckdb engine options.
type DuckDBParams struct {
	// Extensions to install and load (e.g., "httpfs", "json").
	Extensions []string `mapstructure:"extensions"`
	// Settings applied at session level (e.g., memory_limit, threads).
	Settings map[string]string `mapstructure:"settings"`
	// MissingMarkers are read as missing in numeric columns.
	MissingMarkers []string `mapstructure:"missing_markers"`
	// Compression for parquet output, "snappy" by default.
	Compression string `mapstructure:"compression"`
}

// DuckDBSource reads a file through an in-memory DuckDB session. The reader
// is chosen from the file extension: .parquet, .json/.ndjson, anything else
// as csv. Every value is read as text and typed by frame.FromRecords, so
// sentinels such as "?" survive exactly as in the csv engine.
type DuckDBSource struct {
	cfg    Config
	params DuckDBParams
}

// NewDuckDBSource creates a duckdb source from cfg.
func NewDuckDBSource(cfg Config) (*DuckDBSource, error) {
	var p DuckDBParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return nil, err
	}
	return &DuckDBSource{cfg: cfg, params: p}, nil
}

// Load implements Source.
func (s *DuckDBSource) Load(ctx context.Context) (*frame.Table, error) {
	db, err := openDuckDB(ctx, s.params)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	query, err := scanQuery(s.cfg.Path)
	if err != nil {
		return nil, err
	}

	//nolint:rowserrcheck // rows.Err() is checked after iteration
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.cfg.Path, err)
	}
	defer func() { _ = rows.Close() }()

	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var records [][]string
	values := make([]any, len(header))
	ptrs := make([]any, len(header))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(records), err)
		}
		rec := make([]string, len(values))
		for i, v := range values {
			rec[i] = cellText(v)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	t, err := frame.FromRecords(header, records, frame.RecordOptions{MissingMarkers: s.params.MissingMarkers})
	if err != nil {
		return nil, err
	}
	s.cfg.logger().Debug("loaded table through duckdb", "path", s.cfg.Path, "rows", t.Len(), "columns", t.Width())
	return t, nil
}

// DuckDBSink writes a table as parquet when the path ends in .parquet and as
// csv otherwise. The table is staged as csv and converted with COPY, then
// renamed into place.
type DuckDBSink struct {
	cfg    Config
	params DuckDBParams
}

// NewDuckDBSink creates a duckdb sink from cfg.
func NewDuckDBSink(cfg Config) (*DuckDBSink, error) {
	var p DuckDBParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return nil, err
	}
	if p.Compression == "" {
		p.Compression = "snappy"
	}
	return &DuckDBSink{cfg: cfg, params: p}, nil
}

// Write implements Sink.
func (s *DuckDBSink) Write(ctx context.Context, t *frame.Table) error {
	dir := filepath.Dir(s.cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	staging, err := os.CreateTemp(dir, "."+filepath.Base(s.cfg.Path)+".*.csv")
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	defer func() { _ = os.Remove(staging.Name()) }()

	if err := writeCSV(ctx, staging, t, ','); err != nil {
		_ = staging.Close()
		return fmt.Errorf("failed to stage table: %w", err)
	}
	if err := staging.Close(); err != nil {
		return fmt.Errorf("failed to stage table: %w", err)
	}

	db, err := openDuckDB(ctx, s.params)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tmp := s.cfg.Path + ".tmp"
	format := s.format()
	if _, err := db.ExecContext(ctx, s.copySQL(staging.Name(), tmp)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", format, err)
	}
	if err := os.Rename(tmp, s.cfg.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move output into place: %w", err)
	}

	s.cfg.logger().Debug("wrote table through duckdb", "path", s.cfg.Path, "format", format, "rows", t.Len(), "columns", t.Width())
	return nil
}

func (s *DuckDBSink) format() string {
	if strings.EqualFold(filepath.Ext(s.cfg.Path), ".parquet") {
		return "parquet"
	}
	return "csv"
}

func (s *DuckDBSink) copySQL(staging, target string) string {
	opts := "FORMAT CSV, HEADER true"
	if s.format() == "parquet" {
		opts = "FORMAT PARQUET, COMPRESSION " + strings.ToUpper(s.params.Compression)
	}
	return fmt.Sprintf(
		"COPY (SELECT * FROM read_csv_auto(%s, header=true)) TO %s (%s)",
		quote(staging), quote(target), opts,
	)
}

func openDuckDB(ctx context.Context, p DuckDBParams) (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	// Settings and extensions are per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	for _, ext := range p.Extensions {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}
	for key, value := range p.Settings {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET %s = %s", key, quote(value))); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply setting %s: %w", key, err)
		}
	}
	return db, nil
}

func scanQuery(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("failed to open input: %w", err)
	}

	switch strings.ToLower(filepath.Ext(abs)) {
	case ".parquet":
		return fmt.Sprintf("SELECT * FROM read_parquet(%s)", quote(abs)), nil
	case ".json", ".ndjson", ".jsonl":
		return fmt.Sprintf("SELECT * FROM read_json_auto(%s)", quote(abs)), nil
	default:
		return fmt.Sprintf("SELECT * FROM read_csv(%s, header=true, all_varchar=true)", quote(abs)), nil
	}
}

// quote renders s as a SQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// cellText renders a scanned DuckDB value the way it would appear in csv.
func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		if x.Equal(x.Truncate(24 * time.Hour)) {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
