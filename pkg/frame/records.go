package frame

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultMissingMarkers are the cell values read as "no value" when a
// column is inferred as numeric.
var DefaultMissingMarkers = []string{"", "NA", "NaN", "nan", "NULL", "null"}

// RecordOptions controls kind inference in FromRecords.
type RecordOptions struct {
	// MissingMarkers are read as missing in numeric columns. Defaults to
	// DefaultMissingMarkers when nil.
	MissingMarkers []string
	// Kinds forces the kind of named columns instead of inferring it.
	Kinds map[string]Kind
}

// FromRecords builds a table from a header and string rows, inferring each
// column's kind. A column is numeric when every non-missing cell parses as a
// number; it is Int when additionally every value is integral and none is
// missing. Anything else, including sentinels such as "?", keeps the column
// as String.
func FromRecords(header []string, records [][]string, opts RecordOptions) (*Table, error) {
	markers := opts.MissingMarkers
	if markers == nil {
		markers = DefaultMissingMarkers
	}

	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if seen[h] {
			return nil, fmt.Errorf("%w: duplicate header %s", ErrColumnExists, h)
		}
		seen[h] = true
	}

	for r, rec := range records {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("record %d has %d fields, header has %d", r, len(rec), len(header))
		}
	}

	t := New(len(records))
	for j, name := range header {
		cells := make([]string, len(records))
		for r, rec := range records {
			cells[r] = rec[j]
		}

		kind, forced := opts.Kinds[name]
		if !forced {
			kind = inferKind(cells, markers)
		}

		col, err := buildColumn(name, kind, cells, markers)
		if err != nil {
			return nil, err
		}
		if err := t.AddColumn(col); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func inferKind(cells []string, markers []string) Kind {
	integral := true
	anyMissing := false
	anyValue := false
	for _, s := range cells {
		s = strings.TrimSpace(s)
		if contains(markers, s) {
			anyMissing = true
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return String
		}
		anyValue = true
		if v != math.Trunc(v) || strings.ContainsAny(s, ".eE") {
			integral = false
		}
	}
	if !anyValue {
		// An all-missing column stays numeric so imputers can fill it.
		return Float
	}
	if integral && !anyMissing {
		return Int
	}
	return Float
}

func buildColumn(name string, kind Kind, cells []string, markers []string) (*Column, error) {
	if kind == String {
		return NewString(name, cells), nil
	}

	values := make([]float64, len(cells))
	for i, s := range cells {
		s = strings.TrimSpace(s)
		if contains(markers, s) {
			values[i] = Missing()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %q: %w", name, i, s, ErrNotNumeric)
		}
		values[i] = v
	}
	if kind == Int {
		return NewInt(name, values), nil
	}
	return NewFloat(name, values), nil
}
