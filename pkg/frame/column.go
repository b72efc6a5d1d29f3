// Package frame provides the in-memory table that flows through the
// preparation pipeline.
//
// A Table is an ordered set of equally long named columns. Numeric columns
// store float64 values and use NaN as the missing marker; string columns keep
// the raw cell text, where the empty string means missing.
package frame

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the storage type of a column.
type Kind int

const (
	// Float columns hold arbitrary float64 values.
	Float Kind = iota
	// Int columns hold integral float64 values and render without decimals.
	Int
	// String columns hold raw text.
	String
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case Int:
		return "int"
	case String:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Numeric reports whether the kind stores float64 values.
func (k Kind) Numeric() bool {
	return k == Float || k == Int
}

// Missing returns the numeric missing marker.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v is the numeric missing marker.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Column is a named, typed sequence aligned to table row order.
type Column struct {
	name    string
	kind    Kind
	floats  []float64
	strings []string
}

// NewFloat creates a Float column. The slice is owned by the column.
func NewFloat(name string, values []float64) *Column {
	return &Column{name: name, kind: Float, floats: values}
}

// NewInt creates an Int column. The slice is owned by the column.
func NewInt(name string, values []float64) *Column {
	return &Column{name: name, kind: Int, floats: values}
}

// NewString creates a String column. The slice is owned by the column.
func NewString(name string, values []string) *Column {
	return &Column{name: name, kind: String, strings: values}
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Kind returns the column kind.
func (c *Column) Kind() Kind { return c.kind }

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	if c.kind == String {
		return len(c.strings)
	}
	return len(c.floats)
}

// Floats returns the backing slice of a numeric column, or nil for strings.
// Writes through the slice mutate the column.
func (c *Column) Floats() []float64 {
	if c.kind == String {
		return nil
	}
	return c.floats
}

// Strings returns the backing slice of a string column, or nil for numbers.
func (c *Column) Strings() []string {
	if c.kind != String {
		return nil
	}
	return c.strings
}

// Float returns the value at row i. String columns are parsed on the fly and
// yield the missing marker when the cell is empty or not a number.
func (c *Column) Float(i int) float64 {
	if c.kind != String {
		return c.floats[i]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(c.strings[i]), 64)
	if err != nil {
		return Missing()
	}
	return v
}

// IsMissing reports whether row i holds a missing marker.
func (c *Column) IsMissing(i int) bool {
	if c.kind == String {
		return c.strings[i] == ""
	}
	return IsMissing(c.floats[i])
}

// MissingCount returns the number of missing cells.
func (c *Column) MissingCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			n++
		}
	}
	return n
}

// Cell renders row i as text. Missing cells render as the empty string.
func (c *Column) Cell(i int) string {
	switch c.kind {
	case String:
		return c.strings[i]
	case Int:
		v := c.floats[i]
		if IsMissing(v) {
			return ""
		}
		return strconv.FormatFloat(math.Trunc(v), 'f', 0, 64)
	default:
		v := c.floats[i]
		if IsMissing(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
}

// Clone returns a deep copy of the column.
func (c *Column) Clone() *Column {
	out := &Column{name: c.name, kind: c.kind}
	if c.floats != nil {
		out.floats = append([]float64(nil), c.floats...)
	}
	if c.strings != nil {
		out.strings = append([]string(nil), c.strings...)
	}
	return out
}

// Renamed returns a shallow copy of the column under a new name.
func (c *Column) Renamed(name string) *Column {
	out := *c
	out.name = name
	return &out
}

// ToFloat converts the column to a Float column. Cells equal to one of the
// sentinels, and empty cells, become the missing marker. Any other cell that
// does not parse as a number is an error.
func (c *Column) ToFloat(sentinels ...string) (*Column, error) {
	if c.kind.Numeric() {
		return &Column{name: c.name, kind: Float, floats: append([]float64(nil), c.floats...)}, nil
	}

	out := make([]float64, len(c.strings))
	for i, s := range c.strings {
		s = strings.TrimSpace(s)
		if s == "" || contains(sentinels, s) {
			out[i] = Missing()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: cannot convert %q to float: %w", c.name, i, s, ErrNotNumeric)
		}
		out[i] = v
	}
	return NewFloat(c.name, out), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
