package frame

import (
	"errors"
	"fmt"
	"sort"
)

// Common errors for table operations.
var (
	ErrColumnNotFound = errors.New("column not found")
	ErrColumnExists   = errors.New("column already exists")
	ErrLengthMismatch = errors.New("column length does not match table")
	ErrRowOutOfRange  = errors.New("row index out of range")
	ErrNotNumeric     = errors.New("value is not numeric")
)

// Table is an ordered collection of equally long columns.
// A Table is not safe for concurrent mutation; each pipeline step owns it
// exclusively for the duration of its call.
type Table struct {
	rows    int
	columns []*Column
	index   map[string]int
}

// New creates an empty table with the given row count.
func New(rows int) *Table {
	return &Table{
		rows:  rows,
		index: make(map[string]int),
	}
}

// FromColumns builds a table from columns that must all share one length.
func FromColumns(cols ...*Column) (*Table, error) {
	rows := 0
	if len(cols) > 0 {
		rows = cols[0].Len()
	}
	t := New(rows)
	for _, c := range cols {
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.columns) }

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

// Has reports whether the table has a column with the given name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return t.columns[i], nil
}

// Columns returns the columns in order. The slice is a copy; the columns are not.
func (t *Table) Columns() []*Column {
	return append([]*Column(nil), t.columns...)
}

// AddColumn appends a new column.
func (t *Table) AddColumn(c *Column) error {
	if _, ok := t.index[c.name]; ok {
		return fmt.Errorf("%w: %s", ErrColumnExists, c.name)
	}
	if c.Len() != t.rows {
		return fmt.Errorf("%w: %s has %d rows, table has %d", ErrLengthMismatch, c.name, c.Len(), t.rows)
	}
	t.index[c.name] = len(t.columns)
	t.columns = append(t.columns, c)
	return nil
}

// SetColumn replaces the column with the same name in place, or appends it
// when the table has no such column.
func (t *Table) SetColumn(c *Column) error {
	if c.Len() != t.rows {
		return fmt.Errorf("%w: %s has %d rows, table has %d", ErrLengthMismatch, c.name, c.Len(), t.rows)
	}
	if i, ok := t.index[c.name]; ok {
		t.columns[i] = c
		return nil
	}
	return t.AddColumn(c)
}

// Drop removes the named columns. Every name must exist; nothing is removed
// otherwise.
func (t *Table) Drop(names ...string) error {
	for _, name := range names {
		if !t.Has(name) {
			return fmt.Errorf("%w: %s", ErrColumnNotFound, name)
		}
	}

	drop := make(map[string]bool, len(names))
	for _, name := range names {
		drop[name] = true
	}

	kept := t.columns[:0]
	for _, c := range t.columns {
		if !drop[c.name] {
			kept = append(kept, c)
		}
	}
	t.columns = kept
	t.reindex()
	return nil
}

// DropRows removes the rows at the given indices and shifts the rest up.
func (t *Table) DropRows(indices ...int) error {
	if len(indices) == 0 {
		return nil
	}

	remove := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= t.rows {
			return fmt.Errorf("%w: %d (table has %d rows)", ErrRowOutOfRange, i, t.rows)
		}
		remove[i] = true
	}

	keep := make([]int, 0, t.rows-len(remove))
	for i := 0; i < t.rows; i++ {
		if !remove[i] {
			keep = append(keep, i)
		}
	}
	for i, c := range t.columns {
		t.columns[i] = c.take(keep)
	}
	t.rows = len(keep)
	return nil
}

// Take returns a new table with the given rows in the given order.
func (t *Table) Take(rows []int) (*Table, error) {
	for _, r := range rows {
		if r < 0 || r >= t.rows {
			return nil, fmt.Errorf("%w: %d (table has %d rows)", ErrRowOutOfRange, r, t.rows)
		}
	}
	out := New(len(rows))
	for _, c := range t.columns {
		if err := out.AddColumn(c.take(rows)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Head returns a copy of the first n rows.
func (t *Table) Head(n int) *Table {
	if n > t.rows {
		n = t.rows
	}
	if n < 0 {
		n = 0
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	out, _ := t.Take(rows)
	return out
}

// Select returns a table sharing the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	out := New(t.rows)
	for _, name := range names {
		c, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		if err := out.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Without returns a table sharing every column except the named ones.
// Names that do not exist are ignored.
func (t *Table) Without(names ...string) *Table {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := New(t.rows)
	for _, c := range t.columns {
		if !skip[c.name] {
			_ = out.AddColumn(c)
		}
	}
	return out
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := New(t.rows)
	for _, c := range t.columns {
		_ = out.AddColumn(c.Clone())
	}
	return out
}

// Records renders the table as a header plus string rows.
func (t *Table) Records() (header []string, records [][]string) {
	header = t.Names()
	records = make([][]string, t.rows)
	for r := 0; r < t.rows; r++ {
		row := make([]string, len(t.columns))
		for i, c := range t.columns {
			row[i] = c.Cell(r)
		}
		records[r] = row
	}
	return header, records
}

// MissingSummary returns the missing-cell count of every column that has any,
// sorted by column name.
func (t *Table) MissingSummary() []MissingCount {
	var out []MissingCount
	for _, c := range t.columns {
		if n := c.MissingCount(); n > 0 {
			out = append(out, MissingCount{Column: c.name, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Column < out[j].Column })
	return out
}

// MissingCount is a per-column missing-cell count.
type MissingCount struct {
	Column string `json:"column" yaml:"column"`
	Count  int    `json:"count" yaml:"count"`
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		t.index[c.name] = i
	}
}

func (c *Column) take(rows []int) *Column {
	out := &Column{name: c.name, kind: c.kind}
	if c.kind == String {
		out.strings = make([]string, len(rows))
		for i, r := range rows {
			out.strings[i] = c.strings[r]
		}
		return out
	}
	out.floats = make([]float64, len(rows))
	for i, r := range rows {
		out.floats[i] = c.floats[r]
	}
	return out
}
