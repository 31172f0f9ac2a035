// Package source reads event tables. A table exposes named numeric
// columns; callers activate only the columns an expression needs and then
// stream rows through Scan.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownField is returned when activating a column the table
	// does not have.
	ErrUnknownField = errors.New("unknown field")
	// ErrNoTable is returned when the requested table does not exist.
	ErrNoTable = errors.New("no such table")
)

// Row maps active column names to values. NULL values read as 0.
type Row map[string]float64

// Table is an event table with selective column activation. A Table is
// not safe for concurrent use: activation state is shared by every Scan.
type Table interface {
	Name() string
	Columns() []string
	// Activate enables the named columns in addition to those already
	// active.
	Activate(fields ...string) error
	// ResetActivation disables every column.
	ResetActivation()
	Active() []string
	// Scan calls fn for each row with only the active columns populated.
	// The Row is reused between calls.
	Scan(ctx context.Context, fn func(Row) error) error
}

// activation tracks the active column set of a table.
type activation struct {
	columns []string
	known   map[string]bool
	active  map[string]bool
}

func newActivation(columns []string) activation {
	a := activation{
		columns: columns,
		known:   make(map[string]bool, len(columns)),
		active:  make(map[string]bool),
	}
	for _, c := range columns {
		a.known[c] = true
	}
	return a
}

func (a *activation) activate(table string, fields []string) error {
	var missing []string
	for _, f := range fields {
		if !a.known[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w in table %q: %v", ErrUnknownField, table, missing)
	}
	for _, f := range fields {
		a.active[f] = true
	}
	return nil
}

func (a *activation) reset() { a.active = make(map[string]bool) }

func (a *activation) list() []string {
	out := make([]string, 0, len(a.active))
	for f := range a.active {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Memory is an in-memory Table.
type Memory struct {
	name string
	act  activation
	rows [][]float64
	idx  map[string]int
}

// NewMemory creates a table with the given column order.
func NewMemory(name string, columns ...string) *Memory {
	m := &Memory{
		name: name,
		act:  newActivation(append([]string(nil), columns...)),
		idx:  make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		m.idx[c] = i
	}
	return m
}

// Append adds one row; values follow the column order.
func (m *Memory) Append(values ...float64) error {
	if len(values) != len(m.act.columns) {
		return fmt.Errorf("table %q: row has %d values, want %d", m.name, len(values), len(m.act.columns))
	}
	m.rows = append(m.rows, append([]float64(nil), values...))
	return nil
}

func (m *Memory) Name() string                    { return m.name }
func (m *Memory) Columns() []string               { return append([]string(nil), m.act.columns...) }
func (m *Memory) Activate(fields ...string) error { return m.act.activate(m.name, fields) }
func (m *Memory) ResetActivation()                { m.act.reset() }
func (m *Memory) Active() []string                { return m.act.list() }

// Len is the number of rows.
func (m *Memory) Len() int { return len(m.rows) }

func (m *Memory) Scan(ctx context.Context, fn func(Row) error) error {
	active := m.act.list()
	row := make(Row, len(active))
	for _, r := range m.rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, c := range active {
			row[c] = r[m.idx[c]]
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}
