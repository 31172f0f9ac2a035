package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

// Container opens named tables. *File reads sqlite files; MemoryFile is
// used in tests.
type Container interface {
	Table(ctx context.Context, name string) (Table, error)
	Close() error
}

// File is a read-only sqlite file holding one table per event tree.
type File struct {
	db   *sql.DB
	path string
}

// Open opens an existing sqlite event file read-only.
func Open(ctx context.Context, path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open event file: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open event file %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open event file %s: %w", path, err)
	}
	return &File{db: db, path: path}, nil
}

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Close releases the file.
func (f *File) Close() error { return f.db.Close() }

// Table returns the named table.
func (f *File) Table(ctx context.Context, name string) (Table, error) {
	rows, err := f.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", name)
	if err != nil {
		return nil, fmt.Errorf("describe table %q: %w", name, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("describe table %q: %w", name, err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe table %q: %w", name, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %q in %s", ErrNoTable, name, f.path)
	}
	return &SQLTable{db: f.db, name: name, act: newActivation(columns)}, nil
}

// SQLTable is a table of a sqlite event file.
type SQLTable struct {
	db   *sql.DB
	name string
	act  activation
}

func (t *SQLTable) Name() string                    { return t.name }
func (t *SQLTable) Columns() []string               { return append([]string(nil), t.act.columns...) }
func (t *SQLTable) Activate(fields ...string) error { return t.act.activate(t.name, fields) }
func (t *SQLTable) ResetActivation()                { t.act.reset() }
func (t *SQLTable) Active() []string                { return t.act.list() }

// Scan selects only the active columns.
func (t *SQLTable) Scan(ctx context.Context, fn func(Row) error) error {
	active := t.act.list()
	cols := "1"
	if len(active) > 0 {
		quoted := make([]string, len(active))
		for i, c := range active {
			quoted[i] = quoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	rows, err := t.db.QueryContext(ctx, "SELECT "+cols+" FROM "+quoteIdent(t.name))
	if err != nil {
		return fmt.Errorf("scan %q: %w", t.name, err)
	}
	defer rows.Close()

	vals := make([]sql.NullFloat64, len(active))
	dest := make([]any, len(active))
	if len(active) == 0 {
		dest = []any{new(int64)}
	}
	for i := range vals {
		dest[i] = &vals[i]
	}
	row := make(Row, len(active))
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan %q: %w", t.name, err)
		}
		for i, c := range active {
			row[c] = vals[i].Float64
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// MemoryFile is an in-memory Container.
type MemoryFile map[string]*Memory

func (m MemoryFile) Table(_ context.Context, name string) (Table, error) {
	t, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoTable, name)
	}
	return t, nil
}

func (m MemoryFile) Close() error { return nil }
