// Package testutil provides shared test utilities and fixtures.
//
// Event fixtures are sqlite files with one table per event tree, the same
// layout the fill stage reads in production.
package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

// EventTable is a fixture table: column names and rows of values in
// column order.
type EventTable struct {
	Columns []string
	Rows    [][]float64
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// WriteEventFile creates dir/<period>_<source>.db holding the given
// tables and returns its path.
func WriteEventFile(t *testing.T, dir, period, source string, tables map[string]EventTable) string {
	t.Helper()
	path := filepath.Join(dir, period+"_"+source+".db")
	AssertNoError(t, WriteTables(path, tables))
	return path
}

// WriteTables writes tables into a new or existing sqlite file.
func WriteTables(path string, tables map[string]EventTable) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	for name, tbl := range tables {
		cols := make([]string, len(tbl.Columns))
		marks := make([]string, len(tbl.Columns))
		for i, c := range tbl.Columns {
			cols[i] = fmt.Sprintf("%q REAL", c)
			marks[i] = "?"
		}
		if _, err := db.Exec(fmt.Sprintf("CREATE TABLE %q (%s)", name, strings.Join(cols, ", "))); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %q VALUES (%s)", name, strings.Join(marks, ", ")))
		if err != nil {
			tx.Rollback()
			return err
		}
		for _, r := range tbl.Rows {
			args := make([]any, len(r))
			for i, v := range r {
				args[i] = v
			}
			if _, err := stmt.Exec(args...); err != nil {
				stmt.Close()
				tx.Rollback()
				return fmt.Errorf("insert into %s: %w", name, err)
			}
		}
		stmt.Close()
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
