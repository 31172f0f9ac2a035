// Package store persists histograms in sqlite files, one row per named
// histogram. A store plays the role of a shape file: the card refers to
// it by path and to its histograms by name.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/tagprobe/internal/hist"
)

var (
	// ErrNotFound is returned by Get for an unknown histogram name.
	ErrNotFound = errors.New("histogram not found")
	// ErrMissingInput is returned by Merge when an input store does not exist.
	ErrMissingInput = errors.New("missing input store")
)

// Store is an open histogram file.
type Store struct {
	db   *sql.DB
	path string
}

// Create creates a new store at path, replacing any existing file.
func Create(ctx context.Context, path string) (*Store, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("replace store %s: %w", path, err)
	}
	s, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := s.setMeta(ctx, "run_id", uuid.NewString()); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.setMeta(ctx, "created_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing store.
func Open(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return nil, fmt.Errorf("open store: %w", err)
	}
	return open(ctx, path)
}

func open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// One writer per file.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if err := migrateUp(db, migrationsFS); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the file path.
func (s *Store) Path() string { return s.path }

// Close releases the file.
func (s *Store) Close() error { return s.db.Close() }

// RunID returns the identifier written when the store was created.
func (s *Store) RunID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE key = 'run_id'").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO store_meta (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("write store metadata: %w", err)
	}
	return nil
}

const upsert = `INSERT OR REPLACE INTO histograms (name, dims, x_edges, y_edges, sumw, sumw2, entries, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`

// Put writes h under h.Name, overwriting any histogram of that name.
func (s *Store) Put(ctx context.Context, h *hist.Histogram) error {
	return s.PutAll(ctx, []*hist.Histogram{h})
}

// PutAll writes hs in one transaction.
func (s *Store) PutAll(ctx context.Context, hs []*hist.Histogram) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, h := range hs {
		dims := 1
		var y []byte
		if h.Is2D() {
			dims = 2
			y = encode(h.YEdges)
		}
		if _, err := stmt.ExecContext(ctx, h.Name, dims, encode(h.XEdges), y, encode(h.SumW), encode(h.SumW2), h.Entries); err != nil {
			tx.Rollback()
			return fmt.Errorf("write histogram %q to %s: %w", h.Name, s.path, err)
		}
	}
	return tx.Commit()
}

// Get reads the named histogram.
func (s *Store) Get(ctx context.Context, name string) (*hist.Histogram, error) {
	var (
		dims              int
		x, y, sumw, sumw2 []byte
		entries           int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT dims, x_edges, y_edges, sumw, sumw2, entries FROM histograms WHERE name = ?", name,
	).Scan(&dims, &x, &y, &sumw, &sumw2, &entries)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q in %s", ErrNotFound, name, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("read histogram %q: %w", name, err)
	}

	h := &hist.Histogram{Name: name, Entries: entries}
	if h.XEdges, err = decode(x); err != nil {
		return nil, fmt.Errorf("read histogram %q: %w", name, err)
	}
	if dims == 2 {
		if h.YEdges, err = decode(y); err != nil {
			return nil, fmt.Errorf("read histogram %q: %w", name, err)
		}
	}
	if h.SumW, err = decode(sumw); err != nil {
		return nil, fmt.Errorf("read histogram %q: %w", name, err)
	}
	if h.SumW2, err = decode(sumw2); err != nil {
		return nil, fmt.Errorf("read histogram %q: %w", name, err)
	}
	if want := len(hist.FromEdges("", h.XEdges, h.YEdges).SumW); len(h.SumW) != want || len(h.SumW2) != want {
		return nil, fmt.Errorf("read histogram %q: %d cells, want %d", name, len(h.SumW), want)
	}
	return h, nil
}

// Has reports whether a histogram of that name exists.
func (s *Store) Has(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM histograms WHERE name = ?", name).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Names lists the stored histogram names in order.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM histograms ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func encode(v []float64) []byte {
	var buf bytes.Buffer
	buf.Grow(8 * len(v))
	binary.Write(&buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func decode(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("corrupt float array of %d bytes", len(b))
	}
	v := make([]float64, len(b)/8)
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return v, nil
}
