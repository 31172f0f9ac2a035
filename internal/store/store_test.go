package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tagprobe/internal/hist"
	"github.com/banshee-data/tagprobe/internal/monitoring"
)

func filled(t *testing.T, name string, xs ...float64) *hist.Histogram {
	t.Helper()
	h, err := hist.New1D(name, hist.Uniform(4, 0, 4))
	require.NoError(t, err)
	for _, x := range xs {
		h.Fill(x, 0.5)
	}
	return h
}

func TestPutGetRoundTrip(t *testing.T) {
	defer monitoring.Nop()()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "TTmatch_pass.db")

	s, err := Create(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	h1 := filled(t, "TTmatch", -1, 0.5, 1.5, 1.5, 9)
	h2, err := hist.New2D("TTmatch_2d", hist.Variable(0, 1, 3), hist.Uniform(2, 0, 2))
	require.NoError(t, err)
	h2.Fill2D(2, 1.5, 3)

	require.NoError(t, s.Put(ctx, h1))
	require.NoError(t, s.Put(ctx, h2))

	got, err := s.Get(ctx, "TTmatch")
	require.NoError(t, err)
	if diff := cmp.Diff(h1, got); diff != "" {
		t.Errorf("1-D round trip mismatch (-want +got):\n%s", diff)
	}
	got2, err := s.Get(ctx, "TTmatch_2d")
	require.NoError(t, err)
	if diff := cmp.Diff(h2, got2); diff != "" {
		t.Errorf("2-D round trip mismatch (-want +got):\n%s", diff)
	}

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"TTmatch", "TTmatch_2d"}, names)

	ok, err := s.Has(ctx, "TTmatch_pu_Up")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "TTmatch_pu_Up")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	id, err := s.RunID(ctx)
	require.NoError(t, err)
	assert.Len(t, id, 36)
}

func TestPutOverwrites(t *testing.T) {
	defer monitoring.Nop()()
	ctx := context.Background()
	s, err := Create(ctx, filepath.Join(t.TempDir(), "s.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, filled(t, "QCD", 0.5)))
	require.NoError(t, s.Put(ctx, filled(t, "QCD", 0.5, 1.5, 2.5)))

	got, err := s.Get(ctx, "QCD")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, got.Integral(), 1e-12)
}

func TestCreateReplacesExisting(t *testing.T) {
	defer monitoring.Nop()()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "s.db")

	s, err := Create(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, filled(t, "old", 0.5)))
	require.NoError(t, s.Close())

	s, err = Create(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.db"))
	assert.True(t, errors.Is(err, ErrMissingInput), "got %v", err)
}

func TestMerge(t *testing.T) {
	defer monitoring.Nop()()
	ctx := context.Background()
	dir := t.TempDir()

	write := func(file string, hs ...*hist.Histogram) string {
		path := filepath.Join(dir, file)
		s, err := Create(ctx, path)
		require.NoError(t, err)
		require.NoError(t, s.PutAll(ctx, hs))
		require.NoError(t, s.Close())
		return path
	}
	a := write("TT_pass.db", filled(t, "TT", 0.5, 1.5), filled(t, "TT_pu_Up", 0.5))
	b := write("QCD_pass.db", filled(t, "QCD", 2.5))
	c := write("TT2_pass.db", filled(t, "TT", 0.5))

	dst := filepath.Join(dir, "top_mass_pass.db")
	require.NoError(t, Merge(ctx, dst, []string{a, b, c}))

	out, err := Open(ctx, dst)
	require.NoError(t, err)
	defer out.Close()

	names, err := out.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"QCD", "TT", "TT_pu_Up"}, names)

	tt, err := out.Get(ctx, "TT")
	require.NoError(t, err)
	assert.Equal(t, 1.0, tt.Content(1, 0))
	assert.Equal(t, 0.5, tt.Content(2, 0))
	assert.InDelta(t, 0.5, tt.SumW2[1], 1e-12)
	assert.Equal(t, int64(3), tt.Entries)
}

func TestMergeMissingInput(t *testing.T) {
	defer monitoring.Nop()()
	ctx := context.Background()
	dir := t.TempDir()
	dst := filepath.Join(dir, "top_mass_fail.db")

	err := Merge(ctx, dst, []string{filepath.Join(dir, "TT_fail.db")})
	assert.True(t, errors.Is(err, ErrMissingInput), "got %v", err)
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestMergeIncompatible(t *testing.T) {
	defer monitoring.Nop()()
	ctx := context.Background()
	dir := t.TempDir()

	a, err := Create(ctx, filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	require.NoError(t, a.Put(ctx, filled(t, "TT", 0.5)))
	require.NoError(t, a.Close())

	other, err := hist.New1D("TT", hist.Uniform(8, 0, 4))
	require.NoError(t, err)
	b, err := Create(ctx, filepath.Join(dir, "b.db"))
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, other))
	require.NoError(t, b.Close())

	err = Merge(ctx, filepath.Join(dir, "out.db"), []string{a.Path(), b.Path()})
	assert.True(t, errors.Is(err, hist.ErrIncompatible), "got %v", err)
}

func TestMigrationsVersion(t *testing.T) {
	defer monitoring.Nop()()
	ctx := context.Background()
	s, err := Create(ctx, filepath.Join(t.TempDir(), "s.db"))
	require.NoError(t, err)
	defer s.Close()

	v, dirty, err := schemaVersion(s.db, migrationsFS)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	// A later migration applies on top of the embedded schema.
	next := fstest.MapFS{
		"migrations/000001_histograms.up.sql":     {Data: mustRead(t, "migrations/000001_histograms.up.sql")},
		"migrations/000001_histograms.down.sql":   {Data: mustRead(t, "migrations/000001_histograms.down.sql")},
		"migrations/000002_source_index.up.sql":   {Data: []byte("CREATE TABLE sources (path TEXT PRIMARY KEY);")},
		"migrations/000002_source_index.down.sql": {Data: []byte("DROP TABLE sources;")},
	}
	require.NoError(t, migrateUp(s.db, next))
	v, _, err = schemaVersion(s.db, next)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)

	// Existing rows survive.
	require.NoError(t, s.Put(ctx, filled(t, "TT", 0.5)))
	ok, err := s.Has(ctx, "TT")
	require.NoError(t, err)
	assert.True(t, ok)
}

func mustRead(t *testing.T, name string) []byte {
	t.Helper()
	b, err := migrationsFS.ReadFile(name)
	require.NoError(t, err)
	return b
}
