package hist

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinningValidate(t *testing.T) {
	testCases := []struct {
		name    string
		binning Binning
		wantErr bool
	}{
		{"uniform", Uniform(20, 100, 250), false},
		{"variable", Variable(100, 120, 150, 250), false},
		{"zero_bins", Uniform(0, 0, 1), true},
		{"inverted_range", Uniform(10, 5, 1), true},
		{"single_edge", Variable(1), true},
		{"not_increasing", Variable(1, 3, 2), true},
		{"repeated_edge", Variable(1, 1, 2), true},
		{"infinite_edge", Variable(1, math.Inf(1)), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.binning.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrBinning) {
					t.Errorf("Expected ErrBinning, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestEdgeValues(t *testing.T) {
	got := Uniform(4, 100, 200).EdgeValues()
	want := []float64{100, 125, 150, 175, 200}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EdgeValues mismatch (-want +got):\n%s", diff)
	}
	if n := Variable(1, 2, 4).NBins(); n != 2 {
		t.Errorf("NBins = %d, want 2", n)
	}
}

func TestFill1D(t *testing.T) {
	t.Parallel()

	h, err := New1D("TT", Uniform(20, 100, 250))
	require.NoError(t, err)

	h.Fill(99.9, 1)   // underflow
	h.Fill(100, 2)    // first bin, lower edge inclusive
	h.Fill(107.5, 3)  // second bin
	h.Fill(249.99, 1) // last bin
	h.Fill(250, 5)    // overflow, upper edge exclusive
	h.Fill(math.NaN(), 7)

	assert.Equal(t, 1.0, h.Content(0, 0))
	assert.Equal(t, 2.0, h.Content(1, 0))
	assert.Equal(t, 3.0, h.Content(2, 0))
	assert.Equal(t, 1.0, h.Content(20, 0))
	assert.Equal(t, 5.0, h.Content(21, 0))
	assert.Equal(t, int64(5), h.Entries)
	assert.InDelta(t, 6.0, h.Integral(), 1e-12)
	assert.InDelta(t, 3.0, h.Error(2, 0), 1e-12)
}

func TestFillTracksSquaredWeights(t *testing.T) {
	h, err := New1D("w", Uniform(1, 0, 1))
	require.NoError(t, err)
	h.Fill(0.5, 0.5)
	h.Fill(0.5, 1.5)
	assert.InDelta(t, 2.0, h.Content(1, 0), 1e-12)
	assert.InDelta(t, math.Sqrt(0.25+2.25), h.Error(1, 0), 1e-12)
}

func TestFill2D(t *testing.T) {
	h, err := New2D("h2", Uniform(2, 0, 2), Variable(0, 10, 100))
	require.NoError(t, err)
	require.True(t, h.Is2D())

	h.Fill2D(0.5, 5, 1)
	h.Fill2D(1.5, 50, 2)
	h.Fill2D(1.5, 500, 4) // y overflow
	h.Fill2D(-1, 5, 8)    // x underflow

	assert.Equal(t, 1.0, h.Content(1, 1))
	assert.Equal(t, 2.0, h.Content(2, 2))
	assert.Equal(t, 4.0, h.Content(2, 3))
	assert.Equal(t, 8.0, h.Content(0, 1))
	assert.InDelta(t, 3.0, h.Integral(), 1e-12)
}

func TestAddAndClone(t *testing.T) {
	a, err := New1D("a", Uniform(2, 0, 2))
	require.NoError(t, err)
	b := a.Clone("b")
	a.Fill(0.5, 1)
	b.Fill(0.5, 2)
	b.Fill(1.5, 3)

	require.NoError(t, a.Add(b))
	assert.Equal(t, 3.0, a.Content(1, 0))
	assert.Equal(t, 3.0, a.Content(2, 0))
	assert.InDelta(t, 1+4, a.SumW2[1], 1e-12)
	assert.Equal(t, int64(3), a.Entries)
	assert.Equal(t, 2.0, b.Content(1, 0), "clone must not alias")

	other, err := New1D("c", Uniform(3, 0, 2))
	require.NoError(t, err)
	assert.ErrorIs(t, a.Add(other), ErrIncompatible)
}

func TestRatio(t *testing.T) {
	num, err := New1D("num", Uniform(2, 0, 2))
	require.NoError(t, err)
	den := num.Clone("den")
	num.Fill(0.5, 2)
	den.Fill(0.5, 4)

	values, errs, err := num.Ratio(den)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0}, values)
	assert.InDelta(t, 0.5*math.Sqrt(4.0/4+16.0/16), errs[0], 1e-12)
	assert.Equal(t, 0.0, errs[1])
}
