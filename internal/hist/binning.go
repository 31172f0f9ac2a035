// Package hist provides the binned, error-tracked histograms the fill stage
// produces: per-bin sum of weights and sum of squared weights, with
// underflow and overflow bins on every axis.
package hist

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrBinning is wrapped by every binning validation error.
var ErrBinning = errors.New("invalid binning")

// Binning describes one axis. It is either uniform (Bins over [Min, Max))
// or an explicit strictly increasing list of Edges.
type Binning struct {
	Bins  int       `json:"bins,omitempty" yaml:"bins,omitempty"`
	Min   float64   `json:"min,omitempty" yaml:"min,omitempty"`
	Max   float64   `json:"max,omitempty" yaml:"max,omitempty"`
	Edges []float64 `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// Uniform returns n equal bins over [min, max).
func Uniform(n int, min, max float64) Binning {
	return Binning{Bins: n, Min: min, Max: max}
}

// Variable returns a binning with explicit edges.
func Variable(edges ...float64) Binning {
	return Binning{Edges: append([]float64(nil), edges...)}
}

// IsVariable reports whether the axis uses explicit edges.
func (b Binning) IsVariable() bool { return len(b.Edges) > 0 }

// Validate checks the axis is usable.
func (b Binning) Validate() error {
	if b.IsVariable() {
		if len(b.Edges) < 2 {
			return fmt.Errorf("%w: need at least 2 edges, got %d", ErrBinning, len(b.Edges))
		}
		for i, e := range b.Edges {
			if math.IsNaN(e) || math.IsInf(e, 0) {
				return fmt.Errorf("%w: edge %d is not finite", ErrBinning, i)
			}
			if i > 0 && e <= b.Edges[i-1] {
				return fmt.Errorf("%w: edges must be strictly increasing (edge %d = %g after %g)", ErrBinning, i, e, b.Edges[i-1])
			}
		}
		return nil
	}
	if b.Bins <= 0 {
		return fmt.Errorf("%w: bin count must be positive, got %d", ErrBinning, b.Bins)
	}
	if !(b.Max > b.Min) {
		return fmt.Errorf("%w: max (%g) must exceed min (%g)", ErrBinning, b.Max, b.Min)
	}
	return nil
}

// NBins is the number of in-range bins.
func (b Binning) NBins() int {
	if b.IsVariable() {
		return len(b.Edges) - 1
	}
	return b.Bins
}

// EdgeValues returns the NBins()+1 bin edges.
func (b Binning) EdgeValues() []float64 {
	if b.IsVariable() {
		return append([]float64(nil), b.Edges...)
	}
	return floats.Span(make([]float64, b.Bins+1), b.Min, b.Max)
}

func (b Binning) String() string {
	if b.IsVariable() {
		return fmt.Sprintf("edges%v", b.Edges)
	}
	return fmt.Sprintf("(%d, %g, %g)", b.Bins, b.Min, b.Max)
}

// findBin maps v onto an axis index: 0 is underflow, 1..n are in range and
// n+1 is overflow. It returns -1 for NaN.
func findBin(edges []float64, v float64) int {
	n := len(edges) - 1
	switch {
	case math.IsNaN(v):
		return -1
	case v < edges[0]:
		return 0
	case v >= edges[n]:
		return n + 1
	}
	return floats.Within(edges, v) + 1
}
