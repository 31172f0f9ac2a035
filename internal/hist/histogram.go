package hist

import (
	"errors"
	"fmt"
	"math"
)

// ErrIncompatible is returned when combining histograms whose axes differ.
var ErrIncompatible = errors.New("incompatible histograms")

// Histogram is a 1-D or 2-D histogram. Storage is row-major over
// (NBinsX()+2) x (NBinsY()+2) cells, so the flow bins of both axes are kept.
type Histogram struct {
	Name    string
	XEdges  []float64
	YEdges  []float64 // nil for 1-D
	SumW    []float64
	SumW2   []float64
	Entries int64
}

// New1D creates an empty 1-D histogram.
func New1D(name string, x Binning) (*Histogram, error) {
	if err := x.Validate(); err != nil {
		return nil, fmt.Errorf("histogram %q x axis: %w", name, err)
	}
	return FromEdges(name, x.EdgeValues(), nil), nil
}

// New2D creates an empty 2-D histogram.
func New2D(name string, x, y Binning) (*Histogram, error) {
	if err := x.Validate(); err != nil {
		return nil, fmt.Errorf("histogram %q x axis: %w", name, err)
	}
	if err := y.Validate(); err != nil {
		return nil, fmt.Errorf("histogram %q y axis: %w", name, err)
	}
	return FromEdges(name, x.EdgeValues(), y.EdgeValues()), nil
}

// FromEdges allocates a histogram over already validated edges.
func FromEdges(name string, xEdges, yEdges []float64) *Histogram {
	h := &Histogram{Name: name, XEdges: xEdges, YEdges: yEdges}
	n := (len(xEdges) + 1)
	if yEdges != nil {
		n *= len(yEdges) + 1
	}
	h.SumW = make([]float64, n)
	h.SumW2 = make([]float64, n)
	return h
}

// Is2D reports whether the histogram has a y axis.
func (h *Histogram) Is2D() bool { return h.YEdges != nil }

// NBinsX is the number of in-range x bins.
func (h *Histogram) NBinsX() int { return len(h.XEdges) - 1 }

// NBinsY is the number of in-range y bins, 0 for 1-D histograms.
func (h *Histogram) NBinsY() int {
	if h.YEdges == nil {
		return 0
	}
	return len(h.YEdges) - 1
}

// Cell returns the storage index of (ix, iy). For 1-D histograms iy is
// ignored.
func (h *Histogram) Cell(ix, iy int) int {
	if !h.Is2D() {
		return ix
	}
	return iy*(h.NBinsX()+2) + ix
}

// Fill adds weight w at x. NaN coordinates are dropped.
func (h *Histogram) Fill(x, w float64) {
	ix := findBin(h.XEdges, x)
	if ix < 0 {
		return
	}
	h.add(h.Cell(ix, 0), w)
}

// Fill2D adds weight w at (x, y). NaN coordinates are dropped.
func (h *Histogram) Fill2D(x, y, w float64) {
	ix := findBin(h.XEdges, x)
	iy := findBin(h.YEdges, y)
	if ix < 0 || iy < 0 {
		return
	}
	h.add(h.Cell(ix, iy), w)
}

func (h *Histogram) add(cell int, w float64) {
	h.SumW[cell] += w
	h.SumW2[cell] += w * w
	h.Entries++
}

// Content returns the sum of weights in bin (ix, iy).
func (h *Histogram) Content(ix, iy int) float64 { return h.SumW[h.Cell(ix, iy)] }

// Error returns sqrt(sum of squared weights) in bin (ix, iy).
func (h *Histogram) Error(ix, iy int) float64 { return math.Sqrt(h.SumW2[h.Cell(ix, iy)]) }

// Integral sums the in-range bins, excluding underflow and overflow.
func (h *Histogram) Integral() float64 {
	var sum float64
	ny := 1
	y0 := 0
	if h.Is2D() {
		ny = h.NBinsY()
		y0 = 1
	}
	for iy := y0; iy < y0+ny; iy++ {
		for ix := 1; ix <= h.NBinsX(); ix++ {
			sum += h.Content(ix, iy)
		}
	}
	return sum
}

// Compatible reports whether other has identical axes.
func (h *Histogram) Compatible(other *Histogram) bool {
	return sameEdges(h.XEdges, other.XEdges) && sameEdges(h.YEdges, other.YEdges) &&
		(h.YEdges == nil) == (other.YEdges == nil)
}

// Add accumulates other into h bin by bin.
func (h *Histogram) Add(other *Histogram) error {
	if !h.Compatible(other) {
		return fmt.Errorf("%w: %q and %q", ErrIncompatible, h.Name, other.Name)
	}
	for i := range h.SumW {
		h.SumW[i] += other.SumW[i]
		h.SumW2[i] += other.SumW2[i]
	}
	h.Entries += other.Entries
	return nil
}

// Clone returns a deep copy named name.
func (h *Histogram) Clone(name string) *Histogram {
	c := &Histogram{
		Name:    name,
		XEdges:  append([]float64(nil), h.XEdges...),
		SumW:    append([]float64(nil), h.SumW...),
		SumW2:   append([]float64(nil), h.SumW2...),
		Entries: h.Entries,
	}
	if h.YEdges != nil {
		c.YEdges = append([]float64(nil), h.YEdges...)
	}
	return c
}

// Ratio divides h by den bin by bin over the x axis of a 1-D histogram,
// returning zero where the denominator is empty. Errors combine the
// relative errors of both inputs in quadrature.
func (h *Histogram) Ratio(den *Histogram) (values, errs []float64, err error) {
	if !h.Compatible(den) || h.Is2D() {
		return nil, nil, fmt.Errorf("%w: ratio of %q over %q", ErrIncompatible, h.Name, den.Name)
	}
	n := h.NBinsX()
	values = make([]float64, n)
	errs = make([]float64, n)
	for i := 1; i <= n; i++ {
		num, d := h.Content(i, 0), den.Content(i, 0)
		if d == 0 {
			continue
		}
		r := num / d
		values[i-1] = r
		var rel2 float64
		if num != 0 {
			rel2 += h.SumW2[i] / (num * num)
		}
		rel2 += den.SumW2[i] / (d * d)
		errs[i-1] = math.Abs(r) * math.Sqrt(rel2)
	}
	return values, errs, nil
}

func sameEdges(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
