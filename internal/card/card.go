// Package card renders the statistical card read by the external fitting
// tool, and the script that runs the fit. The layout is fixed-width and
// must not drift: the fitting tool splits rows on whitespace and matches
// process and bin names against the histograms in the shape stores.
package card

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Column widths.
const (
	leadWidth = 16
	headWidth = leadWidth / 2
	cellWidth = 12
	spacer    = "    "
)

// File names inside an output directory.
const (
	CardFile   = "sf.txt"
	ScriptFile = "runfits.sh"
)

// Rate is the expected yield of one simulated process per category.
type Rate struct {
	Process    string
	Pass, Fail float64
}

// Fallback is a flat lognormal uncertainty scoped to one process.
type Fallback struct {
	Name    string
	Process string
	Value   float64
}

// Shape is one shape nuisance row. Pass and Fail hold the processes
// whose shifted histograms exist in that category; every other cell is
// written as "--".
type Shape struct {
	Name string
	Pass map[string]bool
	Fail map[string]bool
}

func (s Shape) applies(process, category string) bool {
	if category == "fail" {
		return s.Fail[process]
	}
	return s.Pass[process]
}

// Input is everything the card needs. Rates are in process table order;
// the first entry is process index 0 in both halves.
type Input struct {
	PassFile     string
	FailFile     string
	ObservedPass float64
	ObservedFail float64
	Rates        []Rate
	Lumi         float64
	// Shapes holds one row per systematic source with at least one
	// shifted histogram.
	Shapes []Shape
	// Fallback is written as the last nuisance row when set.
	Fallback *Fallback
}

// Write renders the card.
func Write(w io.Writer, in Input) error {
	if len(in.Rates) == 0 {
		return fmt.Errorf("card needs at least one simulated process")
	}
	var b strings.Builder

	fmt.Fprintf(&b, "imax 2  number of channels\n")
	fmt.Fprintf(&b, "jmax %d  number of backgrounds\n", len(in.Rates)-1)
	fmt.Fprintf(&b, "kmax *  number of nuisance parameters (sources of systematical uncertainties)\n\n")
	b.WriteString("------------\n\n")
	fmt.Fprintf(&b, "shapes  *  pass   %s  $PROCESS $PROCESS_$SYSTEMATIC\n", in.PassFile)
	fmt.Fprintf(&b, "shapes  *  fail   %s  $PROCESS $PROCESS_$SYSTEMATIC\n\n", in.FailFile)
	b.WriteString("------------\n\n")
	b.WriteString("bin             pass           fail\n")
	b.WriteString("observation     " + pad(pyFloat(in.ObservedPass), 15) + pyFloat(in.ObservedFail) + "\n\n")
	b.WriteString("------------\n\n")

	grid := func(lead string, cell func(i int, r Rate, category string) string) {
		b.WriteString(pad(lead, leadWidth))
		for _, cat := range []string{"pass", "fail"} {
			if cat == "fail" {
				b.WriteString(spacer)
			}
			for i, r := range in.Rates {
				b.WriteString(pad(cell(i, r, cat), cellWidth))
			}
		}
		b.WriteString("\n")
	}
	grid("bin", func(_ int, _ Rate, cat string) string { return cat })
	grid("process", func(_ int, r Rate, _ string) string { return r.Process })
	grid("process", func(i int, _ Rate, _ string) string { return strconv.Itoa(i) })
	grid("rate", func(_ int, r Rate, cat string) string {
		if cat == "fail" {
			return fmt.Sprintf("%.3f", r.Fail)
		}
		return fmt.Sprintf("%.3f", r.Pass)
	})
	b.WriteString("\n------------\n\n")

	nuisance := func(name, kind string, cell func(r Rate, category string) string) {
		b.WriteString(pad(name, headWidth) + pad(kind, headWidth))
		for _, cat := range []string{"pass", "fail"} {
			if cat == "fail" {
				b.WriteString(spacer)
			}
			for _, r := range in.Rates {
				b.WriteString(pad(cell(r, cat), cellWidth))
			}
		}
		b.WriteString("\n")
	}
	lumi := pyFloat(in.Lumi)
	nuisance("lumi", "lnN", func(Rate, string) string { return lumi })
	for _, s := range in.Shapes {
		nuisance(s.Name, "shape", func(r Rate, cat string) string {
			if s.applies(r.Process, cat) {
				return "1"
			}
			return "--"
		})
	}
	if f := in.Fallback; f != nil {
		v := pyFloat(f.Value)
		nuisance(f.Name, "lnN", func(r Rate, _ string) string {
			if r.Process == f.Process {
				return v
			}
			return "--"
		})
	}

	b.WriteString("\n*  autoMCStats  0\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// pad left-justifies s to width. A value at or beyond the width keeps
// one trailing space so adjacent cells never merge.
func pad(s string, width int) string {
	if len(s) >= width {
		return s + " "
	}
	return s + strings.Repeat(" ", width-len(s))
}

// pyFloat formats v as the shortest decimal that round-trips, always with
// a fractional part or exponent (80 -> "80.0", 1e16 -> "1e+16").
func pyFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	if a := math.Abs(v); a != 0 && (a < 1e-4 || a >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
