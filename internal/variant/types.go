// Package variant expands the analysis configuration into the full set of
// histograms to draw: one resolved selection, weight and binning per
// (process, histogram, category, systematic, direction).
package variant

import (
	"fmt"
	"strings"

	"github.com/banshee-data/tagprobe/internal/hist"
)

// Direction of a systematic shift.
type Direction string

const (
	Nominal Direction = ""
	Up      Direction = "Up"
	Down    Direction = "Down"
)

// Categories in card column order.
var Categories = []string{"pass", "fail"}

// DataObs is the output name of observed data histograms.
const DataObs = "data_obs"

// Process is one row of the process table.
type Process struct {
	Label  string
	Source string
	Data   bool
}

// ProcessTable is ordered: the first simulated process is column index 0
// of the card and order is preserved across both categories.
type ProcessTable []Process

// WithoutData returns the simulated processes in order.
func (t ProcessTable) WithoutData() ProcessTable {
	var out ProcessTable
	for _, p := range t {
		if !p.Data {
			out = append(out, p)
		}
	}
	return out
}

// Data returns the observed data processes in order.
func (t ProcessTable) Data() ProcessTable {
	var out ProcessTable
	for _, p := range t {
		if p.Data {
			out = append(out, p)
		}
	}
	return out
}

// Labels returns the process labels in order.
func (t ProcessTable) Labels() []string {
	out := make([]string, len(t))
	for i, p := range t {
		out[i] = p.Label
	}
	return out
}

// Lookup finds a process by label.
func (t ProcessTable) Lookup(label string) (Process, bool) {
	for _, p := range t {
		if p.Label == label {
			return p, true
		}
	}
	return Process{}, false
}

// Key identifies one variant.
type Key struct {
	Process     string
	Histogram   string
	Measurement string
	Category    string
	Source      string
	Direction   Direction
}

// Systematic is the source and direction suffix, empty for the nominal.
func (k Key) Systematic() string {
	if k.Source == "" {
		return ""
	}
	return k.Source + string(k.Direction)
}

// String renders the unique variant name
// <process>_<histogram>_<measurement>_<category>_<systematic>.
func (k Key) String() string {
	return fmt.Sprintf("%s_%s_%s_%s_%s", k.Process, k.Histogram, k.Measurement, k.Category, k.Systematic())
}

// OutputName is the name the histogram is stored under: the process label
// for the nominal, <process>_<systematic> for shifted variants and
// data_obs for observed data.
func (k Key) OutputName(isData bool) string {
	if syst := k.Systematic(); syst != "" {
		return k.Process + "_" + syst
	}
	if isData {
		return DataObs
	}
	return k.Process
}

// Spec is a fully resolved histogram specification.
type Spec struct {
	Selection string
	Variable  string
	Weight    string
	X         hist.Binning
	Y         *hist.Binning
	// TableSuffix selects the shifted event table for tree systematics.
	TableSuffix string
}

// Is2D reports whether the spec draws a two dimensional histogram.
func (s Spec) Is2D() bool { return s.Y != nil }

// PtBin is a kinematic bin "<lo>to<hi>"; Hi may be "Inf".
type PtBin struct {
	Name   string
	Lo, Hi string
}

// Open reports whether the bin has no upper edge.
func (b PtBin) Open() bool { return strings.EqualFold(b.Hi, "inf") }

// Cut returns the selection suffix for the bin.
func (b PtBin) Cut(field string) string {
	if b.Name == "" {
		return ""
	}
	if b.Open() {
		return fmt.Sprintf("&&%s>%s", field, b.Lo)
	}
	return fmt.Sprintf("&&%s>%s&&%s<=%s", field, b.Lo, field, b.Hi)
}
