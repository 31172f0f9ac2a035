// Package config holds the analysis configuration: which histograms to
// draw, how selections and weights are templated, the processes of each
// measurement, tagger options and systematic sources.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/tagprobe/internal/hist"
)

var (
	// ErrUnsupportedPeriod is returned when no configured period matches
	// the requested data-taking year.
	ErrUnsupportedPeriod = errors.New("unsupported period")
	// ErrUnknownName is returned for a measurement, tagger or systematic
	// name the configuration does not define.
	ErrUnknownName = errors.New("unknown name")
)

// Systematic kinds.
const (
	// KindTree systematics read shifted fields from a dedicated event table.
	KindTree = "tree"
	// KindReweight systematics multiply the weight by an up/down factor.
	KindReweight = "reweight"
)

// Analysis is the root configuration.
type Analysis struct {
	Tree             string            `json:"tree,omitempty" yaml:"tree,omitempty"`
	Fields           Fields            `json:"fields" yaml:"fields"`
	Periods          []Period          `json:"periods" yaml:"periods"`
	Histograms       []Histogram       `json:"histograms" yaml:"histograms"`
	Taggers          []Tagger          `json:"taggers" yaml:"taggers"`
	Measurements     []Measurement     `json:"measurements" yaml:"measurements"`
	Systematics      []Systematic      `json:"systematics,omitempty" yaml:"systematics,omitempty"`
	BinningOverrides []BinningOverride `json:"binning_overrides,omitempty" yaml:"binning_overrides,omitempty"`
	Impacts          *ImpactSettings   `json:"impacts,omitempty" yaml:"impacts,omitempty"`
	Summary          SummarySettings   `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Fields names the event fields the enumerator appends cuts on.
type Fields struct {
	GenMatch     string `json:"gen_match" yaml:"gen_match"`
	Constituents string `json:"constituents" yaml:"constituents"`
	Pt           string `json:"pt" yaml:"pt"`
}

// Period holds per data-taking period constants. Match is compared as a
// substring of the requested year so "2016" covers "2016preVFP".
type Period struct {
	Match         string             `json:"match" yaml:"match"`
	Lumi          float64            `json:"lumi" yaml:"lumi"`
	LuminosityFb  float64            `json:"luminosity_fb,omitempty" yaml:"luminosity_fb,omitempty"`
	WorkingPoints map[string]float64 `json:"working_points" yaml:"working_points"`
}

// Histogram is a histogram template.
type Histogram struct {
	Name     string        `json:"name" yaml:"name"`
	Variable string        `json:"variable" yaml:"variable"`
	Weight   string        `json:"weight" yaml:"weight"`
	X        hist.Binning  `json:"x" yaml:"x"`
	Y        *hist.Binning `json:"y,omitempty" yaml:"y,omitempty"`
}

// Tagger configures one top tagger.
type Tagger struct {
	Name         string        `json:"name" yaml:"name"`
	Title        string        `json:"title,omitempty" yaml:"title,omitempty"`
	Constituents int           `json:"constituents" yaml:"constituents"`
	Binning      *hist.Binning `json:"binning,omitempty" yaml:"binning,omitempty"`
	// FoldAbove merges summary pt bins starting at or above this value
	// into a single bin. Zero disables folding.
	FoldAbove float64 `json:"fold_above,omitempty" yaml:"fold_above,omitempty"`
}

// DisplayName returns Title, falling back to Name.
func (t Tagger) DisplayName() string {
	if t.Title != "" {
		return t.Title
	}
	return t.Name
}

// Categories are the pass and fail selection templates.
type Categories struct {
	Pass string `json:"pass" yaml:"pass"`
	Fail string `json:"fail" yaml:"fail"`
}

// ProcessDef is one row of a measurement's process table.
type ProcessDef struct {
	Label  string `json:"label" yaml:"label"`
	Source string `json:"source" yaml:"source"`
	Data   bool   `json:"data,omitempty" yaml:"data,omitempty"`
	// GenMatch splits one sample by the generator match flag.
	GenMatch *int `json:"gen_match,omitempty" yaml:"gen_match,omitempty"`
}

// DivideOut removes a baseline correction from the weight of one process
// in one category.
type DivideOut struct {
	Process  string `json:"process" yaml:"process"`
	Category string `json:"category" yaml:"category"`
	Factor   string `json:"factor" yaml:"factor"`
}

// FallbackNorm is the flat lognormal uncertainty used when no systematic
// sources are requested.
type FallbackNorm struct {
	Name    string  `json:"name" yaml:"name"`
	Process string  `json:"process" yaml:"process"`
	Value   float64 `json:"value" yaml:"value"`
}

// SkipRule drops one (process, systematic) pair from the enumeration.
type SkipRule struct {
	Process    string `json:"process" yaml:"process"`
	Systematic string `json:"systematic" yaml:"systematic"`
}

// Measurement is a tag rate (Eff) or mistag rate (Mis) measurement.
type Measurement struct {
	Name         string        `json:"name" yaml:"name"`
	SFLabel      string        `json:"sf_label,omitempty" yaml:"sf_label,omitempty"`
	WeightTag    string        `json:"weight_tag" yaml:"weight_tag"`
	ExtraWeights []string      `json:"extra_weights,omitempty" yaml:"extra_weights,omitempty"`
	Selections   Categories    `json:"selections" yaml:"selections"`
	Signal       string        `json:"signal" yaml:"signal"`
	Processes    []ProcessDef  `json:"processes" yaml:"processes"`
	DivideOut    []DivideOut   `json:"divide_out,omitempty" yaml:"divide_out,omitempty"`
	FallbackNorm *FallbackNorm `json:"fallback_norm,omitempty" yaml:"fallback_norm,omitempty"`
	Skip         []SkipRule    `json:"skip,omitempty" yaml:"skip,omitempty"`
}

// Selection returns the template for category "pass" or "fail".
func (m Measurement) Selection(category string) string {
	if category == "fail" {
		return m.Selections.Fail
	}
	return m.Selections.Pass
}

// Skips reports whether (process, systematic) is excluded.
func (m Measurement) Skips(process, systematic string) bool {
	for _, s := range m.Skip {
		if s.Process == process && s.Systematic == systematic {
			return true
		}
	}
	return false
}

// Systematic is a source of systematic variation.
type Systematic struct {
	Name     string `json:"name" yaml:"name"`
	Kind     string `json:"kind" yaml:"kind"`
	Up       string `json:"up,omitempty" yaml:"up,omitempty"`
	Down     string `json:"down,omitempty" yaml:"down,omitempty"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// BinningOverride replaces the x binning for one (tagger, measurement, pt
// bin). An empty Histogram applies to every histogram template.
type BinningOverride struct {
	Tagger      string       `json:"tagger" yaml:"tagger"`
	Measurement string       `json:"measurement" yaml:"measurement"`
	PtBin       string       `json:"pt_bin" yaml:"pt_bin"`
	Histogram   string       `json:"histogram,omitempty" yaml:"histogram,omitempty"`
	X           hist.Binning `json:"x" yaml:"x"`
}

// ImpactSettings select which measurement gets the impact correction and
// which nuisance it rescales.
type ImpactSettings struct {
	Measurement string `json:"measurement" yaml:"measurement"`
	Nuisance    string `json:"nuisance" yaml:"nuisance"`
}

// SummarySettings configure the scale factor summary.
type SummarySettings struct {
	// PtMax replaces an "Inf" upper pt edge.
	PtMax float64 `json:"pt_max,omitempty" yaml:"pt_max,omitempty"`
}

// TreeName returns the event table name, defaulting to AnaSkim.
func (a *Analysis) TreeName() string {
	if a.Tree == "" {
		return "AnaSkim"
	}
	return a.Tree
}

// PtMax returns the numeric stand-in for an open upper pt edge.
func (a *Analysis) PtMax() float64 {
	if a.Summary.PtMax > 0 {
		return a.Summary.PtMax
	}
	return 1200
}

// Period returns the first period whose Match occurs in year.
func (a *Analysis) Period(year string) (Period, error) {
	for _, p := range a.Periods {
		if strings.Contains(year, p.Match) {
			return p, nil
		}
	}
	return Period{}, fmt.Errorf("%w: %q", ErrUnsupportedPeriod, year)
}

// WorkingPoint returns the tagger threshold for year.
func (a *Analysis) WorkingPoint(year, tagger string) (float64, error) {
	p, err := a.Period(year)
	if err != nil {
		return 0, err
	}
	wp, ok := p.WorkingPoints[tagger]
	if !ok {
		return 0, fmt.Errorf("%w: no working point for tagger %q in period %q", ErrUnknownName, tagger, p.Match)
	}
	return wp, nil
}

// Lumi returns the luminosity uncertainty for year.
func (a *Analysis) Lumi(year string) (float64, error) {
	p, err := a.Period(year)
	if err != nil {
		return 0, err
	}
	return p.Lumi, nil
}

// Measurement looks up a measurement by name.
func (a *Analysis) Measurement(name string) (Measurement, error) {
	for _, m := range a.Measurements {
		if m.Name == name {
			return m, nil
		}
	}
	return Measurement{}, fmt.Errorf("%w: measurement %q", ErrUnknownName, name)
}

// Tagger looks up a tagger by name.
func (a *Analysis) Tagger(name string) (Tagger, error) {
	for _, t := range a.Taggers {
		if t.Name == name {
			return t, nil
		}
	}
	return Tagger{}, fmt.Errorf("%w: tagger %q", ErrUnknownName, name)
}

// ActiveSystematics returns the enabled systematic sources in order.
func (a *Analysis) ActiveSystematics() []Systematic {
	var out []Systematic
	for _, s := range a.Systematics {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// Override returns the binning override for the combination, if any.
func (a *Analysis) Override(tagger, measurement, ptBin, histogram string) (hist.Binning, bool) {
	for _, o := range a.BinningOverrides {
		if o.Tagger != tagger || o.Measurement != measurement || o.PtBin != ptBin {
			continue
		}
		if o.Histogram != "" && o.Histogram != histogram {
			continue
		}
		return o.X, true
	}
	return hist.Binning{}, false
}
