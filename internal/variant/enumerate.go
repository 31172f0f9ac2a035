package variant

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/tagprobe/internal/config"
	"github.com/banshee-data/tagprobe/internal/formula"
	"github.com/banshee-data/tagprobe/internal/hist"
)

var (
	// ErrUnresolved is returned when a template still contains a ${...}
	// placeholder after substitution.
	ErrUnresolved = errors.New("unresolved placeholder")
	// ErrDuplicateKey is returned when two variants resolve to one name.
	ErrDuplicateKey = errors.New("duplicate variant")
)

// Inclusive is the pt bin name that disables the kinematic cut.
const Inclusive = "inclusive"

const maxVariants = 100000

// Selector picks one slice of the configuration to enumerate.
type Selector struct {
	Year        string
	Measurement string
	Tagger      string
	PtBin       string
	// Systematics enables the configured systematic sources. When false
	// only nominal variants are produced.
	Systematics bool
}

// Enumeration is the result of Enumerate.
type Enumeration struct {
	Processes   ProcessTable
	Variants    map[Key]Spec
	Systematics []config.Systematic
	Measurement config.Measurement
	Tagger      config.Tagger
	Lumi        float64
	Tree        string

	order []Key
}

// Keys returns every variant key in enumeration order: systematic
// (nominal first), direction, process, histogram, category.
func (e *Enumeration) Keys() []Key { return append([]Key(nil), e.order...) }

// ForProcess returns the keys of one process and category in order.
func (e *Enumeration) ForProcess(process, category string) []Key {
	var out []Key
	for _, k := range e.order {
		if k.Process == process && k.Category == category {
			out = append(out, k)
		}
	}
	return out
}

// Histograms returns the distinct resolved histogram names in order.
func (e *Enumeration) Histograms() []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range e.order {
		if !seen[k.Histogram] {
			seen[k.Histogram] = true
			out = append(out, k.Histogram)
		}
	}
	return out
}

// Tables returns the event tables the variants read: the base table
// followed by the sorted shifted tables of tree systematics.
func (e *Enumeration) Tables() []string {
	seen := map[string]bool{e.Tree: true}
	out := []string{e.Tree}
	for _, k := range e.order {
		name := e.Tree + e.Variants[k].TableSuffix
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out[1:])
	return out
}

// ParsePtBin parses "<lo>to<hi>" or "inclusive".
func ParsePtBin(s string) (PtBin, error) {
	if s == "" || s == Inclusive {
		return PtBin{}, nil
	}
	lo, hi, ok := strings.Cut(s, "to")
	if !ok {
		return PtBin{}, fmt.Errorf("invalid pt bin %q: expected <lo>to<hi>", s)
	}
	loV, err := strconv.ParseFloat(lo, 64)
	if err != nil {
		return PtBin{}, fmt.Errorf("invalid pt bin lower edge %q: %w", lo, err)
	}
	b := PtBin{Name: s, Lo: lo, Hi: hi}
	if b.Open() {
		return b, nil
	}
	hiV, err := strconv.ParseFloat(hi, 64)
	if err != nil {
		return PtBin{}, fmt.Errorf("invalid pt bin upper edge %q: %w", hi, err)
	}
	if hiV <= loV {
		return PtBin{}, fmt.Errorf("invalid pt bin %q: upper edge must exceed lower edge", s)
	}
	return b, nil
}

type shift struct {
	syst config.Systematic
	dir  Direction
}

// Enumerate expands the configuration slice named by sel. Configuration
// errors (unknown names, unsupported periods, unresolved placeholders,
// expressions that do not compile) are returned before any variant is
// produced.
func Enumerate(cfg *config.Analysis, sel Selector) (*Enumeration, error) {
	meas, err := cfg.Measurement(sel.Measurement)
	if err != nil {
		return nil, err
	}
	tagger, err := cfg.Tagger(sel.Tagger)
	if err != nil {
		return nil, err
	}
	wp, err := cfg.WorkingPoint(sel.Year, sel.Tagger)
	if err != nil {
		return nil, err
	}
	lumi, err := cfg.Lumi(sel.Year)
	if err != nil {
		return nil, err
	}
	pt, err := ParsePtBin(sel.PtBin)
	if err != nil {
		return nil, err
	}

	e := &Enumeration{
		Variants:    make(map[Key]Spec),
		Measurement: meas,
		Tagger:      tagger,
		Lumi:        lumi,
		Tree:        cfg.TreeName(),
	}
	for _, p := range meas.Processes {
		e.Processes = append(e.Processes, Process{Label: p.Label, Source: p.Source, Data: p.Data})
	}

	shifts := []shift{{}}
	if sel.Systematics {
		e.Systematics = cfg.ActiveSystematics()
		for _, s := range e.Systematics {
			shifts = append(shifts, shift{s, Up}, shift{s, Down})
		}
	}

	if n := len(shifts) * len(meas.Processes) * len(cfg.Histograms) * len(Categories); n > maxVariants {
		return nil, fmt.Errorf("enumeration would produce %d variants (limit %d)", n, maxVariants)
	}

	names := make(map[string]Key)
	compiler := formula.NewCompiler()
	for _, sh := range shifts {
		for _, proc := range meas.Processes {
			if proc.Data && sh.syst.Name != "" {
				continue
			}
			if sh.syst.Name != "" && (meas.Skips(proc.Label, sh.syst.Name) || meas.Skips(proc.Label, sh.syst.Name+string(sh.dir))) {
				continue
			}
			for _, tmpl := range cfg.Histograms {
				for _, cat := range Categories {
					key, spec, err := resolve(cfg, meas, tagger, proc, tmpl, cat, sh, wp, pt)
					if err != nil {
						return nil, err
					}
					if err := compileSpec(compiler, key, spec); err != nil {
						return nil, err
					}
					name := key.String()
					if prev, dup := names[name]; dup {
						return nil, fmt.Errorf("%w: %s from %+v and %+v", ErrDuplicateKey, name, prev, key)
					}
					names[name] = key
					e.Variants[key] = spec
					e.order = append(e.order, key)
				}
			}
		}
	}
	return e, nil
}

// compileSpec compiles every expression of spec the way a draw does.
func compileSpec(c *formula.Compiler, key Key, spec Spec) error {
	type source struct {
		what string
		src  string
		kind formula.Kind
	}
	srcs := []source{
		{"selection", spec.Selection, formula.Selection},
		{"weight", spec.Weight, formula.Value},
	}
	for _, axis := range formula.SplitAxes(spec.Variable) {
		srcs = append(srcs, source{"variable", axis, formula.Value})
	}
	for _, s := range srcs {
		if _, err := c.Compile(s.src, s.kind); err != nil {
			return fmt.Errorf("%s of %s: %w", s.what, key, err)
		}
	}
	return nil
}

// treeSuffix folds the direction to lower case, matching the shifted
// field and table names (JEC + Up -> JECup).
func treeSuffix(sh shift) string {
	if sh.syst.Kind != config.KindTree {
		return ""
	}
	return sh.syst.Name + strings.ToLower(string(sh.dir))
}

func resolve(cfg *config.Analysis, meas config.Measurement, tagger config.Tagger, proc config.ProcessDef,
	tmpl config.Histogram, category string, sh shift, wp float64, pt PtBin) (Key, Spec, error) {

	systVar := treeSuffix(sh)
	replacer := strings.NewReplacer(
		"${WP}", strconv.FormatFloat(wp, 'f', -1, 64),
		"${SYST}", systVar,
		"${PROC}", meas.WeightTag,
		"${TOP}", tagger.Name,
	)

	histName := replacer.Replace(tmpl.Name)
	key := Key{
		Process:     proc.Label,
		Histogram:   histName,
		Measurement: meas.Name,
		Category:    category,
		Source:      sh.syst.Name,
		Direction:   sh.dir,
	}

	var sel strings.Builder
	sel.WriteString(replacer.Replace(meas.Selection(category)))
	if proc.GenMatch != nil {
		fmt.Fprintf(&sel, "&&%s%s==%d", cfg.Fields.GenMatch, systVar, *proc.GenMatch)
	}
	fmt.Fprintf(&sel, "&&%s%s==%d", cfg.Fields.Constituents, systVar, tagger.Constituents)
	sel.WriteString(pt.Cut(cfg.Fields.Pt))

	weight := "1"
	if !proc.Data {
		var w strings.Builder
		w.WriteString(replacer.Replace(tmpl.Weight))
		for _, extra := range meas.ExtraWeights {
			w.WriteString("*" + extra)
		}
		for _, d := range meas.DivideOut {
			if d.Process == proc.Label && d.Category == category {
				w.WriteString("/" + d.Factor)
			}
		}
		if sh.syst.Kind == config.KindReweight {
			factor := sh.syst.Up
			if sh.dir == Down {
				factor = sh.syst.Down
			}
			w.WriteString("*" + factor)
		}
		weight = w.String()
	}

	spec := Spec{
		Selection:   sel.String(),
		Variable:    replacer.Replace(tmpl.Variable),
		Weight:      weight,
		X:           xBinning(cfg, tmpl, tagger, meas, pt, histName),
		Y:           tmpl.Y,
		TableSuffix: systVar,
	}

	for _, f := range [][2]string{
		{"histogram name", histName},
		{"selection", spec.Selection},
		{"variable", spec.Variable},
		{"weight", spec.Weight},
	} {
		if strings.Contains(f[1], "${") {
			return Key{}, Spec{}, fmt.Errorf("%w in %s %q of %s", ErrUnresolved, f[0], f[1], key)
		}
	}
	return key, spec, nil
}

func xBinning(cfg *config.Analysis, tmpl config.Histogram, tagger config.Tagger, meas config.Measurement, pt PtBin, histName string) hist.Binning {
	ptName := pt.Name
	if ptName == "" {
		ptName = Inclusive
	}
	if b, ok := cfg.Override(tagger.Name, meas.Name, ptName, histName); ok {
		return b
	}
	if tagger.Binning != nil {
		return *tagger.Binning
	}
	return tmpl.X
}
