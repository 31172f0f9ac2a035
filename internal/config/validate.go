package config

import (
	"fmt"

	"github.com/banshee-data/tagprobe/internal/formula"
)

// Validate checks cross references the schema cannot express.
func (a *Analysis) Validate() error {
	for _, p := range a.Periods {
		for tagger := range p.WorkingPoints {
			if _, err := a.Tagger(tagger); err != nil {
				return fmt.Errorf("period %q: working point for %w", p.Match, err)
			}
		}
	}

	for _, h := range a.Histograms {
		dims, err := formula.Dimensions(h.Variable)
		if err != nil {
			return fmt.Errorf("histogram %q: %w", h.Name, err)
		}
		if err := h.X.Validate(); err != nil {
			return fmt.Errorf("histogram %q x axis: %w", h.Name, err)
		}
		switch {
		case dims == 2 && h.Y == nil:
			return fmt.Errorf("histogram %q: two dimensional variable %q needs a y binning", h.Name, h.Variable)
		case dims == 1 && h.Y != nil:
			return fmt.Errorf("histogram %q: y binning given for one dimensional variable %q", h.Name, h.Variable)
		case h.Y != nil:
			if err := h.Y.Validate(); err != nil {
				return fmt.Errorf("histogram %q y axis: %w", h.Name, err)
			}
		}
	}

	for _, t := range a.Taggers {
		if t.Binning != nil {
			if err := t.Binning.Validate(); err != nil {
				return fmt.Errorf("tagger %q: %w", t.Name, err)
			}
		}
	}

	for _, m := range a.Measurements {
		if err := m.validate(); err != nil {
			return fmt.Errorf("measurement %q: %w", m.Name, err)
		}
	}

	seen := make(map[string]bool)
	for _, s := range a.Systematics {
		if seen[s.Name] {
			return fmt.Errorf("systematic %q defined twice", s.Name)
		}
		seen[s.Name] = true
		if s.Kind == KindReweight && (s.Up == "" || s.Down == "") {
			return fmt.Errorf("systematic %q: reweight sources need up and down factors", s.Name)
		}
	}

	for _, o := range a.BinningOverrides {
		if _, err := a.Tagger(o.Tagger); err != nil {
			return fmt.Errorf("binning override: %w", err)
		}
		if _, err := a.Measurement(o.Measurement); err != nil {
			return fmt.Errorf("binning override: %w", err)
		}
		if err := o.X.Validate(); err != nil {
			return fmt.Errorf("binning override %s/%s/%s: %w", o.Tagger, o.Measurement, o.PtBin, err)
		}
	}

	if a.Impacts != nil {
		if _, err := a.Measurement(a.Impacts.Measurement); err != nil {
			return fmt.Errorf("impacts: %w", err)
		}
	}
	return nil
}

func (m Measurement) validate() error {
	labels := make(map[string]ProcessDef, len(m.Processes))
	simulated := 0
	for _, p := range m.Processes {
		if _, dup := labels[p.Label]; dup {
			return fmt.Errorf("process %q listed twice", p.Label)
		}
		labels[p.Label] = p
		if !p.Data {
			simulated++
		}
	}
	if simulated == 0 {
		return fmt.Errorf("no simulated processes")
	}
	if p, ok := labels[m.Signal]; !ok || p.Data {
		return fmt.Errorf("signal %q is not a simulated process", m.Signal)
	}
	if f := m.FallbackNorm; f != nil {
		if p, ok := labels[f.Process]; !ok || p.Data {
			return fmt.Errorf("fallback normalisation %q targets %q, which is not a simulated process", f.Name, f.Process)
		}
		if f.Process == m.Signal {
			return fmt.Errorf("fallback normalisation %q targets the signal %q, not a background", f.Name, f.Process)
		}
	}
	for _, d := range m.DivideOut {
		if _, ok := labels[d.Process]; !ok {
			return fmt.Errorf("divide_out names unknown process %q", d.Process)
		}
	}
	for _, s := range m.Skip {
		if _, ok := labels[s.Process]; !ok {
			return fmt.Errorf("skip rule names unknown process %q", s.Process)
		}
	}
	return nil
}
