package sf

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateNuisance is returned when a nuisance's impact exceeds the
// total uncertainty it is supposed to be part of.
var ErrDegenerateNuisance = errors.New("degenerate nuisance")

// ErrMissingImpact is returned when a matching nuisance has no impact on
// the combined process.
var ErrMissingImpact = errors.New("missing impact")

// zeroTolerance absorbs rounding in err² − impact².
const zeroTolerance = 1e-12

// DegenerateError reports a negative squared residual on one side.
type DegenerateError struct {
	Nuisance  string
	Side      string
	Residual2 float64
}

func (e *DegenerateError) Error() string {
	return fmt.Sprintf("%s: %s %s side: err² − impact² = %g", ErrDegenerateNuisance, e.Nuisance, e.Side, e.Residual2)
}

func (e *DegenerateError) Unwrap() error { return ErrDegenerateNuisance }

// Combiner replaces the contribution of one nuisance to a fitted
// uncertainty with a contribution rescaled by the nuisance's own pull.
type Combiner struct {
	Nuisance string
	Process  string
}

// Combine returns an adjusted copy of r. Params not named Nuisance are
// not consulted; when none matches r is returned unchanged. Otherwise the
// central value and starting errors are taken from the first POI when
// present, then for each matching param and each side:
//
//	rescale = 1/pull (1 when pull is 0)
//	err'    = sqrt(err² − impact² + (rescale·impact)²)
//
// A negative err² − impact² yields a *DegenerateError and r unchanged.
func (c Combiner) Combine(r Result, im *Impacts) (Result, error) {
	var matched []Param
	for _, p := range im.Params {
		if p.Name == c.Nuisance {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return r, nil
	}

	out := r
	if len(im.POIs) > 0 {
		fit := im.POIs[0].Fit
		out.SF = fit[1]
		out.HiErr = fit.Hi()
		out.LoErr = fit.Lo()
	}

	key := "SF_" + c.Process
	for _, p := range matched {
		impact, ok := p.Impacts[key]
		if !ok {
			return r, fmt.Errorf("%w: %s has no %s", ErrMissingImpact, p.Name, key)
		}
		hi, err := adjust(p.Name, "hi", out.HiErr, impact.Hi(), p.Fit.Hi())
		if err != nil {
			return r, err
		}
		lo, err := adjust(p.Name, "lo", out.LoErr, impact.Lo(), p.Fit.Lo())
		if err != nil {
			return r, err
		}
		out.HiErr, out.LoErr = hi, lo
	}
	return out, nil
}

func adjust(name, side string, total, impact, pull float64) (float64, error) {
	rescale := 1.0
	if pull != 0 {
		rescale = 1 / pull
	}
	residual2 := total*total - impact*impact
	if math.Abs(residual2) <= zeroTolerance {
		residual2 = 0
	}
	if residual2 < 0 {
		return 0, &DegenerateError{Nuisance: name, Side: side, Residual2: residual2}
	}
	scaled := rescale * impact
	return math.Sqrt(residual2 + scaled*scaled), nil
}
