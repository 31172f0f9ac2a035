package source

import (
	"context"
	"fmt"

	"github.com/banshee-data/tagprobe/internal/formula"
	"github.com/banshee-data/tagprobe/internal/hist"
)

// DrawRequest describes one conditional fill.
type DrawRequest struct {
	Selection string
	Variable  string
	// Weight is ignored unless Weighted is set.
	Weight   string
	Weighted bool
}

// Fields returns the columns a draw needs: selection and variable, plus
// the weight when the draw is weighted.
func (r DrawRequest) Fields() ([]string, error) {
	exprs := []string{r.Selection, r.Variable}
	if r.Weighted {
		exprs = append(exprs, r.Weight)
	}
	return formula.Fields(exprs...)
}

// DrawStats summarises one draw.
type DrawStats struct {
	Scanned  int64
	Selected int64
}

// Draw fills h from t. Rows failing the selection are skipped; passing
// rows contribute the weight (1 for unweighted draws). Rows whose weight
// evaluates to zero are not filled. A "y:x" variable fills a 2-D
// histogram. Activation is reset to exactly the referenced fields.
func Draw(ctx context.Context, t Table, c *formula.Compiler, req DrawRequest, h *hist.Histogram) (DrawStats, error) {
	var stats DrawStats

	fields, err := req.Fields()
	if err != nil {
		return stats, err
	}
	t.ResetActivation()
	if err := t.Activate(fields...); err != nil {
		return stats, err
	}

	sel, err := c.Compile(req.Selection, formula.Selection)
	if err != nil {
		return stats, err
	}
	weightSrc := ""
	if req.Weighted {
		weightSrc = req.Weight
	}
	weight, err := c.Compile(weightSrc, formula.Value)
	if err != nil {
		return stats, err
	}

	axes := formula.SplitAxes(req.Variable)
	if (len(axes) == 2) != h.Is2D() {
		return stats, fmt.Errorf("variable %q has %d axes but histogram %q is %dD", req.Variable, len(axes), h.Name, dims(h))
	}
	progs := make([]*formula.Program, len(axes))
	for i, a := range axes {
		if progs[i], err = c.Compile(a, formula.Value); err != nil {
			return stats, err
		}
	}

	err = t.Scan(ctx, func(row Row) error {
		stats.Scanned++
		pass, err := sel.Pass(row)
		if err != nil || !pass {
			return err
		}
		w, err := weight.Eval(row)
		if err != nil || w == 0 {
			return err
		}
		stats.Selected++
		if len(progs) == 2 {
			y, err := progs[0].Eval(row)
			if err != nil {
				return err
			}
			x, err := progs[1].Eval(row)
			if err != nil {
				return err
			}
			h.Fill2D(x, y, w)
			return nil
		}
		x, err := progs[0].Eval(row)
		if err != nil {
			return err
		}
		h.Fill(x, w)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("draw %q from %q: %w", req.Variable, t.Name(), err)
	}
	return stats, nil
}

func dims(h *hist.Histogram) int {
	if h.Is2D() {
		return 2
	}
	return 1
}
