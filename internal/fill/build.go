// Package fill draws the enumerated variants from event sources into
// per-process histogram stores and merges them into one store per
// category.
package fill

import (
	"context"
	"fmt"

	"github.com/banshee-data/tagprobe/internal/formula"
	"github.com/banshee-data/tagprobe/internal/hist"
	"github.com/banshee-data/tagprobe/internal/source"
	"github.com/banshee-data/tagprobe/internal/variant"
)

// Build fills one histogram named name for spec from t. Observed data is
// drawn unweighted; simulation is weighted by spec.Weight. Only the fields
// the expressions reference are activated.
func Build(ctx context.Context, c *formula.Compiler, spec variant.Spec, t source.Table, isData bool, name string) (*hist.Histogram, source.DrawStats, error) {
	var (
		h   *hist.Histogram
		err error
	)
	if spec.Is2D() {
		h, err = hist.New2D(name, spec.X, *spec.Y)
	} else {
		h, err = hist.New1D(name, spec.X)
	}
	if err != nil {
		return nil, source.DrawStats{}, err
	}

	stats, err := source.Draw(ctx, t, c, source.DrawRequest{
		Selection: spec.Selection,
		Variable:  spec.Variable,
		Weight:    spec.Weight,
		Weighted:  !isData,
	}, h)
	if err != nil {
		return nil, stats, fmt.Errorf("build %s: %w", name, err)
	}
	return h, stats, nil
}
