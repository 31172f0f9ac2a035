package summary

import (
	"context"
	"fmt"
	"image/color"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/tagprobe/internal/hist"
	"github.com/banshee-data/tagprobe/internal/monitoring"
	"github.com/banshee-data/tagprobe/internal/store"
)

// PlotSystematics draws, for every process and systematic source with
// shifted histograms in s, the nominal shape against its up and down
// shifts into outDir/<process>_<source>.png. Pairs without an Up
// histogram are skipped. It returns the written paths.
func PlotSystematics(ctx context.Context, s *store.Store, processes, sources []string, outDir string) ([]string, error) {
	var written []string
	for _, proc := range processes {
		nominal, err := s.Get(ctx, proc)
		if err != nil {
			return written, err
		}
		if nominal.Is2D() {
			continue
		}
		for _, src := range sources {
			up, err := s.Get(ctx, proc+"_"+src+"Up")
			if err != nil {
				monitoring.L().Debug("no shifted shape", zap.String("process", proc), zap.String("source", src))
				continue
			}
			down, err := s.Get(ctx, proc+"_"+src+"Down")
			if err != nil {
				return written, err
			}
			path := filepath.Join(outDir, fmt.Sprintf("%s_%s.png", proc, src))
			if err := plotShifts(nominal, up, down, src, path); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}
	return written, nil
}

func plotShifts(nominal, up, down *hist.Histogram, source, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s", nominal.Name, source)
	p.X.Label.Text = "Top candidate mass [GeV]"
	p.Y.Label.Text = "Events"

	for _, c := range []struct {
		h     *hist.Histogram
		label string
		col   color.Color
	}{
		{nominal, "nominal", color.Black},
		{up, source + " up", color.RGBA{R: 0xD6, G: 0x27, B: 0x28, A: 255}},
		{down, source + " down", color.RGBA{R: 0x1F, G: 0x77, B: 0xB4, A: 255}},
	} {
		l, err := plotter.NewLine(steps(c.h))
		if err != nil {
			return err
		}
		l.StepStyle = plotter.PostStep
		l.Color = c.col
		l.Width = vg.Points(1.5)
		p.Add(l)
		p.Legend.Add(c.label, l)
	}
	p.Legend.Top = true

	if err := p.Save(7*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	return nil
}

// steps returns one point per in-range bin at its lower edge, closed by
// a point at the upper edge of the last bin.
func steps(h *hist.Histogram) plotter.XYs {
	n := h.NBinsX()
	pts := make(plotter.XYs, 0, n+1)
	for i := 0; i < n; i++ {
		pts = append(pts, plotter.XY{X: h.XEdges[i], Y: h.Content(i+1, 0)})
	}
	if n > 0 {
		pts = append(pts, plotter.XY{X: h.XEdges[n], Y: h.Content(n, 0)})
	}
	return pts
}
