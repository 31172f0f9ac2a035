package summary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/banshee-data/tagprobe/internal/config"
	"github.com/banshee-data/tagprobe/internal/metrics"
	"github.com/banshee-data/tagprobe/internal/monitoring"
	"github.com/banshee-data/tagprobe/internal/store"
)

// Options configure a summary run.
type Options struct {
	Year      string
	InputDir  string
	OutputDir string
	Metrics   *metrics.Collector
}

// Report lists what a summary run produced.
type Report struct {
	Tables []*Table
	Store  string
	CSV    string
	Plots  []string
}

// StorePath is the scale factor histogram store of year.
func StorePath(dir, year string) string {
	return filepath.Join(dir, year+"_SF.db")
}

// Run collects the fit results of opts.Year, builds one table per
// measurement that has results, and writes the scale factor store, the
// CSV summary and one PNG and HTML plot per table.
func Run(ctx context.Context, cfg *config.Analysis, opts Options) (*Report, error) {
	results, err := Collect(cfg, opts.Year, opts.InputDir, opts.Metrics)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no fit directories for %s in %s", opts.Year, opts.InputDir)
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	present := make(map[string]bool)
	for _, r := range results {
		present[r.Measurement] = true
	}

	rep := &Report{Store: StorePath(opts.OutputDir, opts.Year)}
	for _, m := range cfg.Measurements {
		if !present[m.Name] {
			continue
		}
		t, err := BuildTable(cfg, opts.Year, m.Name, results)
		if err != nil {
			return nil, err
		}
		rep.Tables = append(rep.Tables, t)
	}

	s, err := store.Create(ctx, rep.Store)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	for _, t := range rep.Tables {
		if err := t.Save(ctx, s); err != nil {
			return nil, fmt.Errorf("save %s table: %w", t.Measurement, err)
		}

		base := filepath.Join(opts.OutputDir, fmt.Sprintf("%s_SF_%s", opts.Year, t.Measurement))
		if err := PlotPNG(t, base+".png"); err != nil {
			return nil, err
		}
		if err := PlotHTML(t, base+".html"); err != nil {
			return nil, err
		}
		rep.Plots = append(rep.Plots, base+".png", base+".html")

		for _, series := range t.Series {
			monitoring.L().Info("scale factor summary",
				zap.String("measurement", t.Measurement),
				zap.String("tagger", series.Tagger),
				zap.Float64("mean", series.Mean))
		}
	}

	rep.CSV = filepath.Join(opts.OutputDir, opts.Year+"_SF_summary.csv")
	f, err := os.Create(rep.CSV)
	if err != nil {
		return nil, fmt.Errorf("create csv: %w", err)
	}
	if err := WriteCSV(f, rep.Tables); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return rep, nil
}
