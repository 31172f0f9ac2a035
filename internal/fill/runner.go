package fill

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/tagprobe/internal/formula"
	"github.com/banshee-data/tagprobe/internal/metrics"
	"github.com/banshee-data/tagprobe/internal/monitoring"
	"github.com/banshee-data/tagprobe/internal/source"
	"github.com/banshee-data/tagprobe/internal/store"
	"github.com/banshee-data/tagprobe/internal/variant"
)

// DefaultWorkers caps the number of processes filled concurrently.
const DefaultWorkers = 4

// Opener opens the event file of one source.
type Opener func(ctx context.Context, path string) (source.Container, error)

// OpenFile opens sqlite event files.
func OpenFile(ctx context.Context, path string) (source.Container, error) {
	return source.Open(ctx, path)
}

// MergedPath returns the merged store of one category in dir.
func MergedPath(dir, category string) string {
	return filepath.Join(dir, "top_mass_"+category+".db")
}

// SourcePath returns the event file of source for year in dir.
func SourcePath(dir, year, src string) string {
	return filepath.Join(dir, year+"_"+src+".db")
}

// Runner fills every variant of an enumeration.
type Runner struct {
	Enum      *variant.Enumeration
	Year      string
	InputDir  string
	OutputDir string
	// Histogram is the template written to the stores. Empty selects the
	// first template of the enumeration.
	Histogram string
	Workers   int
	Open      Opener
	Metrics   *metrics.Collector
}

// Result lists the merged stores.
type Result struct {
	Stores  map[string]string
	Filled  int
	Skipped int
}

type processResult struct {
	filled, skipped int
}

// Run fills each process in its own worker, at most Workers at a time.
// A worker that cannot open its source logs and gives up without failing
// the run. Once every worker has finished, the per-process stores are
// merged into one store per category and removed. Merging fails when a
// per-process store is missing.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	procs := r.Enum.Processes
	if len(procs) == 0 {
		return nil, errors.New("no processes to fill")
	}
	histName := r.Histogram
	if histName == "" {
		histName = r.Enum.Histograms()[0]
	}
	open := r.Open
	if open == nil {
		open = OpenFile
	}
	m := r.Metrics
	if m == nil {
		m = metrics.New()
	}
	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	workers := r.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([]processResult, len(procs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(workers, len(procs)))
	for i, p := range procs {
		g.Go(func() error {
			m.WorkersInFlight.Inc()
			defer m.WorkersInFlight.Dec()
			start := time.Now()
			res, err := r.fillProcess(gctx, open, m, p, histName)
			m.FillDuration.WithLabelValues(p.Label).Observe(time.Since(start).Seconds())
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Result{Stores: make(map[string]string)}
	for _, res := range results {
		out.Filled += res.filled
		out.Skipped += res.skipped
	}

	for _, cat := range variant.Categories {
		inputs := make([]string, len(procs))
		for i, p := range procs {
			inputs[i] = r.processStore(p.Label, cat)
		}
		dst := MergedPath(r.OutputDir, cat)
		if err := store.Merge(ctx, dst, inputs); err != nil {
			return nil, err
		}
		if n, err := countHistograms(ctx, dst); err == nil {
			m.MergedHistograms.WithLabelValues(cat).Set(float64(n))
		}
		for _, in := range inputs {
			if err := os.Remove(in); err != nil {
				monitoring.Warnf("failed to remove %s: %v", in, err)
			}
		}
		out.Stores[cat] = dst
	}
	return out, nil
}

func (r *Runner) processStore(label, category string) string {
	return filepath.Join(r.OutputDir, label+"_"+category+".db")
}

// fillProcess draws every variant of one process sequentially.
func (r *Runner) fillProcess(ctx context.Context, open Opener, m *metrics.Collector, p variant.Process, histName string) (processResult, error) {
	var res processResult
	log := monitoring.L().With(zap.String("process", p.Label), zap.String("source", p.Source))

	path := SourcePath(r.InputDir, r.Year, p.Source)
	src, err := open(ctx, path)
	if err != nil {
		log.Warn("cannot open event source, skipping process", zap.String("path", path), zap.Error(err))
		m.SourceFailures.WithLabelValues(p.Source).Inc()
		return res, nil
	}
	defer src.Close()

	stores := make(map[string]*store.Store, len(variant.Categories))
	defer func() {
		for _, s := range stores {
			s.Close()
		}
	}()
	for _, cat := range variant.Categories {
		s, err := store.Create(ctx, r.processStore(p.Label, cat))
		if err != nil {
			return res, err
		}
		stores[cat] = s
	}

	// Programs carry their own evaluation state, so each worker compiles
	// its own.
	compiler := formula.NewCompiler()
	tables := make(map[string]source.Table)
	for _, cat := range variant.Categories {
		for _, key := range r.Enum.ForProcess(p.Label, cat) {
			if key.Histogram != histName {
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
			spec := r.Enum.Variants[key]

			tableName := r.Enum.Tree + spec.TableSuffix
			tbl, ok := tables[tableName]
			if !ok {
				if tbl, err = src.Table(ctx, tableName); err != nil {
					log.Warn("missing event table, skipping variant", zap.String("variant", key.String()), zap.Error(err))
					m.VariantsSkipped.WithLabelValues(p.Label, "table").Inc()
					res.skipped++
					continue
				}
				tables[tableName] = tbl
			}

			h, stats, err := Build(ctx, compiler, spec, tbl, p.Data, key.OutputName(p.Data))
			if errors.Is(err, source.ErrUnknownField) {
				log.Warn("missing event field, skipping variant", zap.String("variant", key.String()), zap.Error(err))
				m.VariantsSkipped.WithLabelValues(p.Label, "field").Inc()
				res.skipped++
				continue
			}
			if err != nil {
				return res, fmt.Errorf("%s: %w", key, err)
			}
			if err := stores[cat].Put(ctx, h); err != nil {
				return res, err
			}
			m.EventsScanned.WithLabelValues(p.Label).Add(float64(stats.Scanned))
			m.EventsSelected.WithLabelValues(p.Label).Add(float64(stats.Selected))
			m.VariantsFilled.WithLabelValues(p.Label, cat).Inc()
			res.filled++
			log.Debug("filled variant",
				zap.String("variant", key.String()),
				zap.Int64("selected", stats.Selected),
				zap.Float64("integral", h.Integral()))
		}
	}
	log.Info("filled process", zap.Int("variants", res.filled), zap.Int("skipped", res.skipped))
	return res, nil
}

func countHistograms(ctx context.Context, path string) (int, error) {
	s, err := store.Open(ctx, path)
	if err != nil {
		return 0, err
	}
	defer s.Close()
	names, err := s.Names(ctx)
	return len(names), err
}
