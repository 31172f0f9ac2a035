// Package summary gathers fitted scale factors across pt bins into
// per-measurement tables, persists them as histograms and renders CSV,
// PNG and HTML summaries.
package summary

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/banshee-data/tagprobe/internal/config"
	"github.com/banshee-data/tagprobe/internal/metrics"
	"github.com/banshee-data/tagprobe/internal/monitoring"
	"github.com/banshee-data/tagprobe/internal/sf"
	"github.com/banshee-data/tagprobe/internal/variant"
)

// Collect reads every fit directory of year under dir. Only directories
// with a pt bin suffix take part. An "Inf" upper edge is replaced by the
// configured pt maximum. A directory without a fit result contributes a
// missing result; a fit result without the measurement's signal is an
// error. For the impacts measurement the uncertainty is adjusted
// with impacts.json; a degenerate combination is logged and the fitted
// errors are kept.
func Collect(cfg *config.Analysis, year, dir string, m *metrics.Collector) ([]sf.Result, error) {
	if m == nil {
		m = metrics.New()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fit directories: %w", err)
	}

	ptMax := strconv.FormatFloat(cfg.PtMax(), 'f', -1, 64)
	var results []sf.Result
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sel, ok := variant.ParseDirName(e.Name())
		if !ok || sel.Year != year || sel.PtBin == "" {
			continue
		}
		meas, err := cfg.Measurement(sel.Measurement)
		if err != nil {
			monitoring.Warnf("skipping %s: %v", e.Name(), err)
			continue
		}
		log := monitoring.L().With(zap.String("fit", e.Name()))

		fitDir := filepath.Join(dir, e.Name())
		res := sf.Result{
			Tagger:      sel.Tagger,
			Measurement: sel.Measurement,
			PtBin:       strings.Replace(sel.PtBin, "Inf", ptMax, 1),
		}
		rec, err := sf.ReadFitRecord(filepath.Join(fitDir, sf.FitResultFile))
		if err != nil {
			log.Warn("no fit result", zap.Error(err))
			res.SF = -1
			m.FitResults.WithLabelValues("missing").Inc()
			results = append(results, res)
			continue
		}
		var found bool
		res.SF, res.HiErr, res.LoErr, found = rec.Value(meas.Signal)
		if !found {
			return nil, fmt.Errorf("%s: %w: no SF_%s in %s", e.Name(), sf.ErrMissingProcess, meas.Signal, sf.FitResultFile)
		}

		if cfg.Impacts != nil && cfg.Impacts.Measurement == sel.Measurement {
			res, err = applyImpacts(cfg, meas, fitDir, res, m, log)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", e.Name(), err)
			}
		}
		m.FitResults.WithLabelValues("ok").Inc()
		log.Debug("fit result",
			zap.Float64("sf", res.SF),
			zap.Float64("hi_err", res.HiErr),
			zap.Float64("lo_err", res.LoErr))
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Measurement != b.Measurement {
			return a.Measurement < b.Measurement
		}
		if a.Tagger != b.Tagger {
			return a.Tagger < b.Tagger
		}
		return lowEdge(a.PtBin) < lowEdge(b.PtBin)
	})
	return results, nil
}

func applyImpacts(cfg *config.Analysis, meas config.Measurement, fitDir string, res sf.Result, m *metrics.Collector, log *zap.Logger) (sf.Result, error) {
	path := filepath.Join(fitDir, sf.ImpactsFile)
	if _, err := os.Stat(path); err != nil {
		log.Warn("no impacts, keeping fitted errors", zap.String("path", path))
		return res, nil
	}
	im, err := sf.ReadImpacts(path)
	if err != nil {
		return res, err
	}
	c := sf.Combiner{Nuisance: cfg.Impacts.Nuisance, Process: meas.Signal}
	out, err := c.Combine(res, im)
	var de *sf.DegenerateError
	if errors.As(err, &de) {
		log.Warn("degenerate nuisance, keeping fitted errors", zap.Error(err))
		m.CombinerFailures.Inc()
		return res, nil
	}
	return out, err
}

// lowEdge parses the lower edge of "<lo>to<hi>" or "<lo>-<hi>".
func lowEdge(bin string) float64 {
	lo, _ := splitBin(bin)
	return lo
}

func splitBin(bin string) (lo, hi float64) {
	l, h, ok := strings.Cut(bin, "to")
	if !ok {
		l, h, _ = strings.Cut(bin, "-")
	}
	lo, _ = strconv.ParseFloat(l, 64)
	hi, _ = strconv.ParseFloat(h, 64)
	return lo, hi
}
