package summary

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tagprobe/internal/config"
	"github.com/banshee-data/tagprobe/internal/hist"
	"github.com/banshee-data/tagprobe/internal/sf"
	"github.com/banshee-data/tagprobe/internal/store"
)

// Series is one tagger's scale factors over the table bins. SF is -1
// where no result exists.
type Series struct {
	Tagger string
	Title  string
	SF     []float64
	LoErr  []float64
	HiErr  []float64
	// Mean is the inverse-variance weighted mean over the bins with a
	// result, 0 when there are none.
	Mean float64
}

// Table holds one measurement's scale factors for every tagger.
type Table struct {
	Year        string
	Measurement string
	SFLabel     string
	// Bins are "<lo>-<hi>" labels ordered by lower edge.
	Bins   []string
	Edges  []float64
	Series []Series
}

// BuildTable arranges the results of one measurement. Bins come from
// every tagger's results, except that a tagger with FoldAbove set
// contributes no bins at or above it and reads its single folded result
// "<FoldAbove>to<pt max>" for those bins instead.
func BuildTable(cfg *config.Analysis, year, measurement string, results []sf.Result) (*Table, error) {
	meas, err := cfg.Measurement(measurement)
	if err != nil {
		return nil, err
	}
	t := &Table{Year: year, Measurement: measurement, SFLabel: meas.SFLabel}
	if t.SFLabel == "" {
		t.SFLabel = measurement
	}

	taggers := make(map[string]config.Tagger)
	for _, tg := range cfg.Taggers {
		taggers[tg.Name] = tg
	}

	seen := make(map[string]bool)
	for _, r := range results {
		if r.Measurement != measurement {
			continue
		}
		lo, hi := splitBin(r.PtBin)
		if tg, ok := taggers[r.Tagger]; ok && tg.FoldAbove > 0 && lo >= tg.FoldAbove {
			continue
		}
		name := binLabel(lo, hi)
		if !seen[name] {
			seen[name] = true
			t.Bins = append(t.Bins, name)
		}
	}
	if len(t.Bins) == 0 {
		return nil, fmt.Errorf("no %s results for %s", measurement, year)
	}
	sort.Slice(t.Bins, func(i, j int) bool {
		li, hi := splitBin(t.Bins[i])
		lj, hj := splitBin(t.Bins[j])
		if li != lj {
			return li < lj
		}
		return hi < hj
	})
	for i, b := range t.Bins {
		lo, hi := splitBin(b)
		t.Edges = append(t.Edges, lo)
		if i == len(t.Bins)-1 {
			t.Edges = append(t.Edges, hi)
		}
	}

	index := make(map[string]sf.Result)
	for _, r := range results {
		if r.Measurement == measurement {
			index[r.Tagger+"|"+r.PtBin] = r
		}
	}
	for _, tg := range cfg.Taggers {
		s := Series{
			Tagger: tg.Name,
			Title:  tg.DisplayName(),
			SF:     make([]float64, len(t.Bins)),
			LoErr:  make([]float64, len(t.Bins)),
			HiErr:  make([]float64, len(t.Bins)),
		}
		for i, b := range t.Bins {
			lo, hi := splitBin(b)
			lookup := binRange(lo, hi)
			if tg.FoldAbove > 0 && lo >= tg.FoldAbove {
				lookup = binRange(tg.FoldAbove, cfg.PtMax())
			}
			r, ok := index[tg.Name+"|"+lookup]
			if !ok {
				s.SF[i] = -1
				continue
			}
			s.SF[i], s.LoErr[i], s.HiErr[i] = r.SF, r.LoErr, r.HiErr
		}
		s.Mean = weightedMean(s)
		t.Series = append(t.Series, s)
	}
	return t, nil
}

func binLabel(lo, hi float64) string {
	return formatEdge(lo) + "-" + formatEdge(hi)
}

func binRange(lo, hi float64) string {
	return formatEdge(lo) + "to" + formatEdge(hi)
}

func formatEdge(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func weightedMean(s Series) float64 {
	var xs, ws []float64
	for i, v := range s.SF {
		err := math.Max(s.LoErr[i], s.HiErr[i])
		if v <= 0 || err <= 0 {
			continue
		}
		xs = append(xs, v)
		ws = append(ws, 1/(err*err))
	}
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, ws)
}

// HistogramName names the persisted scale factor histogram of s.
func (t *Table) HistogramName(s Series) string {
	return fmt.Sprintf("%s_%s_vs_topPt_%s", t.Year, t.SFLabel, s.Title)
}

// Histograms converts every series into a histogram over the table
// edges. Bins without a result hold 1 with no error; the others hold the
// scale factor with the larger of its two errors.
func (t *Table) Histograms() ([]*hist.Histogram, error) {
	x := hist.Variable(t.Edges...)
	if err := x.Validate(); err != nil {
		return nil, fmt.Errorf("%s scale factor bins %v: %w", t.Measurement, t.Bins, err)
	}
	var out []*hist.Histogram
	for _, s := range t.Series {
		h, err := hist.New1D(t.HistogramName(s), x)
		if err != nil {
			return nil, err
		}
		for i, v := range s.SF {
			val, e := 1.0, 0.0
			if v > 0 {
				val = v
				e = math.Max(s.LoErr[i], s.HiErr[i])
			}
			h.SumW[i+1] = val
			h.SumW2[i+1] = e * e
		}
		out = append(out, h)
	}
	return out, nil
}

// Save writes the table histograms into s.
func (t *Table) Save(ctx context.Context, s *store.Store) error {
	hs, err := t.Histograms()
	if err != nil {
		return err
	}
	return s.PutAll(ctx, hs)
}

// WriteCSV writes one row per (measurement, tagger, bin).
func WriteCSV(w io.Writer, tables []*Table) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"year", "measurement", "tagger", "pt_bin", "sf", "hi_err", "lo_err"})
	for _, t := range tables {
		for _, s := range t.Series {
			for i, b := range t.Bins {
				cw.Write([]string{
					t.Year, t.Measurement, s.Tagger, strings.Replace(b, "-", "to", 1),
					formatValue(s.SF[i]), formatValue(s.HiErr[i]), formatValue(s.LoErr[i]),
				})
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
