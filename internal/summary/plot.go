package summary

import (
	"fmt"
	"image/color"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var seriesColors = []color.Color{
	color.RGBA{R: 0x88, G: 0x25, B: 0x8C, A: 255},
	color.RGBA{R: 0x5C, G: 0xB4, B: 0xE8, A: 255},
	color.RGBA{R: 0xFB, G: 0x80, B: 0x72, A: 255},
	color.RGBA{R: 0x80, G: 0xB1, B: 0xD3, A: 255},
}

var seriesHex = []string{"#88258C", "#5CB4E8", "#fb8072", "#80b1d3"}

// errorPoints are scale factors with asymmetric y errors.
type errorPoints struct {
	plotter.XYs
	plotter.YErrors
}

// points returns the bins of s that have a result, offset along x by
// shift so that series do not overlap.
func points(s Series, shift float64) errorPoints {
	var p errorPoints
	for i, v := range s.SF {
		if v <= 0 {
			continue
		}
		p.XYs = append(p.XYs, plotter.XY{X: float64(i) + shift, Y: v})
		p.YErrors = append(p.YErrors, struct{ Low, High float64 }{s.LoErr[i], s.HiErr[i]})
	}
	return p
}

// PlotPNG draws the table as markers with asymmetric error bars, one
// colour per tagger.
func PlotPNG(t *Table, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s", t.Year, t.SFLabel)
	p.X.Label.Text = "Top candidate pT [GeV]"
	p.Y.Label.Text = "SF (data / simulation)"
	p.Y.Min = 0.2
	p.Y.Max = 2.4
	p.NominalX(t.Bins...)

	unity, err := plotter.NewLine(plotter.XYs{{X: -0.5, Y: 1}, {X: float64(len(t.Bins)) - 0.5, Y: 1}})
	if err != nil {
		return err
	}
	unity.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	unity.Color = color.Gray{Y: 128}
	p.Add(unity)

	for i, s := range t.Series {
		pts := points(s, 0.08*float64(i))
		if len(pts.XYs) == 0 {
			continue
		}
		c := seriesColors[i%len(seriesColors)]

		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		scatter.GlyphStyle.Color = c
		scatter.GlyphStyle.Radius = vg.Points(3)

		bars, err := plotter.NewYErrorBars(pts)
		if err != nil {
			return err
		}
		bars.LineStyle.Color = c
		bars.LineStyle.Width = vg.Points(1.5)

		p.Add(scatter, bars)
		p.Legend.Add(fmt.Sprintf("%s top tagger", s.Title), scatter)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(7*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save scale factor plot: %w", err)
	}
	return nil
}

// PlotHTML renders the table as an interactive chart.
func PlotHTML(t *Table, path string) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: fmt.Sprintf("%s %s", t.Year, t.SFLabel), Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s %s vs top pT", t.Year, t.SFLabel), Subtitle: meanSubtitle(t)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Top candidate pT [GeV]", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "SF", Min: 0.2, Max: 2.4}),
	)
	line.SetXAxis(t.Bins)
	for i, s := range t.Series {
		data := make([]opts.LineData, len(s.SF))
		for j, v := range s.SF {
			if v <= 0 {
				data[j] = opts.LineData{Value: "-"}
				continue
			}
			data[j] = opts.LineData{
				Value: v,
				Name:  fmt.Sprintf("%.3f +%.3f -%.3f", v, s.HiErr[j], s.LoErr[j]),
			}
		}
		line.AddSeries(s.Title, data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: seriesHex[i%len(seriesHex)]}),
		)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart: %w", err)
	}
	if err := line.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("render chart: %w", err)
	}
	return f.Close()
}

func meanSubtitle(t *Table) string {
	var s string
	for i, series := range t.Series {
		if i > 0 {
			s += "  "
		}
		s += fmt.Sprintf("%s mean %.3f", series.Title, series.Mean)
	}
	return s
}
