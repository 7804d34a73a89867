package report

import (
	"bytes"
	"fmt"
	"image/color"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/pixelcal/internal/pixel/fit"
	"github.com/banshee-data/pixelcal/internal/pixel/response"
)

// viridis, low to high.
var mapColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

var axisLabels = map[string]string{
	"threshold": "Threshold (injection DAC)",
	"noise":     "Noise (injection DAC)",
}

// PNG renders the histogram of d with the fitted Gaussian overlaid.
func (d Distribution) PNG() ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%s): n=%d mean=%.3f std=%.3f", d.Quantity, d.Region, d.Count, d.Mean, d.Std)
	p.X.Label.Text = axisLabels[d.Quantity]
	p.Y.Label.Text = "Pixels"

	bins := make([]plotter.HistogramBin, len(d.Counts))
	for i, n := range d.Counts {
		bins[i] = plotter.HistogramBin{Min: d.Edges[i], Max: d.Edges[i+1], Weight: n}
	}
	h := &plotter.Histogram{
		Bins:      bins,
		Width:     d.BinWidth(),
		FillColor: color.Gray{Y: 200},
	}
	h.LineStyle = plotter.DefaultLineStyle
	p.Add(h)

	if d.Err == nil && len(d.Gauss) == 3 {
		g := d.Gauss
		f := plotter.NewFunction(func(x float64) float64 { return response.Gauss(x, g[0], g[1], g[2]) })
		f.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		f.Width = vg.Points(1.5)
		f.Samples = 200
		p.Add(f)
		p.Legend.Add(fmt.Sprintf("gauss mean=%.3f sigma=%.3f", g[1], g[2]), f)
		p.Legend.Top = true
	}
	p.X.Min = d.Edges[0]
	p.X.Max = d.Edges[len(d.Edges)-1]

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", d.Name(), err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", d.Name(), err)
	}
	return buf.Bytes(), nil
}

// ThresholdMap renders the s-curve threshold of every fitted pixel as an
// HTML scatter over (column, row), coloured over rng.
func ThresholdMap(cals []fit.Calibration, rows, cols int, rng [2]float64, title string) ([]byte, error) {
	data := make([]opts.ScatterData, 0, len(cals))
	for _, c := range cals {
		if !c.SCurve.OK() {
			continue
		}
		data = append(data, opts.ScatterData{Value: []interface{}{c.Pixel.Col, c.Pixel.Row, c.SCurve.Params[1]}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Threshold map", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Threshold map", Subtitle: fmt.Sprintf("%s fitted=%d/%d", title, len(data), rows*cols)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: cols, Name: "column", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: rows, Name: "row", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(rng[0]),
			Max:        float32(rng[1]),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: mapColors},
		}),
	)
	scatter.AddSeries("threshold", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return nil, fmt.Errorf("failed to render threshold map: %w", err)
	}
	return buf.Bytes(), nil
}
