package verify

import (
	"image/color"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gopkg.in/go-playground/colors.v1"
)

const (
	histogramBins = 70
	histogramDPI  = 300
	// emptyBin is where empty bins are drawn on the log scale.
	emptyBin = 0.5
)

func hexColor(hex string) (color.Color, error) {
	c, err := colors.ParseHEX(hex)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid colour %s", hex)
	}
	rgba := c.ToRGBA()

	return color.NRGBA{R: rgba.R, G: rgba.G, B: rgba.B, A: uint8(rgba.A * 255)}, nil
}

// histogram counts values in n equal bins spanning their range.
func histogram(values []float64, n int) (edges, counts []float64) {
	lo, hi := floats.Min(values), floats.Max(values)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	edges = Linspace(lo, hi, n+1)
	counts = make([]float64, n)
	width := (hi - lo) / float64(n)
	for _, v := range values {
		bin := int((v - lo) / width)
		if bin >= n {
			bin = n - 1
		}
		counts[bin]++
	}

	return edges, counts
}

// stepLine outlines the histogram bars.
func stepLine(edges, counts []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, 2*len(counts)+2)
	pts = append(pts, plotter.XY{X: edges[0], Y: emptyBin})
	for i, c := range counts {
		y := max(c, emptyBin)
		pts = append(pts, plotter.XY{X: edges[i], Y: y}, plotter.XY{X: edges[i+1], Y: y})
	}

	return append(pts, plotter.XY{X: edges[len(edges)-1], Y: emptyBin})
}

func verticalLine(x, top float64, c color.Color, dashed bool) (*plotter.Line, error) {
	l, err := plotter.NewLine(plotter.XYs{{X: x, Y: emptyBin}, {X: x, Y: top}})
	if err != nil {
		return nil, errors.Wrap(err, "unable to draw line")
	}
	l.LineStyle.Color = c
	if dashed {
		l.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	}

	return l, nil
}

// PlotHistogram saves a log scale histogram of values marking the mean and the 95% interval.
func PlotHistogram(path string, values []float64, s Summary) error {
	if len(values) == 0 {
		return ErrNoValues
	}
	steelBlue, err := hexColor("#4682b4")
	if err != nil {
		return err
	}
	darkGrey, err := hexColor("#a9a9a9")
	if err != nil {
		return err
	}

	edges, counts := histogram(values, histogramBins)
	top := floats.Max(counts) * 2

	p := plot.New()
	p.X.Label.Text = "Log(Jacobian)"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.ConstantTicks(nil)
	p.Y.Min = emptyBin
	p.Y.Max = top
	p.Legend.Top = true

	hist, err := plotter.NewLine(stepLine(edges, counts))
	if err != nil {
		return errors.Wrap(err, "unable to draw histogram")
	}
	hist.LineStyle.Color = steelBlue
	hist.LineStyle.Width = vg.Points(2)

	mean, err := verticalLine(s.Mean, top, color.Black, false)
	if err != nil {
		return err
	}
	low, err := verticalLine(s.Low, top, darkGrey, true)
	if err != nil {
		return err
	}
	high, err := verticalLine(s.High, top, darkGrey, true)
	if err != nil {
		return err
	}

	labels, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    []plotter.XY{{X: -1.2, Y: top / 2}, {X: 1.2, Y: top / 2}},
		Labels: []string{"Contracting", "Expanding"},
	})
	if err != nil {
		return errors.Wrap(err, "unable to draw labels")
	}

	p.Add(hist, mean, low, high, labels)
	p.Legend.Add("Mean", mean)
	p.Legend.Add("95% CI", high)

	canvas := vgimg.NewWith(vgimg.UseWH(4*vg.Inch, 3*vg.Inch), vgimg.UseDPI(histogramDPI))
	p.Draw(draw.New(canvas))

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	if _, err := (vgimg.PngCanvas{Canvas: canvas}).WriteTo(f); err != nil {
		f.Close()

		return errors.Wrapf(err, "unable to write %s", path)
	}

	return errors.Wrapf(f.Close(), "unable to close %s", path)
}
