package visualization

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"cellseg/pkg/lightsource"
)

// PlotDensities draws the background density of every timepoint, with a
// dashed marker at each estimated level, and saves it to filename. The
// image format follows the extension.
func PlotDensities(estimates []lightsource.Estimate, filename string) error {
	if len(estimates) == 0 {
		return errors.New("visualization: no estimates to plot")
	}

	p := plot.New()
	p.Title.Text = "Background intensity density"
	p.X.Label.Text = "Intensity"
	p.Y.Label.Text = "Density"

	colors := generateColors(len(estimates))
	for i, est := range estimates {
		d := est.Density
		pts := make(plotter.XYs, len(d.X))
		top := 0.0
		for k := range d.X {
			pts[k] = plotter.XY{X: d.X[k], Y: d.Y[k]}
			if d.Y[k] > top {
				top = d.Y[k]
			}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("t=%s", est.Label), line)

		marker, err := plotter.NewLine(plotter.XYs{{X: est.Level, Y: 0}, {X: est.Level, Y: top}})
		if err != nil {
			return err
		}
		marker.Color = colors[i]
		marker.Width = vg.Points(0.5)
		marker.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(marker)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 5*vg.Inch, filename); err != nil {
		return fmt.Errorf("save density plot: %w", err)
	}
	return nil
}

// PlotLevels draws the background level against timepoint and saves it to
// filename.
func PlotLevels(levels []float64, filename string) error {
	if len(levels) == 0 {
		return errors.New("visualization: no levels to plot")
	}

	p := plot.New()
	p.Title.Text = "Light source fluctuation"
	p.X.Label.Text = "Timepoint"
	p.Y.Label.Text = "Background level"

	pts := make(plotter.XYs, len(levels))
	for t, v := range levels {
		pts[t] = plotter.XY{X: float64(t), Y: v}
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	p.Add(line, points)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, filename); err != nil {
		return fmt.Errorf("save level plot: %w", err)
	}
	return nil
}
