package cli

import (
	"image/color"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const plotSize = 6 * vg.Inch

// PlotAction is the corresponding Action for 'plot'.
func PlotAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("expected at least one records file")
	}
	records, err := readRecords(c.Args().Slice()...)
	if err != nil {
		return err
	}
	p, err := plotRecords(c.String(flagTitle), records)
	if err != nil {
		return err
	}
	return p.Save(plotSize, plotSize, c.Path(flagOutput))
}

// plotRecords scatters the x and y of every record with a point, split by success.
func plotRecords(title string, records []Record) (*plot.Plot, error) {
	var succeeded, failed plotter.XYs
	for _, r := range records {
		if len(r.Point) < 2 {
			continue
		}
		xy := plotter.XY{X: r.Point[0], Y: r.Point[1]}
		if r.Success {
			succeeded = append(succeeded, xy)
		} else {
			failed = append(failed, xy)
		}
	}
	if len(succeeded)+len(failed) == 0 {
		return nil, errors.New("no records with end effector positions")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())
	for _, series := range []struct {
		name  string
		xys   plotter.XYs
		color color.Color
		shape draw.GlyphDrawer
	}{
		{"succeeded", succeeded, color.RGBA{G: 160, A: 255}, draw.CircleGlyph{}},
		{"failed", failed, color.RGBA{R: 200, A: 255}, draw.CrossGlyph{}},
	} {
		if len(series.xys) == 0 {
			continue
		}
		s, err := plotter.NewScatter(series.xys)
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Color = series.color
		s.GlyphStyle.Shape = series.shape
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add(series.name, s)
	}
	return p, nil
}
