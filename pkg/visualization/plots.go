package visualization

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SaveTrajectoryScatter plots the first two trajectory dimensions as a
// k-space scatter figure.
func (v *Viewer) SaveTrajectoryScatter(coords [][]float64, name string) error {
	if len(coords) < 2 {
		return fmt.Errorf("trajectory scatter needs at least 2 coordinate dimensions, have %d", len(coords))
	}
	kx, ky := coords[0], coords[1]
	if len(kx) != len(ky) {
		return fmt.Errorf("coordinate dimensions differ in length: %d vs %d", len(kx), len(ky))
	}

	pts := make(plotter.XYs, len(kx))
	for i := range kx {
		pts[i].X = kx[i]
		pts[i].Y = ky[i]
	}

	p := plot.New()
	p.Title.Text = "k-space trajectory"
	p.X.Label.Text = "kx"
	p.Y.Label.Text = "ky"

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("building scatter: %w", err)
	}
	sc.GlyphStyle.Radius = vg.Points(0.8)
	p.Add(sc)

	path := filepath.Join(v.outputDir, name+".png")
	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

// SaveProfiles plots one or more 1D profiles (e.g. image centre lines from
// competing reconstructions) as overlaid lines.
func (v *Viewer) SaveProfiles(profiles map[string][]float64, title, name string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "magnitude"

	for label, values := range profiles {
		pts := make(plotter.XYs, len(values))
		for i, y := range values {
			pts[i].X = float64(i)
			pts[i].Y = y
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("building line %q: %w", label, err)
		}
		p.Add(line)
		p.Legend.Add(label, line)
	}

	path := filepath.Join(v.outputDir, name+".png")
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
