package main

import (
	"fmt"
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"bitbucket.org/Davydov/afsfit/spectrum"
)

// aicPoints groups the replicate AIC values by model label. Every model
// gets its own column, in the order of first appearance.
func aicPoints(fileNames []string) (labels []string, pts []plotter.XYs, err error) {
	rows, err := readResults(fileNames)
	if err != nil {
		return nil, nil, err
	}
	column := make(map[string]int)
	for _, r := range rows {
		if math.IsNaN(r.AIC) || math.IsInf(r.AIC, 0) {
			continue
		}
		c, ok := column[r.Label]
		if !ok {
			c = len(labels)
			column[r.Label] = c
			labels = append(labels, r.Label)
			pts = append(pts, nil)
		}
		pts[c] = append(pts[c], plotter.XY{X: float64(c), Y: r.AIC})
	}
	if len(labels) == 0 {
		return nil, nil, fmt.Errorf("no replicates with finite AIC in %d files", len(fileNames))
	}
	return labels, pts, nil
}

// plotAIC writes a scatter of replicate AIC values, one column per
// model.
func plotAIC(fileNames []string, out string) error {
	labels, pts, err := aicPoints(fileNames)
	if err != nil {
		return err
	}
	p := plot.New()
	p.Title.Text = "Replicate AIC"
	p.Y.Label.Text = "AIC"

	var vs []interface{}
	for i := range labels {
		vs = append(vs, labels[i], pts[i])
	}
	if err := plotutil.AddScatters(p, vs...); err != nil {
		return err
	}
	p.Legend.Top = true
	p.NominalX(labels...)

	width := vg.Length(2+len(labels)) * vg.Inch
	if err := p.Save(width, 4*vg.Inch, out); err != nil {
		return err
	}
	log.Noticef("AIC plot written to %s", out)
	return nil
}

// marginalGrid is a two-population spectrum as a heat map grid of
// log10 counts. Masked and empty cells are NaN.
type marginalGrid struct {
	z *mat.Dense
}

func newMarginalGrid(s *spectrum.Spectrum) marginalGrid {
	ns := s.SampleSizes()
	z := mat.NewDense(ns[0]+1, ns[1]+1, nil)
	for a := 0; a <= ns[0]; a++ {
		for b := 0; b <= ns[1]; b++ {
			f := s.Index(a, b)
			v := s.Flat(f)
			if s.Masked(f) || v <= 0 {
				z.Set(a, b, math.NaN())
				continue
			}
			z.Set(a, b, math.Log10(v))
		}
	}
	return marginalGrid{z: z}
}

// Dims returns the grid size; matrix rows are the first population.
func (g marginalGrid) Dims() (c, r int) {
	return g.z.Dims()
}

func (g marginalGrid) Z(c, r int) float64 {
	return g.z.At(c, r)
}

func (g marginalGrid) X(c int) float64 {
	return float64(c)
}

func (g marginalGrid) Y(r int) float64 {
	return float64(r)
}

// heatmaps writes a heat map for every pair of populations into dir
// and returns the file names.
func heatmaps(s *spectrum.Spectrum, dir string) ([]string, error) {
	var files []string
	ids := s.PopIDs
	if len(ids) != s.Dims() {
		ids = make([]string, s.Dims())
		for i := range ids {
			ids[i] = fmt.Sprintf("pop%d", i+1)
		}
	}
	for i := 0; i < s.Dims(); i++ {
		for j := i + 1; j < s.Dims(); j++ {
			m, err := s.Marginalize(i, j)
			if err != nil {
				return nil, err
			}
			p := plot.New()
			p.Title.Text = fmt.Sprintf("%s x %s, log10 count", ids[i], ids[j])
			p.X.Label.Text = ids[i]
			p.Y.Label.Text = ids[j]

			h := plotter.NewHeatMap(newMarginalGrid(m), palette.Heat(16, 1))
			if !(h.Max > h.Min) {
				// constant or empty grid
				h.Max = h.Min + 1
			}
			p.Add(h)

			fn := filepath.Join(dir, fmt.Sprintf("%s_%s.png", ids[i], ids[j]))
			if err := p.Save(5*vg.Inch, 5*vg.Inch, fn); err != nil {
				return nil, err
			}
			files = append(files, fn)
		}
	}
	return files, nil
}
