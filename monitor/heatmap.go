package monitor

import (
	"io"
	"os"

	"github.com/Pliploop/MuLOOC/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// HeatmapSize is the side length of rendered heatmaps.
const HeatmapSize = 4 * vg.Inch

// symGrid exposes a symmetric matrix as a plotter.GridXYZ with row 0 at the top.
type symGrid struct {
	m mat.Symmetric
}

func (g symGrid) Dims() (c, r int) {
	n := g.m.SymmetricDim()
	return n, n
}

func (g symGrid) Z(c, r int) float64 {
	n := g.m.SymmetricDim()
	return g.m.At(n-1-r, c)
}

func (g symGrid) X(c int) float64 { return float64(c) }

func (g symGrid) Y(r int) float64 { return float64(r) }

// ZeroDiagonal returns a copy of m with its diagonal set to zero, so that
// self-similarity does not dominate the colour scale.
func ZeroDiagonal(m mat.Symmetric) *mat.SymDense {
	n := m.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(m)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, 0)
	}
	return out
}

// NewHeatmapPlot draws m with values clamped to [lo, hi].
func NewHeatmapPlot(m mat.Symmetric, title string, lo, hi float64) (*plot.Plot, error) {
	if m == nil || m.SymmetricDim() == 0 {
		return nil, errors.NewValueError("monitor.NewHeatmapPlot", "empty matrix")
	}
	if lo >= hi {
		return nil, errors.NewValidationError("range", "lower bound must be below upper bound", []float64{lo, hi})
	}
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()

	h := plotter.NewHeatMap(symGrid{m: m}, palette.Heat(32, 1))
	h.Min, h.Max = lo, hi
	p.Add(h)
	return p, nil
}

// RenderHeatmap writes m to w as a PNG image.
func RenderHeatmap(w io.Writer, m mat.Symmetric, title string, lo, hi float64) error {
	p, err := NewHeatmapPlot(m, title, lo, hi)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(HeatmapSize, HeatmapSize, "png")
	if err != nil {
		return errors.Wrap(err, "failed to create png canvas")
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "failed to encode heatmap")
	}
	return nil
}

// SaveHeatmap writes m to a PNG file at path.
func SaveHeatmap(path string, m mat.Symmetric, title string, lo, hi float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := RenderHeatmap(f, m, title, lo, hi); err != nil {
		f.Close()
		return err
	}
	return errors.WithStack(f.Close())
}
