package law

import (
	"math"

	"github.com/notargets/DGSolver/cache"
	"gonum.org/v1/gonum/mat"
)

// Constant repeats vals at every point.
func Constant(name string, vals ...float64) cache.Function { return cache.Constant(name, vals...) }

// Pointwise evaluates fn at each bound coordinate.
func Pointwise(name string, cols int, fn func(x [3]float64, out []float64)) cache.Function {
	return cache.NewFunc(name, cols, []cache.Dependency{cache.OnToken(cache.Coordinates)},
		func(ev cache.Eval, out *mat.Dense) error {
			X := ev.Input(0)
			row := make([]float64, cols)
			for q := 0; q < ev.NumPoints(); q++ {
				for i := range row {
					row[i] = 0
				}
				fn(coordinate(X, q), row)
				out.SetRow(q, row)
			}
			return nil
		})
}

// Transient evaluates fn at each bound coordinate and the bound time.
func Transient(name string, cols int, fn func(x [3]float64, t float64, out []float64)) cache.Function {
	deps := []cache.Dependency{cache.OnToken(cache.Coordinates), cache.OnToken(cache.Time)}
	return cache.NewFunc(name, cols, deps, func(ev cache.Eval, out *mat.Dense) error {
		X, t := ev.Input(0), ev.Input(1).At(0, 0)
		row := make([]float64, cols)
		for q := 0; q < ev.NumPoints(); q++ {
			for i := range row {
				row[i] = 0
			}
			fn(coordinate(X, q), t, row)
			out.SetRow(q, row)
		}
		return nil
	})
}

func coordinate(X *mat.Dense, q int) [3]float64 {
	var x [3]float64
	copy(x[:], X.RawRowView(q))
	return x
}

// GaussianValue is a·exp(-|x-c|²/(2w²)).
func GaussianValue(x, center [3]float64, width, amplitude float64) float64 {
	var r2 float64
	for d := 0; d < 3; d++ {
		r2 += (x[d] - center[d]) * (x[d] - center[d])
	}
	return amplitude * math.Exp(-r2/(2*width*width))
}

// Gaussian is a scalar pulse of the given width and amplitude.
func Gaussian(name string, center [3]float64, width, amplitude float64) cache.Function {
	return Pointwise(name, 1, func(x [3]float64, out []float64) {
		out[0] = GaussianValue(x, center, width, amplitude)
	})
}
