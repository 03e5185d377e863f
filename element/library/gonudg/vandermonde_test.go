package gonudg

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// monomialValue evaluates X^i * Y^j * Z^k at a point
func monomialValue(x, y, z float64, i, j, k int) float64 {
	return pow(x, i) * pow(y, j) * pow(z, k)
}

// monomialDerivative computes the derivative of X^i * Y^j * Z^k
// with respect to X (deriv=0), Y (deriv=1), or Z (deriv=2)
func monomialDerivative(x, y, z float64, i, j, k, deriv int) float64 {
	switch deriv {
	case 0:
		if i == 0 {
			return 0.0
		}
		return float64(i) * monomialValue(x, y, z, i-1, j, k)
	case 1:
		if j == 0 {
			return 0.0
		}
		return float64(j) * monomialValue(x, y, z, i, j-1, k)
	case 2:
		if k == 0 {
			return 0.0
		}
		return float64(k) * monomialValue(x, y, z, i, j, k-1)
	default:
		panic("invalid derivative direction")
	}
}

func TestJacobiP_Orthonormal(t *testing.T) {
	x, w := JacobiGQ(0, 0, 8)
	for m := 0; m <= 6; m++ {
		for n := 0; n <= 6; n++ {
			pm := JacobiP(x, 0, 0, m)
			pn := JacobiP(x, 0, 0, n)
			var sum float64
			for q := range x {
				sum += w[q] * pm[q] * pn[q]
			}
			want := 0.0
			if m == n {
				want = 1
			}
			assert.InDelta(t, want, sum, 1e-12, "m=%d n=%d", m, n)
		}
	}
}

func TestJacobiGQ_WeightedExactness(t *testing.T) {
	// integral of (1-x) x^2 over [-1,1] is 2/3
	x, w := JacobiGQ(1, 0, 3)
	var sum float64
	for q := range x {
		sum += w[q] * x[q] * x[q]
	}
	assert.InDelta(t, 2.0/3.0, sum, 1e-13)
	assert.InDelta(t, 2.0, floats.Sum(w), 1e-13)
	assert.False(t, floats.HasNaN(x))
}

func TestJacobiGL_Endpoints(t *testing.T) {
	x := JacobiGL(0, 0, 4)
	require.Len(t, x, 5)
	assert.Equal(t, -1.0, x[0])
	assert.Equal(t, 1.0, x[4])
	assert.InDelta(t, 0.0, x[2], 1e-14)
}

func TestVandermonde2D_Interpolation(t *testing.T) {
	for N := 1; N <= 5; N++ {
		t.Run(fmt.Sprintf("N=%d", N), func(t *testing.T) {
			r, s := EquiNodes2D(N)
			V := Vandermonde2D(N, r, s)
			var Vinv mat.Dense
			require.NoError(t, Vinv.Inverse(V))
			Vr, Vs := GradVandermonde2D(N, r, s)
			var Dr, Ds mat.Dense
			Dr.Mul(Vr, &Vinv)
			Ds.Mul(Vs, &Vinv)

			for deg := 0; deg <= N; deg++ {
				for i := 0; i <= deg; i++ {
					j := deg - i
					f := make([]float64, len(r))
					for n := range r {
						f[n] = monomialValue(r[n], s[n], 0, i, j, 0)
					}
					fv := mat.NewVecDense(len(f), f)
					var dr, ds mat.VecDense
					dr.MulVec(&Dr, fv)
					ds.MulVec(&Ds, fv)
					for n := range r {
						assert.InDelta(t, monomialDerivative(r[n], s[n], 0, i, j, 0, 0), dr.AtVec(n), 1e-8)
						assert.InDelta(t, monomialDerivative(r[n], s[n], 0, i, j, 0, 1), ds.AtVec(n), 1e-8)
					}
				}
			}
		})
	}
}

func TestVandermonde3D_ExactDerivatives(t *testing.T) {
	for N := 1; N <= 4; N++ {
		t.Run(fmt.Sprintf("N=%d", N), func(t *testing.T) {
			r, s, tt := EquiNodes3D(N)
			V := Vandermonde3D(N, r, s, tt)
			var Vinv mat.Dense
			require.NoError(t, Vinv.Inverse(V))
			Vr, Vs, Vt := GradVandermonde3D(N, r, s, tt)
			D := make([]mat.Dense, 3)
			D[0].Mul(Vr, &Vinv)
			D[1].Mul(Vs, &Vinv)
			D[2].Mul(Vt, &Vinv)

			polys := []struct {
				name    string
				i, j, k int
			}{
				{"X", 1, 0, 0},
				{"Y", 0, 1, 0},
				{"Z", 0, 0, 1},
				{"xy", 1, 1, 0},
				{"xyz", 1, 1, 1},
				{"Z²", 0, 0, 2},
			}
			for _, p := range polys {
				if p.i+p.j+p.k > N {
					continue
				}
				f := make([]float64, len(r))
				for n := range r {
					f[n] = monomialValue(r[n], s[n], tt[n], p.i, p.j, p.k)
				}
				fv := mat.NewVecDense(len(f), f)
				for d := 0; d < 3; d++ {
					var df mat.VecDense
					df.MulVec(&D[d], fv)
					for n := range r {
						want := monomialDerivative(r[n], s[n], tt[n], p.i, p.j, p.k, d)
						if math.Abs(df.AtVec(n)-want) > 1e-8 {
							t.Errorf("%s d/d%d at node %d: got %g want %g", p.name, d, n, df.AtVec(n), want)
						}
					}
				}
			}
		})
	}
}

func TestNumModes(t *testing.T) {
	for N := 0; N <= 4; N++ {
		r := EquiNodes1D(N)
		r2, _ := EquiNodes2D(N)
		r3, _, _ := EquiNodes3D(N)
		assert.Equal(t, NumModes(1, N), len(r))
		assert.Equal(t, NumModes(2, N), len(r2))
		assert.Equal(t, NumModes(3, N), len(r3))
	}
}
