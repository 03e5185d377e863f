package gonudg

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// NumModes returns the dimension of the degree N polynomial space on a
// simplex of dimension dim.
func NumModes(dim, N int) int {
	switch dim {
	case 0:
		return 1
	case 1:
		return N + 1
	case 2:
		return (N + 1) * (N + 2) / 2
	case 3:
		return (N + 1) * (N + 2) * (N + 3) / 6
	}
	panic("gonudg: unsupported dimension")
}

// Vandermonde1D initializes the 1D Vandermonde matrix V_{ij} = phi_j(r_i)
func Vandermonde1D(N int, r []float64) *mat.Dense {
	V := mat.NewDense(len(r), N+1, nil)
	for j := 0; j <= N; j++ {
		V.SetCol(j, JacobiP(r, 0, 0, j))
	}
	return V
}

// GradVandermonde1D returns (Vr)_{ij} = dphi_j/dr at point i
func GradVandermonde1D(N int, r []float64) *mat.Dense {
	Vr := mat.NewDense(len(r), N+1, nil)
	for j := 0; j <= N; j++ {
		Vr.SetCol(j, GradJacobiP(r, 0, 0, j))
	}
	return Vr
}

// Vandermonde2D initializes the 2D Vandermonde matrix on the triangle
func Vandermonde2D(N int, r, s []float64) *mat.Dense {
	V := mat.NewDense(len(r), NumModes(2, N), nil)
	sk := 0
	for i := 0; i <= N; i++ {
		for j := 0; j <= N-i; j++ {
			V.SetCol(sk, Simplex2DP(r, s, i, j))
			sk++
		}
	}
	return V
}

// GradVandermonde2D returns the r and s derivatives of the 2D modes
func GradVandermonde2D(N int, r, s []float64) (Vr, Vs *mat.Dense) {
	Vr = mat.NewDense(len(r), NumModes(2, N), nil)
	Vs = mat.NewDense(len(r), NumModes(2, N), nil)
	sk := 0
	for i := 0; i <= N; i++ {
		for j := 0; j <= N-i; j++ {
			dr, ds := GradSimplex2DP(r, s, i, j)
			Vr.SetCol(sk, dr)
			Vs.SetCol(sk, ds)
			sk++
		}
	}
	return
}

// Vandermonde3D initializes the 3D Vandermonde matrix V_{ij} = phi_j(r_i, s_i, t_i)
func Vandermonde3D(N int, r, s, t []float64) *mat.Dense {
	V := mat.NewDense(len(r), NumModes(3, N), nil)
	sk := 0
	for i := 0; i <= N; i++ {
		for j := 0; j <= N-i; j++ {
			for k := 0; k <= N-i-j; k++ {
				V.SetCol(sk, Simplex3DP(r, s, t, i, j, k))
				sk++
			}
		}
	}
	return V
}

// GradVandermonde3D builds the gradient Vandermonde matrices
// Returns Vr, Vs, Vt where (Vr)_{ij} = dphi_j/dr at point i
func GradVandermonde3D(N int, r, s, t []float64) (Vr, Vs, Vt *mat.Dense) {
	Ncol := NumModes(3, N)
	Vr = mat.NewDense(len(r), Ncol, nil)
	Vs = mat.NewDense(len(r), Ncol, nil)
	Vt = mat.NewDense(len(r), Ncol, nil)
	sk := 0
	for i := 0; i <= N; i++ {
		for j := 0; j <= N-i; j++ {
			for k := 0; k <= N-i-j; k++ {
				dr, ds, dt := GradSimplex3DP(r, s, t, i, j, k)
				Vr.SetCol(sk, dr)
				Vs.SetCol(sk, ds)
				Vt.SetCol(sk, dt)
				sk++
			}
		}
	}
	return
}

// RStoAB converts from (r,s) to the collapsed (a,b) coordinates
func RStoAB(R, S []float64) (a, b []float64) {
	Np := len(R)
	a = make([]float64, Np)
	b = make([]float64, Np)
	for n := 0; n < Np; n++ {
		if S[n] != 1 {
			a[n] = 2*(1+R[n])/(1-S[n]) - 1
		} else {
			a[n] = -1
		}
		b[n] = S[n]
	}
	return
}

// RSTtoABC converts from (r,s,t) to the collapsed (a,b,c) coordinates
func RSTtoABC(R, S, T []float64) (a, b, c []float64) {
	Np := len(R)
	a = make([]float64, Np)
	b = make([]float64, Np)
	c = make([]float64, Np)
	for n := 0; n < Np; n++ {
		if S[n]+T[n] != 0 {
			a[n] = 2*(1+R[n])/(-S[n]-T[n]) - 1
		} else {
			a[n] = -1
		}
		if T[n] != 1 {
			b[n] = 2*(1+S[n])/(1-T[n]) - 1
		} else {
			b[n] = -1
		}
		c[n] = T[n]
	}
	return
}

// Simplex2DP evaluates the 2D orthonormal polynomial of order (i,j) on the
// triangle at (R,S)
func Simplex2DP(R, S []float64, i, j int) []float64 {
	a, b := RStoAB(R, S)
	h1 := JacobiP(a, 0, 0, i)
	h2 := JacobiP(b, float64(2*i+1), 0, j)
	P := make([]float64, len(R))
	for n := range P {
		P[n] = math.Sqrt2 * h1[n] * h2[n] * pow(1-b[n], i)
	}
	return P
}

// GradSimplex2DP returns the (r,s) derivatives of Simplex2DP
func GradSimplex2DP(R, S []float64, id, jd int) (dr, ds []float64) {
	a, b := RStoAB(R, S)
	fa := JacobiP(a, 0, 0, id)
	dfa := GradJacobiP(a, 0, 0, id)
	gb := JacobiP(b, float64(2*id+1), 0, jd)
	dgb := GradJacobiP(b, float64(2*id+1), 0, jd)

	Np := len(R)
	dr = make([]float64, Np)
	ds = make([]float64, Np)
	scale := math.Pow(2, float64(id)+0.5)
	for n := 0; n < Np; n++ {
		hb := 0.5 * (1 - b[n])
		r := dfa[n] * gb[n]
		if id > 0 {
			r *= pow(hb, id-1)
		}
		s := r * 0.5 * (1 + a[n])
		tmp := dgb[n] * pow(hb, id)
		if id > 0 {
			tmp -= 0.5 * float64(id) * gb[n] * pow(hb, id-1)
		}
		s += fa[n] * tmp
		dr[n] = r * scale
		ds[n] = s * scale
	}
	return
}

// Simplex3DP evaluates the 3D orthonormal polynomial of order (i,j,k) on the
// tetrahedron at (R,S,T)
func Simplex3DP(R, S, T []float64, i, j, k int) []float64 {
	a, b, c := RSTtoABC(R, S, T)
	h1 := JacobiP(a, 0, 0, i)
	h2 := JacobiP(b, float64(2*i+1), 0, j)
	h3 := JacobiP(c, float64(2*(i+j)+2), 0, k)
	P := make([]float64, len(R))
	for n := range P {
		P[n] = 2 * math.Sqrt2 * h1[n] * h2[n] * pow(1-b[n], i) * h3[n] * pow(1-c[n], i+j)
	}
	return P
}

// GradSimplex3DP returns the (r,s,t) derivatives of Simplex3DP
func GradSimplex3DP(R, S, T []float64, id, jd, kd int) (dr, ds, dt []float64) {
	a, b, c := RSTtoABC(R, S, T)
	fa := JacobiP(a, 0, 0, id)
	dfa := GradJacobiP(a, 0, 0, id)
	gb := JacobiP(b, float64(2*id+1), 0, jd)
	dgb := GradJacobiP(b, float64(2*id+1), 0, jd)
	hc := JacobiP(c, float64(2*(id+jd)+2), 0, kd)
	dhc := GradJacobiP(c, float64(2*(id+jd)+2), 0, kd)

	Np := len(R)
	dr = make([]float64, Np)
	ds = make([]float64, Np)
	dt = make([]float64, Np)
	scale := math.Pow(2, float64(2*id+jd)+1.5)
	for n := 0; n < Np; n++ {
		hb, hc2 := 0.5*(1-b[n]), 0.5*(1-c[n])

		vr := dfa[n] * gb[n] * hc[n]
		if id > 0 {
			vr *= pow(hb, id-1)
		}
		if id+jd > 0 {
			vr *= pow(hc2, id+jd-1)
		}

		vs := 0.5 * (1 + a[n]) * vr
		tmp := dgb[n] * pow(hb, id)
		if id > 0 {
			tmp += -0.5 * float64(id) * gb[n] * pow(hb, id-1)
		}
		if id+jd > 0 {
			tmp *= pow(hc2, id+jd-1)
		}
		tmp = fa[n] * tmp * hc[n]
		vs += tmp

		vt := 0.5*(1+a[n])*vr + 0.5*(1+b[n])*tmp
		tmp = dhc[n] * pow(hc2, id+jd)
		if id+jd > 0 {
			tmp -= 0.5 * float64(id+jd) * hc[n] * pow(hc2, id+jd-1)
		}
		tmp = fa[n] * gb[n] * tmp * pow(hb, id)
		vt += tmp

		dr[n] = vr * scale
		ds[n] = vs * scale
		dt[n] = vt * scale
	}
	return
}

// pow computes x^n for integer n >= 0
func pow(x float64, n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= x
	}
	return result
}
