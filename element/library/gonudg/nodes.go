package gonudg

// EquiNodes1D returns the N+1 equispaced nodes on [-1,1]. Order 0 gives the
// midpoint.
func EquiNodes1D(N int) (r []float64) {
	if N == 0 {
		return []float64{0}
	}
	r = make([]float64, N+1)
	for i := range r {
		r[i] = -1 + 2*float64(i)/float64(N)
	}
	return
}

// EquiNodes2D returns the equispaced nodes of the reference triangle with
// vertices (-1,-1), (1,-1), (-1,1). Order 0 gives the centroid.
func EquiNodes2D(N int) (r, s []float64) {
	if N == 0 {
		return []float64{-1. / 3}, []float64{-1. / 3}
	}
	for j := 0; j <= N; j++ {
		for i := 0; i <= N-j; i++ {
			r = append(r, -1+2*float64(i)/float64(N))
			s = append(s, -1+2*float64(j)/float64(N))
		}
	}
	return
}

// EquiNodes3D returns the equispaced nodes of the reference tetrahedron with
// vertices (-1,-1,-1), (1,-1,-1), (-1,1,-1), (-1,-1,1). Order 0 gives the
// centroid.
func EquiNodes3D(N int) (r, s, t []float64) {
	if N == 0 {
		return []float64{-0.5}, []float64{-0.5}, []float64{-0.5}
	}
	for k := 0; k <= N; k++ {
		for j := 0; j <= N-k; j++ {
			for i := 0; i <= N-j-k; i++ {
				r = append(r, -1+2*float64(i)/float64(N))
				s = append(s, -1+2*float64(j)/float64(N))
				t = append(t, -1+2*float64(k)/float64(N))
			}
		}
	}
	return
}
