package mesh

import (
	"fmt"
	"math"

	"github.com/notargets/DGSolver/element"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
)

// boxTagger classifies boundary faces by the side of the bounding box they
// lie on.
func boxTagger(dim int, lo, hi [3]float64, names [3][2]string) func([3]float64) string {
	return func(c [3]float64) string {
		for d := 0; d < dim; d++ {
			tol := 1e-10 * math.Max(1, hi[d]-lo[d])
			if math.Abs(c[d]-lo[d]) < tol {
				return names[d][0]
			}
			if math.Abs(c[d]-hi[d]) < tol {
				return names[d][1]
			}
		}
		return DefaultBoundaryTag
	}
}

// NewLine returns n uniform segments on [x0,x1] with boundary tags "left"
// and "right".
func NewLine(n int, x0, x1 float64) (*Mesh, error) {
	if n < 1 || x1 <= x0 {
		return nil, fmt.Errorf("%w: line with %d cells on [%g,%g]", ErrBadMesh, n, x0, x1)
	}
	m := &Mesh{Dim: 1}
	for i := 0; i <= n; i++ {
		m.Vertices = append(m.Vertices, [3]float64{x0 + (x1-x0)*float64(i)/float64(n)})
	}
	for i := 0; i < n; i++ {
		m.Elements = append(m.Elements, Element{Type: element.Line, Vertices: []int{i, i + 1}, Partition: -1})
	}
	err := m.TagBoundaries(boxTagger(1, [3]float64{x0}, [3]float64{x1},
		[3][2]string{{"left", "right"}}))
	return m, err
}

// NewRectangle returns a structured triangulation of [x0,x1]x[y0,y1] with two
// triangles per cell and boundary tags "left", "right", "bottom" and "top".
func NewRectangle(nx, ny int, x0, x1, y0, y1 float64) (*Mesh, error) {
	if nx < 1 || ny < 1 || x1 <= x0 || y1 <= y0 {
		return nil, fmt.Errorf("%w: rectangle %dx%d", ErrBadMesh, nx, ny)
	}
	m := &Mesh{Dim: 2}
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			m.Vertices = append(m.Vertices, [3]float64{
				x0 + (x1-x0)*float64(i)/float64(nx),
				y0 + (y1-y0)*float64(j)/float64(ny),
			})
		}
	}
	v := func(i, j int) int { return j*(nx+1) + i }
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			a, b, c, d := v(i, j), v(i+1, j), v(i+1, j+1), v(i, j+1)
			m.Elements = append(m.Elements,
				Element{Type: element.Tri, Vertices: []int{a, b, c}, Partition: -1},
				Element{Type: element.Tri, Vertices: []int{a, c, d}, Partition: -1})
		}
	}
	err := m.TagBoundaries(boxTagger(2, [3]float64{x0, y0}, [3]float64{x1, y1},
		[3][2]string{{"left", "right"}, {"bottom", "top"}}))
	return m, err
}

// NewBox returns a structured tetrahedral mesh of the box [lo,hi] with six
// tetrahedra per cell and boundary tags "xmin", "xmax", "ymin", "ymax",
// "zmin" and "zmax".
func NewBox(nx, ny, nz int, lo, hi [3]float64) (*Mesh, error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("%w: box %dx%dx%d", ErrBadMesh, nx, ny, nz)
	}
	m := &Mesh{Dim: 3}
	n := [3]int{nx, ny, nz}
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				idx := [3]int{i, j, k}
				var x [3]float64
				for d := 0; d < 3; d++ {
					x[d] = lo[d] + (hi[d]-lo[d])*float64(idx[d])/float64(n[d])
				}
				m.Vertices = append(m.Vertices, x)
			}
		}
	}
	v := func(i, j, k int) int { return (k*(ny+1)+j)*(nx+1) + i }
	// Kuhn subdivision: each tetrahedron follows a monotone path from corner
	// 0 to corner 7, one axis at a time.
	axes := element.Permutations(3)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				for _, p := range axes {
					corner := [3]int{i, j, k}
					verts := []int{v(i, j, k)}
					for _, a := range p {
						corner[a]++
						verts = append(verts, v(corner[0], corner[1], corner[2]))
					}
					m.Elements = append(m.Elements, Element{Type: element.Tet, Vertices: verts, Partition: -1})
				}
			}
		}
	}
	m.Orient()
	err := m.TagBoundaries(boxTagger(3, lo, hi,
		[3][2]string{{"xmin", "xmax"}, {"ymin", "ymax"}, {"zmin", "zmax"}}))
	return m, err
}

// ReadFile loads a simplex mesh (gambit neutral or gmsh) through the gocfd
// readers. All boundary faces receive DefaultBoundaryTag; use TagBoundaries
// to classify them.
func ReadFile(path string) (*Mesh, error) {
	msh, err := readers.ReadMeshFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mesh %s: %w", path, err)
	}
	m := &Mesh{Vertices: make([][3]float64, len(msh.Vertices))}
	flatZ := true
	for i, v := range msh.Vertices {
		m.Vertices[i] = [3]float64{v[0], v[1], v[2]}
		if v[2] != 0 {
			flatZ = false
		}
	}
	for k, ev := range msh.EtoV {
		var g element.ElementGeometry
		switch {
		case len(ev) == 4 && !flatZ:
			g = element.Tet
		case len(ev) == 3:
			g = element.Tri
		case len(ev) == 2:
			g = element.Line
		default:
			return nil, fmt.Errorf("%w: element %d with %d vertices", element.ErrUnsupportedElement, k, len(ev))
		}
		if k == 0 {
			m.Dim = int(g.Dimensions())
		}
		m.Elements = append(m.Elements, Element{Type: g, Vertices: append([]int(nil), ev...), Partition: -1})
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("reading mesh %s: %w", path, err)
	}
	m.Orient()
	return m, nil
}
