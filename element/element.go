package element

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnsupportedElement = errors.New("element: unsupported geometry")
	ErrUnsupportedOrder   = errors.New("element: unsupported order")
)

// Dimensionality represents the spatial dimension of an element
type Dimensionality uint8

const (
	D0 Dimensionality = iota // points
	D1                       // lines
	D2                       // triangles
	D3                       // tetrahedra
)

// ElementGeometry identifies the shape of an element
type ElementGeometry uint8

const (
	Tet ElementGeometry = iota
	Hex
	Prism
	Pyramid
	Tri
	Rectangle
	Line
	Point
)

func (g ElementGeometry) String() string {
	switch g {
	case Tet:
		return "Tet"
	case Hex:
		return "Hex"
	case Prism:
		return "Prism"
	case Pyramid:
		return "Pyramid"
	case Tri:
		return "Tri"
	case Rectangle:
		return "Rectangle"
	case Line:
		return "Line"
	case Point:
		return "Point"
	}
	return fmt.Sprintf("ElementGeometry(%d)", g)
}

// Supported reports whether reference data can be built for g.
func (g ElementGeometry) Supported() bool {
	return g == Tet || g == Tri || g == Line || g == Point
}

func (g ElementGeometry) Dimensions() Dimensionality {
	switch g {
	case Tet, Hex, Prism, Pyramid:
		return D3
	case Tri, Rectangle:
		return D2
	case Line:
		return D1
	}
	return D0
}

// FaceGeometry is the geometry of the faces of g.
func (g ElementGeometry) FaceGeometry() ElementGeometry {
	switch g {
	case Tet:
		return Tri
	case Tri:
		return Line
	}
	return Point
}

// SimplexFor returns the simplex geometry of a dimension.
func SimplexFor(dim int) (ElementGeometry, error) {
	switch dim {
	case 0:
		return Point, nil
	case 1:
		return Line, nil
	case 2:
		return Tri, nil
	case 3:
		return Tet, nil
	}
	return 0, fmt.Errorf("%w: dimension %d", ErrUnsupportedElement, dim)
}

var (
	pointVertices = [][3]float64{{0, 0, 0}}
	lineVertices  = [][3]float64{{-1, 0, 0}, {1, 0, 0}}
	triVertices   = [][3]float64{{-1, -1, 0}, {1, -1, 0}, {-1, 1, 0}}
	tetVertices   = [][3]float64{{-1, -1, -1}, {1, -1, -1}, {-1, 1, -1}, {-1, -1, 1}}

	lineFaces = [][]int{{0}, {1}}
	triFaces  = [][]int{{0, 1}, {1, 2}, {2, 0}}
	tetFaces  = [][]int{{0, 1, 2}, {0, 1, 3}, {1, 2, 3}, {0, 2, 3}}
)

// Vertices returns the reference vertex coordinates of g.
func (g ElementGeometry) Vertices() [][3]float64 {
	switch g {
	case Tet:
		return tetVertices
	case Tri:
		return triVertices
	case Line:
		return lineVertices
	}
	return pointVertices
}

// Faces returns, per face, the element vertices spanning it.
func (g ElementGeometry) Faces() [][]int {
	switch g {
	case Tet:
		return tetFaces
	case Tri:
		return triFaces
	case Line:
		return lineFaces
	}
	return nil
}

func (g ElementGeometry) NumVertices() int { return len(g.Vertices()) }
func (g ElementGeometry) NumFaces() int    { return len(g.Faces()) }

// VertexShape evaluates the linear vertex shape functions of g at xi.
func (g ElementGeometry) VertexShape(xi [3]float64) []float64 {
	r, s, t := xi[0], xi[1], xi[2]
	switch g {
	case Tet:
		return []float64{-(1 + r + s + t) / 2, (1 + r) / 2, (1 + s) / 2, (1 + t) / 2}
	case Tri:
		return []float64{-(r + s) / 2, (1 + r) / 2, (1 + s) / 2}
	case Line:
		return []float64{(1 - r) / 2, (1 + r) / 2}
	}
	return []float64{1}
}

// VertexShapeGradient returns the constant parametric gradients of the
// vertex shape functions.
func (g ElementGeometry) VertexShapeGradient() [][3]float64 {
	switch g {
	case Tet:
		return [][3]float64{{-.5, -.5, -.5}, {.5, 0, 0}, {0, .5, 0}, {0, 0, .5}}
	case Tri:
		return [][3]float64{{-.5, -.5, 0}, {.5, 0, 0}, {0, .5, 0}}
	case Line:
		return [][3]float64{{-.5, 0, 0}, {.5, 0, 0}}
	}
	return [][3]float64{{0, 0, 0}}
}

// FaceNormal returns the unit outward normal of face f in parametric space.
func (g ElementGeometry) FaceNormal(f int) [3]float64 {
	verts := g.Vertices()
	face := g.Faces()[f]
	opp := oppositeVertex(g, face)
	var n [3]float64
	p0 := verts[face[0]]
	switch g.Dimensions() {
	case D1:
		n[0] = p0[0] - verts[opp][0]
	case D2:
		p1 := verts[face[1]]
		n = [3]float64{p1[1] - p0[1], -(p1[0] - p0[0]), 0}
	case D3:
		n = cross(sub(verts[face[1]], p0), sub(verts[face[2]], p0))
	}
	if dot(n, sub(verts[opp], p0)) > 0 {
		n = scale(-1, n)
	}
	return scale(1/norm(n), n)
}

func oppositeVertex(g ElementGeometry, face []int) int {
	for v := 0; v < g.NumVertices(); v++ {
		found := false
		for _, fv := range face {
			if fv == v {
				found = true
			}
		}
		if !found {
			return v
		}
	}
	return 0
}

// Permutations enumerates the permutations of 0..n-1 in lexicographic order,
// the identity first.
func Permutations(n int) [][]int {
	base := make([]int, n)
	for i := range base {
		base[i] = i
	}
	var out [][]int
	var rec func(prefix, rest []int)
	rec = func(prefix, rest []int) {
		if len(rest) == 0 {
			out = append(out, append([]int(nil), prefix...))
			return
		}
		for i := range rest {
			next := append(append([]int(nil), rest[:i]...), rest[i+1:]...)
			rec(append(prefix, rest[i]), next)
		}
	}
	rec(nil, base)
	return out
}

func sub(a, b [3]float64) [3]float64 { return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func dot(a, b [3]float64) float64    { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func norm(a [3]float64) float64      { return math.Sqrt(dot(a, a)) }
func scale(c float64, a [3]float64) [3]float64 {
	return [3]float64{c * a[0], c * a[1], c * a[2]}
}
func cross(a, b [3]float64) [3]float64 {
	return [3]float64{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}
