package group

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/DGSolver/element"
	"github.com/notargets/DGSolver/mesh"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrDegenerateElement = errors.New("group: degenerate or inverted element")
	ErrSingularMass      = errors.New("group: singular mass matrix")
	ErrUnmatchedFace     = errors.New("group: face vertices do not match")
)

// Options controls group construction
type Options struct {
	Order        int
	MaxGroupSize int     // Elements per group, 0 for no limit
	Tolerance    float64 // Relative |det J| below which an element is degenerate
}

func (o Options) tolerance() float64 {
	if o.Tolerance > 0 {
		return o.Tolerance
	}
	return 1e-12
}

// ElementGroup is a batch of elements sharing type and order, with the
// reference operators and the per-element geometric factors needed for
// assembly.
//
// Jinv[e] has one row per quadrature point and nine columns; column 3*d+x
// holds dξ_d/dx_x.
type ElementGroup struct {
	ID       int
	Ref      *element.Reference
	Elements []int // Global element ids, ascending
	Ghost    bool
	// Class is the multirate time step class, 0 is the coarsest.
	Class int

	Collocation          *mat.Dense    // nq × Np
	GradCollocation      [3]*mat.Dense // nq × Np, parametric derivatives
	FluxRedistribution   [3]*mat.Dense // Np × nq, weight × dφ/dξ_d
	SourceRedistribution *mat.Dense    // Np × nq, weight × φ

	Jinv       []*mat.Dense // [e] nq × 9
	DetJ       []*mat.Dense // [e] nq × 1
	Points     []*mat.Dense // [e] nq × 3 physical quadrature points
	NodeCoords []*mat.Dense // [e] Np × 3
	Mass       []*mat.Dense // [e] Np × Np
	MassInv    []*mat.Dense // [e] Np × Np
	Size       []float64    // [e] shortest edge
	Volume     []float64    // [e]

	position map[int]int
}

func (g *ElementGroup) Len() int                      { return len(g.Elements) }
func (g *ElementGroup) Np() int                       { return g.Ref.Np() }
func (g *ElementGroup) NumPoints() int                { return g.Ref.Rule.Len() }
func (g *ElementGroup) Dim() int                      { return int(g.Ref.Type().Dimensions()) }
func (g *ElementGroup) Type() element.ElementGeometry { return g.Ref.Type() }

// Position returns the index of a global element within the group.
func (g *ElementGroup) Position(k int) (int, bool) {
	p, ok := g.position[k]
	return p, ok
}

// MinSize is the smallest element size in the group.
func (g *ElementGroup) MinSize() float64 {
	h := math.Inf(1)
	for _, s := range g.Size {
		h = math.Min(h, s)
	}
	return h
}

// NewElementGroup precomputes reference operators and geometric factors for
// the given mesh elements, which must all share one type.
func NewElementGroup(id int, m *mesh.Mesh, elements []int, opts Options) (*ElementGroup, error) {
	if len(elements) == 0 {
		return nil, fmt.Errorf("group %d: no elements", id)
	}
	typ := m.Elements[elements[0]].Type
	ref, err := element.Lookup(typ, opts.Order)
	if err != nil {
		return nil, err
	}
	g := &ElementGroup{
		ID:       id,
		Ref:      ref,
		Elements: elements,
		position: make(map[int]int, len(elements)),
	}
	rule := ref.Rule
	g.Collocation = ref.Basis(rule.Points)
	g.GradCollocation = ref.BasisGradient(rule.Points)
	for d := 0; d < 3; d++ {
		g.FluxRedistribution[d] = element.Redistribution(g.GradCollocation[d], rule.Weights)
	}
	g.SourceRedistribution = element.Redistribution(g.Collocation, rule.Weights)

	nq, np := rule.Len(), ref.Np()
	nodes := ref.Nodes()
	for e, k := range elements {
		if m.Elements[k].Type != typ {
			return nil, fmt.Errorf("group %d: element %d is a %s, group holds %s",
				id, k, m.Elements[k].Type, typ)
		}
		g.position[k] = e
		xs := m.Coordinates(k)
		J, err := Jacobian(typ, xs)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", k, err)
		}
		det := mat.Det(J)
		size := m.ElementSize(k)
		if det <= opts.tolerance()*math.Pow(size, float64(typ.Dimensions())) {
			return nil, fmt.Errorf("%w: element %d has det J = %g", ErrDegenerateElement, k, det)
		}
		var Ji mat.Dense
		if err := Ji.Inverse(J); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrDegenerateElement, k, err)
		}
		row := make([]float64, 9)
		for d := 0; d < 3; d++ {
			for x := 0; x < 3; x++ {
				row[3*d+x] = Ji.At(d, x)
			}
		}
		jinv := mat.NewDense(nq, 9, nil)
		detJ := mat.NewDense(nq, 1, nil)
		pts := mat.NewDense(nq, 3, nil)
		for q, xi := range rule.Points {
			jinv.SetRow(q, row)
			detJ.Set(q, 0, det)
			pts.SetRow(q, MapPoint(typ, xs, xi))
		}
		nc := mat.NewDense(np, 3, nil)
		for i, xi := range nodes {
			nc.SetRow(i, MapPoint(typ, xs, xi))
		}

		M := mat.NewDense(np, np, nil)
		for q, w := range rule.Weights {
			c := w * det
			for i := 0; i < np; i++ {
				bi := g.Collocation.At(q, i)
				for j := 0; j < np; j++ {
					M.Set(i, j, M.At(i, j)+c*bi*g.Collocation.At(q, j))
				}
			}
		}
		var Minv mat.Dense
		if err := Minv.Inverse(M); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrSingularMass, k, err)
		}

		g.Jinv = append(g.Jinv, jinv)
		g.DetJ = append(g.DetJ, detJ)
		g.Points = append(g.Points, pts)
		g.NodeCoords = append(g.NodeCoords, nc)
		g.Mass = append(g.Mass, M)
		g.MassInv = append(g.MassInv, &Minv)
		g.Size = append(g.Size, size)
		g.Volume = append(g.Volume, math.Abs(m.SignedMeasure(k)))
	}
	return g, nil
}

// MapPoint maps a parametric point into the element with vertices xs.
func MapPoint(typ element.ElementGeometry, xs [][3]float64, xi [3]float64) []float64 {
	x := make([]float64, 3)
	for v, l := range typ.VertexShape(xi) {
		for d := 0; d < 3; d++ {
			x[d] += l * xs[v][d]
		}
	}
	return x
}

// Jacobian returns dx/dξ of the affine map of a simplex. Elements of lower
// dimension than 3 get unit columns orthogonal to the element completing the
// matrix, so det J is the length, area or volume scale and the sign reports
// inversion relative to the coordinate axes.
func Jacobian(typ element.ElementGeometry, xs [][3]float64) (*mat.Dense, error) {
	dim := int(typ.Dimensions())
	cols := make([][3]float64, 0, 3)
	grads := typ.VertexShapeGradient()
	for d := 0; d < dim; d++ {
		var c [3]float64
		for v, gv := range grads {
			for x := 0; x < 3; x++ {
				c[x] += gv[d] * xs[v][x]
			}
		}
		cols = append(cols, c)
	}
	var basis [][3]float64
	orthogonalize := func(c [3]float64) ([3]float64, float64) {
		for _, q := range basis {
			c = axpy(-dot(c, q), q, c)
		}
		return c, math.Sqrt(dot(c, c))
	}
	for _, c := range cols {
		c, n := orthogonalize(c)
		if n == 0 {
			return nil, ErrDegenerateElement
		}
		basis = append(basis, [3]float64{c[0] / n, c[1] / n, c[2] / n})
	}
	candidates := [][3]float64{{0, 0, 1}, {0, 1, 0}, {1, 0, 0}}
	if dim == 1 {
		candidates = [][3]float64{{0, 1, 0}, {0, 0, 1}, {1, 0, 0}}
	}
	for _, c := range candidates {
		if len(cols) == 3 {
			break
		}
		if c, n := orthogonalize(c); n > 0.1 {
			u := [3]float64{c[0] / n, c[1] / n, c[2] / n}
			cols = append(cols, u)
			basis = append(basis, u)
		}
	}
	if len(cols) != 3 {
		return nil, ErrDegenerateElement
	}
	J := mat.NewDense(3, 3, nil)
	for d, c := range cols {
		for x := 0; x < 3; x++ {
			J.Set(x, d, c[x])
		}
	}
	return J, nil
}

func dot(a, b [3]float64) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func axpy(s float64, x, y [3]float64) [3]float64 {
	return [3]float64{y[0] + s*x[0], y[1] + s*x[1], y[2] + s*x[2]}
}
