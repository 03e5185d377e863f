package element

import (
	"fmt"
	"math"
	"sync"

	"github.com/notargets/DGSolver/element/library/gonudg"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mat"
)

// ElementProperties contains metadata describing a reference element
type ElementProperties struct {
	Name          string          // e.g. "Lagrange Triangle Order 2"
	ShortName     string          // e.g. "Tri2"
	Type          ElementGeometry // Element shape
	Order         int             // Polynomial order
	Np            int             // Nodes per element
	NFp           int             // Nodes per face
	NFaces        int             // Faces per element
	NOrientations int             // Vertex permutations per face
	Dimensions    Dimensionality
}

// ReferenceGeometry defines the layout of nodes in reference space [-1,1]^d
type ReferenceGeometry struct {
	R, S, T []float64 // Length Np each, unused directions are zero

	VertexPoints []int   // Nodes located at vertices
	FacePoints   [][]int // [face][face-local node] element node index
}

// NodalModalMatrices contains transformations between the nodal and
// orthonormal modal representations
type NodalModalMatrices struct {
	V    *mat.Dense // modal to nodal [Np × Np]
	Vinv *mat.Dense // nodal to modal [Np × Np]
	M    *mat.Dense // reference mass matrix [Np × Np]
	Minv *mat.Dense
}

// Rule is an integration rule on a reference element.
type Rule struct {
	Points  [][3]float64
	Weights []float64
}

func (r *Rule) Len() int { return len(r.Weights) }

// NewRule returns a collapsed Gauss rule with n points per direction. It
// integrates polynomials of degree 2n-1 exactly.
func NewRule(g ElementGeometry, n int) (*Rule, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d points", ErrUnsupportedOrder, n)
	}
	if g == Point {
		return &Rule{Points: [][3]float64{{}}, Weights: []float64{1}}, nil
	}
	xa, wa := make([]float64, n), make([]float64, n)
	quad.Legendre{}.FixedLocations(xa, wa, -1, 1)
	rule := &Rule{}
	switch g {
	case Line:
		for i := range xa {
			rule.Points = append(rule.Points, [3]float64{xa[i]})
			rule.Weights = append(rule.Weights, wa[i])
		}
	case Tri:
		xb, wb := gonudg.JacobiGQ(1, 0, n-1)
		for j := range xb {
			for i := range xa {
				r := (1+xa[i])*(1-xb[j])/2 - 1
				rule.Points = append(rule.Points, [3]float64{r, xb[j]})
				rule.Weights = append(rule.Weights, wa[i]*wb[j]/2)
			}
		}
	case Tet:
		xb, wb := gonudg.JacobiGQ(1, 0, n-1)
		xc, wc := gonudg.JacobiGQ(2, 0, n-1)
		for k := range xc {
			for j := range xb {
				for i := range xa {
					r := (1+xa[i])*(1-xb[j])*(1-xc[k])/4 - 1
					s := (1+xb[j])*(1-xc[k])/2 - 1
					rule.Points = append(rule.Points, [3]float64{r, s, xc[k]})
					rule.Weights = append(rule.Weights, wa[i]*wb[j]*wc[k]/8)
				}
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedElement, g)
	}
	return rule, nil
}

// Closure is the restriction of the element basis to one face seen with one
// vertex permutation. Face quadrature point q sits at Points[q] in the
// element's parametric coordinates.
type Closure struct {
	Face, Orientation int
	Permutation       []int
	// Nodes maps face-local nodes to element nodes (order >= 1).
	Nodes          []int
	Points         [][3]float64
	Collocation    *mat.Dense    // nqF × Np
	Gradient       [3]*mat.Dense // nqF × Np, parametric derivatives
	Redistribution *mat.Dense    // Np × nqF, weight × basis
}

// Reference holds everything about a reference element that does not depend
// on the mesh.
type Reference struct {
	Properties ElementProperties
	Geometry   ReferenceGeometry
	NodalModal NodalModalMatrices
	Rule       *Rule
	FaceRule   *Rule
	Closures   []*Closure
	perms      [][]int
}

var (
	refMu    sync.Mutex
	refCache = map[[2]int]*Reference{}
)

// Lookup returns the shared reference element for a geometry and order.
func Lookup(g ElementGeometry, order int) (*Reference, error) {
	refMu.Lock()
	defer refMu.Unlock()
	key := [2]int{int(g), order}
	if r, ok := refCache[key]; ok {
		return r, nil
	}
	r, err := NewReference(g, order)
	if err != nil {
		return nil, err
	}
	refCache[key] = r
	return r, nil
}

// NewReference builds the nodes, basis, integration rules and closure table
// of a Lagrange simplex of the given order.
func NewReference(g ElementGeometry, order int) (*Reference, error) {
	if !g.Supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedElement, g)
	}
	if order < 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedOrder, order)
	}
	ref := &Reference{}

	var R, S, T []float64
	switch g {
	case Point:
		R = []float64{0}
	case Line:
		R = gonudg.EquiNodes1D(order)
	case Tri:
		R, S = gonudg.EquiNodes2D(order)
	case Tet:
		R, S, T = gonudg.EquiNodes3D(order)
	}
	Np := len(R)
	if S == nil {
		S = make([]float64, Np)
	}
	if T == nil {
		T = make([]float64, Np)
	}
	ref.Geometry = ReferenceGeometry{R: R, S: S, T: T}

	V := modes(R, S, T, g, order)
	var Vinv mat.Dense
	if err := Vinv.Inverse(V); err != nil {
		return nil, fmt.Errorf("reference %s order %d: %w", g, order, err)
	}
	// modes are orthonormal, so M = Vinv^T Vinv and Minv = V V^T
	var M, Minv mat.Dense
	M.Mul(Vinv.T(), &Vinv)
	Minv.Mul(V, V.T())
	ref.NodalModal = NodalModalMatrices{V: V, Vinv: &Vinv, M: &M, Minv: &Minv}

	var err error
	if ref.Rule, err = NewRule(g, order+2); err != nil {
		return nil, err
	}
	if ref.FaceRule, err = NewRule(g.FaceGeometry(), order+2); err != nil {
		return nil, err
	}

	nfv := 0
	if g != Point {
		nfv = len(g.Faces()[0])
	}
	ref.perms = Permutations(nfv)
	ref.Properties = ElementProperties{
		Name:          fmt.Sprintf("Lagrange %s Order %d", g, order),
		ShortName:     fmt.Sprintf("%s%d", g, order),
		Type:          g,
		Order:         order,
		Np:            Np,
		NFaces:        g.NumFaces(),
		NOrientations: len(ref.perms),
		Dimensions:    g.Dimensions(),
	}

	for _, xv := range g.Vertices() {
		if i, ok := ref.findNode(xv); ok && g != Point {
			ref.Geometry.VertexPoints = append(ref.Geometry.VertexPoints, i)
		}
	}
	if err := ref.buildClosures(); err != nil {
		return nil, err
	}
	for f := 0; f < g.NumFaces(); f++ {
		ref.Geometry.FacePoints = append(ref.Geometry.FacePoints, ref.Closures[ref.ClosureKey(f, 0)].Nodes)
	}
	if len(ref.Geometry.FacePoints) > 0 {
		ref.Properties.NFp = len(ref.Geometry.FacePoints[0])
	}
	return ref, nil
}

func modes(R, S, T []float64, g ElementGeometry, order int) *mat.Dense {
	switch g {
	case Line:
		return gonudg.Vandermonde1D(order, R)
	case Tri:
		return gonudg.Vandermonde2D(order, R, S)
	case Tet:
		return gonudg.Vandermonde3D(order, R, S, T)
	}
	return mat.NewDense(len(R), 1, ones(len(R)))
}

func (ref *Reference) Np() int               { return ref.Properties.Np }
func (ref *Reference) Order() int            { return ref.Properties.Order }
func (ref *Reference) Type() ElementGeometry { return ref.Properties.Type }
func (ref *Reference) NumOrientations() int  { return len(ref.perms) }
func (ref *Reference) ClosureKey(face, orientation int) int {
	return face*len(ref.perms) + orientation
}

// Nodes returns the reference node coordinates.
func (ref *Reference) Nodes() [][3]float64 {
	pts := make([][3]float64, ref.Np())
	for i := range pts {
		pts[i] = [3]float64{ref.Geometry.R[i], ref.Geometry.S[i], ref.Geometry.T[i]}
	}
	return pts
}

func splitPoints(pts [][3]float64) (r, s, t []float64) {
	r, s, t = make([]float64, len(pts)), make([]float64, len(pts)), make([]float64, len(pts))
	for i, p := range pts {
		r[i], s[i], t[i] = p[0], p[1], p[2]
	}
	return
}

// Basis evaluates the nodal basis at pts: a len(pts) × Np matrix.
func (ref *Reference) Basis(pts [][3]float64) *mat.Dense {
	r, s, t := splitPoints(pts)
	var B mat.Dense
	B.Mul(modes(r, s, t, ref.Type(), ref.Order()), ref.NodalModal.Vinv)
	return &B
}

// BasisGradient evaluates the parametric derivatives of the nodal basis at
// pts. Directions beyond the element dimension are zero.
func (ref *Reference) BasisGradient(pts [][3]float64) [3]*mat.Dense {
	r, s, t := splitPoints(pts)
	N := ref.Order()
	var modal [3]*mat.Dense
	switch ref.Type() {
	case Line:
		modal[0] = gonudg.GradVandermonde1D(N, r)
	case Tri:
		modal[0], modal[1] = gonudg.GradVandermonde2D(N, r, s)
	case Tet:
		modal[0], modal[1], modal[2] = gonudg.GradVandermonde3D(N, r, s, t)
	}
	var grad [3]*mat.Dense
	for d := 0; d < 3; d++ {
		if modal[d] == nil {
			grad[d] = mat.NewDense(len(pts), ref.Np(), nil)
			continue
		}
		grad[d] = &mat.Dense{}
		grad[d].Mul(modal[d], ref.NodalModal.Vinv)
	}
	return grad
}

// Closure returns the closure stored under key.
func (ref *Reference) Closure(key int) *Closure { return ref.Closures[key] }

// Orientation finds the vertex permutation p of a face such that
// faceVerts[p[k]] == target[k] for every k.
func (ref *Reference) Orientation(faceVerts, target []int) (int, bool) {
	for o, p := range ref.perms {
		match := len(p) == len(target)
		for k := 0; match && k < len(p); k++ {
			match = faceVerts[p[k]] == target[k]
		}
		if match {
			return o, true
		}
	}
	return 0, false
}

func (ref *Reference) findNode(x [3]float64) (int, bool) {
	for i := 0; i < ref.Np(); i++ {
		d := math.Abs(ref.Geometry.R[i]-x[0]) + math.Abs(ref.Geometry.S[i]-x[1]) + math.Abs(ref.Geometry.T[i]-x[2])
		if d < 1e-10 {
			return i, true
		}
	}
	return 0, false
}

func (ref *Reference) buildClosures() error {
	g := ref.Type()
	if g == Point {
		return nil
	}
	fg := g.FaceGeometry()
	verts := g.Vertices()

	var faceNodes [][3]float64
	if ref.Order() > 0 {
		var fr, fs []float64
		switch fg {
		case Point:
			fr = []float64{0}
		case Line:
			fr = gonudg.EquiNodes1D(ref.Order())
		case Tri:
			fr, fs = gonudg.EquiNodes2D(ref.Order())
		}
		for i := range fr {
			var p [3]float64
			p[0] = fr[i]
			if fs != nil {
				p[1] = fs[i]
			}
			faceNodes = append(faceNodes, p)
		}
	}

	for f, face := range g.Faces() {
		for o, perm := range ref.perms {
			toElement := func(eta [3]float64) [3]float64 {
				var xi [3]float64
				for k, l := range fg.VertexShape(eta) {
					v := verts[face[perm[k]]]
					xi[0] += l * v[0]
					xi[1] += l * v[1]
					xi[2] += l * v[2]
				}
				return xi
			}
			c := &Closure{Face: f, Orientation: o, Permutation: perm}
			for _, eta := range ref.FaceRule.Points {
				c.Points = append(c.Points, toElement(eta))
			}
			for _, eta := range faceNodes {
				i, ok := ref.findNode(toElement(eta))
				if !ok {
					return fmt.Errorf("closure face %d orientation %d: face node %v is not an element node", f, o, eta)
				}
				c.Nodes = append(c.Nodes, i)
			}
			c.Collocation = ref.Basis(c.Points)
			c.Gradient = ref.BasisGradient(c.Points)
			c.Redistribution = Redistribution(c.Collocation, ref.FaceRule.Weights)
			ref.Closures = append(ref.Closures, c)
		}
	}
	return nil
}

// Redistribution returns (w_q B_qi)^T, the matrix that projects point values
// weighted by the rule onto the basis.
func Redistribution(B *mat.Dense, w []float64) *mat.Dense {
	nq, np := B.Dims()
	R := mat.NewDense(np, nq, nil)
	for q := 0; q < nq; q++ {
		for i := 0; i < np; i++ {
			R.Set(i, q, w[q]*B.At(q, i))
		}
	}
	return R
}

func ones(n int) []float64 {
	o := make([]float64, n)
	for i := range o {
		o[i] = 1
	}
	return o
}
