package group

import (
	"fmt"
	"math"

	"github.com/notargets/DGSolver/element"
	"github.com/notargets/DGSolver/mesh"
	"gonum.org/v1/gonum/mat"
)

// Face joins face LeftFace of element Left (a position in the left group) to
// face RightFace of element Right. Boundary faces have Right == -1.
type Face struct {
	Left, Right         int
	LeftFace, RightFace int
	// Closure keys into the reference elements of both sides
	LeftKey, RightKey int
}

// FaceGroup holds the faces between two element groups, or between one
// element group and a tagged boundary. Quadrature point q of a face is the
// same physical point seen from both sides.
type FaceGroup struct {
	ID    int
	Left  *ElementGroup
	Right *ElementGroup // nil on boundaries
	Tag   string        // boundary tag, empty for interfaces
	Faces []Face

	Weights   []float64    // face rule weights
	Normals   []*mat.Dense // [f] nqF × 3, outward from the left element
	DetJ      []*mat.Dense // [f] nqF × 1
	FaceScale []*mat.Dense // [f] nqF × 1, face measure over element volume
	Points    []*mat.Dense // [f] nqF × 3
	JinvL     []*mat.Dense // [f] nqF × 9
	JinvR     []*mat.Dense // [f] nqF × 9, nil on boundaries
}

func (fg *FaceGroup) Len() int         { return len(fg.Faces) }
func (fg *FaceGroup) NumPoints() int   { return len(fg.Weights) }
func (fg *FaceGroup) IsBoundary() bool { return fg.Right == nil }
func (fg *FaceGroup) String() string {
	if fg.IsBoundary() {
		return fmt.Sprintf("boundary %q on group %d (%d faces)", fg.Tag, fg.Left.ID, fg.Len())
	}
	return fmt.Sprintf("interface %d|%d (%d faces)", fg.Left.ID, fg.Right.ID, fg.Len())
}

// LeftClosure returns the closure of face i in the left element.
func (fg *FaceGroup) LeftClosure(i int) *element.Closure {
	return fg.Left.Ref.Closure(fg.Faces[i].LeftKey)
}

// RightClosure returns the closure of face i in the right element.
func (fg *FaceGroup) RightClosure(i int) *element.Closure {
	return fg.Right.Ref.Closure(fg.Faces[i].RightKey)
}

func newFaceGroup(id int, left, right *ElementGroup, tag string) *FaceGroup {
	return &FaceGroup{
		ID:      id,
		Left:    left,
		Right:   right,
		Tag:     tag,
		Weights: left.Ref.FaceRule.Weights,
	}
}

// add appends the face between left element position l (face lf) and right
// position r (face rf), or a boundary face when r < 0.
func (fg *FaceGroup) add(m *mesh.Mesh, l, lf, r, rf int) error {
	refL := fg.Left.Ref
	kl := fg.Left.Elements[l]
	face := Face{Left: l, Right: -1, LeftFace: lf, RightFace: -1, LeftKey: refL.ClosureKey(lf, 0)}
	vertsL := m.FaceVertices(kl, lf)
	if r >= 0 {
		kr := fg.Right.Elements[r]
		o, ok := fg.Right.Ref.Orientation(m.FaceVertices(kr, rf), vertsL)
		if !ok {
			return fmt.Errorf("%w: element %d face %d and element %d face %d", ErrUnmatchedFace, kl, lf, kr, rf)
		}
		face.Right, face.RightFace, face.RightKey = r, rf, fg.Right.Ref.ClosureKey(rf, o)
	}
	fg.Faces = append(fg.Faces, face)

	nq := fg.NumPoints()
	typ := refL.Type()
	xs := m.Coordinates(kl)
	closure := refL.Closure(face.LeftKey)

	fxs := make([][3]float64, len(vertsL))
	for i, v := range vertsL {
		fxs[i] = m.Vertices[v]
	}
	detJ := faceMeasure(fxs) / referenceFaceMeasure(typ.FaceGeometry())
	scale := faceMeasure(fxs) / fg.Left.Volume[l]
	if r >= 0 {
		scale = math.Max(scale, faceMeasure(fxs)/fg.Right.Volume[r])
	}

	nref := typ.FaceNormal(lf)
	jl := fg.Left.Jinv[l].RawRowView(0)
	var n [3]float64
	for x := 0; x < 3; x++ {
		for d := 0; d < 3; d++ {
			n[x] += jl[3*d+x] * nref[d]
		}
	}
	nn := math.Sqrt(dot(n, n))
	for x := range n {
		n[x] /= nn
	}

	normals := mat.NewDense(nq, 3, nil)
	dets := mat.NewDense(nq, 1, nil)
	scales := mat.NewDense(nq, 1, nil)
	pts := mat.NewDense(nq, 3, nil)
	jinvL := mat.NewDense(nq, 9, nil)
	var jinvR *mat.Dense
	if r >= 0 {
		jinvR = mat.NewDense(nq, 9, nil)
	}
	for q := 0; q < nq; q++ {
		normals.SetRow(q, n[:])
		dets.Set(q, 0, detJ)
		scales.Set(q, 0, scale)
		pts.SetRow(q, MapPoint(typ, xs, closure.Points[q]))
		jinvL.SetRow(q, jl)
		if jinvR != nil {
			jinvR.SetRow(q, fg.Right.Jinv[r].RawRowView(0))
		}
	}
	fg.Normals = append(fg.Normals, normals)
	fg.DetJ = append(fg.DetJ, dets)
	fg.FaceScale = append(fg.FaceScale, scales)
	fg.Points = append(fg.Points, pts)
	fg.JinvL = append(fg.JinvL, jinvL)
	fg.JinvR = append(fg.JinvR, jinvR)
	return nil
}

// faceMeasure is the length or area of a face given by its vertices. Point
// faces have unit measure.
func faceMeasure(xs [][3]float64) float64 {
	switch len(xs) {
	case 2:
		d := [3]float64{xs[1][0] - xs[0][0], xs[1][1] - xs[0][1], xs[1][2] - xs[0][2]}
		return math.Sqrt(dot(d, d))
	case 3:
		a := [3]float64{xs[1][0] - xs[0][0], xs[1][1] - xs[0][1], xs[1][2] - xs[0][2]}
		b := [3]float64{xs[2][0] - xs[0][0], xs[2][1] - xs[0][1], xs[2][2] - xs[0][2]}
		c := [3]float64{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
		return math.Sqrt(dot(c, c)) / 2
	}
	return 1
}

func referenceFaceMeasure(g element.ElementGeometry) float64 {
	switch g {
	case element.Line, element.Tri:
		return 2
	}
	return 1
}
