// Package solver assembles discontinuous Galerkin residuals and advances
// them in time.
package solver

import (
	"errors"
	"fmt"

	"github.com/notargets/DGSolver/cache"
	"github.com/notargets/DGSolver/dof"
	"github.com/notargets/DGSolver/group"
	"github.com/notargets/DGSolver/law"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrNoLaw          = errors.New("solver: no conservation law attached")
	ErrNotSetUp       = errors.New("solver: system is not set up")
	ErrAliasedBuffers = errors.New("solver: residual shares storage with the solution")
	ErrBadState       = errors.New("solver: assembly pass out of order")
)

// Pass is the assembly state of an Algorithm.
type Pass uint8

const (
	Idle Pass = iota
	VolumePass
	InterfacePass
	BoundaryPass
	Accumulated
)

func (p Pass) String() string {
	return [...]string{"idle", "volume-pass", "interface-pass", "boundary-pass", "accumulated"}[p]
}

// closureKey selects the face closure of the element a trace context reads.
const closureKey cache.Token = "closure-key"

// Algorithm assembles R = ∫∇φ·F dV - ∮φ F̂·n dS + ∫φ r dV for the owned
// groups of one rank, so that M ∂t u = R.
type Algorithm struct {
	Collection *group.Collection
	Law        law.ConservationLaw
	// Time is bound to the Time token during assembly.
	Time float64

	state      Pass
	boundaries []law.BoundaryCondition // per Collection.Boundaries
}

// NewAlgorithm resolves the boundary conditions of every tagged boundary
// of col.
func NewAlgorithm(col *group.Collection, l law.ConservationLaw) (*Algorithm, error) {
	if l == nil {
		return nil, ErrNoLaw
	}
	a := &Algorithm{Collection: col, Law: l}
	for _, fg := range col.Boundaries {
		bc, err := l.Boundary(fg.Tag)
		if err != nil {
			return nil, err
		}
		a.boundaries = append(a.boundaries, bc)
	}
	return a, nil
}

func (a *Algorithm) State() Pass { return a.state }

// Reset returns the algorithm to Idle after an aborted assembly.
func (a *Algorithm) Reset() { a.state = Idle }

func (a *Algorithm) advance(from, to Pass) error {
	if a.state != from && !(from == Idle && a.state == Accumulated) {
		return fmt.Errorf("%w: %s while %s", ErrBadState, to, a.state)
	}
	a.state = to
	return nil
}

// Residual zeroes R and accumulates the volume, interface and boundary
// contributions of U, in that order. The ghost layer of U is refreshed
// first; the owned values of U are not modified.
func (a *Algorithm) Residual(U, R *dof.Container) error {
	return a.residual(U, R, nil)
}

// ResidualOf is Residual restricted to the given owned groups. Values of
// other groups are read but receive no contribution.
func (a *Algorithm) ResidualOf(U, R *dof.Container, groups []*group.ElementGroup) error {
	active := make(map[*group.ElementGroup]bool, len(groups))
	for _, g := range groups {
		active[g] = true
	}
	return a.residual(U, R, active)
}

func (a *Algorithm) residual(U, R *dof.Container, active map[*group.ElementGroup]bool) error {
	if err := dof.Disjoint(U, R); err != nil {
		return fmt.Errorf("%w: %v", ErrAliasedBuffers, err)
	}
	if a.state != Idle && a.state != Accumulated {
		return fmt.Errorf("%w: residual requested while %s", ErrBadState, a.state)
	}
	a.state = Idle
	R.Zero()
	if err := U.Scatter(); err != nil {
		return err
	}
	err := a.volume(U, R, active)
	if err == nil {
		err = a.interfaces(U, R, active)
	}
	if err == nil {
		err = a.boundary(U, R, active)
	}
	if err != nil {
		a.state = Idle
	}
	return err
}

// ResidualVolume adds the element integrals of every owned group to R.
func (a *Algorithm) ResidualVolume(U, R *dof.Container) error {
	return a.volume(U, R, nil)
}

// ResidualInterface adds the interface fluxes to R. Ghost values of U must
// be current.
func (a *Algorithm) ResidualInterface(U, R *dof.Container) error {
	return a.interfaces(U, R, nil)
}

// ResidualBoundary adds the boundary fluxes to R.
func (a *Algorithm) ResidualBoundary(U, R *dof.Container) error {
	return a.boundary(U, R, nil)
}

func isActive(active map[*group.ElementGroup]bool, g *group.ElementGroup) bool {
	return active == nil || active[g]
}

func (a *Algorithm) bindTime(m *cache.Map) {
	m.BindValue(cache.Time).Set(mat.NewDense(1, 1, []float64{a.Time}))
}

func (a *Algorithm) volume(U, R *dof.Container, active map[*group.ElementGroup]bool) error {
	if err := a.advance(Idle, VolumePass); err != nil {
		return err
	}
	for _, g := range a.Collection.Groups {
		if !isActive(active, g) {
			continue
		}
		if err := a.volumeGroup(g, U, R); err != nil {
			a.state = Idle
			return fmt.Errorf("volume of group %d: %w", g.ID, err)
		}
	}
	return nil
}

func (a *Algorithm) volumeGroup(g *group.ElementGroup, U, R *dof.Container) error {
	F := a.Law.NumFields()
	nq := g.NumPoints()
	m := cache.NewMap(nq)
	defer m.Release()
	a.bindTime(m)
	coords := m.BindValue(cache.Coordinates)
	param := m.BindValue(cache.Parametric)
	m.Provide(cache.Solution, volumeSolution(g, U, F))
	m.Provide(cache.Gradient, volumeGradient(g, U, F))

	conv, err := a.Law.ConvectiveFlux(m)
	if err != nil {
		return err
	}
	diff, err := a.Law.DiffusiveFlux(m)
	if err != nil {
		return err
	}
	src, err := a.Law.Source(m)
	if err != nil {
		return err
	}
	var fluxes []*cache.Node
	for _, n := range []*cache.Node{conv, diff} {
		if n != nil {
			fluxes = append(fluxes, n)
		}
	}
	if len(fluxes) == 0 && src == nil {
		return nil
	}

	pf := mat.NewDense(nq, F, nil)
	for e := range g.Elements {
		m.SetElement(e)
		coords.SetProxy(g.Points[e])
		param.SetProxy(g.Jinv[e])
		out := R.ElementView(g, e)
		jinv, detJ := g.Jinv[e], g.DetJ[e]

		vals := make([]*mat.Dense, len(fluxes))
		for i, n := range fluxes {
			if vals[i], err = n.Value(); err != nil {
				return err
			}
		}
		if len(vals) > 0 {
			for d := 0; d < g.Dim(); d++ {
				for q := 0; q < nq; q++ {
					j := jinv.RawRowView(q)
					for f := 0; f < F; f++ {
						var v float64
						for _, flux := range vals {
							for x := 0; x < 3; x++ {
								v += j[3*d+x] * flux.At(q, x*F+f)
							}
						}
						pf.Set(q, f, detJ.At(q, 0)*v)
					}
				}
				gemmAdd(1, g.FluxRedistribution[d], pf, out)
			}
		}
		if src != nil {
			s, err := src.Value()
			if err != nil {
				return err
			}
			for q := 0; q < nq; q++ {
				for f := 0; f < F; f++ {
					pf.Set(q, f, detJ.At(q, 0)*s.At(q, f))
				}
			}
			gemmAdd(1, g.SourceRedistribution, pf, out)
		}
	}
	return nil
}

// gemmAdd performs c += alpha·a·b. c may be a strided view.
func gemmAdd(alpha float64, a, b, c *mat.Dense) {
	blas64.Gemm(blas.NoTrans, blas.NoTrans, alpha, a.RawMatrix(), b.RawMatrix(), 1, c.RawMatrix())
}

func (a *Algorithm) interfaces(U, R *dof.Container, active map[*group.ElementGroup]bool) error {
	if err := a.advance(VolumePass, InterfacePass); err != nil {
		return err
	}
	for _, fg := range a.Collection.Interfaces {
		left, right := isActive(active, fg.Left), !fg.Right.Ghost && isActive(active, fg.Right)
		if !left && !right {
			continue
		}
		if err := a.interfaceGroup(fg, U, R, left, right); err != nil {
			a.state = Idle
			return fmt.Errorf("%s: %w", fg, err)
		}
	}
	return nil
}

// side binds the trace of one element group in m: Solution and Gradient
// are evaluated from U through the closure selected by closureKey.
type side struct {
	key, param *cache.Node
}

func bindSide(m *cache.Map, g *group.ElementGroup, U *dof.Container, F int) side {
	s := side{key: m.BindValue(closureKey), param: m.BindValue(cache.Parametric)}
	m.Provide(cache.Solution, traceSolution(g, U, F))
	m.Provide(cache.Gradient, traceGradient(g, U, F))
	return s
}

func (s side) set(key int, jinv *mat.Dense) {
	s.key.Set(mat.NewDense(1, 1, []float64{float64(key)}))
	s.param.SetProxy(jinv)
}

func (a *Algorithm) interfaceGroup(fg *group.FaceGroup, U, R *dof.Container, left, right bool) error {
	F := a.Law.NumFields()
	m := cache.NewMap(fg.NumPoints())
	defer m.Release()
	a.bindTime(m)
	geo := bindFace(m)
	L, Rt := m.NewSecondary(), m.NewSecondary()
	sl := bindSide(L, fg.Left, U, F)
	sr := bindSide(Rt, fg.Right, U, F)

	flux, err := a.Law.Riemann(m)
	if err != nil || flux == nil {
		return err
	}
	scaled := mat.NewDense(fg.NumPoints(), F, nil)
	for i, f := range fg.Faces {
		m.SetElement(i)
		geo.set(fg, i)
		L.SetElement(f.Left)
		sl.set(f.LeftKey, fg.JinvL[i])
		Rt.SetElement(f.Right)
		sr.set(f.RightKey, fg.JinvR[i])

		v, err := flux.Value()
		if err != nil {
			return err
		}
		scaleRows(scaled, v, fg.DetJ[i])
		if left {
			gemmAdd(-1, fg.LeftClosure(i).Redistribution, scaled, R.ElementView(fg.Left, f.Left))
		}
		if right {
			gemmAdd(1, fg.RightClosure(i).Redistribution, scaled, R.ElementView(fg.Right, f.Right))
		}
	}
	return nil
}

// face holds the per-face geometry bound in a face context.
type face struct {
	normals, scale, coords *cache.Node
}

func bindFace(m *cache.Map) face {
	return face{
		normals: m.BindValue(cache.Normals),
		scale:   m.BindValue(cache.FaceScale),
		coords:  m.BindValue(cache.Coordinates),
	}
}

func (f face) set(fg *group.FaceGroup, i int) {
	f.normals.SetProxy(fg.Normals[i])
	f.scale.SetProxy(fg.FaceScale[i])
	f.coords.SetProxy(fg.Points[i])
}

func scaleRows(dst, src, s *mat.Dense) {
	r, c := dst.Dims()
	for q := 0; q < r; q++ {
		w := s.At(q, 0)
		for f := 0; f < c; f++ {
			dst.Set(q, f, w*src.At(q, f))
		}
	}
}

func (a *Algorithm) boundary(U, R *dof.Container, active map[*group.ElementGroup]bool) error {
	if err := a.advance(InterfacePass, BoundaryPass); err != nil {
		return err
	}
	for b, fg := range a.Collection.Boundaries {
		if !isActive(active, fg.Left) {
			continue
		}
		if err := a.boundaryGroup(fg, a.boundaries[b], U, R); err != nil {
			a.state = Idle
			return fmt.Errorf("%s: %w", fg, err)
		}
	}
	a.state = Accumulated
	return nil
}

func (a *Algorithm) boundaryGroup(fg *group.FaceGroup, bc law.BoundaryCondition, U, R *dof.Container) error {
	F := a.Law.NumFields()
	m := cache.NewMap(fg.NumPoints())
	defer m.Release()
	a.bindTime(m)
	geo := bindFace(m)
	s := bindSide(m, fg.Left, U, F)

	flux, err := bc.Flux(a.Law, m)
	if err != nil || flux == nil {
		return err
	}
	scaled := mat.NewDense(fg.NumPoints(), F, nil)
	for i, f := range fg.Faces {
		m.SetElement(f.Left)
		geo.set(fg, i)
		s.set(f.LeftKey, fg.JinvL[i])

		v, err := flux.Value()
		if err != nil {
			return err
		}
		scaleRows(scaled, v, fg.DetJ[i])
		gemmAdd(-1, fg.LeftClosure(i).Redistribution, scaled, R.ElementView(fg.Left, f.Left))
	}
	return nil
}

// MultAddInverseMassMatrix adds alpha·M⁻¹·in to out on every owned group.
func (a *Algorithm) MultAddInverseMassMatrix(in, out *dof.Container, alpha float64) error {
	return a.multAddInverseMass(in, out, alpha, a.Collection.Groups)
}

func (a *Algorithm) multAddInverseMass(in, out *dof.Container, alpha float64, groups []*group.ElementGroup) error {
	if err := dof.Disjoint(in, out); err != nil {
		return fmt.Errorf("%w: %v", ErrAliasedBuffers, err)
	}
	for _, g := range groups {
		for e := range g.Elements {
			gemmAdd(alpha, g.MassInv[e], in.ElementView(g, e), out.ElementView(g, e))
		}
	}
	return nil
}

// MultMassMatrix sets out = M·in on every owned group.
func (a *Algorithm) MultMassMatrix(in, out *dof.Container) error {
	if err := dof.Disjoint(in, out); err != nil {
		return fmt.Errorf("%w: %v", ErrAliasedBuffers, err)
	}
	for _, g := range a.Collection.Groups {
		for e := range g.Elements {
			out.ElementView(g, e).Mul(g.Mass[e], in.ElementView(g, e))
		}
	}
	return nil
}
