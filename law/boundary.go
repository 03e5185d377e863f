package law

import (
	"fmt"

	"github.com/notargets/DGSolver/cache"
	"gonum.org/v1/gonum/mat"
)

// Kind selects the variant of a BoundaryCondition.
type Kind uint8

const (
	KindZeroFlux Kind = iota
	KindSymmetry
	KindOutsideValue
	KindInteriorSolution
	KindNormalDiffusiveFlux
	KindTransmissive
)

func (k Kind) String() string {
	switch k {
	case KindZeroFlux:
		return "zero-flux"
	case KindSymmetry:
		return "symmetry"
	case KindOutsideValue:
		return "outside-value"
	case KindInteriorSolution:
		return "interior-solution"
	case KindNormalDiffusiveFlux:
		return "normal-diffusive-flux"
	case KindTransmissive:
		return "transmissive"
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// BoundaryCondition produces the outward normal flux on a tagged boundary.
// Outside is only used by KindOutsideValue and must have one column per
// field.
type BoundaryCondition struct {
	Kind    Kind
	Outside cache.Function
}

// ZeroFlux contributes nothing.
func ZeroFlux() BoundaryCondition { return BoundaryCondition{Kind: KindZeroFlux} }

// Symmetry applies the Riemann solver with the interior state on both sides.
func Symmetry() BoundaryCondition { return BoundaryCondition{Kind: KindSymmetry} }

// OutsideValue applies the Riemann solver between the interior state and
// the state computed by fn.
func OutsideValue(fn cache.Function) BoundaryCondition {
	return BoundaryCondition{Kind: KindOutsideValue, Outside: fn}
}

// InteriorSolution exposes the interior trace of the solution as the
// boundary term, for Dirichlet-type conditions built on top of it.
func InteriorSolution() BoundaryCondition { return BoundaryCondition{Kind: KindInteriorSolution} }

// Transmissive takes the physical flux of the interior state through the
// boundary.
func Transmissive() BoundaryCondition { return BoundaryCondition{Kind: KindTransmissive} }

// NormalDiffusiveFlux takes only the interior diffusive flux through the
// boundary.
func NormalDiffusiveFlux() BoundaryCondition { return BoundaryCondition{Kind: KindNormalDiffusiveFlux} }

func (bc BoundaryCondition) String() string { return bc.Kind.String() }

// Flux returns the boundary flux node for l, evaluated in m. The context
// must bind the interior Solution and Gradient as well as Normals. A nil
// node means the boundary contributes nothing.
func (bc BoundaryCondition) Flux(l ConservationLaw, m *cache.Map) (*cache.Node, error) {
	switch bc.Kind {
	case KindZeroFlux:
		return nil, nil
	case KindSymmetry:
		p, err := m.Pair(m, m)
		if err != nil {
			return nil, err
		}
		return riemann(l, p)
	case KindOutsideValue:
		if bc.Outside == nil {
			return nil, fmt.Errorf("%w: outside-value condition without a function", ErrFieldCountMismatch)
		}
		if bc.Outside.NumCols() != l.NumFields() {
			return nil, fmt.Errorf("%w: %s has %d columns, law has %d fields",
				ErrFieldCountMismatch, bc.Outside.Name(), bc.Outside.NumCols(), l.NumFields())
		}
		out, err := m.Get(bc.Outside)
		if err != nil {
			return nil, err
		}
		o, err := m.Substitute(map[cache.Token]*cache.Node{cache.Solution: out})
		if err != nil {
			return nil, err
		}
		p, err := m.Pair(m, o)
		if err != nil {
			return nil, err
		}
		return riemann(l, p)
	case KindInteriorSolution:
		u, err := m.Lookup(cache.Solution)
		if err != nil {
			return nil, err
		}
		if u.NumCols() != l.NumFields() {
			return nil, fmt.Errorf("%w: interior solution has %d columns, law has %d fields",
				ErrFieldCountMismatch, u.NumCols(), l.NumFields())
		}
		return u, nil
	case KindTransmissive:
		conv, err := l.ConvectiveFlux(m)
		if err != nil {
			return nil, err
		}
		diff, err := l.DiffusiveFlux(m)
		if err != nil {
			return nil, err
		}
		return NormalFlux(m, l.NumFields(), conv, diff)
	case KindNormalDiffusiveFlux:
		diff, err := l.DiffusiveFlux(m)
		if err != nil {
			return nil, err
		}
		return NormalFlux(m, l.NumFields(), diff)
	}
	return nil, fmt.Errorf("law: unknown boundary condition %s", bc.Kind)
}

func riemann(l ConservationLaw, p *cache.Map) (*cache.Node, error) {
	n, err := l.Riemann(p)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNoRiemannSolver
	}
	return n, nil
}

// NormalFlux sums the given vector fluxes and projects the result on the
// Normals bound in m. Nil fluxes are skipped; nil is returned when all are.
func NormalFlux(m *cache.Map, fields int, fluxes ...*cache.Node) (*cache.Node, error) {
	deps := []cache.Dependency{cache.OnToken(cache.Normals)}
	name := "normal"
	for _, f := range fluxes {
		if f == nil {
			continue
		}
		if f.NumCols() != 3*fields {
			return nil, fmt.Errorf("%w: %s has %d columns, want %d", ErrFieldCountMismatch, f.Name(), f.NumCols(), 3*fields)
		}
		deps = append(deps, cache.OnNode(f))
		name += "·" + f.Name()
	}
	if len(deps) == 1 {
		return nil, nil
	}
	fn := cache.NewFunc(name, fields, deps, func(ev cache.Eval, out *mat.Dense) error {
		n := ev.Input(0)
		for i := 1; i < ev.NumInputs(); i++ {
			F := ev.Input(i)
			for q := 0; q < ev.NumPoints(); q++ {
				for f := 0; f < fields; f++ {
					v := out.At(q, f)
					for d := 0; d < 3; d++ {
						v += F.At(q, d*fields+f) * n.At(q, d)
					}
					out.Set(q, f, v)
				}
			}
		}
		return nil
	})
	return m.Get(fn)
}
