package law

import (
	"errors"
	"fmt"

	"github.com/notargets/DGSolver/cache"
)

var (
	ErrUnknownBoundaryTag = errors.New("law: unknown boundary tag")
	ErrFieldCountMismatch = errors.New("law: field count mismatch")
	ErrNoRiemannSolver    = errors.New("law: no Riemann solver")
)

// ConservationLaw supplies the terms of ∂t u + ∇·F(u, ∇u) = r(u) as cache
// nodes built in the context handed to each method. Absent terms return
// (nil, nil) and contribute nothing.
//
// ConvectiveFlux and DiffusiveFlux have 3·NumFields columns ordered
// direction-major, column d*F+f being the d-th component of the flux of
// field f. Source has NumFields columns. Riemann is evaluated in a context
// whose secondaries 1 and 2 are the left and right states; it returns the
// flux through the face along the normal pointing from left to right.
type ConservationLaw interface {
	NumFields() int
	ConvectiveFlux(m *cache.Map) (*cache.Node, error)
	DiffusiveFlux(m *cache.Map) (*cache.Node, error)
	Source(m *cache.Map) (*cache.Node, error)
	Riemann(m *cache.Map) (*cache.Node, error)
	Boundary(tag string) (BoundaryCondition, error)
}

// Base implements ConservationLaw from plain cache functions. Nil functions
// are absent terms.
type Base struct {
	Fields        int
	Convective    cache.Function
	Diffusive     cache.Function
	SourceTerm    cache.Function
	RiemannSolver cache.Function
	Boundaries    map[string]BoundaryCondition
}

func (b *Base) NumFields() int { return b.Fields }

func (b *Base) ConvectiveFlux(m *cache.Map) (*cache.Node, error) {
	return b.term(m, b.Convective, 3*b.Fields)
}

func (b *Base) DiffusiveFlux(m *cache.Map) (*cache.Node, error) {
	return b.term(m, b.Diffusive, 3*b.Fields)
}

func (b *Base) Source(m *cache.Map) (*cache.Node, error) { return b.term(m, b.SourceTerm, b.Fields) }
func (b *Base) Riemann(m *cache.Map) (*cache.Node, error) {
	return b.term(m, b.RiemannSolver, b.Fields)
}

func (b *Base) term(m *cache.Map, f cache.Function, cols int) (*cache.Node, error) {
	if f == nil {
		return nil, nil
	}
	if f.NumCols() != cols {
		return nil, fmt.Errorf("%w: %s has %d columns, want %d", ErrFieldCountMismatch, f.Name(), f.NumCols(), cols)
	}
	return m.Get(f)
}

// Boundary returns the condition registered for tag.
func (b *Base) Boundary(tag string) (BoundaryCondition, error) {
	bc, ok := b.Boundaries[tag]
	if !ok {
		return BoundaryCondition{}, fmt.Errorf("%w: %q", ErrUnknownBoundaryTag, tag)
	}
	return bc, nil
}

// SetBoundary registers bc for tag.
func (b *Base) SetBoundary(tag string, bc BoundaryCondition) {
	if b.Boundaries == nil {
		b.Boundaries = make(map[string]BoundaryCondition)
	}
	b.Boundaries[tag] = bc
}

// CheckBoundaries verifies that every tag has a condition.
func CheckBoundaries(l ConservationLaw, tags []string) error {
	for _, tag := range tags {
		if _, err := l.Boundary(tag); err != nil {
			return err
		}
	}
	return nil
}
