package solver

import (
	"fmt"

	"github.com/notargets/DGSolver/cache"
	"github.com/notargets/DGSolver/dof"
	"github.com/notargets/DGSolver/group"
	"github.com/notargets/DGSolver/law"
	"gonum.org/v1/gonum/mat"
)

// Project sets the owned values of U to the L2 projection of fn, which
// has one column per field and may read Coordinates, Parametric and Time.
func (a *Algorithm) Project(fn cache.Function, U *dof.Container) error {
	if fn.NumCols() != U.NumFields() {
		return fmt.Errorf("%w: %s has %d columns, solution has %d fields",
			law.ErrFieldCountMismatch, fn.Name(), fn.NumCols(), U.NumFields())
	}
	for _, g := range a.Collection.Groups {
		if err := a.projectGroup(fn, g, U); err != nil {
			return fmt.Errorf("projection on group %d: %w", g.ID, err)
		}
	}
	return nil
}

func (a *Algorithm) projectGroup(fn cache.Function, g *group.ElementGroup, U *dof.Container) error {
	F, nq := U.NumFields(), g.NumPoints()
	m := cache.NewMap(nq)
	defer m.Release()
	a.bindTime(m)
	coords := m.BindValue(cache.Coordinates)
	param := m.BindValue(cache.Parametric)
	n, err := m.Get(fn)
	if err != nil {
		return err
	}
	pf := mat.NewDense(nq, F, nil)
	b := mat.NewDense(g.Np(), F, nil)
	for e := range g.Elements {
		m.SetElement(e)
		coords.SetProxy(g.Points[e])
		param.SetProxy(g.Jinv[e])
		v, err := n.Value()
		if err != nil {
			return err
		}
		scaleRows(pf, v, g.DetJ[e])
		b.Mul(g.SourceRedistribution, pf)
		U.ElementView(g, e).Mul(g.MassInv[e], b)
	}
	return nil
}
