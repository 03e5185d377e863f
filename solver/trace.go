package solver

import (
	"github.com/notargets/DGSolver/cache"
	"github.com/notargets/DGSolver/dof"
	"github.com/notargets/DGSolver/group"
	"gonum.org/v1/gonum/mat"
)

// volumeSolution collocates the nodal values of the current element at
// the quadrature points of g.
func volumeSolution(g *group.ElementGroup, U *dof.Container, F int) cache.Function {
	return cache.NewFunc("solution", F, []cache.Dependency{cache.OnToken(cache.Element)},
		func(ev cache.Eval, out *mat.Dense) error {
			out.Mul(g.Collocation, U.ElementView(g, ev.Element()))
			return nil
		})
}

// volumeGradient is the physical gradient of the solution, column d*F+f
// holding ∂u_f/∂x_d.
func volumeGradient(g *group.ElementGroup, U *dof.Container, F int) cache.Function {
	deps := []cache.Dependency{cache.OnToken(cache.Element), cache.OnToken(cache.Parametric)}
	return cache.NewFunc("gradient", 3*F, deps, func(ev cache.Eval, out *mat.Dense) error {
		physicalGradient(out, ev.Input(1), g.GradCollocation, U.ElementView(g, ev.Element()), F, g.Dim())
		return nil
	})
}

// traceSolution collocates the current element at the points of the face
// closure bound to closureKey.
func traceSolution(g *group.ElementGroup, U *dof.Container, F int) cache.Function {
	deps := []cache.Dependency{cache.OnToken(cache.Element), cache.OnToken(closureKey)}
	return cache.NewFunc("trace", F, deps, func(ev cache.Eval, out *mat.Dense) error {
		c := g.Ref.Closure(int(ev.Input(1).At(0, 0)))
		out.Mul(c.Collocation, U.ElementView(g, ev.Element()))
		return nil
	})
}

func traceGradient(g *group.ElementGroup, U *dof.Container, F int) cache.Function {
	deps := []cache.Dependency{
		cache.OnToken(cache.Element),
		cache.OnToken(closureKey),
		cache.OnToken(cache.Parametric),
	}
	return cache.NewFunc("trace-gradient", 3*F, deps, func(ev cache.Eval, out *mat.Dense) error {
		c := g.Ref.Closure(int(ev.Input(1).At(0, 0)))
		physicalGradient(out, ev.Input(2), c.Gradient, U.ElementView(g, ev.Element()), F, g.Dim())
		return nil
	})
}

// physicalGradient chains the parametric derivatives of ue through jinv,
// whose column 3*d+x is dξ_d/dx_x.
func physicalGradient(out, jinv *mat.Dense, grad [3]*mat.Dense, ue *mat.Dense, F, dim int) {
	nq, _ := out.Dims()
	var du mat.Dense
	for d := 0; d < dim; d++ {
		du.Reset()
		du.Mul(grad[d], ue)
		for q := 0; q < nq; q++ {
			j := jinv.RawRowView(q)
			for x := 0; x < 3; x++ {
				for f := 0; f < F; f++ {
					out.Set(q, x*F+f, out.At(q, x*F+f)+j[3*d+x]*du.At(q, f))
				}
			}
		}
	}
}
