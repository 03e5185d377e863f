package law

import (
	"math"

	"github.com/notargets/DGSolver/cache"
	"gonum.org/v1/gonum/mat"
)

// DefaultPenalty scales the interior penalty when none is given.
const DefaultPenalty = 4.0

// AdvectionOptions configures Advection.
type AdvectionOptions struct {
	Fields    int // Defaults to 1
	Velocity  [3]float64
	Diffusion float64
	Penalty   float64
	// Source, when set, has one column per field.
	Source cache.Function
}

// Advection is ∂t u + ∇·(a u - ν∇u) = r for each field, with a constant
// velocity a. Faces use the upwind flux and, when ν > 0, an incomplete
// interior penalty diffusive flux.
type Advection struct {
	Base
	Options AdvectionOptions
}

func NewAdvection(opts AdvectionOptions) *Advection {
	if opts.Fields < 1 {
		opts.Fields = 1
	}
	if opts.Penalty <= 0 {
		opts.Penalty = DefaultPenalty
	}
	a := &Advection{Options: opts}
	F, vel, nu := opts.Fields, opts.Velocity, opts.Diffusion
	a.Base = Base{Fields: F, SourceTerm: opts.Source}

	a.Convective = cache.NewFunc("advective-flux", 3*F, []cache.Dependency{cache.OnToken(cache.Solution)},
		func(ev cache.Eval, out *mat.Dense) error {
			u := ev.Input(0)
			for q := 0; q < ev.NumPoints(); q++ {
				for d := 0; d < 3; d++ {
					for f := 0; f < F; f++ {
						out.Set(q, d*F+f, vel[d]*u.At(q, f))
					}
				}
			}
			return nil
		})
	if nu > 0 {
		a.Diffusive = diffusiveFlux(F, nu)
	}

	deps := []cache.Dependency{
		cache.OnToken(cache.Solution).In(1),
		cache.OnToken(cache.Solution).In(2),
		cache.OnToken(cache.Normals),
	}
	if nu > 0 {
		deps = append(deps, penaltyDependencies()...)
	}
	a.RiemannSolver = cache.NewFunc("upwind", F, deps, func(ev cache.Eval, out *mat.Dense) error {
		uL, uR, n := ev.Input(0), ev.Input(1), ev.Input(2)
		for q := 0; q < ev.NumPoints(); q++ {
			an := vel[0]*n.At(q, 0) + vel[1]*n.At(q, 1) + vel[2]*n.At(q, 2)
			for f := 0; f < F; f++ {
				out.Set(q, f, math.Max(an, 0)*uL.At(q, f)+math.Min(an, 0)*uR.At(q, f))
			}
		}
		if nu > 0 {
			addPenalty(ev, out, F, nu, opts.Penalty, 3)
		}
		return nil
	})
	return a
}

// diffusiveFlux is -ν∇u for every field.
func diffusiveFlux(fields int, nu float64) cache.Function {
	return cache.NewFunc("diffusive-flux", 3*fields, []cache.Dependency{cache.OnToken(cache.Gradient)},
		func(ev cache.Eval, out *mat.Dense) error {
			out.Scale(-nu, ev.Input(0))
			return nil
		})
}

func penaltyDependencies() []cache.Dependency {
	return []cache.Dependency{
		cache.OnToken(cache.Gradient).In(1),
		cache.OnToken(cache.Gradient).In(2),
		cache.OnToken(cache.FaceScale),
	}
}

// addPenalty adds -ν{∇u}·n + σ(uL - uR) with σ = ν·penalty·h⁻¹, reading
// the gradients and face scale from inputs first, first+1 and first+2. The
// states and normals are inputs 0, 1 and 2.
func addPenalty(ev cache.Eval, out *mat.Dense, fields int, nu, penalty float64, first int) {
	uL, uR, n := ev.Input(0), ev.Input(1), ev.Input(2)
	gL, gR, h := ev.Input(first), ev.Input(first+1), ev.Input(first+2)
	for q := 0; q < ev.NumPoints(); q++ {
		sigma := nu * penalty * h.At(q, 0)
		for f := 0; f < fields; f++ {
			var flux float64
			for d := 0; d < 3; d++ {
				c := d*fields + f
				flux -= 0.5 * nu * (gL.At(q, c) + gR.At(q, c)) * n.At(q, d)
			}
			flux += sigma * (uL.At(q, f) - uR.At(q, f))
			out.Set(q, f, out.At(q, f)+flux)
		}
	}
}
