package law

import (
	"math"

	"github.com/notargets/DGSolver/cache"
	"gonum.org/v1/gonum/mat"
)

// Burgers is the scalar equation ∂t u + ∇·(β u²/2) = ν∇²u. With β = (1,1,1)
// it is the classic u_t + u(u_x + u_y + u_z) = 0 in three dimensions.
// Faces use the local Lax-Friedrichs flux.
type Burgers struct {
	Base
	Direction [3]float64
	Viscosity float64
}

func NewBurgers(direction [3]float64, viscosity float64) *Burgers {
	b := &Burgers{Direction: direction, Viscosity: viscosity}
	b.Base = Base{Fields: 1}
	b.Convective = cache.NewFunc("burgers-flux", 3, []cache.Dependency{cache.OnToken(cache.Solution)},
		func(ev cache.Eval, out *mat.Dense) error {
			u := ev.Input(0)
			for q := 0; q < ev.NumPoints(); q++ {
				h := 0.5 * u.At(q, 0) * u.At(q, 0)
				for d := 0; d < 3; d++ {
					out.Set(q, d, direction[d]*h)
				}
			}
			return nil
		})
	if viscosity > 0 {
		b.Diffusive = diffusiveFlux(1, viscosity)
	}

	deps := []cache.Dependency{
		cache.OnToken(cache.Solution).In(1),
		cache.OnToken(cache.Solution).In(2),
		cache.OnToken(cache.Normals),
	}
	if viscosity > 0 {
		deps = append(deps, penaltyDependencies()...)
	}
	b.RiemannSolver = cache.NewFunc("local-lax-friedrichs", 1, deps, func(ev cache.Eval, out *mat.Dense) error {
		uL, uR, n := ev.Input(0), ev.Input(1), ev.Input(2)
		for q := 0; q < ev.NumPoints(); q++ {
			bn := direction[0]*n.At(q, 0) + direction[1]*n.At(q, 1) + direction[2]*n.At(q, 2)
			l, r := uL.At(q, 0), uR.At(q, 0)
			lambda := math.Abs(bn) * math.Max(math.Abs(l), math.Abs(r))
			out.Set(q, 0, 0.25*bn*(l*l+r*r)-0.5*lambda*(r-l))
		}
		if viscosity > 0 {
			addPenalty(ev, out, 1, viscosity, DefaultPenalty, 3)
		}
		return nil
	})
	return b
}

// WaveSpeed bounds |β·∇(u²/2)/∇u| for states bounded by umax.
func (b *Burgers) WaveSpeed(umax float64) float64 {
	d := b.Direction
	return math.Sqrt(d[0]*d[0]+d[1]*d[1]+d[2]*d[2]) * math.Abs(umax)
}
