package solver

import (
	"fmt"
	"sort"

	"github.com/notargets/DGSolver/dof"
	"github.com/notargets/DGSolver/group"
)

// Integrator advances U in place by dt and returns the norm of the
// residual R(U) at the start of the step.
type Integrator interface {
	Step(a *Algorithm, U *dof.Container, dt float64) (float64, error)
}

// Limiter post-processes a solution after each stage.
type Limiter interface {
	Limit(a *Algorithm, U *dof.Container) error
}

// LimiterFunc adapts a function to the Limiter interface.
type LimiterFunc func(a *Algorithm, U *dof.Container) error

func (f LimiterFunc) Limit(a *Algorithm, U *dof.Container) error { return f(a, U) }

func limit(l Limiter, a *Algorithm, U *dof.Container) error {
	if l == nil {
		return nil
	}
	return l.Limit(a, U)
}

// workspace keeps scratch containers shaped like the solution.
type workspace struct {
	bufs []*dof.Container
}

func (w *workspace) get(U *dof.Container, n int) []*dof.Container {
	if len(w.bufs) != n || w.bufs[0].Len() != U.Len() || len(w.bufs[0].Ghost()) != len(U.Ghost()) {
		w.bufs = make([]*dof.Container, n)
		for i := range w.bufs {
			w.bufs[i] = U.NewLike()
		}
	}
	return w.bufs
}

// rate sets K = M⁻¹·R(X) and returns ‖R(X)‖ when norm is set.
func rate(a *Algorithm, X, R, K *dof.Container, norm bool) (float64, error) {
	if err := a.Residual(X, R); err != nil {
		return 0, err
	}
	var n float64
	if norm {
		var err error
		if n, err = R.Norm(); err != nil {
			return 0, err
		}
	}
	K.Zero()
	return n, a.MultAddInverseMassMatrix(R, K, 1)
}

// ForwardEuler is U ← U + dt·M⁻¹R(U).
type ForwardEuler struct {
	Limiter Limiter
	work    workspace
}

func (fe *ForwardEuler) Step(a *Algorithm, U *dof.Container, dt float64) (float64, error) {
	w := fe.work.get(U, 2)
	R, K := w[0], w[1]
	norm, err := rate(a, U, R, K, true)
	if err != nil {
		return 0, err
	}
	if err := U.Axpy(dt, K); err != nil {
		return 0, err
	}
	a.Time += dt
	return norm, limit(fe.Limiter, a, U)
}

// RK44 is the classical four stage Runge-Kutta method. Stage k evaluates
// K_k = M⁻¹R(U_n + b_k·K_{k-1}) and accumulates U += a_k·K_k.
type RK44 struct {
	Limiter Limiter
	work    workspace
}

func (rk *RK44) Step(a *Algorithm, U *dof.Container, dt float64) (float64, error) {
	w := rk.work.get(U, 4)
	Un, X, R, K := w[0], w[1], w[2], w[3]
	weights := [4]float64{dt / 6, dt / 3, dt / 3, dt / 6}
	offsets := [4]float64{0, dt / 2, dt / 2, dt}

	t0 := a.Time
	if err := Un.Copy(U); err != nil {
		return 0, err
	}
	var norm float64
	for k := 0; k < 4; k++ {
		if err := X.Copy(Un); err != nil {
			return 0, err
		}
		if k > 0 {
			if err := X.Axpy(offsets[k], K); err != nil {
				return 0, err
			}
			if err := limit(rk.Limiter, a, X); err != nil {
				return 0, err
			}
		}
		a.Time = t0 + offsets[k]
		n, err := rate(a, X, R, K, k == 0)
		if err != nil {
			return 0, err
		}
		if k == 0 {
			norm = n
		}
		if err := U.Axpy(weights[k], K); err != nil {
			return 0, err
		}
	}
	a.Time = t0 + dt
	return norm, limit(rk.Limiter, a, U)
}

// MultirateStrategy assigns each owned group a time step class and returns
// the number of classes. Class c advances with steps of dt/2^c. Every rank
// must return the same count.
type MultirateStrategy interface {
	Classify(a *Algorithm, U *dof.Container) (int, error)
}

// MultirateRK3 advances the classes from finest to coarsest. Each class
// takes 2^c SSP-RK3 substeps of dt/2^c while the other classes are held at
// their current values.
type MultirateRK3 struct {
	Strategy MultirateStrategy // Defaults to SizeClasses{}
	Limiter  Limiter
	work     workspace
}

func (mr *MultirateRK3) Step(a *Algorithm, U *dof.Container, dt float64) (float64, error) {
	strategy := mr.Strategy
	if strategy == nil {
		strategy = SizeClasses{}
	}
	classes, err := strategy.Classify(a, U)
	if err != nil {
		return 0, err
	}
	w := mr.work.get(U, 3)
	U0, R, K := w[0], w[1], w[2]

	t0 := a.Time
	if err := a.Residual(U, R); err != nil {
		return 0, err
	}
	norm, err := R.Norm()
	if err != nil {
		return 0, err
	}
	byClass := make([][]*group.ElementGroup, classes)
	for _, g := range a.Collection.Groups {
		if g.Class < 0 || g.Class >= classes {
			return 0, fmt.Errorf("%w: group %d has class %d of %d", ErrBadState, g.ID, g.Class, classes)
		}
		byClass[g.Class] = append(byClass[g.Class], g)
	}
	for c := classes - 1; c >= 0; c-- {
		groups := byClass[c]
		sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
		h := dt / float64(int(1)<<c)
		for s := 0; s < 1<<c; s++ {
			a.Time = t0 + float64(s)*h
			if err := mr.substep(a, U, U0, R, K, groups, h); err != nil {
				return 0, err
			}
		}
	}
	a.Time = t0 + dt
	return norm, nil
}

// substep is one SSP-RK3 step of the given groups. Ranks without groups in
// the class still take part in every residual for the ghost exchange.
func (mr *MultirateRK3) substep(a *Algorithm, U, U0, R, K *dof.Container, groups []*group.ElementGroup, h float64) error {
	t := a.Time
	if err := U0.CopyGroups(U, groups); err != nil {
		return err
	}
	stages := []struct{ keep, time float64 }{{0, 0}, {0.75, 1}, {1.0 / 3, 0.5}}
	for _, st := range stages {
		a.Time = t + st.time*h
		if err := a.ResidualOf(U, R, groups); err != nil {
			return err
		}
		K.Zero()
		if err := a.multAddInverseMass(R, K, 1, groups); err != nil {
			return err
		}
		if err := U.AxpyGroups(h, K, groups); err != nil {
			return err
		}
		if st.keep > 0 {
			U.ScaleGroups(1-st.keep, groups)
			if err := U.AxpyGroups(st.keep, U0, groups); err != nil {
				return err
			}
		}
		if err := limit(mr.Limiter, a, U); err != nil {
			return err
		}
	}
	return nil
}

var integrators = map[string]func() Integrator{
	"forward-euler": func() Integrator { return &ForwardEuler{} },
	"rk44":          func() Integrator { return &RK44{} },
	"multirate-rk3": func() Integrator { return &MultirateRK3{} },
}

// NewIntegrator returns a fresh integrator registered under name.
func NewIntegrator(name string) (Integrator, error) {
	mk, ok := integrators[name]
	if !ok {
		return nil, fmt.Errorf("solver: unknown integrator %q (have %v)", name, IntegratorNames())
	}
	return mk(), nil
}

// IntegratorNames lists the registered integrators.
func IntegratorNames() []string {
	names := make([]string, 0, len(integrators))
	for n := range integrators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
