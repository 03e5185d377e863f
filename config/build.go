package config

import (
	"fmt"
	"math"

	"github.com/notargets/DGSolver/cache"
	"github.com/notargets/DGSolver/comm"
	"github.com/notargets/DGSolver/law"
	"github.com/notargets/DGSolver/mesh"
	"github.com/notargets/DGSolver/partitions"
	"github.com/notargets/DGSolver/solver"
)

// BuildMesh reads or generates the mesh.
func (c *Config) BuildMesh() (*mesh.Mesh, error) {
	mc := c.Mesh
	if mc.File != "" {
		return mesh.ReadFile(mc.File)
	}
	lo, hi, n := vec3(mc.Lower), vec3(mc.Upper), mc.Divisions
	switch mc.Generator {
	case "line":
		return mesh.NewLine(n[0], lo[0], hi[0])
	case "rectangle":
		return mesh.NewRectangle(n[0], n[1], lo[0], hi[0], lo[1], hi[1])
	case "box":
		return mesh.NewBox(n[0], n[1], n[2], lo, hi)
	}
	return nil, invalid("unknown mesh generator %q", mc.Generator)
}

// Field turns a field description into a function of the coordinates.
func (f FieldConfig) Field(name string) cache.Function {
	if f.Kind == "gaussian" {
		return law.Gaussian(name, vec3(f.Center), f.Width, f.Amplitude)
	}
	return law.Constant(name, f.Value...)
}

// MaxValue bounds the magnitude of the field.
func (f FieldConfig) MaxValue() float64 {
	if f.Kind == "gaussian" {
		return math.Abs(f.Amplitude)
	}
	var m float64
	for _, v := range f.Value {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// InitialCondition is the function projected at t = 0.
func (c *Config) InitialCondition() cache.Function { return c.Initial.Field("initial") }

// BuildLaw creates the law with every configured boundary condition set.
func (c *Config) BuildLaw() (law.ConservationLaw, error) {
	lc := c.Law
	var (
		l    law.ConservationLaw
		base *law.Base
	)
	switch lc.Kind {
	case "advection":
		opts := law.AdvectionOptions{
			Fields:    lc.Fields,
			Velocity:  vec3(lc.Velocity),
			Diffusion: lc.Diffusion,
			Penalty:   lc.Penalty,
		}
		if lc.Source != nil {
			opts.Source = lc.Source.Field("source")
		}
		a := law.NewAdvection(opts)
		l, base = a, &a.Base
	case "burgers":
		b := law.NewBurgers(vec3(lc.Velocity), lc.Diffusion)
		if lc.Source != nil {
			b.SourceTerm = lc.Source.Field("source")
		}
		l, base = b, &b.Base
	default:
		return nil, invalid("unknown law %q", lc.Kind)
	}
	for tag, bc := range c.Boundaries {
		cond, err := bc.condition(tag)
		if err != nil {
			return nil, err
		}
		base.SetBoundary(tag, cond)
	}
	return l, nil
}

func (b BoundaryConfig) condition(tag string) (law.BoundaryCondition, error) {
	switch b.Kind {
	case "zero-flux":
		return law.ZeroFlux(), nil
	case "symmetry":
		return law.Symmetry(), nil
	case "interior-solution":
		return law.InteriorSolution(), nil
	case "transmissive":
		return law.Transmissive(), nil
	case "normal-diffusive-flux":
		return law.NormalDiffusiveFlux(), nil
	case "outside-value":
		return law.OutsideValue(law.Constant("outside-"+tag, b.Value...)), nil
	}
	return law.BoundaryCondition{}, invalid("boundary %q: unknown kind %q", tag, b.Kind)
}

// SolverOptions maps the configuration onto solver options for cm.
func (c *Config) SolverOptions(cm comm.Communicator) (solver.Options, error) {
	strategy, err := partitions.ParseStrategy(c.Partition.Strategy)
	if err != nil {
		return solver.Options{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return solver.Options{
		Order:        c.Order,
		Comm:         cm,
		Strategy:     strategy,
		MaxGroupSize: c.Partition.MaxGroupSize,
		Verbose:      c.Verbose,
	}, nil
}

// WaveSpeed bounds the convective speed of the configured law.
func (c *Config) WaveSpeed() float64 {
	v := vec3(c.Law.Velocity)
	speed := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if c.Law.Kind == "burgers" {
		speed *= math.Max(c.Initial.MaxValue(), 1e-12)
	}
	return speed
}

// TimeStep is the configured dt, or CFL·h/(speed + ν/h) over the smallest
// element of m, where h is that size divided by 2N+1.
func (c *Config) TimeStep(m *mesh.Mesh) (float64, error) {
	if c.Time.Dt > 0 {
		return c.Time.Dt, nil
	}
	hMin := math.Inf(1)
	for k := 0; k < m.NumElements(); k++ {
		hMin = math.Min(hMin, m.ElementSize(k))
	}
	h := hMin / float64(2*c.Order+1)
	rate := c.WaveSpeed()/h + c.Law.Diffusion/(h*h)
	if rate <= 0 || math.IsInf(hMin, 1) {
		return 0, invalid("cannot derive a time step from cfl without a wave speed or diffusion")
	}
	return c.Time.CFL / rate, nil
}

// Integrator creates the configured time integrator.
func (c *Config) Integrator() (solver.Integrator, error) {
	in, err := solver.NewIntegrator(c.Time.Integrator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return in, nil
}
