package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/notargets/DGSolver/law"
	"github.com/notargets/DGSolver/partitions"
	"github.com/notargets/DGSolver/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pulse = `
mesh:
  generator: rectangle
  divisions: [4, 2]
  lower: [0, 0]
  upper: [2, 1]
order: 2
partition:
  strategy: morton
  max_group_size: 6
law:
  kind: advection
  velocity: [1, 0.5, 0]
  diffusion: 0.01
initial:
  kind: gaussian
  center: [0.5, 0.5, 0]
  width: 0.2
boundaries:
  left: {kind: outside-value, value: [0]}
  bottom: {kind: outside-value, value: [0]}
  right: {kind: transmissive}
  top: {kind: interior-solution}
time:
  integrator: multirate-rk3
  cfl: 0.2
  final_time: 0.05
`

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte(pulse))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Law.Fields)
	assert.Equal(t, 1.0, c.Initial.Amplitude)
	assert.Equal(t, 100, c.Time.ReportEvery)
	assert.Equal(t, []float64{2, 1}, c.Mesh.Upper)

	c, err = Parse([]byte(`
mesh: {generator: line, divisions: [8]}
law: {kind: burgers}
initial: {value: [0.5]}
time: {final_time: 1}
`))
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, c.Mesh.Upper)
	assert.Equal(t, []float64{1, 1, 1}, c.Law.Velocity)
	assert.Equal(t, "constant", c.Initial.Kind)
	assert.Equal(t, "rk44", c.Time.Integrator)
	assert.Equal(t, 0.1, c.Time.CFL)
}

func TestParse_Invalid(t *testing.T) {
	base := "law: {kind: advection}\ntime: {final_time: 1}\n"
	line := "mesh: {generator: line, divisions: [4]}\n"
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", line + base + "colour: red\n"},
		{"no mesh", base},
		{"both mesh sources", "mesh: {file: a.neu, generator: line, divisions: [4]}\n" + base},
		{"divisions", "mesh: {generator: box, divisions: [4, 4]}\n" + base},
		{"extent", "mesh: {generator: line, divisions: [4], lower: [1], upper: [0]}\n" + base},
		{"law", line + "law: {kind: euler}\ntime: {final_time: 1}\n"},
		{"burgers fields", line + "law: {kind: burgers, fields: 2}\ntime: {final_time: 1}\n"},
		{"initial values", line + base + "initial: {value: [1, 2]}\n"},
		{"gaussian width", line + base + "initial: {kind: gaussian}\n"},
		{"boundary kind", line + base + "boundaries: {left: {kind: wall}}\n"},
		{"outside values", line + base + "boundaries: {left: {kind: outside-value}}\n"},
		{"final time", line + "law: {kind: advection}\n"},
		{"integrator", line + "law: {kind: advection}\ntime: {final_time: 1, integrator: leapfrog}\n"},
		{"strategy", line + base + "partition: {strategy: metis}\n"},
		{"order", line + base + "order: -1\n"},
		{"bounds", "mesh: {generator: rectangle, divisions: [2, 2], upper: [1]}\n" + base},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.True(t, errors.Is(err, ErrInvalidConfig), "%v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(pulse), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "multirate-rk3", c.Time.Integrator)

	data, err := c.Marshal()
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, c, again)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuilders(t *testing.T) {
	c, err := Parse([]byte(pulse))
	require.NoError(t, err)

	m, err := c.BuildMesh()
	require.NoError(t, err)
	assert.Equal(t, 16, m.NumElements())

	l, err := c.BuildLaw()
	require.NoError(t, err)
	conn, err := m.Connectivity()
	require.NoError(t, err)
	require.NoError(t, law.CheckBoundaries(l, conn.BoundaryTags()))
	bc, err := l.Boundary("left")
	require.NoError(t, err)
	assert.Equal(t, law.KindOutsideValue, bc.Kind)
	bc, err = l.Boundary("top")
	require.NoError(t, err)
	assert.Equal(t, law.KindInteriorSolution, bc.Kind)
	bc, err = l.Boundary("right")
	require.NoError(t, err)
	assert.Equal(t, law.KindTransmissive, bc.Kind)

	opts, err := c.SolverOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, partitions.SpaceFillingCurve, opts.Strategy)
	assert.Equal(t, 6, opts.MaxGroupSize)

	in, err := c.Integrator()
	require.NoError(t, err)
	assert.IsType(t, &solver.MultirateRK3{}, in)
}

func TestTimeStep(t *testing.T) {
	c, err := Parse([]byte(`
mesh: {generator: line, divisions: [4]}
order: 1
law: {kind: advection, velocity: [1, 0, 0]}
time: {final_time: 1, cfl: 0.3}
`))
	require.NoError(t, err)
	m, err := c.BuildMesh()
	require.NoError(t, err)
	dt, err := c.TimeStep(m)
	require.NoError(t, err)
	// h = 0.25/3, dt = 0.3·h/1
	assert.InDelta(t, 0.025, dt, 1e-15)

	c.Law.Velocity = nil
	_, err = c.TimeStep(m)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	c.Time.Dt = 1e-3
	dt, err = c.TimeStep(m)
	require.NoError(t, err)
	assert.Equal(t, 1e-3, dt)
}

func TestRun(t *testing.T) {
	c, err := Parse([]byte(pulse))
	require.NoError(t, err)
	m, err := c.BuildMesh()
	require.NoError(t, err)
	l, err := c.BuildLaw()
	require.NoError(t, err)
	opts, err := c.SolverOptions(nil)
	require.NoError(t, err)
	s, err := solver.NewSystem(m, opts)
	require.NoError(t, err)
	s.AttachLaw(l)
	require.NoError(t, s.Setup())
	require.NoError(t, s.L2Projection(c.InitialCondition()))

	in, err := c.Integrator()
	require.NoError(t, err)
	dt, err := c.TimeStep(m)
	require.NoError(t, err)
	for s.Time() < c.Time.FinalTime-1e-12 {
		_, err := s.Step(in, min(dt, c.Time.FinalTime-s.Time()))
		require.NoError(t, err)
	}
	assert.InDelta(t, c.Time.FinalTime, s.Time(), 1e-12)
	norm, err := s.Solution().Norm()
	require.NoError(t, err)
	assert.Greater(t, norm, 0.0)
}
