package solver

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/notargets/DGSolver/cache"
	"github.com/notargets/DGSolver/comm"
	"github.com/notargets/DGSolver/dof"
	"github.com/notargets/DGSolver/element"
	"github.com/notargets/DGSolver/group"
	"github.com/notargets/DGSolver/law"
	"github.com/notargets/DGSolver/mesh"
	"github.com/notargets/DGSolver/partitions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func collection(t *testing.T, m *mesh.Mesh, eToP []int, rank int, opts group.Options) *group.Collection {
	t.Helper()
	conn, err := m.Connectivity()
	require.NoError(t, err)
	if eToP == nil {
		eToP = make([]int, m.NumElements())
	}
	layout, err := partitions.NewLayout(eToP, nil)
	require.NoError(t, err)
	col, err := group.Build(m, conn, layout, rank, opts)
	require.NoError(t, err)
	return col
}

func withBoundaries(b *law.Base, m *mesh.Mesh, bc law.BoundaryCondition) {
	conn, _ := m.Connectivity()
	for _, tag := range conn.BoundaryTags() {
		b.SetBoundary(tag, bc)
	}
}

// wiggle fills the owned values with a deterministic pattern.
func wiggle(U *dof.Container) {
	for i := range U.Owned() {
		U.Owned()[i] = math.Sin(1.3*float64(i)) + 0.5
	}
}

func setup(t *testing.T, col *group.Collection, l law.ConservationLaw) (*Algorithm, *dof.Container, *dof.Container) {
	t.Helper()
	a, err := NewAlgorithm(col, l)
	require.NoError(t, err)
	U, err := dof.New(col, l.NumFields(), nil)
	require.NoError(t, err)
	return a, U, U.NewLike()
}

func testMeshes(t *testing.T) map[string]*mesh.Mesh {
	line, err := mesh.NewLine(4, 0, 1)
	require.NoError(t, err)
	rect, err := mesh.NewRectangle(3, 2, 0, 1.5, 0, 1)
	require.NoError(t, err)
	box, err := mesh.NewBox(2, 1, 1, [3]float64{}, [3]float64{2, 1, 1})
	require.NoError(t, err)
	return map[string]*mesh.Mesh{"line": line, "rectangle": rect, "box": box}
}

func TestResidual_AbsentTermsAreExactlyZero(t *testing.T) {
	for name, m := range testMeshes(t) {
		t.Run(name, func(t *testing.T) {
			b := &law.Base{Fields: 2}
			withBoundaries(b, m, law.ZeroFlux())
			col := collection(t, m, nil, 0, group.Options{Order: 2, MaxGroupSize: 3})
			a, U, R := setup(t, col, b)
			wiggle(U)
			require.NoError(t, a.Residual(U, R))
			for _, v := range R.Owned() {
				assert.Equal(t, 0.0, v)
			}
			assert.Equal(t, Accumulated, a.State())
		})
	}
}

func TestMassRoundTrip(t *testing.T) {
	m := &mesh.Mesh{
		Dim:      2,
		Vertices: [][3]float64{{0.1, 0}, {1.3, 0.2}, {0.4, 0.9}},
		Elements: []mesh.Element{{Type: element.Tri, Vertices: []int{0, 1, 2}}},
	}
	for order := 0; order <= 3; order++ {
		col := collection(t, m, nil, 0, group.Options{Order: order})
		b := &law.Base{Fields: 3}
		withBoundaries(b, m, law.ZeroFlux())
		a, U, MU := setup(t, col, b)
		wiggle(U)
		require.NoError(t, a.MultMassMatrix(U, MU))
		out := U.NewLike()
		require.NoError(t, a.MultAddInverseMassMatrix(MU, out, 1))
		assert.InDeltaSlice(t, U.Owned(), out.Owned(), 1e-12, "order %d", order)

		err := a.MultMassMatrix(U, U)
		assert.True(t, errors.Is(err, ErrAliasedBuffers))
	}
}

func TestResidualVolume_CentroidSource(t *testing.T) {
	m, err := mesh.NewRectangle(1, 1, 0, 1, 0, 1)
	require.NoError(t, err)
	col := collection(t, m, nil, 0, group.Options{Order: 1})
	g := col.Groups[0]
	require.Equal(t, 2, g.Len())

	center := [3]float64{0.3, 0.6, 0}
	pulse := func(k int) float64 { return law.GaussianValue(m.Centroid(k), center, 0.25, 2) }
	source := cache.NewFunc("centroid-source", 1, []cache.Dependency{cache.OnToken(cache.Element)},
		func(ev cache.Eval, out *mat.Dense) error {
			v := pulse(g.Elements[ev.Element()])
			for q := 0; q < ev.NumPoints(); q++ {
				out.Set(q, 0, v)
			}
			return nil
		})
	adv := law.NewAdvection(law.AdvectionOptions{Velocity: [3]float64{1, 1, 1}, Source: source})
	withBoundaries(&adv.Base, m, law.ZeroFlux())

	a, U, R := setup(t, col, adv)
	require.NoError(t, a.ResidualVolume(U, R))
	du := U.NewLike()
	require.NoError(t, a.MultAddInverseMassMatrix(R, du, 1))
	for e, k := range g.Elements {
		v := du.ElementView(g, e)
		for i := 0; i < g.Np(); i++ {
			assert.InDelta(t, pulse(k), v.At(i, 0), 1e-13, "element %d node %d", k, i)
		}
	}
}

func TestResidual_PassOrder(t *testing.T) {
	m := testMeshes(t)["rectangle"]
	col := collection(t, m, nil, 0, group.Options{Order: 1})
	adv := law.NewAdvection(law.AdvectionOptions{Velocity: [3]float64{1, 0, 0}})
	withBoundaries(&adv.Base, m, law.Symmetry())
	a, U, R := setup(t, col, adv)

	assert.True(t, errors.Is(a.ResidualInterface(U, R), ErrBadState))
	require.NoError(t, a.ResidualVolume(U, R))
	assert.Equal(t, VolumePass, a.State())
	assert.True(t, errors.Is(a.ResidualVolume(U, R), ErrBadState))
	assert.True(t, errors.Is(a.Residual(U, R), ErrBadState))
	require.NoError(t, a.ResidualInterface(U, R))
	require.NoError(t, a.ResidualBoundary(U, R))
	assert.Equal(t, Accumulated, a.State())

	assert.True(t, errors.Is(a.Residual(U, U), ErrAliasedBuffers))
	require.NoError(t, a.Residual(U, R))

	_, err := NewAlgorithm(col, nil)
	assert.True(t, errors.Is(err, ErrNoLaw))
	_, err = NewAlgorithm(col, &law.Base{Fields: 1})
	assert.True(t, errors.Is(err, law.ErrUnknownBoundaryTag))
}

func TestResidual_ConservesWithClosedBoundaries(t *testing.T) {
	for name, m := range testMeshes(t) {
		for order := 1; order <= 2; order++ {
			t.Run(fmt.Sprintf("%s%d", name, order), func(t *testing.T) {
				adv := law.NewAdvection(law.AdvectionOptions{
					Fields:    2,
					Velocity:  [3]float64{1, -0.5, 0.25},
					Diffusion: 0.1,
				})
				withBoundaries(&adv.Base, m, law.ZeroFlux())
				col := collection(t, m, nil, 0, group.Options{Order: order, MaxGroupSize: 4})
				a, U, R := setup(t, col, adv)
				wiggle(U)
				require.NoError(t, a.Residual(U, R))
				norm, err := R.Norm()
				require.NoError(t, err)
				assert.Greater(t, norm, 1e-3)
				// Σ_i φ_i = 1, so the total of each field is what crosses the boundary
				assert.InDelta(t, 0, floats.Sum(R.Owned()), 1e-12)
			})
		}
	}
}

func TestResidual_PreservesUniformState(t *testing.T) {
	for name, m := range testMeshes(t) {
		t.Run(name, func(t *testing.T) {
			adv := law.NewAdvection(law.AdvectionOptions{Velocity: [3]float64{0.7, -1, 0.4}, Diffusion: 0.2})
			withBoundaries(&adv.Base, m, law.OutsideValue(law.Constant("far", 3)))
			col := collection(t, m, nil, 0, group.Options{Order: 2})
			a, U, R := setup(t, col, adv)
			require.NoError(t, a.Project(law.Constant("uniform", 3), U))
			for _, v := range U.Owned() {
				require.InDelta(t, 3, v, 1e-12)
			}
			require.NoError(t, a.Residual(U, R))
			for _, v := range R.Owned() {
				assert.InDelta(t, 0, v, 1e-12)
			}
		})
	}
}

func TestResidual_TwoRanksMatchSerial(t *testing.T) {
	m, err := mesh.NewRectangle(3, 2, 0, 3, 0, 2)
	require.NoError(t, err)
	adv := law.NewAdvection(law.AdvectionOptions{Velocity: [3]float64{1, 0.5, 0}, Diffusion: 0.05})
	withBoundaries(&adv.Base, m, law.OutsideValue(law.Constant("far", 0.5)))
	initial := law.Pointwise("initial", 1, func(x [3]float64, out []float64) {
		out[0] = math.Sin(x[0]) * math.Cos(2*x[1])
	})
	opts := group.Options{Order: 2, MaxGroupSize: 5}

	serial := collection(t, m, nil, 0, opts)
	a, U, R := setup(t, serial, adv)
	require.NoError(t, a.Project(initial, U))
	require.NoError(t, a.Residual(U, R))

	eToP := make([]int, m.NumElements())
	for k := range eToP {
		if m.Centroid(k)[0] > 1.5 {
			eToP[k] = 1
		}
	}
	cols := []*group.Collection{collection(t, m, eToP, 0, opts), collection(t, m, eToP, 1, opts)}
	results := make([]*dof.Container, 2)
	world := comm.NewWorld(2)
	err = world.Run(func(cm comm.Communicator) error {
		col := cols[cm.Rank()]
		a, err := NewAlgorithm(col, adv)
		if err != nil {
			return err
		}
		U, err := dof.New(col, 1, cm)
		if err != nil {
			return err
		}
		R := U.NewLike()
		if err := a.Project(initial, U); err != nil {
			return err
		}
		if err := a.Residual(U, R); err != nil {
			return err
		}
		results[cm.Rank()] = R
		return nil
	})
	require.NoError(t, err)

	for rank, col := range cols {
		for _, g := range col.Groups {
			for e, k := range g.Elements {
				sg, se, ok := serial.Locate(k)
				require.True(t, ok)
				want := R.ElementView(sg, se)
				got := results[rank].ElementView(g, e)
				assert.True(t, mat.EqualApprox(want, got, 1e-12), "element %d on rank %d", k, rank)
			}
		}
	}
}

func TestNewSystem_PresetPartitions(t *testing.T) {
	m, err := mesh.NewLine(4, 0, 1)
	require.NoError(t, err)
	for k := range m.Elements {
		m.Elements[k].Partition = 1 - k/2
	}
	world := comm.NewWorld(2)
	s, err := NewSystem(m, Options{Comm: world.Rank(0)})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 0, 0}, s.Layout.EToP)

	// a single rank cannot use two stored partitions
	s, err = NewSystem(m, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0}, s.Layout.EToP)
}
