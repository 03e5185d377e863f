package group

import (
	"errors"
	"fmt"
	"testing"

	"github.com/notargets/DGSolver/element"
	"github.com/notargets/DGSolver/mesh"
	"github.com/notargets/DGSolver/partitions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func buildCollection(t *testing.T, m *mesh.Mesh, eToP []int, rank int, opts Options) *Collection {
	t.Helper()
	conn, err := m.Connectivity()
	require.NoError(t, err)
	if eToP == nil {
		eToP = make([]int, m.NumElements())
	}
	layout, err := partitions.NewLayout(eToP, nil)
	require.NoError(t, err)
	c, err := Build(m, conn, layout, rank, opts)
	require.NoError(t, err)
	return c
}

func testMeshes(t *testing.T) map[string]*mesh.Mesh {
	line, err := mesh.NewLine(3, 0, 1.5)
	require.NoError(t, err)
	rect, err := mesh.NewRectangle(2, 2, 0, 2, -1, 1)
	require.NoError(t, err)
	box, err := mesh.NewBox(1, 1, 1, [3]float64{}, [3]float64{1, 2, 1})
	require.NoError(t, err)
	return map[string]*mesh.Mesh{"line": line, "rectangle": rect, "box": box}
}

func TestElementGroup_Geometry(t *testing.T) {
	measures := map[string]float64{"line": 1.5, "rectangle": 4, "box": 2}
	for name, m := range testMeshes(t) {
		for order := 0; order <= 2; order++ {
			t.Run(fmt.Sprintf("%s%d", name, order), func(t *testing.T) {
				c := buildCollection(t, m, nil, 0, Options{Order: order})
				require.Len(t, c.Groups, 1)
				g := c.Groups[0]
				assert.Equal(t, m.NumElements(), g.Len())

				var total float64
				for e := range g.Elements {
					total += floats.Dot(g.Ref.Rule.Weights, g.DetJ[e].RawMatrix().Data)
					// mass matrix integrates the constant one to the volume
					one := mat.NewVecDense(g.Np(), nil)
					for i := 0; i < g.Np(); i++ {
						one.SetVec(i, 1)
					}
					var m1 mat.VecDense
					m1.MulVec(g.Mass[e], one)
					assert.InDelta(t, g.Volume[e], mat.Sum(&m1), 1e-12)

					var id mat.Dense
					id.Mul(g.MassInv[e], g.Mass[e])
					assert.True(t, mat.EqualApprox(&id, mat.NewDiagDense(g.Np(), ones(g.Np())), 1e-9))
				}
				assert.InDelta(t, measures[name], total, 1e-12)
			})
		}
	}
}

func ones(n int) []float64 {
	o := make([]float64, n)
	for i := range o {
		o[i] = 1
	}
	return o
}

func TestElementGroup_GradientOfLinearField(t *testing.T) {
	m := testMeshes(t)["box"]
	c := buildCollection(t, m, nil, 0, Options{Order: 1})
	g := c.Groups[0]
	grad := [3]float64{1.5, -2, 0.25}
	for e := range g.Elements {
		u := mat.NewVecDense(g.Np(), nil)
		for i := 0; i < g.Np(); i++ {
			x := g.NodeCoords[e].RawRowView(i)
			u.SetVec(i, 3+floats.Dot(grad[:], x))
		}
		for q := 0; q < g.NumPoints(); q++ {
			jinv := g.Jinv[e].RawRowView(q)
			for x := 0; x < 3; x++ {
				var v float64
				for d := 0; d < 3; d++ {
					v += jinv[3*d+x] * mat.Dot(g.GradCollocation[d].RowView(q), u)
				}
				assert.InDelta(t, grad[x], v, 1e-11)
			}
		}
	}
}

func TestElementGroup_Degenerate(t *testing.T) {
	m := &mesh.Mesh{
		Dim:      2,
		Vertices: [][3]float64{{0, 0}, {1, 0}, {2, 0}, {0, 1}},
		Elements: []mesh.Element{{Type: element.Tri, Vertices: []int{0, 1, 2}}},
	}
	_, err := NewElementGroup(0, m, []int{0}, Options{Order: 1})
	assert.True(t, errors.Is(err, ErrDegenerateElement))

	m.Elements[0].Vertices = []int{0, 3, 1}
	_, err = NewElementGroup(0, m, []int{0}, Options{Order: 1})
	assert.True(t, errors.Is(err, ErrDegenerateElement), "inverted element accepted")
}

func TestFaceGroups_ClosedSurfaces(t *testing.T) {
	for name, m := range testMeshes(t) {
		t.Run(name, func(t *testing.T) {
			c := buildCollection(t, m, nil, 0, Options{Order: 1})
			g := c.Groups[0]

			// Σ_faces ∫ n dS vanishes for every element
			sums := make([][3]float64, g.Len())
			accumulate := func(fg *FaceGroup, i, e int, sign float64) {
				for q, w := range fg.Weights {
					n := fg.Normals[i].RawRowView(q)
					for x := 0; x < 3; x++ {
						sums[e][x] += sign * w * fg.DetJ[i].At(q, 0) * n[x]
					}
				}
			}
			for _, fg := range c.Interfaces {
				for i, f := range fg.Faces {
					accumulate(fg, i, f.Left, 1)
					accumulate(fg, i, f.Right, -1)

					// both closures see the same physical points
					kr := fg.Right.Elements[f.Right]
					for q, xi := range fg.RightClosure(i).Points {
						assert.InDeltaSlice(t, fg.Points[i].RawRowView(q),
							MapPoint(fg.Right.Type(), m.Coordinates(kr), xi), 1e-12)
					}
					// normals point from left to right
					cl, cr := m.Centroid(fg.Left.Elements[f.Left]), m.Centroid(kr)
					d := [3]float64{cr[0] - cl[0], cr[1] - cl[1], cr[2] - cl[2]}
					n := fg.Normals[i].RawRowView(0)
					assert.Greater(t, d[0]*n[0]+d[1]*n[1]+d[2]*n[2], 0.0)
				}
			}
			for _, fg := range c.Boundaries {
				assert.NotEmpty(t, fg.Tag)
				for i, f := range fg.Faces {
					accumulate(fg, i, f.Left, 1)
				}
			}
			for e := range sums {
				assert.InDeltaSlice(t, []float64{0, 0, 0}, sums[e][:], 1e-12, "element %d", e)
			}
		})
	}
}

func TestBuild_TwoPartitions(t *testing.T) {
	m, err := mesh.NewRectangle(2, 1, 0, 2, 0, 1)
	require.NoError(t, err)
	// elements 0,1 in the left cell, 2,3 in the right cell
	eToP := []int{0, 0, 1, 1}
	for rank := 0; rank < 2; rank++ {
		c := buildCollection(t, m, eToP, rank, Options{Order: 2, MaxGroupSize: 1})
		assert.Len(t, c.Groups, 2)
		assert.Equal(t, 2, c.NumOwned())
		require.Len(t, c.Ghosts, 1)
		assert.True(t, c.Ghosts[0].Ghost)

		faces := 0
		for _, fg := range c.Interfaces {
			assert.False(t, fg.Left.Ghost)
			faces += fg.Len()
		}
		// one owned-owned diagonal and one owned-ghost edge
		assert.Equal(t, 2, faces)
		for k, owner := range c.GhostOwners {
			assert.Equal(t, 1-rank, owner)
			_, _, ok := c.Locate(k)
			assert.True(t, ok)
		}
	}
	assert.Equal(t, []string{"bottom", "left", "top"}, buildCollection(t, m, eToP, 0, Options{Order: 1}).Tags())
}
