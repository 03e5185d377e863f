package mesh

import (
	"errors"
	"testing"

	"github.com/notargets/DGSolver/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countTags(c *Connectivity) map[string]int {
	out := map[string]int{}
	for _, t := range c.Tags {
		out[t]++
	}
	return out
}

func TestGenerators(t *testing.T) {
	tests := []struct {
		name     string
		build    func() (*Mesh, error)
		elements int
		measure  float64
		tags     map[string]int
	}{
		{
			name:     "line",
			build:    func() (*Mesh, error) { return NewLine(5, -1, 2) },
			elements: 5,
			measure:  3,
			tags:     map[string]int{"left": 1, "right": 1},
		},
		{
			name:     "rectangle",
			build:    func() (*Mesh, error) { return NewRectangle(3, 2, 0, 3, 0, 1) },
			elements: 12,
			measure:  3,
			tags:     map[string]int{"left": 2, "right": 2, "bottom": 3, "top": 3},
		},
		{
			name:     "box",
			build:    func() (*Mesh, error) { return NewBox(2, 1, 1, [3]float64{}, [3]float64{2, 1, 1}) },
			elements: 12,
			measure:  2,
			tags: map[string]int{
				"xmin": 2, "xmax": 2, "ymin": 4, "ymax": 4, "zmin": 4, "zmax": 4,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.build()
			require.NoError(t, err)
			require.NoError(t, m.Validate())
			assert.Equal(t, tt.elements, m.NumElements())

			var total float64
			for k := range m.Elements {
				v := m.SignedMeasure(k)
				assert.Greater(t, v, 0.0, "element %d inverted", k)
				total += v
			}
			assert.InDelta(t, tt.measure, total, 1e-12)

			conn, err := m.Connectivity()
			require.NoError(t, err)
			assert.Equal(t, tt.tags, countTags(conn))

			// neighbor relations are symmetric
			for k := range conn.EToE {
				for f, j := range conn.EToE[k] {
					if conn.IsBoundary(k, f) {
						continue
					}
					g := conn.EToF[k][f]
					assert.Equal(t, k, conn.EToE[j][g])
					assert.Equal(t, f, conn.EToF[j][g])
				}
			}
		})
	}
}

func TestOrient(t *testing.T) {
	m := &Mesh{
		Dim:      2,
		Vertices: [][3]float64{{0, 0}, {1, 0}, {0, 1}},
		Elements: []Element{{Type: element.Tri, Vertices: []int{0, 2, 1}}},
	}
	assert.Less(t, m.SignedMeasure(0), 0.0)
	assert.Equal(t, 1, m.Orient())
	assert.InDelta(t, 0.5, m.SignedMeasure(0), 1e-15)
	assert.Equal(t, 0, m.Orient())
}

func TestConnectivity_Errors(t *testing.T) {
	m := &Mesh{
		Dim:      1,
		Vertices: [][3]float64{{0}, {1}, {2}, {3}},
		Elements: []Element{
			{Type: element.Line, Vertices: []int{0, 1}},
			{Type: element.Line, Vertices: []int{1, 2}},
			{Type: element.Line, Vertices: []int{3, 1}},
		},
	}
	_, err := m.Connectivity()
	assert.True(t, errors.Is(err, ErrNonManifold))

	m.Elements[2].Vertices = []int{3, 9}
	_, err = m.Connectivity()
	assert.True(t, errors.Is(err, ErrBadMesh))

	m.Elements[2] = Element{Type: element.Tri, Vertices: []int{0, 1, 2}}
	assert.True(t, errors.Is(m.Validate(), ErrBadMesh))
}

func TestUntaggedBoundaryUsesDefault(t *testing.T) {
	m, err := NewLine(2, 0, 1)
	require.NoError(t, err)
	m.Boundaries = nil
	conn, err := m.Connectivity()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultBoundaryTag}, conn.BoundaryTags())

	require.NoError(t, m.TagBoundaries(func(c [3]float64) string {
		if c[0] < 0.5 {
			return "inflow"
		}
		return "outflow"
	}))
	conn, err = m.Connectivity()
	require.NoError(t, err)
	assert.Equal(t, []string{"inflow", "outflow"}, conn.BoundaryTags())
}

func TestCentroidAndSize(t *testing.T) {
	m, err := NewRectangle(1, 1, 0, 2, 0, 1)
	require.NoError(t, err)
	c := m.Centroid(0)
	assert.InDelta(t, 4.0/3.0, c[0], 1e-15)
	assert.InDelta(t, 1.0/3.0, c[1], 1e-15)
	assert.InDelta(t, 1.0, m.ElementSize(0), 1e-15)
}
