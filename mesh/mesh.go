package mesh

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/notargets/DGSolver/element"
)

var (
	ErrBadMesh     = errors.New("mesh: invalid mesh")
	ErrNonManifold = errors.New("mesh: face shared by more than two elements")
)

// DefaultBoundaryTag is given to boundary faces that were never classified.
const DefaultBoundaryTag = "boundary"

// Element is one cell of the mesh.
type Element struct {
	Type      element.ElementGeometry
	Vertices  []int
	Partition int // -1 when the mesh carries no partitioning
}

// BoundaryFace classifies a boundary face, given by its vertices, with a tag.
type BoundaryFace struct {
	Vertices []int
	Tag      string
}

// Mesh is the geometric collaborator of the solver: vertex coordinates,
// element connectivity and boundary classification.
type Mesh struct {
	Dim        int
	Vertices   [][3]float64
	Elements   []Element
	Boundaries []BoundaryFace
}

func (m *Mesh) NumElements() int { return len(m.Elements) }

// Validate checks vertex references and element dimensions.
func (m *Mesh) Validate() error {
	if m.Dim < 1 || m.Dim > 3 {
		return fmt.Errorf("%w: dimension %d", ErrBadMesh, m.Dim)
	}
	for k, el := range m.Elements {
		if int(el.Type.Dimensions()) != m.Dim {
			return fmt.Errorf("%w: element %d is a %s in a %dD mesh", ErrBadMesh, k, el.Type, m.Dim)
		}
		if len(el.Vertices) != el.Type.NumVertices() {
			return fmt.Errorf("%w: element %d has %d vertices, want %d", ErrBadMesh, k, len(el.Vertices), el.Type.NumVertices())
		}
		for _, v := range el.Vertices {
			if v < 0 || v >= len(m.Vertices) {
				return fmt.Errorf("%w: element %d references vertex %d", ErrBadMesh, k, v)
			}
		}
	}
	return nil
}

// Coordinates returns the vertex coordinates of element k.
func (m *Mesh) Coordinates(k int) [][3]float64 {
	el := m.Elements[k]
	xs := make([][3]float64, len(el.Vertices))
	for i, v := range el.Vertices {
		xs[i] = m.Vertices[v]
	}
	return xs
}

// Centroid returns the vertex average of element k.
func (m *Mesh) Centroid(k int) [3]float64 {
	return centroid(m.Coordinates(k))
}

func centroid(xs [][3]float64) (c [3]float64) {
	for _, x := range xs {
		for d := 0; d < 3; d++ {
			c[d] += x[d] / float64(len(xs))
		}
	}
	return
}

// ElementSize returns the shortest edge of element k.
func (m *Mesh) ElementSize(k int) float64 {
	xs := m.Coordinates(k)
	h := math.Inf(1)
	for i := 0; i < len(xs); i++ {
		for j := i + 1; j < len(xs); j++ {
			h = math.Min(h, dist(xs[i], xs[j]))
		}
	}
	return h
}

func dist(a, b [3]float64) float64 {
	return math.Sqrt((a[0]-b[0])*(a[0]-b[0]) + (a[1]-b[1])*(a[1]-b[1]) + (a[2]-b[2])*(a[2]-b[2]))
}

// SignedMeasure returns the signed length, area or volume of element k in
// the mesh's own dimension.
func (m *Mesh) SignedMeasure(k int) float64 {
	xs := m.Coordinates(k)
	switch m.Elements[k].Type {
	case element.Line:
		return xs[1][0] - xs[0][0]
	case element.Tri:
		return 0.5 * ((xs[1][0]-xs[0][0])*(xs[2][1]-xs[0][1]) - (xs[2][0]-xs[0][0])*(xs[1][1]-xs[0][1]))
	case element.Tet:
		a, b, c := sub(xs[1], xs[0]), sub(xs[2], xs[0]), sub(xs[3], xs[0])
		return (a[0]*(b[1]*c[2]-b[2]*c[1]) - a[1]*(b[0]*c[2]-b[2]*c[0]) + a[2]*(b[0]*c[1]-b[1]*c[0])) / 6
	}
	return 0
}

func sub(a, b [3]float64) [3]float64 { return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

// Orient renumbers inverted elements so that every signed measure is
// positive, and returns how many were flipped.
func (m *Mesh) Orient() int {
	flipped := 0
	for k := range m.Elements {
		if m.SignedMeasure(k) >= 0 {
			continue
		}
		v := m.Elements[k].Vertices
		if m.Elements[k].Type == element.Line {
			v[0], v[1] = v[1], v[0]
		} else {
			v[1], v[2] = v[2], v[1]
		}
		flipped++
	}
	return flipped
}

type faceKey [3]int

func keyOf(verts []int) faceKey {
	k := faceKey{-1, -1, -1}
	s := append([]int(nil), verts...)
	sort.Ints(s)
	copy(k[:], s)
	return k
}

// FaceVertices returns the global vertices of face f of element k, in the
// element's local face order.
func (m *Mesh) FaceVertices(k, f int) []int {
	el := m.Elements[k]
	local := el.Type.Faces()[f]
	out := make([]int, len(local))
	for i, lv := range local {
		out[i] = el.Vertices[lv]
	}
	return out
}

// Connectivity holds element-to-element and element-to-face maps. A face
// whose neighbor is the element itself is a boundary face, as in EToE of
// nodal DG codes.
type Connectivity struct {
	EToE [][]int
	EToF [][]int
	// Tags classifies every boundary face, keyed by element and face.
	Tags map[[2]int]string
}

// IsBoundary reports whether face f of element k lies on the boundary.
func (c *Connectivity) IsBoundary(k, f int) bool { return c.EToE[k][f] == k && c.EToF[k][f] == f }

// Connectivity matches faces by their sorted vertex sets.
func (m *Mesh) Connectivity() (*Connectivity, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	type side struct{ k, f int }
	shared := make(map[faceKey][]side)
	c := &Connectivity{
		EToE: make([][]int, len(m.Elements)),
		EToF: make([][]int, len(m.Elements)),
		Tags: make(map[[2]int]string),
	}
	for k, el := range m.Elements {
		nf := el.Type.NumFaces()
		c.EToE[k] = make([]int, nf)
		c.EToF[k] = make([]int, nf)
		for f := 0; f < nf; f++ {
			c.EToE[k][f], c.EToF[k][f] = k, f
			key := keyOf(m.FaceVertices(k, f))
			shared[key] = append(shared[key], side{k, f})
		}
	}
	tags := make(map[faceKey]string, len(m.Boundaries))
	for _, b := range m.Boundaries {
		tags[keyOf(b.Vertices)] = b.Tag
	}
	for key, sides := range shared {
		switch len(sides) {
		case 1:
			tag, ok := tags[key]
			if !ok {
				tag = DefaultBoundaryTag
			}
			c.Tags[[2]int{sides[0].k, sides[0].f}] = tag
		case 2:
			a, b := sides[0], sides[1]
			c.EToE[a.k][a.f], c.EToF[a.k][a.f] = b.k, b.f
			c.EToE[b.k][b.f], c.EToF[b.k][b.f] = a.k, a.f
		default:
			return nil, fmt.Errorf("%w: %d elements share face %v", ErrNonManifold, len(sides), key)
		}
	}
	return c, nil
}

// TagBoundaries classifies every boundary face with classify, which receives
// the face centroid. Existing classifications are replaced.
func (m *Mesh) TagBoundaries(classify func(centroid [3]float64) string) error {
	saved := m.Boundaries
	m.Boundaries = nil
	conn, err := m.Connectivity()
	if err != nil {
		m.Boundaries = saved
		return err
	}
	keys := make([][2]int, 0, len(conn.Tags))
	for kf := range conn.Tags {
		keys = append(keys, kf)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, kf := range keys {
		verts := m.FaceVertices(kf[0], kf[1])
		xs := make([][3]float64, len(verts))
		for i, v := range verts {
			xs[i] = m.Vertices[v]
		}
		m.Boundaries = append(m.Boundaries, BoundaryFace{Vertices: verts, Tag: classify(centroid(xs))})
	}
	return nil
}

// BoundaryTags lists the distinct tags of the boundary faces, sorted.
func (c *Connectivity) BoundaryTags() []string {
	set := map[string]struct{}{}
	for _, t := range c.Tags {
		set[t] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
