package group

import (
	"fmt"
	"sort"

	"github.com/notargets/DGSolver/mesh"
	"github.com/notargets/DGSolver/partitions"
)

// Collection is everything one rank assembles: its owned element groups,
// ghost copies of neighboring elements owned elsewhere, and the face groups
// connecting them.
type Collection struct {
	Rank       int
	Layout     *partitions.PartitionLayout
	Topology   *partitions.MeshConnectivity
	Groups     []*ElementGroup // owned
	Ghosts     []*ElementGroup
	Interfaces []*FaceGroup
	Boundaries []*FaceGroup

	// GhostOwners maps each ghost element to its owning partition
	GhostOwners map[int]int

	locate map[int]location
}

type location struct {
	group    *ElementGroup
	position int
}

// Locate finds the group and position holding global element k.
func (c *Collection) Locate(k int) (*ElementGroup, int, bool) {
	l, ok := c.locate[k]
	return l.group, l.position, ok
}

// NumOwned is the number of elements owned by the rank.
func (c *Collection) NumOwned() int {
	n := 0
	for _, g := range c.Groups {
		n += g.Len()
	}
	return n
}

// Tags lists the boundary tags seen by this rank.
func (c *Collection) Tags() []string {
	seen := map[string]bool{}
	var out []string
	for _, b := range c.Boundaries {
		if !seen[b.Tag] {
			seen[b.Tag] = true
			out = append(out, b.Tag)
		}
	}
	sort.Strings(out)
	return out
}

// Build groups the elements of partition rank. Owned elements are grouped by
// type in ascending global order and chunked by opts.MaxGroupSize; ghosts
// are grouped the same way. Interfaces put the owned side on the left, and
// faces between two owned elements appear once.
func Build(m *mesh.Mesh, conn *mesh.Connectivity, layout *partitions.PartitionLayout, rank int, opts Options) (*Collection, error) {
	if rank < 0 || rank >= layout.NumPartitions {
		return nil, fmt.Errorf("%w: rank %d of %d partitions", partitions.ErrInvalidLayout, rank, layout.NumPartitions)
	}
	c := &Collection{
		Rank:        rank,
		Layout:      layout,
		GhostOwners: make(map[int]int),
		locate:      make(map[int]location),
	}
	nextID := 0
	makeGroups := func(elements []int, ghost bool) ([]*ElementGroup, error) {
		var out []*ElementGroup
		for _, chunk := range chunkByType(m, elements, opts.MaxGroupSize) {
			g, err := NewElementGroup(nextID, m, chunk, opts)
			if err != nil {
				return nil, err
			}
			g.Ghost = ghost
			nextID++
			for e, k := range chunk {
				c.locate[k] = location{g, e}
			}
			out = append(out, g)
		}
		return out, nil
	}

	var err error
	if c.Groups, err = makeGroups(layout.Partitions[rank].Elements, false); err != nil {
		return nil, err
	}
	c.Topology = partitions.FromMesh(m, conn)
	var ghosts []int
	for peer, ks := range layout.GhostElements(rank, c.Topology) {
		for _, k := range ks {
			c.GhostOwners[k] = peer
			ghosts = append(ghosts, k)
		}
	}
	sort.Ints(ghosts)
	if c.Ghosts, err = makeGroups(ghosts, true); err != nil {
		return nil, err
	}

	type pair struct{ left, right *ElementGroup }
	interfaces := map[pair]*FaceGroup{}
	type side struct {
		group *ElementGroup
		tag   string
	}
	boundaries := map[side]*FaceGroup{}
	faceID := 0
	for _, g := range c.Groups {
		for e, k := range g.Elements {
			for f := range conn.EToE[k] {
				if conn.IsBoundary(k, f) {
					s := side{g, conn.Tags[[2]int{k, f}]}
					fg, ok := boundaries[s]
					if !ok {
						fg = newFaceGroup(faceID, g, nil, s.tag)
						faceID++
						boundaries[s] = fg
						c.Boundaries = append(c.Boundaries, fg)
					}
					if err := fg.add(m, e, f, -1, -1); err != nil {
						return nil, err
					}
					continue
				}
				j := conn.EToE[k][f]
				rg, r, ok := c.Locate(j)
				if !ok {
					return nil, fmt.Errorf("element %d: neighbor %d is neither owned nor ghost", k, j)
				}
				if !rg.Ghost && j < k {
					continue
				}
				p := pair{g, rg}
				fg, ok := interfaces[p]
				if !ok {
					fg = newFaceGroup(faceID, g, rg, "")
					faceID++
					interfaces[p] = fg
					c.Interfaces = append(c.Interfaces, fg)
				}
				if err := fg.add(m, e, f, r, conn.EToF[k][f]); err != nil {
					return nil, err
				}
			}
		}
	}
	return c, nil
}

// chunkByType splits ascending element ids into runs of one type, at most
// maxSize long.
func chunkByType(m *mesh.Mesh, elements []int, maxSize int) [][]int {
	byType := map[int][]int{}
	var order []int
	for _, k := range elements {
		t := int(m.Elements[k].Type)
		if _, ok := byType[t]; !ok {
			order = append(order, t)
		}
		byType[t] = append(byType[t], k)
	}
	var out [][]int
	for _, t := range order {
		ks := byType[t]
		for len(ks) > 0 {
			n := len(ks)
			if maxSize > 0 && n > maxSize {
				n = maxSize
			}
			out = append(out, ks[:n:n])
			ks = ks[n:]
		}
	}
	return out
}
