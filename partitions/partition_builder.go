package partitions

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/DGSolver/element"
	"github.com/notargets/DGSolver/mesh"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// PartitionBuilder constructs partitions from mesh connectivity
type PartitionBuilder struct {
	Mesh *MeshConnectivity

	// NumPartitions wins over TargetPartitionSize when set
	NumPartitions       int
	TargetPartitionSize int
	Strategy            PartitionStrategy
}

// MeshConnectivity provides the mesh topology needed for partitioning
type MeshConnectivity struct {
	NumElements  int
	ElementTypes []element.ElementGeometry
	Centroids    [][3]float64

	// Face connectivity, a face whose neighbor is the element itself is a
	// boundary face
	EToE [][]int
	EToF [][]int
}

// FromMesh gathers the partitioning view of a mesh.
func FromMesh(m *mesh.Mesh, conn *mesh.Connectivity) *MeshConnectivity {
	mc := &MeshConnectivity{
		NumElements:  m.NumElements(),
		ElementTypes: make([]element.ElementGeometry, m.NumElements()),
		Centroids:    make([][3]float64, m.NumElements()),
		EToE:         conn.EToE,
		EToF:         conn.EToF,
	}
	for k, el := range m.Elements {
		mc.ElementTypes[k] = el.Type
		mc.Centroids[k] = m.Centroid(k)
	}
	return mc
}

// Preset returns the element partitions stored in m, or nil when any element
// has none.
func Preset(m *mesh.Mesh) []int {
	if m.NumElements() == 0 {
		return nil
	}
	eToP := make([]int, m.NumElements())
	for k, el := range m.Elements {
		if el.Partition < 0 {
			return nil
		}
		eToP[k] = el.Partition
	}
	return eToP
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically

	GraphPartition    // Breadth first ordering of the element dual graph
	SpaceFillingCurve // Morton ordering of element centroids
)

var strategyNames = map[string]PartitionStrategy{
	"block":       BlockPartition,
	"round-robin": RoundRobin,
	"graph":       GraphPartition,
	"morton":      SpaceFillingCurve,
}

// ParseStrategy maps a configuration name to a strategy.
func ParseStrategy(name string) (PartitionStrategy, error) {
	if name == "" {
		return BlockPartition, nil
	}
	s, ok := strategyNames[name]
	if !ok {
		return 0, fmt.Errorf("partitions: unknown strategy %q", name)
	}
	return s, nil
}

// BuildPartitions creates a partition layout from mesh connectivity
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	numPartitions := pb.calculateNumPartitions()
	if numPartitions > pb.Mesh.NumElements {
		return nil, fmt.Errorf("%w: %d partitions for %d elements",
			ErrInvalidLayout, numPartitions, pb.Mesh.NumElements)
	}
	eToP, err := pb.partitionElements(numPartitions)
	if err != nil {
		return nil, err
	}
	layout, err := NewLayout(eToP, pb.Mesh.ElementTypes)
	if err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	return layout, nil
}

// calculateNumPartitions determines the partition count
func (pb *PartitionBuilder) calculateNumPartitions() int {
	if pb.NumPartitions > 0 {
		return pb.NumPartitions
	}
	if pb.TargetPartitionSize <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(float64(pb.Mesh.NumElements)/float64(pb.TargetPartitionSize))))
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) ([]int, error) {
	n := pb.Mesh.NumElements
	switch pb.Strategy {
	case BlockPartition:
		return blocks(identity(n), numPartitions), nil
	case RoundRobin:
		eToP := make([]int, n)
		for i := range eToP {
			eToP[i] = i % numPartitions
		}
		return eToP, nil
	case GraphPartition:
		if pb.Mesh.EToE == nil {
			return blocks(identity(n), numPartitions), nil
		}
		return blocks(pb.breadthFirstOrder(), numPartitions), nil
	case SpaceFillingCurve:
		if pb.Mesh.Centroids == nil {
			return blocks(identity(n), numPartitions), nil
		}
		return blocks(mortonOrder(pb.Mesh.Centroids), numPartitions), nil
	}
	return nil, fmt.Errorf("partitions: unknown strategy %d", pb.Strategy)
}

func identity(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// blocks cuts an element ordering into numPartitions contiguous runs whose
// sizes differ by at most one.
func blocks(order []int, numPartitions int) []int {
	eToP := make([]int, len(order))
	n := len(order)
	for i, k := range order {
		eToP[k] = i * numPartitions / n
	}
	return eToP
}

// breadthFirstOrder walks the element dual graph component by component.
// Ties inside a level are broken by element id so that every rank computes
// the same ordering.
func (pb *PartitionBuilder) breadthFirstOrder() []int {
	g := simple.NewUndirectedGraph()
	for k := 0; k < pb.Mesh.NumElements; k++ {
		g.AddNode(simple.Node(k))
	}
	for k, nbrs := range pb.Mesh.EToE {
		for _, j := range nbrs {
			if j != k && !g.HasEdgeBetween(int64(k), int64(j)) {
				g.SetEdge(g.NewEdge(simple.Node(k), simple.Node(j)))
			}
		}
	}

	type rank struct{ component, depth, id int }
	ranks := make([]rank, 0, pb.Mesh.NumElements)
	var bf traverse.BreadthFirst
	component := 0
	for k := 0; k < pb.Mesh.NumElements; k++ {
		if bf.Visited(simple.Node(k)) {
			continue
		}
		bf.Walk(g, simple.Node(k), func(n graph.Node, d int) bool {
			ranks = append(ranks, rank{component, d, int(n.ID())})
			return false
		})
		component++
	}
	sort.Slice(ranks, func(i, j int) bool {
		a, b := ranks[i], ranks[j]
		if a.component != b.component {
			return a.component < b.component
		}
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		return a.id < b.id
	})
	order := make([]int, len(ranks))
	for i, r := range ranks {
		order[i] = r.id
	}
	return order
}

// mortonOrder sorts elements along a Z-order curve through their centroids.
func mortonOrder(centroids [][3]float64) []int {
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, c := range centroids {
		for d := 0; d < 3; d++ {
			lo[d] = math.Min(lo[d], c[d])
			hi[d] = math.Max(hi[d], c[d])
		}
	}
	const bits = 10
	codes := make([]uint64, len(centroids))
	for k, c := range centroids {
		var q [3]uint64
		for d := 0; d < 3; d++ {
			if span := hi[d] - lo[d]; span > 0 {
				q[d] = uint64((c[d] - lo[d]) / span * float64(1<<bits-1))
			}
		}
		for b := bits - 1; b >= 0; b-- {
			for d := 0; d < 3; d++ {
				codes[k] = codes[k]<<1 | (q[d]>>uint(b))&1
			}
		}
	}
	order := identity(len(centroids))
	sort.SliceStable(order, func(i, j int) bool { return codes[order[i]] < codes[order[j]] })
	return order
}
