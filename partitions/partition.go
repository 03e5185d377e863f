package partitions

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/notargets/DGSolver/element"
)

var ErrInvalidLayout = errors.New("partitions: invalid layout")

// Partition is the set of elements owned by one rank
type Partition struct {
	// Unique identifier for this partition, equal to the owning rank
	ID int

	// Element membership
	Elements    []int // Global element indices in this partition, ascending
	NumElements int

	// Mixed element support
	ElementTypes []element.ElementGeometry // Type of each element
	TypeGroups   []TypeGroup               // Grouped by element type
}

// TypeGroup represents elements of the same type within a partition
type TypeGroup struct {
	ElementType element.ElementGeometry
	Count       int
	LocalIDs    []int // Indices within the partition
}

// PartitionLayout manages the complete mesh decomposition
type PartitionLayout struct {
	Partitions []Partition

	KpartMax      int // max(NumElements) across all partitions
	TotalElements int
	NumPartitions int

	// Element to partition mapping
	EToP []int // Length TotalElements: element k belongs to partition EToP[k]
}

// NewLayout builds a layout from an explicit element to partition map.
func NewLayout(eToP []int, types []element.ElementGeometry) (*PartitionLayout, error) {
	numPartitions := 0
	for k, p := range eToP {
		if p < 0 {
			return nil, fmt.Errorf("%w: element %d has partition %d", ErrInvalidLayout, k, p)
		}
		numPartitions = max(numPartitions, p+1)
	}
	layout := &PartitionLayout{
		Partitions:    createPartitions(eToP, types, numPartitions),
		TotalElements: len(eToP),
		NumPartitions: numPartitions,
		EToP:          eToP,
	}
	for _, p := range layout.Partitions {
		layout.KpartMax = max(layout.KpartMax, p.NumElements)
	}
	if err := layout.ValidateLayout(); err != nil {
		return nil, err
	}
	return layout, nil
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.EToP) != pl.TotalElements {
		return fmt.Errorf("%w: EToP has %d entries for %d elements", ErrInvalidLayout, len(pl.EToP), pl.TotalElements)
	}
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("%w: %d partitions, NumPartitions %d", ErrInvalidLayout, len(pl.Partitions), pl.NumPartitions)
	}
	actualMax, total := 0, 0
	for _, p := range pl.Partitions {
		if p.NumElements == 0 {
			return fmt.Errorf("%w: partition %d is empty", ErrInvalidLayout, p.ID)
		}
		actualMax = max(actualMax, p.NumElements)
		total += p.NumElements
		for _, k := range p.Elements {
			if pl.GetPartition(k) != p.ID {
				return fmt.Errorf("%w: element %d listed in partition %d, EToP says %d",
					ErrInvalidLayout, k, p.ID, pl.GetPartition(k))
			}
		}
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("%w: computed KpartMax %d != stored KpartMax %d",
			ErrInvalidLayout, actualMax, pl.KpartMax)
	}
	if total != pl.TotalElements {
		return fmt.Errorf("%w: partitions hold %d of %d elements", ErrInvalidLayout, total, pl.TotalElements)
	}
	return nil
}

// FaceCommunication describes a face whose neighbor lives in another partition
type FaceCommunication struct {
	LocalElement    int // Global element ID in this partition
	LocalFace       int
	RemotePartition int
	RemoteElement   int // Global element ID in the remote partition
	RemoteFace      int
}

// RemoteFaces lists the faces of partition partID that need data from other
// partitions, ordered by element then face.
func (pl *PartitionLayout) RemoteFaces(partID int, mesh *MeshConnectivity) []FaceCommunication {
	var out []FaceCommunication
	for _, k := range pl.Partitions[partID].Elements {
		for face, neighbor := range mesh.EToE[k] {
			if neighbor == k {
				continue
			}
			if np := pl.GetPartition(neighbor); np != partID && np >= 0 {
				out = append(out, FaceCommunication{
					LocalElement:    k,
					LocalFace:       face,
					RemotePartition: np,
					RemoteElement:   neighbor,
					RemoteFace:      mesh.EToF[k][face],
				})
			}
		}
	}
	return out
}

// GhostElements returns, per remote partition, the ascending global ids of
// its elements that neighbor partition partID.
func (pl *PartitionLayout) GhostElements(partID int, mesh *MeshConnectivity) map[int][]int {
	seen := make(map[int]bool)
	out := make(map[int][]int)
	for _, fc := range pl.RemoteFaces(partID, mesh) {
		if seen[fc.RemoteElement] {
			continue
		}
		seen[fc.RemoteElement] = true
		out[fc.RemotePartition] = append(out[fc.RemotePartition], fc.RemoteElement)
	}
	for _, ks := range out {
		sort.Ints(ks)
	}
	return out
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinElements:   math.MaxInt32,
		AvgElements:   float64(pl.TotalElements) / float64(pl.NumPartitions),
	}
	for _, p := range pl.Partitions {
		stats.MinElements = min(stats.MinElements, p.NumElements)
		stats.MaxElements = max(stats.MaxElements, p.NumElements)
	}
	stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}

func (s PartitionStats) String() string {
	return fmt.Sprintf("%d partitions, elements min/avg/max %d/%.1f/%d, imbalance %.3f",
		s.NumPartitions, s.MinElements, s.AvgElements, s.MaxElements, s.Imbalance)
}

// createPartitions builds partition structures from element assignments
func createPartitions(eToP []int, types []element.ElementGeometry, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)
	for i := range partitions {
		partitions[i].ID = i
	}
	for elem, part := range eToP {
		p := &partitions[part]
		p.Elements = append(p.Elements, elem)
		if types != nil {
			p.ElementTypes = append(p.ElementTypes, types[elem])
		}
		p.NumElements++
	}
	for i := range partitions {
		partitions[i].TypeGroups = createTypeGroups(&partitions[i])
	}
	return partitions
}

// createTypeGroups organizes elements by type within a partition, in order of
// first appearance
func createTypeGroups(p *Partition) []TypeGroup {
	var groups []TypeGroup
	index := make(map[element.ElementGeometry]int)
	for i, t := range p.ElementTypes {
		g, ok := index[t]
		if !ok {
			g = len(groups)
			index[t] = g
			groups = append(groups, TypeGroup{ElementType: t})
		}
		groups[g].LocalIDs = append(groups[g].LocalIDs, i)
		groups[g].Count++
	}
	return groups
}
