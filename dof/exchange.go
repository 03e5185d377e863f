package dof

import (
	"fmt"

	"github.com/notargets/DGSolver/group"
)

// ExchangePlan holds the pick and place indices of one rank. Values for peer
// p are picked from the owned buffer at Pick[p] and arrive into the ghost
// buffer at Place[p] on the receiving side. Both sides order the values by
// global element id, then field, then node.
type ExchangePlan struct {
	Pick  [][]int // [peer] owned buffer positions to send
	Place [][]int // [peer] ghost buffer positions to fill
}

// index returns the buffer position of (node, field) of element e in a
// group view starting at off.
func index(off, np, fields, k, e, node, field int) int {
	return off + node*fields*k + e*fields + field
}

func (c *Container) buildPlan(col *group.Collection, size int) error {
	plan := &ExchangePlan{Pick: make([][]int, size), Place: make([][]int, size)}
	me := col.Rank
	layout, topo := col.Layout, col.Topology
	if layout.NumPartitions > size {
		return fmt.Errorf("dof: %d partitions on %d ranks", layout.NumPartitions, size)
	}
	appendElement := func(dst []int, k int) ([]int, error) {
		g, e, ok := col.Locate(k)
		if !ok {
			return nil, fmt.Errorf("dof: element %d is not held by rank %d", k, me)
		}
		off := c.offsets[g.ID]
		for f := 0; f < c.fields; f++ {
			for i := 0; i < g.Np(); i++ {
				dst = append(dst, index(off, g.Np(), c.fields, g.Len(), e, i, f))
			}
		}
		return dst, nil
	}
	var err error
	for p := 0; p < layout.NumPartitions; p++ {
		if p == me {
			continue
		}
		// what p holds as ghosts of mine
		for _, k := range layout.GhostElements(p, topo)[me] {
			if plan.Pick[p], err = appendElement(plan.Pick[p], k); err != nil {
				return err
			}
		}
		for _, k := range layout.GhostElements(me, topo)[p] {
			if plan.Place[p], err = appendElement(plan.Place[p], k); err != nil {
				return err
			}
		}
	}
	c.plan = plan
	return nil
}

// Plan returns the exchange plan of the container.
func (c *Container) Plan() *ExchangePlan { return c.plan }

// Scatter refreshes every ghost copy from its owner. It is a collective
// call: every rank must make it.
func (c *Container) Scatter() error {
	size := c.comm.Size()
	send := make([][]float64, size)
	recv := make([][]float64, size)
	for p := 0; p < size; p++ {
		send[p] = make([]float64, len(c.plan.Pick[p]))
		for i, idx := range c.plan.Pick[p] {
			send[p][i] = c.owned[idx]
		}
		recv[p] = make([]float64, len(c.plan.Place[p]))
	}
	if err := c.comm.AllToAll(send, recv); err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	for p := 0; p < size; p++ {
		for i, idx := range c.plan.Place[p] {
			c.ghost[idx] = recv[p][i]
		}
	}
	return nil
}
