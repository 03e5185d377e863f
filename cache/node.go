package cache

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// NodeID indexes a node in the arena shared by a context tree.
type NodeID int

type idSet map[NodeID]struct{}

type arena struct {
	nodes    []*Node
	released bool
}

func (a *arena) add(n *Node) NodeID {
	n.id = NodeID(len(a.nodes))
	a.nodes = append(a.nodes, n)
	return n.id
}

func (a *arena) get(id NodeID) *Node {
	if a.released || int(id) < 0 || int(id) >= len(a.nodes) {
		return nil
	}
	return a.nodes[id]
}

// Node is a lazily evaluated cached value. Rows are evaluation points and
// columns are value components. The transitive dependency sets are kept
// flattened so that invalidation never walks the graph.
type Node struct {
	id    NodeID
	arena *arena
	owner *Map
	name  string
	fn    Function

	inputs     []NodeID
	dependsOn  idSet
	dependents idSet

	value       *mat.Dense
	valid       bool
	proxy       bool
	released    bool
	evaluating  bool
	evaluations int
}

func newNode(m *Map, name string, fn Function) *Node {
	n := &Node{
		arena:      m.arena,
		owner:      m,
		name:       name,
		fn:         fn,
		dependsOn:  make(idSet),
		dependents: make(idSet),
	}
	m.arena.add(n)
	m.owned = append(m.owned, n.id)
	return n
}

// link records the direct inputs and folds their transitive closure into
// this node, registering the node as a dependent of everything it reaches.
func (n *Node) link(inputs []NodeID) {
	n.inputs = inputs
	for _, id := range inputs {
		n.dependsOn[id] = struct{}{}
		for d := range n.arena.get(id).dependsOn {
			n.dependsOn[d] = struct{}{}
		}
	}
	for d := range n.dependsOn {
		n.arena.get(d).dependents[n.id] = struct{}{}
	}
}

func (n *Node) ID() NodeID       { return n.id }
func (n *Node) Name() string     { return n.name }
func (n *Node) Valid() bool      { return n.valid }
func (n *Node) Owner() *Map      { return n.owner }
func (n *Node) Evaluations() int { return n.evaluations }

// NumCols reports the declared component count, or the width of the current
// value for value nodes.
func (n *Node) NumCols() int {
	if n.fn != nil {
		return n.fn.NumCols()
	}
	if n.value != nil {
		_, c := n.value.Dims()
		return c
	}
	return 0
}

// DependsOn reports whether other is in the transitive inputs of n.
func (n *Node) DependsOn(other *Node) bool {
	_, ok := n.dependsOn[other.id]
	return ok && other.arena == n.arena
}

// NumDependents is the size of the flattened dependent set.
func (n *Node) NumDependents() int { return len(n.dependents) }

// Value returns the cached value, evaluating it first when invalid. A valid
// node is never re-evaluated.
func (n *Node) Value() (*mat.Dense, error) {
	if n.released || n.arena.released {
		return nil, fmt.Errorf("%w: %s", ErrReleased, n.name)
	}
	if n.valid {
		return n.value, nil
	}
	if n.fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotSet, n.name)
	}
	if n.evaluating {
		return nil, fmt.Errorf("%w: %s", ErrCycle, n.name)
	}
	n.evaluating = true
	defer func() { n.evaluating = false }()

	in := make([]*mat.Dense, len(n.inputs))
	for i, id := range n.inputs {
		dep := n.arena.get(id)
		if dep == nil || dep.released {
			return nil, fmt.Errorf("%s: %w", n.name, ErrReleased)
		}
		v, err := dep.Value()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.name, err)
		}
		in[i] = v
	}

	rows, cols := n.owner.NumPoints(), n.fn.NumCols()
	if n.value == nil || n.proxy {
		n.value = mat.NewDense(rows, cols, nil)
		n.proxy = false
	} else if r, c := n.value.Dims(); r != rows || c != cols {
		n.value = mat.NewDense(rows, cols, nil)
	} else {
		n.value.Zero()
	}
	if err := n.fn.Call(Eval{node: n, inputs: in}, n.value); err != nil {
		return nil, fmt.Errorf("%s: %w", n.name, err)
	}
	n.valid = true
	n.evaluations++
	return n.value, nil
}

// Set copies v into the node and marks it valid without evaluating.
// Every dependent is invalidated first.
func (n *Node) Set(v mat.Matrix) {
	n.invalidateDependents()
	r, c := v.Dims()
	if n.value == nil || n.proxy {
		n.value = mat.NewDense(r, c, nil)
	} else if rr, cc := n.value.Dims(); rr != r || cc != c {
		n.value = mat.NewDense(r, c, nil)
	}
	n.value.Copy(v)
	n.proxy = false
	n.valid = true
}

// SetProxy makes the node alias d. The storage is borrowed: the caller keeps
// it alive and unmodified for as long as the node is read.
func (n *Node) SetProxy(d *mat.Dense) {
	n.invalidateDependents()
	n.value = d
	n.proxy = true
	n.valid = true
}

// Invalidate marks the node and all of its dependents invalid.
func (n *Node) Invalidate() {
	n.valid = false
	n.invalidateDependents()
}

func (n *Node) invalidateDependents() {
	for id := range n.dependents {
		if d := n.arena.get(id); d != nil {
			d.valid = false
		}
	}
}
