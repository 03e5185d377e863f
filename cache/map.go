package cache

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

type binding struct {
	node     NodeID
	hasNode  bool
	provider Function
}

// Map is an evaluation context. It registers at most one node per Function,
// binds placeholder tokens, and owns the secondary contexts used for
// two-sided face evaluation. Every Map created from a root shares the root's
// arena; the tree lives for one assembly pass and is released as a whole.
type Map struct {
	arena       *arena
	parent      *Map
	secondaries []*Map
	children    []*Map
	points      int

	nodes    map[Function]NodeID
	bindings map[Token]binding
	shadow   map[Function]bool
	building map[Function]bool
	owned    []NodeID

	element     int
	elementNode *Node
	elementVal  *mat.Dense
}

// NewMap returns a root context evaluating on the given number of points.
// The root binds the Element token.
func NewMap(points int) *Map {
	if points < 1 {
		panic(fmt.Sprintf("cache: invalid number of evaluation points %d", points))
	}
	m := newMap(&arena{}, nil, points)
	m.bindElement()
	return m
}

func newMap(a *arena, parent *Map, points int) *Map {
	return &Map{
		arena:    a,
		parent:   parent,
		points:   points,
		nodes:    make(map[Function]NodeID),
		bindings: make(map[Token]binding),
		shadow:   make(map[Function]bool),
		building: make(map[Function]bool),
		element:  -1,
	}
}

func (m *Map) bindElement() {
	m.elementVal = mat.NewDense(1, 1, []float64{-1})
	m.elementNode = newNode(m, string(Element), nil)
	m.elementNode.SetProxy(m.elementVal)
	m.bindings[Element] = binding{node: m.elementNode.id, hasNode: true}
}

func (m *Map) child() *Map {
	c := newMap(m.arena, m, m.points)
	m.children = append(m.children, c)
	return c
}

// NewSecondary adds a secondary context with its own current element. Shift k
// selects the k-th secondary, starting at 1.
func (m *Map) NewSecondary() *Map {
	s := m.child()
	s.bindElement()
	m.secondaries = append(m.secondaries, s)
	return s
}

// NewScope returns a nested context that inherits every binding of m.
func (m *Map) NewScope() *Map { return m.child() }

// Substitute returns a nested scope in which the given tokens resolve to the
// replacement nodes. Anything computed through the scope that reads a
// replaced token stays local to it.
func (m *Map) Substitute(repl map[Token]*Node) (*Map, error) {
	s := m.child()
	for t, n := range repl {
		if err := s.BindNode(t, n); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Pair returns a nested scope whose secondaries 1 and 2 are left and right.
func (m *Map) Pair(left, right *Map) (*Map, error) {
	if left.arena != m.arena || right.arena != m.arena {
		return nil, ErrForeignNode
	}
	s := m.child()
	s.secondaries = []*Map{left, right}
	return s, nil
}

func (m *Map) NumPoints() int { return m.points }
func (m *Map) Parent() *Map   { return m.parent }

// Len is the number of nodes created by this context.
func (m *Map) Len() int { return len(m.owned) }

// Secondary returns the context selected by a non-zero shift.
func (m *Map) Secondary(shift int) (*Map, error) {
	if shift < 1 || shift > len(m.secondaries) {
		return nil, fmt.Errorf("%w: %d", ErrNoSecondary, shift)
	}
	return m.secondaries[shift-1], nil
}

// SetElement changes the current element and invalidates every node that
// depends on it. Scopes without their own element forward to their parent.
func (m *Map) SetElement(i int) {
	for s := m; s != nil; s = s.parent {
		if s.elementNode != nil {
			s.element = i
			s.elementVal.Set(0, 0, float64(i))
			s.elementNode.SetProxy(s.elementVal)
			return
		}
	}
}

// Element returns the current element of the nearest context binding one.
func (m *Map) Element() int {
	for s := m; s != nil; s = s.parent {
		if s.elementNode != nil {
			return s.element
		}
	}
	return -1
}

func (m *Map) bind(t Token, b binding) {
	m.bindings[t] = b
	clear(m.shadow)
}

// BindValue binds t to a value node that is filled with Set or SetProxy.
func (m *Map) BindValue(t Token) *Node {
	n := newNode(m, string(t), nil)
	m.bind(t, binding{node: n.id, hasNode: true})
	return n
}

// Provide binds t to a Function evaluated lazily in this context.
func (m *Map) Provide(t Token, f Function) {
	m.bind(t, binding{provider: f})
}

// BindNode makes t an alias of an existing node of the same tree.
func (m *Map) BindNode(t Token, n *Node) error {
	if n.arena != m.arena {
		return fmt.Errorf("%w: %s", ErrForeignNode, n.name)
	}
	m.bind(t, binding{node: n.id, hasNode: true})
	return nil
}

// Lookup resolves a token through the parent chain.
func (m *Map) Lookup(t Token) (*Node, error) {
	if m.arena.released {
		return nil, ErrReleased
	}
	return m.lookup(t, false)
}

// lookup constructs a provider on first use. viaShift marks a lookup reached
// through a secondary, where the provider may not shift again.
func (m *Map) lookup(t Token, viaShift bool) (*Node, error) {
	for s := m; s != nil; s = s.parent {
		b, ok := s.bindings[t]
		if !ok {
			continue
		}
		if !b.hasNode {
			n, err := s.construct(b.provider, viaShift)
			if err != nil {
				return nil, fmt.Errorf("token %q: %w", t, err)
			}
			b.node, b.hasNode = n.id, true
			s.bindings[t] = b
		}
		return s.arena.get(b.node), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnboundToken, t)
}

// Get returns the node for f, constructing it on first use. Functions that
// read nothing bound locally are delegated to the parent so they are shared
// across sibling contexts.
func (m *Map) Get(f Function) (*Node, error) {
	if m.arena.released {
		return nil, ErrReleased
	}
	return m.resolve(f, false)
}

func (m *Map) resolve(f Function, viaShift bool) (*Node, error) {
	if id, ok := m.nodes[f]; ok {
		return m.arena.get(id), nil
	}
	if m.parent != nil && !m.shadows(f) {
		return m.parent.resolve(f, viaShift)
	}
	return m.construct(f, viaShift)
}

// shadows reports whether f, or anything it reads, must be resolved in m
// rather than in an ancestor.
func (m *Map) shadows(f Function) bool {
	if v, ok := m.shadow[f]; ok {
		return v
	}
	m.shadow[f] = false
	res := false
	for _, d := range f.Dependencies() {
		switch {
		case d.Shift != 0:
			res = true
		case d.Node != nil:
			res = d.Node.owner == m
		case d.Token != "":
			_, res = m.bindings[d.Token]
		case d.Function != nil:
			if _, ok := m.nodes[d.Function]; ok {
				res = true
			} else {
				res = m.shadows(d.Function)
			}
		}
		if res {
			break
		}
	}
	m.shadow[f] = res
	return res
}

func (m *Map) construct(f Function, viaShift bool) (*Node, error) {
	if m.building[f] {
		return nil, fmt.Errorf("%w: %s", ErrCycle, f.Name())
	}
	m.building[f] = true
	defer delete(m.building, f)

	deps := f.Dependencies()
	inputs := make([]NodeID, 0, len(deps))
	for _, d := range deps {
		in, err := m.resolveDependency(d, viaShift)
		if err != nil {
			return nil, fmt.Errorf("%s <- %s: %w", f.Name(), d, err)
		}
		inputs = append(inputs, in.id)
	}
	n := newNode(m, f.Name(), f)
	n.link(inputs)
	m.nodes[f] = n.id
	return n, nil
}

func (m *Map) resolveDependency(d Dependency, viaShift bool) (*Node, error) {
	target := m
	if d.Shift != 0 {
		if viaShift {
			return nil, ErrConsecutiveSecondary
		}
		s, err := m.Secondary(d.Shift)
		if err != nil {
			return nil, err
		}
		target, viaShift = s, true
	}
	switch {
	case d.Node != nil:
		if d.Node.arena != m.arena {
			return nil, ErrForeignNode
		}
		return d.Node, nil
	case d.Token != "":
		return target.lookup(d.Token, viaShift)
	case d.Function != nil:
		return target.resolve(d.Function, viaShift)
	}
	return nil, fmt.Errorf("%w: empty dependency", ErrUnboundToken)
}

// Release destroys every node created by this context and its children.
// Releasing the root releases the whole tree.
func (m *Map) Release() {
	for _, c := range m.children {
		c.Release()
	}
	for _, id := range m.owned {
		if n := m.arena.get(id); n != nil {
			n.released = true
			n.value = nil
			m.arena.nodes[id] = nil
		}
	}
	m.owned = nil
	m.children = nil
	m.secondaries = nil
	clear(m.nodes)
	clear(m.bindings)
	clear(m.shadow)
	if m.parent == nil {
		m.arena.released = true
	}
}
