package cache

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Token names a placeholder resolved by walking up the context chain to the
// context that binds it.
type Token string

const (
	Solution    Token = "solution"
	Gradient    Token = "gradient"
	Normals     Token = "normals"
	Parametric  Token = "parametric"
	Coordinates Token = "coordinates"
	Time        Token = "time"
	Element     Token = "element"
	// FaceScale is the ratio of face measure to element measure at face points.
	FaceScale Token = "face-scale"
)

// Function is the logical identity of a cached term. A context holds at most
// one node per Function, so implementations must be comparable; pointer
// receivers are the normal choice.
type Function interface {
	Name() string
	// NumCols is the number of value components per evaluation point.
	NumCols() int
	Dependencies() []Dependency
	// Call fills out (points x NumCols, zeroed) from the evaluated inputs.
	Call(ev Eval, out *mat.Dense) error
}

// Dependency is one declared input of a Function. Exactly one of Function,
// Token or Node is set. A non-zero Shift resolves the input in the
// secondary context with that index.
type Dependency struct {
	Function Function
	Token    Token
	Node     *Node
	Shift    int
}

func On(f Function) Dependency   { return Dependency{Function: f} }
func OnToken(t Token) Dependency { return Dependency{Token: t} }
func OnNode(n *Node) Dependency  { return Dependency{Node: n} }
func (d Dependency) In(shift int) Dependency {
	d.Shift = shift
	return d
}

func (d Dependency) String() string {
	var s string
	switch {
	case d.Function != nil:
		s = d.Function.Name()
	case d.Token != "":
		s = string(d.Token)
	case d.Node != nil:
		s = d.Node.Name()
	default:
		s = "<empty>"
	}
	if d.Shift != 0 {
		s = fmt.Sprintf("%s@%d", s, d.Shift)
	}
	return s
}

// Eval is handed to Function.Call during evaluation.
type Eval struct {
	node   *Node
	inputs []*mat.Dense
}

// Input returns the value of the i-th declared dependency.
func (ev Eval) Input(i int) *mat.Dense { return ev.inputs[i] }
func (ev Eval) NumInputs() int         { return len(ev.inputs) }
func (ev Eval) NumPoints() int         { return ev.node.owner.NumPoints() }

// Map returns the context that owns the node being evaluated.
func (ev Eval) Map() *Map { return ev.node.owner }

// Element returns the current element of the owning context.
func (ev Eval) Element() int { return ev.node.owner.Element() }

// Func is a Function assembled from a closure.
type Func struct {
	name string
	cols int
	deps []Dependency
	call func(ev Eval, out *mat.Dense) error
}

func NewFunc(name string, cols int, deps []Dependency, call func(ev Eval, out *mat.Dense) error) *Func {
	if cols < 1 {
		panic(fmt.Sprintf("cache: function %q needs at least one column", name))
	}
	return &Func{name: name, cols: cols, deps: deps, call: call}
}

func (f *Func) Name() string                       { return f.name }
func (f *Func) NumCols() int                       { return f.cols }
func (f *Func) Dependencies() []Dependency         { return f.deps }
func (f *Func) Call(ev Eval, out *mat.Dense) error { return f.call(ev, out) }

// Constant returns a Function whose value repeats vals on every point.
func Constant(name string, vals ...float64) *Func {
	return NewFunc(name, len(vals), nil, func(_ Eval, out *mat.Dense) error {
		r, _ := out.Dims()
		for i := 0; i < r; i++ {
			out.SetRow(i, vals)
		}
		return nil
	})
}
