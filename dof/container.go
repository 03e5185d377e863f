// Package dof stores the nodal degrees of freedom of one rank.
package dof

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/notargets/DGSolver/comm"
	"github.com/notargets/DGSolver/group"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrLayoutMismatch = errors.New("dof: layout mismatch")
	ErrAliased        = errors.New("dof: containers share storage")
)

// Container is contiguous storage for the owned degrees of freedom and a
// separate ghost layer. Each group sees its part as an Np × fields·K matrix
// whose column e*fields+f is field f of element e.
type Container struct {
	comm   comm.Communicator
	fields int
	owned  []float64
	ghost  []float64

	groups  []*group.ElementGroup // indexed by group ID
	offsets []int                 // into owned or ghost by group kind
	views   []*mat.Dense
	plan    *ExchangePlan
}

// New allocates a zeroed container for the groups of col.
func New(col *group.Collection, fields int, cm comm.Communicator) (*Container, error) {
	if fields < 1 {
		return nil, fmt.Errorf("%w: %d fields", ErrLayoutMismatch, fields)
	}
	if cm == nil {
		cm = comm.Local{}
	}
	c := &Container{comm: cm, fields: fields}
	all := append(append([]*group.ElementGroup(nil), col.Groups...), col.Ghosts...)
	c.groups = make([]*group.ElementGroup, len(all))
	c.offsets = make([]int, len(all))
	var nOwned, nGhost int
	for _, g := range all {
		if g.ID < 0 || g.ID >= len(all) {
			return nil, fmt.Errorf("%w: group id %d out of range", ErrLayoutMismatch, g.ID)
		}
		c.groups[g.ID] = g
		n := g.Np() * fields * g.Len()
		if g.Ghost {
			c.offsets[g.ID] = nGhost
			nGhost += n
		} else {
			c.offsets[g.ID] = nOwned
			nOwned += n
		}
	}
	c.owned = make([]float64, nOwned)
	c.ghost = make([]float64, nGhost)
	c.makeViews()
	if err := c.buildPlan(col, cm.Size()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) makeViews() {
	c.views = make([]*mat.Dense, len(c.groups))
	for id, g := range c.groups {
		buf := c.owned
		if g.Ghost {
			buf = c.ghost
		}
		n := g.Np() * c.fields * g.Len()
		off := c.offsets[id]
		c.views[id] = mat.NewDense(g.Np(), c.fields*g.Len(), buf[off:off+n:off+n])
	}
}

// NewLike allocates a zeroed container with the layout and exchange plan
// of c.
func (c *Container) NewLike() *Container {
	out := &Container{
		comm:    c.comm,
		fields:  c.fields,
		owned:   make([]float64, len(c.owned)),
		ghost:   make([]float64, len(c.ghost)),
		groups:  c.groups,
		offsets: c.offsets,
		plan:    c.plan,
	}
	out.makeViews()
	return out
}

func (c *Container) NumFields() int                        { return c.fields }
func (c *Container) Len() int                              { return len(c.owned) }
func (c *Container) Owned() []float64                      { return c.owned }
func (c *Container) Ghost() []float64                      { return c.ghost }
func (c *Container) Comm() comm.Communicator               { return c.comm }
func (c *Container) View(g *group.ElementGroup) *mat.Dense { return c.views[g.ID] }

// ElementView is the Np × fields block of element e of g. It aliases the
// container storage.
func (c *Container) ElementView(g *group.ElementGroup, e int) *mat.Dense {
	return c.views[g.ID].Slice(0, g.Np(), e*c.fields, (e+1)*c.fields).(*mat.Dense)
}

func (c *Container) compatible(x *Container) error {
	if len(c.owned) != len(x.owned) || len(c.ghost) != len(x.ghost) || c.fields != x.fields {
		return fmt.Errorf("%w: %d+%d values of %d fields vs %d+%d of %d", ErrLayoutMismatch,
			len(c.owned), len(c.ghost), c.fields, len(x.owned), len(x.ghost), x.fields)
	}
	return nil
}

// Disjoint returns ErrAliased when a and b share storage.
func Disjoint(a, b *Container) error {
	overlap := func(x, y []float64) bool {
		return len(x) > 0 && len(y) > 0 && &x[0] == &y[0]
	}
	if a == b || overlap(a.owned, b.owned) || overlap(a.ghost, b.ghost) {
		return ErrAliased
	}
	return nil
}

// Norm is the global L2 norm of the owned values over all ranks. It is a
// collective call.
func (c *Container) Norm() (float64, error) {
	ss := []float64{floats.Dot(c.owned, c.owned)}
	if err := c.comm.AllReduceSum(ss); err != nil {
		return 0, fmt.Errorf("norm: %w", err)
	}
	return math.Sqrt(ss[0]), nil
}

// Scale multiplies owned and ghost values by a.
func (c *Container) Scale(a float64) {
	floats.Scale(a, c.owned)
	floats.Scale(a, c.ghost)
}

// Axpy adds a·x to c over owned and ghost values.
func (c *Container) Axpy(a float64, x *Container) error {
	if err := c.compatible(x); err != nil {
		return err
	}
	floats.AddScaled(c.owned, a, x.owned)
	floats.AddScaled(c.ghost, a, x.ghost)
	return nil
}

// Copy overwrites c with x.
func (c *Container) Copy(x *Container) error {
	if err := c.compatible(x); err != nil {
		return err
	}
	copy(c.owned, x.owned)
	copy(c.ghost, x.ghost)
	return nil
}

func (c *Container) Zero() {
	clear(c.owned)
	clear(c.ghost)
}

func (c *Container) raw(g *group.ElementGroup) []float64 {
	return c.views[g.ID].RawMatrix().Data
}

// ScaleGroups multiplies the values of the given groups by a.
func (c *Container) ScaleGroups(a float64, groups []*group.ElementGroup) {
	for _, g := range groups {
		floats.Scale(a, c.raw(g))
	}
}

// AxpyGroups adds a·x to c on the given groups only.
func (c *Container) AxpyGroups(a float64, x *Container, groups []*group.ElementGroup) error {
	if err := c.compatible(x); err != nil {
		return err
	}
	for _, g := range groups {
		floats.AddScaled(c.raw(g), a, x.raw(g))
	}
	return nil
}

// CopyGroups copies x into c on the given groups only.
func (c *Container) CopyGroups(x *Container, groups []*group.ElementGroup) error {
	if err := c.compatible(x); err != nil {
		return err
	}
	for _, g := range groups {
		copy(c.raw(g), x.raw(g))
	}
	return nil
}

// Save writes the owned values as raw little endian float64 with no header.
func (c *Container) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, c.owned); err != nil {
		return err
	}
	return bw.Flush()
}

// Load reads values written by Save into the owned buffer. The input must
// hold exactly the owned buffer.
func (c *Container) Load(r io.Reader) error {
	br := bufio.NewReader(r)
	buf := make([]float64, len(c.owned))
	if err := binary.Read(br, binary.LittleEndian, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: input shorter than %d values", ErrLayoutMismatch, len(c.owned))
		}
		return err
	}
	if _, err := br.ReadByte(); err != io.EOF {
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: input longer than %d values", ErrLayoutMismatch, len(c.owned))
	}
	copy(c.owned, buf)
	return nil
}

func (c *Container) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.Save(f); err != nil {
		f.Close()
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return f.Close()
}

func (c *Container) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := c.Load(f); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}
