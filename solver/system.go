package solver

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/cpmech/gosl/io"
	"github.com/notargets/DGSolver/cache"
	"github.com/notargets/DGSolver/comm"
	"github.com/notargets/DGSolver/dof"
	"github.com/notargets/DGSolver/group"
	"github.com/notargets/DGSolver/law"
	"github.com/notargets/DGSolver/mesh"
	"github.com/notargets/DGSolver/partitions"
)

// Options configures a System.
type Options struct {
	Order        int
	Comm         comm.Communicator // Defaults to comm.Local
	Strategy     partitions.PartitionStrategy
	MaxGroupSize int
	Tolerance    float64
	Verbose      bool // Messages are printed by rank 0 only

	Limiter   Limiter
	Multirate MultirateStrategy
}

// System drives one rank of a run: it owns the partitioned groups, the
// solution and the integrators.
type System struct {
	Mesh   *mesh.Mesh
	Layout *partitions.PartitionLayout

	opts    Options
	conn    *mesh.Connectivity
	law     law.ConservationLaw
	col     *group.Collection
	alg     *Algorithm
	u       *dof.Container
	verbose bool

	rk44      *RK44
	euler     *ForwardEuler
	multirate *MultirateRK3
}

// NewSystem partitions m over the ranks of opts.Comm.
func NewSystem(m *mesh.Mesh, opts Options) (*System, error) {
	if opts.Comm == nil {
		opts.Comm = comm.Local{}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	conn, err := m.Connectivity()
	if err != nil {
		return nil, err
	}
	layout, err := buildLayout(m, conn, opts)
	if err != nil {
		return nil, err
	}
	s := &System{
		Mesh:    m,
		Layout:  layout,
		opts:    opts,
		conn:    conn,
		verbose: opts.Verbose && opts.Comm.Rank() == 0,
	}
	if s.verbose {
		io.Pf("mesh: %d elements, %d vertices, boundaries %v\n", m.NumElements(), len(m.Vertices), conn.BoundaryTags())
		io.Pf("%s\n", layout.PartitionStatistics())
	}
	return s, nil
}

// buildLayout keeps the partitions stored in the mesh when it carries one
// per rank, and runs the partition builder otherwise.
func buildLayout(m *mesh.Mesh, conn *mesh.Connectivity, opts Options) (*partitions.PartitionLayout, error) {
	mc := partitions.FromMesh(m, conn)
	if eToP := partitions.Preset(m); eToP != nil {
		layout, err := partitions.NewLayout(eToP, mc.ElementTypes)
		if err != nil {
			return nil, err
		}
		if layout.NumPartitions == opts.Comm.Size() {
			return layout, nil
		}
	}
	pb := &partitions.PartitionBuilder{
		Mesh:          mc,
		NumPartitions: opts.Comm.Size(),
		Strategy:      opts.Strategy,
	}
	return pb.BuildPartitions()
}

// AttachLaw selects the conservation law. It must be called before Setup.
func (s *System) AttachLaw(l law.ConservationLaw) {
	s.law = l
	s.col, s.alg, s.u = nil, nil, nil
}

// Setup builds the groups of this rank and allocates the solution.
func (s *System) Setup() error {
	if s.law == nil {
		return ErrNoLaw
	}
	if err := law.CheckBoundaries(s.law, s.conn.BoundaryTags()); err != nil {
		return err
	}
	start := time.Now()
	col, err := group.Build(s.Mesh, s.conn, s.Layout, s.opts.Comm.Rank(), group.Options{
		Order:        s.opts.Order,
		MaxGroupSize: s.opts.MaxGroupSize,
		Tolerance:    s.opts.Tolerance,
	})
	if err != nil {
		return err
	}
	alg, err := NewAlgorithm(col, s.law)
	if err != nil {
		return err
	}
	u, err := dof.New(col, s.law.NumFields(), s.opts.Comm)
	if err != nil {
		return err
	}
	s.col, s.alg, s.u = col, alg, u
	s.rk44 = &RK44{Limiter: s.opts.Limiter}
	s.euler = &ForwardEuler{Limiter: s.opts.Limiter}
	s.multirate = &MultirateRK3{Strategy: s.opts.Multirate, Limiter: s.opts.Limiter}
	if s.verbose {
		io.Pforan("setup: %d groups, %d interfaces, %d boundaries, %d values (%v)\n",
			len(col.Groups), len(col.Interfaces), len(col.Boundaries), u.Len(), time.Since(start))
	}
	return nil
}

func (s *System) ready() error {
	if s.alg == nil {
		return ErrNotSetUp
	}
	return nil
}

func (s *System) Collection() *group.Collection { return s.col }
func (s *System) Algorithm() *Algorithm         { return s.alg }
func (s *System) Solution() *dof.Container      { return s.u }

// Time is the current simulation time.
func (s *System) Time() float64 {
	if s.alg == nil {
		return 0
	}
	return s.alg.Time
}

// L2Projection sets the solution to the projection of fn, which has one
// column per field and may read Coordinates and Time.
func (s *System) L2Projection(fn cache.Function) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.alg.Project(fn, s.u)
}

// RK44 advances one classical Runge-Kutta step.
func (s *System) RK44(dt float64) (float64, error) { return s.step("rk44", s.rk44, dt) }

// ForwardEuler advances one explicit Euler step.
func (s *System) ForwardEuler(dt float64) (float64, error) { return s.step("euler", s.euler, dt) }

// MultirateRK advances one multirate step.
func (s *System) MultirateRK(dt float64) (float64, error) {
	return s.step("multirate", s.multirate, dt)
}

// Step advances with any integrator.
func (s *System) Step(in Integrator, dt float64) (float64, error) { return s.step("step", in, dt) }

func (s *System) step(name string, in Integrator, dt float64) (float64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	norm, err := in.Step(s.alg, s.u, dt)
	if err != nil {
		s.alg.Reset()
		return 0, fmt.Errorf("%s at t=%g: %w", name, s.alg.Time, err)
	}
	if s.verbose {
		io.Pf("%s: t = %.6e  |R| = %.6e\n", name, s.alg.Time, norm)
	}
	return norm, nil
}

// fileName appends the rank to name when the run has several ranks.
func (s *System) fileName(name string) string {
	if s.opts.Comm.Size() > 1 {
		return fmt.Sprintf("%s.%d", name, s.opts.Comm.Rank())
	}
	return name
}

// SaveSolution writes the owned solution of this rank as raw float64s.
func (s *System) SaveSolution(name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.u.SaveFile(s.fileName(name))
}

// LoadSolution reads a solution written by SaveSolution with the same mesh,
// partitioning, order and field count.
func (s *System) LoadSolution(name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.u.LoadFile(s.fileName(name))
}

// ExportSolution writes one CSV row per owned node: the element id, the
// node coordinates and the field values.
func (s *System) ExportSolution(name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	path := s.fileName(name)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "element,x,y,z")
	for f := 0; f < s.u.NumFields(); f++ {
		fmt.Fprintf(w, ",u%d", f)
	}
	fmt.Fprintln(w)
	for _, g := range s.col.Groups {
		for e, k := range g.Elements {
			u := s.u.ElementView(g, e)
			for i := 0; i < g.Np(); i++ {
				x := g.NodeCoords[e].RawRowView(i)
				fmt.Fprintf(w, "%d,%.10g,%.10g,%.10g", k, x[0], x[1], x[2])
				for f := 0; f < s.u.NumFields(); f++ {
					fmt.Fprintf(w, ",%.10g", u.At(i, f))
				}
				fmt.Fprintln(w)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if s.verbose {
		io.Pfgreen("wrote %s\n", path)
	}
	return nil
}
