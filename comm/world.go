package comm

import (
	"fmt"
)

// World runs several ranks inside one process, one goroutine per rank, with
// channels carrying the messages. It is used to exercise distributed code
// paths without an MPI installation.
type World struct {
	size  int
	links [][]chan []float64 // links[from][to]
}

// NewWorld returns a world of n ranks.
func NewWorld(n int) *World {
	w := &World{size: n, links: make([][]chan []float64, n)}
	for i := range w.links {
		w.links[i] = make([]chan []float64, n)
		for j := range w.links[i] {
			w.links[i][j] = make(chan []float64, 1)
		}
	}
	return w
}

func (w *World) Size() int { return w.size }

// Rank returns the communicator of rank r.
func (w *World) Rank(r int) Communicator { return &worldRank{world: w, rank: r} }

// Run calls fn once per rank concurrently and returns the first error.
func (w *World) Run(fn func(c Communicator) error) error {
	errs := make(chan error, w.size)
	for r := 0; r < w.size; r++ {
		go func(r int) {
			errs <- fn(w.Rank(r))
		}(r)
	}
	var first error
	for r := 0; r < w.size; r++ {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

type worldRank struct {
	world *World
	rank  int
}

func (c *worldRank) Rank() int { return c.rank }
func (c *worldRank) Size() int { return c.world.size }

func (c *worldRank) AllToAll(send, recv [][]float64) error {
	if err := checkShape(c, send, recv); err != nil {
		return err
	}
	for p := range send {
		c.world.links[c.rank][p] <- append([]float64(nil), send[p]...)
	}
	for p := range recv {
		msg := <-c.world.links[p][c.rank]
		if len(msg) != len(recv[p]) {
			return fmt.Errorf("%w: rank %d expected %d values from %d, got %d",
				ErrCommunication, c.rank, len(recv[p]), p, len(msg))
		}
		copy(recv[p], msg)
	}
	return nil
}

// AllReduceSum adds the contributions in rank order so that every rank
// obtains bit-identical results.
func (c *worldRank) AllReduceSum(vals []float64) error {
	send := make([][]float64, c.world.size)
	recv := make([][]float64, c.world.size)
	for p := range send {
		send[p] = vals
		recv[p] = make([]float64, len(vals))
	}
	if err := c.AllToAll(send, recv); err != nil {
		return err
	}
	for i := range vals {
		vals[i] = 0
		for p := range recv {
			vals[i] += recv[p][i]
		}
	}
	return nil
}
