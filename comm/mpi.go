//go:build mpi

package comm

import (
	"fmt"

	"github.com/cpmech/gosl/mpi"
)

// MPI is a communicator over the MPI world.
type MPI struct {
	world *mpi.Communicator
}

// Default starts MPI and returns the world communicator.
func Default() (Communicator, error) {
	if !mpi.IsOn() {
		mpi.Start()
	}
	if !mpi.IsOn() {
		return nil, fmt.Errorf("%w: MPI did not start", ErrCommunication)
	}
	return &MPI{world: mpi.NewCommunicator(nil)}, nil
}

// Finalize stops MPI.
func Finalize() {
	if mpi.IsOn() {
		mpi.Stop()
	}
}

func (c *MPI) Rank() int { return c.world.Rank() }
func (c *MPI) Size() int { return c.world.Size() }

// AllToAll exchanges pairwise; in every pair the lower rank sends first.
func (c *MPI) AllToAll(send, recv [][]float64) error {
	if err := checkShape(c, send, recv); err != nil {
		return err
	}
	me := c.Rank()
	copy(recv[me], send[me])
	for p := 0; p < c.Size(); p++ {
		if p == me {
			continue
		}
		if len(send[p]) == 0 && len(recv[p]) == 0 {
			continue
		}
		if me < p {
			c.send(send[p], p)
			c.recv(recv[p], p)
		} else {
			c.recv(recv[p], p)
			c.send(send[p], p)
		}
	}
	return nil
}

func (c *MPI) send(vals []float64, to int) {
	if len(vals) > 0 {
		c.world.Send(vals, to)
	}
}

func (c *MPI) recv(vals []float64, from int) {
	if len(vals) > 0 {
		c.world.Recv(vals, from)
	}
}

func (c *MPI) AllReduceSum(vals []float64) error {
	orig := append([]float64(nil), vals...)
	c.world.AllReduceSum(vals, orig)
	return nil
}
