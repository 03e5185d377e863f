// Package comm is the message passing layer used for ghost exchange and
// global reductions.
package comm

import (
	"errors"
	"fmt"
	"math"
)

var ErrCommunication = errors.New("comm: communication failure")

// Communicator is a group of ranks that meet at collective calls. Every rank
// of the group must make the same sequence of collective calls.
type Communicator interface {
	Rank() int
	Size() int
	// AllToAll sends send[p] to rank p and receives into recv[p] the slice
	// rank p sent here. recv[p] must already have the expected length.
	// send[Rank()] is copied to recv[Rank()].
	AllToAll(send, recv [][]float64) error
	// AllReduceSum replaces vals with the elementwise sum over all ranks.
	AllReduceSum(vals []float64) error
}

func checkShape(c Communicator, send, recv [][]float64) error {
	if len(send) != c.Size() || len(recv) != c.Size() {
		return fmt.Errorf("%w: %d send and %d recv buffers for %d ranks",
			ErrCommunication, len(send), len(recv), c.Size())
	}
	return nil
}

// Local is the communicator of a run without peers.
type Local struct{}

func (Local) Rank() int { return 0 }
func (Local) Size() int { return 1 }

func (l Local) AllToAll(send, recv [][]float64) error {
	if err := checkShape(l, send, recv); err != nil {
		return err
	}
	if len(send[0]) != len(recv[0]) {
		return fmt.Errorf("%w: local copy of %d values into %d", ErrCommunication, len(send[0]), len(recv[0]))
	}
	copy(recv[0], send[0])
	return nil
}

func (Local) AllReduceSum([]float64) error { return nil }

// AllReduceMax replaces vals with the elementwise maximum over all ranks.
func AllReduceMax(c Communicator, vals []float64) error {
	send := make([][]float64, c.Size())
	recv := make([][]float64, c.Size())
	for p := range send {
		send[p] = vals
		recv[p] = make([]float64, len(vals))
	}
	if err := c.AllToAll(send, recv); err != nil {
		return err
	}
	for i := range vals {
		for p := range recv {
			vals[i] = math.Max(vals[i], recv[p][i])
		}
	}
	return nil
}
