package comm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal(t *testing.T) {
	var c Local
	recv := [][]float64{make([]float64, 2)}
	require.NoError(t, c.AllToAll([][]float64{{1, 2}}, recv))
	assert.Equal(t, []float64{1, 2}, recv[0])

	err := c.AllToAll([][]float64{{1}, {2}}, recv)
	assert.True(t, errors.Is(err, ErrCommunication))

	v := []float64{3}
	require.NoError(t, c.AllReduceSum(v))
	assert.Equal(t, []float64{3}, v)
}

func TestWorld_AllToAll(t *testing.T) {
	w := NewWorld(3)
	got := make([][][]float64, 3)
	err := w.Run(func(c Communicator) error {
		me := c.Rank()
		send := make([][]float64, c.Size())
		recv := make([][]float64, c.Size())
		for p := range send {
			// rank me sends p+1 copies of 10*me+p
			for i := 0; i <= p; i++ {
				send[p] = append(send[p], float64(10*me+p))
			}
			recv[p] = make([]float64, me+1)
		}
		if err := c.AllToAll(send, recv); err != nil {
			return err
		}
		got[me] = recv
		return nil
	})
	require.NoError(t, err)
	for me := range got {
		for p := range got[me] {
			for _, v := range got[me][p] {
				assert.Equal(t, float64(10*p+me), v)
			}
		}
	}
}

func TestWorld_AllReduceSum(t *testing.T) {
	w := NewWorld(4)
	sums := make([][]float64, 4)
	err := w.Run(func(c Communicator) error {
		v := []float64{float64(c.Rank()), 0.1}
		if err := c.AllReduceSum(v); err != nil {
			return err
		}
		sums[c.Rank()] = v
		return nil
	})
	require.NoError(t, err)
	for r := range sums {
		assert.Equal(t, sums[0], sums[r])
		assert.Equal(t, 6.0, sums[r][0])
	}
}

func TestWorld_SizeMismatch(t *testing.T) {
	w := NewWorld(2)
	err := w.Run(func(c Communicator) error {
		send := [][]float64{{1}, {1}}
		recv := [][]float64{make([]float64, 1), make([]float64, 1+c.Rank())}
		return c.AllToAll(send, recv)
	})
	assert.True(t, errors.Is(err, ErrCommunication))
}

func TestAllReduceMax(t *testing.T) {
	w := NewWorld(3)
	got := make([][]float64, 3)
	err := w.Run(func(c Communicator) error {
		v := []float64{float64(c.Rank()), -float64(c.Rank())}
		if err := AllReduceMax(c, v); err != nil {
			return err
		}
		got[c.Rank()] = v
		return nil
	})
	require.NoError(t, err)
	for _, v := range got {
		assert.Equal(t, []float64{2, 0}, v)
	}

	v := []float64{1.5}
	require.NoError(t, AllReduceMax(Local{}, v))
	assert.Equal(t, []float64{1.5}, v)
}
