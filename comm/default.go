//go:build !mpi

package comm

// Default returns the communicator of the process. Without the mpi build tag
// every process runs alone.
func Default() (Communicator, error) { return Local{}, nil }

// Finalize releases the process communicator.
func Finalize() {}
