package cache

import "errors"

var (
	// ErrUnboundToken is returned when no context in the parent chain binds a
	// placeholder token.
	ErrUnboundToken = errors.New("cache: unbound token")
	// ErrConsecutiveSecondary is returned when a dependency reached through a
	// secondary context asks for another non-zero shift.
	ErrConsecutiveSecondary = errors.New("cache: consecutive secondary shift")
	// ErrNoSecondary is returned for a shift with no matching secondary context.
	ErrNoSecondary = errors.New("cache: no secondary context for shift")
	// ErrNotSet is returned when a value node is read before being set.
	ErrNotSet = errors.New("cache: value not set")
	ErrCycle  = errors.New("cache: dependency cycle")
	// ErrReleased is returned when a released context or one of its nodes is used.
	ErrReleased = errors.New("cache: context released")
	// ErrForeignNode is returned when a node from another context tree is used
	// as a dependency or binding.
	ErrForeignNode = errors.New("cache: node belongs to another context tree")
)
