package cleanup

import "errors"

var (
	// ErrInvalidArgument is returned when a sweep targets a repository which
	// is not a cache, or is given a non positive unused period.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStopped is returned when a sweep is stopped through its Pauser.
	ErrStopped = errors.New("cleanup stopped")
)
