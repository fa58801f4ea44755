package resolver

import "errors"

var (
	// ErrNotFound is returned when no candidate holds the requested item.
	ErrNotFound = errors.New("item not found")
	// ErrRecursiveLoopDetected is logged when a request came back to the node
	// which sent it.
	ErrRecursiveLoopDetected = errors.New("recursive resolution loop detected")
	// ErrRepositoryNotFound is returned when a request addresses an unknown
	// repository.
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrStreamingFailure is returned when the content of a resolved item
	// cannot be delivered.
	ErrStreamingFailure = errors.New("failed to stream item")
)
