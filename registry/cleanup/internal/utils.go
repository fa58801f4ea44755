//go:generate mockgen -package mocks -destination mocks/utils.go . Clock,Backoff

package internal

import "time"

// Clock is the subset of time functions used by the cleanup agent.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(d time.Duration)
}

// Backoff represents a back off generator.
type Backoff interface {
	// Reset resets the interval back to the initial retry interval.
	Reset()
	// NextBackOff calculates the next backoff interval.
	NextBackOff() time.Duration
}
