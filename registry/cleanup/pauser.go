package cleanup

import (
	"context"
	"sync"
)

// Pauser lets a running sweep be suspended or stopped from outside.
type Pauser interface {
	// Wait blocks while the sweep is paused. It returns ErrStopped once the
	// sweep must stop, or the context error if ctx is done first.
	Wait(ctx context.Context) error
}

// Switch is a Pauser controlled through Pause, Resume and Stop. The zero
// value is a running switch.
type Switch struct {
	mu      sync.Mutex
	paused  bool
	stopped bool
	resume  chan struct{}
}

// Pause suspends sweeps at their next check.
func (s *Switch) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		s.paused = true
		s.resume = make(chan struct{})
	}
}

// Resume releases paused sweeps.
func (s *Switch) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.release()
}

// Stop makes sweeps return ErrStopped at their next check, paused ones
// included. A stopped switch cannot be restarted.
func (s *Switch) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.release()
}

func (s *Switch) release() {
	if s.paused {
		s.paused = false
		close(s.resume)
	}
}

// Paused reports whether the switch is paused.
func (s *Switch) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Wait implements Pauser.
func (s *Switch) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		stopped, paused, resume := s.stopped, s.paused, s.resume
		s.mu.Unlock()

		switch {
		case stopped:
			return ErrStopped
		case !paused:
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resume:
		}
	}
}

type noopPauser struct{}

func (noopPauser) Wait(ctx context.Context) error { return ctx.Err() }
