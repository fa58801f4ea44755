package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSwitch_Running(t *testing.T) {
	var s Switch
	require.NoError(t, s.Wait(context.Background()))
	require.False(t, s.Paused())
}

func TestSwitch_PauseResume(t *testing.T) {
	var s Switch
	s.Pause()
	s.Pause() // idempotent
	require.True(t, s.Paused())

	done := make(chan error)
	go func() { done <- s.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("wait returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	s.Resume()
	require.NoError(t, <-done)
	require.False(t, s.Paused())

	// resuming a running switch is a no-op
	s.Resume()
	require.NoError(t, s.Wait(context.Background()))
}

func TestSwitch_StopReleasesPaused(t *testing.T) {
	var s Switch
	s.Pause()

	done := make(chan error)
	go func() { done <- s.Wait(context.Background()) }()

	s.Stop()
	require.ErrorIs(t, <-done, ErrStopped)
	require.ErrorIs(t, s.Wait(context.Background()), ErrStopped)
}

func TestSwitch_ContextDone(t *testing.T) {
	var s Switch
	s.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Wait(ctx), context.Canceled)
}
