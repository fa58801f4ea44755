package cleanup

import (
	"context"
	"errors"
	"io/ioutil"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/golang/mock/gomock"
	"github.com/mavenhub/registry/registry/cleanup/internal"
	imocks "github.com/mavenhub/registry/registry/cleanup/internal/mocks"
	"github.com/mavenhub/registry/registry/cleanup/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewAgent(t *testing.T) {
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)

	tmp := logrus.New()
	tmp.SetOutput(ioutil.Discard)
	defaultLogger := tmp.WithField(componentKey, agentName)

	tmp = logrus.New()
	customLogger := tmp.WithField(componentKey, agentName)

	tests := []struct {
		name string
		opts []AgentOption
		want *Agent
	}{
		{
			name: "defaults",
			want: &Agent{
				logger:          defaultLogger,
				initialInterval: defaultInitialInterval,
				maxBackoff:      defaultMaxBackoff,
			},
		},
		{
			name: "with logger",
			opts: []AgentOption{WithLogger(customLogger)},
			want: &Agent{
				logger:          customLogger,
				initialInterval: defaultInitialInterval,
				maxBackoff:      defaultMaxBackoff,
			},
		},
		{
			name: "with initial interval",
			opts: []AgentOption{WithInitialInterval(10 * time.Hour)},
			want: &Agent{
				logger:          defaultLogger,
				initialInterval: 10 * time.Hour,
				maxBackoff:      defaultMaxBackoff,
			},
		},
		{
			name: "with max back off",
			opts: []AgentOption{WithMaxBackoff(10 * time.Hour)},
			want: &Agent{
				logger:          defaultLogger,
				initialInterval: defaultInitialInterval,
				maxBackoff:      10 * time.Hour,
			},
		},
		{
			name: "without idle back off",
			opts: []AgentOption{WithoutIdleBackoff()},
			want: &Agent{
				logger:          defaultLogger,
				initialInterval: defaultInitialInterval,
				maxBackoff:      defaultMaxBackoff,
				noIdleBackoff:   true,
			},
		},
		{
			name: "with all options",
			opts: []AgentOption{
				WithLogger(customLogger),
				WithInitialInterval(1 * time.Hour),
				WithMaxBackoff(2 * time.Hour),
				WithoutIdleBackoff(),
			},
			want: &Agent{
				logger:          customLogger,
				initialInterval: 1 * time.Hour,
				maxBackoff:      2 * time.Hour,
				noIdleBackoff:   true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewAgent(workerMock, tt.opts...)

			require.Equal(t, workerMock, got.worker)
			require.Equal(t, tt.want.initialInterval, got.initialInterval)
			require.Equal(t, tt.want.maxBackoff, got.maxBackoff)
			require.Equal(t, tt.want.noIdleBackoff, got.noIdleBackoff)

			// loggers can only be compared through their public fields
			wantLogger, ok := tt.want.logger.(*logrus.Entry)
			require.True(t, ok)
			gotLogger, ok := got.logger.(*logrus.Entry)
			require.True(t, ok)
			require.EqualValues(t, wantLogger.Logger.Level, gotLogger.Logger.Level)
			require.Equal(t, wantLogger.Logger.Formatter, gotLogger.Logger.Formatter)
			require.Equal(t, wantLogger.Logger.Out, gotLogger.Logger.Out)
			require.Equal(t, agentName, gotLogger.Data[componentKey])
		})
	}
}

func stubBackoff(tb testing.TB, m *imocks.MockBackoff) {
	tb.Helper()

	bkp := backoffConstructor
	backoffConstructor = func(initInterval, maxInterval time.Duration) internal.Backoff {
		return m
	}
	tb.Cleanup(func() { backoffConstructor = bkp })
}

func stubSystemClock(tb testing.TB, m internal.Clock) {
	tb.Helper()

	bkp := systemClock
	systemClock = m
	tb.Cleanup(func() { systemClock = bkp })
}

type agentMocks struct {
	worker  *mocks.MockWorker
	backoff *imocks.MockBackoff
	clock   *imocks.MockClock
}

func newAgentMocks(t *testing.T) agentMocks {
	t.Helper()

	ctrl := gomock.NewController(t)
	m := agentMocks{
		worker:  mocks.NewMockWorker(ctrl),
		backoff: imocks.NewMockBackoff(ctrl),
		clock:   imocks.NewMockClock(ctrl),
	}
	stubBackoff(t, m.backoff)
	stubSystemClock(t, m.clock)

	return m
}

func TestAgent_Start_Jitter(t *testing.T) {
	ctrl := gomock.NewController(t)
	workerMock := mocks.NewMockWorker(ctrl)
	clockMock := imocks.NewMockClock(ctrl)
	stubSystemClock(t, clockMock)

	agent := NewAgent(workerMock, WithLogger(logrus.New()))

	// a fixed seed makes the jitter reproducible
	now := time.Time{}
	rand.Seed(now.UnixNano())
	expectedJitter := time.Duration(rand.Intn(startJitterMaxSeconds)) * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gomock.InOrder(
		workerMock.EXPECT().Name().Return(policyWorkerName).Times(1),
		clockMock.EXPECT().Now().Return(now).Times(2), // backoff.NewExponentialBackOff calls Now() once
		clockMock.EXPECT().Sleep(expectedJitter).Do(func(_ time.Duration) { cancel() }).Times(1),
	)

	err := agent.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAgent_Start_Runs(t *testing.T) {
	seedTime := time.Time{}
	startTime := seedTime.Add(1 * time.Millisecond)
	backOff := defaultInitialInterval

	tests := []struct {
		name          string
		opts          []AgentOption
		found         bool
		runErr        error
		expectedReset bool
	}{
		{name: "nothing found", found: false},
		{name: "nothing found without idle back off", opts: []AgentOption{WithoutIdleBackoff()}, expectedReset: true},
		{name: "found", found: true, expectedReset: true},
		{name: "error", runErr: errors.New("fake error")},
		{name: "error without idle back off", opts: []AgentOption{WithoutIdleBackoff()}, runErr: errors.New("fake error")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newAgentMocks(t)
			agent := NewAgent(m.worker, append([]AgentOption{WithLogger(logrus.New())}, tt.opts...)...)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			calls := []*gomock.Call{
				m.worker.EXPECT().Name().Return(policyWorkerName).Times(1),
				m.clock.EXPECT().Now().Return(seedTime).Times(1),
				m.clock.EXPECT().Sleep(gomock.Any()).Times(1),
				m.clock.EXPECT().Now().Return(startTime).Times(1),
				m.worker.EXPECT().Run(gomock.Any()).Return(tt.found, tt.runErr).Times(1),
			}
			if tt.expectedReset {
				calls = append(calls, m.backoff.EXPECT().Reset().Times(1))
			}
			calls = append(calls,
				m.clock.EXPECT().Since(startTime).Return(100*time.Millisecond).Times(1),
				m.backoff.EXPECT().NextBackOff().Return(backOff).Times(1),
				m.clock.EXPECT().Sleep(backOff).Do(func(_ time.Duration) { cancel() }).Times(1),
			)
			gomock.InOrder(calls...)

			err := agent.Start(ctx)
			require.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestAgent_Start_RunLoopSurvivesError(t *testing.T) {
	m := newAgentMocks(t)
	agent := NewAgent(m.worker, WithLogger(logrus.New()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seedTime := time.Time{}
	startTime := seedTime.Add(1 * time.Millisecond)
	backOff := defaultInitialInterval

	gomock.InOrder(
		m.worker.EXPECT().Name().Return(policyWorkerName).Times(1),
		m.clock.EXPECT().Now().Return(seedTime).Times(1),
		m.clock.EXPECT().Sleep(gomock.Any()).Times(1),
		// 1st run
		m.clock.EXPECT().Now().Return(startTime).Times(1),
		m.worker.EXPECT().Run(gomock.Any()).Return(false, errors.New("fake error")).Times(1),
		m.clock.EXPECT().Since(startTime).Return(100*time.Millisecond).Times(1),
		m.backoff.EXPECT().NextBackOff().Return(backOff).Times(1),
		m.clock.EXPECT().Sleep(backOff).Times(1),
		// 2nd run
		m.clock.EXPECT().Now().Return(startTime).Times(1),
		m.worker.EXPECT().Run(gomock.Any()).Return(true, nil).Times(1),
		m.backoff.EXPECT().Reset().Times(1),
		m.clock.EXPECT().Since(startTime).Return(100*time.Millisecond).Times(1),
		m.backoff.EXPECT().NextBackOff().Return(backOff).Times(1),
		m.clock.EXPECT().Sleep(backOff).Do(func(_ time.Duration) { cancel() }).Times(1),
	)

	err := agent.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func Test_newBackoff(t *testing.T) {
	clockMock := clock.NewMock()
	clockMock.Set(time.Time{})
	stubSystemClock(t, clockMock)

	initInterval := 5 * time.Minute
	maxInterval := 24 * time.Hour

	want := &backoff.ExponentialBackOff{
		InitialInterval:     initInterval,
		RandomizationFactor: backoffJitterFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               clockMock,
	}
	want.Reset()

	tmp := newBackoff(initInterval, maxInterval)
	got, ok := tmp.(*backoff.ExponentialBackOff)
	require.True(t, ok)
	require.NotNil(t, got)
	require.Equal(t, want, got)
}
