package cleanup

import (
	"context"
	"io/ioutil"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/cleanup/internal"
	"github.com/mavenhub/registry/registry/cleanup/internal/metrics"
	"github.com/sirupsen/logrus"
)

const agentName = "registry.cleanup.Agent"

var (
	defaultInitialInterval = 1 * time.Hour
	defaultMaxBackoff      = 24 * time.Hour
	backoffJitterFactor    = 0.33
	startJitterMaxSeconds  = 60

	// for testing purposes (mocks)
	backoffConstructor                = newBackoff
	systemClock        internal.Clock = clock.New()
)

// Agent runs a cleanup worker in the background.
type Agent struct {
	worker          Worker
	logger          dcontext.Logger
	initialInterval time.Duration
	maxBackoff      time.Duration
	noIdleBackoff   bool
}

// AgentOption provides functional options for NewAgent.
type AgentOption func(*Agent)

// WithLogger sets the logger.
func WithLogger(l dcontext.Logger) AgentOption {
	return func(a *Agent) {
		a.logger = l
	}
}

// WithInitialInterval sets the initial interval between worker runs. Defaults to 1 hour.
func WithInitialInterval(d time.Duration) AgentOption {
	return func(a *Agent) {
		a.initialInterval = d
	}
}

// WithMaxBackoff sets the maximum exponential back off applied between worker runs after an error, or when a run
// deleted nothing unless WithoutIdleBackoff is provided. A random jitter of up to 33% is added on top. Defaults to 24
// hours.
func WithMaxBackoff(d time.Duration) AgentOption {
	return func(a *Agent) {
		a.maxBackoff = d
	}
}

// WithoutIdleBackoff disables the exponential back off after runs which deleted nothing.
func WithoutIdleBackoff() AgentOption {
	return func(a *Agent) {
		a.noIdleBackoff = true
	}
}

func (a *Agent) applyDefaults() {
	if a.logger == nil {
		defaultLogger := logrus.New()
		defaultLogger.SetOutput(ioutil.Discard)
		a.logger = defaultLogger
	}
	if a.initialInterval == 0 {
		a.initialInterval = defaultInitialInterval
	}
	if a.maxBackoff == 0 {
		a.maxBackoff = defaultMaxBackoff
	}
}

// NewAgent creates a new Agent.
func NewAgent(w Worker, opts ...AgentOption) *Agent {
	a := &Agent{worker: w}
	a.applyDefaults()

	for _, opt := range opts {
		opt(a)
	}

	a.logger = a.logger.WithField(componentKey, agentName)

	return a
}

// Start runs the worker in a loop until ctx is canceled. Runs are separated by the initial interval plus an
// exponential back off, grown after failed runs and after runs which deleted nothing (unless WithoutIdleBackoff was
// provided), and reset otherwise. The first run is delayed by a random jitter of up to 60 seconds so that nodes of a
// cluster do not sweep in lockstep.
func (a *Agent) Start(ctx context.Context) error {
	name := a.worker.Name()
	log := a.logger.WithField("worker", name)
	ctx = dcontext.WithLogger(ctx, log)
	b := backoffConstructor(a.initialInterval, a.maxBackoff)

	rand.Seed(systemClock.Now().UnixNano())
	/* #nosec G404 */
	jitter := time.Duration(rand.Intn(startJitterMaxSeconds)) * time.Second
	log.WithField("jitter_s", jitter.Seconds()).Info("starting cleanup agent")
	systemClock.Sleep(jitter)

	for {
		select {
		case <-ctx.Done():
			log.Warn("context cancelled, exiting")
			return ctx.Err()
		default:
			start := systemClock.Now()
			log.Info("running worker")

			report := metrics.WorkerRun(name)
			found, err := a.worker.Run(ctx)
			if err != nil {
				log.WithError(err).Error("failed run")
			} else if found || a.noIdleBackoff {
				b.Reset()
			}
			report(!found, err)
			log.WithField("duration_s", systemClock.Since(start).Seconds()).Info("run complete")

			sleep := b.NextBackOff()
			log.WithField("duration_s", sleep.Seconds()).Info("sleeping")
			metrics.WorkerSleep(name, sleep)
			systemClock.Sleep(sleep)
		}
	}
}

func newBackoff(initInterval, maxInterval time.Duration) internal.Backoff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initInterval
	b.MaxInterval = maxInterval
	b.RandomizationFactor = backoffJitterFactor
	b.MaxElapsedTime = 0
	b.Clock = systemClock
	b.Reset()

	return b
}
