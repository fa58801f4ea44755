//go:generate mockgen -package mocks -destination mocks/worker.go . Worker

package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hashicorp/go-multierror"
	dcontext "github.com/mavenhub/registry/context"
	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/labkit/correlation"
	"gitlab.com/gitlab-org/labkit/errortracking"
)

const (
	componentKey     = "component"
	policyWorkerName = "registry.cleanup.PolicyWorker"
)

// Worker represents a background cleanup worker.
type Worker interface {
	// Name returns the worker name.
	Name() string
	// Run executes one pass. found reports whether anything was deleted.
	Run(ctx context.Context) (found bool, err error)
}

// Policy asks for the removal of items of a cache repository not downloaded
// within UnusedPeriod.
type Policy struct {
	Repository   string
	UnusedPeriod time.Duration
}

// PolicyWorker sweeps each configured cache repository in turn.
type PolicyWorker struct {
	cleaner  *Cleaner
	policies []Policy
	logger   dcontext.Logger
}

// PolicyWorkerOption provides functional options for NewPolicyWorker.
type PolicyWorkerOption func(*PolicyWorker)

// WithWorkerLogger sets the worker logger.
func WithWorkerLogger(l dcontext.Logger) PolicyWorkerOption {
	return func(w *PolicyWorker) {
		w.logger = l
	}
}

// NewPolicyWorker creates a new PolicyWorker.
func NewPolicyWorker(c *Cleaner, policies []Policy, opts ...PolicyWorkerOption) *PolicyWorker {
	w := &PolicyWorker{cleaner: c, policies: policies}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		l := logrus.New()
		l.SetOutput(ioutil.Discard)
		w.logger = l
	}
	w.logger = w.logger.WithField(componentKey, policyWorkerName)

	return w
}

// Name implements Worker.
func (w *PolicyWorker) Name() string {
	return policyWorkerName
}

// Run implements Worker. A failing policy does not prevent the following
// ones from running, unless the run was stopped.
func (w *PolicyWorker) Run(ctx context.Context) (bool, error) {
	ctx = injectCorrelationID(ctx, w.logger)
	defer reportPanic()

	var (
		found bool
		errs  *multierror.Error
	)
	for _, p := range w.policies {
		report, err := w.cleaner.Clean(ctx, p.Repository, p.UnusedPeriod)
		if report != nil && report.Deleted > 0 {
			found = true
		}
		if err != nil {
			err = fmt.Errorf("cleaning %s: %w", p.Repository, err)
			w.logAndReportErr(ctx, err)
			if errors.Is(err, ErrStopped) || ctx.Err() != nil {
				return found, err
			}
			errs = multierror.Append(errs, err)
			continue
		}
		if report.Errors != nil {
			w.logAndReportErr(ctx, fmt.Errorf("cleaning %s: %w", p.Repository, report.Errors))
		}
	}

	return found, errs.ErrorOrNil()
}

func (w *PolicyWorker) logAndReportErr(ctx context.Context, err error) {
	errortracking.Capture(
		err,
		errortracking.WithContext(ctx),
		errortracking.WithField(componentKey, policyWorkerName),
	)
	dcontext.GetLogger(ctx).WithError(err).Error(err.Error())
}

func injectCorrelationID(ctx context.Context, logger dcontext.Logger) context.Context {
	id := correlation.SafeRandomID()
	ctx = correlation.ContextWithCorrelation(ctx, id)

	return dcontext.WithLogger(ctx, logger.WithField("correlation_id", id))
}

// reportPanic notifies Sentry of a panic before re-raising it.
func reportPanic() {
	if err := recover(); err != nil {
		sentry.CurrentHub().Recover(err)
		sentry.Flush(5 * time.Second)
		panic(err)
	}
}
