//go:generate mockgen -package mocks -destination mocks/cleanup.go . Searcher,Remover,CacheResolver

// Package cleanup removes cached items which were not downloaded for a
// configured period.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	dcontext "github.com/mavenhub/registry/context"
	"github.com/mavenhub/registry/registry/cleanup/internal"
	"github.com/mavenhub/registry/registry/cleanup/internal/metrics"
	"github.com/mavenhub/registry/registry/repository"
)

const defaultCheckEvery = 100

// Searcher finds items by last download time.
type Searcher interface {
	// FindNotDownloadedSince returns the files of repoKey last downloaded
	// before since, or never downloaded and created before since.
	FindNotDownloadedSince(ctx context.Context, repoKey string, since time.Time) ([]repository.RepoPath, error)
}

// Remover deletes items from storage.
type Remover interface {
	RemoveItem(ctx context.Context, p repository.RepoPath) error
}

// CacheResolver tells which repositories are caches.
type CacheResolver interface {
	IsCache(repoKey string) bool
}

// Report summarises a sweep.
type Report struct {
	Repository  string
	Expiry      time.Time
	Candidates  int
	Deleted     int
	Missing     int
	Failed      int
	Interrupted bool
	// Errors holds the per-item deletion failures.
	Errors error
}

// Cleaner sweeps unused items out of cache repositories.
type Cleaner struct {
	repos      CacheResolver
	searcher   Searcher
	remover    Remover
	pauser     Pauser
	checkEvery int
	clock      internal.Clock
}

// CleanerOption configures a Cleaner.
type CleanerOption func(*Cleaner)

// WithPauser sets the Pauser checked while sweeping.
func WithPauser(p Pauser) CleanerOption {
	return func(c *Cleaner) {
		c.pauser = p
	}
}

// WithCheckEvery sets how many items are processed between two pause and
// cancellation checks. Defaults to 100.
func WithCheckEvery(n int) CleanerOption {
	return func(c *Cleaner) {
		c.checkEvery = n
	}
}

// WithClock sets the clock used to compute expiry times.
func WithClock(clk internal.Clock) CleanerOption {
	return func(c *Cleaner) {
		c.clock = clk
	}
}

// NewCleaner creates a new Cleaner.
func NewCleaner(repos CacheResolver, searcher Searcher, remover Remover, opts ...CleanerOption) *Cleaner {
	c := &Cleaner{
		repos:    repos,
		searcher: searcher,
		remover:  remover,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.pauser == nil {
		c.pauser = noopPauser{}
	}
	if c.checkEvery <= 0 {
		c.checkEvery = defaultCheckEvery
	}
	if c.clock == nil {
		c.clock = clock.New()
	}

	return c
}

// Clean removes the items of cache repository repoKey not downloaded within
// unusedPeriod. Items failing to delete are logged and skipped. Items already
// gone are counted as missing. Running it again resumes an interrupted
// sweep.
//
// The Pauser and ctx are checked before the first item and then every
// CheckEvery items. When either asks to stop, Clean returns the partial
// report along with the reason.
func (c *Cleaner) Clean(ctx context.Context, repoKey string, unusedPeriod time.Duration) (*Report, error) {
	if !c.repos.IsCache(repoKey) {
		return nil, fmt.Errorf("%w: %q is not a cache repository", ErrInvalidArgument, repoKey)
	}
	if unusedPeriod <= 0 {
		return nil, fmt.Errorf("%w: unused period must be positive, got %s", ErrInvalidArgument, unusedPeriod)
	}

	report := &Report{
		Repository: repoKey,
		Expiry:     c.clock.Now().Add(-unusedPeriod),
	}
	log := dcontext.GetLoggerWithFields(ctx, map[interface{}]interface{}{
		"repository": repoKey,
		"expiry":     report.Expiry,
	})

	items, err := c.searcher.FindNotDownloadedSince(ctx, repoKey, report.Expiry)
	if err != nil {
		return nil, fmt.Errorf("searching unused items of %s: %w", repoKey, err)
	}
	report.Candidates = len(items)
	log.WithField("candidates", len(items)).Info("starting cleanup sweep")

	var errs *multierror.Error
	for i, p := range items {
		if i%c.checkEvery == 0 {
			if err := c.pauser.Wait(ctx); err != nil {
				report.Interrupted = true
				report.Errors = errs.ErrorOrNil()
				metrics.SweepInterrupted(repoKey)
				log.WithError(err).WithField("processed", i).Warn("cleanup sweep interrupted")
				return report, err
			}
		}

		err := c.remover.RemoveItem(ctx, p)
		switch {
		case err == nil:
			report.Deleted++
			metrics.Item(repoKey, metrics.OutcomeDeleted)
		case errors.Is(err, repository.ErrResourceNotFound):
			report.Missing++
			metrics.Item(repoKey, metrics.OutcomeMissing)
			log.WithField("path", p.String()).Debug("unused item already gone")
		default:
			report.Failed++
			metrics.Item(repoKey, metrics.OutcomeFailed)
			errs = multierror.Append(errs, fmt.Errorf("deleting %s: %w", p, err))
			log.WithError(err).WithField("path", p.String()).Warn("failed to delete unused item")
		}
	}
	report.Errors = errs.ErrorOrNil()

	log.WithFields(map[string]interface{}{
		"deleted": report.Deleted,
		"missing": report.Missing,
		"failed":  report.Failed,
	}).Info("cleanup sweep complete")

	return report, nil
}
