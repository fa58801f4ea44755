package repository

import (
	"io/ioutil"
	"time"

	"github.com/sirupsen/logrus"
)

type repoOptions struct {
	releases     bool
	snapshots    bool
	tracker      Tracker
	logger       logrus.FieldLogger
	infoCache    InfoCache
	retrievalTTL time.Duration
	missedTTL    time.Duration
	cache        *CacheRepo
}

// Option configures a repository.
type Option func(*repoOptions)

// WithReleases toggles serving of release items.
func WithReleases(b bool) Option {
	return func(o *repoOptions) {
		o.releases = b
	}
}

// WithSnapshots toggles serving of snapshot items.
func WithSnapshots(b bool) Option {
	return func(o *repoOptions) {
		o.snapshots = b
	}
}

// WithTracker records stored and downloaded items.
func WithTracker(t Tracker) Option {
	return func(o *repoOptions) {
		o.tracker = t
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *repoOptions) {
		o.logger = l
	}
}

// WithInfoCache remembers remote lookups for ttl when found and missedTTL
// otherwise.
func WithInfoCache(c InfoCache, ttl, missedTTL time.Duration) Option {
	return func(o *repoOptions) {
		o.infoCache = c
		o.retrievalTTL = ttl
		o.missedTTL = missedTTL
	}
}

// WithCache stores items fetched by a remote repository in c.
func WithCache(c *CacheRepo) Option {
	return func(o *repoOptions) {
		o.cache = c
	}
}

func newOptions(opts []Option) repoOptions {
	o := repoOptions{releases: true, snapshots: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		defaultLogger := logrus.New()
		defaultLogger.SetOutput(ioutil.Discard)
		o.logger = defaultLogger
	}
	return o
}
