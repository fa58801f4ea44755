// Package metrics instruments item info caches with prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/mavenhub/registry/metrics"
	"github.com/mavenhub/registry/registry/repository"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCounter *prometheus.CounterVec
	durationHist   *prometheus.HistogramVec
	timeSince      = time.Since // for test purposes only
)

const (
	subsystem    = "info_cache"
	backendLabel = "backend"
	resultLabel  = "result"
	opLabel      = "operation"

	requestsName = "requests_total"
	requestsDesc = "A counter of item info cache lookups by result."

	durationName = "duration_seconds"
	durationDesc = "A histogram of latencies for item info cache operations."

	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)

func init() {
	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      requestsName,
			Help:      requestsDesc,
		},
		[]string{backendLabel, resultLabel},
	)

	durationHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      durationName,
			Help:      durationDesc,
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{backendLabel, opLabel},
	)

	prometheus.MustRegister(requestCounter)
	prometheus.MustRegister(durationHist)
}

// InfoCache counts hits and misses of the wrapped cache.
type InfoCache struct {
	backend string
	cache   repository.InfoCache
}

var _ repository.InfoCache = &InfoCache{}

// NewInfoCache instruments cache, labelling its metrics with backend.
func NewInfoCache(backend string, cache repository.InfoCache) *InfoCache {
	return &InfoCache{backend: backend, cache: cache}
}

// Get implements repository.InfoCache.
func (c *InfoCache) Get(ctx context.Context, p repository.RepoPath) (repository.RepoResource, bool, error) {
	start := time.Now()
	res, ok, err := c.cache.Get(ctx, p)
	durationHist.WithLabelValues(c.backend, "get").Observe(timeSince(start).Seconds())

	switch {
	case err != nil:
		requestCounter.WithLabelValues(c.backend, resultError).Inc()
	case ok:
		requestCounter.WithLabelValues(c.backend, resultHit).Inc()
	default:
		requestCounter.WithLabelValues(c.backend, resultMiss).Inc()
	}

	return res, ok, err
}

// Set implements repository.InfoCache.
func (c *InfoCache) Set(ctx context.Context, res repository.RepoResource, ttl time.Duration) error {
	start := time.Now()
	err := c.cache.Set(ctx, res, ttl)
	durationHist.WithLabelValues(c.backend, "set").Observe(timeSince(start).Seconds())
	return err
}
