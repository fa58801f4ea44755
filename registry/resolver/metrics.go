package resolver

import (
	"time"

	"github.com/mavenhub/registry/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	resolutionCounter      *prometheus.CounterVec
	resolutionDurationHist *prometheus.HistogramVec
	timeSince              = time.Since // for test purposes only
)

const (
	subsystem     = "resolver"
	strategyLabel = "strategy"
	outcomeLabel  = "outcome"

	resolutionTotalName = "resolutions_total"
	resolutionTotalDesc = "A counter of item resolutions by outcome."

	resolutionDurationName = "resolution_duration_seconds"
	resolutionDurationDesc = "A histogram of latencies for item resolutions, excluding content transfer."

	strategyStandard = "standard"
	strategyUpdate   = "update"
	strategyNone     = "none"
)

func init() {
	resolutionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      resolutionTotalName,
			Help:      resolutionTotalDesc,
		},
		[]string{strategyLabel, outcomeLabel},
	)

	resolutionDurationHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      resolutionDurationName,
			Help:      resolutionDurationDesc,
			Buckets:   prometheus.DefBuckets,
		},
		[]string{strategyLabel},
	)

	prometheus.MustRegister(resolutionCounter)
	prometheus.MustRegister(resolutionDurationHist)
}

func resolution(strategy string) func(outcome string) {
	start := time.Now()
	return func(outcome string) {
		resolutionCounter.WithLabelValues(strategy, outcome).Inc()
		resolutionDurationHist.WithLabelValues(strategy).Observe(timeSince(start).Seconds())
	}
}
