package metadata

import (
	"strconv"
	"time"

	"github.com/mavenhub/registry/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	recalcCounter      *prometheus.CounterVec
	recalcDurationHist *prometheus.HistogramVec
	timeSince          = time.Since // for test purposes only
)

const (
	subsystem    = "metadata"
	triggerLabel = "trigger"
	changedLabel = "changed"
	errorLabel   = "error"

	recalcTotalName = "recalculations_total"
	recalcTotalDesc = "A counter of metadata document recalculations."

	recalcDurationName = "recalculation_duration_seconds"
	recalcDurationDesc = "A histogram of latencies for metadata document recalculations."

	triggerDeletion = "deletion"
	triggerDeploy   = "deploy"
	triggerTree     = "tree"
)

func init() {
	recalcCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      recalcTotalName,
			Help:      recalcTotalDesc,
		},
		[]string{triggerLabel, changedLabel, errorLabel},
	)

	recalcDurationHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      recalcDurationName,
			Help:      recalcDurationDesc,
			Buckets:   prometheus.DefBuckets,
		},
		[]string{triggerLabel},
	)

	prometheus.MustRegister(recalcCounter)
	prometheus.MustRegister(recalcDurationHist)
}

func recalculation(trigger string) func(changed bool, err error) {
	start := time.Now()
	return func(changed bool, err error) {
		recalcCounter.WithLabelValues(trigger, strconv.FormatBool(changed), strconv.FormatBool(err != nil)).Inc()
		recalcDurationHist.WithLabelValues(trigger).Observe(timeSince(start).Seconds())
	}
}
