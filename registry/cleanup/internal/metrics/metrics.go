package metrics

import (
	"strconv"
	"time"

	"github.com/mavenhub/registry/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runDurationHist  *prometheus.HistogramVec
	runCounter       *prometheus.CounterVec
	sleepDuration    *prometheus.GaugeVec
	itemsCounter     *prometheus.CounterVec
	sweepInterrupted *prometheus.CounterVec
	timeSince        = time.Since // for test purposes only
)

const (
	subsystem       = "cleanup"
	workerLabel     = "worker"
	errorLabel      = "error"
	noopLabel       = "noop"
	repositoryLabel = "repository"
	outcomeLabel    = "outcome"

	runDurationName = "run_duration_seconds"
	runDurationDesc = "A histogram of latencies for cleanup worker runs."

	runTotalName = "runs_total"
	runTotalDesc = "A counter for cleanup worker runs."

	sleepDurationName = "sleep_duration_seconds"
	sleepDurationDesc = "The back off applied before the next cleanup worker run."

	itemsTotalName = "items_total"
	itemsTotalDesc = "A counter for unused items processed by cleanup sweeps."

	interruptedTotalName = "interrupted_sweeps_total"
	interruptedTotalDesc = "A counter for cleanup sweeps stopped before completion."
)

// Item outcomes.
const (
	OutcomeDeleted = "deleted"
	OutcomeMissing = "missing"
	OutcomeFailed  = "failed"
)

func init() {
	runDurationHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      runDurationName,
			Help:      runDurationDesc,
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900, 3600},
		},
		[]string{workerLabel, noopLabel, errorLabel},
	)

	runCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      runTotalName,
			Help:      runTotalDesc,
		},
		[]string{workerLabel, noopLabel, errorLabel},
	)

	sleepDuration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      sleepDurationName,
			Help:      sleepDurationDesc,
		},
		[]string{workerLabel},
	)

	itemsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      itemsTotalName,
			Help:      itemsTotalDesc,
		},
		[]string{repositoryLabel, outcomeLabel},
	)

	sweepInterrupted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      interruptedTotalName,
			Help:      interruptedTotalDesc,
		},
		[]string{repositoryLabel},
	)

	prometheus.MustRegister(runDurationHist)
	prometheus.MustRegister(runCounter)
	prometheus.MustRegister(sleepDuration)
	prometheus.MustRegister(itemsCounter)
	prometheus.MustRegister(sweepInterrupted)
}

// WorkerRun starts timing a worker run. The returned function records its
// outcome.
func WorkerRun(name string) func(noop bool, err error) {
	start := time.Now()
	return func(noop bool, err error) {
		failed := strconv.FormatBool(err != nil)
		np := strconv.FormatBool(noop)

		runCounter.WithLabelValues(name, np, failed).Inc()
		runDurationHist.WithLabelValues(name, np, failed).Observe(timeSince(start).Seconds())
	}
}

// WorkerSleep records the back off before the next run of a worker.
func WorkerSleep(name string, d time.Duration) {
	sleepDuration.WithLabelValues(name).Set(d.Seconds())
}

// Item counts an item processed by a sweep of repo.
func Item(repo, outcome string) {
	itemsCounter.WithLabelValues(repo, outcome).Inc()
}

// SweepInterrupted counts a sweep of repo stopped before completion.
func SweepInterrupted(repo string) {
	sweepInterrupted.WithLabelValues(repo).Inc()
}
