// Package metrics instruments the item index queries.
package metrics

import (
	"time"

	"github.com/mavenhub/registry/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Table is the index table a query is primarily run against.
type Table string

const (
	TableNodes     Table = "nodes"
	TableNodeProps Table = "node_props"
	TableStats     Table = "stats"
)

var (
	queryDurationHist *prometheus.HistogramVec
	queryTotal        *prometheus.CounterVec
	aqlRowsHist       *prometheus.HistogramVec
	timeSince         = time.Since // for test purposes only
)

const (
	subsystem   = "item_index"
	tableLabel  = "table"
	queryLabel  = "query"
	domainLabel = "domain"

	queryDurationName = "query_duration_seconds"
	queryDurationDesc = "A histogram of latencies for item index queries."

	queryTotalName = "queries_total"
	queryTotalDesc = "A counter for item index queries."

	aqlRowsName = "aql_result_rows"
	aqlRowsDesc = "A histogram of the number of rows returned by AQL searches."
)

func init() {
	queryDurationHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      queryDurationName,
			Help:      queryDurationDesc,
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{tableLabel, queryLabel},
	)

	queryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      queryTotalName,
			Help:      queryTotalDesc,
		},
		[]string{tableLabel, queryLabel},
	)

	aqlRowsHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.NamespacePrefix,
			Subsystem: subsystem,
			Name:      aqlRowsName,
			Help:      aqlRowsDesc,
			Buckets:   prometheus.ExponentialBuckets(1, 10, 5),
		},
		[]string{domainLabel},
	)

	prometheus.MustRegister(queryDurationHist)
	prometheus.MustRegister(queryTotal)
	prometheus.MustRegister(aqlRowsHist)
}

// InstrumentQuery starts timing the query name on table. The returned
// function records it.
func InstrumentQuery(table Table, name string) func() {
	start := time.Now()
	return func() {
		queryTotal.WithLabelValues(string(table), name).Inc()
		queryDurationHist.WithLabelValues(string(table), name).Observe(timeSince(start).Seconds())
	}
}

// AQLRows records the size of the result of an AQL search in domain.
func AQLRows(domain string, n int) {
	aqlRowsHist.WithLabelValues(domain).Observe(float64(n))
}
