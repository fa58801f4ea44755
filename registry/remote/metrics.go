package remote

import (
	"net/http"
	"strconv"

	"github.com/mavenhub/registry/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "remote"

var requestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metrics.NamespacePrefix,
		Subsystem: subsystem,
		Name:      "requests_total",
		Help:      "A counter of requests sent to upstream servers.",
	},
	[]string{"repository", "method", "code"},
)

func init() {
	prometheus.MustRegister(requestsTotal)
}

// report counts an upstream request. Transport failures use the "error" code.
func report(repo, method string, resp *http.Response, err error) {
	code := "error"
	if err == nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	requestsTotal.WithLabelValues(repo, method, code).Inc()
}
