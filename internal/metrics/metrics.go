package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Connector metrics, registered explicitly with the default registry.
var (
	RecordsTotal     *prometheus.CounterVec
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	FetchErrorsTotal *prometheus.CounterVec
)

func init() {
	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convosync",
			Name:      "records_total",
			Help:      "Records processed by the ingestion pipeline",
		},
		[]string{"entity", "outcome"},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convosync",
			Name:      "runs_total",
			Help:      "Completed sync runs by status",
		},
		[]string{"status"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "convosync",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one sync run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	FetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "convosync",
			Name:      "fetch_errors_total",
			Help:      "Failed calls to the support API",
		},
		[]string{"endpoint"},
	)

	prometheus.MustRegister(RecordsTotal, RunsTotal, RunDuration, FetchErrorsTotal)
}

// Outcome labels for RecordsTotal.
const (
	OutcomeSaved   = "saved"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
