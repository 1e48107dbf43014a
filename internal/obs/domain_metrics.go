package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CommissionReportsTotal counts report generations by source and outcome.
	CommissionReportsTotal *prometheus.CounterVec
	// CommissionReportRows counts ledger rows processed into reports.
	CommissionReportRows prometheus.Counter
	// CommissionReportDuration records pipeline latency in milliseconds.
	CommissionReportDuration *prometheus.HistogramVec
)

// Report sources.
const (
	SourceHTTP = "http"
	SourceJob  = "job"
	SourceCLI  = "cli"
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CommissionReportsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_reports_total",
			Help:      "Count of commission report generations by source and result.",
		}, []string{"source", "result"}))
		CommissionReportRows = registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_report_rows_total",
			Help:      "Ledger rows processed into commission reports.",
		}))
		CommissionReportDuration = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commission_report_duration_ms",
			Help:      "Commission pipeline latency in milliseconds.",
			Buckets:   defaultLatencyBuckets,
		}, []string{"source"}))
	})
}

// ObserveReport records one pipeline run. It is a no-op until
// MustRegisterDomainMetrics has been called.
func ObserveReport(source, result string, rows int, millis float64) {
	if CommissionReportsTotal == nil {
		return
	}
	CommissionReportsTotal.WithLabelValues(source, result).Inc()
	if rows > 0 {
		CommissionReportRows.Add(float64(rows))
	}
	CommissionReportDuration.WithLabelValues(source).Observe(millis)
}
