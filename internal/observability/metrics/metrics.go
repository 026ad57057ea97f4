// Package metrics exposes Prometheus instrumentation for the decision
// engine and the accounting pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Registry *prometheus.Registry

	AuthorizeTotal      *prometheus.CounterVec
	ReportAccepted      prometheus.Counter
	TransactionsOK      prometheus.Counter
	TransactionsErrored prometheus.Counter
	TransactionsFailed  prometheus.Counter
	RetryAttempts       prometheus.Counter
	QueueDepth          prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		AuthorizeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tollgate_authorize_total",
			Help: "Authorization verdicts by outcome code.",
		}, []string{"outcome"}),
		ReportAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tollgate_report_accepted_total",
			Help: "Report calls accepted onto the queue.",
		}),
		TransactionsOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tollgate_transactions_processed_total",
			Help: "Transactions whose counters were fully applied.",
		}),
		TransactionsErrored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tollgate_transactions_errored_total",
			Help: "Transactions skipped on logical resolution failure.",
		}),
		TransactionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tollgate_transactions_failed_total",
			Help: "Transactions that exhausted infrastructure retries.",
		}),
		RetryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tollgate_report_retry_attempts_total",
			Help: "Counter-store retry attempts in the report workers.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tollgate_report_queue_depth",
			Help: "Jobs waiting in the report queue.",
		}),
	}

	reg.MustRegister(
		m.AuthorizeTotal,
		m.ReportAccepted,
		m.TransactionsOK,
		m.TransactionsErrored,
		m.TransactionsFailed,
		m.RetryAttempts,
		m.QueueDepth,
	)

	return m
}

// ObserveAuthorize records a verdict outcome ("authorized", "limits_exceeded",
// or an error code).
func (m *Metrics) ObserveAuthorize(outcome string) {
	if m == nil {
		return
	}
	m.AuthorizeTotal.WithLabelValues(outcome).Inc()
}
