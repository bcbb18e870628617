package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ProvisionRequestsTotal *prometheus.CounterVec
	RecordsGeneratedTotal  *prometheus.CounterVec
	FieldsMaskedTotal      *prometheus.CounterVec
	PolicyDenialsTotal     prometheus.Counter
	LedgerAppendFailures   prometheus.Counter
	ChainVerifications     *prometheus.CounterVec
	RequestDuration        prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		ProvisionRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ista_provision_requests_total",
			Help: "Total number of governance requests by action and outcome",
		}, []string{"action", "outcome"}),
		RecordsGeneratedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ista_records_generated_total",
			Help: "Total number of synthetic records generated per dataset",
		}, []string{"dataset"}),
		FieldsMaskedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ista_fields_masked_total",
			Help: "Total number of field values masked per strategy",
		}, []string{"strategy"}),
		PolicyDenialsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ista_policy_denials_total",
			Help: "Total number of requests denied by the policy engine",
		}),
		LedgerAppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ista_ledger_append_failures_total",
			Help: "Total number of failed audit ledger appends",
		}),
		ChainVerifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ista_ledger_verifications_total",
			Help: "Total number of audit chain verifications by result",
		}, []string{"result"}),
		RequestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ista_provision_request_duration_seconds",
			Help:    "End-to-end duration of governance requests",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveRequest(action, outcome string, seconds float64) {
	m.ProvisionRequestsTotal.WithLabelValues(action, outcome).Inc()
	m.RequestDuration.Observe(seconds)
}

func (m *Metrics) AddRecordsGenerated(dataset string, n int) {
	m.RecordsGeneratedTotal.WithLabelValues(dataset).Add(float64(n))
}

func (m *Metrics) AddFieldsMasked(strategy string, n int) {
	m.FieldsMaskedTotal.WithLabelValues(strategy).Add(float64(n))
}

func (m *Metrics) IncrementPolicyDenials() {
	m.PolicyDenialsTotal.Inc()
}

func (m *Metrics) IncrementLedgerAppendFailures() {
	m.LedgerAppendFailures.Inc()
}

func (m *Metrics) IncrementChainVerifications(intact bool) {
	result := "intact"
	if !intact {
		result = "broken"
	}
	m.ChainVerifications.WithLabelValues(result).Inc()
}
