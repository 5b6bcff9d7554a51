package metrics

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsGenerator is everything the dispatch server and the operation driver
// report. *HybridComputeMetrics implements it.
type MetricsGenerator interface {
	IncDispatch(selector, outcome string)
	ObserveDispatchLatency(selector string, elapsed time.Duration)

	IncTransition(state string)
	IncReceiptPoll(status string)

	AddFees(l2Fee, l1Fee *big.Int)
	AddUptime(float64)
}

// HybridComputeMetrics contains the instrumented metrics of an hc node
type HybridComputeMetrics struct {
	uptime prometheus.Counter

	dispatchRequests *prometheus.CounterVec
	dispatchLatency  *prometheus.HistogramVec

	transitions  *prometheus.CounterVec
	receiptPolls *prometheus.CounterVec

	l2FeeWei prometheus.Counter
	l1FeeWei prometheus.Counter
}

const hcNamespace = "hc"

func NewHybridComputeMetrics(reg prometheus.Registerer) *HybridComputeMetrics {
	return &HybridComputeMetrics{
		uptime: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: hcNamespace,
				Name:      "uptime_milliseconds_total",
				Help:      "The elapse time in milliseconds since the node is booted",
			}),

		dispatchRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: hcNamespace,
				Name:      "dispatch_requests_total",
				Help:      "The number of off-chain requests dispatched, by selector and outcome (ok, miss, fault)",
			}, []string{"selector", "outcome"}),

		dispatchLatency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: hcNamespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent inside a handler",
				Buckets:   prometheus.DefBuckets,
			}, []string{"selector"}),

		transitions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: hcNamespace,
				Name:      "userop_transitions_total",
				Help:      "The number of user operations that reached a lifecycle state",
			}, []string{"state"}),

		receiptPolls: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: hcNamespace,
				Name:      "receipt_polls_total",
				Help:      "The number of eth_getUserOperationReceipt polls, by result (pending, found, error)",
			}, []string{"status"}),

		l2FeeWei: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: hcNamespace,
				Name:      "l2_fee_wei_total",
				Help:      "Sum of gasUsed * effectiveGasPrice over recorded receipts",
			}),

		l1FeeWei: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: hcNamespace,
				Name:      "l1_fee_wei_total",
				Help:      "Sum of the L1 data fee over recorded receipts",
			}),
	}
}

func (m *HybridComputeMetrics) IncDispatch(selector, outcome string) {
	m.dispatchRequests.WithLabelValues(selector, outcome).Inc()
}

func (m *HybridComputeMetrics) ObserveDispatchLatency(selector string, elapsed time.Duration) {
	m.dispatchLatency.WithLabelValues(selector).Observe(elapsed.Seconds())
}

func (m *HybridComputeMetrics) IncTransition(state string) {
	m.transitions.WithLabelValues(state).Inc()
}

func (m *HybridComputeMetrics) IncReceiptPoll(status string) {
	m.receiptPolls.WithLabelValues(status).Inc()
}

// AddFees adds wei amounts. Counters are float64, so very large totals lose
// precision; the ledger keeps the exact values.
func (m *HybridComputeMetrics) AddFees(l2Fee, l1Fee *big.Int) {
	if l2Fee != nil && l2Fee.Sign() > 0 {
		f, _ := new(big.Float).SetInt(l2Fee).Float64()
		m.l2FeeWei.Add(f)
	}
	if l1Fee != nil && l1Fee.Sign() > 0 {
		f, _ := new(big.Float).SetInt(l1Fee).Float64()
		m.l1FeeWei.Add(f)
	}
}

func (m *HybridComputeMetrics) AddUptime(total float64) {
	m.uptime.Add(total)
}
