package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics counts the economic effects of the gift lifecycle.
type LifecycleMetrics struct {
	invoicesIssued     prometheus.Counter
	paymentsConfirmed  *prometheus.CounterVec
	invoicesExpired    *prometheus.CounterVec
	transfersClaimed   prometheus.Counter
	gatewayDuration    *prometheus.HistogramVec
	notificationsTotal *prometheus.CounterVec
}

// NewLifecycleMetrics registers gift lifecycle metrics on reg. A nil registerer
// yields a no-op recorder.
func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	if reg == nil {
		return &LifecycleMetrics{}
	}
	m := &LifecycleMetrics{
		invoicesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_issued_total",
			Help:      "Invoices issued together with an inventory reservation.",
		}),
		paymentsConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_confirmed_total",
			Help:      "Invoices moved to paid, by trigger.",
		}, []string{"trigger"}),
		invoicesExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_expired_total",
			Help:      "Invoices moved to expired with their reservation released, by trigger.",
		}, []string{"trigger"}),
		transfersClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_claimed_total",
			Help:      "Gift transfers claimed by a receiver.",
		}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Payment gateway call latency by method and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Best-effort notification deliveries by event and outcome.",
		}, []string{"event", "outcome"}),
	}
	reg.MustRegister(
		m.invoicesIssued,
		m.paymentsConfirmed,
		m.invoicesExpired,
		m.transfersClaimed,
		m.gatewayDuration,
		m.notificationsTotal,
	)
	return m
}

func (m *LifecycleMetrics) InvoiceIssued() {
	if m == nil || m.invoicesIssued == nil {
		return
	}
	m.invoicesIssued.Inc()
}

func (m *LifecycleMetrics) PaymentConfirmed(trigger string) {
	if m == nil || m.paymentsConfirmed == nil {
		return
	}
	m.paymentsConfirmed.WithLabelValues(normalizeLabel(trigger)).Inc()
}

func (m *LifecycleMetrics) InvoiceExpired(trigger string) {
	if m == nil || m.invoicesExpired == nil {
		return
	}
	m.invoicesExpired.WithLabelValues(normalizeLabel(trigger)).Inc()
}

func (m *LifecycleMetrics) TransferClaimed() {
	if m == nil || m.transfersClaimed == nil {
		return
	}
	m.transfersClaimed.Inc()
}

// ObserveGateway records one gateway round trip.
func (m *LifecycleMetrics) ObserveGateway(method string, err error, duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(method), outcome(err)).Observe(duration.Seconds())
}

func (m *LifecycleMetrics) NotificationDelivered(event string, err error) {
	if m == nil || m.notificationsTotal == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(normalizeLabel(event), outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
