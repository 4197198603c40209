package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking engine. A nil
// *BookingMetrics is valid and records nothing.
type BookingMetrics struct {
	bookingTotal      *prometheus.CounterVec
	bookingLatency    prometheus.Histogram
	slotQueryTotal    *prometheus.CounterVec
	paymentEvents     *prometheus.CounterVec
	holdsExpired      prometheus.Counter
	commissionSyncErr prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		bookingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agenda",
			Subsystem: "booking",
			Name:      "latency_seconds",
			Help:      "Latency of the booking transaction",
			Buckets:   prometheus.DefBuckets,
		}),
		slotQueryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "slots",
			Name:      "queries_total",
			Help:      "Slot queries by empty-result reason",
		}, []string{"reason"}),
		paymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "payments",
			Name:      "events_total",
			Help:      "Payment events by source, outcome and reconciliation result",
		}, []string{"source", "outcome", "result"}),
		holdsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "holds",
			Name:      "expired_total",
			Help:      "Pending online appointments cancelled by the hold sweeper",
		}),
		commissionSyncErr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "commission",
			Name:      "sync_failures_total",
			Help:      "Settled appointments whose commission event could not be enqueued",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status",
		}, []string{"method", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agenda",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingTotal, m.bookingLatency, m.slotQueryTotal, m.paymentEvents,
		m.holdsExpired, m.commissionSyncErr, m.httpRequests, m.httpLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(outcome).Inc()
	m.bookingLatency.Observe(elapsed.Seconds())
}

func (m *BookingMetrics) ObserveSlotQuery(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.slotQueryTotal.WithLabelValues(reason).Inc()
}

func (m *BookingMetrics) ObservePaymentEvent(source, outcome, result string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(source, outcome, result).Inc()
}

func (m *BookingMetrics) AddHoldsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.holdsExpired.Add(float64(n))
}

func (m *BookingMetrics) IncCommissionSyncFailure() {
	if m == nil {
		return
	}
	m.commissionSyncErr.Inc()
}

// ObserveHTTP matches httpx.RequestObserver.
func (m *BookingMetrics) ObserveHTTP(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}
