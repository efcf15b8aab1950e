package metrics

import "github.com/prometheus/client_golang/prometheus"

// CoreMetrics exposes counters/histograms for booking and settlement flows.
type CoreMetrics struct {
	bookingsTotal     *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	settlementsTotal  *prometheus.CounterVec
	slotQueryDuration prometheus.Histogram
}

func NewCoreMetrics(reg prometheus.Registerer) *CoreMetrics {
	m := &CoreMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calldoc",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calldoc",
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Appointment lifecycle transitions by target status",
		}, []string{"to"}),
		settlementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calldoc",
			Subsystem: "payments",
			Name:      "settlements_total",
			Help:      "Settlement attempts by method and outcome",
		}, []string{"method", "outcome"}),
		slotQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "calldoc",
			Subsystem: "scheduling",
			Name:      "slot_query_seconds",
			Help:      "Latency of available-slot queries",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.settlementsTotal, m.slotQueryDuration)
	return m
}

func (m *CoreMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *CoreMetrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(to).Inc()
}

func (m *CoreMetrics) ObserveSettlement(method, outcome string) {
	if m == nil {
		return
	}
	m.settlementsTotal.WithLabelValues(method, outcome).Inc()
}

func (m *CoreMetrics) ObserveSlotQuery(seconds float64) {
	if m == nil {
		return
	}
	m.slotQueryDuration.Observe(seconds)
}
