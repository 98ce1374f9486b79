package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics exposes counters/histograms for booking and lifecycle flows.
// A nil *SchedulerMetrics is valid and records nothing.
type SchedulerMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	lockContention   prometheus.Counter
	bookingLatency   prometheus.Histogram
	slotsGenerated   prometheus.Counter
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caresync",
			Subsystem: "scheduler",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caresync",
			Subsystem: "scheduler",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by target status",
		}, []string{"status"}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "caresync",
			Subsystem: "scheduler",
			Name:      "slot_lock_contention_total",
			Help:      "Slot lock acquisitions that lost to a concurrent holder",
		}),
		bookingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "caresync",
			Subsystem: "scheduler",
			Name:      "booking_latency_seconds",
			Help:      "Latency of booking and reschedule claims",
			Buckets:   prometheus.DefBuckets,
		}),
		slotsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "caresync",
			Subsystem: "scheduler",
			Name:      "slots_generated_total",
			Help:      "Candidate slots produced by generation or template materialization",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.lockContention, m.bookingLatency, m.slotsGenerated)
	return m
}

func (m *SchedulerMetrics) ObserveBooking(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
	m.bookingLatency.Observe(took.Seconds())
}

func (m *SchedulerMetrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(status).Inc()
}

func (m *SchedulerMetrics) ObserveLockContention() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}

func (m *SchedulerMetrics) ObserveSlotsGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.slotsGenerated.Add(float64(n))
}
