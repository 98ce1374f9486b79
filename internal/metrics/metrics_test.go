package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSchedulerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulerMetrics(reg)

	m.ObserveBooking("booked", 20*time.Millisecond)
	m.ObserveBooking("conflict", 5*time.Millisecond)
	m.ObserveBooking("conflict", 5*time.Millisecond)
	m.ObserveTransition("cancelled")
	m.ObserveLockContention()
	m.ObserveSlotsGenerated(16)
	m.ObserveSlotsGenerated(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("booked")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("cancelled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockContention))
	assert.Equal(t, 16.0, testutil.ToFloat64(m.slotsGenerated))
}

func TestSchedulerMetrics_NilSafe(t *testing.T) {
	var m *SchedulerMetrics
	assert.NotPanics(t, func() {
		m.ObserveBooking("booked", time.Millisecond)
		m.ObserveTransition("confirmed")
		m.ObserveLockContention()
		m.ObserveSlotsGenerated(3)
	})
}
