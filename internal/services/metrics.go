package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the proactive control system
type Metrics struct {
	// Loop metrics
	Ticks     *prometheus.CounterVec
	LockSkips prometheus.Counter

	// Spontaneous loop outcomes
	SpontaneousSent       *prometheus.CounterVec
	SpontaneousSuppressed *prometheus.CounterVec
	BreakerTrips          prometheus.Counter

	// Reminder delivery
	ReminderDeliveries prometheus.Counter
	ReminderFailures   prometheus.Counter

	// Decision maker
	DecisionLatency prometheus.Histogram
	DecisionErrors  *prometheus.CounterVec
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// InitMetrics initializes the Prometheus metrics. Safe to call more than
// once; only the first call registers collectors.
func InitMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			Ticks: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "companion_proactive_ticks_total",
				Help: "Total loop ticks by loop name",
			}, []string{"loop"}),

			LockSkips: promauto.NewCounter(prometheus.CounterOpts{
				Name: "companion_state_lock_skips_total",
				Help: "Ticks skipped because the shared state lock was held by the other loop",
			}),

			SpontaneousSent: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "companion_spontaneous_messages_total",
				Help: "Spontaneous messages delivered by message type",
			}, []string{"type"}),

			SpontaneousSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "companion_spontaneous_suppressed_total",
				Help: "Spontaneous ticks suppressed by gate",
			}, []string{"reason"}),

			BreakerTrips: promauto.NewCounter(prometheus.CounterOpts{
				Name: "companion_circuit_breaker_trips_total",
				Help: "Times the spontaneous circuit breaker tripped",
			}),

			ReminderDeliveries: promauto.NewCounter(prometheus.CounterOpts{
				Name: "companion_reminder_deliveries_total",
				Help: "Reminders delivered successfully",
			}),

			ReminderFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "companion_reminder_failures_total",
				Help: "Reminder delivery attempts that failed and will retry",
			}),

			DecisionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "companion_decision_duration_seconds",
				Help:    "Decision maker call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			}),

			DecisionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "companion_decision_errors_total",
				Help: "Decision maker failures by kind",
			}, []string{"kind"}),
		}
	})
	return globalMetrics
}

// GetMetrics returns the global metrics instance (nil before InitMetrics).
func GetMetrics() *Metrics {
	return globalMetrics
}
