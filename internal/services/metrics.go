package services

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"ancient-spinner-backend/internal/models"
)

type Metrics struct {
	submissions *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	attemptHist prometheus.Histogram
	spins       *prometheus.CounterVec
	payouts     *prometheus.CounterVec
	wsClients   prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsRegistry *Metrics
)

// NewMetrics returns the process-wide collectors, registering them on first use.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsRegistry = &Metrics{
			submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "spinner",
				Subsystem: "tx",
				Name:      "submissions_total",
				Help:      "Payment submissions by final outcome.",
			}, []string{"outcome"}),
			attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "spinner",
				Subsystem: "tx",
				Name:      "attempts_total",
				Help:      "Individual submission attempts by result.",
			}, []string{"result"}),
			attemptHist: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "spinner",
				Subsystem: "tx",
				Name:      "attempts_per_submission",
				Help:      "Attempts used per submission.",
				Buckets:   []float64{1, 2, 3, 4, 5, 8},
			}),
			spins: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "spinner",
				Subsystem: "game",
				Name:      "spins_total",
				Help:      "Wheel spins by result and kind.",
			}, []string{"result", "replay"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "spinner",
				Subsystem: "game",
				Name:      "payouts_total",
				Help:      "Payout records by status transition.",
			}, []string{"status"}),
			wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "spinner",
				Subsystem: "ws",
				Name:      "clients",
				Help:      "Connected websocket clients.",
			}),
		}
		prometheus.MustRegister(
			metricsRegistry.submissions,
			metricsRegistry.attempts,
			metricsRegistry.attemptHist,
			metricsRegistry.spins,
			metricsRegistry.payouts,
			metricsRegistry.wsClients,
		)
	})
	return metricsRegistry
}

func (m *Metrics) RecordSubmission(outcome models.OutcomeKind, attempts int) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(string(outcome)).Inc()
	m.attemptHist.Observe(float64(attempts))
}

func (m *Metrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordSpin(won, replay bool) {
	if m == nil {
		return
	}
	result := "lose"
	if won {
		result = "win"
	}
	m.spins.WithLabelValues(result, strconv.FormatBool(replay)).Inc()
}

func (m *Metrics) RecordPayout(status models.PayoutStatus) {
	if m == nil {
		return
	}
	m.payouts.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
