package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	intents       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	tasks         *prometheus.CounterVec
	tasksInFlight prometheus.Gauge
	taskDuration  *prometheus.HistogramVec
}

func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apna_payment_intents_total",
			Help: "Payment intents requested from the gateway by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apna_payment_notifications_total",
			Help: "Gateway completion notifications by status and outcome.",
		}, []string{"status", "outcome"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apna_dispatch_tasks_total",
			Help: "Background tasks finished by name and result.",
		}, []string{"task", "result"}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "apna_dispatch_tasks_in_flight",
			Help: "Background tasks currently scheduled and not yet finished.",
		}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "apna_dispatch_task_duration_seconds",
			Help:    "Background task latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"task"}),
	}

	registerer.MustRegister(m.intents, m.notifications, m.tasks, m.tasksInFlight, m.taskDuration)
	return m
}

func (m *Metrics) IntentRequested(outcome string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationReceived(status, outcome string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.notifications.WithLabelValues(status, outcome).Inc()
}

func (m *Metrics) TaskScheduled() {
	if m == nil {
		return
	}
	m.tasksInFlight.Inc()
}

func (m *Metrics) TaskFinished(task string, seconds float64, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.tasksInFlight.Dec()
	m.tasks.WithLabelValues(task, result).Inc()
	m.taskDuration.WithLabelValues(task).Observe(seconds)
}
