package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "conveyor"

// Metrics — Prometheus метрики движка.
//
// Все методы безопасны для nil *Metrics: компоненты без метрик
// просто ничего не считают.
type Metrics struct {
	FlowSteps        *prometheus.CounterVec
	FlowsFinished    *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	QueueDepth       *prometheus.GaugeVec
	Connectors       prometheus.Gauge
	WorkerPanics     prometheus.Counter
	Submissions      *prometheus.CounterVec
}

// NewMetrics создаёт и регистрирует метрики в reg.
// reg == nil — метрики создаются без регистрации.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FlowSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_steps_total",
			Help:      "Task flow steps by resulting status.",
		}, []string{"status"}),

		FlowsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_finished_total",
			Help:      "Task flows that reached a terminal status.",
		}, []string{"spec", "status"}),

		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Connector dispatches by connector type, route key and result category.",
		}, []string{"connector", "route", "category"}),

		DispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Connector dispatch latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"connector"}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Task flows waiting in a queue.",
		}, []string{"queue", "work_key"}),

		Connectors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectors",
			Help:      "Live connector instances in the registry.",
		}),

		WorkerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_panics_total",
			Help:      "Panics recovered at the worker boundary.",
		}),

		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Task flow submissions by source and outcome.",
		}, []string{"source", "outcome"}),
	}
}

// ObserveStep считает шаг flow.
func (m *Metrics) ObserveStep(status string) {
	if m == nil {
		return
	}
	m.FlowSteps.WithLabelValues(status).Inc()
}

// ObserveFinished считает завершённый flow.
func (m *Metrics) ObserveFinished(spec, status string) {
	if m == nil {
		return
	}
	m.FlowsFinished.WithLabelValues(spec, status).Inc()
}

// ObserveDispatch считает dispatch и его длительность.
func (m *Metrics) ObserveDispatch(connector, route, category string, d time.Duration) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(connector, route, category).Inc()
	m.DispatchDuration.WithLabelValues(connector).Observe(d.Seconds())
}

// SetQueueDepth выставляет глубину очереди.
func (m *Metrics) SetQueueDepth(queue, workKey string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue, workKey).Set(float64(depth))
}

// SetConnectors выставляет число живых коннекторов.
func (m *Metrics) SetConnectors(n int) {
	if m == nil {
		return
	}
	m.Connectors.Set(float64(n))
}

// IncWorkerPanic считает перехваченную панику.
func (m *Metrics) IncWorkerPanic() {
	if m == nil {
		return
	}
	m.WorkerPanics.Inc()
}

// ObserveSubmission считает приём flow (source: api, mq, scheduler).
func (m *Metrics) ObserveSubmission(source, outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(source, outcome).Inc()
}
