package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var stageBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Pipeline agrupa las metricas del pipeline de asignacion.
// Todos los metodos aceptan receptor nil y en ese caso no hacen nada.
type Pipeline struct {
	queueProcessing prometheus.Gauge
	queueWaiting    prometheus.Gauge
	queueEvents     *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	llmCalls        *prometheus.CounterVec
	recoveries      *prometheus.CounterVec
}

// NewPipeline crea y registra los collectors. reg nil usa prometheus.DefaultRegisterer
// y namespace vacio usa "team_roles".
func NewPipeline(reg prometheus.Registerer, namespace string) *Pipeline {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "team_roles"
	}

	p := &Pipeline{
		queueProcessing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "processing",
			Help:      "Teams currently running the assignment pipeline.",
		}),
		queueWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "waiting",
			Help:      "Teams waiting for a processing slot.",
		}),
		queueEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "events_total",
			Help:      "Queue lifecycle events by kind.",
		}, []string{"event"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages by outcome.",
			Buckets:   stageBuckets,
		}, []string{"stage", "outcome"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "LLM calls by pipeline stage and outcome.",
		}, []string{"stage", "outcome"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "recoveries_total",
			Help:      "Stuck session recoveries by action.",
		}, []string{"action"}),
	}

	collectors := []prometheus.Collector{
		p.queueProcessing,
		p.queueWaiting,
		p.queueEvents,
		p.stageDuration,
		p.llmCalls,
		p.recoveries,
	}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				collectors[i] = already.ExistingCollector
				continue
			}
			panic(err)
		}
	}
	p.adoptExisting(collectors)
	return p
}

func (p *Pipeline) adoptExisting(collectors []prometheus.Collector) {
	if g, ok := collectors[0].(prometheus.Gauge); ok {
		p.queueProcessing = g
	}
	if g, ok := collectors[1].(prometheus.Gauge); ok {
		p.queueWaiting = g
	}
	if c, ok := collectors[2].(*prometheus.CounterVec); ok {
		p.queueEvents = c
	}
	if h, ok := collectors[3].(*prometheus.HistogramVec); ok {
		p.stageDuration = h
	}
	if c, ok := collectors[4].(*prometheus.CounterVec); ok {
		p.llmCalls = c
	}
	if c, ok := collectors[5].(*prometheus.CounterVec); ok {
		p.recoveries = c
	}
}

// Eventos de cola.
const (
	QueueEnqueued        = "enqueued"
	QueueCompleted       = "completed"
	QueueFailed          = "failed"
	QueueRetried         = "retried"
	QueuePermanentFailed = "permanently_failed"
)

// SetQueueDepth actualiza los gauges de cola.
func (p *Pipeline) SetQueueDepth(processing, waiting int) {
	if p == nil {
		return
	}
	p.queueProcessing.Set(float64(processing))
	p.queueWaiting.Set(float64(waiting))
}

// QueueEvent incrementa el contador del evento indicado.
func (p *Pipeline) QueueEvent(event string) {
	if p == nil {
		return
	}
	p.queueEvents.WithLabelValues(event).Inc()
}

// ObserveStage registra la duracion de una etapa (scoring, matching, justification).
func (p *Pipeline) ObserveStage(stage string, d time.Duration, err error) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage, outcome(err)).Observe(d.Seconds())
}

// LLMCall cuenta una llamada al modelo.
func (p *Pipeline) LLMCall(stage string, err error) {
	if p == nil {
		return
	}
	p.llmCalls.WithLabelValues(stage, outcome(err)).Inc()
}

// Recovery cuenta una accion del health checker (forced_complete, requeued, failed).
func (p *Pipeline) Recovery(action string) {
	if p == nil {
		return
	}
	p.recoveries.WithLabelValues(action).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
