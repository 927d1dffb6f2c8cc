package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Gate metrics
	decisionsTotal          *prometheus.CounterVec
	decisionDelay           prometheus.Histogram
	invalidInvocationsTotal prometheus.Counter

	// EventBus metrics
	bufferSize      prometheus.Gauge
	bufferCapacity  prometheus.Gauge
	emitErrorsTotal prometheus.Counter

	// Recorder metrics
	recordWritesTotal      *prometheus.CounterVec
	recordWriteErrorsTotal *prometheus.CounterVec
	recordWriteDuration    *prometheus.HistogramVec

	// API metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initGateMetrics(reg)
	s.initEventBusMetrics(reg)
	s.initRecorderMetrics(reg)
	s.initAPIMetrics(reg)
	return s
}

func (s *PrometheusSink) initGateMetrics(reg prometheus.Registerer) {
	s.decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adhocskip_decisions_total",
		Help: "Total number of classified invocations by outcome and run kind.",
	}, []string{"outcome", "kind"})
	s.decisionDelay = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "adhocskip_decision_delay_seconds",
		Help:    "Delay between scheduled and actual invocation time for scheduled runs.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900, 3600, 86400},
	})
	s.invalidInvocationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adhocskip_invalid_invocations_total",
		Help: "Total number of invocations rejected for a missing run id or scheduled time.",
	})

	s.register(reg, s.decisionsTotal, "adhocskip_decisions_total")
	s.register(reg, s.decisionDelay, "adhocskip_decision_delay_seconds")
	s.register(reg, s.invalidInvocationsTotal, "adhocskip_invalid_invocations_total")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adhocskip_eventbus_buffer_size",
		Help: "Current number of decisions in the event bus buffer.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adhocskip_eventbus_buffer_capacity",
		Help: "Capacity of the event bus buffer.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adhocskip_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full).",
	})

	s.register(reg, s.bufferSize, "adhocskip_eventbus_buffer_size")
	s.register(reg, s.bufferCapacity, "adhocskip_eventbus_buffer_capacity")
	s.register(reg, s.emitErrorsTotal, "adhocskip_eventbus_emit_errors_total")
}

func (s *PrometheusSink) initRecorderMetrics(reg prometheus.Registerer) {
	s.recordWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adhocskip_recorder_writes_total",
		Help: "Total number of decision writes by target.",
	}, []string{"target"})
	s.recordWriteErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adhocskip_recorder_write_errors_total",
		Help: "Total number of failed decision writes by target.",
	}, []string{"target"})
	s.recordWriteDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adhocskip_recorder_write_duration_seconds",
		Help:    "Duration of decision writes in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"target"})

	s.register(reg, s.recordWritesTotal, "adhocskip_recorder_writes_total")
	s.register(reg, s.recordWriteErrorsTotal, "adhocskip_recorder_write_errors_total")
	s.register(reg, s.recordWriteDuration, "adhocskip_recorder_write_duration_seconds")
}

func (s *PrometheusSink) initAPIMetrics(reg prometheus.Registerer) {
	s.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adhocskip_api_requests_total",
		Help: "Total number of API requests by route and status class.",
	}, []string{"route", "status_class"})
	s.requestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "adhocskip_api_request_duration_seconds",
		Help:    "API request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	s.register(reg, s.requestsTotal, "adhocskip_api_requests_total")
	s.register(reg, s.requestDuration, "adhocskip_api_request_duration_seconds")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Gate metrics implementation

func (s *PrometheusSink) DecisionRecorded(outcome, kind string) {
	s.decisionsTotal.WithLabelValues(outcome, kind).Inc()
}

func (s *PrometheusSink) DecisionDelayObserve(delay time.Duration) {
	// Future-dated runs are recorded as zero delay.
	d := delay.Seconds()
	if d < 0 {
		d = 0
	}
	s.decisionDelay.Observe(d)
}

func (s *PrometheusSink) InvalidInvocation() {
	s.invalidInvocationsTotal.Inc()
}

// EventBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

// Recorder metrics implementation

func (s *PrometheusSink) RecordWriteCompleted(target string, duration time.Duration, err error) {
	s.recordWritesTotal.WithLabelValues(target).Inc()
	s.recordWriteDuration.WithLabelValues(target).Observe(duration.Seconds())
	if err != nil {
		s.recordWriteErrorsTotal.WithLabelValues(target).Inc()
	}
}

// API metrics implementation

func (s *PrometheusSink) RequestCompleted(route, statusClass string, duration time.Duration) {
	s.requestsTotal.WithLabelValues(route, statusClass).Inc()
	s.requestDuration.Observe(duration.Seconds())
}
