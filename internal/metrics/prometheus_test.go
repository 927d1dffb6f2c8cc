package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	return sink, reg
}

func getCounterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func getGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetGauge() != nil {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func getHistogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetHistogram() != nil {
					return m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	return 0
}

func getCounterVecValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if matchLabels(m.GetLabel(), labels) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func TestPrometheusSink_Registration(t *testing.T) {
	// Should not panic or error with a fresh registry.
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	if sink == nil {
		t.Fatal("NewPrometheusSink returned nil")
	}
}

func TestPrometheusSink_DecisionLabels(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.DecisionRecorded("proceed", "manual")
	sink.DecisionRecorded("skip", "scheduled")
	sink.DecisionRecorded("skip", "scheduled")

	manual := getCounterVecValue(t, reg, "adhocskip_decisions_total",
		map[string]string{"outcome": "proceed", "kind": "manual"})
	if manual != 1 {
		t.Errorf("outcome=proceed,kind=manual = %v, want 1", manual)
	}

	skipped := getCounterVecValue(t, reg, "adhocskip_decisions_total",
		map[string]string{"outcome": "skip", "kind": "scheduled"})
	if skipped != 2 {
		t.Errorf("outcome=skip,kind=scheduled = %v, want 2", skipped)
	}
}

func TestPrometheusSink_DecisionDelay(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.DecisionDelayObserve(30 * time.Second)
	sink.DecisionDelayObserve(-5 * time.Second)

	if n := getHistogramCount(t, reg, "adhocskip_decision_delay_seconds"); n != 2 {
		t.Errorf("decision_delay sample count = %d, want 2", n)
	}
}

func TestPrometheusSink_InvalidInvocation(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.InvalidInvocation()
	sink.InvalidInvocation()

	if val := getCounterValue(t, reg, "adhocskip_invalid_invocations_total"); val != 2 {
		t.Errorf("invalid_invocations_total = %v, want 2", val)
	}
}

func TestPrometheusSink_BufferMetrics(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.BufferCapacitySet(100)
	sink.BufferSizeUpdate(42)
	sink.EmitError()

	if capVal := getGaugeValue(t, reg, "adhocskip_eventbus_buffer_capacity"); capVal != 100 {
		t.Errorf("buffer_capacity = %v, want 100", capVal)
	}
	if sizeVal := getGaugeValue(t, reg, "adhocskip_eventbus_buffer_size"); sizeVal != 42 {
		t.Errorf("buffer_size = %v, want 42", sizeVal)
	}
	if errs := getCounterValue(t, reg, "adhocskip_eventbus_emit_errors_total"); errs != 1 {
		t.Errorf("emit_errors_total = %v, want 1", errs)
	}
}

func TestPrometheusSink_RecordWriteCompleted_WithError(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.RecordWriteCompleted(TargetStore, 10*time.Millisecond, nil)
	errCount := getCounterVecValue(t, reg, "adhocskip_recorder_write_errors_total",
		map[string]string{"target": TargetStore})
	if errCount != 0 {
		t.Errorf("write_errors_total = %v after success, want 0", errCount)
	}

	sink.RecordWriteCompleted(TargetStore, 10*time.Millisecond, errors.New("db error"))
	errCount = getCounterVecValue(t, reg, "adhocskip_recorder_write_errors_total",
		map[string]string{"target": TargetStore})
	if errCount != 1 {
		t.Errorf("write_errors_total = %v after error, want 1", errCount)
	}

	writes := getCounterVecValue(t, reg, "adhocskip_recorder_writes_total",
		map[string]string{"target": TargetStore})
	if writes != 2 {
		t.Errorf("writes_total = %v, want 2", writes)
	}
}

func TestPrometheusSink_RequestCompleted(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.RequestCompleted("/classify", StatusClass2xx, time.Millisecond)
	sink.RequestCompleted("/classify", StatusClass4xx, time.Millisecond)

	val := getCounterVecValue(t, reg, "adhocskip_api_requests_total",
		map[string]string{"route": "/classify", "status_class": "4xx"})
	if val != 1 {
		t.Errorf("route=/classify,status_class=4xx = %v, want 1", val)
	}
}

func TestPrometheusSink_DuplicateRegistration_NoPanic(t *testing.T) {
	// Registering metrics twice with the same registry should not panic.
	// The second registration will fail, but should be handled gracefully.
	reg := prometheus.NewRegistry()

	sink1 := NewPrometheusSink(reg)
	if sink1 == nil {
		t.Fatal("first NewPrometheusSink returned nil")
	}

	sink2 := NewPrometheusSink(reg)
	if sink2 == nil {
		t.Fatal("second NewPrometheusSink returned nil")
	}
}

// Verify PrometheusSink implements Sink interface.
var _ Sink = (*PrometheusSink)(nil)
