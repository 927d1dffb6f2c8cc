package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) DecisionRecorded(outcome, kind string)                                 {}
func (n *NoopSink) DecisionDelayObserve(delay time.Duration)                              {}
func (n *NoopSink) InvalidInvocation()                                                    {}
func (n *NoopSink) BufferSizeUpdate(size int)                                             {}
func (n *NoopSink) BufferCapacitySet(capacity int)                                        {}
func (n *NoopSink) EmitError()                                                            {}
func (n *NoopSink) RecordWriteCompleted(target string, duration time.Duration, err error) {}
func (n *NoopSink) RequestCompleted(route, statusClass string, duration time.Duration)    {}
