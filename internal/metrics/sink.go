package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Gate metrics
	DecisionRecorded(outcome, kind string)
	DecisionDelayObserve(delay time.Duration)
	InvalidInvocation()

	// EventBus metrics
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	EmitError()

	// Recorder metrics
	RecordWriteCompleted(target string, duration time.Duration, err error)

	// API metrics
	RequestCompleted(route, statusClass string, duration time.Duration)
}

// Target constants for RecordWriteCompleted.
const (
	TargetStore     = "store"
	TargetAnalytics = "analytics"
)

// StatusClass constants for RequestCompleted.
const (
	StatusClass2xx   = "2xx"
	StatusClass4xx   = "4xx"
	StatusClass5xx   = "5xx"
	StatusClassOther = "other"
)

// ClassifyStatus maps an HTTP status code to a bounded-cardinality class.
func ClassifyStatus(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500 && statusCode < 600:
		return StatusClass5xx
	default:
		return StatusClassOther
	}
}
