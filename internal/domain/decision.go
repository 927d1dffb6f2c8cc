package domain

import (
	"time"

	"github.com/google/uuid"
)

// Decision records that an invocation was classified at a specific time.
type Decision struct {
	ID uuid.UUID

	RunID string
	Kind  RunKind

	ScheduledAt time.Time
	EvaluatedAt time.Time
	Delay       time.Duration // EvaluatedAt - ScheduledAt, may be negative; saturates
	Threshold   time.Duration

	// Exact values in seconds, as compared by the classifier. These are what
	// get persisted and reported; the durations above saturate at ~292 years.
	DelaySeconds     float64
	ThresholdSeconds float64

	Outcome Outcome

	CreatedAt time.Time
}
