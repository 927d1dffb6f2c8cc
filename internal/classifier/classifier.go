// Package classifier decides whether a task invocation is an on-time
// scheduled run, a manual run, or a stale adhoc run that should be skipped.
//
// An adhoc run is a scheduled slot that the orchestrator evaluates long after
// it was due, typically when a paused schedule is resumed and the scheduler
// catches up on missed slots. Such runs are detected by comparing the
// scheduled time against the invocation time.
//
// The classifier performs no I/O and holds only immutable configuration, so a
// single instance may be shared across goroutines.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/djlord-it/adhoc-skipper/internal/domain"
)

// DefaultThresholdSeconds is the maximum delay tolerated by default.
const DefaultThresholdSeconds = 60

var (
	ErrNegativeThreshold = errors.New("threshold_seconds must not be negative")
	ErrInvalidThreshold  = errors.New("threshold_seconds must be a finite number")
)

// Config holds classifier configuration.
type Config struct {
	// ThresholdSeconds is the maximum permitted delay, in seconds, between the
	// scheduled and the actual invocation time before a run is classified as
	// adhoc. Fractional values are allowed.
	ThresholdSeconds float64
}

// DefaultConfig returns the default classifier configuration.
func DefaultConfig() Config {
	return Config{ThresholdSeconds: DefaultThresholdSeconds}
}

// Validate reports whether the configuration can be used to build a Classifier.
func (c Config) Validate() error {
	if math.IsNaN(c.ThresholdSeconds) || math.IsInf(c.ThresholdSeconds, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, c.ThresholdSeconds)
	}
	if c.ThresholdSeconds < 0 {
		return fmt.Errorf("%w: got %v", ErrNegativeThreshold, c.ThresholdSeconds)
	}
	return nil
}

// Threshold returns the threshold as a duration, saturating at the largest
// representable duration.
func (c Config) Threshold() time.Duration {
	return secondsToDuration(c.ThresholdSeconds)
}

// Evaluation carries the outcome together with the values it was derived from.
type Evaluation struct {
	Kind      domain.RunKind
	Delay     time.Duration // zero for manual runs
	Threshold time.Duration
	Outcome   domain.Outcome

	DelaySeconds     float64 // unsaturated; zero for manual runs
	ThresholdSeconds float64
}

// Classifier applies the skip rule with a fixed threshold. Safe for
// concurrent use.
type Classifier struct {
	config Config
}

// New creates a Classifier. Invalid configuration is rejected here so that
// no invocation is ever classified with a negative or non-finite threshold.
func New(config Config) (*Classifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{config: config}, nil
}

// Config returns the configuration the classifier was built with.
func (c *Classifier) Config() Config {
	return c.config
}

// Classify returns Proceed or Skip for one invocation evaluated at now.
func (c *Classifier) Classify(rec domain.InvocationRecord, now time.Time) domain.Outcome {
	return c.Evaluate(rec, now).Outcome
}

// Evaluate applies the rule and returns the intermediate values as well.
//
// Manual runs always proceed. For any other run the delay is now minus the
// scheduled time; the run is skipped only when the delay is strictly greater
// than the threshold. A negative delay (scheduled time in the future) proceeds.
func (c *Classifier) Evaluate(rec domain.InvocationRecord, now time.Time) Evaluation {
	ev := Evaluation{
		Kind:             domain.KindOf(rec.RunID),
		Threshold:        c.config.Threshold(),
		ThresholdSeconds: c.config.ThresholdSeconds,
		Outcome:          domain.Proceed(),
	}
	if ev.Kind == domain.RunKindManual {
		return ev
	}

	ev.Delay = now.Sub(rec.ScheduledAt)
	ev.DelaySeconds = delaySeconds(now, rec.ScheduledAt)
	if ev.DelaySeconds > c.config.ThresholdSeconds {
		ev.Outcome = domain.Skip(domain.ReasonDelayExceedsThreshold)
	}
	return ev
}

// Classify is the functional form of Classifier.Classify. The config is not
// validated; callers that accept external configuration should use New.
func Classify(rec domain.InvocationRecord, config Config, now time.Time) domain.Outcome {
	return (&Classifier{config: config}).Classify(rec, now)
}

// delaySeconds computes now - scheduled in seconds without going through
// time.Duration, which saturates for spans beyond ~292 years.
func delaySeconds(now, scheduled time.Time) float64 {
	d := now.Sub(scheduled)
	if d != math.MaxInt64 && d != math.MinInt64 {
		return d.Seconds()
	}
	secs := float64(now.Unix() - scheduled.Unix())
	return secs + float64(now.Nanosecond()-scheduled.Nanosecond())/1e9
}

func secondsToDuration(s float64) time.Duration {
	if s >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s * float64(time.Second))
}
