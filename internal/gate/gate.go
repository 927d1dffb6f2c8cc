// Package gate adapts the classifier to task hosts.
//
// The classifier returns an Outcome value; hosts usually need a control-flow
// signal instead. Gate.Check turns Skip into a *SkipError that matches
// ErrSkipped, so a host can tell an intentional skip apart from a task
// failure with errors.Is. Every decision is logged, counted and handed to an
// optional recorder for auditing.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/adhoc-skipper/internal/classifier"
	"github.com/djlord-it/adhoc-skipper/internal/domain"
)

var (
	// ErrSkipped is matched by every error returned for a Skip outcome.
	ErrSkipped = errors.New("run skipped")

	// ErrInvalidInvocation is returned when the host supplies an invocation
	// without a run id or scheduled time. It is a caller contract violation,
	// not a skip.
	ErrInvalidInvocation = errors.New("invalid invocation")
)

// SkipError carries the decision behind a Skip outcome.
type SkipError struct {
	Decision domain.Decision
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("run %s skipped: %s", e.Decision.RunID, e.Decision.Outcome.Reason())
}

func (e *SkipError) Is(target error) bool {
	return target == ErrSkipped
}

// Reason returns the human-readable skip reason.
func (e *SkipError) Reason() string {
	return e.Decision.Outcome.Reason()
}

// IsSkip reports whether err signals a skipped run.
func IsSkip(err error) bool {
	return errors.Is(err, ErrSkipped)
}

// MetricsSink defines the interface for recording gate metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	DecisionRecorded(outcome, kind string)
	DecisionDelayObserve(delay time.Duration)
	InvalidInvocation()
}

// Recorder receives every decision for auditing. Failures are logged and
// never change the outcome.
type Recorder interface {
	Emit(ctx context.Context, decision domain.Decision) error
}

// Task is a unit of host work guarded by the gate.
type Task func(ctx context.Context) error

type Gate struct {
	classifier *classifier.Classifier
	clock      func() time.Time
	metrics    MetricsSink // optional, nil = disabled
	recorder   Recorder    // optional, nil = disabled
}

func New(c *classifier.Classifier) *Gate {
	return &Gate{
		classifier: c,
		clock:      time.Now,
	}
}

// WithClock replaces the wall clock used to read the invocation time.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// WithMetrics attaches a metrics sink to the gate.
func (g *Gate) WithMetrics(sink MetricsSink) *Gate {
	g.metrics = sink
	return g
}

// WithRecorder attaches a decision recorder to the gate.
func (g *Gate) WithRecorder(r Recorder) *Gate {
	g.recorder = r
	return g
}

// Threshold returns the configured maximum delay.
func (g *Gate) Threshold() time.Duration {
	return g.classifier.Config().Threshold()
}

// Check classifies rec against the current time. It returns nil for Proceed,
// a *SkipError for Skip, or an error wrapping ErrInvalidInvocation.
func (g *Gate) Check(ctx context.Context, rec domain.InvocationRecord) (domain.Decision, error) {
	return g.CheckAt(ctx, rec, g.clock())
}

// CheckAt is Check with an explicit invocation time.
func (g *Gate) CheckAt(ctx context.Context, rec domain.InvocationRecord, now time.Time) (domain.Decision, error) {
	if err := validate(rec); err != nil {
		if g.metrics != nil {
			g.metrics.InvalidInvocation()
		}
		log.Printf("gate: rejected invocation run=%q: %v", rec.RunID, err)
		return domain.Decision{}, err
	}

	now = now.UTC()
	ev := g.classifier.Evaluate(rec, now)

	decision := domain.Decision{
		ID:          uuid.New(),
		RunID:       rec.RunID,
		Kind:        ev.Kind,
		ScheduledAt: rec.ScheduledAt.UTC(),
		EvaluatedAt: now,
		Delay:       ev.Delay,
		Threshold:   ev.Threshold,
		Outcome:     ev.Outcome,
		CreatedAt:   now,

		DelaySeconds:     ev.DelaySeconds,
		ThresholdSeconds: ev.ThresholdSeconds,
	}

	g.logDecision(decision)
	g.recordMetrics(decision)
	g.emit(ctx, decision)

	if decision.Outcome.IsSkip() {
		return decision, &SkipError{Decision: decision}
	}
	return decision, nil
}

// Run executes task only when rec is classified as Proceed.
func (g *Gate) Run(ctx context.Context, rec domain.InvocationRecord, task Task) error {
	if _, err := g.Check(ctx, rec); err != nil {
		return err
	}
	return task(ctx)
}

func validate(rec domain.InvocationRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInvocation)
	}
	if rec.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled time is required", ErrInvalidInvocation)
	}
	return nil
}

func (g *Gate) logDecision(d domain.Decision) {
	switch {
	case d.Kind == domain.RunKindManual:
		log.Printf("gate: run=%s manual run detected, proceeding", d.RunID)
	case d.Outcome.IsSkip():
		log.Printf("gate: WARNING skipping adhoc run=%s (delay %.2fs exceeds threshold %.2fs)",
			d.RunID, d.DelaySeconds, d.ThresholdSeconds)
	default:
		log.Printf("gate: run=%s scheduled run on time (delay %.2fs), proceeding",
			d.RunID, d.DelaySeconds)
	}
}

func (g *Gate) recordMetrics(d domain.Decision) {
	if g.metrics == nil {
		return
	}
	g.metrics.DecisionRecorded(d.Outcome.String(), string(d.Kind))
	if d.Kind == domain.RunKindScheduled {
		g.metrics.DecisionDelayObserve(d.Delay)
	}
}

func (g *Gate) emit(ctx context.Context, d domain.Decision) {
	if g.recorder == nil {
		return
	}
	if err := g.recorder.Emit(ctx, d); err != nil {
		log.Printf("gate: failed to record decision=%s run=%s: %v", d.ID, d.RunID, err)
	}
}
