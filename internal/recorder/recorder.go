// Package recorder persists gate decisions off the classification path.
//
// The gate emits each decision onto the event bus; the recorder consumes the
// bus and writes decisions to the audit store and the analytics counters.
// Write failures are logged and counted but never fed back to the gate.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/djlord-it/adhoc-skipper/internal/circuitbreaker"
	"github.com/djlord-it/adhoc-skipper/internal/domain"
	"github.com/djlord-it/adhoc-skipper/internal/metrics"
)

// ErrDuplicateDecision is returned by stores when a decision ID was already written.
var ErrDuplicateDecision = errors.New("decision already recorded")

// DefaultDrainTimeout is the maximum time to wait for buffered decisions during shutdown.
const DefaultDrainTimeout = 30 * time.Second

type Store interface {
	InsertDecision(ctx context.Context, d domain.Decision) error
}

type AnalyticsSink interface {
	Write(ctx context.Context, d domain.Decision) error
}

// MetricsSink defines the interface for recording recorder metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	RecordWriteCompleted(target string, duration time.Duration, err error)
	BufferSizeUpdate(size int)
}

type Recorder struct {
	store        Store                          // optional, nil = disabled
	analytics    AnalyticsSink                  // optional, nil = disabled
	metrics      MetricsSink                    // optional, nil = disabled
	breaker      *circuitbreaker.CircuitBreaker // optional, nil = always write
	drainTimeout time.Duration
}

func New() *Recorder {
	return &Recorder{drainTimeout: DefaultDrainTimeout}
}

func (r *Recorder) WithStore(s Store) *Recorder {
	r.store = s
	return r
}

func (r *Recorder) WithAnalytics(a AnalyticsSink) *Recorder {
	r.analytics = a
	return r
}

// WithMetrics attaches a metrics sink to the recorder.
func (r *Recorder) WithMetrics(m MetricsSink) *Recorder {
	r.metrics = m
	return r
}

// WithCircuitBreaker skips writes to a target while its circuit is open.
func (r *Recorder) WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) *Recorder {
	r.breaker = cb
	return r
}

// WithDrainTimeout sets the maximum time spent draining on shutdown.
func (r *Recorder) WithDrainTimeout(d time.Duration) *Recorder {
	if d > 0 {
		r.drainTimeout = d
	}
	return r
}

// Run records decisions from the channel until ctx is cancelled or the
// channel is closed. After cancellation it drains remaining buffered
// decisions with a timeout.
func (r *Recorder) Run(ctx context.Context, ch <-chan domain.Decision) {
	for {
		select {
		case <-ctx.Done():
			r.drain(ch)
			return
		case d, ok := <-ch:
			if !ok {
				log.Println("recorder: channel closed, stopping")
				return
			}
			r.reportBuffer(ch)
			if err := r.Record(ctx, d); err != nil {
				log.Printf("recorder: error: %v", err)
			}
		}
	}
}

// reportBuffer publishes the backlog left after a receive, so the gauge
// falls back as the recorder catches up.
func (r *Recorder) reportBuffer(ch <-chan domain.Decision) {
	if r.metrics != nil {
		r.metrics.BufferSizeUpdate(len(ch))
	}
}

// drain processes remaining decisions in the channel buffer after shutdown signal.
// Uses a background context since the main context is already cancelled.
func (r *Recorder) drain(ch <-chan domain.Decision) {
	drainCtx, cancel := context.WithTimeout(context.Background(), r.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("recorder: drain timeout, recorded %d decisions", count)
			}
			return
		case d, ok := <-ch:
			if !ok {
				log.Printf("recorder: drain complete, recorded %d decisions", count)
				return
			}
			r.reportBuffer(ch)
			if err := r.Record(drainCtx, d); err != nil {
				log.Printf("recorder: drain error: %v", err)
			}
			count++
		default:
			if count > 0 {
				log.Printf("recorder: drain complete, recorded %d decisions", count)
			}
			return
		}
	}
}

// Record writes one decision to the store and the analytics sink. A store
// failure is returned; an analytics failure is only logged since counters
// are best effort. Duplicate decisions (replays) are ignored.
func (r *Recorder) Record(ctx context.Context, d domain.Decision) error {
	var storeErr error

	if r.store != nil {
		err := r.write(metrics.TargetStore, func() error {
			err := r.store.InsertDecision(ctx, d)
			if errors.Is(err, ErrDuplicateDecision) {
				log.Printf("recorder: decision=%s run=%s already recorded", d.ID, d.RunID)
				return nil
			}
			return err
		})
		if err != nil {
			storeErr = fmt.Errorf("insert decision %s: %w", d.ID, err)
		}
	}

	if r.analytics != nil {
		err := r.write(metrics.TargetAnalytics, func() error {
			return r.analytics.Write(ctx, d)
		})
		if err != nil {
			log.Printf("recorder: analytics write failed decision=%s: %v", d.ID, err)
		}
	}

	return storeErr
}

// write runs fn for target unless its circuit is open, and reports the
// result to metrics and the breaker.
func (r *Recorder) write(target string, fn func() error) error {
	if err := r.breaker.Allow(target); err != nil {
		r.observe(target, 0, err)
		return err
	}

	start := time.Now()
	err := fn()
	r.observe(target, time.Since(start), err)

	if err != nil {
		r.breaker.RecordFailure(target)
		if r.breaker.State(target) == "open" {
			log.Printf("recorder: circuit open for %s after error: %v", target, err)
		}
		return err
	}
	r.breaker.RecordSuccess(target)
	return nil
}

func (r *Recorder) observe(target string, d time.Duration, err error) {
	if r.metrics != nil {
		r.metrics.RecordWriteCompleted(target, d, err)
	}
}
