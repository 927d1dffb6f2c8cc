// Package channel carries decisions from the gate to the recorder over a
// buffered in-memory channel.
package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/djlord-it/adhoc-skipper/internal/domain"
)

// ErrBufferFull is returned when a decision cannot be queued within the emit timeout.
var ErrBufferFull = errors.New("event bus buffer full")

// ErrClosed is returned when emitting on a closed bus.
var ErrClosed = errors.New("event bus closed")

// DefaultEmitTimeout bounds how long Emit waits for buffer space. It is
// short because the gate emits on the classification path.
const DefaultEmitTimeout = 100 * time.Millisecond

// MetricsSink defines the interface for recording event bus metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	EmitError()
}

type Option func(*EventBus)

// WithEmitTimeout sets the maximum time Emit waits for buffer space.
func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) {
		b.emitTimeout = d
	}
}

// WithMetrics attaches a metrics sink to the bus.
func WithMetrics(m MetricsSink) Option {
	return func(b *EventBus) {
		b.metrics = m
	}
}

type EventBus struct {
	ch          chan domain.Decision
	emitTimeout time.Duration
	metrics     MetricsSink // optional, nil = disabled

	mu     sync.RWMutex
	closed bool
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch:          make(chan domain.Decision, buffer),
		emitTimeout: DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(buffer)
	}
	return b
}

// Emit queues a decision. It returns ErrBufferFull if no space frees up
// within the emit timeout, or the context error if ctx ends first.
func (b *EventBus) Emit(ctx context.Context, d domain.Decision) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- d:
		if b.metrics != nil {
			b.metrics.BufferSizeUpdate(len(b.ch))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

// Channel returns the receive side of the bus.
func (b *EventBus) Channel() <-chan domain.Decision {
	return b.ch
}

// Close stops accepting decisions and closes the channel so consumers can
// drain what is buffered. Safe to call more than once.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
