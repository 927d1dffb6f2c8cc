package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/adhoc-skipper/internal/circuitbreaker"
	"github.com/djlord-it/adhoc-skipper/internal/domain"
	"github.com/djlord-it/adhoc-skipper/internal/testutil"
)

// mockStore tracks inserted decisions and enforces ID uniqueness.
type mockStore struct {
	mu        sync.Mutex
	decisions map[uuid.UUID]domain.Decision
	err       error
}

func newMockStore() *mockStore {
	return &mockStore{decisions: make(map[uuid.UUID]domain.Decision)}
}

func (s *mockStore) InsertDecision(ctx context.Context, d domain.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, exists := s.decisions[d.ID]; exists {
		return ErrDuplicateDecision
	}
	s.decisions[d.ID] = d
	return nil
}

func (s *mockStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.decisions)
}

type mockAnalytics struct {
	mu     sync.Mutex
	writes int
	err    error
}

func (a *mockAnalytics) Write(ctx context.Context, d domain.Decision) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writes++
	return a.err
}

func (a *mockAnalytics) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writes
}

type mockMetrics struct {
	mu     sync.Mutex
	writes map[string]int
	errors map[string]int
	sizes  []int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{writes: make(map[string]int), errors: make(map[string]int)}
}

func (m *mockMetrics) RecordWriteCompleted(target string, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[target]++
	if err != nil {
		m.errors[target]++
	}
}

func (m *mockMetrics) BufferSizeUpdate(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes = append(m.sizes, size)
}

func (m *mockMetrics) bufferSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.sizes...)
}

func newDecision() domain.Decision {
	now := time.Date(2025, 10, 31, 12, 2, 0, 0, time.UTC)
	return domain.Decision{
		ID:          uuid.New(),
		RunID:       "scheduled__x",
		Kind:        domain.RunKindScheduled,
		ScheduledAt: now.Add(-2 * time.Minute),
		EvaluatedAt: now,
		Delay:       2 * time.Minute,
		Threshold:   time.Minute,
		Outcome:     domain.Skip(domain.ReasonDelayExceedsThreshold),
		CreatedAt:   now,

		DelaySeconds:     120,
		ThresholdSeconds: 60,
	}
}

func TestRecorder_Record(t *testing.T) {
	store := newMockStore()
	analytics := &mockAnalytics{}
	metrics := newMockMetrics()
	r := New().WithStore(store).WithAnalytics(analytics).WithMetrics(metrics)

	if err := r.Record(testutil.TestContext(t), newDecision()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if store.count() != 1 {
		t.Errorf("store has %d decisions, want 1", store.count())
	}
	if analytics.count() != 1 {
		t.Errorf("analytics writes = %d, want 1", analytics.count())
	}
	if metrics.writes["store"] != 1 || metrics.writes["analytics"] != 1 {
		t.Errorf("metric writes = %v, want one per target", metrics.writes)
	}
}

func TestRecorder_Record_DuplicateIgnored(t *testing.T) {
	store := newMockStore()
	r := New().WithStore(store)
	ctx := testutil.TestContext(t)
	d := newDecision()

	if err := r.Record(ctx, d); err != nil {
		t.Fatalf("first Record failed: %v", err)
	}
	if err := r.Record(ctx, d); err != nil {
		t.Errorf("duplicate Record should be ignored, got %v", err)
	}
	if store.count() != 1 {
		t.Errorf("store has %d decisions, want 1", store.count())
	}
}

func TestRecorder_Record_StoreError(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("connection reset")
	analytics := &mockAnalytics{}
	metrics := newMockMetrics()
	r := New().WithStore(store).WithAnalytics(analytics).WithMetrics(metrics)

	err := r.Record(testutil.TestContext(t), newDecision())
	if err == nil {
		t.Fatal("expected store error")
	}
	if !errors.Is(err, store.err) {
		t.Errorf("error = %v, want wrapped store error", err)
	}
	// Analytics is still attempted.
	if analytics.count() != 1 {
		t.Errorf("analytics writes = %d, want 1", analytics.count())
	}
	if metrics.errors["store"] != 1 {
		t.Errorf("store errors = %d, want 1", metrics.errors["store"])
	}
}

func TestRecorder_Record_AnalyticsErrorNotReturned(t *testing.T) {
	analytics := &mockAnalytics{err: errors.New("redis down")}
	metrics := newMockMetrics()
	r := New().WithAnalytics(analytics).WithMetrics(metrics)

	if err := r.Record(testutil.TestContext(t), newDecision()); err != nil {
		t.Errorf("analytics failure should not be returned, got %v", err)
	}
	if metrics.errors["analytics"] != 1 {
		t.Errorf("analytics errors = %d, want 1", metrics.errors["analytics"])
	}
}

func TestRecorder_Record_NoSinks(t *testing.T) {
	if err := New().Record(testutil.TestContext(t), newDecision()); err != nil {
		t.Errorf("Record with no sinks should succeed, got %v", err)
	}
}

func TestRecorder_Run_ConsumesUntilCancelled(t *testing.T) {
	store := newMockStore()
	r := New().WithStore(store)
	ch := make(chan domain.Decision, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, ch)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		ch <- newDecision()
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if store.count() != 3 {
		t.Errorf("store has %d decisions, want 3", store.count())
	}
}

func TestRecorder_Run_DrainsBufferedOnCancel(t *testing.T) {
	store := newMockStore()
	r := New().WithStore(store)
	ch := make(chan domain.Decision, 10)

	for i := 0; i < 5; i++ {
		ch <- newDecision()
	}

	// Already-cancelled context: Run may pick either select branch first, but
	// every buffered decision must be recorded before it returns.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx, ch)

	if store.count() != 5 {
		t.Errorf("store has %d decisions after drain, want 5", store.count())
	}
}

func TestRecorder_Run_ReportsBufferAfterEachReceive(t *testing.T) {
	m := newMockMetrics()
	r := New().WithStore(newMockStore()).WithMetrics(m)
	ch := make(chan domain.Decision, 10)

	for i := 0; i < 3; i++ {
		ch <- newDecision()
	}
	close(ch)
	r.Run(context.Background(), ch)

	want := []int{2, 1, 0}
	got := m.bufferSizes()
	if len(got) != len(want) {
		t.Fatalf("BufferSizeUpdate calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("BufferSizeUpdate[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRecorder_Drain_ReportsEmptyBuffer(t *testing.T) {
	m := newMockMetrics()
	r := New().WithStore(newMockStore()).WithMetrics(m)
	ch := make(chan domain.Decision, 10)

	for i := 0; i < 4; i++ {
		ch <- newDecision()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx, ch)

	got := m.bufferSizes()
	if len(got) != 4 {
		t.Fatalf("BufferSizeUpdate calls = %v, want 4", got)
	}
	if got[len(got)-1] != 0 {
		t.Errorf("last reported size = %d, want 0", got[len(got)-1])
	}
}

func TestRecorder_Run_StopsOnClosedChannel(t *testing.T) {
	r := New().WithStore(newMockStore())
	ch := make(chan domain.Decision)
	close(ch)

	done := make(chan struct{})
	go func() {
		r.Run(context.Background(), ch)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return on closed channel")
	}
}

func TestRecorder_WithDrainTimeout(t *testing.T) {
	r := New()
	if r.drainTimeout != DefaultDrainTimeout {
		t.Errorf("drainTimeout = %v, want %v", r.drainTimeout, DefaultDrainTimeout)
	}
	r.WithDrainTimeout(5 * time.Second)
	if r.drainTimeout != 5*time.Second {
		t.Errorf("drainTimeout = %v, want 5s", r.drainTimeout)
	}
	r.WithDrainTimeout(0)
	if r.drainTimeout != 5*time.Second {
		t.Error("non-positive drain timeout should be ignored")
	}
}

func TestRecorder_CircuitBreakerSkipsOpenTarget(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("connection refused")
	analytics := &mockAnalytics{}
	metrics := newMockMetrics()
	r := New().
		WithStore(store).
		WithAnalytics(analytics).
		WithMetrics(metrics).
		WithCircuitBreaker(circuitbreaker.New(2, time.Hour))
	ctx := testutil.TestContext(t)

	// Two failures trip the store circuit.
	for i := 0; i < 2; i++ {
		if err := r.Record(ctx, newDecision()); err == nil {
			t.Fatal("expected store error")
		}
	}

	err := r.Record(ctx, newDecision())
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Errorf("third Record error = %v, want ErrCircuitOpen", err)
	}

	// Analytics keeps working while the store circuit is open.
	if analytics.count() != 3 {
		t.Errorf("analytics writes = %d, want 3", analytics.count())
	}
	if metrics.errors["store"] != 3 {
		t.Errorf("store errors = %d, want 3", metrics.errors["store"])
	}
}

func TestRecorder_CircuitBreakerDuplicateCountsAsSuccess(t *testing.T) {
	store := newMockStore()
	r := New().WithStore(store).WithCircuitBreaker(circuitbreaker.New(1, time.Hour))
	ctx := testutil.TestContext(t)
	d := newDecision()

	r.Record(ctx, d)
	if err := r.Record(ctx, d); err != nil {
		t.Fatalf("duplicate should be ignored, got %v", err)
	}
	if err := r.Record(ctx, newDecision()); err != nil {
		t.Errorf("breaker should stay closed after duplicate, got %v", err)
	}
}
