package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/djlord-it/adhoc-skipper/internal/domain"
	"github.com/djlord-it/adhoc-skipper/internal/recorder"
)

// DefaultOpTimeout bounds each database call when the caller's context has no deadline.
const DefaultOpTimeout = 5 * time.Second

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store implements recorder.Store and the API decision reader using PostgreSQL.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a new PostgreSQL store with the given database connection.
// A non-positive opTimeout falls back to DefaultOpTimeout.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &Store{db: db, opTimeout: opTimeout}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// InsertDecision appends a decision to the audit log.
// Returns recorder.ErrDuplicateDecision if the decision ID already exists.
func (s *Store) InsertDecision(ctx context.Context, d domain.Decision) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertDecision, insertArgs(d)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return recorder.ErrDuplicateDecision
		}
		return err
	}
	return nil
}

// insertArgs lists the queryInsertDecision parameters in column order.
// Delay and threshold are stored as the classifier's exact seconds.
func insertArgs(d domain.Decision) []any {
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return []any{
		d.ID,
		d.RunID,
		string(d.Kind),
		d.ScheduledAt,
		d.EvaluatedAt,
		d.DelaySeconds,
		d.ThresholdSeconds,
		d.Outcome.String(),
		d.Outcome.Reason(),
		createdAt,
	}
}

// GetDecisionsByRunID returns decisions for one run, newest first.
func (s *Store) GetDecisionsByRunID(ctx context.Context, runID string, limit, offset int) ([]domain.Decision, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryGetDecisionsByRunID, runID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanDecisions(rows)
}

// GetDecisionsByRunIDAndOutcome returns decisions for one run with the given
// outcome, newest first.
func (s *Store) GetDecisionsByRunIDAndOutcome(ctx context.Context, runID, outcome string, limit, offset int) ([]domain.Decision, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryGetDecisionsByRunIDAndOutcome, runID, outcome, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanDecisions(rows)
}

// ListDecisions returns decisions newest first, optionally filtered by
// outcome ("proceed" or "skip"). An empty outcome lists all decisions.
func (s *Store) ListDecisions(ctx context.Context, outcome string, limit, offset int) ([]domain.Decision, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		rows *sql.Rows
		err  error
	)
	if outcome == "" {
		rows, err = s.db.QueryContext(ctx, queryListDecisions, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, queryListDecisionsByOutcome, outcome, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	return scanDecisions(rows)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// ProbeSchema verifies the decisions table exists with the expected columns.
// sql.ErrNoRows means the table exists but is empty and counts as success.
func (s *Store) ProbeSchema(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var threshold float64
	err := s.db.QueryRowContext(ctx, queryProbeDecisionsTable).Scan(&threshold)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("decisions table missing or outdated (apply migrations/001_decisions.sql): %w", err)
	}
	return nil
}

func scanDecisions(rows *sql.Rows) ([]domain.Decision, error) {
	defer rows.Close()

	var result []domain.Decision
	for rows.Next() {
		var (
			d                domain.Decision
			kind             string
			delaySeconds     float64
			thresholdSeconds float64
			outcome, reason  string
		)
		err := rows.Scan(
			&d.ID,
			&d.RunID,
			&kind,
			&d.ScheduledAt,
			&d.EvaluatedAt,
			&delaySeconds,
			&thresholdSeconds,
			&outcome,
			&reason,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		o, ok := domain.ParseOutcome(outcome, reason)
		if !ok {
			return nil, fmt.Errorf("decision %s: unknown outcome %q", d.ID, outcome)
		}
		d.Kind = domain.RunKind(kind)
		d.Outcome = o
		d.DelaySeconds = delaySeconds
		d.ThresholdSeconds = thresholdSeconds
		d.Delay = secondsToDuration(delaySeconds)
		d.Threshold = secondsToDuration(thresholdSeconds)
		result = append(result, d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// secondsToDuration saturates at the duration range; the exact value stays
// in DelaySeconds/ThresholdSeconds.
func secondsToDuration(sec float64) time.Duration {
	const limit = float64(math.MaxInt64) / float64(time.Second)
	switch {
	case sec >= limit:
		return time.Duration(math.MaxInt64)
	case sec <= -limit:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(sec * float64(time.Second))
}

// isDuplicateKeyError checks if the error is a PostgreSQL unique violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	// Wrapped or driver-agnostic errors only carry the message.
	msg := err.Error()
	return strings.Contains(msg, uniqueViolation) ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
