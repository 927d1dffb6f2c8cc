package api

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/djlord-it/adhoc-skipper/internal/domain"
)

// validateClassify converts a request into an invocation record and the
// evaluation time. A zero now means the caller did not supply one.
func validateClassify(req ClassifyRequest) (domain.InvocationRecord, time.Time, error) {
	if req.RunID == "" {
		return domain.InvocationRecord{}, time.Time{}, fmt.Errorf("run_id is required")
	}

	if req.ScheduledAt == "" {
		return domain.InvocationRecord{}, time.Time{}, fmt.Errorf("scheduled_at is required")
	}
	scheduledAt, err := parseTimestamp(req.ScheduledAt)
	if err != nil {
		return domain.InvocationRecord{}, time.Time{}, fmt.Errorf("invalid scheduled_at: %w", err)
	}

	var now time.Time
	if req.Now != "" {
		now, err = parseTimestamp(req.Now)
		if err != nil {
			return domain.InvocationRecord{}, time.Time{}, fmt.Errorf("invalid now: %w", err)
		}
	}

	return domain.InvocationRecord{RunID: req.RunID, ScheduledAt: scheduledAt}, now, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be RFC3339")
	}
	if t.IsZero() {
		return time.Time{}, fmt.Errorf("must not be the zero time")
	}
	return t, nil
}

func validateOutcomeFilter(outcome string) error {
	switch outcome {
	case "", domain.OutcomeProceed, domain.OutcomeSkip:
		return nil
	default:
		return fmt.Errorf("outcome must be %q or %q", domain.OutcomeProceed, domain.OutcomeSkip)
	}
}

// parsePagination reads limit and offset. A missing or zero limit means
// DefaultLimit; a limit above MaxLimit is rejected rather than clamped.
func parsePagination(q url.Values) (limit, offset int, err error) {
	if limit, err = nonNegativeParam(q, "limit"); err != nil {
		return 0, 0, err
	}
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		return 0, 0, fmt.Errorf("limit must not exceed %d", MaxLimit)
	}

	if offset, err = nonNegativeParam(q, "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

// nonNegativeParam parses an optional integer query parameter; absent is 0.
func nonNegativeParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}
