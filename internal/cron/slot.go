package cron

import (
	"errors"
	"time"
)

// ErrNoSlot is returned when a schedule has no fire time within the lookback range.
var ErrNoSlot = errors.New("no schedule slot at or before the given time")

// lookbacks are tried in order; a wider window is only searched when the
// narrower one contains no slot.
var lookbacks = []time.Duration{
	time.Hour,
	24 * time.Hour,
	31 * 24 * time.Hour,
	366 * 24 * time.Hour,
	5 * 366 * 24 * time.Hour,
}

// maxIterations bounds the bisection in latestIn. Each step halves the
// remaining span, so even the widest lookback converges in well under 100.
const maxIterations = 200

// LatestSlot returns the most recent fire time of s that is not after now,
// in UTC.
func LatestSlot(s Schedule, now time.Time) (time.Time, error) {
	now = now.UTC()
	for _, lb := range lookbacks {
		if slot, ok := latestIn(s, now.Add(-lb), now); ok {
			return slot, nil
		}
	}
	return time.Time{}, ErrNoSlot
}

// latestIn returns the last fire time in [start, now].
//
// lo is always a fire time and no fire time lies in (hi, now]. Each step
// either moves lo to a fire time past the midpoint or pulls hi down to it.
func latestIn(s Schedule, start, now time.Time) (time.Time, bool) {
	// Next is exclusive, step back a nanosecond so a slot at start counts.
	lo := s.Next(start.Add(-time.Nanosecond))
	if lo.IsZero() || lo.After(now) {
		return time.Time{}, false
	}

	hi := now
	for i := 0; i < maxIterations; i++ {
		if next := s.Next(lo); next.IsZero() || next.After(hi) {
			return lo.UTC(), true
		}
		mid := lo.Add(hi.Sub(lo) / 2)
		if m := s.Next(mid); !m.IsZero() && !m.After(hi) {
			lo = m
		} else {
			hi = mid
		}
	}
	return time.Time{}, false
}
