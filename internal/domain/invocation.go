package domain

import (
	"strings"
	"time"
)

// ManualRunPrefix marks run identifiers created by an operator trigger.
const ManualRunPrefix = "manual__"

// RunKind distinguishes operator-triggered runs from scheduled ones.
type RunKind string

const (
	RunKindManual    RunKind = "manual"
	RunKindScheduled RunKind = "scheduled"
)

// KindOf reports how a run was triggered, based on the identifier convention.
func KindOf(runID string) RunKind {
	if strings.HasPrefix(runID, ManualRunPrefix) {
		return RunKindManual
	}
	return RunKindScheduled
}

// InvocationRecord is what the host supplies when a task is about to run.
type InvocationRecord struct {
	RunID       string
	ScheduledAt time.Time // logical run time (UTC)
}
