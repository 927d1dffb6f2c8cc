package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/djlord-it/adhoc-skipper/internal/classifier"
	"github.com/djlord-it/adhoc-skipper/internal/config"
	"github.com/djlord-it/adhoc-skipper/internal/cron"
	"github.com/djlord-it/adhoc-skipper/internal/domain"
	"github.com/djlord-it/adhoc-skipper/internal/gate"
)

// classifyResult is printed to stdout as one JSON line.
type classifyResult struct {
	RunID            string  `json:"run_id"`
	Kind             string  `json:"kind"`
	Outcome          string  `json:"outcome"`
	Reason           string  `json:"reason,omitempty"`
	ScheduledAt      string  `json:"scheduled_at"`
	EvaluatedAt      string  `json:"evaluated_at"`
	DelaySeconds     float64 `json:"delay_seconds"`
	ThresholdSeconds float64 `json:"threshold_seconds"`
}

// runClassify evaluates one invocation for shell-based hosts. The exit code
// carries the outcome: exitSuccess to proceed, exitSkipped to skip.
// A nil clock uses time.Now.
func runClassify(args []string, stdout, stderr io.Writer, clock func() time.Time) int {
	if clock == nil {
		clock = time.Now
	}

	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	fs.SetOutput(stderr)

	runID := fs.String("run-id", "", "run identifier")
	scheduledAtStr := fs.String("scheduled-at", "", "scheduled logical time (RFC3339)")
	cronExpr := fs.String("cron", "", "derive the scheduled time from the latest slot of this cron expression")
	tz := fs.String("tz", "UTC", "IANA timezone for --cron")
	nowStr := fs.String("now", "", "evaluation time (RFC3339, default: current time)")
	thresholdStr := fs.String("threshold", "", "override SKIP_THRESHOLD_SECONDS")

	if err := fs.Parse(args); err != nil {
		return exitRuntimeError
	}

	cfg := config.Load()
	if *thresholdStr != "" {
		cfg.SkipThresholdStr = *thresholdStr
		if v, err := strconv.ParseFloat(*thresholdStr, 64); err == nil {
			cfg.SkipThresholdSeconds = v
		}
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	c, err := classifier.New(classifier.Config{ThresholdSeconds: cfg.SkipThresholdSeconds})
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	now := clock()
	if *nowStr != "" {
		now, err = time.Parse(time.RFC3339Nano, *nowStr)
		if err != nil {
			fmt.Fprintf(stderr, "invalid --now: %v\n", err)
			return exitRuntimeError
		}
	}

	rec, err := buildInvocation(*runID, *scheduledAtStr, *cronExpr, *tz, now)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitRuntimeError
	}

	decision, err := gate.New(c).CheckAt(context.Background(), rec, now)
	if err != nil && !gate.IsSkip(err) {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitRuntimeError
	}

	out, _ := json.Marshal(classifyResult{
		RunID:            decision.RunID,
		Kind:             string(decision.Kind),
		Outcome:          decision.Outcome.String(),
		Reason:           decision.Outcome.Reason(),
		ScheduledAt:      decision.ScheduledAt.Format(time.RFC3339),
		EvaluatedAt:      decision.EvaluatedAt.Format(time.RFC3339),
		DelaySeconds:     decision.DelaySeconds,
		ThresholdSeconds: decision.ThresholdSeconds,
	})
	fmt.Fprintln(stdout, string(out))

	if decision.Outcome.IsSkip() {
		return exitSkipped
	}
	return exitSuccess
}

// buildInvocation resolves the scheduled time from either --scheduled-at or
// --cron. Without --run-id, a cron-derived slot gets a scheduled__ identifier.
func buildInvocation(runID, scheduledAtStr, cronExpr, tz string, now time.Time) (domain.InvocationRecord, error) {
	if scheduledAtStr != "" && cronExpr != "" {
		return domain.InvocationRecord{}, errors.New("--scheduled-at and --cron are mutually exclusive")
	}

	var scheduledAt time.Time
	switch {
	case scheduledAtStr != "":
		t, err := time.Parse(time.RFC3339Nano, scheduledAtStr)
		if err != nil {
			return domain.InvocationRecord{}, fmt.Errorf("invalid --scheduled-at: %w", err)
		}
		scheduledAt = t

	case cronExpr != "":
		sched, err := cron.NewParser().Parse(cronExpr, tz)
		if err != nil {
			return domain.InvocationRecord{}, fmt.Errorf("invalid --cron: %w", err)
		}
		slot, err := cron.LatestSlot(sched, now)
		if err != nil {
			return domain.InvocationRecord{}, fmt.Errorf("--cron %q: %w", cronExpr, err)
		}
		scheduledAt = slot
		if runID == "" {
			runID = gate.ScheduledRunPrefix + slot.Format(time.RFC3339)
		}

	default:
		return domain.InvocationRecord{}, errors.New("one of --scheduled-at or --cron is required")
	}

	if runID == "" {
		return domain.InvocationRecord{}, errors.New("--run-id is required")
	}

	return domain.InvocationRecord{RunID: runID, ScheduledAt: scheduledAt}, nil
}
