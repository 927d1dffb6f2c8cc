package api

import "time"

type ClassifyRequest struct {
	RunID       string `json:"run_id"`
	ScheduledAt string `json:"scheduled_at"`  // RFC3339
	Now         string `json:"now,omitempty"` // RFC3339, defaults to server time
}

// DecisionResponse describes one classification. A skip is a normal
// response with Outcome "skip", not an error.
type DecisionResponse struct {
	DecisionID       string  `json:"decision_id"`
	RunID            string  `json:"run_id"`
	Kind             string  `json:"kind"`
	Outcome          string  `json:"outcome"`
	Reason           string  `json:"reason,omitempty"`
	DelaySeconds     float64 `json:"delay_seconds"`
	ThresholdSeconds float64 `json:"threshold_seconds"`
	ScheduledAt      string  `json:"scheduled_at"`
	EvaluatedAt      string  `json:"evaluated_at"`
}

type ListDecisionsResponse struct {
	Decisions []DecisionResponse `json:"decisions"`
}

// StatsResponse holds one minute of decision counters, keyed by outcome and
// then run kind.
type StatsResponse struct {
	Minute string                      `json:"minute"`
	Counts map[string]map[string]int64 `json:"counts"`
	Total  int64                       `json:"total"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
