package domain

import "testing"

func TestKindOf(t *testing.T) {
	tests := []struct {
		runID string
		want  RunKind
	}{
		{"manual__2025-10-31T12:00:00+00:00", RunKindManual},
		{"manual__", RunKindManual},
		{"scheduled__2025-10-31T12:00:00+00:00", RunKindScheduled},
		{"backfill__2025-10-31", RunKindScheduled},
		{"Manual__x", RunKindScheduled},
		{"xmanual__", RunKindScheduled},
	}

	for _, tt := range tests {
		t.Run(tt.runID, func(t *testing.T) {
			if got := KindOf(tt.runID); got != tt.want {
				t.Errorf("KindOf(%q) = %q, want %q", tt.runID, got, tt.want)
			}
		})
	}
}
