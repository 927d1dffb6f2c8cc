package domain

// Outcome values as they appear in metrics labels and persisted rows.
const (
	OutcomeProceed = "proceed"
	OutcomeSkip    = "skip"
)

// ReasonDelayExceedsThreshold is the skip reason for stale scheduled runs.
const ReasonDelayExceedsThreshold = "delay exceeds threshold"

// Outcome is the result of classifying one invocation: either Proceed or
// Skip with a human-readable reason. The zero value is Proceed.
type Outcome struct {
	skip   bool
	reason string
}

func Proceed() Outcome {
	return Outcome{}
}

func Skip(reason string) Outcome {
	return Outcome{skip: true, reason: reason}
}

func (o Outcome) IsSkip() bool {
	return o.skip
}

// Reason is empty for Proceed.
func (o Outcome) Reason() string {
	return o.reason
}

func (o Outcome) String() string {
	if o.skip {
		return OutcomeSkip
	}
	return OutcomeProceed
}

// ParseOutcome rebuilds an Outcome from its stored form.
func ParseOutcome(s, reason string) (Outcome, bool) {
	switch s {
	case OutcomeProceed:
		return Proceed(), true
	case OutcomeSkip:
		return Skip(reason), true
	default:
		return Outcome{}, false
	}
}
