package domain

// Outcome distinguishes a clean result from a usable-but-degraded one and
// from a failure. Steps that degrade instead of failing report it so callers
// and tests can tell which path was taken.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeDegraded  Outcome = "degraded"
	OutcomeFailed    Outcome = "failed"
)

func (o Outcome) String() string { return string(o) }
