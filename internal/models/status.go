package models

// StepStatus is the run-time status of a step within one run.
type StepStatus string

const (
	StatusPending StepStatus = "PENDING"
	StatusReady   StepStatus = "READY"
	StatusRunning StepStatus = "RUNNING"
	StatusSuccess StepStatus = "SUCCESS"
	StatusFailed  StepStatus = "FAILED"
	StatusSkipped StepStatus = "SKIPPED"
)

// IsTerminal reports whether no further transition can happen from s.
func (s StepStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	RunPassed  RunStatus = "PASSED"
	RunFailed  RunStatus = "FAILED"
	RunAborted RunStatus = "ABORTED"
)

// ConfidenceLevel buckets a confidence score for display.
type ConfidenceLevel string

const (
	ConfidenceVeryHigh ConfidenceLevel = "very_high"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceVeryLow  ConfidenceLevel = "very_low"
)

// LevelFor maps a score in [0,1] to its ConfidenceLevel.
func LevelFor(score float64) ConfidenceLevel {
	switch {
	case score >= 0.95:
		return ConfidenceVeryHigh
	case score >= 0.80:
		return ConfidenceHigh
	case score >= 0.60:
		return ConfidenceMedium
	case score >= 0.40:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}
