package models

import "time"

// EvidenceKind classifies an entry of the evidence log.
type EvidenceKind string

const (
	EvidenceScreenshot EvidenceKind = "screenshot"
	EvidenceResolution EvidenceKind = "resolution"
	EvidenceReplay     EvidenceKind = "replay"
	EvidenceAction     EvidenceKind = "action"
	EvidenceVerdict    EvidenceKind = "verdict"
	EvidenceError      EvidenceKind = "error"
)

// Evidence is one append-only record of what happened during an attempt.
type Evidence struct {
	Seq        int          `json:"seq"`
	StepID     string       `json:"step_id"`
	Attempt    int          `json:"attempt"`
	Kind       EvidenceKind `json:"kind"`
	Ref        string       `json:"ref,omitempty"`
	Point      *Point       `json:"point,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Detail     string       `json:"detail,omitempty"`
	At         time.Time    `json:"at"`
}

// BugNote is the evaluator's structured description of a defect.
type BugNote struct {
	Summary  string `json:"summary"`
	Expected string `json:"expected,omitempty"`
	Observed string `json:"observed,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// Verdict is the evaluator's judgement of one attempt.
type Verdict struct {
	Pass       bool     `json:"pass"`
	Rationale  string   `json:"rationale"`
	Confidence float64  `json:"confidence,omitempty"`
	BugNote    *BugNote `json:"bug_note,omitempty"`
}

// StepReport summarizes one step's terminal state.
type StepReport struct {
	StepID       string     `json:"step_id"`
	Sequence     int        `json:"sequence"`
	Description  string     `json:"description"`
	Status       StepStatus `json:"status"`
	Optional     bool       `json:"optional,omitempty"`
	Attempts     int        `json:"attempts"`
	Retries      int        `json:"retries"`
	ErrorKind    ErrorKind  `json:"error_kind,omitempty"`
	Error        string     `json:"error,omitempty"`
	Verdict      *Verdict   `json:"verdict,omitempty"`
	Extracted    string     `json:"extracted,omitempty"`
	EvidenceRefs []string   `json:"evidence_refs,omitempty"`
}

// RunReport is the result of executing a plan.
type RunReport struct {
	RunID       string        `json:"run_id"`
	PlanID      string        `json:"plan_id"`
	PlanName    string        `json:"plan_name"`
	Status      RunStatus     `json:"status"`
	Steps       []StepReport  `json:"steps"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	AbortReason string        `json:"abort_reason,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Evidence    []Evidence    `json:"evidence,omitempty"`
}

// Passed reports whether the run finished with every required step successful.
func (r *RunReport) Passed() bool {
	return r != nil && r.Status == RunPassed
}

// Step returns the report for a step id.
func (r *RunReport) Step(id string) (StepReport, bool) {
	for _, s := range r.Steps {
		if s.StepID == id {
			return s, true
		}
	}
	return StepReport{}, false
}

// BugNotes collects every bug note from the final verdicts.
func (r *RunReport) BugNotes() []BugNote {
	var notes []BugNote
	for _, s := range r.Steps {
		if s.Verdict != nil && s.Verdict.BugNote != nil {
			notes = append(notes, *s.Verdict.BugNote)
		}
	}
	return notes
}
