package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind is the classification recorded in reports for a step's last error.
type ErrorKind string

const (
	ErrKindNone             ErrorKind = ""
	ErrKindDependency       ErrorKind = "dependency"
	ErrKindLowConfidence    ErrorKind = "resolution_low_confidence"
	ErrKindTargetNotFound   ErrorKind = "target_not_found"
	ErrKindTimeout          ErrorKind = "step_timeout"
	ErrKindEvaluationFailed ErrorKind = "evaluation_failed"
	ErrKindDriver           ErrorKind = "driver"
	ErrKindRetryExhausted   ErrorKind = "retry_exhausted"
	ErrKindAborted          ErrorKind = "aborted"
	ErrKindOther            ErrorKind = "other"
)

// DependencyError reports a malformed dependency graph. It is raised at plan
// build time and is never retried.
type DependencyError struct {
	StepID  string   // Step the problem was found on (may be empty)
	Missing string   // Unknown dependency id, if any
	Cycle   []string // Closed cycle path, if any
	Reason  string
}

func (e *DependencyError) Error() string {
	var sb strings.Builder
	sb.WriteString("dependency error")
	if e.StepID != "" {
		sb.WriteString(fmt.Sprintf(" at step %s", e.StepID))
	}
	if e.Reason != "" {
		sb.WriteString(": " + e.Reason)
	}
	if len(e.Cycle) > 0 {
		sb.WriteString(" (" + strings.Join(e.Cycle, " -> ") + ")")
	}
	return sb.String()
}

// ResolutionLowConfidenceError is returned when the grid resolver reaches its
// refinement cap without the confidence threshold being met.
type ResolutionLowConfidenceError struct {
	Target    string
	Threshold float64
	Last      GridResolution
}

func (e *ResolutionLowConfidenceError) Error() string {
	return fmt.Sprintf("low confidence resolving %q: best cell %s at depth %d scored %.2f (threshold %.2f)",
		e.Target, e.Last.Cell, e.Last.Depth, e.Last.Confidence, e.Threshold)
}

// TargetNotFoundError is returned when the visual chooser reports that no
// plausible match exists.
type TargetNotFoundError struct {
	Target string
	Depth  int
	Reason string
}

func (e *TargetNotFoundError) Error() string {
	msg := fmt.Sprintf("target %q not found at depth %d", e.Target, e.Depth)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// StepTimeoutError reports that a single attempt exceeded its time budget.
type StepTimeoutError struct {
	StepID  string
	Attempt int
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %s: attempt %d timed out after %v", e.StepID, e.Attempt, e.Timeout)
}

// Unwrap returns context.DeadlineExceeded to support error wrapping.
func (e *StepTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// EvaluationFailedError carries a failing verdict from the evaluator.
type EvaluationFailedError struct {
	StepID  string
	Verdict Verdict
}

func (e *EvaluationFailedError) Error() string {
	return fmt.Sprintf("step %s: evaluation failed: %s", e.StepID, e.Verdict.Rationale)
}

// DriverError wraps a failure of the browser driver.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("driver %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is the final error of a step that used every attempt.
type RetryExhaustedError struct {
	StepID   string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("step %s: failed after %d attempt(s): %v", e.StepID, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// RunAbortedError reports that the whole run stopped early.
type RunAbortedError struct {
	Reason string
	Err    error
}

func (e *RunAbortedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("run aborted: %s: %v", e.Reason, e.Err)
	}
	return "run aborted: " + e.Reason
}

func (e *RunAbortedError) Unwrap() error {
	return e.Err
}

// Classify maps err to the most specific ErrorKind in its chain. A
// RetryExhaustedError is classified by the error it wraps.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrKindNone
	}

	var (
		depErr  *DependencyError
		lowErr  *ResolutionLowConfidenceError
		nfErr   *TargetNotFoundError
		toErr   *StepTimeoutError
		evalErr *EvaluationFailedError
		drvErr  *DriverError
		abErr   *RunAbortedError
		exErr   *RetryExhaustedError
	)
	switch {
	case errors.As(err, &depErr):
		return ErrKindDependency
	case errors.As(err, &abErr):
		return ErrKindAborted
	case errors.As(err, &lowErr):
		return ErrKindLowConfidence
	case errors.As(err, &nfErr):
		return ErrKindTargetNotFound
	case errors.As(err, &toErr):
		return ErrKindTimeout
	case errors.As(err, &evalErr):
		return ErrKindEvaluationFailed
	case errors.As(err, &drvErr):
		return ErrKindDriver
	case errors.As(err, &exErr):
		return ErrKindRetryExhausted
	case errors.Is(err, context.DeadlineExceeded):
		return ErrKindTimeout
	case errors.Is(err, context.Canceled):
		return ErrKindAborted
	default:
		return ErrKindOther
	}
}

// IsDependencyError checks if the error is or wraps a DependencyError.
func IsDependencyError(err error) bool {
	var de *DependencyError
	return err != nil && errors.As(err, &de)
}

// IsDriverError checks if the error is or wraps a DriverError.
func IsDriverError(err error) bool {
	var de *DriverError
	return err != nil && errors.As(err, &de)
}

// IsTimeoutError checks if the error is or wraps a StepTimeoutError or
// context.DeadlineExceeded.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var te *StepTimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsRunAborted checks if the error is or wraps a RunAbortedError.
func IsRunAborted(err error) bool {
	var ae *RunAbortedError
	return err != nil && errors.As(err, &ae)
}
