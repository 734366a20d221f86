package logger

import "github.com/harrison/gridpilot/internal/models"

// RunLogger is the set of events a run reports. It matches the executor's
// Logger interface.
type RunLogger interface {
	LogRunStart(plan *models.TestPlan, runID string)
	LogStepStart(step models.TestStep)
	LogAttempt(step models.TestStep, attempt int, err error)
	LogStepResult(result models.StepReport)
	LogSummary(report models.RunReport)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
}

// MultiLogger fans every event out to each of its loggers in order.
type MultiLogger []RunLogger

// NewMultiLogger drops nil loggers.
func NewMultiLogger(loggers ...RunLogger) MultiLogger {
	var m MultiLogger
	for _, l := range loggers {
		if l != nil {
			m = append(m, l)
		}
	}
	return m
}

func (m MultiLogger) LogRunStart(plan *models.TestPlan, runID string) {
	for _, l := range m {
		l.LogRunStart(plan, runID)
	}
}

func (m MultiLogger) LogStepStart(step models.TestStep) {
	for _, l := range m {
		l.LogStepStart(step)
	}
}

func (m MultiLogger) LogAttempt(step models.TestStep, attempt int, err error) {
	for _, l := range m {
		l.LogAttempt(step, attempt, err)
	}
}

func (m MultiLogger) LogStepResult(result models.StepReport) {
	for _, l := range m {
		l.LogStepResult(result)
	}
}

func (m MultiLogger) LogSummary(report models.RunReport) {
	for _, l := range m {
		l.LogSummary(report)
	}
}

func (m MultiLogger) LogDebug(message string) {
	for _, l := range m {
		l.LogDebug(message)
	}
}

func (m MultiLogger) LogInfo(message string) {
	for _, l := range m {
		l.LogInfo(message)
	}
}

func (m MultiLogger) LogWarn(message string) {
	for _, l := range m {
		l.LogWarn(message)
	}
}

func (m MultiLogger) LogError(message string) {
	for _, l := range m {
		l.LogError(message)
	}
}

// NoOpLogger is a RunLogger implementation that discards all log messages.
// Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogRunStart(plan *models.TestPlan, runID string)         {}
func (n *NoOpLogger) LogStepStart(step models.TestStep)                       {}
func (n *NoOpLogger) LogAttempt(step models.TestStep, attempt int, err error) {}
func (n *NoOpLogger) LogStepResult(result models.StepReport)                  {}
func (n *NoOpLogger) LogSummary(report models.RunReport)                      {}
func (n *NoOpLogger) LogDebug(message string)                                 {}
func (n *NoOpLogger) LogInfo(message string)                                  {}
func (n *NoOpLogger) LogWarn(message string)                                  {}
func (n *NoOpLogger) LogError(message string)                                 {}
