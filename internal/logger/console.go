// Package logger provides logging implementations for gridpilot runs.
//
// The logger package offers structured logging of run progress at the step
// and summary levels. Implementations are thread-safe and support various
// output destinations (console, file, etc.). Typed values and credentials are
// redacted before they are written.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/gridpilot/internal/models"
)

// ConsoleLogger logs run progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps for tracking execution flow.
// Color output is enabled when the writer is a terminal.
type ConsoleLogger struct {
	leveled
	writer      io.Writer
	mutex       sync.Mutex
	colorOutput bool
	progress    *ProgressBar
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	useColor := isTerminal(writer)
	return &ConsoleLogger{
		leveled:     leveled{level: normalizeLogLevel(logLevel)},
		writer:      writer,
		colorOutput: useColor,
		progress:    NewProgressBar(0, 20, useColor),
	}
}

// isTerminal reports whether w is a TTY that should get colors. NO_COLOR
// turns colors off through fatih/color.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if color.NoColor && os.Getenv("FORCE_COLOR") == "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

// logWithLevel logs "[HH:MM:SS] [LEVEL] message" if filtering allows it.
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	coloredLevel := level
	if cl.colorOutput {
		coloredLevel = levelColor(level).Sprint(level)
	}
	cl.write(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), coloredLevel, Redact(message)))
}

func levelColor(level string) *color.Color {
	switch level {
	case "TRACE":
		return color.New(color.FgHiBlack)
	case "DEBUG":
		return color.New(color.FgCyan)
	case "WARN":
		return color.New(color.FgYellow)
	case "ERROR":
		return color.New(color.FgRed)
	default:
		return color.New(color.FgBlue)
	}
}

// LogRunStart logs the plan being run at INFO level and resets progress.
// Format: "[HH:MM:SS] Run <id>: <plan name> (<n> steps)"
func (cl *ConsoleLogger) LogRunStart(plan *models.TestPlan, runID string) {
	cl.progress.Reset(len(plan.Steps))
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	name := plan.Name
	if cl.colorOutput {
		name = color.New(color.Bold).Sprint(name)
	}
	msg := fmt.Sprintf("[%s] Run %s: %s (%d steps)\n", timestamp(), runID, name, len(plan.Steps))
	if plan.StartURL != "" {
		msg += fmt.Sprintf("[%s] Start URL: %s\n", timestamp(), Redact(plan.StartURL))
	}
	cl.write(msg)
}

// LogStepStart logs a dispatched step at DEBUG level.
// Format: "[HH:MM:SS] Step <id> started: <kind> <target> [<value>]"
func (cl *ConsoleLogger) LogStepStart(step models.TestStep) {
	if cl.writer == nil || !cl.shouldLog("debug") {
		return
	}
	cl.write(fmt.Sprintf("[%s] Step %s started: %s\n", timestamp(), step.ID, describeAction(step.Action)))
}

// LogAttempt logs a failed attempt at WARN level and a successful retry at
// INFO level. First-attempt successes are only visible at DEBUG.
func (cl *ConsoleLogger) LogAttempt(step models.TestStep, attempt int, err error) {
	if cl.writer == nil {
		return
	}
	switch {
	case err != nil:
		if !cl.shouldLog("warn") {
			return
		}
		kind := string(models.Classify(err))
		if cl.colorOutput {
			kind = color.New(color.FgYellow).Sprint(kind)
		}
		cl.write(fmt.Sprintf("[%s] Step %s attempt %d failed (%s): %s\n", timestamp(), step.ID, attempt, kind, Redact(err.Error())))
	case attempt > 1:
		if cl.shouldLog("info") {
			cl.write(fmt.Sprintf("[%s] Step %s passed on attempt %d\n", timestamp(), step.ID, attempt))
		}
	default:
		if cl.shouldLog("debug") {
			cl.write(fmt.Sprintf("[%s] Step %s attempt %d passed\n", timestamp(), step.ID, attempt))
		}
	}
}

// LogStepResult logs the terminal status of a step at INFO level, followed by
// the run progress bar.
// Format: "[HH:MM:SS] Step <id> (<description>): <STATUS>"
func (cl *ConsoleLogger) LogStepResult(result models.StepReport) {
	cl.progress.Increment()
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	ts := timestamp()
	status := string(result.Status)
	if cl.colorOutput {
		status = statusColor(result.Status).Sprint(status)
	}
	line := fmt.Sprintf("[%s] Step %s (%s): %s", ts, result.StepID, result.Description, status)
	if result.Optional {
		line += " (optional)"
	}
	if result.Retries > 0 {
		line += fmt.Sprintf(" after %d retries", result.Retries)
	}
	out := line + "\n"
	if result.Error != "" && result.Status != models.StatusSuccess {
		out += fmt.Sprintf("[%s]   %s\n", ts, Redact(result.Error))
	}
	if v := result.Verdict; v != nil && v.BugNote != nil && !v.Pass {
		out += fmt.Sprintf("[%s]   Bug: %s\n", ts, v.BugNote.Summary)
	}
	out += fmt.Sprintf("[%s] Progress: %s\n", ts, cl.progress.Render())
	cl.write(out)
}

func statusColor(s models.StepStatus) *color.Color {
	switch s {
	case models.StatusSuccess:
		return color.New(color.FgGreen)
	case models.StatusFailed:
		return color.New(color.FgRed)
	case models.StatusSkipped:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Reset)
	}
}

// LogSummary logs the run summary at INFO level.
func (cl *ConsoleLogger) LogSummary(report models.RunReport) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	ts := timestamp()
	header := "=== Run Summary ==="
	status := string(report.Status)
	succeeded := fmt.Sprintf("Succeeded: %d", report.Succeeded)
	failed := fmt.Sprintf("Failed: %d", report.Failed)
	if cl.colorOutput {
		header = color.New(color.Bold).Sprint(header)
		succeeded = color.New(color.FgGreen).Sprint(succeeded)
		if report.Failed > 0 {
			failed = color.New(color.FgRed).Sprint(failed)
		}
		if report.Passed() {
			status = color.New(color.FgGreen, color.Bold).Sprint(status)
		} else {
			status = color.New(color.FgRed, color.Bold).Sprint(status)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", ts, header)
	fmt.Fprintf(&b, "[%s] Status: %s\n", ts, status)
	if report.AbortReason != "" {
		fmt.Fprintf(&b, "[%s] Aborted: %s\n", ts, report.AbortReason)
	}
	fmt.Fprintf(&b, "[%s] Total steps: %d\n", ts, len(report.Steps))
	fmt.Fprintf(&b, "[%s] %s\n", ts, succeeded)
	fmt.Fprintf(&b, "[%s] %s\n", ts, failed)
	fmt.Fprintf(&b, "[%s] Skipped: %d\n", ts, report.Skipped)
	fmt.Fprintf(&b, "[%s] Duration: %s\n", ts, formatDuration(report.Duration))

	var failedSteps []models.StepReport
	for _, s := range report.Steps {
		if s.Status == models.StatusFailed {
			failedSteps = append(failedSteps, s)
		}
	}
	if len(failedSteps) > 0 {
		fmt.Fprintf(&b, "[%s] Failed steps:\n", ts)
		for _, s := range failedSteps {
			fmt.Fprintf(&b, "[%s]   - Step %s (%s): %s\n", ts, s.StepID, s.ErrorKind, Redact(s.Error))
		}
	}
	cl.write(b.String())
}

func (cl *ConsoleLogger) write(s string) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	_, _ = io.WriteString(cl.writer, s)
}

// describeAction renders an action for logs with typed values redacted.
func describeAction(a models.ActionInstruction) string {
	parts := []string{string(a.Kind)}
	if a.Target != "" {
		parts = append(parts, fmt.Sprintf("%q", a.Target))
	}
	if a.Value != "" {
		value := a.Value
		if a.Kind == models.ActionType {
			value = RedactTyped(a.Target, a.Value)
		} else {
			value = Redact(value)
		}
		parts = append(parts, fmt.Sprintf("[%s]", value))
	}
	return strings.Join(parts, " ")
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}
