package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/harrison/gridpilot/internal/models"
)

// FileLogger logs run events to files in the log directory.
// It creates timestamped per-run log files, per-step detail logs,
// and maintains a latest.log symlink pointing to the most recent run.
// It is thread-safe and implements the executor.Logger interface.
type FileLogger struct {
	leveled
	logDir   string
	runLog   *os.File
	runFile  string
	stepsDir string
	mu       sync.Mutex

	// attempts collects per-step attempt lines until the step's result is
	// written to its detail file.
	attempts map[string][]string
}

// NewFileLogger creates a FileLogger with a custom log directory and log level.
// It creates the log directory if it doesn't exist, opens a timestamped
// run log file, and creates/updates the latest.log symlink.
func NewFileLogger(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Generate timestamped filename: run-YYYYMMDD-HHMMSS.log
	stamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", stamp))
	stepsDir := filepath.Join(logDir, "steps-"+stamp)
	if err := os.MkdirAll(stepsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create steps directory: %w", err)
	}

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	logger := &FileLogger{
		leveled:  leveled{level: normalizeLogLevel(logLevel)},
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		stepsDir: stepsDir,
		attempts: make(map[string][]string),
	}

	logger.writeRunLog("=== gridpilot Run Log ===\n")
	logger.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))
	return logger, nil
}

// RunFile returns the path of this run's log file.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

// LogTrace logs a trace-level message (most verbose).
func (fl *FileLogger) LogTrace(message string) {
	fl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(message string) {
	fl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) {
	fl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) {
	fl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) {
	fl.logWithLevel("ERROR", message)
}

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, Redact(message)))
}

// LogRunStart records the run header at INFO level.
func (fl *FileLogger) LogRunStart(plan *models.TestPlan, runID string) {
	if !fl.shouldLog("info") {
		return
	}
	ts := timestamp()
	msg := fmt.Sprintf("[%s] Run %s: plan %s (%s), %d steps\n", ts, runID, plan.ID, plan.Name, len(plan.Steps))
	if plan.StartURL != "" {
		msg += fmt.Sprintf("[%s] Start URL: %s\n", ts, Redact(plan.StartURL))
	}
	fl.writeRunLog(msg)
}

// LogStepStart records a dispatched step at DEBUG level.
func (fl *FileLogger) LogStepStart(step models.TestStep) {
	if !fl.shouldLog("debug") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] Step %s started: %s\n", timestamp(), step.ID, describeAction(step.Action)))
}

// LogAttempt keeps the attempt for the step's detail file and writes failed
// attempts to the run log at WARN level.
func (fl *FileLogger) LogAttempt(step models.TestStep, attempt int, err error) {
	line := fmt.Sprintf("#### Attempt %d - passed (%s)", attempt, time.Now().Format(time.RFC3339))
	if err != nil {
		line = fmt.Sprintf("#### Attempt %d - %s (%s)\n%s", attempt, models.Classify(err), time.Now().Format(time.RFC3339), Redact(err.Error()))
	}

	fl.mu.Lock()
	fl.attempts[step.ID] = append(fl.attempts[step.ID], line)
	fl.mu.Unlock()

	if err != nil && fl.shouldLog("warn") {
		fl.writeRunLog(fmt.Sprintf("[%s] Step %s attempt %d failed: %s\n", timestamp(), step.ID, attempt, Redact(err.Error())))
	}
}

// LogStepResult writes the step status to the run log at INFO level and a
// detail file steps-<stamp>/step-<id>.log with attempts, verdict and evidence.
func (fl *FileLogger) LogStepResult(result models.StepReport) {
	if fl.shouldLog("info") {
		fl.writeRunLog(fmt.Sprintf("[%s] Step %s (%s): %s, attempts %d\n",
			timestamp(), result.StepID, result.Description, result.Status, result.Attempts))
	}
	if err := fl.writeStepLog(result); err != nil {
		fl.LogError(err.Error())
	}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StepLogPath returns the detail file path for a step id.
func (fl *FileLogger) StepLogPath(stepID string) string {
	return filepath.Join(fl.stepsDir, fmt.Sprintf("step-%s.log", unsafeName.ReplaceAllString(stepID, "_")))
}

func (fl *FileLogger) writeStepLog(result models.StepReport) error {
	fl.mu.Lock()
	attempts := fl.attempts[result.StepID]
	delete(fl.attempts, result.StepID)
	fl.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "=== Step %s: %s ===\n", result.StepID, result.Description)
	fmt.Fprintf(&b, "Status: %s\n", result.Status)
	fmt.Fprintf(&b, "Optional: %t\n", result.Optional)
	fmt.Fprintf(&b, "Attempts: %d\n", result.Attempts)
	fmt.Fprintf(&b, "Retries: %d\n\n", result.Retries)

	if len(attempts) > 0 {
		b.WriteString("=== Attempt History ===\n\n")
		for _, a := range attempts {
			b.WriteString(a)
			b.WriteString("\n\n")
		}
	}
	if v := result.Verdict; v != nil {
		fmt.Fprintf(&b, "Verdict: pass=%t confidence=%.2f\n%s\n\n", v.Pass, v.Confidence, Redact(v.Rationale))
		if n := v.BugNote; n != nil {
			fmt.Fprintf(&b, "Bug note (%s): %s\n", n.Severity, n.Summary)
			if n.Expected != "" {
				fmt.Fprintf(&b, "  expected: %s\n", n.Expected)
			}
			if n.Observed != "" {
				fmt.Fprintf(&b, "  observed: %s\n", n.Observed)
			}
			b.WriteString("\n")
		}
	}
	if result.Extracted != "" {
		fmt.Fprintf(&b, "Extracted:\n%s\n\n", Redact(result.Extracted))
	}
	if result.Error != "" {
		fmt.Fprintf(&b, "Error (%s):\n%s\n\n", result.ErrorKind, Redact(result.Error))
	}
	if len(result.EvidenceRefs) > 0 {
		b.WriteString("Evidence:\n")
		for _, ref := range result.EvidenceRefs {
			fmt.Fprintf(&b, "  %s\n", ref)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Completed at: %s\n", time.Now().Format(time.RFC3339))

	if err := os.WriteFile(fl.StepLogPath(result.StepID), []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write step log: %w", err)
	}
	return nil
}

// LogSummary logs the run summary with final statistics at INFO level.
func (fl *FileLogger) LogSummary(report models.RunReport) {
	if !fl.shouldLog("info") {
		return
	}

	ts := timestamp()
	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s] === RUN SUMMARY ===\n", ts)
	fmt.Fprintf(&b, "[%s] Run:          %s\n", ts, report.RunID)
	fmt.Fprintf(&b, "[%s] Total steps:  %d\n", ts, len(report.Steps))
	fmt.Fprintf(&b, "[%s] Succeeded:    %d\n", ts, report.Succeeded)
	fmt.Fprintf(&b, "[%s] Failed:       %d\n", ts, report.Failed)
	fmt.Fprintf(&b, "[%s] Skipped:      %d\n", ts, report.Skipped)
	fmt.Fprintf(&b, "[%s] Total time:   %.1fs\n", ts, report.Duration.Seconds())
	fmt.Fprintf(&b, "[%s] Status:       %s\n", ts, report.Status)
	if report.AbortReason != "" {
		fmt.Fprintf(&b, "[%s] Abort reason: %s\n", ts, report.AbortReason)
	}
	fmt.Fprintf(&b, "[%s] Completed at: %s\n", ts, time.Now().Format(time.RFC3339))
	fl.writeRunLog(b.String())
}

// Close flushes and closes the run log file.
// It should be called when the logger is no longer needed.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}
	return nil
}

// writeRunLog is a thread-safe helper to write to the run log file.
func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
		// Flush after each write for real-time logging
		fl.runLog.Sync()
	}
}
