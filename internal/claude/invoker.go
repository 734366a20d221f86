// Package claude provides utilities for invoking Claude CLI.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSystemPrompt is the standard system prompt enforcing JSON-only output.
const DefaultSystemPrompt = "You are a browser test assistant. Your ONLY output must be valid JSON matching the provided schema. No markdown, no code fences, no prose, no explanations. Output raw JSON only."

// Runner executes the CLI binary. Tests substitute it.
type Runner func(ctx context.Context, path string, args []string) ([]byte, error)

// Invoker is a reusable client for invoking Claude CLI commands.
// Create once, use many times. Safe for concurrent use.
type Invoker struct {
	// ClaudePath is the path to the claude CLI binary. Defaults to "claude".
	ClaudePath string

	// Model is passed as --model when set.
	Model string

	// Timeout is the default timeout for invocations.
	Timeout time.Duration

	// SystemPrompt is sent with all invocations.
	SystemPrompt string

	// Limiter throttles invocations. Nil means unlimited.
	Limiter *rate.Limiter

	// Run executes the binary; defaults to exec.CommandContext.
	Run Runner
}

// Request holds per-invocation configuration for a Claude CLI call.
type Request struct {
	// Prompt is the user prompt (required).
	Prompt string

	// Schema is the JSON schema for structured output (optional).
	Schema string

	// AllowRead permits the Read tool so the model can open screenshot files.
	AllowRead bool
}

// Response holds the raw output from a Claude CLI invocation.
type Response struct {
	RawOutput []byte
	SessionID string
	Duration  time.Duration
}

// NewInvoker creates a new Invoker with default settings.
func NewInvoker() *Invoker {
	return &Invoker{
		ClaudePath:   "claude",
		SystemPrompt: DefaultSystemPrompt,
	}
}

// NewLimiter builds a limiter allowing perMinute requests with the given burst.
// A non-positive perMinute disables limiting.
func NewLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

// Invoke executes a Claude CLI command. It waits on the limiter first and
// applies inv.Timeout when set.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	if inv.Limiter != nil {
		if err := inv.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	ctxToUse := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctxToUse, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	start := time.Now()
	output, err := inv.runner()(ctxToUse, inv.path(), inv.BuildArgs(req))
	if err != nil {
		if ctxErr := ctxToUse.Err(); ctxErr != nil {
			return nil, fmt.Errorf("claude invocation: %w", ctxErr)
		}
		return nil, fmt.Errorf("claude invocation failed: %w (output: %s)", err, truncate(string(output), 500))
	}

	_, sessionID, _ := ParseResponse(output)
	return &Response{
		RawOutput: output,
		SessionID: sessionID,
		Duration:  time.Since(start),
	}, nil
}

// BuildArgs constructs the command-line arguments for a request.
func (inv *Invoker) BuildArgs(req Request) []string {
	systemPrompt := inv.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	args := []string{"--system-prompt", systemPrompt, "-p", req.Prompt}
	if req.Schema != "" {
		args = append(args, "--json-schema", req.Schema)
	}
	if inv.Model != "" {
		args = append(args, "--model", inv.Model)
	}
	if req.AllowRead {
		args = append(args, "--allowedTools", "Read")
	}
	args = append(args, "--output-format", "json")
	args = append(args, "--settings", `{"disableAllHooks": true}`)
	return args
}

func (inv *Invoker) path() string {
	if inv.ClaudePath == "" {
		return "claude"
	}
	return inv.ClaudePath
}

func (inv *Invoker) runner() Runner {
	if inv.Run != nil {
		return inv.Run
	}
	return execRunner
}

func execRunner(ctx context.Context, path string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	SetCleanEnv(cmd)
	return cmd.CombinedOutput()
}

// cliEnvelope is the wrapper the CLI prints with --output-format json.
type cliEnvelope struct {
	Type             string          `json:"type"`
	Content          string          `json:"content"`
	Result           string          `json:"result"`
	Error            string          `json:"error"`
	IsError          bool            `json:"is_error"`
	SessionID        string          `json:"session_id"`
	StructuredOutput json.RawMessage `json:"structured_output"`
}

// ParseResponse extracts the model's content and the session id from raw CLI
// output. It understands the CLI envelope (structured_output, result or
// content), and falls back to extracting a bare JSON object from mixed or
// code-fenced text. Output with no JSON at all yields empty content.
func ParseResponse(raw []byte) (content string, sessionID string, err error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", "", nil
	}

	candidate := text
	var env cliEnvelope
	if jsonErr := json.Unmarshal([]byte(candidate), &env); jsonErr != nil {
		candidate = ExtractJSON(text)
		if candidate == "" {
			return "", "", nil
		}
		if jsonErr := json.Unmarshal([]byte(candidate), &env); jsonErr != nil {
			return "", "", fmt.Errorf("malformed JSON in output: %w", jsonErr)
		}
	}

	if env.IsError {
		msg := env.Result
		if msg == "" {
			msg = env.Error
		}
		return "", env.SessionID, fmt.Errorf("claude reported error: %s", msg)
	}

	switch {
	case len(env.StructuredOutput) > 0 && string(env.StructuredOutput) != "null":
		return string(env.StructuredOutput), env.SessionID, nil
	case env.Result != "":
		return env.Result, env.SessionID, nil
	case env.Content != "":
		return env.Content, env.SessionID, nil
	case env.Type == "" && env.SessionID == "" && env.Error == "":
		// Not an envelope: the payload itself.
		return candidate, "", nil
	}
	return "", env.SessionID, nil
}

// ExtractJSON attempts to extract a JSON object from mixed content.
// It finds the first '{' and last '}' to extract the JSON substring.
// Returns empty string if no valid JSON boundaries found.
func ExtractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return ""
}

// truncate returns s truncated to maxLen characters with "..." suffix if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
