// Package parser loads test plans from YAML, JSON and Markdown files and
// builds plans from free-form requirements through a planner.
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/harrison/gridpilot/internal/models"
)

// Format represents the format of a plan file
type Format int

const (
	// FormatUnknown represents an unknown or unsupported file format
	FormatUnknown Format = iota
	// FormatMarkdown represents a Markdown (.md, .markdown) plan file
	FormatMarkdown
	// FormatYAML represents a YAML (.yaml, .yml) plan file
	FormatYAML
	// FormatJSON represents a JSON (.json) plan file
	FormatJSON
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatMarkdown:
		return "markdown"
	case FormatYAML:
		return "yaml"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Parser is the interface that all plan parsers must implement
type Parser interface {
	// Parse reads from an io.Reader and returns a validated plan
	Parse(r io.Reader) (*models.TestPlan, error)
}

// DetectFormat detects the plan format based on file extension:
//   - .md, .markdown -> FormatMarkdown
//   - .yaml, .yml -> FormatYAML
//   - .json -> FormatJSON
//   - all others -> FormatUnknown
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// NewParser creates a new parser instance for the specified format
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatMarkdown:
		return NewMarkdownParser(), nil
	case FormatYAML, FormatJSON:
		return NewYAMLParser(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
}

// ParseFile detects the format of path, parses and validates it. A plan
// without an id takes the file's base name.
func ParseFile(path string) (*models.TestPlan, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown file format: %s (supported: .md, .markdown, .yaml, .yml, .json)", path)
	}

	parser, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	plan, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if plan.ID == "" {
		plan.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if plan.Name == "" {
		plan.Name = plan.ID
	}
	return plan, nil
}

// finish numbers the steps in file order, fills ids from sequence numbers and
// validates the dependency relation.
func finish(plan *models.TestPlan) (*models.TestPlan, error) {
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	for i := range plan.Steps {
		s := &plan.Steps[i]
		if s.Sequence == 0 {
			s.Sequence = i + 1
		}
		if s.ID == "" {
			s.ID = strconv.Itoa(s.Sequence)
		}
	}
	plan.SortSteps()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// parseTimeout accepts a Go duration ("1m30s") or a bare number of seconds.
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative timeout %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative timeout %q", s)
	}
	return d, nil
}
