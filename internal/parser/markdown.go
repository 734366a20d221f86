package parser

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/harrison/gridpilot/internal/models"
)

// MarkdownParser reads plans written as "## Step N: description" sections
// with "- Key: value" bullets. Headings inside code blocks are ignored.
type MarkdownParser struct {
	markdown goldmark.Markdown
}

// markdownFrontmatter is the optional YAML block at the top of the file.
type markdownFrontmatter struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	StartURL    string   `yaml:"start_url"`
	Tags        []string `yaml:"tags"`
}

var stepHeading = regexp.MustCompile(`(?i)^step\s+([A-Za-z0-9_.-]+)\s*[:.)-]\s*(.+)$`)

func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
	}
}

func (p *MarkdownParser) Parse(r io.Reader) (*models.TestPlan, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	plan := &models.TestPlan{}
	content, frontmatter := extractFrontmatter(content)
	if frontmatter != nil {
		var fm markdownFrontmatter
		if err := yaml.Unmarshal(frontmatter, &fm); err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
		plan.ID = fm.ID
		plan.Name = fm.Name
		plan.Description = fm.Description
		plan.StartURL = fm.StartURL
		plan.Tags = fm.Tags
	}

	doc := p.markdown.Parser().Parse(text.NewReader(content))
	steps, title, err := extractSteps(doc, content)
	if err != nil {
		return nil, err
	}
	if plan.Name == "" {
		plan.Name = title
	}
	plan.Steps = steps
	return finish(plan)
}

// mdStep collects one section before it is converted.
type mdStep struct {
	id          string
	description string
	fields      map[string]string
	notes       []string
}

// extractSteps walks the top-level blocks of doc. It returns the steps and
// the first level-1 heading, used as plan name when the frontmatter has none.
func extractSteps(doc ast.Node, source []byte) ([]models.TestStep, string, error) {
	var (
		sections []*mdStep
		current  *mdStep
		title    string
	)

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			headingText := nodeText(node, source)
			if node.Level == 1 && title == "" {
				title = headingText
				current = nil
				continue
			}
			if node.Level != 2 {
				continue
			}
			m := stepHeading.FindStringSubmatch(headingText)
			if m == nil {
				current = nil
				continue
			}
			current = &mdStep{id: m[1], description: strings.TrimSpace(m[2]), fields: make(map[string]string)}
			sections = append(sections, current)

		case *ast.List:
			if current == nil {
				continue
			}
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				key, value, ok := splitField(nodeText(item, source))
				if !ok {
					current.notes = append(current.notes, nodeText(item, source))
					continue
				}
				current.fields[key] = value
			}

		case *ast.Paragraph:
			if current != nil {
				current.notes = append(current.notes, nodeText(node, source))
			}
		}
	}

	steps := make([]models.TestStep, 0, len(sections))
	for i, sec := range sections {
		step, err := sec.toStep(i + 1)
		if err != nil {
			return nil, "", err
		}
		steps = append(steps, step)
	}
	return steps, title, nil
}

// fieldKeys maps normalized bullet labels to field names.
var fieldKeys = map[string]string{
	"action":          "action",
	"target":          "target",
	"value":           "value",
	"input":           "value",
	"text":            "value",
	"expected":        "expected",
	"expectedoutcome": "expected",
	"expect":          "expected",
	"dependson":       "depends_on",
	"dependencies":    "depends_on",
	"depends":         "depends_on",
	"optional":        "optional",
	"maxretries":      "max_retries",
	"retries":         "max_retries",
	"timeout":         "timeout",
	"id":              "id",
}

// splitField splits "Key: value" into a known field name and its value.
func splitField(line string) (string, string, bool) {
	key, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	normalized := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key))
	name, ok := fieldKeys[normalized]
	if !ok {
		return "", "", false
	}
	return name, strings.TrimSpace(value), true
}

func (s *mdStep) toStep(seq int) (models.TestStep, error) {
	id := s.id
	if v := s.fields["id"]; v != "" {
		id = v
	}
	action := s.fields["action"]
	if action == "" {
		return models.TestStep{}, fmt.Errorf("step %s: missing action", id)
	}
	kind, err := models.ParseActionKind(action)
	if err != nil {
		return models.TestStep{}, fmt.Errorf("step %s: %w", id, err)
	}
	timeout, err := parseTimeout(s.fields["timeout"])
	if err != nil {
		return models.TestStep{}, fmt.Errorf("step %s: %w", id, err)
	}

	retries := models.RetriesUnset
	if v := s.fields["max_retries"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return models.TestStep{}, fmt.Errorf("step %s: max retries must be a non-negative integer, got %q", id, v)
		}
		retries = n
	}

	optional := false
	if v := s.fields["optional"]; v != "" {
		switch strings.ToLower(v) {
		case "yes", "true", "y":
			optional = true
		case "no", "false", "n":
		default:
			return models.TestStep{}, fmt.Errorf("step %s: optional must be yes or no, got %q", id, v)
		}
	}

	description := s.description
	if len(s.notes) > 0 && description == "" {
		description = strings.Join(s.notes, " ")
	}

	return models.TestStep{
		ID:          id,
		Sequence:    seq,
		Description: description,
		Action: models.ActionInstruction{
			Kind:            kind,
			Target:          unquote(s.fields["target"]),
			Value:           unquote(s.fields["value"]),
			ExpectedOutcome: s.fields["expected"],
			Timeout:         timeout,
		},
		DependsOn:  splitIDs(s.fields["depends_on"]),
		Optional:   optional,
		MaxRetries: retries,
	}, nil
}

// unquote strips one pair of surrounding quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// nodeText extracts plain text from an AST node, dropping inline markup.
func nodeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.AutoLink:
			buf.Write(t.URL(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := bytes.Split(content, []byte("\n"))

	if len(lines) < 3 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}

	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			frontmatter := bytes.Join(lines[1:i], []byte("\n"))
			body := bytes.Join(lines[i+1:], []byte("\n"))
			return body, frontmatter
		}
	}

	// No closing delimiter found
	return content, nil
}
