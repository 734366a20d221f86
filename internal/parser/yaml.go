package parser

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harrison/gridpilot/internal/models"
)

// YAMLParser reads YAML plans. JSON plans go through the same decoder since
// a JSON document is valid YAML.
type YAMLParser struct{}

// NewYAMLParser creates a YAML/JSON plan parser.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

type yamlPlan struct {
	ID           string     `yaml:"id,omitempty"`
	Name         string     `yaml:"name,omitempty"`
	Description  string     `yaml:"description,omitempty"`
	Requirements string     `yaml:"requirements,omitempty"`
	StartURL     string     `yaml:"start_url,omitempty"`
	Tags         []string   `yaml:"tags,omitempty"`
	Steps        []yamlStep `yaml:"steps"`
}

type yamlStep struct {
	ID          string `yaml:"id,omitempty"`
	Description string `yaml:"description,omitempty"`
	Action      string `yaml:"action"`
	Target      string `yaml:"target,omitempty"`
	Value       string `yaml:"value,omitempty"`
	Expected    string `yaml:"expected,omitempty"`
	Timeout     string `yaml:"timeout,omitempty"`
	DependsOn   idList `yaml:"depends_on,omitempty"`
	Optional    bool   `yaml:"optional,omitempty"`
	MaxRetries  *int   `yaml:"max_retries,omitempty"`
}

// idList accepts either a sequence of ids or a single comma separated scalar.
type idList []string

func (l *idList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = splitIDs(value.Value)
		return nil
	case yaml.SequenceNode:
		var raw []string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		out := make([]string, 0, len(raw))
		for _, id := range raw {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: depends_on must be a list or a string", value.Line)
	}
}

// Parse decodes and validates a plan.
func (p *YAMLParser) Parse(r io.Reader) (*models.TestPlan, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	var doc yamlPlan
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}

	plan := &models.TestPlan{
		ID:           doc.ID,
		Name:         doc.Name,
		Description:  doc.Description,
		Requirements: doc.Requirements,
		StartURL:     doc.StartURL,
		Tags:         doc.Tags,
	}
	for i, ys := range doc.Steps {
		step, err := ys.toStep(i + 1)
		if err != nil {
			return nil, err
		}
		plan.Steps = append(plan.Steps, step)
	}
	return finish(plan)
}

func (ys yamlStep) toStep(seq int) (models.TestStep, error) {
	label := ys.ID
	if label == "" {
		label = fmt.Sprintf("#%d", seq)
	}
	if strings.TrimSpace(ys.Action) == "" {
		return models.TestStep{}, fmt.Errorf("step %s: missing action", label)
	}
	kind, err := models.ParseActionKind(ys.Action)
	if err != nil {
		return models.TestStep{}, fmt.Errorf("step %s: %w", label, err)
	}
	timeout, err := parseTimeout(ys.Timeout)
	if err != nil {
		return models.TestStep{}, fmt.Errorf("step %s: %w", label, err)
	}

	retries := models.RetriesUnset
	if ys.MaxRetries != nil {
		retries = *ys.MaxRetries
		if retries < 0 {
			return models.TestStep{}, fmt.Errorf("step %s: max_retries must be >= 0, got %d", label, retries)
		}
	}

	description := strings.TrimSpace(ys.Description)
	if description == "" {
		description = strings.TrimSpace(string(kind) + " " + ys.Target)
	}
	return models.TestStep{
		ID:          strings.TrimSpace(ys.ID),
		Sequence:    seq,
		Description: description,
		Action: models.ActionInstruction{
			Kind:            kind,
			Target:          strings.TrimSpace(ys.Target),
			Value:           ys.Value,
			ExpectedOutcome: strings.TrimSpace(ys.Expected),
			Timeout:         timeout,
		},
		DependsOn:  []string(ys.DependsOn),
		Optional:   ys.Optional,
		MaxRetries: retries,
	}, nil
}

// splitIDs splits "1, 2 3" or "Step 1, Step 2" into ids. "none" and "-" mean
// no dependencies.
func splitIDs(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	var out []string
	for _, f := range fields {
		switch strings.ToLower(f) {
		case "", "-", "none", "step", "steps", "and":
			continue
		}
		out = append(out, strings.TrimPrefix(f, "#"))
	}
	return out
}

// EncodeYAML writes plan in the format YAMLParser reads.
func EncodeYAML(w io.Writer, plan *models.TestPlan) error {
	doc := yamlPlan{
		ID:           plan.ID,
		Name:         plan.Name,
		Description:  plan.Description,
		Requirements: plan.Requirements,
		StartURL:     plan.StartURL,
		Tags:         plan.Tags,
	}
	for _, s := range plan.Steps {
		ys := yamlStep{
			ID:          s.ID,
			Description: s.Description,
			Action:      string(s.Action.Kind),
			Target:      s.Action.Target,
			Value:       s.Action.Value,
			Expected:    s.Action.ExpectedOutcome,
			DependsOn:   idList(s.DependsOn),
			Optional:    s.Optional,
		}
		if s.Action.Timeout > 0 {
			ys.Timeout = s.Action.Timeout.String()
		}
		if s.MaxRetries != models.RetriesUnset {
			n := s.MaxRetries
			ys.MaxRetries = &n
		}
		doc.Steps = append(doc.Steps, ys)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	return enc.Close()
}
