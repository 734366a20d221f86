package agent

// PlanResponseSchema returns the JSON Schema passed with planner requests.
func PlanResponseSchema() string {
	return `{
  "type": "object",
  "required": ["name", "steps"],
  "properties": {
    "name": {"type": "string"},
    "description": {"type": "string"},
    "start_url": {"type": "string"},
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["number", "description", "action", "expected"],
        "properties": {
          "number": {"type": "integer", "minimum": 1},
          "description": {"type": "string"},
          "action": {"type": "string", "enum": ["navigate", "click", "type", "key_press", "assert", "wait", "scroll", "extract"]},
          "target": {"type": "string"},
          "value": {"type": "string"},
          "expected": {"type": "string"},
          "depends_on": {"type": "array", "items": {"type": "integer"}},
          "optional": {"type": "boolean"},
          "max_retries": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`
}

// CellChoiceSchema returns the JSON Schema passed with cell queries.
func CellChoiceSchema() string {
	return `{
  "type": "object",
  "required": ["found", "confidence"],
  "properties": {
    "found": {"type": "boolean"},
    "cell": {"type": "string", "pattern": "^[A-Z]+[0-9]+$"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"}
  }
}`
}

// VerdictSchema returns the JSON Schema passed with evaluation requests.
func VerdictSchema() string {
	return `{
  "type": "object",
  "required": ["pass", "rationale"],
  "properties": {
    "pass": {"type": "boolean"},
    "rationale": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "bug_note": {
      "type": ["object", "null"],
      "properties": {
        "summary": {"type": "string"},
        "expected": {"type": "string"},
        "observed": {"type": "string"},
        "severity": {"type": "string", "enum": ["critical", "high", "medium", "low"]}
      }
    }
  }
}`
}
