package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(id string, deps ...string) TestStep {
	return TestStep{
		ID:          id,
		Description: "step " + id,
		Action:      ActionInstruction{Kind: ActionWait},
		DependsOn:   deps,
	}
}

func TestParseActionKind(t *testing.T) {
	tests := []struct {
		in      string
		want    ActionKind
		wantErr bool
	}{
		{"click", ActionClick, false},
		{"CLICK", ActionClick, false},
		{"Key Press", ActionKeyPress, false},
		{"key-press", ActionKeyPress, false},
		{"goto", ActionNavigate, false},
		{"fill", ActionType, false},
		{"verify", ActionAssert, false},
		{" scroll ", ActionScroll, false},
		{"hover", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseActionKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActionInstruction_NeedsTarget(t *testing.T) {
	assert.True(t, ActionInstruction{Kind: ActionClick, Target: "the Login button"}.NeedsTarget())
	assert.True(t, ActionInstruction{Kind: ActionType, Target: "email field", Value: "a@b.c"}.NeedsTarget())
	assert.False(t, ActionInstruction{Kind: ActionType, Value: "hello"}.NeedsTarget())
	assert.False(t, ActionInstruction{Kind: ActionNavigate, Value: "https://example.com"}.NeedsTarget())
	assert.False(t, ActionInstruction{Kind: ActionAssert, Target: "banner"}.NeedsTarget())
}

func TestTestPlan_Validate(t *testing.T) {
	tests := []struct {
		name        string
		steps       []TestStep
		wantErr     bool
		wantDepErr  bool
		wantMissing string
		wantCycle   bool
	}{
		{
			name:  "empty plan",
			steps: nil,
		},
		{
			name:  "linear chain",
			steps: []TestStep{step("1"), step("2", "1"), step("3", "2")},
		},
		{
			name:  "diamond",
			steps: []TestStep{step("a"), step("b", "a"), step("c", "a"), step("d", "b", "c")},
		},
		{
			name:        "dangling reference",
			steps:       []TestStep{step("1"), step("2", "9")},
			wantErr:     true,
			wantDepErr:  true,
			wantMissing: "9",
		},
		{
			name:       "self reference",
			steps:      []TestStep{step("1", "1")},
			wantErr:    true,
			wantDepErr: true,
			wantCycle:  true,
		},
		{
			name:       "two node cycle",
			steps:      []TestStep{step("a", "b"), step("b", "a")},
			wantErr:    true,
			wantDepErr: true,
			wantCycle:  true,
		},
		{
			name:       "long cycle behind a root",
			steps:      []TestStep{step("r"), step("a", "r", "c"), step("b", "a"), step("c", "b")},
			wantErr:    true,
			wantDepErr: true,
			wantCycle:  true,
		},
		{
			name:       "duplicate id",
			steps:      []TestStep{step("1"), step("1")},
			wantErr:    true,
			wantDepErr: true,
		},
		{
			name:       "empty id",
			steps:      []TestStep{step("")},
			wantErr:    true,
			wantDepErr: true,
		},
		{
			name: "click without target",
			steps: []TestStep{{
				ID:     "1",
				Action: ActionInstruction{Kind: ActionClick},
			}},
			wantErr: true,
		},
		{
			name: "negative retries",
			steps: []TestStep{{
				ID:         "1",
				Action:     ActionInstruction{Kind: ActionWait},
				MaxRetries: -2,
			}},
			wantErr: true,
		},
		{
			name: "unset retries",
			steps: []TestStep{{
				ID:         "1",
				Action:     ActionInstruction{Kind: ActionWait},
				MaxRetries: RetriesUnset,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := &TestPlan{Name: tt.name, Steps: tt.steps}
			err := plan.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantDepErr, IsDependencyError(err))

			var depErr *DependencyError
			if errors.As(err, &depErr) {
				assert.Equal(t, tt.wantMissing, depErr.Missing)
				if tt.wantCycle {
					require.NotEmpty(t, depErr.Cycle)
					assert.Equal(t, depErr.Cycle[0], depErr.Cycle[len(depErr.Cycle)-1], "cycle path should be closed")
				}
			}
		})
	}
}

func TestTestPlan_ValidateNil(t *testing.T) {
	var plan *TestPlan
	assert.Error(t, plan.Validate())
}

func TestTestPlan_SortSteps(t *testing.T) {
	plan := &TestPlan{Steps: []TestStep{
		{ID: "c", Sequence: 3},
		{ID: "a", Sequence: 1},
		{ID: "b", Sequence: 2},
		{ID: "a2", Sequence: 1},
	}}
	plan.SortSteps()

	var ids []string
	for _, s := range plan.Steps {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"a", "a2", "b", "c"}, ids)

	got, ok := plan.Step("b")
	require.True(t, ok)
	assert.Equal(t, 2, got.Sequence)
	_, ok = plan.Step("zz")
	assert.False(t, ok)
}

func TestTestStep_Retries(t *testing.T) {
	assert.Equal(t, 3, TestStep{MaxRetries: RetriesUnset}.Retries(3))
	assert.Equal(t, 0, TestStep{MaxRetries: 0}.Retries(3))
	assert.Equal(t, 5, TestStep{MaxRetries: 5}.Retries(3))
}
