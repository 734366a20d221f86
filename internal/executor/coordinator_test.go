package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/gridpilot/internal/agent"
	"github.com/harrison/gridpilot/internal/browser"
	"github.com/harrison/gridpilot/internal/journal"
	"github.com/harrison/gridpilot/internal/models"
)

type coordFixture struct {
	coord    *Coordinator
	state    *ExecutionState
	journal  *journal.Journal
	driver   *fakeDriver
	resolver *fakeResolver
	aborted  error
}

func newCoordFixture(t *testing.T, plan *models.TestPlan, ev agent.Evaluator, cfg CoordinatorConfig) *coordFixture {
	t.Helper()
	f := &coordFixture{
		state:    NewExecutionState(plan),
		journal:  journal.New(),
		driver:   newFakeDriver(),
		resolver: &fakeResolver{point: models.Point{X: 120, Y: 45}},
	}
	if cfg.RunID == "" {
		cfg.RunID = "run-test"
	}
	f.coord = NewCoordinator(browser.NewSession(f.driver), f.resolver, ev, f.journal, nil, f.state, nil, cfg,
		func(cause error) { f.aborted = cause })
	return f
}

func TestCoordinator_ResolveActEvaluate(t *testing.T) {
	s := clickStep("1", "the Submit button")
	plan := planOf(s)
	ev := &scriptedEvaluator{}
	f := newCoordFixture(t, plan, ev, CoordinatorConfig{ReplayCache: true})

	out := f.coord.RunStep(context.Background(), s)
	require.True(t, out.Success, "err: %v", out.Err)
	assert.Equal(t, 1, out.Attempts)
	require.NotNil(t, out.Verdict)
	assert.True(t, out.Verdict.Pass)

	assert.Equal(t, 1, f.resolver.Calls())
	assert.Equal(t, 1, f.driver.count("click"))
	require.Len(t, ev.points, 1)
	assert.Equal(t, &models.Point{X: 120, Y: 45}, ev.points[0])

	entries := f.journal.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.Point{X: 120, Y: 45}, entries[0].Point)
	assert.Equal(t, models.ActionClick, entries[0].Kind)
	assert.Equal(t, "run-test", entries[0].RunID)
	assert.Equal(t, "button submit", entries[0].Target)
	assert.Equal(t, journal.FingerprintLandmarks([]string{"Home", "Sign in"}), entries[0].PageFingerprint)
	assert.Equal(t, journal.Signature("the Submit button", entries[0].PageFingerprint), entries[0].Signature)

	var kinds []models.EvidenceKind
	for _, e := range f.state.Evidence() {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []models.EvidenceKind{
		models.EvidenceScreenshot, models.EvidenceResolution, models.EvidenceAction,
		models.EvidenceScreenshot, models.EvidenceVerdict,
	}, kinds)
}

func TestCoordinator_ReplayReusesJournalPoint(t *testing.T) {
	s := clickStep("1", "Submit button")
	plan := planOf(s)
	f := newCoordFixture(t, plan, passAll, CoordinatorConfig{ReplayCache: true})

	first := f.coord.RunStep(context.Background(), s)
	require.True(t, first.Success)
	f.resolver.point = models.Point{X: 999, Y: 999}

	second := f.coord.RunStep(context.Background(), s)
	require.True(t, second.Success)
	assert.Equal(t, 1, f.resolver.Calls(), "second run replays without resolving")
	assert.Equal(t, []string{"click (120,45)", "click (120,45)"}, filterCalls(f.driver, "click"))
}

func TestCoordinator_ReplayMissesWhenPageChanges(t *testing.T) {
	s := clickStep("1", "Submit button")
	f := newCoordFixture(t, planOf(s), passAll, CoordinatorConfig{ReplayCache: true})

	require.True(t, f.coord.RunStep(context.Background(), s).Success)
	f.driver.landmarks = []string{"Completely", "Different", "Page"}
	require.True(t, f.coord.RunStep(context.Background(), s).Success)
	assert.Equal(t, 2, f.resolver.Calls())
}

func TestCoordinator_ReplayCacheDisabled(t *testing.T) {
	s := clickStep("1", "Submit button")
	f := newCoordFixture(t, planOf(s), passAll, CoordinatorConfig{ReplayCache: false})

	require.True(t, f.coord.RunStep(context.Background(), s).Success)
	require.True(t, f.coord.RunStep(context.Background(), s).Success)
	assert.Equal(t, 2, f.resolver.Calls(), "the cache is never consulted")

	// Resolutions are still journaled for export and later runs.
	assert.Equal(t, 1, f.journal.Len())
	log := f.journal.Log()
	require.Len(t, log, 2)
	for _, e := range log {
		assert.True(t, e.Success)
		assert.NotEmpty(t, e.PageFingerprint)
	}
	for _, e := range f.state.Evidence() {
		assert.NotEqual(t, models.EvidenceReplay, e.Kind)
	}
}

func TestCoordinator_TargetedActionAlwaysEvaluated(t *testing.T) {
	s := step("1")
	s.MaxRetries = 0
	s.Action = models.ActionInstruction{Kind: models.ActionClick, Target: "Sign in"}
	ev := &scriptedEvaluator{verdicts: []bool{false}}
	f := newCoordFixture(t, planOf(s), ev, CoordinatorConfig{ReplayCache: true})

	out := f.coord.RunStep(context.Background(), s)
	assert.False(t, out.Success)
	assert.Equal(t, models.ErrKindEvaluationFailed, models.Classify(out.Err))
	assert.Equal(t, 1, ev.calls)

	assert.Zero(t, f.journal.Len(), "an unconfirmed point is never replayable")
	log := f.journal.Log()
	require.Len(t, log, 1)
	assert.False(t, log[0].Success)
}

func TestCoordinator_FailedReplayInvalidatesEntry(t *testing.T) {
	s := clickStep("1", "Submit button")
	s.MaxRetries = 1
	plan := planOf(s)
	// run 1 passes, then the replay fails, then the fresh resolution passes
	ev := &scriptedEvaluator{verdicts: []bool{true, false, true}}
	f := newCoordFixture(t, plan, ev, CoordinatorConfig{ReplayCache: true})

	require.True(t, f.coord.RunStep(context.Background(), s).Success)
	sig := f.journal.Entries()[0].Signature
	f.resolver.point = models.Point{X: 7, Y: 8}

	out := f.coord.RunStep(context.Background(), s)
	require.True(t, out.Success)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 2, f.resolver.Calls(), "the retry after a failed replay resolves afresh")

	e, ok := f.journal.Lookup(sig)
	require.True(t, ok)
	assert.Equal(t, models.Point{X: 7, Y: 8}, e.Point)

	var tombstones int
	for _, l := range f.journal.Log() {
		if !l.Success {
			tombstones++
		}
	}
	assert.Equal(t, 1, tombstones)
}

func TestCoordinator_RetriesBounded(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		defaults   int
		want       int
	}{
		{"no retries", 0, 5, 1},
		{"two retries", 2, 5, 3},
		{"inherits run default", models.RetriesUnset, 4, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := clickStep("1", "Submit")
			s.MaxRetries = tt.maxRetries
			ev := &scriptedEvaluator{verdicts: make([]bool, 100)}
			f := newCoordFixture(t, planOf(s), ev, CoordinatorConfig{DefaultRetries: tt.defaults, ReplayCache: true})

			out := f.coord.RunStep(context.Background(), s)
			assert.False(t, out.Success)
			assert.Equal(t, tt.want, out.Attempts)
			assert.Equal(t, tt.want, ev.calls)
			assert.Equal(t, tt.want, f.resolver.Calls())
			assert.Equal(t, tt.want, f.state.Retries("1"))

			var ex *models.RetryExhaustedError
			require.ErrorAs(t, out.Err, &ex)
			assert.Equal(t, tt.want, ex.Attempts)
			assert.Equal(t, models.ErrKindEvaluationFailed, models.Classify(out.Err))
			require.NotNil(t, out.Verdict)
			require.NotNil(t, out.Verdict.BugNote)
			assert.Equal(t, "button inert", out.Verdict.BugNote.Summary)
		})
	}
}

func TestCoordinator_TimeoutCountsAsFailedAttempt(t *testing.T) {
	s := clickStep("1", "Submit")
	s.MaxRetries = 1
	s.Action.Timeout = 20 * time.Millisecond
	f := newCoordFixture(t, planOf(s), passAll, CoordinatorConfig{ReplayCache: false})
	f.resolver.block = true

	out := f.coord.RunStep(context.Background(), s)
	assert.False(t, out.Success)
	assert.Equal(t, 2, out.Attempts)

	var te *models.StepTimeoutError
	require.ErrorAs(t, out.Err, &te)
	assert.Equal(t, 20*time.Millisecond, te.Timeout)
	assert.True(t, models.IsTimeoutError(out.Err))
	assert.Nil(t, f.aborted)
}

func TestCoordinator_ResolutionErrorsAreRetried(t *testing.T) {
	s := clickStep("1", "Submit")
	s.MaxRetries = 2
	f := newCoordFixture(t, planOf(s), passAll, CoordinatorConfig{})
	f.resolver.errs = []error{
		&models.TargetNotFoundError{Target: "Submit"},
		&models.ResolutionLowConfidenceError{Target: "Submit", Threshold: 0.8, Last: models.GridResolution{Cell: "C3", Confidence: 0.4, Depth: 2}},
	}

	out := f.coord.RunStep(context.Background(), s)
	require.True(t, out.Success)
	assert.Equal(t, 3, out.Attempts)

	var lowConf int
	for _, e := range f.state.Evidence() {
		if e.Kind == models.EvidenceResolution && e.Confidence == 0.4 {
			lowConf++
		}
	}
	assert.Equal(t, 1, lowConf, "low confidence resolution is kept as evidence")
}

func TestCoordinator_DriverEscalation(t *testing.T) {
	steps := []models.TestStep{clickStep("a", "A"), clickStep("b", "B"), clickStep("c", "C"), clickStep("d", "D")}
	for i := range steps {
		steps[i].MaxRetries = 0
	}
	plan := planOf(steps...)

	t.Run("three different steps abort the run", func(t *testing.T) {
		f := newCoordFixture(t, plan, passAll, CoordinatorConfig{DriverErrorThreshold: 3})
		f.driver.failNext("screenshot", errBrowserGone, errBrowserGone, errBrowserGone)

		for _, s := range steps[:2] {
			out := f.coord.RunStep(context.Background(), s)
			assert.True(t, models.IsDriverError(out.Err))
			assert.Nil(t, f.aborted)
		}
		f.coord.RunStep(context.Background(), steps[2])
		require.Error(t, f.aborted)
		assert.True(t, models.IsRunAborted(f.aborted))
	})

	t.Run("retries of one step do not escalate", func(t *testing.T) {
		f := newCoordFixture(t, plan, passAll, CoordinatorConfig{DriverErrorThreshold: 3})
		f.driver.failNext("screenshot", errBrowserGone, errBrowserGone, errBrowserGone, errBrowserGone)
		s := steps[0]
		s.MaxRetries = 3
		out := f.coord.RunStep(context.Background(), s)
		assert.False(t, out.Success)
		assert.Nil(t, f.aborted)
	})

	t.Run("a successful interaction resets the count", func(t *testing.T) {
		f := newCoordFixture(t, plan, passAll, CoordinatorConfig{DriverErrorThreshold: 3})
		f.driver.failNext("screenshot", errBrowserGone, errBrowserGone)
		f.coord.RunStep(context.Background(), steps[0])
		f.coord.RunStep(context.Background(), steps[1])
		require.True(t, f.coord.RunStep(context.Background(), steps[2]).Success)
		f.driver.failNext("screenshot", errBrowserGone)
		f.coord.RunStep(context.Background(), steps[3])
		assert.Nil(t, f.aborted)
	})
}

func TestCoordinator_UntargetedActions(t *testing.T) {
	tests := []struct {
		name   string
		action models.ActionInstruction
		calls  []string
	}{
		{"navigate uses value", models.ActionInstruction{Kind: models.ActionNavigate, Value: "https://example.com"}, []string{"navigate https://example.com"}},
		{"navigate falls back to target", models.ActionInstruction{Kind: models.ActionNavigate, Target: "https://example.org"}, []string{"navigate https://example.org"}},
		{"type into focused element", models.ActionInstruction{Kind: models.ActionType, Value: "hello"}, []string{"type hello"}},
		{"key press", models.ActionInstruction{Kind: models.ActionKeyPress, Value: "Enter"}, []string{"key Enter"}},
		{"scroll down twice", models.ActionInstruction{Kind: models.ActionScroll, Value: "down 2"}, []string{"key PageDown", "key PageDown"}},
		{"scroll to top", models.ActionInstruction{Kind: models.ActionScroll, Value: "top"}, []string{"key Home"}},
		{"wait", models.ActionInstruction{Kind: models.ActionWait, Value: "1ms"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := step("1")
			s.Action = tt.action
			f := newCoordFixture(t, planOf(s), passAll, CoordinatorConfig{ReplayCache: true})

			out := f.coord.RunStep(context.Background(), s)
			require.True(t, out.Success, "err: %v", out.Err)
			f.driver.mu.Lock()
			calls := append([]string(nil), f.driver.calls...)
			f.driver.mu.Unlock()
			assert.Equal(t, tt.calls, calls)
			assert.Zero(t, f.resolver.Calls())
		})
	}
}

func TestCoordinator_TypeWithTargetClicksFirst(t *testing.T) {
	s := step("1")
	s.Action = models.ActionInstruction{Kind: models.ActionType, Target: "email field", Value: "me@example.com"}
	f := newCoordFixture(t, planOf(s), passAll, CoordinatorConfig{})

	require.True(t, f.coord.RunStep(context.Background(), s).Success)
	assert.Equal(t, []string{"screenshot ", "click (120,45)", "type me@example.com", "screenshot "}, f.driver.calls)
}

func TestCoordinator_ExtractStoresRationale(t *testing.T) {
	s := step("1")
	s.Action = models.ActionInstruction{Kind: models.ActionExtract, Target: "order total", ExpectedOutcome: "the total price"}
	ev := agent.EvaluatorFunc(func(ctx context.Context, req agent.EvaluationRequest) (models.Verdict, error) {
		return models.Verdict{Pass: true, Rationale: "$42.00"}, nil
	})
	f := newCoordFixture(t, planOf(s), ev, CoordinatorConfig{})

	out := f.coord.RunStep(context.Background(), s)
	require.True(t, out.Success)
	assert.Equal(t, "$42.00", out.Extracted)
}

func TestCoordinator_EvaluatorErrorIsRetried(t *testing.T) {
	s := step("1")
	s.MaxRetries = 1
	s.Action = models.ActionInstruction{Kind: models.ActionAssert, ExpectedOutcome: "logged in"}
	calls := 0
	ev := agent.EvaluatorFunc(func(ctx context.Context, req agent.EvaluationRequest) (models.Verdict, error) {
		calls++
		if calls == 1 {
			return models.Verdict{}, errors.New("claude exited 1")
		}
		return models.Verdict{Pass: true, Rationale: "ok"}, nil
	})
	f := newCoordFixture(t, planOf(s), ev, CoordinatorConfig{})

	out := f.coord.RunStep(context.Background(), s)
	require.True(t, out.Success)
	assert.Equal(t, 2, out.Attempts)
}

func TestCoordinator_CanceledRunStopsRetrying(t *testing.T) {
	s := clickStep("1", "Submit")
	s.MaxRetries = 5
	ctx, cancel := context.WithCancel(context.Background())
	ev := agent.EvaluatorFunc(func(ctx context.Context, req agent.EvaluationRequest) (models.Verdict, error) {
		cancel()
		return models.Verdict{Pass: false, Rationale: "no"}, nil
	})
	f := newCoordFixture(t, planOf(s), ev, CoordinatorConfig{})

	out := f.coord.RunStep(ctx, s)
	assert.False(t, out.Success)
	assert.Equal(t, 1, out.Attempts)
	assert.False(t, models.IsRunAborted(out.Err), "the attempt failed before the abort was seen")
	assert.Equal(t, models.ErrKindEvaluationFailed, models.Classify(out.Err))

	blocked := clickStep("2", "Submit")
	f.resolver.block = true
	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	out = f.coord.RunStep(ctx2, blocked)
	assert.Zero(t, out.Attempts)
	assert.True(t, models.IsRunAborted(out.Err))
}

func TestScrollKeysAndWaitDuration(t *testing.T) {
	keys, err := scrollKeys("")
	require.NoError(t, err)
	assert.Equal(t, []string{"PageDown"}, keys)
	keys, err = scrollKeys("Up 3")
	require.NoError(t, err)
	assert.Equal(t, []string{"PageUp", "PageUp", "PageUp"}, keys)
	keys, err = scrollKeys("bottom 9")
	require.NoError(t, err)
	assert.Equal(t, []string{"End"}, keys)
	_, err = scrollKeys("sideways")
	assert.Error(t, err)
	_, err = scrollKeys("down zero")
	assert.Error(t, err)

	durations := map[string]time.Duration{
		"":      defaultWait,
		"250ms": 250 * time.Millisecond,
		"2":     2 * time.Second,
		"1.5s":  1500 * time.Millisecond,
		"0.5":   500 * time.Millisecond,
	}
	for in, want := range durations {
		got, err := waitDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err = waitDuration("soon")
	assert.Error(t, err)
}

func filterCalls(f *fakeDriver, op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if len(c) >= len(op) && c[:len(op)] == op {
			out = append(out, c)
		}
	}
	return out
}
