package executor

import (
	"fmt"
	"sync"
	"time"

	"github.com/harrison/gridpilot/internal/models"
)

// StepOutcome is what a worker reports for a finished step.
type StepOutcome struct {
	Success   bool
	Attempts  int
	Err       error
	Verdict   *models.Verdict
	Extracted string
}

// ExecutionState is the run-scoped status of every step plus the evidence
// log. All methods take the state mutex.
type ExecutionState struct {
	mu        sync.Mutex
	plan      *models.TestPlan
	graph     *DependencyGraph
	status    map[string]models.StepStatus
	retries   map[string]int
	attempts  map[string]int
	errs      map[string]error
	verdicts  map[string]*models.Verdict
	extracted map[string]string
	evidence  []models.Evidence
	now       func() time.Time
}

// NewExecutionState creates a state with every step PENDING.
func NewExecutionState(plan *models.TestPlan) *ExecutionState {
	s := &ExecutionState{
		plan:      plan,
		graph:     BuildDependencyGraph(plan),
		status:    make(map[string]models.StepStatus, len(plan.Steps)),
		retries:   make(map[string]int),
		attempts:  make(map[string]int),
		errs:      make(map[string]error),
		verdicts:  make(map[string]*models.Verdict),
		extracted: make(map[string]string),
		now:       time.Now,
	}
	for _, step := range plan.Steps {
		s.status[step.ID] = models.StatusPending
	}
	return s
}

// ReadySteps returns the steps of plan that can be dispatched given state.
// A nil state is a fresh one.
func ReadySteps(plan *models.TestPlan, state *ExecutionState) []string {
	if state == nil {
		state = NewExecutionState(plan)
	}
	return state.ReadySteps()
}

// ReadySteps returns every not-yet-dispatched step whose dependencies are
// all satisfied, in plan order, and promotes them to READY.
func (s *ExecutionState) ReadySteps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []string
	for _, step := range s.plan.Steps {
		st := s.status[step.ID]
		if st != models.StatusPending && st != models.StatusReady {
			continue
		}
		if !s.depsSatisfied(step) {
			continue
		}
		s.status[step.ID] = models.StatusReady
		ready = append(ready, step.ID)
	}
	return ready
}

// depsSatisfied reports whether every dependency of step succeeded, or is an
// optional step that reached a terminal status. Caller holds mu.
func (s *ExecutionState) depsSatisfied(step models.TestStep) bool {
	for _, dep := range step.DependsOn {
		st := s.status[dep]
		if st == models.StatusSuccess {
			continue
		}
		if s.graph.Steps[dep].Optional && st.IsTerminal() {
			continue
		}
		return false
	}
	return true
}

// MarkRunning moves a READY step to RUNNING.
func (s *ExecutionState) MarkRunning(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.status[id]
	if !ok {
		return fmt.Errorf("unknown step %s", id)
	}
	if st != models.StatusReady {
		return fmt.Errorf("step %s: cannot start from %s", id, st)
	}
	s.status[id] = models.StatusRunning
	return nil
}

// Advance applies a worker's outcome. Direct dependents that become eligible
// move from PENDING to READY. A failed non-optional step skips every
// transitive dependent that is not already terminal; the skipped ids are
// returned.
func (s *ExecutionState) Advance(id string, outcome StepOutcome) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.status[id]
	if !ok {
		return nil, fmt.Errorf("unknown step %s", id)
	}
	if st != models.StatusRunning {
		return nil, fmt.Errorf("step %s: cannot finish from %s", id, st)
	}

	if outcome.Attempts > 0 {
		s.attempts[id] = outcome.Attempts
	}
	if outcome.Verdict != nil {
		s.verdicts[id] = outcome.Verdict
	}
	if outcome.Extracted != "" {
		s.extracted[id] = outcome.Extracted
	}

	if outcome.Success {
		s.status[id] = models.StatusSuccess
		delete(s.errs, id)
		s.promoteDependents(id)
		return nil, nil
	}

	s.status[id] = models.StatusFailed
	if outcome.Err != nil {
		s.errs[id] = outcome.Err
	}
	if s.graph.Steps[id].Optional {
		s.promoteDependents(id)
		return nil, nil
	}

	var skipped []string
	cause := fmt.Errorf("skipped: prerequisite %s failed", id)
	for _, dep := range s.graph.Dependents(id) {
		if s.status[dep].IsTerminal() {
			continue
		}
		s.status[dep] = models.StatusSkipped
		s.errs[dep] = cause
		skipped = append(skipped, dep)
	}
	return skipped, nil
}

// promoteDependents moves the direct dependents of id whose dependencies are
// now satisfied from PENDING to READY. Caller holds mu.
func (s *ExecutionState) promoteDependents(id string) {
	for _, next := range s.graph.Edges[id] {
		if s.status[next] != models.StatusPending {
			continue
		}
		if s.depsSatisfied(*s.graph.Steps[next]) {
			s.status[next] = models.StatusReady
		}
	}
}

// SkipRemaining marks every non-terminal step SKIPPED with reason err and
// returns their ids.
func (s *ExecutionState) SkipRemaining(err error) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var skipped []string
	for _, step := range s.plan.Steps {
		if s.status[step.ID].IsTerminal() {
			continue
		}
		s.status[step.ID] = models.StatusSkipped
		if err != nil {
			s.errs[step.ID] = err
		}
		skipped = append(skipped, step.ID)
	}
	return skipped
}

// RecordAttempt counts one attempt of a step. A failed attempt increments the
// retry counter.
func (s *ExecutionState) RecordAttempt(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[id]++
	if err != nil {
		s.retries[id]++
		s.errs[id] = err
	}
}

// AppendEvidence assigns the next sequence number to e and stores it.
func (s *ExecutionState) AppendEvidence(e models.Evidence) models.Evidence {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Seq = len(s.evidence) + 1
	if e.At.IsZero() {
		e.At = s.now()
	}
	s.evidence = append(s.evidence, e)
	return e
}

// Status returns the current status of a step.
func (s *ExecutionState) Status(id string) models.StepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[id]
}

// Snapshot copies every step status.
func (s *ExecutionState) Snapshot() map[string]models.StepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]models.StepStatus, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

// Retries returns the retry counter of a step: the number of its failed
// attempts.
func (s *ExecutionState) Retries(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries[id]
}

// Evidence returns a copy of the evidence log.
func (s *ExecutionState) Evidence() []models.Evidence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Evidence(nil), s.evidence...)
}

// Done reports whether every step is terminal.
func (s *ExecutionState) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.status {
		if !st.IsTerminal() {
			return false
		}
	}
	return true
}

// StepReports builds the per-step section of a RunReport in plan order.
func (s *ExecutionState) StepReports() []models.StepReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := s.evidenceRefs()
	reports := make([]models.StepReport, 0, len(s.plan.Steps))
	for _, step := range s.plan.Steps {
		reports = append(reports, s.stepReport(step, refs[step.ID]))
	}
	return reports
}

// StepReport builds the report of a single step.
func (s *ExecutionState) StepReport(id string) (models.StepReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	step, ok := s.graph.Steps[id]
	if !ok {
		return models.StepReport{}, false
	}
	return s.stepReport(*step, s.evidenceRefs()[id]), true
}

// evidenceRefs groups saved screenshot refs by step. Caller holds mu.
func (s *ExecutionState) evidenceRefs() map[string][]string {
	refs := make(map[string][]string)
	for _, e := range s.evidence {
		if e.Ref != "" {
			refs[e.StepID] = append(refs[e.StepID], e.Ref)
		}
	}
	return refs
}

// stepReport assembles one StepReport. Caller holds mu.
func (s *ExecutionState) stepReport(step models.TestStep, refs []string) models.StepReport {
	r := models.StepReport{
		StepID:       step.ID,
		Sequence:     step.Sequence,
		Description:  step.Description,
		Status:       s.status[step.ID],
		Optional:     step.Optional,
		Attempts:     s.attempts[step.ID],
		Retries:      retriesUsed(s.attempts[step.ID]),
		Verdict:      s.verdicts[step.ID],
		Extracted:    s.extracted[step.ID],
		EvidenceRefs: refs,
	}
	if err := s.errs[step.ID]; err != nil && r.Status != models.StatusSuccess {
		r.ErrorKind = models.Classify(err)
		r.Error = err.Error()
	}
	return r
}

func retriesUsed(attempts int) int {
	if attempts <= 1 {
		return 0
	}
	return attempts - 1
}
