package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harrison/gridpilot/internal/agent"
	"github.com/harrison/gridpilot/internal/browser"
	"github.com/harrison/gridpilot/internal/journal"
	"github.com/harrison/gridpilot/internal/models"
)

// Resolver turns a target description and a screenshot into a point.
type Resolver interface {
	Resolve(ctx context.Context, screenshot []byte, target string, kind models.ActionKind) (models.GridResolution, error)
}

// CoordinatorConfig holds the per-run settings of the coordinator.
type CoordinatorConfig struct {
	RunID                string
	StepTimeout          time.Duration // default per-attempt budget; 0 = none
	DefaultRetries       int           // for steps that leave max_retries unset
	ReplayCache          bool
	DriverErrorThreshold int // consecutive driver-failed attempts before abort; 0 disables
}

// Coordinator runs single steps through resolve, act and evaluate, with
// retries and per-attempt timeouts. It implements StepRunner.
type Coordinator struct {
	session   *browser.Session
	resolver  Resolver
	evaluator agent.Evaluator
	journal   *journal.Journal
	evidence  EvidenceStore
	state     *ExecutionState
	logger    Logger
	cfg       CoordinatorConfig
	abort     context.CancelCauseFunc

	escMu       sync.Mutex
	driverRun   int
	driverSteps map[string]bool
}

var _ StepRunner = (*Coordinator)(nil)

// NewCoordinator wires a coordinator. abort cancels the whole run when the
// browser session is judged broken; it may be nil.
func NewCoordinator(session *browser.Session, resolver Resolver, evaluator agent.Evaluator, j *journal.Journal,
	evidence EvidenceStore, state *ExecutionState, logger Logger, cfg CoordinatorConfig, abort context.CancelCauseFunc) *Coordinator {
	if evidence == nil {
		evidence = DiscardEvidence{}
	}
	if j == nil {
		j = journal.New()
	}
	return &Coordinator{
		session:     session,
		resolver:    resolver,
		evaluator:   evaluator,
		journal:     j,
		evidence:    evidence,
		state:       state,
		logger:      logger,
		cfg:         cfg,
		abort:       abort,
		driverSteps: make(map[string]bool),
	}
}

// attemptResult is what one successful or failed attempt produced.
type attemptResult struct {
	verdict   *models.Verdict
	extracted string
}

// RunStep makes up to retries+1 attempts at step.
func (c *Coordinator) RunStep(ctx context.Context, step models.TestStep) StepOutcome {
	retries := step.Retries(c.cfg.DefaultRetries)
	maxAttempts := retries + 1

	var (
		lastErr error
		verdict *models.Verdict
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return StepOutcome{Attempts: attempt - 1, Err: abortError(ctx), Verdict: verdict}
		}

		res, err := c.attempt(ctx, step, attempt)
		if res.verdict != nil {
			verdict = res.verdict
		}
		c.state.RecordAttempt(step.ID, err)
		if c.logger != nil {
			c.logger.LogAttempt(step, attempt, err)
		}
		if err == nil {
			return StepOutcome{Success: true, Attempts: attempt, Verdict: verdict, Extracted: res.extracted}
		}

		if ctx.Err() != nil {
			// The run ended during this attempt. An attempt that failed on
			// its own merits still counts as the step's final failure.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return StepOutcome{Attempts: attempt, Err: abortError(ctx), Verdict: verdict}
			}
			return StepOutcome{Attempts: attempt, Err: err, Verdict: verdict}
		}
		lastErr = err
		c.record(step.ID, attempt, models.Evidence{Kind: models.EvidenceError, Detail: err.Error()})
	}

	return StepOutcome{
		Attempts: maxAttempts,
		Err:      &models.RetryExhaustedError{StepID: step.ID, Attempts: maxAttempts, Last: lastErr},
		Verdict:  verdict,
	}
}

// attempt runs one bounded resolve-act-evaluate sequence.
func (c *Coordinator) attempt(ctx context.Context, step models.TestStep, attempt int) (attemptResult, error) {
	timeout := step.Action.Timeout
	if timeout <= 0 {
		timeout = c.cfg.StepTimeout
	}

	actx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := c.perform(actx, step, attempt)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		err = &models.StepTimeoutError{StepID: step.ID, Attempt: attempt, Timeout: timeout}
	}
	if ctx.Err() == nil {
		c.trackDriver(step.ID, err)
	}
	return res, err
}

// trackDriver counts consecutive driver-failed attempts and aborts the run
// once they reach the threshold across as many distinct steps. Any attempt
// that got past the browser resets the count.
func (c *Coordinator) trackDriver(stepID string, err error) {
	c.escMu.Lock()
	defer c.escMu.Unlock()

	var te *models.StepTimeoutError
	switch {
	case models.IsDriverError(err):
		c.driverRun++
		c.driverSteps[stepID] = true
	case errors.As(err, &te):
		return
	default:
		c.driverRun = 0
		c.driverSteps = make(map[string]bool)
		return
	}

	threshold := c.cfg.DriverErrorThreshold
	if threshold <= 0 || c.driverRun < threshold || len(c.driverSteps) < threshold {
		return
	}
	cause := &models.RunAbortedError{
		Reason: fmt.Sprintf("browser session failed %d consecutive attempts across %d steps", c.driverRun, len(c.driverSteps)),
		Err:    err,
	}
	if c.logger != nil {
		c.logger.LogError(cause.Error())
	}
	if c.abort != nil {
		c.abort(cause)
	}
}

// perform is one attempt without the timeout wrapper.
func (c *Coordinator) perform(ctx context.Context, step models.TestStep, attempt int) (attemptResult, error) {
	a := step.Action
	var (
		point *models.Point
		loc   located
		res   attemptResult
	)

	switch {
	case a.Kind == models.ActionNavigate:
		url := strings.TrimSpace(a.Value)
		if url == "" {
			url = strings.TrimSpace(a.Target)
		}
		if err := c.session.Navigate(ctx, url); err != nil {
			return res, err
		}
		c.record(step.ID, attempt, models.Evidence{Kind: models.EvidenceAction, Detail: "navigate " + url})

	case a.NeedsTarget():
		l, err := c.locate(ctx, step, attempt)
		if err != nil {
			return res, err
		}
		loc = l
		p := loc.point
		point = &p
		if err := c.session.Click(ctx, p); err != nil {
			return res, err
		}
		detail := "click " + p.String()
		if a.Kind == models.ActionType {
			if err := c.session.Type(ctx, a.Value); err != nil {
				return res, err
			}
			detail += " and type"
		}
		c.record(step.ID, attempt, models.Evidence{Kind: models.EvidenceAction, Point: point, Detail: detail})

	case a.Kind == models.ActionType:
		if err := c.session.Type(ctx, a.Value); err != nil {
			return res, err
		}
		c.record(step.ID, attempt, models.Evidence{Kind: models.EvidenceAction, Detail: "type"})

	case a.Kind == models.ActionKeyPress:
		key := strings.TrimSpace(a.Value)
		if key == "" {
			key = strings.TrimSpace(a.Target)
		}
		if err := c.session.KeyPress(ctx, key); err != nil {
			return res, err
		}
		c.record(step.ID, attempt, models.Evidence{Kind: models.EvidenceAction, Detail: "key " + key})

	case a.Kind == models.ActionScroll:
		keys, err := scrollKeys(a.Value)
		if err != nil {
			return res, err
		}
		for _, key := range keys {
			if err := c.session.KeyPress(ctx, key); err != nil {
				return res, err
			}
		}
		c.record(step.ID, attempt, models.Evidence{Kind: models.EvidenceAction, Detail: fmt.Sprintf("scroll %s x%d", keys[0], len(keys))})

	case a.Kind == models.ActionWait:
		d, err := waitDuration(a.Value)
		if err != nil {
			return res, err
		}
		if err := sleepCtx(ctx, d); err != nil {
			return res, err
		}
		c.record(step.ID, attempt, models.Evidence{Kind: models.EvidenceAction, Detail: "wait " + d.String()})
	}

	if needsEvaluation(a) {
		shot, err := c.capture(ctx, step.ID, attempt, "after")
		if err != nil {
			return res, err
		}
		v, err := judge(ctx, c.evaluator, evaluationRequest(step, attempt, point, shot))
		if err == nil || models.Classify(err) == models.ErrKindEvaluationFailed {
			res.verdict = &v
			c.record(step.ID, attempt, models.Evidence{
				Kind:       models.EvidenceVerdict,
				Confidence: v.Confidence,
				Detail:     fmt.Sprintf("pass=%t: %s", v.Pass, v.Rationale),
			})
		}
		if err != nil {
			if loc.sig != "" && models.Classify(err) == models.ErrKindEvaluationFailed {
				c.forget(loc, step)
			}
			return res, err
		}
		if a.Kind == models.ActionExtract {
			res.extracted = v.Rationale
		}
	}

	if loc.sig != "" {
		c.journal.Put(c.journalEntry(loc, step, true))
	}
	return res, nil
}

// located is where a targeted step acts and the journal key for it.
type located struct {
	point       models.Point
	sig         string
	fingerprint string
	replayed    bool
}

// locate finds the point for a targeted step. The page is always
// fingerprinted so the result can be journaled; the journal is only
// consulted when the replay cache is enabled.
func (c *Coordinator) locate(ctx context.Context, step models.TestStep, attempt int) (located, error) {
	a := step.Action
	shot, err := c.capture(ctx, step.ID, attempt, "before")
	if err != nil {
		return located{}, err
	}

	fp, err := c.fingerprint(ctx, shot)
	if err != nil {
		return located{}, err
	}
	loc := located{sig: journal.Signature(a.Target, fp), fingerprint: fp}

	if c.cfg.ReplayCache {
		if e, ok := c.journal.Lookup(loc.sig); ok {
			p := e.Point
			c.record(step.ID, attempt, models.Evidence{
				Kind:   models.EvidenceReplay,
				Point:  &p,
				Detail: fmt.Sprintf("replayed %s from %s", p, e.RecordedAt.Format(time.RFC3339)),
			})
			loc.point, loc.replayed = p, true
			return loc, nil
		}
	}

	resolution, err := c.resolver.Resolve(ctx, shot, a.Target, a.Kind)
	if err != nil {
		var low *models.ResolutionLowConfidenceError
		if errors.As(err, &low) {
			p := low.Last.Point
			c.record(step.ID, attempt, models.Evidence{
				Kind:       models.EvidenceResolution,
				Point:      &p,
				Confidence: low.Last.Confidence,
				Detail:     fmt.Sprintf("cell %s depth %d below threshold", low.Last.Cell, low.Last.Depth),
			})
		}
		return located{}, err
	}

	p := resolution.Point
	c.record(step.ID, attempt, models.Evidence{
		Kind:       models.EvidenceResolution,
		Point:      &p,
		Confidence: resolution.Confidence,
		Detail:     fmt.Sprintf("cell %s depth %d (%s)", resolution.Cell, resolution.Depth, models.LevelFor(resolution.Confidence)),
	})
	loc.point = p
	return loc, nil
}

// forget drops the journal's match after a failed evaluation. A replayed
// entry is invalidated; a fresh resolution is recorded as unsuccessful.
func (c *Coordinator) forget(loc located, step models.TestStep) {
	if loc.replayed {
		c.journal.Invalidate(loc.sig)
		if c.logger != nil {
			c.logger.LogDebug(fmt.Sprintf("step %s: replay of %s failed, journal entry invalidated", step.ID, loc.point))
		}
		return
	}
	c.journal.Put(c.journalEntry(loc, step, false))
}

func (c *Coordinator) journalEntry(loc located, step models.TestStep, success bool) models.JournalEntry {
	return models.JournalEntry{
		Signature:       loc.sig,
		Target:          journal.NormalizeTarget(step.Action.Target),
		PageFingerprint: loc.fingerprint,
		Point:           loc.point,
		Kind:            step.Action.Kind,
		Success:         success,
		RunID:           c.cfg.RunID,
	}
}

// fingerprint prefers landmark texts and falls back to the screenshot hash.
func (c *Coordinator) fingerprint(ctx context.Context, shot []byte) (string, error) {
	texts, ok, err := c.session.Landmarks(ctx)
	if err != nil {
		return "", err
	}
	if ok && len(texts) > 0 {
		return journal.FingerprintLandmarks(texts), nil
	}
	fp, err := journal.FingerprintImage(shot)
	if err != nil {
		return "", fmt.Errorf("page fingerprint: %w", err)
	}
	return fp, nil
}

// capture takes a screenshot and records it as evidence.
func (c *Coordinator) capture(ctx context.Context, stepID string, attempt int, label string) ([]byte, error) {
	shot, err := c.session.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := c.evidence.SaveScreenshot(ctx, stepID, attempt, label, shot)
	if err != nil {
		if c.logger != nil {
			c.logger.LogWarn(fmt.Sprintf("step %s: %v", stepID, err))
		}
		ref = ""
	}
	c.record(stepID, attempt, models.Evidence{Kind: models.EvidenceScreenshot, Ref: ref, Detail: label})
	return shot, nil
}

func (c *Coordinator) record(stepID string, attempt int, e models.Evidence) {
	e.StepID = stepID
	e.Attempt = attempt
	c.state.AppendEvidence(e)
}
