// Package lifecycle implements the Lifecycle Engine: event-counter
// triggers, and the improve/optimize/evolve cycle that heals
// low-coherency patterns, flags unused or regressed ones, and keeps the
// dedup/retag housekeeping running without operator intervention.
// Grounded on the teacher's verification.TaskVerifier bounded-attempt
// loop (internal/verification/verifier.go) for the "per-item try, log,
// continue" shape, generalized from "retry one shard task" to "sweep
// every pattern needing attention in one phase."
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/remembrance-oracle/oracle-core/internal/config"
	"github.com/remembrance-oracle/oracle-core/internal/logging"
	"github.com/remembrance-oracle/oracle-core/internal/reflector"
	"github.com/remembrance-oracle/oracle-core/internal/store"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

const (
	historyCap          = 50
	regressionWindow    = 10
	regressionThreshold = 0.3
	unusedAfter         = 180 * 24 * time.Hour
	lowSuccessRate      = 0.4
	lowSuccessMinUses   = 5
	stubMaxLines        = 3
)

// Evaluator is the subset of the Coherency Evaluator the lifecycle
// engine needs: re-score a pattern's code after a heal or on a
// refresh pass.
type Evaluator interface {
	Evaluate(ctx context.Context, code, language string) (types.CoherencyScore, error)
}

// PhaseReport summarizes one phase's actions, grounded on the teacher's
// regression.Result shape (Success/Output/DurationMs) generalized to a
// list of per-pattern outcomes rather than one pass/fail.
type PhaseReport struct {
	Name       string
	Actions    []string
	Errors     []string
	DurationMs int64
}

// CycleReport is one runCycle's folded result.
type CycleReport struct {
	TriggeredBy string
	StartedAt   time.Time
	Improve     PhaseReport
	Optimize    PhaseReport
	Evolve      PhaseReport
	Summary     string
}

// Recommendation is an Optimize-phase finding surfaced to the operator,
// never auto-applied.
type Recommendation struct {
	Priority string // "high" | "info"
	Message  string
}

// Engine is the Lifecycle Engine. One Engine per Store; cycles are
// mutually exclusive (spec.md §5: "cycles never run in overlap").
type Engine struct {
	store     *store.Store
	reflect   *reflector.Reflector
	refine    reflector.RefineFunc
	evaluator Evaluator
	cfg       config.LifecycleConfig

	mu      sync.Mutex
	running bool
	history []CycleReport

	lastRecommendations []Recommendation
}

// New builds a lifecycle Engine. refine is the Generator-backed
// reflector.RefineFunc used for healing; evaluator re-scores healed and
// stale patterns.
func New(s *store.Store, refine reflector.RefineFunc, evaluator Evaluator, cfg config.LifecycleConfig) *Engine {
	return &Engine{
		store:     s,
		reflect:   reflector.New(),
		refine:    refine,
		evaluator: evaluator,
		cfg:       cfg,
	}
}

// Status reports whether a cycle is currently running.
func (e *Engine) Status() (running bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// History returns up to the last 50 cycle reports, most recent last.
func (e *Engine) History() []CycleReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]CycleReport, len(e.history))
	copy(out, e.history)
	return out
}

// Recommendations returns the most recent Optimize phase's findings.
func (e *Engine) Recommendations() []Recommendation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Recommendation, len(e.lastRecommendations))
	copy(out, e.lastRecommendations)
	return out
}

// OnFeedback increments the feedback counter and auto-runs the Evolve
// phase when the counter crosses a multiple of 10 (spec.md §4.6).
func (e *Engine) OnFeedback(ctx context.Context) error {
	c, err := e.store.IncrementCounter(store.CounterFeedbacks)
	if err != nil {
		return err
	}
	trigger := int64(e.cfg.FeedbackTrigger)
	if trigger <= 0 {
		trigger = 10
	}
	if c.Feedbacks%trigger == 0 {
		_, err := e.RunCycle(ctx, "feedback-threshold", evolveOnly)
		return err
	}
	return nil
}

// OnSubmission increments the submission counter and auto-runs
// candidate promotion (the Improve phase) on multiples of 5.
func (e *Engine) OnSubmission(ctx context.Context) error {
	c, err := e.store.IncrementCounter(store.CounterSubmissions)
	if err != nil {
		return err
	}
	trigger := int64(e.cfg.SubmissionTrigger)
	if trigger <= 0 {
		trigger = 5
	}
	if c.Submissions%trigger == 0 {
		_, err := e.RunCycle(ctx, "submission-threshold", improveOnly)
		return err
	}
	return nil
}

// OnRegistration increments the registration counter and nudges
// dedup/retag on multiples of 25 (retag only when AutoRetag is set).
func (e *Engine) OnRegistration(ctx context.Context) error {
	c, err := e.store.IncrementCounter(store.CounterRegistrations)
	if err != nil {
		return err
	}
	trigger := int64(e.cfg.RegistrationTrigger)
	if trigger <= 0 {
		trigger = 25
	}
	if c.Registrations%trigger == 0 {
		if _, _, err := e.store.Deduplicate(); err != nil {
			logging.Get(logging.CategoryLifecycle).Warn("registration-triggered dedup failed: %v", err)
		}
		if e.cfg.AutoRetag {
			patterns, err := e.store.Iter(store.IterFilter{})
			if err == nil {
				_, err = e.retagDrifted(patterns)
			}
			if err != nil {
				logging.Get(logging.CategoryLifecycle).Warn("registration-triggered retag failed: %v", err)
			}
		}
	}
	return nil
}

// OnRejection increments the rejection counter. Rejected submissions
// feed the candidate pool upstream (at the call site that rejected
// them, e.g. federation's submit handler); the lifecycle engine's role
// is only to keep the counter current for triggers and reporting.
func (e *Engine) OnRejection() error {
	_, err := e.store.IncrementCounter(store.CounterRejections)
	return err
}

type phaseSet int

const (
	allPhases phaseSet = iota
	improveOnly
	evolveOnly
)

// RunCycle runs the improve->optimize->evolve pipeline (or, when
// triggered by a counter threshold, just the relevant phase) and folds
// the result into the bounded history. Cycles are mutually exclusive;
// a concurrent RunCycle call while one is in flight returns ErrBusy.
func (e *Engine) RunCycle(ctx context.Context, triggeredBy string, phases ...phaseSet) (CycleReport, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return CycleReport{}, ErrBusy
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	which := allPhases
	if len(phases) > 0 {
		which = phases[0]
	}

	report := CycleReport{TriggeredBy: triggeredBy, StartedAt: time.Now()}

	if which == allPhases || which == improveOnly {
		report.Improve = e.runImprove(ctx)
	}
	if which == allPhases {
		report.Optimize = e.runOptimize(ctx)
	}
	if which == allPhases || which == evolveOnly {
		report.Evolve = e.runEvolve(ctx)
	}

	report.Summary = fmt.Sprintf(
		"cycle[%s]: improve=%d actions/%d errors, optimize=%d actions/%d errors, evolve=%d actions/%d errors",
		triggeredBy,
		len(report.Improve.Actions), len(report.Improve.Errors),
		len(report.Optimize.Actions), len(report.Optimize.Errors),
		len(report.Evolve.Actions), len(report.Evolve.Errors),
	)

	if _, err := e.store.IncrementCounter(store.CounterCycles); err != nil {
		logging.Get(logging.CategoryLifecycle).Warn("failed to increment cycle counter: %v", err)
	}

	e.mu.Lock()
	e.history = append(e.history, report)
	if len(e.history) > historyCap {
		e.history = e.history[len(e.history)-historyCap:]
	}
	e.mu.Unlock()

	logging.Get(logging.CategoryLifecycle).Info(report.Summary)
	return report, nil
}

// ErrBusy is returned by RunCycle when a cycle is already in flight.
var ErrBusy = fmt.Errorf("lifecycle: a cycle is already running")

// runImprove heals low-coherency patterns, auto-promotes candidates
// whose tests already pass, cleans stub patterns, and retags drifted
// tags (spec.md §4.6 phase 1).
func (e *Engine) runImprove(ctx context.Context) PhaseReport {
	start := time.Now()
	report := PhaseReport{Name: "improve"}

	patterns, err := e.store.Iter(store.IterFilter{})
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("iterate patterns: %v", err))
		report.DurationMs = time.Since(start).Milliseconds()
		return report
	}

	candidates := make([]types.Pattern, 0)
	for _, p := range patterns {
		if p.CoherencyScore.Total < 0.7 {
			candidates = append(candidates, p)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CoherencyScore.Total < candidates[j].CoherencyScore.Total
	})
	maxHeals := e.cfg.MaxHealsPerRun
	if maxHeals <= 0 {
		maxHeals = 20
	}
	if len(candidates) > maxHeals {
		candidates = candidates[:maxHeals]
	}

	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("improve cancelled: %v", err))
			break
		}
		healed, err := e.heal(ctx, p)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("heal %s: %v", p.Name, err))
			continue
		}
		if healed {
			report.Actions = append(report.Actions, fmt.Sprintf("healed %s", p.Name))
		}
	}

	if e.cfg.AutoClean {
		n, err := e.cleanStubs(patterns)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("clean stubs: %v", err))
		} else if n > 0 {
			report.Actions = append(report.Actions, fmt.Sprintf("cleaned %d stub patterns", n))
		}
	}

	if promoted, err := e.autoPromoteCandidates(); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("auto-promote: %v", err))
	} else if promoted > 0 {
		report.Actions = append(report.Actions, fmt.Sprintf("auto-promoted %d candidates", promoted))
	}

	if e.cfg.AutoRetag {
		if retagged, err := e.retagDrifted(patterns); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("retag: %v", err))
		} else if retagged > 0 {
			report.Actions = append(report.Actions, fmt.Sprintf("retagged %d patterns", retagged))
		}
	}

	report.DurationMs = time.Since(start).Milliseconds()
	return report
}

// heal runs SERF healing on a Pattern per spec.md §4.5's healing
// policy: target = max(0.8, current+0.1); on improvement >= +0.02,
// rewrite code/coherency and increment healingRate; otherwise leave
// untouched. The covenant is not re-checked on the healed code: the
// evaluator hook returns only a score.
func (e *Engine) heal(ctx context.Context, p types.Pattern) (bool, error) {
	if e.refine == nil || e.evaluator == nil {
		return false, fmt.Errorf("no generator/evaluator configured for healing")
	}
	target := p.CoherencyScore.Total + 0.1
	if target < 0.8 {
		target = 0.8
	}

	outcome, err := e.reflect.Reflect(ctx, p.Code, reflector.Options{
		Target: target,
		Evaluate: func(ctx context.Context, code string) (float64, []string, error) {
			score, err := e.evaluator.Evaluate(ctx, code, string(p.Language))
			if err != nil {
				return 0, nil, err
			}
			return score.Total, issuesFromBreakdown(score), nil
		},
		Refine: e.refine,
	})
	if err != nil {
		return false, err
	}

	improvement := 0.0
	if len(outcome.History) > 0 {
		improvement = outcome.History[len(outcome.History)-1].Score - p.CoherencyScore.Total
	}
	if improvement < 0.02 {
		logging.Get(logging.CategoryLifecycle).Info("heal-failed for %s: improvement %.3f below threshold", p.Name, improvement)
		return false, nil
	}

	newScore, err := e.evaluator.Evaluate(ctx, outcome.Code, string(p.Language))
	if err != nil {
		return false, err
	}

	code := outcome.Code
	heals := p.Reliability
	heals.HealingRate = nextHealingRate(heals.HealingRate, true)
	_, err = e.store.Update(p.ID, store.PatternDelta{
		Code:           &code,
		CoherencyScore: &newScore,
		Reliability:    &heals,
	})
	if err != nil {
		return false, err
	}
	if _, err := e.store.IncrementCounter(store.CounterHeals); err != nil {
		logging.Get(logging.CategoryLifecycle).Warn("failed to increment heal counter: %v", err)
	}
	return true, nil
}

func nextHealingRate(current float64, healed bool) float64 {
	// Exponential moving average toward 1.0 on a successful heal, 0.0
	// otherwise, so the rate reflects recent healing activity rather
	// than an all-time count that never comes back down.
	target := 0.0
	if healed {
		target = 1.0
	}
	return current + 0.2*(target-current)
}

func issuesFromBreakdown(score types.CoherencyScore) []string {
	issues := make([]string, 0, 6)
	b := score.Breakdown
	if b.Correctness < 0.6 {
		issues = append(issues, "low correctness")
	}
	if b.Simplicity < 0.6 {
		issues = append(issues, "low simplicity")
	}
	if b.Clarity < 0.6 {
		issues = append(issues, "low clarity")
	}
	if b.Nesting < 0.6 {
		issues = append(issues, "excessive nesting")
	}
	if b.Security < 0.6 {
		issues = append(issues, "security concerns")
	}
	if b.Relevance < 0.6 {
		issues = append(issues, "low relevance")
	}
	return issues
}

func (e *Engine) cleanStubs(patterns []types.Pattern) (int, error) {
	cleaned := 0
	for _, p := range patterns {
		if nonBlankLines(p.Code) <= stubMaxLines {
			if err := e.store.Delete(p.ID); err != nil {
				return cleaned, err
			}
			cleaned++
		}
	}
	return cleaned, nil
}

func nonBlankLines(code string) int {
	n := 0
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// autoPromoteCandidates promotes every Candidate whose synthesized test
// already passes coherency's bar, since a Candidate with a passing test
// and sealed covenant no longer needs to wait in the unproven pool.
func (e *Engine) autoPromoteCandidates() (int, error) {
	candidates, err := e.store.AllCandidates()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, c := range candidates {
		if !c.CovenantSealed || c.TestCode == "" || c.CoherencyScore.Total < 0.55 {
			continue
		}
		// Correctness is 1.0 only when the sandboxed test run passed.
		if c.CoherencyScore.Breakdown.Correctness < 1.0 {
			continue
		}
		if _, err := e.store.Promote(c.ID); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// domainVocabulary is the fixed tag vocabulary drift is measured
// against. Safe to replace/extend; carries no scoring weight.
var domainVocabulary = map[string]bool{
	"retry": true, "backoff": true, "cache": true, "parser": true, "auth": true,
	"validation": true, "concurrency": true, "http": true, "serialization": true,
	"logging": true, "config": true, "test": true, "util": true, "crypto": true,
	"database": true, "queue": true, "pool": true, "rate-limit": true,
}

// retagDrifted drops tags outside the current domain vocabulary from
// patterns that carry them, replacing them with a generic "util" tag so
// a pattern is never left with zero tags.
func (e *Engine) retagDrifted(patterns []types.Pattern) (int, error) {
	retagged := 0
	for _, p := range patterns {
		kept := make([]string, 0, len(p.Tags))
		drifted := false
		for _, t := range p.Tags {
			if domainVocabulary[strings.ToLower(t)] {
				kept = append(kept, t)
			} else {
				drifted = true
			}
		}
		if !drifted {
			continue
		}
		if len(kept) == 0 {
			kept = []string{"util"}
		}
		if _, err := e.store.Update(p.ID, store.PatternDelta{Tags: &kept}); err != nil {
			return retagged, err
		}
		retagged++
	}
	return retagged, nil
}

// runOptimize reports (never deletes) unused and near-duplicate
// patterns, refreshes stale coherency scores, and emits prioritized
// recommendations (spec.md §4.6 phase 2).
func (e *Engine) runOptimize(ctx context.Context) PhaseReport {
	start := time.Now()
	report := PhaseReport{Name: "optimize"}
	var recs []Recommendation

	patterns, err := e.store.Iter(store.IterFilter{})
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("iterate patterns: %v", err))
		report.DurationMs = time.Since(start).Milliseconds()
		return report
	}

	unused := 0
	for _, p := range patterns {
		if p.LastUsedAt.IsZero() {
			continue
		}
		if time.Since(p.LastUsedAt) >= unusedAfter {
			unused++
			recs = append(recs, Recommendation{Priority: "info", Message: fmt.Sprintf("%s unused for %s", p.Name, time.Since(p.LastUsedAt).Round(24*time.Hour))})
		}
	}
	if unused > 0 {
		report.Actions = append(report.Actions, fmt.Sprintf("flagged %d unused patterns", unused))
	}

	groups, links, err := e.store.Deduplicate()
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("deduplicate: %v", err))
	} else {
		if len(groups) > 0 {
			report.Actions = append(report.Actions, fmt.Sprintf("merged %d near-duplicate groups", len(groups)))
			for _, g := range groups {
				recs = append(recs, Recommendation{Priority: "high", Message: fmt.Sprintf("merged %d near-duplicates into %s", len(g.Absorbed), g.Survivor.Name)})
			}
		}
		if len(links) > 0 {
			report.Actions = append(report.Actions, fmt.Sprintf("linked %d cross-language variants", len(links)))
			for _, l := range links {
				recs = append(recs, Recommendation{Priority: "info", Message: fmt.Sprintf("linked %s (%s) as a variant of %s (%s)", l.Variant.Name, l.Variant.Language, l.Canonical.Name, l.Canonical.Language)})
			}
		}
	}

	refreshed := 0
	if e.evaluator != nil {
		for _, p := range patterns {
			if err := ctx.Err(); err != nil {
				break
			}
			if time.Since(p.UpdatedAt) < 30*24*time.Hour {
				continue
			}
			score, err := e.evaluator.Evaluate(ctx, p.Code, string(p.Language))
			if err != nil {
				continue
			}
			if _, err := e.store.Update(p.ID, store.PatternDelta{CoherencyScore: &score}); err == nil {
				refreshed++
			}
		}
	}
	if refreshed > 0 {
		report.Actions = append(report.Actions, fmt.Sprintf("refreshed %d stale coherency scores", refreshed))
	}

	e.mu.Lock()
	e.lastRecommendations = recs
	e.mu.Unlock()

	report.DurationMs = time.Since(start).Milliseconds()
	return report
}

// runEvolve detects per-pattern reliability regressions and re-evaluates
// their coherency, and heals patterns whose success rate has fallen below
// 0.4 after 5+ uses (spec.md §4.6 phase 3). It applies no staleness or
// over-evolution penalty to stored scores; those penalties exist only in
// the Search Engine's ranking pass.
func (e *Engine) runEvolve(ctx context.Context) PhaseReport {
	start := time.Now()
	report := PhaseReport{Name: "evolve"}

	patterns, err := e.store.Iter(store.IterFilter{})
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("iterate patterns: %v", err))
		report.DurationMs = time.Since(start).Milliseconds()
		return report
	}

	for _, p := range patterns {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("evolve cancelled: %v", err))
			break
		}

		if p.Reliability.UsageCount < regressionWindow {
			continue
		}
		successRatio := 0.0
		if p.Reliability.UsageCount > 0 {
			successRatio = float64(p.Reliability.SuccessCount) / float64(p.Reliability.UsageCount)
		}
		regressed := successRatio <= (1.0 - regressionThreshold)

		if regressed {
			report.Actions = append(report.Actions, fmt.Sprintf("regression detected in %s (success ratio %.2f)", p.Name, successRatio))
			if e.evaluator != nil {
				if score, err := e.evaluator.Evaluate(ctx, p.Code, string(p.Language)); err == nil {
					e.store.Update(p.ID, store.PatternDelta{CoherencyScore: &score})
				}
			}
		}

		if p.Reliability.UsageCount >= lowSuccessMinUses && successRatio < lowSuccessRate {
			if healed, err := e.heal(ctx, p); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("heal low-success %s: %v", p.Name, err))
			} else if healed {
				report.Actions = append(report.Actions, fmt.Sprintf("healed low-success pattern %s", p.Name))
			}
		}
	}

	report.DurationMs = time.Since(start).Milliseconds()
	return report
}
