// Package resolver implements the PULL/EVOLVE/GENERATE decision
// procedure: given a natural-language description, find the best
// matching proven Pattern and decide whether to hand it back verbatim,
// heal it into shape, or signal that nothing in the library fits.
// Grounded on the teacher's verifier retry-loop shape (internal/
// verification) for the "try, then decide a branch" control flow,
// adapted to the fixed arithmetic decision in spec.md §4.4 rather than
// the teacher's pass/fail verifier semantics.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/remembrance-oracle/oracle-core/internal/config"
	"github.com/remembrance-oracle/oracle-core/internal/reflector"
	"github.com/remembrance-oracle/oracle-core/internal/search"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

// Decision is the outcome of Resolve.
type Decision string

const (
	DecisionPull     Decision = "PULL"
	DecisionEvolve   Decision = "EVOLVE"
	DecisionGenerate Decision = "GENERATE"
)

const topK = 5

// Request is the input to Resolve (spec.md §4.4).
type Request struct {
	Description  string
	Tags         []string
	Language     types.Language
	Heal         bool
	MinCoherency float64
}

// Alternative is a candidate considered but not chosen.
type Alternative struct {
	Pattern types.Pattern
	Fit     float64
}

// Result is the Resolver's decision and supporting detail.
type Result struct {
	Decision     Decision
	Confidence   float64
	Pattern      *types.Pattern
	HealedCode   string
	Healing      *reflector.Outcome
	Alternatives []Alternative
	Whisper      string
	Reasoning    string
}

// Resolver ties the Search Engine, the Reflector, and the configured
// thresholds together into the resolve operation.
type Resolver struct {
	search *search.Engine
	cfg    config.ResolverConfig
}

// New builds a Resolver over searchEngine using cfg's thresholds.
func New(searchEngine *search.Engine, cfg config.ResolverConfig) *Resolver {
	return &Resolver{search: searchEngine, cfg: cfg}
}

// Resolve runs the PULL/EVOLVE/GENERATE decision procedure.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	minCoherency := req.MinCoherency
	if minCoherency <= 0 {
		minCoherency = r.cfg.MinCoherency
	}

	query := req.Description
	for _, t := range req.Tags {
		query += " " + t
	}

	// Step 1 of the resolve procedure: run smartSearch with the intent
	// as the query, so spelling corrections and cross-language fallback
	// apply before PULL/EVOLVE/GENERATE scoring ever sees the results.
	smart, err := r.search.SmartSearch(ctx, query, search.Options{
		Limit:        topK,
		Language:     req.Language,
		MinCoherency: minCoherency,
	})
	if err != nil {
		return Result{}, fmt.Errorf("resolver: search failed: %w", err)
	}
	hits := smart.Results

	if len(hits) == 0 {
		return Result{
			Decision:  DecisionGenerate,
			Reasoning: "library empty",
		}, nil
	}

	scored := make([]Alternative, len(hits))
	for i, h := range hits {
		scored[i] = Alternative{Pattern: h.Pattern, Fit: fit(h.BlendedScore, h.Pattern)}
	}
	sortByFitDescending(scored)

	best := scored[0]
	alternatives := scored[1:]

	languageOK := req.Language == "" || best.Pattern.Language == req.Language

	switch {
	case best.Fit >= r.cfg.TauPull && languageOK:
		p := best.Pattern
		return Result{
			Decision:     DecisionPull,
			Confidence:   clamp01(best.Fit),
			Pattern:      &p,
			Alternatives: alternatives,
			Whisper:      whisper(p.CoherencyScore.Total),
			Reasoning:    fmt.Sprintf("%q matched with fit %.2f (>= pull threshold %.2f)", p.Name, best.Fit, r.cfg.TauPull),
		}, nil

	case best.Fit >= r.cfg.TauEvolve:
		p := best.Pattern
		result := Result{
			Decision:     DecisionEvolve,
			Confidence:   clamp01(best.Fit),
			Pattern:      &p,
			Alternatives: alternatives,
			Whisper:      whisper(p.CoherencyScore.Total),
			Reasoning:    fmt.Sprintf("%q matched with fit %.2f (evolve range [%.2f, %.2f))", p.Name, best.Fit, r.cfg.TauEvolve, r.cfg.TauPull),
		}
		if req.Heal {
			// The healing loop's evaluate/refine hooks are supplied by the
			// caller that owns the Coherency Evaluator and Generator
			// (resolver has no opinion on how refine works, only that it
			// runs); see cmd/oraclectl for the concrete wiring.
			return result, nil
		}
		result.HealedCode = p.Code
		return result, nil

	default:
		return Result{
			Decision:     DecisionGenerate,
			Confidence:   clamp01(best.Fit),
			Alternatives: scored,
			Reasoning:    fmt.Sprintf("no sufficient match found (best fit %.2f below evolve threshold %.2f)", best.Fit, r.cfg.TauEvolve),
		}, nil
	}
}

// ResolveAndHeal is Resolve followed by running the Reflector over the
// EVOLVE branch's candidate code, using evaluate/refine supplied by the
// caller (the Coherency Evaluator and Generator respectively). Split
// from Resolve so callers that only want the decision (e.g. a dry-run
// UI) never pay for a healing loop they will discard.
func (r *Resolver) ResolveAndHeal(ctx context.Context, req Request, reflect *reflector.Reflector, target float64) (Result, error) {
	result, err := r.Resolve(ctx, req)
	if err != nil || result.Decision != DecisionEvolve || !req.Heal || result.Pattern == nil {
		return result, err
	}

	outcome, err := reflect.Reflect(ctx, result.Pattern.Code, reflector.Options{Target: target})
	if err != nil {
		return result, fmt.Errorf("resolver: reflect failed: %w", err)
	}
	result.Healing = &outcome
	result.HealedCode = outcome.Code
	return result, nil
}

// fit implements spec.md §4.4's weighted fit formula.
func fit(matchScore float64, p types.Pattern) float64 {
	reliability := reliabilityScore(p.Reliability, p.LastUsedAt)
	voteScore := normalizeVotes(p.Votes.Score)
	return 0.45*matchScore + 0.30*p.CoherencyScore.Total + 0.15*reliability + 0.10*voteScore
}

func reliabilityScore(r types.Reliability, lastUsedAt time.Time) float64 {
	usage := r.UsageCount
	if usage < 1 {
		usage = 1
	}
	successRatio := float64(r.SuccessCount) / float64(usage)
	healingPenalty := r.HealingRate
	if healingPenalty > 1 {
		healingPenalty = 1
	}
	return 0.6*successRatio + 0.3*(1-healingPenalty) + 0.1*recencyBoost(lastUsedAt)
}

// recencyBoost decays linearly from 1.0 (used today) to 0.0 (unused for
// 90+ days). This window is separate from the Search Engine's staleness
// penalty, which ramps from 30 to 180 days.
func recencyBoost(lastUsedAt time.Time) float64 {
	if lastUsedAt.IsZero() {
		return 0
	}
	age := time.Since(lastUsedAt)
	const window = 90 * 24 * time.Hour
	if age <= 0 {
		return 1
	}
	if age >= window {
		return 0
	}
	return 1 - float64(age)/float64(window)
}

// normalizeVotes squashes an unbounded vote score into [0,1] via a
// saturating curve, since spec.md §4.4 weights voteScore alongside
// already-normalized terms but leaves vote aggregation unbounded.
func normalizeVotes(score float64) float64 {
	if score <= 0 {
		return 0.5 + 0.5*sigmoidish(score)
	}
	return 0.5 + 0.5*sigmoidish(score)
}

func sigmoidish(x float64) float64 {
	if x < 0 {
		x = -x
		return -x / (x + 5)
	}
	return x / (x + 5)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sortByFitDescending(alts []Alternative) {
	for i := 1; i < len(alts); i++ {
		for j := i; j > 0 && alts[j].Fit > alts[j-1].Fit; j-- {
			alts[j], alts[j-1] = alts[j-1], alts[j]
		}
	}
}

// whisperPool is the fixed, semantically-inert phrase pool keyed by
// coherency tier (spec.md §4.4 "Whisper"). Safe to replace; carries no
// decision weight.
var whisperPool = map[string][]string{
	"low":  {"rough but workable", "needs a steady hand"},
	"mid":  {"solid enough to build on", "a dependable starting point"},
	"high": {"battle-tested", "as clean as it gets"},
}

func whisper(coherency float64) string {
	tier := "high"
	switch {
	case coherency < 0.35:
		tier = "low"
	case coherency < 0.65:
		tier = "mid"
	}
	phrases := whisperPool[tier]
	if len(phrases) == 0 {
		return ""
	}
	return phrases[0]
}
