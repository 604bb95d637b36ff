// Package reflector implements the SERF (self-reflection) loop: iterate
// evaluate/refine over a piece of code until it reaches a target score,
// gets stuck producing identical code, or regresses. Grounded on the
// teacher's TaskVerifier.VerifyWithRetry attempt loop (internal/
// verification/verifier.go) — same "execute, check, correct, retry up to
// a cap" shape — generalized from an LLM-judged pass/fail verifier into
// the fixed numeric evaluate/refine contract spec.md §4.5 defines, and
// from "last attempt wins" into "best-scoring attempt wins".
package reflector

import (
	"context"
	"fmt"

	"github.com/remembrance-oracle/oracle-core/internal/logging"
)

const defaultMaxLoops = 3

// EvaluateFunc scores a candidate and reports issues to address.
type EvaluateFunc func(ctx context.Context, code string) (score float64, issues []string, err error)

// RefineFunc produces the next candidate from the current one and its
// issues. iteration is 0-based.
type RefineFunc func(ctx context.Context, code string, issues []string, iteration int) (string, error)

// Options configures a Reflect call.
type Options struct {
	Target   float64
	MaxLoops int
	Evaluate EvaluateFunc
	Refine   RefineFunc
}

// HistoryEntry records one iteration's evaluation.
type HistoryEntry struct {
	Score      float64
	Issues     []string
	CodeLength int
}

// Outcome is the result of a Reflect call.
type Outcome struct {
	Code       string
	Converged  bool
	Iterations int
	History    []HistoryEntry
}

// Reflector runs the SERF loop. It holds no state;
// evaluate/refine are supplied per call since they close over the
// Coherency Evaluator and Generator instances the caller owns.
type Reflector struct{}

// New returns a stateless Reflector.
func New() *Reflector { return &Reflector{} }

// Reflect runs the SERF loop over code per spec.md §4.5's contract:
// stop when score reaches target (converged), when refine yields
// identical code (stuck), or when score regresses; otherwise continue
// up to maxLoops. The best-scoring iteration's code is always returned,
// even if it isn't the final one.
func (r *Reflector) Reflect(ctx context.Context, code string, opts Options) (Outcome, error) {
	if opts.Evaluate == nil || opts.Refine == nil {
		return Outcome{}, fmt.Errorf("reflector: evaluate and refine are required")
	}
	maxLoops := opts.MaxLoops
	if maxLoops <= 0 {
		maxLoops = defaultMaxLoops
	}

	log := logging.Get(logging.CategoryReflector)

	current := code
	bestCode := code
	bestScore := -1.0
	history := make([]HistoryEntry, 0, maxLoops+1)
	prevScore := -1.0

	for i := 0; i <= maxLoops; i++ {
		select {
		case <-ctx.Done():
			return Outcome{Code: bestCode, Converged: false, Iterations: len(history), History: history}, ctx.Err()
		default:
		}

		score, issues, err := opts.Evaluate(ctx, current)
		if err != nil {
			return Outcome{Code: bestCode, Converged: false, Iterations: len(history), History: history}, fmt.Errorf("reflector: evaluate at iteration %d: %w", i, err)
		}
		history = append(history, HistoryEntry{Score: score, Issues: issues, CodeLength: len(current)})

		if score > bestScore {
			bestScore = score
			bestCode = current
		}

		if score >= opts.Target {
			log.Info("SERF converged at iteration %d (score %.3f >= target %.3f)", i, score, opts.Target)
			return Outcome{Code: bestCode, Converged: true, Iterations: len(history), History: history}, nil
		}

		if i == maxLoops {
			break
		}

		if prevScore >= 0 && score <= prevScore {
			log.Info("SERF stopped: regression at iteration %d (%.3f <= %.3f)", i, score, prevScore)
			break
		}
		prevScore = score

		refined, err := opts.Refine(ctx, current, issues, i)
		if err != nil {
			return Outcome{Code: bestCode, Converged: false, Iterations: len(history), History: history}, fmt.Errorf("reflector: refine at iteration %d: %w", i, err)
		}
		if refined == current {
			log.Info("SERF stuck: refine produced identical code at iteration %d", i)
			break
		}
		current = refined
	}

	return Outcome{Code: bestCode, Converged: false, Iterations: len(history), History: history}, nil
}
