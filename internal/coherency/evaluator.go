// Package coherency implements the Oracle's multi-dimensional Coherency
// Evaluator (spec.md §4.1): scoring code and an optional test proof along
// six weighted dimensions, sealing a no-harm covenant, and classifying
// language/pattern-type/complexity.
package coherency

import (
	"context"
	"fmt"
	"strings"

	"github.com/remembrance-oracle/oracle-core/internal/config"
	"github.com/remembrance-oracle/oracle-core/internal/logging"
	"github.com/remembrance-oracle/oracle-core/internal/sandbox"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

// Input is the input to Evaluate.
type Input struct {
	Code        string
	Language    types.Language // optional; inferred when empty
	TestCode    string
	Description string
}

// Feedback is one actionable line-keyed rejection message (spec.md §4.1).
type Feedback struct {
	Dimension  string `json:"dimension"`
	LineHint   int    `json:"lineHint,omitempty"`
	Suggestion string `json:"suggestion"`
}

// Result is the full evaluation outcome.
type Result struct {
	Valid          bool
	CoherencyScore types.CoherencyScore
	Language       types.Language
	PatternType    types.PatternType
	Complexity     types.Complexity
	CovenantSealed bool
	Violations     []Violation
	Feedback       []Feedback
}

// EvaluationFailure is returned only when the language cannot be
// identified and the code is empty/whitespace (spec.md §4.1 "Fails with").
type EvaluationFailure struct{ Reason string }

func (e *EvaluationFailure) Error() string { return "coherency: " + e.Reason }

// Evaluator scores code and test proofs against the six-dimension model.
type Evaluator struct {
	weights config.CoherencyWeights
	strict  bool
	sandbox *sandbox.Executor
	ast     *astParser
}

// New constructs an Evaluator from the loaded configuration.
func New(weights config.CoherencyWeights, strictCovenant bool, sb *sandbox.Executor) *Evaluator {
	return &Evaluator{weights: weights, strict: strictCovenant, sandbox: sb, ast: newASTParser()}
}

// Close releases the evaluator's tree-sitter parsers.
func (e *Evaluator) Close() { e.ast.Close() }

// Evaluate scores in.Code (and in.TestCode if present) along the six
// dimensions and returns the combined Result.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (Result, error) {
	log := logging.Get(logging.CategoryCoherency)

	code := in.Code
	lang := in.Language
	if lang == "" || !lang.IsValid() {
		lang = detectLanguage(code)
	}
	if lang == types.LanguageUnknown && strings.TrimSpace(code) == "" {
		return Result{}, &EvaluationFailure{Reason: "language unknown and code is empty"}
	}

	violations := checkCovenant(code)
	covenantOK := sealed(violations, e.strict)
	security := securityScore(violations)

	correctness := e.correctness(ctx, lang, code, in.TestCode)
	simplicity := e.simplicity(lang, code)
	relevance := e.relevance(code, in.Description)
	clarity := e.clarity(code)
	nesting := e.nesting(lang, code)

	breakdown := types.CoherencyBreakdown{
		Correctness: correctness,
		Simplicity:  simplicity,
		Relevance:   relevance,
		Clarity:     clarity,
		Nesting:     nesting,
		Security:    security,
	}
	total := e.weights.Correctness*correctness +
		e.weights.Simplicity*simplicity +
		e.weights.Relevance*relevance +
		e.weights.Clarity*clarity +
		e.weights.Nesting*nesting +
		e.weights.Security*security
	total = clamp01(total)

	patternType := classifyPatternType(code)
	complexity := classifyComplexity(lang, code, e.ast)

	valid := covenantOK
	var feedback []Feedback
	if !covenantOK {
		feedback = append(feedback, violationFeedback(violations)...)
	}
	if total < 0.4 {
		valid = false
		feedback = append(feedback, Feedback{Dimension: "total", Suggestion: "overall coherency is too low to be useful as stored; consider simplifying or adding tests"})
	}

	log.Debug("evaluate: lang=%s total=%.3f sealed=%v", lang, total, covenantOK)

	return Result{
		Valid:          valid,
		CoherencyScore: types.CoherencyScore{Total: total, Breakdown: breakdown},
		Language:       lang,
		PatternType:    patternType,
		Complexity:     complexity,
		CovenantSealed: covenantOK,
		Violations:     violations,
		Feedback:       feedback,
	}, nil
}

func (e *Evaluator) correctness(ctx context.Context, lang types.Language, code, testCode string) float64 {
	if strings.TrimSpace(testCode) == "" {
		return 0.5
	}
	if e.sandbox == nil || lang != types.LanguageGo {
		return 0.5
	}
	res := e.sandbox.RunTest(ctx, code, testCode)
	if res.Err != nil {
		logging.Get(logging.CategorySandbox).Warn("test execution error: %v", res.Err)
	}
	if res.Passed {
		return 1.0
	}
	return 0.0
}

func (e *Evaluator) simplicity(lang types.Language, code string) float64 {
	lines := nonBlankLineCount(code)
	complexity := e.cyclomaticComplexity(lang, code)
	linesPenalty := min1(float64(lines)/200.0) * 0.5
	complexityPenalty := min1(float64(complexity)/20.0) * 0.5
	return floor0(1 - linesPenalty - complexityPenalty)
}

func (e *Evaluator) relevance(code, description string) float64 {
	if strings.TrimSpace(description) == "" {
		return 0.5
	}
	return cosineTokenBags(tokenize(code), tokenize(description))
}

func (e *Evaluator) clarity(code string) float64 {
	density := commentDensity(code)
	avgLen := averageIdentifierLength(code)
	// Identifiers shorter than ~3 chars drag clarity down; longer than ~6
	// is treated as fully sufficient. Bounded into [0,1].
	lengthScore := clamp01((avgLen - 2) / 4)
	return clamp01(0.6*min1(density*2) + 0.4*lengthScore)
}

func (e *Evaluator) nesting(lang types.Language, code string) float64 {
	depth := e.maxNestingDepth(lang, code)
	return floor0(1 - min1(float64(depth)/6.0))
}

func (e *Evaluator) cyclomaticComplexity(lang types.Language, code string) int {
	if m := e.ast.analyze(context.Background(), lang, code); m.ok {
		return m.CyclomaticComplexity
	}
	_, branches := braceDepth(code)
	return branches + 1
}

func (e *Evaluator) maxNestingDepth(lang types.Language, code string) int {
	if m := e.ast.analyze(context.Background(), lang, code); m.ok {
		return m.MaxNestingDepth
	}
	depth, _ := braceDepth(code)
	return depth
}

func classifyPatternType(code string) types.PatternType {
	lower := strings.ToLower(code)
	switch {
	case strings.Contains(lower, "validate") || strings.Contains(lower, "assert") || strings.Contains(lower, "isvalid"):
		return types.PatternTypeValidation
	case strings.Contains(lower, "struct") || strings.Contains(lower, "class ") || strings.Contains(lower, "interface ") || strings.Contains(lower, "stack") || strings.Contains(lower, "queue") || strings.Contains(lower, "linkedlist"):
		return types.PatternTypeDataStructure
	case strings.Contains(lower, "factory") || strings.Contains(lower, "singleton") || strings.Contains(lower, "observer") || strings.Contains(lower, "strategy"):
		return types.PatternTypeDesignPattern
	case strings.Contains(lower, "sort") || strings.Contains(lower, "search") || strings.Contains(lower, "algorithm") || strings.Contains(lower, "recursion") || strings.Contains(lower, "dp["):
		return types.PatternTypeAlgorithm
	case strings.Contains(lower, "func ") || strings.Contains(lower, "function ") || strings.Contains(lower, "def "):
		return types.PatternTypeUtility
	default:
		return types.PatternTypeOther
	}
}

func classifyComplexity(lang types.Language, code string, ast *astParser) types.Complexity {
	var branches int
	if m := ast.analyze(context.Background(), lang, code); m.ok {
		branches = m.CyclomaticComplexity
	} else {
		_, b := braceDepth(code)
		branches = b + 1
	}
	switch {
	case branches <= 3:
		return types.ComplexityLow
	case branches <= 10:
		return types.ComplexityMedium
	default:
		return types.ComplexityHigh
	}
}

func violationFeedback(violations []Violation) []Feedback {
	out := make([]Feedback, 0, len(violations))
	for _, v := range violations {
		out = append(out, Feedback{
			Dimension:  "security",
			Suggestion: fmt.Sprintf("%s (%s): %s", v.Rule, v.Severity, v.Message),
		})
	}
	return out
}

func min1(x float64) float64 {
	if x > 1 {
		return 1
	}
	return x
}

func floor0(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
