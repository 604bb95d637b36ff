// Package types holds the closed record types shared by every Oracle
// component: Pattern, Candidate, DebugPattern, CoherencyScore, Voter and
// LifecycleCounters, plus the enumerations they reference.
package types

import "time"

// Language is a closed enumeration of source languages the Oracle reasons
// about. Unknown code still gets a value so scoring never has to special
// case a missing tag.
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguagePython     Language = "python"
	LanguageGo         Language = "go"
	LanguageRust       Language = "rust"
	LanguageJava       Language = "java"
	LanguageC          Language = "c"
	LanguageCPP        Language = "cpp"
	LanguageCSharp     Language = "csharp"
	LanguageUnknown    Language = "unknown"
)

// IsValid reports whether l is one of the closed enumeration values.
func (l Language) IsValid() bool {
	switch l {
	case LanguageJavaScript, LanguageTypeScript, LanguagePython, LanguageGo,
		LanguageRust, LanguageJava, LanguageC, LanguageCPP, LanguageCSharp, LanguageUnknown:
		return true
	}
	return false
}

// PatternType classifies the shape of a stored pattern.
type PatternType string

const (
	PatternTypeUtility       PatternType = "utility"
	PatternTypeAlgorithm     PatternType = "algorithm"
	PatternTypeDesignPattern PatternType = "design-pattern"
	PatternTypeValidation    PatternType = "validation"
	PatternTypeDataStructure PatternType = "data-structure"
	PatternTypeOther         PatternType = "other"
)

// IsValid reports whether t is one of the closed enumeration values.
func (t PatternType) IsValid() bool {
	switch t {
	case PatternTypeUtility, PatternTypeAlgorithm, PatternTypeDesignPattern,
		PatternTypeValidation, PatternTypeDataStructure, PatternTypeOther:
		return true
	}
	return false
}

// Complexity is a coarse, derived-from-code complexity bucket.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// GenerationMethod records how a Pattern came to exist.
type GenerationMethod string

const (
	GenerationSeed       GenerationMethod = "seed"
	GenerationSubmit     GenerationMethod = "submit"
	GenerationEvolve     GenerationMethod = "evolve"
	GenerationVariant    GenerationMethod = "variant"
	GenerationTranspile  GenerationMethod = "transpile"
	GenerationSynthesize GenerationMethod = "synthesize"
	GenerationHeal       GenerationMethod = "heal"
)

// IsValid reports whether m is one of the closed enumeration values.
func (m GenerationMethod) IsValid() bool {
	switch m {
	case GenerationSeed, GenerationSubmit, GenerationEvolve, GenerationVariant,
		GenerationTranspile, GenerationSynthesize, GenerationHeal:
		return true
	}
	return false
}

// CoherencyBreakdown holds the six weighted sub-scores, each in [0,1].
type CoherencyBreakdown struct {
	Correctness float64 `json:"correctness"`
	Simplicity  float64 `json:"simplicity"`
	Relevance   float64 `json:"relevance"`
	Clarity     float64 `json:"clarity"`
	Nesting     float64 `json:"nesting"`
	Security    float64 `json:"security"`
}

// CoherencyScore is the six-dimension model mandated by the evaluator gate
// (see DESIGN.md open-question 1 — the legacy three-field scoring shape is
// not implemented).
type CoherencyScore struct {
	Total     float64            `json:"total"`
	Breakdown CoherencyBreakdown `json:"breakdown"`
}

// Reliability is the usage/success/bug-report/healing signal vector.
type Reliability struct {
	UsageCount   int     `json:"usageCount"`
	SuccessCount int     `json:"successCount"`
	BugReports   int     `json:"bugReports"`
	HealingRate  float64 `json:"healingRate"`
}

// Votes is the vote aggregate carried on a Pattern.
type Votes struct {
	Upvotes   int     `json:"upvotes"`
	Downvotes int     `json:"downvotes"`
	Score     float64 `json:"score"`
}

// Pattern is the unit of long-term memory: a proven, stored piece of code.
type Pattern struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Code             string            `json:"code"`
	Language         Language          `json:"language"`
	Description      string            `json:"description"`
	Tags             []string          `json:"tags"`
	TestCode         string            `json:"testCode,omitempty"`
	PatternType      PatternType       `json:"patternType"`
	Complexity       Complexity        `json:"complexity"`
	CoherencyScore   CoherencyScore    `json:"coherencyScore"`
	Reliability      Reliability       `json:"reliability"`
	Votes            Votes             `json:"votes"`
	ParentPattern    string            `json:"parentPattern,omitempty"`
	GenerationMethod GenerationMethod  `json:"generationMethod"`
	CovenantSealed   bool              `json:"covenantSealed"`
	Author           string            `json:"author,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	LastUsedAt       time.Time         `json:"lastUsedAt"`
	MinHashSignature []uint64          `json:"minHashSignature,omitempty"`
	Extensions       map[string]string `json:"extensions,omitempty"`
}

// Candidate is a coherent but unproven Pattern awaiting test synthesis and
// promotion. It shares every field of Pattern (same shape, spec.md §3) but
// lives in a separate collection so invariant I6 — a Candidate never
// appears in proven search results — is enforced by construction rather
// than by a status flag that could be forgotten in a query.
type Candidate struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Code             string            `json:"code"`
	Language         Language          `json:"language"`
	Description      string            `json:"description"`
	Tags             []string          `json:"tags"`
	TestCode         string            `json:"testCode,omitempty"`
	PatternType      PatternType       `json:"patternType"`
	Complexity       Complexity        `json:"complexity"`
	CoherencyScore   CoherencyScore    `json:"coherencyScore"`
	Reliability      Reliability       `json:"reliability"`
	Votes            Votes             `json:"votes"`
	ParentPattern    string            `json:"parentPattern,omitempty"`
	GenerationMethod GenerationMethod  `json:"generationMethod"`
	CovenantSealed   bool              `json:"covenantSealed"`
	Author           string            `json:"author,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	LastUsedAt       time.Time         `json:"lastUsedAt"`
	MinHashSignature []uint64          `json:"minHashSignature,omitempty"`
	Extensions       map[string]string `json:"extensions,omitempty"`
}

// ToPattern converts a Candidate into a Pattern at promotion time. Callers
// own assigning a fresh CreatedAt if the promotion should reset history;
// by default promotion preserves the candidate's original timestamps.
func (c Candidate) ToPattern() Pattern {
	return Pattern{
		ID:               c.ID,
		Name:             c.Name,
		Code:             c.Code,
		Language:         c.Language,
		Description:      c.Description,
		Tags:             c.Tags,
		TestCode:         c.TestCode,
		PatternType:      c.PatternType,
		Complexity:       c.Complexity,
		CoherencyScore:   c.CoherencyScore,
		Reliability:      c.Reliability,
		Votes:            c.Votes,
		ParentPattern:    c.ParentPattern,
		GenerationMethod: c.GenerationMethod,
		CovenantSealed:   c.CovenantSealed,
		Author:           c.Author,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
		LastUsedAt:       c.LastUsedAt,
		MinHashSignature: c.MinHashSignature,
		Extensions:       c.Extensions,
	}
}

// DebugPattern is the error-to-fix memory analog of Pattern (spec.md §3:
// "out of scope except as an analogous store"). It shares I1-I7 with
// Pattern at the store layer but carries its own field set.
type DebugPattern struct {
	ID            string            `json:"id"`
	ErrorClass    string            `json:"errorClass"`
	ErrorCategory string            `json:"errorCategory"`
	FixCode       string            `json:"fixCode"`
	Language      Language          `json:"language"`
	TimesApplied  int               `json:"timesApplied"`
	TimesResolved int               `json:"timesResolved"`
	Confidence    float64           `json:"confidence"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	Extensions    map[string]string `json:"extensions,omitempty"`
}

// Voter is a per-identity reputation record (spec.md §3, §4.7).
type Voter struct {
	ID            string  `json:"id"`
	Reputation    float64 `json:"reputation"`
	Weight        float64 `json:"weight"`
	TotalVotes    int     `json:"totalVotes"`
	AccurateVotes int     `json:"accurateVotes"`
	Contributions int     `json:"contributions"`
}

// ReputationToWeight applies the fixed monotone mapping from spec.md §4.7:
// weight = clamp(log2(1+reputation)*0.6 + 0.4, 0.1, 5.0).
func ReputationToWeight(reputation float64) float64 {
	return clampWeight(log2(1+reputation)*0.6 + 0.4)
}

func clampWeight(w float64) float64 {
	if w < 0.1 {
		return 0.1
	}
	if w > 5.0 {
		return 5.0
	}
	return w
}

// LifecycleCounters tracks the event counters that trigger background
// cycles (spec.md §3, §4.6). All fields are non-negative.
type LifecycleCounters struct {
	Feedbacks     int64 `json:"feedbacks"`
	Submissions   int64 `json:"submissions"`
	Registrations int64 `json:"registrations"`
	Heals         int64 `json:"heals"`
	Rejections    int64 `json:"rejections"`
	Cycles        int64 `json:"cycles"`
}
