// Package generator defines the Generator capability: the fixed,
// injected contract the Resolver's EVOLVE branch and the Reflector's
// refine step use to produce new or transformed code. Per spec.md's
// explicit non-goal ("LLM-provider HTTP glue... is an injected
// capability with a fixed contract"), this package owns only the
// contract and a thin SDK-backed adapter — no prompt-formatting HTTP
// client is reimplemented here.
package generator

import "context"

// VariantRequest asks for a new implementation of a described behavior.
type VariantRequest struct {
	Description string
	Language    string
	Tags        []string
	Reference   string // an existing pattern's code to use as a style reference, may be empty
}

// TranspileRequest asks for a translation of code into a target language.
type TranspileRequest struct {
	Code           string
	SourceLanguage string
	TargetLanguage string
}

// TestRequest asks for a test to be synthesized against code.
type TestRequest struct {
	Code        string
	Language    string
	Description string
}

// RefineRequest asks for code to be improved against a list of issues,
// matching the shape Reflector.RefineFunc needs as its adapter input.
type RefineRequest struct {
	Code      string
	Language  string
	Issues    []string
	Iteration int
}

// Generator is the capability contract consumed by the Resolver (EVOLVE/
// GENERATE), the Reflector (refine), and Candidate creation.
type Generator interface {
	GenerateVariant(ctx context.Context, req VariantRequest) (string, error)
	Transpile(ctx context.Context, req TranspileRequest) (string, error)
	SynthesizeTest(ctx context.Context, req TestRequest) (string, error)
	Refine(ctx context.Context, req RefineRequest) (string, error)
}

// AsRefineFunc adapts a Generator into a reflector.RefineFunc-shaped
// closure for a fixed language, so callers don't hand-wire the request
// struct at every Reflect call site.
func AsRefineFunc(g Generator, language string) func(ctx context.Context, code string, issues []string, iteration int) (string, error) {
	return func(ctx context.Context, code string, issues []string, iteration int) (string, error) {
		return g.Refine(ctx, RefineRequest{Code: code, Language: language, Issues: issues, Iteration: iteration})
	}
}
