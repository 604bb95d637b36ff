package generator

import (
	"context"
	"fmt"
)

// staticGenerator is a deterministic Generator test double: it never
// calls a network, and each method returns a small, clearly-synthetic
// transformation of its input so tests can assert on shape without
// depending on LLM output.
type staticGenerator struct{}

// NewStaticGenerator returns a Generator implementation suitable for
// tests that must not hit a network.
func NewStaticGenerator() Generator { return staticGenerator{} }

func (staticGenerator) GenerateVariant(ctx context.Context, req VariantRequest) (string, error) {
	return fmt.Sprintf("// generated variant: %s (%s)\nfunc Generated() {}\n", req.Description, req.Language), nil
}

func (staticGenerator) Transpile(ctx context.Context, req TranspileRequest) (string, error) {
	return fmt.Sprintf("// transpiled from %s to %s\n%s", req.SourceLanguage, req.TargetLanguage, req.Code), nil
}

func (staticGenerator) SynthesizeTest(ctx context.Context, req TestRequest) (string, error) {
	return fmt.Sprintf("// synthesized test for: %s\nfunc TestGenerated(t *testing.T) {}\n", req.Description), nil
}

func (staticGenerator) Refine(ctx context.Context, req RefineRequest) (string, error) {
	return req.Code + fmt.Sprintf("\n// refined at iteration %d for issues: %v\n", req.Iteration, req.Issues), nil
}
