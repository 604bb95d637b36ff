package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticGeneratorImplementsGenerator(t *testing.T) {
	var g Generator = NewStaticGenerator()
	ctx := context.Background()

	variant, err := g.GenerateVariant(ctx, VariantRequest{Description: "retry with backoff", Language: "go"})
	require.NoError(t, err)
	require.Contains(t, variant, "retry with backoff")

	transpiled, err := g.Transpile(ctx, TranspileRequest{Code: "def f(): pass", SourceLanguage: "python", TargetLanguage: "go"})
	require.NoError(t, err)
	require.Contains(t, transpiled, "def f(): pass")

	test, err := g.SynthesizeTest(ctx, TestRequest{Code: "func F() {}", Language: "go", Description: "F does nothing"})
	require.NoError(t, err)
	require.Contains(t, test, "F does nothing")

	refined, err := g.Refine(ctx, RefineRequest{Code: "func F() {}", Issues: []string{"no error handling"}, Iteration: 1})
	require.NoError(t, err)
	require.Contains(t, refined, "func F() {}")
	require.Contains(t, refined, "no error handling")
}

func TestAsRefineFuncAdaptsGenerator(t *testing.T) {
	g := NewStaticGenerator()
	refineFn := AsRefineFunc(g, "go")
	out, err := refineFn(context.Background(), "func F() {}", []string{"issue"}, 0)
	require.NoError(t, err)
	require.Contains(t, out, "func F() {}")
}
