package generator

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/remembrance-oracle/oracle-core/internal/breaker"
)

// genaiGenerator implements Generator over google.golang.org/genai's
// text generation API, the same SDK internal/embedding's GenAIEngine
// uses for embeddings. Every call is guarded by a named circuit
// breaker so a flaky provider degrades the EVOLVE/GENERATE path rather
// than blocking it indefinitely.
type genaiGenerator struct {
	client   *genai.Client
	model    string
	breakers *breaker.Breakers
}

// NewGenAIGenerator builds a Generator backed by the GenAI SDK. apiKey is
// required; model defaults to gemini-flash-latest.
func NewGenAIGenerator(apiKey, model string, breakers *breaker.Breakers) (Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("generator: GenAI API key is required")
	}
	if model == "" {
		model = "gemini-flash-latest"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("generator: create GenAI client: %w", err)
	}
	if breakers == nil {
		breakers = breaker.New(0, 0)
	}
	return &genaiGenerator{client: client, model: model, breakers: breakers}, nil
}

func (g *genaiGenerator) call(ctx context.Context, op, prompt string) (string, error) {
	var text string
	err := g.breakers.Call(ctx, "generator."+op, func(ctx context.Context) error {
		contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
		if err != nil {
			return fmt.Errorf("generator: GenAI call failed: %w", err)
		}
		text = resp.Text()
		return nil
	})
	return text, err
}

func (g *genaiGenerator) GenerateVariant(ctx context.Context, req VariantRequest) (string, error) {
	prompt := fmt.Sprintf(
		"Write idiomatic %s code implementing: %s\nTags: %v\n\nReturn only the code, no explanation or markdown fences.",
		req.Language, req.Description, req.Tags,
	)
	if req.Reference != "" {
		prompt += fmt.Sprintf("\n\nStyle reference (do not copy verbatim, match idiom and structure):\n%s", req.Reference)
	}
	return g.call(ctx, "GenerateVariant", prompt)
}

func (g *genaiGenerator) Transpile(ctx context.Context, req TranspileRequest) (string, error) {
	prompt := fmt.Sprintf(
		"Translate the following %s code into idiomatic %s, preserving behavior exactly. Return only the translated code.\n\n%s",
		req.SourceLanguage, req.TargetLanguage, req.Code,
	)
	return g.call(ctx, "Transpile", prompt)
}

func (g *genaiGenerator) SynthesizeTest(ctx context.Context, req TestRequest) (string, error) {
	prompt := fmt.Sprintf(
		"Write a test in %s for the following code. The test must exercise real behavior, not trivially pass.\nDescription: %s\n\nCode:\n%s\n\nReturn only the test code.",
		req.Language, req.Description, req.Code,
	)
	return g.call(ctx, "SynthesizeTest", prompt)
}

func (g *genaiGenerator) Refine(ctx context.Context, req RefineRequest) (string, error) {
	prompt := fmt.Sprintf(
		"Improve the following %s code to resolve these issues: %v\nIteration: %d\n\nCode:\n%s\n\nReturn only the improved code.",
		req.Language, req.Issues, req.Iteration, req.Code,
	)
	return g.call(ctx, "Refine", prompt)
}
