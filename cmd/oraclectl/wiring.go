package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/remembrance-oracle/oracle-core/internal/breaker"
	"github.com/remembrance-oracle/oracle-core/internal/coherency"
	"github.com/remembrance-oracle/oracle-core/internal/config"
	"github.com/remembrance-oracle/oracle-core/internal/embedding"
	"github.com/remembrance-oracle/oracle-core/internal/federation"
	"github.com/remembrance-oracle/oracle-core/internal/generator"
	"github.com/remembrance-oracle/oracle-core/internal/lifecycle"
	"github.com/remembrance-oracle/oracle-core/internal/reflector"
	"github.com/remembrance-oracle/oracle-core/internal/resolver"
	"github.com/remembrance-oracle/oracle-core/internal/sandbox"
	"github.com/remembrance-oracle/oracle-core/internal/search"
	"github.com/remembrance-oracle/oracle-core/internal/store"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

// embeddingConfigFrom adapts config.EmbeddingConfig (the on-disk shape,
// shared across every Embedding-consuming field) into embedding.Config
// (the constructor's shape), since the two packages intentionally don't
// share a type — config stays serializable, embedding stays free to grow
// fields no YAML document needs.
func embeddingConfigFrom(c config.EmbeddingConfig) embedding.Config {
	return embedding.Config{
		Provider:       c.Provider,
		OllamaEndpoint: c.OllamaEndpoint,
		OllamaModel:    c.OllamaModel,
		GenAIAPIKey:    c.GenAIAPIKey,
		GenAIModel:     c.GenAIModel,
		TaskType:       "RETRIEVAL_DOCUMENT",
	}
}

// buildGenerator adapts config.GeneratorConfig into a concrete Generator,
// wiring the genai-backed adapter through a shared breaker registry so a
// failing provider trips its circuit instead of hanging every resolver
// EVOLVE/heal call behind it.
func buildGenerator(c config.GeneratorConfig, breakers *breaker.Breakers) (generator.Generator, error) {
	switch c.Provider {
	case "genai":
		return generator.NewGenAIGenerator(c.APIKey, c.Model, breakers)
	case "static", "":
		return generator.NewStaticGenerator(), nil
	default:
		return nil, fmt.Errorf("oraclectl: unsupported generator provider %q", c.Provider)
	}
}

// coherencyEvaluatorAdapter makes coherency.Evaluator satisfy lifecycle's
// narrower Evaluator interface ({code, language} -> CoherencyScore), since
// the Lifecycle Engine only ever needs the score, never the full
// Result/Feedback/Violations the evaluator otherwise returns.
type coherencyEvaluatorAdapter struct {
	eval *coherency.Evaluator
}

func (a coherencyEvaluatorAdapter) Evaluate(ctx context.Context, code, language string) (types.CoherencyScore, error) {
	result, err := a.eval.Evaluate(ctx, coherency.Input{Code: code, Language: types.Language(language)})
	if err != nil {
		return types.CoherencyScore{}, err
	}
	return result.CoherencyScore, nil
}

// oracle bundles every wired component a command needs, built once per
// invocation from the loaded config.
type oracle struct {
	local     *store.Store
	personal  *store.Store
	community *store.Store

	embed     embedding.Engine
	evaluator *coherency.Evaluator
	searchEng *search.Engine
	resolve   *resolver.Resolver
	reflect   *reflector.Reflector
	gen       generator.Generator
	breakers  *breaker.Breakers
	cycle     *lifecycle.Engine
	node      *federation.Node
}

func (o *oracle) Close() {
	if o.evaluator != nil {
		o.evaluator.Close()
	}
	if o.local != nil {
		o.local.Close()
	}
	if o.personal != nil {
		o.personal.Close()
	}
	if o.community != nil {
		o.community.Close()
	}
}

// openOracle wires every in-scope component from cfg: stores, the
// embedding engine, the coherency evaluator, the search engine, the
// resolver, the reflector, the generator (behind a breaker registry), the
// lifecycle engine, and a federation node over the three stores.
func openOracle(c *config.Config) (*oracle, error) {
	root := c.Store.RootDir
	if root == "" {
		root = ".remembrance"
	}

	local, err := store.Open(filepath.Join(root, "local.db"), false)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	personal, err := store.Open(filepath.Join(root, "personal.db"), false)
	if err != nil {
		return nil, fmt.Errorf("open personal store: %w", err)
	}
	community, err := store.Open(filepath.Join(root, "community.db"), false)
	if err != nil {
		return nil, fmt.Errorf("open community store: %w", err)
	}

	embed, err := embedding.New(embeddingConfigFrom(c.Embedding))
	if err != nil {
		local.Close()
		personal.Close()
		community.Close()
		return nil, fmt.Errorf("build embedding engine: %w", err)
	}

	sb := sandbox.New()
	evaluator := coherency.New(c.Coherency.Weights, c.Covenant.Strict, sb)
	searchEng := search.New(local, embed)
	resolve := resolver.New(searchEng, c.Resolver)
	reflect := reflector.New()

	breakers := breaker.New(0, 0)
	gen, err := buildGenerator(c.Generator, breakers)
	if err != nil {
		evaluator.Close()
		local.Close()
		personal.Close()
		community.Close()
		return nil, err
	}

	refine := generator.AsRefineFunc(gen, "")
	cycle := lifecycle.New(local, refine, coherencyEvaluatorAdapter{eval: evaluator}, c.Lifecycle)

	node := federation.NewNode(local, personal, community, searchEng)
	node.SetRateLimits(federation.NewRateLimits(c.RateLimit))

	return &oracle{
		local: local, personal: personal, community: community,
		embed: embed, evaluator: evaluator, searchEng: searchEng,
		resolve: resolve, reflect: reflect, gen: gen, breakers: breakers,
		cycle: cycle, node: node,
	}, nil
}
