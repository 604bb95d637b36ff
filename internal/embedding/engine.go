// Package embedding generates the vector representations that back the
// Search Engine's semantic layer, behind a provider-agnostic interface so
// the Oracle can run fully local (Ollama) or against a cloud provider
// (GenAI) without either backend leaking into caller code.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/remembrance-oracle/oracle-core/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// HealthChecker is implemented by engines that can verify their backend
// is reachable before a batch operation is attempted.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config selects and configures one Engine backend.
type Config struct {
	Provider       string
	OllamaEndpoint string
	OllamaModel    string
	GenAIAPIKey    string
	GenAIModel     string
	TaskType       string
}

// New builds the Engine named by cfg.Provider.
func New(cfg Config) (Engine, error) {
	timer := logging.StartTimer("embedding.New")
	defer timer.Stop()

	switch cfg.Provider {
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		return nil, fmt.Errorf("embedding: unsupported provider %q (use \"ollama\" or \"genai\")", cfg.Provider)
	}
}

// CosineSimilarity returns the cosine similarity of a and b, in [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding: vector dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, aMag, bMag float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}

// SimilarityResult is one scored entry from FindTopK.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK returns the k most cosine-similar vectors to query, descending.
// Used as the brute-force fallback when the sqlite-vec extension isn't
// available for ANN search.
func FindTopK(query []float32, corpus [][]float32, k int) ([]SimilarityResult, error) {
	if k <= 0 {
		k = 10
	}
	results := make([]SimilarityResult, 0, len(corpus))
	for i, v := range corpus {
		sim, err := CosineSimilarity(query, v)
		if err != nil {
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: sim})
	}
	for i := 0; i < len(results) && i < k; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
