package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/remembrance-oracle/oracle-core/internal/config"
	"github.com/remembrance-oracle/oracle-core/internal/generator"
	"github.com/remembrance-oracle/oracle-core/internal/lifecycle"
)

func TestEmbeddingConfigFromMapsFields(t *testing.T) {
	src := config.EmbeddingConfig{
		Provider: "genai", GenAIAPIKey: "key", GenAIModel: "model-x",
		OllamaEndpoint: "http://localhost:11434", OllamaModel: "embeddinggemma",
	}
	got := embeddingConfigFrom(src)
	require.Equal(t, "genai", got.Provider)
	require.Equal(t, "key", got.GenAIAPIKey)
	require.Equal(t, "model-x", got.GenAIModel)
	require.Equal(t, "http://localhost:11434", got.OllamaEndpoint)
	require.Equal(t, "embeddinggemma", got.OllamaModel)
	require.NotEmpty(t, got.TaskType)
}

func TestBuildGeneratorDefaultsToStatic(t *testing.T) {
	gen, err := buildGenerator(config.GeneratorConfig{}, nil)
	require.NoError(t, err)
	require.IsType(t, generator.NewStaticGenerator(), gen)
}

func TestBuildGeneratorRejectsUnknownProvider(t *testing.T) {
	_, err := buildGenerator(config.GeneratorConfig{Provider: "unknown"}, nil)
	require.Error(t, err)
}

func TestCoherencyEvaluatorAdapterSatisfiesLifecycleEvaluator(t *testing.T) {
	var _ lifecycle.Evaluator = coherencyEvaluatorAdapter{}
}
