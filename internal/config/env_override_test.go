package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("ORACLE_STORE_ROOT overrides default", func(t *testing.T) {
		t.Setenv("ORACLE_STORE_ROOT", "/tmp/oracle-data")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "/tmp/oracle-data", cfg.Store.RootDir)
	})

	t.Run("ORACLE_GENAI_API_KEY switches embedding provider from empty", func(t *testing.T) {
		t.Setenv("ORACLE_GENAI_API_KEY", "secret-key")
		cfg := &Config{}
		cfg.applyEnvOverrides()
		assert.Equal(t, "secret-key", cfg.Embedding.GenAIAPIKey)
		assert.Equal(t, "genai", cfg.Embedding.Provider)
		assert.Equal(t, "secret-key", cfg.Generator.APIKey)
	})

	t.Run("ORACLE_COVENANT_STRICT enables strict mode", func(t *testing.T) {
		t.Setenv("ORACLE_COVENANT_STRICT", "true")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.True(t, cfg.Covenant.Strict)
	})
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Coherency.Weights.Security = 0.99
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolver.TauEvolve = 0.9
	cfg.Resolver.TauPull = 0.5
	assert.Error(t, cfg.Validate())
}
