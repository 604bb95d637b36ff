// Package config loads and validates the Oracle's YAML configuration, with
// environment-variable overrides layered on top, matching the teacher's
// DefaultConfig/Load/applyEnvOverrides pattern.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/remembrance-oracle/oracle-core/internal/logging"
)

// Config holds all Oracle configuration (spec.md §6 "Environment
// configuration").
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Seed       SeedConfig       `yaml:"seed"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Coherency  CoherencyConfig  `yaml:"coherency"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Reflect    ReflectConfig    `yaml:"reflect"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle"`
	Covenant   CovenantConfig   `yaml:"covenant"`
	Federation FederationConfig `yaml:"federation"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StoreConfig controls persistence location.
type StoreConfig struct {
	RootDir string `yaml:"root_dir"`
}

// SeedConfig controls startup seeding of example patterns.
type SeedConfig struct {
	Auto bool `yaml:"auto"`
}

// AuthConfig gates federation endpoints.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RateLimitConfig bounds federation request rates (spec.md §5).
type RateLimitConfig struct {
	WindowSeconds    int `yaml:"window_seconds"`
	MaxRequests      int `yaml:"max_requests"`
	SubmissionPerMin int `yaml:"submission_per_min"`
	DeletionPerMin   int `yaml:"deletion_per_min"`
	ReadPerMin       int `yaml:"read_per_min"`
}

// CoherencyConfig holds the six dimension weights; they must sum to 1.0.
type CoherencyConfig struct {
	Weights CoherencyWeights `yaml:"weights"`
}

// CoherencyWeights is the weighting vector from spec.md §4.1.
type CoherencyWeights struct {
	Correctness float64 `yaml:"correctness"`
	Simplicity  float64 `yaml:"simplicity"`
	Relevance   float64 `yaml:"relevance"`
	Clarity     float64 `yaml:"clarity"`
	Nesting     float64 `yaml:"nesting"`
	Security    float64 `yaml:"security"`
}

// ResolverConfig holds the PULL/EVOLVE decision thresholds.
type ResolverConfig struct {
	TauPull      float64 `yaml:"tau_pull"`
	TauEvolve    float64 `yaml:"tau_evolve"`
	MinCoherency float64 `yaml:"min_coherency"`
	FloorProven  float64 `yaml:"floor_proven"`
}

// ReflectConfig holds SERF loop defaults.
type ReflectConfig struct {
	MaxLoops int     `yaml:"max_loops"`
	Target   float64 `yaml:"target"`
}

// LifecycleConfig holds trigger thresholds and behavior flags.
type LifecycleConfig struct {
	FeedbackTrigger     int  `yaml:"feedback_trigger"`
	SubmissionTrigger   int  `yaml:"submission_trigger"`
	RegistrationTrigger int  `yaml:"registration_trigger"`
	MaxHealsPerRun      int  `yaml:"max_heals_per_run"`
	AutoRetag           bool `yaml:"auto_retag"`
	AutoSync            bool `yaml:"auto_sync"`
	AutoClean           bool `yaml:"auto_clean"`
	PersistCounters     bool `yaml:"persist_counters"`
	QueueOnBusy         bool `yaml:"queue_on_busy"`
}

// CovenantConfig toggles strict mode (high violations also block).
type CovenantConfig struct {
	Strict bool `yaml:"strict"`
}

// FederationConfig holds remote call defaults.
type FederationConfig struct {
	RemoteTimeoutMs int `yaml:"remote_timeout_ms"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // "ollama" | "genai"
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	RequireVector  bool   `yaml:"require_vector"`
}

// GeneratorConfig selects and configures the Generator capability adapter.
type GeneratorConfig struct {
	Provider   string `yaml:"provider"` // "genai" | "static"
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// LoggingConfig controls the category file logger.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"`
	JSON      bool   `yaml:"json_format"`
}

// DefaultConfig returns the Oracle's default configuration, matching the
// constants named throughout spec.md §4 and §6.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{RootDir: ".remembrance"},
		Seed:  SeedConfig{Auto: true},
		Auth:  AuthConfig{Enabled: true},
		RateLimit: RateLimitConfig{
			WindowSeconds:    60,
			MaxRequests:      100,
			SubmissionPerMin: 5,
			DeletionPerMin:   3,
			ReadPerMin:       100,
		},
		Coherency: CoherencyConfig{Weights: CoherencyWeights{
			Correctness: 0.30,
			Simplicity:  0.15,
			Relevance:   0.15,
			Clarity:     0.15,
			Nesting:     0.10,
			Security:    0.15,
		}},
		Resolver: ResolverConfig{
			TauPull:      0.85,
			TauEvolve:    0.55,
			MinCoherency: 0.55,
			FloorProven:  0.6,
		},
		Reflect: ReflectConfig{MaxLoops: 3, Target: 0.8},
		Lifecycle: LifecycleConfig{
			FeedbackTrigger:     10,
			SubmissionTrigger:   5,
			RegistrationTrigger: 25,
			MaxHealsPerRun:      20,
			AutoRetag:           true,
			AutoSync:            false,
			AutoClean:           true,
			PersistCounters:     true,
			QueueOnBusy:         false,
		},
		Covenant: CovenantConfig{Strict: false},
		Federation: FederationConfig{
			RemoteTimeoutMs: 30000,
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
		},
		Generator: GeneratorConfig{
			Provider:   "static",
			TimeoutSec: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file at path, falling back to defaults when the
// file does not exist, then layers environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML to path.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnvOverrides() {
	if root := os.Getenv("ORACLE_STORE_ROOT"); root != "" {
		c.Store.RootDir = root
	}
	if key := os.Getenv("ORACLE_GENAI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
		c.Generator.APIKey = key
		if c.Embedding.Provider == "" {
			c.Embedding.Provider = "genai"
		}
	}
	if endpoint := os.Getenv("ORACLE_OLLAMA_ENDPOINT"); endpoint != "" {
		c.Embedding.OllamaEndpoint = endpoint
	}
	if model := os.Getenv("ORACLE_OLLAMA_MODEL"); model != "" {
		c.Embedding.OllamaModel = model
	}
	if v := os.Getenv("ORACLE_COVENANT_STRICT"); v == "true" {
		c.Covenant.Strict = true
	}
	if v := os.Getenv("ORACLE_DEBUG"); v == "true" {
		c.Logging.DebugMode = true
	}
}

// WeightSum returns the sum of the six coherency weights, used by Validate
// to enforce the "weights must sum to 1.0" requirement of spec.md §4.1.
func (w CoherencyWeights) WeightSum() float64 {
	return w.Correctness + w.Simplicity + w.Relevance + w.Clarity + w.Nesting + w.Security
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	if sum := c.Coherency.Weights.WeightSum(); sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("config: coherency weights must sum to 1.0, got %.4f", sum)
	}
	if c.Resolver.TauEvolve > c.Resolver.TauPull {
		return fmt.Errorf("config: resolver.tau_evolve must be <= resolver.tau_pull")
	}
	switch c.Embedding.Provider {
	case "ollama", "genai", "":
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Generator.Provider {
	case "genai", "static", "":
	default:
		return fmt.Errorf("config: unknown generator provider %q", c.Generator.Provider)
	}
	return nil
}

// RemoteTimeout returns the federation remote call timeout as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	if c.Federation.RemoteTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Federation.RemoteTimeoutMs) * time.Millisecond
}

// InitLogging wires the loaded configuration into the logging package.
func (c *Config) InitLogging() error {
	return logging.Initialize(c.Store.RootDir, c.Logging.DebugMode, c.Logging.Level, c.Logging.JSON)
}
