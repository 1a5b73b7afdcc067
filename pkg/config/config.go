// Package config loads and validates claude-memory-go's settings. It
// mirrors the teacher's configuration style — typed structs, functional
// defaults, explicit validation of enumerated fields — scoped down to this
// service's own domain (no agent/team/tool schema).
package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/goccy/go-yaml"
)

// MemoryMode selects how conversations are turned into retrievable memory.
type MemoryMode string

const (
	MemoryModeEmbeddingOnly          MemoryMode = "embedding-only"
	MemoryModeIntelligentCompression MemoryMode = "intelligent-compression"
	MemoryModeHybrid                 MemoryMode = "hybrid"
)

// DistanceMetric selects the VectorStore similarity function.
type DistanceMetric string

const (
	DistanceCosine   DistanceMetric = "Cosine"
	DistanceDot      DistanceMetric = "Dot"
	DistanceEuclid   DistanceMetric = "Euclid"
	DefaultVectorDim                = 4096
	DefaultCollection               = "claude_memory_vectors_v14"
)

// RetrievalStrategy selects how SemanticRetriever.Retrieve combines paths.
type RetrievalStrategy string

const (
	StrategyHybrid      RetrievalStrategy = "hybrid"
	StrategySemanticOnly RetrievalStrategy = "semantic_only"
	StrategyKeywordOnly RetrievalStrategy = "keyword_only"
)

// ServiceConfig is the root configuration object.
type ServiceConfig struct {
	ProjectID  string           `yaml:"project_id"`
	APIURL     string           `yaml:"api_url"`
	HTTP       HTTPConfig       `yaml:"http"`
	Relational RelationalConfig `yaml:"relational"`
	Vector     VectorConfig     `yaml:"vector"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Models     ModelSelectionConfig      `yaml:"models"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Budgets    BudgetConfig     `yaml:"budgets"`
	Memory     MemoryConfig     `yaml:"memory"`
	Logging    LoggingConfig    `yaml:"logging"`
	PromptTemplatePath string  `yaml:"fusion_prompt_template_path"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type RelationalConfig struct {
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxOverflow     int           `yaml:"max_overflow"`
	CheckoutTimeout time.Duration `yaml:"checkout_timeout"`
}

type VectorConfig struct {
	Path           string         `yaml:"path"`
	Collection     string         `yaml:"collection"`
	Dimension      int            `yaml:"dimension"`
	DistanceMetric DistanceMetric `yaml:"distance_metric"`
}

// ProviderConfig describes one ModelGateway provider (gemini, openrouter,
// siliconflow — the closed tagged variant from spec §9).
type ProviderConfig struct {
	Type          string   `yaml:"type"`
	APIKeyEnv     string   `yaml:"api_key_env"`
	BaseURL       string   `yaml:"base_url"`
	Models        []string `yaml:"models"`
	Priority      int      `yaml:"priority"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// ModelSelectionConfig names the logical model roles used across the
// pipeline (§4.8 light/heavy tiers, §4.9 rerank model, §4.10 fuser model).
type ModelSelectionConfig struct {
	LightTier        string `yaml:"light_tier"`
	LightTierSmall   string `yaml:"light_tier_small"`
	HeavyTier        string `yaml:"heavy_tier"`
	RerankModel      string `yaml:"rerank_model"`
	FuserModel       string `yaml:"fuser_model"`
	EmbeddingModel   string `yaml:"embedding_model"`
	CompressionModel string `yaml:"compression_model"`
}

type RetrievalConfig struct {
	DefaultStrategy    RetrievalStrategy `yaml:"default_strategy"`
	TopK               int               `yaml:"top_k"`
	RerankTopK         int               `yaml:"rerank_top_k"`
	MinScore           float64           `yaml:"min_score"`
	EnableRerank       bool              `yaml:"enable_rerank"`
	SearchCacheSize    int               `yaml:"search_cache_size"`
	EmbeddingCacheSize int               `yaml:"embedding_cache_size"`
	AutoFuseKeywords   []string          `yaml:"auto_fuse_keywords"`
}

type BudgetConfig struct {
	DailyUSD       float64 `yaml:"daily_usd"`
	EmbeddingUSD   float64 `yaml:"embedding_usd"`
	FusionUSD      float64 `yaml:"fusion_usd"`
	CompressionUSD float64 `yaml:"compression_usd"`
}

type MemoryConfig struct {
	Mode                MemoryMode `yaml:"mode"`
	DefaultMaxTokens    int        `yaml:"default_max_tokens"`
	QualityThreshold    float64    `yaml:"quality_threshold"`
	CompressionBatchSize int       `yaml:"compression_batch_size"`
	ModelConcurrency    int        `yaml:"model_concurrency"`
}

type LoggingConfig struct {
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Level      string `yaml:"level"`
}

// Default returns a ServiceConfig with every field set to the spec's
// documented defaults.
func Default() *ServiceConfig {
	return &ServiceConfig{
		ProjectID: "default",
		HTTP:      HTTPConfig{Addr: ":8088"},
		Relational: RelationalConfig{
			Path:            "claude_memory.db",
			MaxOpenConns:    10,
			MaxOverflow:     20,
			CheckoutTimeout: 30 * time.Second,
		},
		Vector: VectorConfig{
			Path:           "claude_memory.db",
			Collection:     DefaultCollection,
			Dimension:      DefaultVectorDim,
			DistanceMetric: DistanceCosine,
		},
		Providers: map[string]ProviderConfig{},
		Retrieval: RetrievalConfig{
			DefaultStrategy:    StrategyHybrid,
			TopK:               20,
			RerankTopK:         5,
			MinScore:           0.6,
			EnableRerank:       true,
			SearchCacheSize:    500,
			EmbeddingCacheSize: 1000,
			AutoFuseKeywords:   []string{"summarize", "review", "recap", "/memory review"},
		},
		Budgets: BudgetConfig{
			DailyUSD:       10,
			EmbeddingUSD:   3,
			FusionUSD:      3,
			CompressionUSD: 4,
		},
		Memory: MemoryConfig{
			Mode:                 MemoryModeHybrid,
			DefaultMaxTokens:     2000,
			QualityThreshold:     0.7,
			CompressionBatchSize: 50,
			ModelConcurrency:     10,
		},
		Logging: LoggingConfig{
			FilePath:   "claude-memory-go.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Level:      "info",
		},
	}
}

// Load reads a YAML config file (if present) over the defaults, applies
// environment overrides, and validates the result.
func Load(path string) (*ServiceConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides applies the environment variables recognized by §6:
// CLAUDE_MEMORY_API_URL, CLAUDE_MEMORY_PROJECT_ID, DEFAULT_PROJECT_ID.
// Unrecognized env vars are tolerated (left untouched).
func ApplyEnvOverrides(cfg *ServiceConfig) {
	if v := os.Getenv("CLAUDE_MEMORY_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("CLAUDE_MEMORY_PROJECT_ID"); v != "" {
		cfg.ProjectID = v
	} else if v := os.Getenv("DEFAULT_PROJECT_ID"); v != "" {
		cfg.ProjectID = v
	}
}

var validMemoryModes = []MemoryMode{MemoryModeEmbeddingOnly, MemoryModeIntelligentCompression, MemoryModeHybrid}
var validDistanceMetrics = []DistanceMetric{DistanceCosine, DistanceDot, DistanceEuclid}
var validStrategies = []RetrievalStrategy{StrategyHybrid, StrategySemanticOnly, StrategyKeywordOnly}

// Validate rejects unrecognized enum values; per spec §9 there is no
// stringly-typed config at runtime.
func (c *ServiceConfig) Validate() error {
	if !slices.Contains(validMemoryModes, c.Memory.Mode) {
		return fmt.Errorf("invalid memory.mode %q", c.Memory.Mode)
	}
	if !slices.Contains(validDistanceMetrics, c.Vector.DistanceMetric) {
		return fmt.Errorf("invalid vector.distance_metric %q", c.Vector.DistanceMetric)
	}
	if !slices.Contains(validStrategies, c.Retrieval.DefaultStrategy) {
		return fmt.Errorf("invalid retrieval.default_strategy %q", c.Retrieval.DefaultStrategy)
	}
	if c.Vector.Dimension <= 0 {
		return fmt.Errorf("vector.dimension must be positive, got %d", c.Vector.Dimension)
	}
	if c.ProjectID == "" {
		return fmt.Errorf("project_id must not be empty")
	}
	return nil
}
