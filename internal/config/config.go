// Package config loads the engine configuration from flags, environment and an
// optional config file through viper.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dshills/devmatch-mcp/pkg/types"
)

// Configuration keys. Environment variables use the upper-case form of the key.
const (
	KeyEmbeddingProvider   = "embedding_provider"
	KeyEmbeddingModelName  = "embedding_model_name"
	KeyEmbeddingAPIKey     = "embedding_api_key"
	KeyEmbeddingBaseURL    = "embedding_base_url"
	KeyVectorDimension     = "vector_dimension"
	KeySimilarityThreshold = "similarity_threshold"
	KeyMatchingWeights     = "matching_weights"
	KeyEmbeddingCacheTTL   = "embedding_cache_ttl_seconds"
	KeyMatchCacheTTL       = "match_cache_ttl_seconds"
	KeyEmbeddingCacheSize  = "embedding_cache_size"
	KeyMatchCacheSize      = "match_cache_size"
	KeyDBPath              = "devmatch_db_path"
	KeyVectorBackend       = "vector_backend"
	KeyPostgresDSN         = "postgres_dsn"
	KeyModelTimeout        = "model_timeout_seconds"
	KeyGraphTimeout        = "graph_timeout_seconds"
	KeyEmbeddingWorkers    = "embedding_workers"
	KeyEmbeddingRateLimit  = "embedding_rate_limit"
	KeyScoringWorkers      = "scoring_workers"
	KeyLogJSON             = "log_json"
	KeyDebug               = "debug"
)

var allKeys = []string{
	KeyEmbeddingProvider, KeyEmbeddingModelName, KeyEmbeddingAPIKey, KeyEmbeddingBaseURL,
	KeyVectorDimension, KeySimilarityThreshold, KeyMatchingWeights, KeyEmbeddingCacheTTL,
	KeyMatchCacheTTL, KeyEmbeddingCacheSize, KeyMatchCacheSize, KeyDBPath, KeyVectorBackend,
	KeyPostgresDSN, KeyModelTimeout, KeyGraphTimeout, KeyEmbeddingWorkers, KeyEmbeddingRateLimit,
	KeyScoringWorkers, KeyLogJSON, KeyDebug,
}

// Vector backends
const (
	BackendSQLite   = "sqlite"
	BackendPGVector = "pgvector"
)

// Defaults
const (
	DefaultProvider            = "local"
	DefaultVectorDimension     = 384
	DefaultSimilarityThreshold = 0.3
	DefaultEmbeddingCacheTTL   = 86400
	DefaultMatchCacheTTL       = 3600
	DefaultEmbeddingCacheSize  = 10000
	DefaultMatchCacheSize      = 1000
	DefaultDBPath              = "~/.devmatch/devmatch.db"
	DefaultModelTimeout        = 30
	DefaultGraphTimeout        = 5
	DefaultEmbeddingWorkers    = 4
	DefaultScoringWorkers      = 8
)

// Config holds the complete engine configuration
type Config struct {
	EmbeddingProvider   string                `mapstructure:"embedding_provider"`
	EmbeddingModelName  string                `mapstructure:"embedding_model_name"`
	EmbeddingAPIKey     string                `mapstructure:"embedding_api_key"`
	EmbeddingBaseURL    string                `mapstructure:"embedding_base_url"`
	VectorDimension     int                   `mapstructure:"vector_dimension"`
	SimilarityThreshold float64               `mapstructure:"similarity_threshold"`
	MatchingWeights     types.MatchingWeights `mapstructure:"-"`
	EmbeddingCacheTTL   time.Duration         `mapstructure:"-"`
	MatchCacheTTL       time.Duration         `mapstructure:"-"`
	EmbeddingCacheSize  int                   `mapstructure:"embedding_cache_size"`
	MatchCacheSize      int                   `mapstructure:"match_cache_size"`
	DBPath              string                `mapstructure:"devmatch_db_path"`
	VectorBackend       string                `mapstructure:"vector_backend"`
	PostgresDSN         string                `mapstructure:"postgres_dsn"`
	ModelTimeout        time.Duration         `mapstructure:"-"`
	GraphTimeout        time.Duration         `mapstructure:"-"`
	EmbeddingWorkers    int                   `mapstructure:"embedding_workers"`
	EmbeddingRateLimit  float64               `mapstructure:"embedding_rate_limit"`
	ScoringWorkers      int                   `mapstructure:"scoring_workers"`
	LogJSON             bool                  `mapstructure:"log_json"`
	Debug               bool                  `mapstructure:"debug"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyEmbeddingProvider, DefaultProvider)
	v.SetDefault(KeyVectorDimension, DefaultVectorDimension)
	v.SetDefault(KeySimilarityThreshold, DefaultSimilarityThreshold)
	v.SetDefault(KeyEmbeddingCacheTTL, DefaultEmbeddingCacheTTL)
	v.SetDefault(KeyMatchCacheTTL, DefaultMatchCacheTTL)
	v.SetDefault(KeyEmbeddingCacheSize, DefaultEmbeddingCacheSize)
	v.SetDefault(KeyMatchCacheSize, DefaultMatchCacheSize)
	v.SetDefault(KeyDBPath, DefaultDBPath)
	v.SetDefault(KeyVectorBackend, BackendSQLite)
	v.SetDefault(KeyModelTimeout, DefaultModelTimeout)
	v.SetDefault(KeyGraphTimeout, DefaultGraphTimeout)
	v.SetDefault(KeyEmbeddingWorkers, DefaultEmbeddingWorkers)
	v.SetDefault(KeyScoringWorkers, DefaultScoringWorkers)
}

// Load reads and validates the configuration held by v. Environment variables
// named after the upper-cased keys (EMBEDDING_MODEL_NAME, VECTOR_DIMENSION, ...)
// override file values.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range allKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	weights, err := parseWeights(v.Get(KeyMatchingWeights))
	if err != nil {
		return nil, err
	}
	cfg.MatchingWeights = weights

	cfg.EmbeddingCacheTTL = time.Duration(v.GetInt(KeyEmbeddingCacheTTL)) * time.Second
	cfg.MatchCacheTTL = time.Duration(v.GetInt(KeyMatchCacheTTL)) * time.Second
	cfg.ModelTimeout = time.Duration(v.GetInt(KeyModelTimeout)) * time.Second
	cfg.GraphTimeout = time.Duration(v.GetInt(KeyGraphTimeout)) * time.Second
	cfg.EmbeddingProvider = strings.ToLower(strings.TrimSpace(cfg.EmbeddingProvider))
	cfg.VectorBackend = strings.ToLower(strings.TrimSpace(cfg.VectorBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and cross-field constraints
func (c *Config) Validate() error {
	if c.VectorDimension <= 0 {
		return fmt.Errorf("%s must be positive, got %d", KeyVectorDimension, c.VectorDimension)
	}
	if c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%s must be in [-1,1], got %v", KeySimilarityThreshold, c.SimilarityThreshold)
	}
	if err := c.MatchingWeights.Validate(); err != nil {
		return fmt.Errorf("%s: %w", KeyMatchingWeights, err)
	}
	if c.EmbeddingCacheTTL <= 0 || c.MatchCacheTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.ModelTimeout <= 0 || c.GraphTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.EmbeddingWorkers <= 0 {
		return fmt.Errorf("%s must be positive, got %d", KeyEmbeddingWorkers, c.EmbeddingWorkers)
	}
	if c.EmbeddingRateLimit < 0 {
		return fmt.Errorf("%s must be >= 0", KeyEmbeddingRateLimit)
	}
	switch c.VectorBackend {
	case BackendSQLite:
	case BackendPGVector:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%s is required when %s=%s", KeyPostgresDSN, KeyVectorBackend, BackendPGVector)
		}
	default:
		return fmt.Errorf("unknown %s %q", KeyVectorBackend, c.VectorBackend)
	}
	return nil
}

// parseWeights accepts the weights as a nested map (config file) or a JSON
// object string (MATCHING_WEIGHTS environment variable)
func parseWeights(raw interface{}) (types.MatchingWeights, error) {
	weights := types.DefaultMatchingWeights()
	switch val := raw.(type) {
	case nil:
		return weights, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return weights, nil
		}
		weights = types.MatchingWeights{}
		if err := json.Unmarshal([]byte(val), &weights); err != nil {
			return weights, fmt.Errorf("parse %s: %w", KeyMatchingWeights, err)
		}
	case map[string]interface{}:
		weights = types.MatchingWeights{
			Vector:       toFloat(val["vector_score"]),
			Graph:        toFloat(val["graph_score"]),
			Availability: toFloat(val["availability_score"]),
			Reputation:   toFloat(val["reputation_score"]),
		}
	default:
		return weights, fmt.Errorf("parse %s: unsupported type %T", KeyMatchingWeights, raw)
	}
	return weights, nil
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
