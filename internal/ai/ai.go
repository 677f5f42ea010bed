// Package ai builds the optional semantic-similarity tier from configuration.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/prefcanon/internal/ai/gemini"
	"github.com/spigell/prefcanon/internal/logger"
	"github.com/spigell/prefcanon/internal/secrets"
	"github.com/spigell/prefcanon/internal/similarity"
)

const (
	ModeEmbedding = "embedding"
	ModeSelector  = "selector"

	DefaultThreshold = 0.85
	DefaultTimeout   = 5 * time.Second

	// GeminiKeyEnv is consulted when no key is configured explicitly.
	GeminiKeyEnv = "GEMINI_API_KEY"
)

type Config struct {
	Enabled   bool          `mapstructure:"enabled"`
	Provider  string        `mapstructure:"provider"`
	Mode      string        `mapstructure:"mode"`
	Threshold float64       `mapstructure:"threshold"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheSize int           `mapstructure:"cache-size"`
	Gemini    GeminiConfig  `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey         string `mapstructure:"api-key"`
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
	MaxRetries     int    `mapstructure:"max-retries"`
	MaxLogLength   int    `mapstructure:"max-log-length"`
}

// New builds the configured semantic tier. It returns nil when ai is disabled
// or no API key is configured; the engine then runs in string-only mode.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*similarity.Tier, error) {
	log = logger.OrNop(log)

	if !cfg.Enabled {
		return nil, nil
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = gemini.Provider
	}
	if provider != gemini.Provider {
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.Gemini.APIKeyFile,
		Value: cfg.Gemini.APIKey,
		Env:   GeminiKeyEnv,
	})
	if errors.Is(err, secrets.ErrNotConfigured) {
		log.Warn("ai is enabled but no api key is configured, using string matching only",
			logger.CommonFields(provider, cfg.Gemini.Model)...)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:         apiKey,
		Model:          cfg.Gemini.Model,
		EmbeddingModel: cfg.Gemini.EmbeddingModel,
		MaxRetries:     cfg.Gemini.MaxRetries,
		MaxLogLength:   cfg.Gemini.MaxLogLength,
	}, log)
	if err != nil {
		return nil, err
	}

	return newTier(cfg, client, log)
}

type geminiClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Generate(ctx context.Context, system, prompt string) (string, error)
}

func newTier(cfg Config, client geminiClient, log *zap.Logger) (*similarity.Tier, error) {
	threshold := cfg.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}

	var strategy similarity.Strategy
	switch mode := strings.ToLower(strings.TrimSpace(cfg.Mode)); mode {
	case "", ModeEmbedding:
		s, err := gemini.NewEmbeddingStrategy(client, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		strategy = s
	case ModeSelector:
		strategy = gemini.NewSelectorStrategy(client, log)
	default:
		return nil, fmt.Errorf("unsupported ai mode %q", cfg.Mode)
	}

	log.Info("semantic matching enabled",
		zap.String("strategy", strategy.Name()),
		zap.Float64("threshold", threshold),
	)

	return &similarity.Tier{Strategy: strategy, Threshold: threshold}, nil
}

// TierTimeout bounds each semantic call, defaulting when unset.
func (c Config) TierTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}
