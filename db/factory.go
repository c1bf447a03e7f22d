package db

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"health-kb/config"
	"health-kb/embedding"
)

/*
OpenFromConfig builds the persistence slot and provider chain described by
cfg and opens a hydrated store. The returned close function releases the
backend.
*/
func OpenFromConfig(ctx context.Context, cfg *config.Config, logger log.FieldLogger) (*Store, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	persistence, closeFn, err := newPersistence(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	provider, err := NewProvider(ctx, cfg.Embedding, logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	store, err := Open(ctx,
		WithDimensions(cfg.Embedding.Dimensions),
		WithProvider(provider),
		WithPersistence(persistence),
		WithEmbedTimeout(cfg.Embedding.Timeout()),
		WithLogger(logger.WithField("component", "knowledge-store")),
	)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

func newPersistence(ctx context.Context, cfg config.StorageConfig) (Persistence, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemoryPersistence(), noop, nil
	case config.BackendFile:
		return NewFilePersistence(cfg.DataPath, cfg.Slot), noop, nil
	case config.BackendSQLite:
		path := cfg.DataPath
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "knowledge.db")
		}
		p, err := NewSQLitePersistence(ctx, path, cfg.Slot)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisPersistence(client, cfg.Slot), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}

/*
NewProvider returns nil for the pseudo provider, which makes the store use
the deterministic embedding directly. Gemini is wrapped with retry, rate
limiting, a circuit breaker and an optional cache.
*/
func NewProvider(ctx context.Context, cfg config.EmbeddingConfig, logger log.FieldLogger) (embedding.Provider, error) {
	switch cfg.Provider {
	case config.ProviderPseudo:
		return nil, nil
	case config.ProviderGemini:
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}

	gemini, err := embedding.NewGemini(ctx, embedding.GeminiConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
	})
	if err != nil {
		return nil, err
	}

	var provider embedding.Provider = embedding.NewResilient(gemini, embedding.ResilientConfig{
		Name:              "gemini",
		MaxRetries:        uint64(cfg.MaxRetries),
		RequestsPerSecond: cfg.RequestsPerSecond,
		BreakerFailures:   uint32(cfg.BreakerFailures),
		BreakerCooldown:   cfg.BreakerCooldown(),
		Logger:            logger,
	})
	if cfg.CacheSize > 0 {
		cached, err := embedding.NewCached(provider, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		provider = cached
	}
	return provider, nil
}
