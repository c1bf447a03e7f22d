package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-kb/config"
	"health-kb/embedding"
)

func TestOpenFromConfigBackends(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	backends := map[config.Backend]func(c *config.Config){
		config.BackendMemory: func(c *config.Config) {},
		config.BackendFile:   func(c *config.Config) { c.Storage.DataPath = t.TempDir() },
		config.BackendSQLite: func(c *config.Config) { c.Storage.DataPath = filepath.Join(t.TempDir(), "kb.db") },
		config.BackendRedis:  func(c *config.Config) { c.Storage.RedisAddr = mr.Addr() },
	}

	for backend, setup := range backends {
		t.Run(string(backend), func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Storage.Backend = backend
			cfg.Embedding.Dimensions = 32
			setup(cfg)

			store, closeFn, err := OpenFromConfig(ctx, cfg, quietLogger())
			require.NoError(t, err)
			id, err := store.Add(ctx, "lipid panel", Metadata{"source": String(string(backend))})
			require.NoError(t, err)
			require.NoError(t, closeFn())

			if backend == config.BackendMemory {
				return
			}

			reopened, closeFn, err := OpenFromConfig(ctx, cfg, quietLogger())
			require.NoError(t, err)
			defer closeFn()
			rec, err := reopened.Get(id)
			require.NoError(t, err)
			assert.Equal(t, "lipid panel", rec.Text)
			assert.Len(t, rec.Vector, 32)
		})
	}
}

func TestOpenFromConfigInvalid(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "tape"
	_, _, err := OpenFromConfig(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig().Embedding

	p, err := NewProvider(ctx, cfg, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, p, "pseudo provider uses the store fallback directly")

	cfg.Provider = config.ProviderGemini
	_, err = NewProvider(ctx, cfg, quietLogger())
	assert.ErrorIs(t, err, embedding.ErrMissingAPIKey)

	cfg.APIKey = "test-key"
	p, err = NewProvider(ctx, cfg, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &embedding.Cached{}, p)

	cfg.CacheSize = 0
	p, err = NewProvider(ctx, cfg, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &embedding.Resilient{}, p)
}
