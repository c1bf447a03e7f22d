package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

/*
Config is the configuration for the application.

Contains the configuration for the server, the persistence slot, and the
embedding provider.
*/
type Config struct {
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	Embedding EmbeddingConfig `json:"embedding"`
	LogLevel  string          `json:"log_level"`
}

/*
ServerConfig is the configuration for the server.
*/
type ServerConfig struct {
	Host string `json:"host"`
	Port string `json:"port"`
}

/*
Backend selects where the knowledge store snapshot is kept.
*/
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

/*
StorageConfig is the configuration for the storage.
*/
type StorageConfig struct {
	Backend Backend `json:"backend"`
	// directory for file snapshots, or database file for sqlite
	DataPath string `json:"data_path"`
	// name of the slot holding the snapshot
	Slot          string `json:"slot"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
}

/*
ProviderType selects the embedding backend.
*/
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderPseudo ProviderType = "pseudo"
)

/*
EmbeddingConfig is the configuration for the embedding provider.
*/
type EmbeddingConfig struct {
	Provider ProviderType `json:"provider"`
	APIKey   string       `json:"api_key"`
	Model    string       `json:"model"`
	// vector length shared by every record
	Dimensions int `json:"dimensions"`
	// bound on a single provider call [milliseconds]
	TimeoutMs int `json:"timeout_ms"`
	// number of cached embeddings, 0 disables the cache
	CacheSize         int     `json:"cache_size"`
	MaxRetries        int     `json:"max_retries"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	// consecutive failures before the breaker opens, 0 disables it
	BreakerFailures   int `json:"breaker_failures"`
	BreakerCooldownMs int `json:"breaker_cooldown_ms"`
}

/*
Timeout returns the provider call bound as a duration
*/
func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

/*
BreakerCooldown returns how long the breaker stays open
*/
func (e EmbeddingConfig) BreakerCooldown() time.Duration {
	return time.Duration(e.BreakerCooldownMs) * time.Millisecond
}

/*
Default config
*/
func DefaultConfig() *Config {
	return &Config{
		// server configuration
		Server: ServerConfig{
			Host: "localhost",
			Port: "8080",
		},
		// storage configuration
		Storage: StorageConfig{
			Backend:   BackendFile,
			DataPath:  "./data",
			Slot:      "health_knowledge_base",
			RedisAddr: "localhost:6379",
		},
		// embedding configuration
		Embedding: EmbeddingConfig{
			Provider:          ProviderPseudo,
			Model:             "text-embedding-004",
			Dimensions:        768,
			TimeoutMs:         10000,
			CacheSize:         256,
			MaxRetries:        2,
			RequestsPerSecond: 5,
			BreakerFailures:   5,
			BreakerCooldownMs: 30000,
		},
		// logging configuration
		LogLevel: "warn",
	}
}

/*
LoadFromFile loads the configuration from a JSON file.
*/
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := DefaultConfig()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}
	return config, nil
}

/*
LoadFromEnv loads the configuration from the environment variables.
*/
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	ApplyEnv(config)
	return config, nil
}

/*
ApplyEnv overrides config fields from HEALTHKB_* environment variables.
GEMINI_API_KEY is honored when HEALTHKB_API_KEY is unset.
*/
func ApplyEnv(config *Config) {
	// Server config
	setString(&config.Server.Host, "HEALTHKB_HOST")
	setString(&config.Server.Port, "HEALTHKB_PORT")

	// Storage config
	if backend := os.Getenv("HEALTHKB_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = Backend(backend)
	}
	setString(&config.Storage.DataPath, "HEALTHKB_DATA_PATH")
	setString(&config.Storage.Slot, "HEALTHKB_SLOT")
	setString(&config.Storage.RedisAddr, "HEALTHKB_REDIS_ADDR")
	setString(&config.Storage.RedisPassword, "HEALTHKB_REDIS_PASSWORD")
	setInt(&config.Storage.RedisDB, "HEALTHKB_REDIS_DB")

	// Embedding config
	if provider := os.Getenv("HEALTHKB_EMBEDDING_PROVIDER"); provider != "" {
		config.Embedding.Provider = ProviderType(provider)
	}
	setString(&config.Embedding.APIKey, "GEMINI_API_KEY")
	setString(&config.Embedding.APIKey, "HEALTHKB_API_KEY")
	setString(&config.Embedding.Model, "HEALTHKB_EMBEDDING_MODEL")
	setInt(&config.Embedding.Dimensions, "HEALTHKB_DIMS")
	setInt(&config.Embedding.TimeoutMs, "HEALTHKB_EMBEDDING_TIMEOUT_MS")
	setInt(&config.Embedding.CacheSize, "HEALTHKB_EMBEDDING_CACHE_SIZE")
	setInt(&config.Embedding.MaxRetries, "HEALTHKB_EMBEDDING_MAX_RETRIES")
	setInt(&config.Embedding.BreakerFailures, "HEALTHKB_EMBEDDING_BREAKER_FAILURES")
	setInt(&config.Embedding.BreakerCooldownMs, "HEALTHKB_EMBEDDING_BREAKER_COOLDOWN_MS")

	if rpsStr := os.Getenv("HEALTHKB_EMBEDDING_RPS"); rpsStr != "" {
		if rps, err := strconv.ParseFloat(rpsStr, 64); err == nil {
			config.Embedding.RequestsPerSecond = rps
		}
	}

	setString(&config.LogLevel, "HEALTHKB_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			*dst = v
		}
	}
}

/*
Validate checks if the configuration is valid
*/
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("invalid dimensions: %d", c.Embedding.Dimensions)
	}
	if c.Embedding.TimeoutMs <= 0 {
		return fmt.Errorf("invalid embedding timeout: %d", c.Embedding.TimeoutMs)
	}
	if c.Embedding.CacheSize < 0 || c.Embedding.MaxRetries < 0 || c.Embedding.BreakerFailures < 0 {
		return fmt.Errorf("embedding cache size, retries and breaker failures must not be negative")
	}
	switch c.Embedding.Provider {
	case ProviderGemini, ProviderPseudo:
	default:
		return fmt.Errorf("unknown embedding provider: %q", c.Embedding.Provider)
	}
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}
	if c.Storage.Slot == "" {
		return fmt.Errorf("storage slot must not be empty")
	}
	return nil
}
