package domain

import (
	"context"
	"time"
)

// Cache defines the interface for memoizing score results by fingerprint.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetScore retrieves a cached score result by its composite key.
	GetScore(ctx context.Context, tenantID string, key string) (*ScoreResult, error)

	// SetScore caches a score result.
	SetScore(ctx context.Context, tenantID string, key string, result *ScoreResult, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ScoreCacheKey builds the memoization key for one (record, config) pair.
func ScoreCacheKey(configFingerprint, recordFingerprint string) string {
	return "score:" + configFingerprint + ":" + recordFingerprint
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis

	// ScoreTTL bounds how long memoized score results stay valid.
	ScoreTTL time.Duration
}
