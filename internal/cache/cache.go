package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ppiankov/veracast/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

const keyPrefix = "veracast:v1:"

// DefaultClaimKeyLength is how many leading characters of a claim identify it
const DefaultClaimKeyLength = 100

// ClaimPrefix returns the leading characters of a claim that identify its
// graph. Claims sharing that prefix share one cache entry.
func ClaimPrefix(claim string, length int) string {
	if length <= 0 {
		length = DefaultClaimKeyLength
	}
	runes := []rune(strings.TrimSpace(claim))
	if len(runes) > length {
		runes = runes[:length]
	}
	return string(runes)
}

// ClaimKey generates the storage key for a claim's graph
func ClaimKey(claim string, length int) string {
	hash := sha256.Sum256([]byte(ClaimPrefix(claim, length)))
	return keyPrefix + "graph:" + hex.EncodeToString(hash[:])
}

// New builds the configured cache stack: memory, then disk, then redis when
// an address is set. Returns nil when caching is disabled.
func New(cfg model.CacheConfig) (Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	layers := []Cache{NewMemoryCache(cfg.MemoryTTL, 10*time.Minute, 0)}
	if cfg.DiskDir != "" {
		layers = append(layers, NewDiskCache(cfg.DiskDir, cfg.DiskTTL))
	}
	if cfg.RedisAddr != "" {
		rc, err := NewRedisCache(cfg.RedisAddr, cfg.DiskTTL)
		if err != nil {
			return nil, err
		}
		layers = append(layers, rc)
	}
	if len(layers) == 1 {
		return layers[0], nil
	}
	return NewLayeredCache(layers...), nil
}
