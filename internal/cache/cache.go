package cache

import (
	"fmt"

	"github.com/transactai/sentinel/internal/domain"
)

// New creates a cache based on configuration: in-process LRU for a single
// node, Redis when counters must be shared.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
