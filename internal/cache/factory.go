package cache

import (
	"context"
	"fmt"

	"github.com/any-hub/status-hub/internal/config"
)

// Open 根据 CacheBackend 选择缓存实现，调用方负责在退出时 Close。
func Open(ctx context.Context, cfg config.GlobalConfig) (Store, error) {
	switch cfg.CacheBackend {
	case "", config.BackendDisk:
		return NewStore(cfg.StoragePath)
	case config.BackendMemory:
		return NewMemoryStore(cfg.MemoryCacheSize)
	case config.BackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.CacheBackend)
	}
}
