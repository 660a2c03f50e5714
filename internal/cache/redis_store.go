package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/any-hub/status-hub/internal/code"
)

const redisPingTimeout = 5 * time.Second

// RedisOptions 描述 redis 后端的连接参数。
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// redisStore 将每个状态码存为一个无过期时间的字符串键。
type redisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore 创建 redis 后端并在启动阶段探测连通性。
func NewRedisStore(ctx context.Context, opts RedisOptions) (Store, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return &redisStore{rdb: rdb, prefix: opts.Prefix}, nil
}

func (s *redisStore) Get(ctx context.Context, c code.Code) ([]byte, error) {
	blob, err := s.rdb.Get(ctx, s.key(c)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return blob, nil
}

func (s *redisStore) Put(ctx context.Context, c code.Code, blob []byte) error {
	return s.rdb.Set(ctx, s.key(c), blob, 0).Err()
}

func (s *redisStore) Remove(ctx context.Context, c code.Code) error {
	removed, err := s.rdb.Del(ctx, s.key(c)).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.rdb.Close()
}

func (s *redisStore) key(c code.Code) string {
	return s.prefix + c.String()
}
