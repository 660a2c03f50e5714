package cache

import (
	"bytes"
	"context"
	"errors"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/any-hub/status-hub/internal/code"
)

// 状态码空间只有 1000 个键，计数器按 10 倍预留即可。
const memoryNumCounters = 10 * 1000

// memoryStore 以 ristretto 为后端，容量按正文字节数计费；被淘汰的条目等同于未命中。
type memoryStore struct {
	rc *ristretto.Cache[string, []byte]
}

// NewMemoryStore 创建进程内缓存，maxBytes 为正文总字节上限。
func NewMemoryStore(maxBytes int64) (Store, error) {
	if maxBytes <= 0 {
		return nil, errors.New("memory cache size must be positive")
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        memoryNumCounters,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &memoryStore{rc: rc}, nil
}

func (s *memoryStore) Get(ctx context.Context, c code.Code) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := s.rc.Get(c.String())
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (s *memoryStore) Put(ctx context.Context, c code.Code, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cost := int64(len(blob))
	if cost == 0 {
		cost = 1
	}
	value := bytes.Clone(blob)
	if value == nil {
		value = []byte{}
	}
	if !s.rc.Set(c.String(), value, cost) {
		return ErrRejected
	}
	s.rc.Wait()
	if _, ok := s.rc.Get(c.String()); !ok {
		return ErrRejected
	}
	return nil
}

func (s *memoryStore) Remove(ctx context.Context, c code.Code) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.rc.Get(c.String()); !ok {
		return ErrNotFound
	}
	s.rc.Del(c.String())
	s.rc.Wait()
	return nil
}

func (s *memoryStore) Close() error {
	s.rc.Close()
	return nil
}
