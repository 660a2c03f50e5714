package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/any-hub/status-hub/internal/code"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[code.Code]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 串行化同一状态码的写入与删除，读取依赖 rename 的原子性无需加锁。
type fileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[code.Code]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Get(ctx context.Context, c code.Code) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := s.entryPath(c)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	blob, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return blob, nil
}

func (s *fileStore) Put(ctx context.Context, c code.Code, blob []byte) error {
	filePath, err := s.entryPath(c)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(c)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(s.basePath, ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(blob)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Chmod(tempName, 0o644); err != nil {
		os.Remove(tempName)
		return err
	}
	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *fileStore) Remove(ctx context.Context, c code.Code) error {
	filePath, err := s.entryPath(c)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(c)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if info.IsDir() {
		return ErrNotFound
	}
	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *fileStore) Close() error {
	return nil
}

func (s *fileStore) lockEntry(c code.Code) func() {
	s.mu.Lock()
	lock := s.locks[c]
	if lock == nil {
		lock = &entryLock{}
		s.locks[c] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, c)
		}
		s.mu.Unlock()
	}
}

// entryPath 再次校验状态码，防止外部直接转换出的 Code 逃逸缓存目录。
func (s *fileStore) entryPath(c code.Code) (string, error) {
	if _, err := code.Parse(c.String()); err != nil {
		return "", fmt.Errorf("invalid cache path: %w", err)
	}
	return filepath.Join(s.basePath, FileName(c)), nil
}
