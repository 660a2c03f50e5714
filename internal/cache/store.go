package cache

import (
	"context"
	"errors"

	"github.com/any-hub/status-hub/internal/code"
)

// Store 负责管理状态码图片的持久化。磁盘布局遵循：
//
//	<StoragePath>/<code>.jpg    # 实际正文
//
// 没有索引或元数据文件，文件系统即唯一事实来源。
type Store interface {
	// Get 返回完整正文。若不存在则返回 ErrNotFound，其余错误原样返回。
	Get(ctx context.Context, c code.Code) ([]byte, error)

	// Put 以整体替换的方式写入正文，已有内容会被覆盖。
	Put(ctx context.Context, c code.Code, blob []byte) error

	// Remove 删除正文；条目不存在时返回 ErrNotFound。
	Remove(ctx context.Context, c code.Code) error

	// Close 释放后端持有的资源。
	Close() error
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

// ErrRejected 表示后端拒绝接收条目（例如超过内存缓存容量）。
var ErrRejected = errors.New("cache entry rejected")

// FileName 返回状态码对应的缓存文件名。
func FileName(c code.Code) string {
	return c.String() + ".jpg"
}
