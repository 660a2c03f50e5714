package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 解析 "30s"、"5m" 等 Duration 字符串，纯数字按秒处理。
// 由 loader 中的 TextUnmarshallerHookFunc 驱动。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("无法解析 Duration 字段: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// 支持的缓存后端。
const (
	BackendDisk   = "disk"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// CodePlaceholder 是 UpstreamURL 模板中被状态码替换的占位符。
const CodePlaceholder = "{code}"

// GlobalConfig 描述进程级运行参数，启动时加载一次。
type GlobalConfig struct {
	ListenHost    string `mapstructure:"ListenHost"`
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	StoragePath     string `mapstructure:"StoragePath"`
	CacheBackend    string `mapstructure:"CacheBackend"`
	MemoryCacheSize int64  `mapstructure:"MemoryCacheSize"`
	RedisAddr       string `mapstructure:"RedisAddr"`
	RedisPassword   string `mapstructure:"RedisPassword"`
	RedisDB         int    `mapstructure:"RedisDB"`
	RedisPrefix     string `mapstructure:"RedisPrefix"`

	UpstreamURL       string   `mapstructure:"UpstreamURL"`
	UpstreamTimeout   Duration `mapstructure:"UpstreamTimeout"`
	UpstreamRateLimit float64  `mapstructure:"UpstreamRateLimit"`
	UpstreamBurst     int      `mapstructure:"UpstreamBurst"`

	MaxBodySize    int64 `mapstructure:"MaxBodySize"`
	MetricsEnabled bool  `mapstructure:"MetricsEnabled"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
}

// ListenAddr 返回 host:port 形式的监听地址。
func (g GlobalConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", g.ListenHost, g.ListenPort)
}
