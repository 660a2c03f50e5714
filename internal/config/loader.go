package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultConfigPath 为未显式指定配置时使用的路径；该文件缺失时按默认值启动。
const DefaultConfigPath = "config.toml"

const (
	defaultListenHost      = "0.0.0.0"
	defaultListenPort      = 5000
	defaultUpstreamURL     = "https://http.cat/{code}.jpg"
	defaultUpstreamTimeout = 30 * time.Second
	defaultMemoryCacheSize = 64 * 1024 * 1024
	defaultMaxBodySize     = 10 * 1024 * 1024
	defaultRedisPrefix     = "status-hub:"
)

// Overrides 承载 CLI 传入的覆盖项，空值表示沿用配置文件。
type Overrides struct {
	ListenHost  string
	ListenPort  int
	StoragePath string
}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, Overrides{})
}

// LoadWithOverrides 在 Load 的基础上应用 CLI 覆盖项，覆盖后再统一校验。
func LoadWithOverrides(path string, overrides Overrides) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if path != DefaultConfigPath || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		durationDecodeHook(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.Global.Apply(overrides)
	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

// Apply 将非空的覆盖项写入全局配置。
func (g *GlobalConfig) Apply(o Overrides) {
	if host := strings.TrimSpace(o.ListenHost); host != "" {
		g.ListenHost = host
	}
	if o.ListenPort != 0 {
		g.ListenPort = o.ListenPort
	}
	if storage := strings.TrimSpace(o.StoragePath); storage != "" {
		g.StoragePath = storage
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenHost", defaultListenHost)
	v.SetDefault("ListenPort", defaultListenPort)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("CacheBackend", BackendDisk)
	v.SetDefault("MemoryCacheSize", defaultMemoryCacheSize)
	v.SetDefault("RedisPrefix", defaultRedisPrefix)
	v.SetDefault("UpstreamURL", defaultUpstreamURL)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("UpstreamRateLimit", 0)
	v.SetDefault("UpstreamBurst", 1)
	v.SetDefault("MaxBodySize", defaultMaxBodySize)
	v.SetDefault("MetricsEnabled", true)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if strings.TrimSpace(g.ListenHost) == "" {
		g.ListenHost = defaultListenHost
	}
	if g.ListenPort == 0 {
		g.ListenPort = defaultListenPort
	}
	g.CacheBackend = strings.ToLower(strings.TrimSpace(g.CacheBackend))
	if g.CacheBackend == "" {
		g.CacheBackend = BackendDisk
	}
	if g.MemoryCacheSize == 0 {
		g.MemoryCacheSize = defaultMemoryCacheSize
	}
	if g.UpstreamURL == "" {
		g.UpstreamURL = defaultUpstreamURL
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(defaultUpstreamTimeout)
	}
	if g.UpstreamBurst == 0 {
		g.UpstreamBurst = 1
	}
	if g.MaxBodySize == 0 {
		g.MaxBodySize = defaultMaxBodySize
	}
}

// durationDecodeHook 处理 TOML 中的数值写法（按秒），字符串已由 UnmarshalText 解析。
func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		case *Duration:
			return *v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
