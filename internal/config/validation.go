package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.ContainsAny(g.ListenHost, " /") {
		return newFieldError("Global.ListenHost", "不允许包含空格或路径")
	}
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError("Global.LogLevel", "无法识别的日志级别")
		}
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.UpstreamRateLimit < 0 {
		return newFieldError("Global.UpstreamRateLimit", "不能为负数")
	}
	if g.UpstreamRateLimit > 0 && g.UpstreamBurst <= 0 {
		return newFieldError("Global.UpstreamBurst", "启用限流时必须大于 0")
	}
	if g.MaxBodySize <= 0 {
		return newFieldError("Global.MaxBodySize", "必须大于 0")
	}
	if err := validateUpstream(g.UpstreamURL); err != nil {
		return fmt.Errorf("Global.UpstreamURL: %w", err)
	}

	switch g.CacheBackend {
	case BackendDisk:
		if g.StoragePath == "" {
			return newFieldError("Global.StoragePath", "不能为空")
		}
	case BackendMemory:
		if g.MemoryCacheSize <= 0 {
			return newFieldError("Global.MemoryCacheSize", "必须大于 0")
		}
	case BackendRedis:
		if strings.TrimSpace(g.RedisAddr) == "" {
			return newFieldError("Global.RedisAddr", "redis 后端需要配置地址")
		}
		if g.RedisDB < 0 {
			return newFieldError("Global.RedisDB", "不能为负数")
		}
	default:
		return newFieldError("Global.CacheBackend", "仅支持 disk|memory|redis")
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	if !strings.Contains(raw, CodePlaceholder) {
		return fmt.Errorf("上游地址必须包含 %s 占位符: %s", CodePlaceholder, raw)
	}
	parsed, err := url.Parse(strings.ReplaceAll(raw, CodePlaceholder, "200"))
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
