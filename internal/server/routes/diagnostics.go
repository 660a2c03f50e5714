package routes

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/any-hub/status-hub/internal/config"
	"github.com/any-hub/status-hub/internal/server"
	"github.com/any-hub/status-hub/internal/version"
)

// DiagnosticsOptions 描述诊断接口需要暴露的运行时信息。
type DiagnosticsOptions struct {
	Config *config.Config
	// Metrics 为 nil 时不注册 /-/metrics。
	Metrics http.Handler
}

// RegisterDiagnosticsRoutes 暴露 /-/healthz、/-/status 与可选的 /-/metrics，供 SRE 排障。
func RegisterDiagnosticsRoutes(app *fiber.App, opts DiagnosticsOptions) {
	if app == nil {
		return
	}

	known := map[string]bool{}
	register := func(path string, handler fiber.Handler) {
		known[path] = true
		app.Get(path, handler)
	}

	register("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	register("/-/status", func(c fiber.Ctx) error {
		return c.JSON(encodeStatus(opts.Config))
	})

	if opts.Metrics != nil {
		register("/-/metrics", adaptor.HTTPHandler(opts.Metrics))
	}

	// 必须最后注册，兜住 /-/ 下未匹配的请求。
	app.All(server.DiagnosticsPrefix+"*", func(c fiber.Ctx) error {
		path := string(c.Request().URI().Path())
		if known[path] {
			c.Set(fiber.HeaderAllow, fiber.MethodGet)
			return server.SendText(c, fiber.StatusMethodNotAllowed,
				fmt.Sprintf("diagnostics endpoint %s only supports GET", path))
		}
		return server.SendText(c, fiber.StatusNotFound,
			fmt.Sprintf("unknown diagnostics endpoint: %s", path))
	})
}

type statusPayload struct {
	Version      string `json:"version"`
	CacheBackend string `json:"cache_backend"`
	StoragePath  string `json:"storage_path,omitempty"`
	Upstream     string `json:"upstream"`
	MaxBodySize  int64  `json:"max_body_size"`
}

func encodeStatus(cfg *config.Config) statusPayload {
	payload := statusPayload{Version: version.Full()}
	if cfg == nil {
		return payload
	}
	g := cfg.Global
	payload.CacheBackend = g.CacheBackend
	payload.Upstream = g.UpstreamURL
	payload.MaxBodySize = g.MaxBodySize
	if g.CacheBackend == config.BackendDisk || g.CacheBackend == "" {
		payload.StoragePath = g.StoragePath
	}
	return payload
}
