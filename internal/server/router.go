package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler describes the component that serves a status-code path. The
// raw value is the request path with the leading "/" stripped and has not been
// validated yet. It allows injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(c fiber.Ctx, raw string) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx, string) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx, raw string) error {
	return f(c, raw)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger *logrus.Logger
	Proxy  ProxyHandler
	// BodyLimit caps buffered PUT bodies in bytes; zero keeps Fiber's default.
	BodyLimit int
}

const (
	contextKeyRequestID = "_statushub_request_id"

	// DiagnosticsPrefix 下的路径不会被解析为状态码。
	DiagnosticsPrefix = "/-/"
)

// extensionMethods 为 WebDAV 等常见扩展方法，注册后由代理统一回复 405；
// 未登记的方法令牌仍由 Fiber 回复 501。
var extensionMethods = []string{
	"PROPFIND", "PROPPATCH", "MKCOL", "COPY", "MOVE", "LOCK", "UNLOCK",
	"REPORT", "SEARCH", "PURGE", "LINK", "UNLINK",
}

func requestMethods() []string {
	methods := make([]string, 0, len(fiber.DefaultMethods)+len(extensionMethods))
	methods = append(methods, fiber.DefaultMethods...)
	return append(methods, extensionMethods...)
}

// NewApp builds a Fiber application with request-id middleware, panic recovery
// and a plain-text error handler.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive:  true,
		BodyLimit:      opts.BodyLimit,
		RequestMethods: requestMethods(),
		ErrorHandler:   newErrorHandler(opts.Logger),
	})

	app.Use(requestContextMiddleware())
	app.Use(recover.New())

	app.All("/*", func(c fiber.Ctx) error {
		path := string(c.Request().URI().Path())
		if isDiagnosticsPath(path) {
			return c.Next()
		}
		raw := strings.TrimPrefix(path, "/")
		if raw == "" {
			return renderIndex(c)
		}
		return opts.Proxy.Handle(c, raw)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并写入响应头供排障使用。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// newErrorHandler 将未建模的错误统一映射为 500 纯文本，细节只写日志；
// Fiber 自身产生的 *fiber.Error（如请求体超限）保留原状态码。
func newErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) && fiberErr.Code != fiber.StatusInternalServerError {
			return SendText(c, fiberErr.Code, strings.ToLower(fiberErr.Message))
		}

		fields := logrus.Fields{
			"action": "request_failed",
			"method": c.Method(),
			"path":   string(c.Request().URI().Path()),
		}
		if reqID := RequestID(c); reqID != "" {
			fields["request_id"] = reqID
		}
		logger.WithFields(fields).WithError(err).Error("unhandled_error")
		return SendText(c, fiber.StatusInternalServerError, "internal server error")
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, DiagnosticsPrefix)
}
