package server

import (
	"github.com/gofiber/fiber/v3"
)

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>status-hub</title>
</head>
<body>
<h1>status-hub</h1>
<p>A read-through cache for HTTP status code images.</p>
<ul>
<li><code>GET /{code}</code> returns the cached image, fetching it from upstream on a miss.</li>
<li><code>PUT /{code}</code> stores the request body as the image for that code.</li>
<li><code>DELETE /{code}</code> evicts the cached image.</li>
</ul>
<p><code>{code}</code> must be exactly three digits, for example <a href="/404">/404</a>.</p>
</body>
</html>
`

// renderIndex 只响应 GET，其余方法按 405 处理，与状态码路径保持一致。
func renderIndex(c fiber.Ctx) error {
	if c.Method() != fiber.MethodGet {
		c.Set(fiber.HeaderAllow, fiber.MethodGet)
		return SendText(c, fiber.StatusMethodNotAllowed, "method not allowed")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(fiber.StatusOK).SendString(indexHTML)
}

// SendText 以 text/plain 输出状态码与消息，所有非图片响应都经由此处。
func SendText(c fiber.Ctx, status int, message string) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(status).SendString(message)
}
