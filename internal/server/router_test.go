package server

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func TestRouterPassesRawCodeToProxy(t *testing.T) {
	app := newTestApp(t, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/404", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 status, got %d", resp.StatusCode)
	}
	if app.recorder.lastRaw != "404" {
		t.Fatalf("expected raw code 404, got %q", app.recorder.lastRaw)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRouterPassesInvalidPathsUnchanged(t *testing.T) {
	app := newTestApp(t, nil)

	for _, path := range []string{"/abc", "/2000", "/200/extra"} {
		if _, err := app.Test(httptest.NewRequest("DELETE", path, nil)); err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		if want := strings.TrimPrefix(path, "/"); app.recorder.lastRaw != want {
			t.Fatalf("expected raw %q, got %q", want, app.recorder.lastRaw)
		}
	}
}

func TestRouterServesIndexAtRoot(t *testing.T) {
	app := newTestApp(t, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html content type, got %s", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "status-hub") {
		t.Fatalf("unexpected index body: %s", body)
	}
	if app.recorder.calls != 0 {
		t.Fatalf("root must not reach the proxy handler")
	}
}

func TestRouterRejectsNonGetAtRoot(t *testing.T) {
	app := newTestApp(t, nil)

	resp, err := app.Test(httptest.NewRequest("PUT", "/", strings.NewReader("x")))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestRouterRoutesExtensionMethodsToProxy(t *testing.T) {
	app := newTestApp(t, nil)

	for _, method := range []string{"PROPFIND", "MKCOL", "PURGE"} {
		resp, err := app.Test(httptest.NewRequest(method, "/200", nil))
		if err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		if resp.StatusCode != fiber.StatusNoContent {
			t.Fatalf("%s: expected proxy to handle request, got %d", method, resp.StatusCode)
		}
	}
	if app.recorder.calls != 3 {
		t.Fatalf("expected 3 proxy calls, got %d", app.recorder.calls)
	}
}

func TestRouterRejectsUnknownMethodToken(t *testing.T) {
	app := newTestApp(t, nil)

	resp, err := app.Test(httptest.NewRequest("FOO", "/200", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotImplemented {
		t.Fatalf("expected 501 for unrecognised method, got %d", resp.StatusCode)
	}
	if app.recorder.calls != 0 {
		t.Fatalf("unrecognised methods must not reach the proxy handler")
	}
}

func TestRouterSkipsDiagnosticsPaths(t *testing.T) {
	app := newTestApp(t, nil)
	app.Get("/-/ping", func(c fiber.Ctx) error {
		return c.SendString("pong")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/-/ping", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || string(body) != "pong" {
		t.Fatalf("expected diagnostics route, got %d %s", resp.StatusCode, body)
	}
	if app.recorder.calls != 0 {
		t.Fatalf("diagnostics paths must not reach the proxy handler")
	}
}

func TestRouterMapsUnhandledErrorsTo500(t *testing.T) {
	testCases := []struct {
		name    string
		handler ProxyHandlerFunc
	}{
		{
			name: "error",
			handler: func(fiber.Ctx, string) error {
				return errors.New("disk on fire")
			},
		},
		{
			name: "panic",
			handler: func(fiber.Ctx, string) error {
				panic("boom")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t, tc.handler)
			resp, err := app.Test(httptest.NewRequest("GET", "/500", nil))
			if err != nil {
				t.Fatalf("app.Test failed: %v", err)
			}
			if resp.StatusCode != fiber.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			if string(body) != "internal server error" {
				t.Fatalf("client body must stay generic, got %q", body)
			}
			if tc.name == "error" && !strings.Contains(app.logs.String(), "disk on fire") {
				t.Fatalf("error detail should be logged server-side, got %s", app.logs.String())
			}
			if !strings.Contains(app.logs.String(), "unhandled_error") {
				t.Fatalf("expected unhandled_error log, got %s", app.logs.String())
			}
		})
	}
}

func TestNewAppRequiresDependencies(t *testing.T) {
	if _, err := NewApp(AppOptions{Proxy: &proxyRecorder{}}); err == nil {
		t.Fatalf("missing logger should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logrus.New()}); err == nil {
		t.Fatalf("missing proxy should fail")
	}
}

type testApp struct {
	*fiber.App
	recorder *proxyRecorder
	logs     *strings.Builder
}

func newTestApp(t *testing.T, handler ProxyHandler) *testApp {
	t.Helper()

	logs := &strings.Builder{}
	logger := logrus.New()
	logger.SetOutput(logs)

	recorder := &proxyRecorder{}
	if handler == nil {
		handler = recorder
	}
	app, err := NewApp(AppOptions{
		Logger: logger,
		Proxy:  handler,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &testApp{App: app, recorder: recorder, logs: logs}
}

type proxyRecorder struct {
	lastRaw string
	calls   int
}

func (p *proxyRecorder) Handle(c fiber.Ctx, raw string) error {
	p.lastRaw = raw
	p.calls++
	return c.SendStatus(fiber.StatusNoContent)
}
