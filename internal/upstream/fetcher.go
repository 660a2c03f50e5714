// Package upstream retrieves the canonical image for a status code from the
// configured remote. Every failure mode (transport error, timeout, non-200
// status, oversized body, throttle wait cancelled) is folded into
// ErrUnavailable; callers only learn "absent" and the wrapped detail is meant
// for logs.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/any-hub/status-hub/internal/code"
	"github.com/any-hub/status-hub/internal/config"
	"github.com/any-hub/status-hub/internal/version"
)

// ErrUnavailable 表示上游没有给出可用正文。
var ErrUnavailable = errors.New("upstream unavailable")

// Fetcher 按状态码获取上游正文。
type Fetcher interface {
	Fetch(ctx context.Context, c code.Code) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, c code.Code) ([]byte, error)

// Fetch makes FetcherFunc satisfy Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, c code.Code) ([]byte, error) {
	return f(ctx, c)
}

// Options 控制 HTTPFetcher 的目标地址、正文上限与限流参数。
type Options struct {
	// URLTemplate 中的 {code} 会被替换为状态码。
	URLTemplate string
	// MaxBodySize 为 0 时不限制正文大小。
	MaxBodySize int64
	// RateLimit 为每秒允许的上游请求数，0 表示不限流。
	RateLimit float64
	Burst     int
}

// HTTPFetcher 对每个状态码发起一次 GET，不做重试。
type HTTPFetcher struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// NewHTTPFetcher 使用共享 http.Client 构建 Fetcher。
func NewHTTPFetcher(client *http.Client, opts Options) (*HTTPFetcher, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if !strings.Contains(opts.URLTemplate, config.CodePlaceholder) {
		return nil, fmt.Errorf("upstream template must contain %s: %q", config.CodePlaceholder, opts.URLTemplate)
	}

	f := &HTTPFetcher{client: client, opts: opts}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return f, nil
}

// URL 返回状态码对应的上游地址。
func (f *HTTPFetcher) URL(c code.Code) string {
	return strings.ReplaceAll(f.opts.URLTemplate, config.CodePlaceholder, c.String())
}

// Fetch 返回上游正文；任何失败均包装为 ErrUnavailable。
func (f *HTTPFetcher) Fetch(ctx context.Context, c code.Code) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, unavailable("throttle wait", err)
		}
	}

	target := f.URL(c)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, unavailable("build request", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "image/jpeg, image/*;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, unavailable("request "+target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))
		return nil, unavailable("request "+target, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := readBody(resp.Body, f.opts.MaxBodySize)
	if err != nil {
		return nil, unavailable("read "+target, err)
	}
	return body, nil
}

func readBody(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return body, nil
}

func unavailable(stage string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, stage, err)
}
