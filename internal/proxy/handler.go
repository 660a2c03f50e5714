// Package proxy implements the per-request cache coordination: validate the
// status code, then serve GET from the store or upstream, and apply PUT and
// DELETE directly to the store. Every outcome is resolved to an HTTP status
// here; nothing propagates past the response.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/status-hub/internal/cache"
	"github.com/any-hub/status-hub/internal/code"
	"github.com/any-hub/status-hub/internal/logging"
	"github.com/any-hub/status-hub/internal/metrics"
	"github.com/any-hub/status-hub/internal/server"
	"github.com/any-hub/status-hub/internal/upstream"
)

const (
	// HeaderCacheHit 标记 GET 200 响应是否来自缓存。
	HeaderCacheHit = "X-Status-Hub-Cache-Hit"

	contentTypeJPEG = "image/jpeg"
	allowedMethods  = "GET, PUT, DELETE"
)

// Handler 负责 orchestrate “校验 → 读缓存 → 回源 → 写缓存” 的全流程，
// 同一状态码的并发未命中通过 singleflight 合并为一次回源与一次写入。
type Handler struct {
	fetcher upstream.Fetcher
	logger  *logrus.Logger
	store   cache.Store
	metrics *metrics.Recorder
	group   singleflight.Group
}

// NewHandler constructs a handler with shared fetcher/logger/store. recorder may be nil.
func NewHandler(fetcher upstream.Fetcher, logger *logrus.Logger, store cache.Store, recorder *metrics.Recorder) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		fetcher: fetcher,
		logger:  logger,
		store:   store,
		metrics: recorder,
	}
}

// requestState 汇总单次请求的日志上下文。
type requestState struct {
	code      code.Code
	raw       string
	method    string
	requestID string
	started   time.Time
}

// Handle 校验状态码后按方法分派；raw 为去掉前导 "/" 的原始路径。
func (h *Handler) Handle(c fiber.Ctx, raw string) error {
	state := &requestState{
		raw:       raw,
		method:    c.Method(),
		requestID: server.RequestID(c),
		started:   time.Now(),
	}

	parsed, err := code.Parse(raw)
	if err != nil {
		h.logResult(state, fiber.StatusBadRequest, metrics.OutcomeInvalidCode, false, nil)
		return server.SendText(c, fiber.StatusBadRequest, err.Error())
	}
	state.code = parsed

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch state.method {
	case fiber.MethodGet:
		return h.serveGet(c, ctx, state)
	case fiber.MethodPut:
		return h.servePut(c, ctx, state)
	case fiber.MethodDelete:
		return h.serveDelete(c, ctx, state)
	default:
		h.logResult(state, fiber.StatusMethodNotAllowed, metrics.OutcomeMethodRejected, false, nil)
		c.Set(fiber.HeaderAllow, allowedMethods)
		return server.SendText(c, fiber.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) serveGet(c fiber.Ctx, ctx context.Context, state *requestState) error {
	blob, err := h.store.Get(ctx, state.code)
	switch {
	case err == nil:
		h.logResult(state, fiber.StatusOK, metrics.OutcomeServedCached, true, nil)
		return sendImage(c, blob, true)
	case errors.Is(err, cache.ErrNotFound):
		// miss, continue
	default:
		h.logger.WithError(err).
			WithFields(h.fields(state, "cache_get")).
			Warn("cache_get_failed")
	}

	h.logger.WithFields(h.fields(state, "cache_lookup")).Debug("cache_miss")

	blob, err = h.fetchCoalesced(ctx, state)
	if err != nil {
		h.logResult(state, fiber.StatusNotFound, metrics.OutcomeServedNotFound, false, nil)
		return server.SendText(c, fiber.StatusNotFound, "not found")
	}

	h.logResult(state, fiber.StatusOK, metrics.OutcomeServedFetched, false, nil)
	return sendImage(c, blob, false)
}

// fetchCoalesced 合并同一状态码的并发回源；共享调用使用脱离请求取消的 context，
// 避免首个请求断开拖垮其它等待者，超时由上游 http.Client 兜底。
func (h *Handler) fetchCoalesced(ctx context.Context, state *requestState) ([]byte, error) {
	shared := context.WithoutCancel(ctx)
	value, err, coalesced := h.group.Do(state.code.String(), func() (interface{}, error) {
		return h.fetchAndPopulate(shared, state)
	})
	if coalesced {
		h.logger.WithFields(h.fields(state, "fetch")).Debug("fetch_coalesced")
	}
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

// fetchAndPopulate 回源成功后尽力写缓存；写入失败只记录日志与指标，不影响响应。
func (h *Handler) fetchAndPopulate(ctx context.Context, state *requestState) ([]byte, error) {
	fetchStarted := time.Now()
	blob, err := h.fetcher.Fetch(ctx, state.code)
	if err != nil {
		h.metrics.ObserveFetch(metrics.FetchUnavailable, time.Since(fetchStarted))
		h.logger.WithError(err).
			WithFields(h.fields(state, "fetch")).
			Warn("fetch_failed")
		return nil, err
	}
	h.metrics.ObserveFetch(metrics.FetchOK, time.Since(fetchStarted))

	if err := h.store.Put(ctx, state.code, blob); err != nil {
		h.metrics.ObservePopulateFailure()
		h.logger.WithError(err).
			WithFields(h.fields(state, "cache_populate")).
			Warn("cache_populate_failed")
	}
	return blob, nil
}

func (h *Handler) servePut(c fiber.Ctx, ctx context.Context, state *requestState) error {
	// 按原样落盘，不依据 Content-Encoding 解码。
	blob := c.BodyRaw()
	if err := h.store.Put(ctx, state.code, blob); err != nil {
		h.logResult(state, fiber.StatusInternalServerError, metrics.OutcomeStoreError, false, err)
		return server.SendText(c, fiber.StatusInternalServerError, fmt.Sprintf("failed to store %s", state.code))
	}
	h.logResult(state, fiber.StatusCreated, metrics.OutcomeStored, false, nil)
	return server.SendText(c, fiber.StatusCreated, fmt.Sprintf("stored %s", state.code))
}

func (h *Handler) serveDelete(c fiber.Ctx, ctx context.Context, state *requestState) error {
	err := h.store.Remove(ctx, state.code)
	switch {
	case err == nil:
		h.logResult(state, fiber.StatusOK, metrics.OutcomeDeleted, false, nil)
		return server.SendText(c, fiber.StatusOK, fmt.Sprintf("deleted %s", state.code))
	case errors.Is(err, cache.ErrNotFound):
		h.logResult(state, fiber.StatusNotFound, metrics.OutcomeDeleteMiss, false, nil)
		return server.SendText(c, fiber.StatusNotFound, "not found")
	default:
		h.logResult(state, fiber.StatusInternalServerError, metrics.OutcomeInternalError, false, err)
		return server.SendText(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func sendImage(c fiber.Ctx, blob []byte, cacheHit bool) error {
	c.Set(fiber.HeaderContentType, contentTypeJPEG)
	if cacheHit {
		c.Set(HeaderCacheHit, "true")
	} else {
		c.Set(HeaderCacheHit, "false")
	}
	return c.Status(fiber.StatusOK).Send(blob)
}

func (h *Handler) fields(state *requestState, action string) logrus.Fields {
	fields := logging.RequestFields(state.code.String(), state.method, state.requestID, false)
	fields["action"] = action
	return fields
}

// logResult 为每个请求输出一条终态日志并累计指标；日志失败不会影响响应。
func (h *Handler) logResult(state *requestState, status int, outcome string, cacheHit bool, err error) {
	h.metrics.ObserveRequest(state.method, outcome)

	fields := logging.RequestFields(state.code.String(), state.method, state.requestID, cacheHit)
	fields["action"] = "request"
	fields["status"] = status
	fields["outcome"] = outcome
	fields["elapsed_ms"] = time.Since(state.started).Milliseconds()
	if state.code == "" {
		fields["rejected"] = state.raw
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("request_failed")
		return
	}

	switch outcome {
	case metrics.OutcomeServedCached:
		h.logger.WithFields(fields).Info("cache_hit")
	case metrics.OutcomeServedFetched, metrics.OutcomeServedNotFound:
		h.logger.WithFields(fields).Info("cache_miss")
	default:
		h.logger.WithFields(fields).Info("request_complete")
	}
}
