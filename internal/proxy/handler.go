package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/frontcache/frontcache/internal/logging"
	"github.com/frontcache/frontcache/internal/server"
)

// Handler 负责缓存未命中时回源：转发请求、复制响应头，并把响应体写入
// server.BodyWriter，由页面缓存中间件决定是否落盘。
type Handler struct {
	client   *http.Client
	logger   *logrus.Logger
	upstream *url.URL
}

// NewHandler constructs an origin handler bound to a single upstream site.
func NewHandler(client *http.Client, logger *logrus.Logger, upstream string) (*Handler, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(upstream))
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("upstream %q must include scheme and host", upstream)
	}
	return &Handler{
		client:   client,
		logger:   logger,
		upstream: parsed,
	}, nil
}

// Handle 实现 server.OriginHandler。回源失败返回 502，该响应不会被缓存。
func (h *Handler) Handle(c fiber.Ctx, route *server.PageRoute) error {
	started := time.Now()
	requestID := server.RequestID(c)
	upstreamURL := h.resolveUpstreamURL(c)

	req, err := h.buildUpstreamRequest(c, upstreamURL)
	if err != nil {
		h.logResult(c, route, upstreamURL.String(), requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logResult(c, route, upstreamURL.String(), requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		h.logResult(c, route, upstreamURL.String(), requestID, resp.StatusCode, started, nil)
		return nil
	}

	_, err = io.Copy(server.BodyWriter(c), resp.Body)
	h.logResult(c, route, upstreamURL.String(), requestID, resp.StatusCode, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("origin stream failed: %v", err))
	}
	return nil
}

func (h *Handler) buildUpstreamRequest(c fiber.Ctx, upstream *url.URL) (*http.Request, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), upstream.String(), bytesReader(c.Body()))
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	// 缓存文件保存明文 HTML，回源时不接受压缩编码。
	req.Header.Del("Accept-Encoding")
	req.Host = upstream.Host
	req.Header.Set("Host", upstream.Host)
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Protocol())
	return req, nil
}

// resolveUpstreamURL keeps any base path configured on the upstream, so an
// origin mounted under /app receives /app/<request path>.
func (h *Handler) resolveUpstreamURL(c fiber.Ctx) *url.URL {
	uri := c.Request().URI()
	target := *h.upstream
	target.Path = strings.TrimSuffix(h.upstream.Path, "/") + string(uri.Path())
	target.RawPath = ""
	target.RawQuery = string(uri.QueryString())
	target.Fragment = ""
	return &target
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	c fiber.Ctx,
	route *server.PageRoute,
	upstream string,
	requestID string,
	status int,
	started time.Time,
	err error,
) {
	ruleName := server.DefaultRuleName
	if route != nil {
		ruleName = route.Name
	}
	fields := logging.RequestFields(requestID, string(c.Request().URI().Path()), ruleName, false)
	fields["action"] = "origin"
	fields["upstream"] = upstream
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("origin_failed")
		return
	}
	h.logger.WithFields(fields).Info("origin_complete")
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

// copyResponseHeaders 透传源站响应头。Content-Length 由 fasthttp 按最终响应体重新计算。
func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || strings.EqualFold(key, fiber.HeaderContentLength) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
