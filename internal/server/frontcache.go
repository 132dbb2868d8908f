package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/frontcache/frontcache/internal/logging"
	"github.com/frontcache/frontcache/internal/pagecache"
)

// Cache status values reported in the X-Frontcache response header.
const (
	HeaderCacheStatus = "X-Frontcache"
	cacheStatusHit    = "hit"
	cacheStatusMiss   = "miss"
	cacheStatusBypass = "bypass"
)

// fullPageCacheMiddleware serves fresh pages straight from disk and stops the
// chain there. On a miss it redirects handler output into a capture, then
// persists shareable HTML responses once the chain returns.
func fullPageCacheMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		path := requestPath(c)
		if isAdminPath(path) {
			return c.Next()
		}

		route, _ := getRouteFromContext(c)
		if !cacheable(c, route) {
			c.Set(HeaderCacheStatus, cacheStatusBypass)
			return c.Next()
		}

		started := time.Now()
		session := opts.Cache.Session(path)
		decision, err := session.ServeFullPageIfFresh(c.Response().BodyWriter(), route.TTL)
		if err != nil {
			opts.Logger.WithError(err).
				WithFields(logging.RequestFields(RequestID(c), path, route.Name, decision == pagecache.ShortCircuit)).
				Warn("cache_read_failed")
		}
		if decision == pagecache.ShortCircuit {
			c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
			c.Set(HeaderCacheStatus, cacheStatusHit)
			c.Status(fiber.StatusOK)
			logPage(opts.Logger, c, path, route, true, started, nil)
			return nil
		}

		capture := session.BeginCapture(c.Response().BodyWriter(), "")
		c.Locals(contextKeyCapture, capture)
		c.Set(HeaderCacheStatus, cacheStatusMiss)

		if err := c.Next(); err != nil {
			_ = capture.Discard()
			return err
		}

		adoptResponseBody(c, capture)
		if !storable(c) {
			_ = capture.Discard()
			logPage(opts.Logger, c, path, route, false, started, nil)
			return nil
		}

		endErr := capture.End()
		logPage(opts.Logger, c, path, route, false, started, endErr)
		return nil
	}
}

// cacheable 只处理匿名 GET：带 Cookie 或 Authorization 的请求可能拿到个性化内容。
func cacheable(c fiber.Ctx, route *PageRoute) bool {
	if route == nil || route.Bypass || route.TTL <= 0 {
		return false
	}
	if c.Method() != http.MethodGet {
		return false
	}
	if c.Get(fiber.HeaderCookie) != "" || c.Get(fiber.HeaderAuthorization) != "" {
		return false
	}
	return len(c.Request().URI().QueryString()) == 0
}

// storable reports whether the finished response may be replayed to other
// clients. Hits are always served as text/html, so only HTML is persisted.
func storable(c fiber.Ctx) bool {
	resp := c.Response()
	if resp.StatusCode() != fiber.StatusOK {
		return false
	}
	if len(resp.Header.Peek(fiber.HeaderSetCookie)) > 0 {
		return false
	}
	if privateCacheControl(string(resp.Header.Peek(fiber.HeaderCacheControl))) {
		return false
	}
	return isHTML(string(resp.Header.ContentType()))
}

func privateCacheControl(value string) bool {
	for _, directive := range strings.Split(value, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(directive), "=")
		switch strings.ToLower(name) {
		case "private", "no-store", "no-cache":
			return true
		}
	}
	return false
}

func isHTML(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), fiber.MIMETextHTML)
}

// adoptResponseBody moves a body set directly on the response (c.SendString
// and friends) into the capture so it is cached like streamed output.
func adoptResponseBody(c fiber.Ctx, capture *pagecache.Capture) {
	if len(capture.Bytes()) > 0 {
		return
	}
	body := c.Response().Body()
	if len(body) == 0 {
		return
	}
	_, _ = capture.Write(append([]byte(nil), body...))
	c.Response().ResetBody()
}

// BodyWriter returns the writer handlers should render into: the active
// capture on a cacheable miss, otherwise the raw response body.
func BodyWriter(c fiber.Ctx) io.Writer {
	if value := c.Locals(contextKeyCapture); value != nil {
		if capture, ok := value.(*pagecache.Capture); ok {
			return capture
		}
	}
	return c.Response().BodyWriter()
}

func logPage(logger *logrus.Logger, c fiber.Ctx, path string, route *PageRoute, hit bool, started time.Time, err error) {
	fields := logging.RequestFields(RequestID(c), path, route.Name, hit)
	fields["action"] = "page"
	fields["status"] = c.Response().StatusCode()
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		logger.WithError(err).WithFields(fields).Error("cache_write_failed")
		return
	}
	logger.WithFields(fields).Debug("page served")
}
