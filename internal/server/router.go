package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/frontcache/frontcache/internal/pagecache"
)

// OriginHandler describes the component that produces a page when the cache
// cannot serve it. It allows injecting fake handlers during tests.
type OriginHandler interface {
	Handle(fiber.Ctx, *PageRoute) error
}

// OriginHandlerFunc adapts a function to the OriginHandler interface.
type OriginHandlerFunc func(fiber.Ctx, *PageRoute) error

// Handle makes OriginHandlerFunc satisfy OriginHandler.
func (f OriginHandlerFunc) Handle(c fiber.Ctx, route *PageRoute) error {
	return f(c, route)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Cache      *pagecache.PageCache
	Rules      *RuleSet
	Origin     OriginHandler
	ListenPort int
}

const (
	contextKeyRoute     = "_frontcache_route"
	contextKeyRequestID = "_frontcache_request_id"
	contextKeyCapture   = "_frontcache_capture"
)

// NewApp builds a Fiber application with path rule lookup, the full-page
// cache middleware and structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("page cache is required")
	}
	if opts.Rules == nil {
		return nil, errors.New("rule set is required")
	}
	if opts.Origin == nil {
		return nil, errors.New("origin handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))
	app.Use(fullPageCacheMiddleware(opts))

	app.All("/*", func(c fiber.Ctx) error {
		if isAdminPath(requestPath(c)) {
			return c.Next()
		}
		route, _ := getRouteFromContext(c)
		return opts.Origin.Handle(c, route)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并按路径前缀查找缓存规则。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		path := requestPath(c)
		if isAdminPath(path) {
			return c.Next()
		}

		c.Locals(contextKeyRoute, opts.Rules.Lookup(path))
		return c.Next()
	}
}

func getRouteFromContext(c fiber.Ctx) (*PageRoute, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*PageRoute); ok {
			return route, true
		}
	}
	return nil, false
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

func requestPath(c fiber.Ctx) string {
	p := string(c.Request().URI().Path())
	if p == "" {
		return "/"
	}
	return p
}

func isAdminPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
