package routes

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/sirupsen/logrus"

	"github.com/frontcache/frontcache/internal/config"
	"github.com/frontcache/frontcache/internal/logging"
	"github.com/frontcache/frontcache/internal/pagecache"
)

// HeaderAdminToken 是 Authorization: Bearer 之外另一种携带管理口令的方式。
const HeaderAdminToken = "X-Frontcache-Token"

// AdminOptions 描述 /-/ 管理接口依赖的组件。Metrics 为空时不暴露 /-/metrics。
// Token 为空时，清理与写入类接口一律返回 403。
type AdminOptions struct {
	Cache      *pagecache.PageCache
	Logger     *logrus.Logger
	Metrics    http.Handler
	DefaultTTL time.Duration
	Token      string
}

// RegisterAdminRoutes 暴露缓存清理、局部缓存读写与条目列表接口。
func RegisterAdminRoutes(app *fiber.App, opts AdminOptions) {
	if app == nil || opts.Cache == nil || opts.Logger == nil {
		return
	}
	guard := requireAdminToken(opts.Token, opts.Logger)

	app.Post("/-/flush", guard, func(c fiber.Ctx) error {
		path := c.Query("path")
		if path == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path_required"})
		}
		recursive, err := parseBool(c.Query("recursive"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_recursive"})
		}
		return runFlush(c, opts.Logger, pagecache.ScopePath, path, func() (int, error) {
			return opts.Cache.FlushPath(path, recursive)
		})
	})

	app.Post("/-/flush/parts", guard, func(c fiber.Ctx) error {
		ids := queryValues(c, "id")
		if len(ids) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id_required"})
		}
		return runFlush(c, opts.Logger, pagecache.ScopePart, strings.Join(ids, ","), func() (int, error) {
			return opts.Cache.FlushPartial(ids...)
		})
	})

	app.Post("/-/flush/all", guard, func(c fiber.Ctx) error {
		scope := strings.ToLower(strings.TrimSpace(c.Query("scope")))
		if scope == "" {
			scope = "all"
		}
		var flush func() (int, error)
		switch scope {
		case pagecache.ScopeFull:
			flush = opts.Cache.FlushAllFull
		case pagecache.ScopeParts:
			flush = opts.Cache.FlushAllPartial
		case "all":
			flush = opts.Cache.FlushAll
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_scope"})
		}
		return runFlush(c, opts.Logger, scope, "", flush)
	})

	app.Get("/-/parts/:id", func(c fiber.Ctx) error {
		id := c.Params("id")
		ttl, err := parseTTL(c.Query("ttl"), opts.DefaultTTL)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_ttl"})
		}
		if pagecache.PartialTarget(id).IsZero() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_id"})
		}
		if c.Method() == fiber.MethodHead {
			if opts.Cache.IsPartialFresh(id, ttl) {
				return c.SendStatus(fiber.StatusOK)
			}
			return c.SendStatus(fiber.StatusNotFound)
		}

		hit, err := opts.Cache.ServePartialIfFresh(c.Response().BodyWriter(), id, ttl)
		if err != nil {
			opts.Logger.WithError(err).WithField("part", id).Warn("part_read_failed")
		}
		if !hit {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "part_not_fresh"})
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		c.Status(fiber.StatusOK)
		return nil
	})

	app.Put("/-/parts/:id", guard, func(c fiber.Ctx) error {
		id := c.Params("id")
		if pagecache.PartialTarget(id).IsZero() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_id"})
		}
		capture := opts.Cache.Session("").BeginPartCapture(io.Discard, id)
		if _, err := capture.Write(c.Body()); err != nil {
			_ = capture.Discard()
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "part_write_failed"})
		}
		if err := capture.End(); err != nil {
			opts.Logger.WithError(err).WithField("part", id).Error("part_write_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "part_write_failed"})
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"target": capture.Target()})
	})

	app.Get("/-/entries", func(c fiber.Ctx) error {
		entries, err := opts.Cache.Entries()
		if err != nil {
			opts.Logger.WithError(err).Error("entries_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "entries_failed"})
		}
		return c.JSON(fiber.Map{
			"root":    opts.Cache.Root(),
			"entries": encodeEntries(entries),
		})
	})

	if opts.Metrics != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(opts.Metrics))
	}
}

// requireAdminToken 拦截修改缓存的请求，口令按常量时间比较。
func requireAdminToken(token string, logger *logrus.Logger) fiber.Handler {
	expected := []byte(token)
	return func(c fiber.Ctx) error {
		if len(expected) == 0 {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin_disabled"})
		}
		if subtle.ConstantTimeCompare([]byte(presentedToken(c)), expected) != 1 {
			logger.WithFields(logrus.Fields{
				"action": "admin_auth",
				"method": c.Method(),
				"path":   c.Path(),
				"ip":     c.IP(),
			}).Warn("admin_unauthorized")
			c.Set(fiber.HeaderWWWAuthenticate, `Bearer realm="frontcache"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		return c.Next()
	}
}

func presentedToken(c fiber.Ctx) string {
	if token := c.Get(HeaderAdminToken); token != "" {
		return token
	}
	scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func runFlush(c fiber.Ctx, logger *logrus.Logger, scope, target string, flush func() (int, error)) error {
	started := time.Now()
	deleted, err := flush()
	fields := logging.FlushFields(scope, target, deleted, time.Since(started))
	if err != nil {
		logger.WithError(err).WithFields(fields).Error("flush_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "flush_failed",
			"deleted": deleted,
		})
	}
	logger.WithFields(fields).Info("flush_complete")
	return c.JSON(fiber.Map{"deleted": deleted})
}

type entryPayload struct {
	Target     string    `json:"target"`
	Kind       string    `json:"kind"`
	SizeBytes  int64     `json:"size_bytes"`
	ModTime    time.Time `json:"mod_time"`
	AgeSeconds int64     `json:"age_seconds"`
}

func encodeEntries(entries []pagecache.Entry) []entryPayload {
	now := time.Now()
	result := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entryPayload{
			Target:     string(entry.Target),
			Kind:       entry.Kind,
			SizeBytes:  entry.SizeBytes,
			ModTime:    entry.ModTime,
			AgeSeconds: int64(entry.Age(now) / time.Second),
		})
	}
	return result
}

func queryValues(c fiber.Ctx, key string) []string {
	var values []string
	for _, raw := range c.Request().URI().QueryArgs().PeekMulti(key) {
		for _, part := range strings.Split(string(raw), ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	}
	return values
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

// parseTTL 接受纯秒数或 Go duration 字符串，空值回退到 fallback。
func parseTTL(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	var d config.Duration
	if err := d.UnmarshalText([]byte(raw)); err != nil {
		return 0, err
	}
	if d.DurationValue() < 0 {
		return 0, errors.New("ttl must not be negative")
	}
	return d.DurationValue(), nil
}
