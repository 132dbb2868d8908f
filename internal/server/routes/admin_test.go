package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontcache/frontcache/internal/config"
	"github.com/frontcache/frontcache/internal/logging"
	"github.com/frontcache/frontcache/internal/metrics"
	"github.com/frontcache/frontcache/internal/pagecache"
	"github.com/frontcache/frontcache/internal/server"
)

const (
	adminRoot  = "/cache/frontend"
	adminToken = "admin-test-token-42"
)

type adminFixture struct {
	app     *fiber.App
	fs      afero.Fs
	metrics *metrics.Collector
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	return newAdminFixtureWithToken(t, adminToken)
}

func newAdminFixtureWithToken(t *testing.T, token string) *adminFixture {
	t.Helper()

	cfg := &config.Config{Global: config.GlobalConfig{ListenPort: 8080, DefaultTTL: config.Duration(time.Minute)}}
	rules, err := server.NewRuleSet(cfg)
	require.NoError(t, err)

	collector := metrics.New(false)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(adminRoot, 0o755))
	pc, err := pagecache.New(pagecache.Options{Root: adminRoot, Subfolder: "/", Fs: fs, Recorder: collector})
	require.NoError(t, err)

	logger := logging.Discard()
	origin := server.OriginHandlerFunc(func(c fiber.Ctx, _ *server.PageRoute) error {
		return c.SendString("origin")
	})
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Cache:      pc,
		Rules:      rules,
		Origin:     origin,
		ListenPort: 8080,
	})
	require.NoError(t, err)

	RegisterAdminRoutes(app, AdminOptions{
		Cache:      pc,
		Logger:     logger,
		Metrics:    collector.Handler(),
		DefaultTTL: time.Minute,
		Token:      token,
	})
	return &adminFixture{app: app, fs: fs, metrics: collector}
}

func (f *adminFixture) seed(t *testing.T, name, body string) {
	t.Helper()
	full := filepath.Join(adminRoot, filepath.FromSlash(name))
	require.NoError(t, f.fs.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, afero.WriteFile(f.fs, full, []byte(body), 0o644))
}

func (f *adminFixture) exists(t *testing.T, name string) bool {
	t.Helper()
	ok, err := afero.Exists(f.fs, filepath.Join(adminRoot, filepath.FromSlash(name)))
	require.NoError(t, err)
	return ok
}

func (f *adminFixture) do(t *testing.T, method, target string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	return f.doWithHeaders(t, method, target, body, map[string]string{
		fiber.HeaderAuthorization: "Bearer " + adminToken,
	})
}

func (f *adminFixture) doWithHeaders(t *testing.T, method, target string, body io.Reader, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, "http://admin.local"+target, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

func deletedCount(t *testing.T, payload []byte) int {
	t.Helper()
	var decoded struct {
		Deleted int `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	return decoded.Deleted
}

func TestFlushPathRoute(t *testing.T) {
	f := newAdminFixture(t)
	f.seed(t, "blog.html", "a")
	f.seed(t, "blog-article-x.html", "b")
	f.seed(t, "about.html", "c")

	resp, payload := f.do(t, http.MethodPost, "/-/flush?path=/blog", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, deletedCount(t, payload))
	assert.True(t, f.exists(t, "blog-article-x.html"))

	resp, payload = f.do(t, http.MethodPost, "/-/flush?path=/blog&recursive=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, deletedCount(t, payload))
	assert.True(t, f.exists(t, "about.html"))
}

func TestFlushPathRouteValidatesQuery(t *testing.T) {
	f := newAdminFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/-/flush", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/-/flush?path=/a&recursive=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFlushPartsRoute(t *testing.T) {
	f := newAdminFixture(t)
	f.seed(t, "parts/a.html", "a")
	f.seed(t, "parts/b.html", "b")
	f.seed(t, "parts/c.html", "c")

	resp, payload := f.do(t, http.MethodPost, "/-/flush/parts?id=a&id=b,missing", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, deletedCount(t, payload))
	assert.True(t, f.exists(t, "parts/c.html"))

	resp, _ = f.do(t, http.MethodPost, "/-/flush/parts", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFlushAllRouteScopes(t *testing.T) {
	f := newAdminFixture(t)
	f.seed(t, "index.html", "a")
	f.seed(t, "blog.html", "b")
	f.seed(t, "parts/menu.html", "c")

	resp, payload := f.do(t, http.MethodPost, "/-/flush/all?scope=parts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, deletedCount(t, payload))
	assert.True(t, f.exists(t, "index.html"))

	resp, _ = f.do(t, http.MethodPost, "/-/flush/all?scope=everything", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, payload = f.do(t, http.MethodPost, "/-/flush/all", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, deletedCount(t, payload))
	assert.False(t, f.exists(t, "blog.html"))
}

func TestPartsRoutes(t *testing.T) {
	f := newAdminFixture(t)

	resp, _ := f.do(t, http.MethodHead, "/-/parts/sidebar", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, payload := f.do(t, http.MethodPut, "/-/parts/sidebar", strings.NewReader("<aside>hi</aside>"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"target":"parts/sidebar.html"}`, string(payload))

	resp, payload = f.do(t, http.MethodGet, "/-/parts/sidebar?ttl=30", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<aside>hi</aside>", string(payload))

	resp, _ = f.do(t, http.MethodHead, "/-/parts/sidebar", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, f.fs.Chtimes(filepath.Join(adminRoot, "parts", "sidebar.html"), old, old))
	resp, _ = f.do(t, http.MethodGet, "/-/parts/sidebar", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/-/parts/sidebar?ttl=soon", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEntriesRoute(t *testing.T) {
	f := newAdminFixture(t)
	f.seed(t, "blog.html", "abc")
	f.seed(t, "parts/menu.html", "m")

	resp, payload := f.do(t, http.MethodGet, "/-/entries", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Root    string         `json:"root"`
		Entries []entryPayload `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, adminRoot, decoded.Root)
	require.Len(t, decoded.Entries, 2)
	assert.Equal(t, "blog.html", decoded.Entries[0].Target)
	assert.Equal(t, pagecache.KindPage, decoded.Entries[0].Kind)
	assert.Equal(t, int64(3), decoded.Entries[0].SizeBytes)
	assert.Equal(t, "parts/menu.html", decoded.Entries[1].Target)
}

func TestMetricsRoute(t *testing.T) {
	f := newAdminFixture(t)
	f.seed(t, "parts/a.html", "a")
	f.do(t, http.MethodPost, "/-/flush/parts?id=a", nil)

	resp, payload := f.do(t, http.MethodGet, "/-/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(payload), `frontcache_flushed_files_total{scope="part"} 1`)
}

func TestMutatingRoutesRequireToken(t *testing.T) {
	mutating := []struct {
		method string
		target string
	}{
		{http.MethodPost, "/-/flush?path=/blog"},
		{http.MethodPost, "/-/flush/parts?id=menu"},
		{http.MethodPost, "/-/flush/all"},
		{http.MethodPut, "/-/parts/menu"},
	}
	credentials := map[string]map[string]string{
		"missing":      nil,
		"wrong bearer": {fiber.HeaderAuthorization: "Bearer not-the-admin-token"},
		"basic scheme": {fiber.HeaderAuthorization: "Basic " + adminToken},
		"wrong header": {HeaderAdminToken: adminToken + "x"},
	}

	f := newAdminFixture(t)
	f.seed(t, "blog.html", "a")
	f.seed(t, "parts/menu.html", "m")

	for name, headers := range credentials {
		for _, route := range mutating {
			t.Run(name+" "+route.method+" "+route.target, func(t *testing.T) {
				resp, payload := f.doWithHeaders(t, route.method, route.target, strings.NewReader("<nav>x</nav>"), headers)
				assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
				assert.JSONEq(t, `{"error":"unauthorized"}`, string(payload))
			})
		}
	}
	assert.True(t, f.exists(t, "blog.html"))
	assert.True(t, f.exists(t, "parts/menu.html"))

	resp, payload := f.doWithHeaders(t, http.MethodPost, "/-/flush?path=/blog", nil, map[string]string{HeaderAdminToken: adminToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, deletedCount(t, payload))
}

func TestMutatingRoutesDisabledWithoutToken(t *testing.T) {
	f := newAdminFixtureWithToken(t, "")
	f.seed(t, "index.html", "a")

	resp, payload := f.do(t, http.MethodPost, "/-/flush/all", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.JSONEq(t, `{"error":"admin_disabled"}`, string(payload))
	assert.True(t, f.exists(t, "index.html"))

	resp, _ = f.doWithHeaders(t, http.MethodGet, "/-/entries", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadOnlyRoutesStayOpen(t *testing.T) {
	f := newAdminFixture(t)
	f.seed(t, "parts/menu.html", "m")

	resp, payload := f.doWithHeaders(t, http.MethodGet, "/-/parts/menu", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "m", string(payload))

	resp, _ = f.doWithHeaders(t, http.MethodGet, "/-/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
