package pagecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullPageTarget(t *testing.T) {
	cases := []struct {
		path string
		want Target
	}{
		{"", "index.html"},
		{"/", "index.html"},
		{"/blog", "blog.html"},
		{"/blog/", "blog.html"},
		{"/blog/article/x", "blog-article-x.html"},
		{"/myapp/index.php/blog", "myapp-index.php-blog.html"},
		{"blog//", "blog-.html"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FullPageTarget(tc.path), "path %q", tc.path)
	}
}

func TestPartialTargetRejectsInvalidIDs(t *testing.T) {
	assert.Equal(t, Target("parts/latestuser.html"), PartialTarget("latestuser"))
	for _, id := range []string{"", ".", "..", "a/b", `a\b`, "../escape"} {
		assert.True(t, PartialTarget(id).IsZero(), "id %q", id)
		assert.True(t, IDTarget(id).IsZero(), "id %q", id)
	}
	assert.Equal(t, Target("sidebar.html"), IDTarget("sidebar"))
}

func TestPlanFlushRoot(t *testing.T) {
	plan := PlanFlush("/", "index.php", "/")
	assert.Equal(t, []Target{"index.php.html", "index.html"}, plan.Files)
	assert.Empty(t, plan.Prefixes)

	plan = PlanFlush("/myapp/", "index.php", "/")
	assert.Equal(t, []Target{"myapp-index.php.html", "myapp.html"}, plan.Files)

	assert.Equal(t, PlanFlush("", "index.php", "/"), PlanFlush("", "index.php", ""))
}

func TestPlanFlushMatchesFullPageTargets(t *testing.T) {
	plan := PlanFlush("/myapp/", "index.php", "/blog/article")
	assert.Equal(t, []Target{
		FullPageTarget("/myapp/blog/article"),
		FullPageTarget("/myapp/index.php/blog/article"),
	}, plan.Files)
	assert.Equal(t, []string{"myapp-blog-article", "myapp-index.php-blog-article"}, plan.Prefixes)

	root := PlanFlush("/myapp/", "index.php", "/")
	assert.Contains(t, root.Files, FullPageTarget("/myapp/"))
	assert.Contains(t, root.Files, FullPageTarget("/myapp/index.php"))
}

func TestMatchPrefix(t *testing.T) {
	names := []string{"blog.html", "blog-article-x.html", "other.html", "index.php-blog.html", "blog2.html"}

	got := MatchPrefix(names, "blog", "index.php-blog")
	// plain string prefixes: blog2.html is included as well
	assert.Equal(t, []string{"blog.html", "blog-article-x.html", "index.php-blog.html", "blog2.html"}, got)

	assert.Empty(t, MatchPrefix(names, ""))
	assert.Empty(t, MatchPrefix(nil, "blog"))
}
