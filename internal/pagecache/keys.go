package pagecache

import (
	"strings"
)

const (
	// PartsDir 是局部缓存所在的子目录，与整页缓存互不干扰。
	PartsDir = "parts"

	fileExt       = ".html"
	indexName     = "index"
	keySeparator  = "-"
	pathSeparator = "/"
)

// Target 表示相对缓存根目录的文件名，例如 "blog-article.html" 或 "parts/latestuser.html"。
type Target string

// IsZero 返回 Target 是否尚未选定。
func (t Target) IsZero() bool {
	return t == ""
}

// encodePath 将 URL 风格路径压平为单个文件名片段：去掉首尾各一个 "/"，其余 "/" 替换为 "-"。
func encodePath(p string) string {
	p = strings.TrimPrefix(p, pathSeparator)
	p = strings.TrimSuffix(p, pathSeparator)
	return strings.ReplaceAll(p, pathSeparator, keySeparator)
}

// FullPageTarget 根据请求路径计算整页缓存文件名。空路径与 "/" 统一映射为 index.html。
func FullPageTarget(requestPath string) Target {
	key := encodePath(requestPath)
	if key == "" {
		key = indexName
	}
	return Target(key + fileExt)
}

// PartialTarget 返回局部缓存 parts/<id>.html；id 非法时返回空 Target。
func PartialTarget(id string) Target {
	if !validID(id) {
		return ""
	}
	return Target(PartsDir + pathSeparator + id + fileExt)
}

// IDTarget 返回根目录下的 <id>.html，对应带 id 的 BeginCapture。
func IDTarget(id string) Target {
	if !validID(id) {
		return ""
	}
	return Target(id + fileExt)
}

func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}

// FlushPlan 描述一次按 URL 清理所需删除的候选文件与递归前缀。
type FlushPlan struct {
	Files    []Target
	Prefixes []string
}

// PlanFlush 依据子目录前缀与前端控制器名称计算 URL 对应的缓存文件。
// 每个 URL 都会生成两个候选：路由省略前端控制器、路由包含前端控制器。
func PlanFlush(subfolder, frontController, url string) FlushPlan {
	sub := strings.Trim(subfolder, pathSeparator)

	if url == "" || url == pathSeparator {
		withFront := joinURL(sub, frontController)
		bare := sub
		if bare == "" {
			bare = indexName
		}
		return FlushPlan{
			Files: []Target{
				Target(encodePath(withFront) + fileExt),
				Target(encodePath(bare) + fileExt),
			},
		}
	}

	url = strings.TrimPrefix(url, pathSeparator)
	plain := encodePath(joinURL(sub, url))
	fronted := encodePath(joinURL(sub, frontController, url))

	return FlushPlan{
		Files:    []Target{Target(plain + fileExt), Target(fronted + fileExt)},
		Prefixes: []string{plain, fronted},
	}
}

func joinURL(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, pathSeparator); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, pathSeparator)
}

// MatchPrefix 返回 names 中以任一前缀开头的文件名，保持输入顺序。
// 这是纯字符串前缀匹配：前缀 "blog" 同样会命中 "blog2.html"。空前缀被忽略。
func MatchPrefix(names []string, prefixes ...string) []string {
	var matched []string
	for _, name := range names {
		for _, prefix := range prefixes {
			if prefix != "" && strings.HasPrefix(name, prefix) {
				matched = append(matched, name)
				break
			}
		}
	}
	return matched
}
