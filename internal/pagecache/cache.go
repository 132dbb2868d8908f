package pagecache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// PageCache 把缓存键映射为根目录下的 HTML 文件，并负责读检查、写入与删除。
// 磁盘布局：
//
//	<root>/<encoded request path>.html   # 整页缓存
//	<root>/parts/<id>.html               # 局部缓存
//
// 文件的 ModTime 是唯一的新鲜度依据，TTL 在读取时由调用方给出。
// PageCache 本身只保存配置，可被所有请求共享；单次请求的状态放在 Session 上。
type PageCache struct {
	fs        afero.Fs
	subfolder string
	front     string
	now       func() time.Time
	recorder  Recorder

	mu   sync.RWMutex
	root string
}

// Options 控制 PageCache 的构造参数，均为普通数据，不依赖全局配置。
type Options struct {
	// Root 是缓存根目录，例如 <CachePath>/frontend。
	Root string
	// Subfolder 是站点挂载的子路径，用于拼接 flush 目标文件名。
	Subfolder string
	// FrontController 是前端控制器文件名，默认 index.php。
	FrontController string
	// Fs 默认使用操作系统文件系统，测试可注入 afero.NewMemMapFs()。
	Fs afero.Fs
	// Recorder 接收命中/写入/清理事件，可为空。
	Recorder Recorder
	// Now 默认 time.Now。
	Now func() time.Time
}

// Recorder 用于观测缓存行为，metrics 包提供 Prometheus 实现。
type Recorder interface {
	Lookup(kind string, hit bool)
	Write(err error)
	Flushed(scope string, n int)
}

type nopRecorder struct{}

func (nopRecorder) Lookup(string, bool) {}
func (nopRecorder) Write(error)         {}
func (nopRecorder) Flushed(string, int) {}

// DefaultFrontController 是未配置时使用的前端控制器名称。
const DefaultFrontController = "index.php"

// New 构建 PageCache。不会检查或创建根目录，写入时才按需创建。
func New(opts Options) (*PageCache, error) {
	if opts.Root == "" {
		return nil, errors.New("cache root required")
	}
	pc := &PageCache{
		fs:        opts.Fs,
		subfolder: opts.Subfolder,
		front:     opts.FrontController,
		now:       opts.Now,
		recorder:  opts.Recorder,
		root:      opts.Root,
	}
	if pc.fs == nil {
		pc.fs = afero.NewOsFs()
	}
	if pc.front == "" {
		pc.front = DefaultFrontController
	}
	if pc.now == nil {
		pc.now = time.Now
	}
	if pc.recorder == nil {
		pc.recorder = nopRecorder{}
	}
	return pc, nil
}

// SetRoot 切换后续操作使用的根目录。
func (p *PageCache) SetRoot(root string) {
	p.mu.Lock()
	p.root = root
	p.mu.Unlock()
}

// Root 返回当前根目录。
func (p *PageCache) Root() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.root
}

// Path 返回 Target 对应的完整文件路径。
func (p *PageCache) Path(t Target) string {
	return filepath.Join(p.Root(), filepath.FromSlash(string(t)))
}

// fresh 实现 now - ttl < mtime。
func (p *PageCache) fresh(modTime time.Time, ttl time.Duration) bool {
	return p.now().Add(-ttl).Before(modTime)
}

// stat 返回文件信息；不存在或为目录时 ok=false。
func (p *PageCache) stat(t Target) (fs.FileInfo, bool, error) {
	info, err := p.fs.Stat(p.Path(t))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if info.IsDir() {
		return nil, false, nil
	}
	return info, true, nil
}

func (p *PageCache) isFresh(t Target, ttl time.Duration) (bool, error) {
	if t.IsZero() {
		return false, nil
	}
	info, ok, err := p.stat(t)
	if err != nil || !ok {
		return false, err
	}
	return p.fresh(info.ModTime(), ttl), nil
}

// load 在缓存新鲜时读取全部内容。
func (p *PageCache) load(t Target, ttl time.Duration) ([]byte, bool, error) {
	fresh, err := p.isFresh(t, ttl)
	if err != nil || !fresh {
		return nil, false, err
	}
	body, err := afero.ReadFile(p.fs, p.Path(t))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache %s: %w", t, err)
	}
	return body, true, nil
}

// serve 在命中时把内容写入 w。
func (p *PageCache) serve(w io.Writer, kind string, t Target, ttl time.Duration) (bool, error) {
	body, hit, err := p.load(t, ttl)
	if err != nil {
		return false, err
	}
	p.recorder.Lookup(kind, hit)
	if !hit {
		return false, nil
	}
	if _, err := w.Write(body); err != nil {
		return true, fmt.Errorf("emit cache %s: %w", t, err)
	}
	return true, nil
}

// ServeFullPageIfFresh 是无状态版本的整页检查，返回 ShortCircuit 时调用方必须停止后续处理。
func (p *PageCache) ServeFullPageIfFresh(w io.Writer, requestPath string, ttl time.Duration) (Decision, error) {
	hit, err := p.serve(w, KindPage, FullPageTarget(requestPath), ttl)
	if hit {
		return ShortCircuit, err
	}
	return Regenerate, err
}

// ServePartialIfFresh 命中时输出 parts/<id>.html 并返回 true，不会中断请求。
func (p *PageCache) ServePartialIfFresh(w io.Writer, id string, ttl time.Duration) (bool, error) {
	return p.serve(w, KindPart, PartialTarget(id), ttl)
}

// IsPartialFresh 仅判断局部缓存是否存在且未过期，不输出内容。空 id 返回 false。
func (p *PageCache) IsPartialFresh(id string, ttl time.Duration) bool {
	fresh, err := p.isFresh(PartialTarget(id), ttl)
	return err == nil && fresh
}

// BeginCapture 开始缓冲输出，End 时写入 target 并转发给 sink。
func (p *PageCache) BeginCapture(sink io.Writer, target Target) *Capture {
	if sink == nil {
		sink = io.Discard
	}
	return &Capture{cache: p, sink: sink, target: target}
}

// write 通过同目录临时文件 + rename 发布内容，避免读者看到半写入的文件。
func (p *PageCache) write(t Target, body []byte) (err error) {
	defer func() { p.recorder.Write(err) }()

	dest := p.Path(t)
	dir := filepath.Dir(dest)
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := afero.TempFile(p.fs, dir, tempPattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = p.fs.Remove(tmpName)
		return err
	}

	if err := p.fs.Rename(tmpName, dest); err != nil {
		_ = p.fs.Remove(tmpName)
		return err
	}
	return nil
}

const tempPattern = ".frontcache-*"

// isTempName 判断文件是否为 write 尚未 Rename 的临时文件。
func isTempName(name string) bool {
	return strings.HasPrefix(name, strings.TrimSuffix(tempPattern, "*"))
}
