package pagecache

import (
	"fmt"
	"io"
	"time"
)

// Decision 是整页检查的结果。ShortCircuit 表示缓存已经作为完整响应输出，
// 请求处理层不得再调用后续 handler。
type Decision int

const (
	// Regenerate 表示未命中或已过期，调用方继续生成内容。
	Regenerate Decision = iota
	// ShortCircuit 表示已输出缓存，请求到此结束。
	ShortCircuit
)

func (d Decision) String() string {
	switch d {
	case ShortCircuit:
		return "short-circuit"
	default:
		return "regenerate"
	}
}

// 缓存条目的种类，用于日志与指标。
const (
	KindPage = "page"
	KindPart = "part"
)

// Session 绑定单个请求：记录请求路径，以及最近一次读检查选定的目标文件，
// 供不带 id 的 BeginCapture 复用。Session 不可跨 goroutine 共享。
type Session struct {
	cache       *PageCache
	requestPath string
	target      Target
}

// Session 为一次请求创建会话。
func (p *PageCache) Session(requestPath string) *Session {
	return &Session{cache: p, requestPath: requestPath}
}

// Target 返回当前选定的目标文件。
func (s *Session) Target() Target {
	return s.target
}

// ServeFullPageIfFresh 以请求路径为键检查整页缓存，命中时输出内容并返回 ShortCircuit。
func (s *Session) ServeFullPageIfFresh(w io.Writer, ttl time.Duration) (Decision, error) {
	s.target = FullPageTarget(s.requestPath)
	hit, err := s.cache.serve(w, KindPage, s.target, ttl)
	if hit {
		return ShortCircuit, err
	}
	return Regenerate, err
}

// ServePartialIfFresh 检查 parts/<id>.html，命中时输出并返回 true。
func (s *Session) ServePartialIfFresh(w io.Writer, id string, ttl time.Duration) (bool, error) {
	s.target = PartialTarget(id)
	return s.cache.serve(w, KindPart, s.target, ttl)
}

// IsPartialFresh 判断局部缓存是否新鲜，并把它选为后续 BeginCapture 的目标。
func (s *Session) IsPartialFresh(id string, ttl time.Duration) bool {
	if t := PartialTarget(id); !t.IsZero() {
		s.target = t
	}
	return s.cache.IsPartialFresh(id, ttl)
}

// BeginCapture 开始缓冲输出。id 非空时目标为 <root>/<id>.html，
// 否则沿用最近一次读检查选定的目标。
func (s *Session) BeginCapture(sink io.Writer, id string) *Capture {
	if id != "" {
		s.target = IDTarget(id)
	}
	return s.cache.BeginCapture(sink, s.target)
}

// BeginPartCapture 开始缓冲输出，目标为 parts/<id>.html。
func (s *Session) BeginPartCapture(sink io.Writer, id string) *Capture {
	s.target = PartialTarget(id)
	return s.cache.BeginCapture(sink, s.target)
}

// Fragment 对应模板中的 cache('id', ttl) ... endcache 区块：
// 局部缓存新鲜时直接输出，否则调用 render 生成、写入 parts/<id>.html 并输出。
func (s *Session) Fragment(w io.Writer, id string, ttl time.Duration, render func(io.Writer) error) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, id)
	}
	hit, err := s.ServePartialIfFresh(w, id, ttl)
	if err != nil {
		return err
	}
	if hit {
		return nil
	}

	capture := s.BeginCapture(w, "")
	if err := render(capture); err != nil {
		_ = capture.Discard()
		return err
	}
	return capture.End()
}
