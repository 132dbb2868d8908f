package pagecache

import (
	"bytes"
	"fmt"
	"io"
)

// Capture 在内存中缓冲输出，End 时先落盘再转发给 sink。
type Capture struct {
	cache  *PageCache
	sink   io.Writer
	target Target
	buf    bytes.Buffer
	closed bool
}

// Write 追加到缓冲区，不会触达 sink。
func (c *Capture) Write(p []byte) (int, error) {
	if c.closed {
		return 0, ErrCaptureClosed
	}
	return c.buf.Write(p)
}

// WriteString 便于模板直接输出字符串。
func (c *Capture) WriteString(s string) (int, error) {
	if c.closed {
		return 0, ErrCaptureClosed
	}
	return c.buf.WriteString(s)
}

// Bytes 返回当前缓冲的内容。
func (c *Capture) Bytes() []byte {
	return c.buf.Bytes()
}

// Target 返回本次捕获的目标文件。
func (c *Capture) Target() Target {
	return c.target
}

// End 将缓冲写入目标文件，然后把同样的内容写给 sink。
// 落盘失败不会阻止输出：sink 总会收到内容，落盘错误随后返回。
func (c *Capture) End() (err error) {
	if c.closed {
		return ErrCaptureClosed
	}
	c.closed = true

	defer func() {
		if flushErr := c.flush(); flushErr != nil && err == nil {
			err = flushErr
		}
	}()

	if c.target.IsZero() {
		return ErrNoTarget
	}
	if err := c.cache.write(c.target, c.buf.Bytes()); err != nil {
		return fmt.Errorf("write cache %s: %w", c.target, err)
	}
	return nil
}

// Discard 只把缓冲转发给 sink，不写缓存。用于非 200 响应或渲染失败。
func (c *Capture) Discard() error {
	if c.closed {
		return ErrCaptureClosed
	}
	c.closed = true
	return c.flush()
}

func (c *Capture) flush() error {
	if c.buf.Len() == 0 {
		return nil
	}
	if _, err := c.sink.Write(c.buf.Bytes()); err != nil {
		return fmt.Errorf("flush captured output: %w", err)
	}
	return nil
}
