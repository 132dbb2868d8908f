package pagecache

import "errors"

var (
	// ErrInvalidKey 表示局部缓存 id 为空或包含路径分隔符。
	ErrInvalidKey = errors.New("invalid cache key")
	// ErrNoTarget 表示 End 时没有任何操作选定过目标文件。
	ErrNoTarget = errors.New("capture target not selected")
	// ErrCaptureClosed 表示对已经 End/Discard 的 Capture 再次写入。
	ErrCaptureClosed = errors.New("capture already closed")
)
