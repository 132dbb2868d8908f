package main

import (
	"bytes"
	"testing"
)

// useBufferWriters 在测试期间把 stdOut/stdErr 换成内存缓冲，结束后自动还原。
func useBufferWriters(t *testing.T) {
	t.Helper()

	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = &bytes.Buffer{}, &bytes.Buffer{}

	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
}

func stdOutBuffer() *bytes.Buffer {
	return bufferOf(stdOut)
}

func stdErrBuffer() *bytes.Buffer {
	return bufferOf(stdErr)
}

// bufferOf 在未调用 useBufferWriters 时返回空缓冲，断言不会因 nil 而 panic。
func bufferOf(w any) *bytes.Buffer {
	if buf, ok := w.(*bytes.Buffer); ok {
		return buf
	}
	return &bytes.Buffer{}
}
