// Package sink 是采集会话的输出文件.
package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrShortWrite 写入字节数少于请求数, 不允许静默丢字节
var ErrShortWrite = errors.New("sink short write")

// Sink 只追加顺序写的输出文件
type Sink struct {
	w       io.WriteCloser
	path    string
	written uint64
	closed  bool
}

// Create 创建或截断 path, 权限 0644
func Create(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create sink %s: %w", path, err)
	}
	return New(path, f), nil
}

// New 包装任意 io.WriteCloser
func New(path string, w io.WriteCloser) *Sink {
	return &Sink{w: w, path: path}
}

func (s *Sink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.written += uint64(n)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", s.path, err)
	}
	if n < len(p) {
		return n, fmt.Errorf("%w: %d of %d bytes to %s", ErrShortWrite, n, len(p), s.path)
	}
	return n, nil
}

func (s *Sink) Path() string    { return s.path }
func (s *Sink) Written() uint64 { return s.written }

func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.w.Close()
}
