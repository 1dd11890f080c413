//go:build linux

package device

import (
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sys/unix"
)

// Handle 持有一个非阻塞的设备描述符
type Handle struct {
	fd     int
	path   string
	hangup bool
	closed bool
}

// Open 以 O_RDWR|O_NONBLOCK 打开设备
func Open(path string) (*Handle, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, path, err)
	}
	return &Handle{fd: fd, path: path}, nil
}

func (h *Handle) Poll(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(h.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, pollMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrPollFailed, err)
	}
	if n == 0 {
		return false, nil
	}

	revents := fds[0].Revents
	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		return false, fmt.Errorf("%w: %s revents=0x%x", ErrPollFailed, h.path, revents)
	}
	if revents&unix.POLLHUP != 0 {
		// 挂断后可能还有残留数据, 先读完, 读到 0 字节时由 Read 报错
		h.hangup = true
		if revents&unix.POLLIN == 0 {
			return false, fmt.Errorf("%w: %s hangup", ErrPollFailed, h.path)
		}
	}
	return revents&unix.POLLIN != 0, nil
}

func (h *Handle) Read(buf []byte) (int, error) {
	n, err := unix.Read(h.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("%w: %s: %w", ErrReadFailed, h.path, err)
	}
	if n == 0 && h.hangup {
		return 0, fmt.Errorf("%w: %s: %w", ErrReadFailed, h.path, io.EOF)
	}
	return n, nil
}

func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return unix.Close(h.fd)
}

// pollMillis 向上取整到毫秒, 500us 不能变成 0
func pollMillis(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}
