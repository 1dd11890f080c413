// Package device 以非阻塞方式打开字符设备并读取字节流.
package device

import (
	"errors"
	"time"
)

var (
	// ErrOpenFailed 设备不存在或无权限, 只结束当前会话
	ErrOpenFailed = errors.New("device open failed")
	// ErrWouldBlock 暂无数据, 调用方重试即可
	ErrWouldBlock = errors.New("device would block")
	// ErrReadFailed 其他读错误, 结束会话
	ErrReadFailed = errors.New("device read failed")
	// ErrPollFailed poll 出错或设备报告 POLLERR/POLLHUP
	ErrPollFailed = errors.New("device poll failed")
	// ErrUnsupportedBaud 不支持的波特率
	ErrUnsupportedBaud = errors.New("unsupported baud rate")
)

// Source 会话使用的设备句柄
type Source interface {
	// Poll 最多等待 timeout, 有数据可读时返回 true
	Poll(timeout time.Duration) (bool, error)
	// Read 返回 0 字节不是错误 (设备仍在线, 只是没有数据)
	Read(buf []byte) (int, error)
	Close() error
}
