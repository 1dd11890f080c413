// Package shutdown 提供进程级的退出标志.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
)

// Flag 一次性置位的退出标志, 置位后不会复位
// 必须通过 New 创建
type Flag struct {
	set  atomic.Bool
	once sync.Once
	done chan struct{}
}

func New() *Flag {
	return &Flag{done: make(chan struct{})}
}

// Set 请求退出, 可重复调用
func (f *Flag) Set() {
	f.once.Do(func() {
		f.set.Store(true)
		close(f.done)
	})
}

func (f *Flag) IsSet() bool { return f.set.Load() }

// Done 置位时关闭
func (f *Flag) Done() <-chan struct{} { return f.done }

// Context 返回一个在标志置位时被取消的 context
func (f *Flag) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-f.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Notify 收到任一信号时置位标志, 返回的 stop 用于解除信号注册
// 只接管第一次信号, 之后恢复默认行为, 再按一次 Ctrl-C 可强制退出
func (f *Flag) Notify(sigs ...os.Signal) (stop func()) {
	return f.notify(make(chan os.Signal, 1), sigs...)
}

func (f *Flag) notify(sigCh chan os.Signal, sigs ...os.Signal) func() {
	signal.Notify(sigCh, sigs...)
	quit := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			signal.Stop(sigCh)
			f.Set()
		case <-quit:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(quit)
		})
	}
}
