package sysutil

import (
	"context"
	"fmt"
	"os"
	"time"
)

// 事件到达后设备节点可能还在初始化, 最多再轮询 3 秒
var (
	settleAttempts = 30
	settleInterval = 100 * time.Millisecond
)

// Settle 等待 delay 后确认设备节点存在
func Settle(ctx context.Context, path string, delay time.Duration) error {
	if err := Sleep(ctx, delay); err != nil {
		return err
	}
	for i := 0; i < settleAttempts; i++ {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if err := Sleep(ctx, settleInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("device node %s not present after settle", path)
}

// Sleep 可被 ctx 打断的 sleep
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
