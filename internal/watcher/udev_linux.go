//go:build linux

package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ueventSource 一条 uevent 消息流
type ueventSource interface {
	// Wait 等待可读, 超时返回 false
	Wait(timeout time.Duration) (bool, error)
	ReadMsg() ([]byte, error)
	Close() error
}

type udevWatcher struct {
	log  *zap.Logger
	tick time.Duration
	dial func() (ueventSource, error)
}

func newUdevWatcher(log *zap.Logger) (DeviceWatcher, error) {
	return &udevWatcher{log: log, tick: 200 * time.Millisecond, dial: dialUdev}, nil
}

func (w *udevWatcher) WaitForArrival(ctx context.Context, dir, name string) error {
	if err := precheck(ctx, name); err != nil {
		return err
	}

	src, err := w.dial()
	if err != nil {
		return fmt.Errorf("%w: udev netlink: %w", ErrWatchInit, err)
	}
	defer src.Close()

	for {
		if ctx.Err() != nil {
			return ErrCancelled
		}

		ready, err := src.Wait(w.tick)
		if err != nil {
			return fmt.Errorf("poll udev: %w", err)
		}
		if !ready {
			continue
		}

		msg, err := src.ReadMsg()
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("read udev: %w", err)
		}

		uevent, err := netlink.ParseUEvent(msg)
		if err != nil {
			// 忽略无法解析的消息，继续监听
			w.log.Debug("udev parse error", zap.Error(err))
			continue
		}
		if matchUEvent(*uevent, dir, name) {
			w.log.Debug("udev add", zap.String("devpath", uevent.Env["DEVPATH"]))
			return nil
		}
	}
}

// netlinkSource NETLINK_KOBJECT_UEVENT 连接, 读取在调用方的 goroutine 里完成
type netlinkSource struct {
	conn *netlink.UEventConn
}

func dialUdev() (ueventSource, error) {
	// 监听 UDEV 事件,连接 NETLINK_KOBJECT_UEVENT
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, err
	}
	return &netlinkSource{conn: conn}, nil
}

func (s *netlinkSource) Wait(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(s.conn.Fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, pollMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		return false, fmt.Errorf("netlink socket revents=0x%x", fds[0].Revents)
	}
	return fds[0].Revents&unix.POLLIN != 0, nil
}

func (s *netlinkSource) ReadMsg() ([]byte, error) { return s.conn.ReadMsg() }

func (s *netlinkSource) Close() error { return s.conn.Close() }

// matchUEvent 判断 uevent 是否是目标设备节点的 add 事件
// DEVNAME 示例: ttyACM1 或 /dev/ttyACM1
func matchUEvent(uevent netlink.UEvent, dir, name string) bool {
	if uevent.Action != "add" {
		return false
	}
	devName := uevent.Env["DEVNAME"]
	if devName == "" {
		return false
	}
	if !strings.HasPrefix(devName, "/") {
		devName = filepath.Join("/dev", devName)
	}
	return filepath.Base(devName) == name && filepath.Dir(devName) == filepath.Clean(dir)
}
