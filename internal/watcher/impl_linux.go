//go:build linux

package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hara602/devreader/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// inotify 读缓冲区, 至少容纳一条 header + NAME_MAX + 1
const eventBufLen = 4096

type inotifyWatcher struct {
	log *zap.Logger
	// 轮询退出标志的间隔
	tick time.Duration
}

func newInotifyWatcher(log *zap.Logger) (DeviceWatcher, error) {
	return &inotifyWatcher{log: log, tick: 200 * time.Millisecond}, nil
}

func (w *inotifyWatcher) WaitForArrival(ctx context.Context, dir, name string) error {
	if err := precheck(ctx, name); err != nil {
		return err
	}

	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return fmt.Errorf("%w: inotify_init: %w", ErrWatchInit, err)
	}
	defer unix.Close(fd)

	wd, err := unix.InotifyAddWatch(fd, dir, unix.IN_CREATE)
	if err != nil {
		return fmt.Errorf("%w: inotify_add_watch %s: %w", ErrWatchInit, dir, err)
	}
	defer unix.InotifyRmWatch(fd, uint32(wd))

	var buf [eventBufLen]byte
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		if ctx.Err() != nil {
			return ErrCancelled
		}

		n, err := unix.Poll(fds, pollMillis(w.tick))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll inotify: %w", err)
		}
		if n == 0 {
			continue
		}

		n, err = unix.Read(fd, buf[:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("read inotify: %w", err)
		}

		for ev, err := range DecodeEvents(buf[:n]) {
			if err != nil {
				return fmt.Errorf("decode inotify: %w", err)
			}
			w.log.Debug("watch event", zap.String("name", ev.Name), zap.Stringer("kind", ev.Kind))
			if ev.Kind == model.Created && ev.Name == name {
				return nil
			}
		}
	}
}

// pollMillis 向上取整到毫秒, 避免亚毫秒超时变成 0 (立即返回)
func pollMillis(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}
