package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrCancelled 退出标志已置位
	ErrCancelled = errors.New("device wait cancelled")
	// ErrWatchInit 监控机制本身不可用, 进程应当退出
	ErrWatchInit   = errors.New("watch init failed")
	ErrUnsupported = errors.New("watch backend unsupported on this platform")
	ErrInvalidName = errors.New("invalid device name")
)

const (
	BackendInotify  = "inotify"
	BackendFsnotify = "fsnotify"
	BackendUdev     = "udev"
)

// NAME_MAX
const maxNameLen = 255

// DeviceWatcher 阻塞直到 dir 下出现名为 name 的目录项
type DeviceWatcher interface {
	WaitForArrival(ctx context.Context, dir, name string) error
}

func New(backend string, log *zap.Logger) (DeviceWatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch backend {
	case BackendInotify, "":
		return newInotifyWatcher(log)
	case BackendFsnotify:
		return &fsnotifyWatcher{log: log}, nil
	case BackendUdev:
		return newUdevWatcher(log)
	}
	return nil, fmt.Errorf("unknown watch backend %q", backend)
}

// ValidateName 只接受不含路径分隔符的文件名
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case len(name) > maxNameLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, maxNameLen)
	}
	return nil
}

// precheck 在注册监控前检查名称和退出标志
func precheck(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}
