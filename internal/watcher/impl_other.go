//go:build !linux

package watcher

import "go.uber.org/zap"

func newInotifyWatcher(*zap.Logger) (DeviceWatcher, error) { return nil, ErrUnsupported }
func newUdevWatcher(*zap.Logger) (DeviceWatcher, error)    { return nil, ErrUnsupported }
