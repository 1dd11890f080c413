// Package capture 等待设备出现并把它的字节流保存到文件, 设备拔出后重新等待.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/Hara602/devreader/internal/device"
	"github.com/Hara602/devreader/internal/model"
	"github.com/Hara602/devreader/internal/sink"
	"github.com/Hara602/devreader/internal/sysutil"
	"github.com/Hara602/devreader/internal/usbinfo"
	"github.com/Hara602/devreader/internal/watcher"
	"go.uber.org/zap"
)

// BufferSize 每次读写的缓冲区大小
const BufferSize = 4096

const (
	DefaultPollTimeout      = 5 * time.Second
	DefaultSettleDelay      = time.Second
	DefaultProgressInterval = time.Second
)

var ErrDeviceBlocked = errors.New("device blocked by policy")

type Config struct {
	WatchDir         string
	Device           string
	OutputDir        string
	PollTimeout      time.Duration
	SettleDelay      time.Duration
	Baud             int // 0 表示不修改线路设置
	ProgressInterval time.Duration
}

// Policy 决定设备是否允许采集
type Policy interface {
	IsBlocked(vid, pid, serial string) (bool, string, error)
}

// Recorder 接收会话进度, 由 metrics 实现
type Recorder interface {
	StateChanged(id string, state model.SessionState)
	FileOpened(id, file string)
	BytesCaptured(n int)
	SessionEnded(res model.SessionResult)
}

// Deps 会话的外部协作者, 为空的字段使用默认实现
type Deps struct {
	Watcher  watcher.DeviceWatcher
	Open     func(path string) (device.Source, error)
	Create   func(path string) (*sink.Sink, error)
	Name     NameFunc
	Settle   func(ctx context.Context, path string, delay time.Duration) error
	Identify func(name string) model.DeviceInfo
	Policy   Policy
	Recorder Recorder
	Now      func() time.Time
	Log      *zap.Logger
}

func (d *Deps) fillDefaults() {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Open == nil {
		d.Open = openDevice
	}
	if d.Create == nil {
		d.Create = sink.Create
	}
	if d.Name == nil {
		d.Name = TimestampNamer(DefaultPrefix, d.Now)
	}
	if d.Settle == nil {
		d.Settle = sysutil.Settle
	}
	if d.Identify == nil {
		d.Identify = usbinfo.Lookup
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
}

func (c *Config) fillDefaults() {
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
}

// openDevice 避免把 nil *Handle 包进接口
func openDevice(path string) (device.Source, error) {
	h, err := device.Open(path)
	if err != nil {
		return nil, err
	}
	return h, nil
}

type nopRecorder struct{}

func (nopRecorder) StateChanged(string, model.SessionState) {}
func (nopRecorder) FileOpened(string, string)               {}
func (nopRecorder) BytesCaptured(int)                       {}
func (nopRecorder) SessionEnded(model.SessionResult)        {}
