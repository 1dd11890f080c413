package capture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Hara602/devreader/internal/device"
	"github.com/Hara602/devreader/internal/model"
	"github.com/Hara602/devreader/internal/shutdown"
	"github.com/Hara602/devreader/internal/sink"
	"github.com/Hara602/devreader/internal/watcher"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// configurer 支持设置线路参数的设备 (tty)
type configurer interface {
	Configure(baud int) error
}

// Session 一次完整的采集: 等待设备 -> 打开 -> 读写循环 -> 关闭
// 状态: AwaitingDevice -> Opening -> Streaming -> Closed, 任意状态都可能进入 Failed
type Session struct {
	id     string
	cfg    Config
	deps   Deps
	flag   *shutdown.Flag
	log    *zap.Logger
	state  model.SessionState
	buf    []byte
	total  uint64
	file   string
	device model.DeviceInfo

	progress rate.Sometimes
}

func NewSession(cfg Config, deps Deps, flag *shutdown.Flag) *Session {
	cfg.fillDefaults()
	deps.fillDefaults()
	if flag == nil {
		flag = shutdown.New()
	}

	id := uuid.NewString()
	s := &Session{
		id:   id,
		cfg:  cfg,
		deps: deps,
		flag: flag,
		log:  deps.Log.With(zap.String("session", id[:8])),
		buf:  make([]byte, BufferSize),
	}
	if cfg.ProgressInterval > 0 {
		s.progress = rate.Sometimes{First: 1, Interval: cfg.ProgressInterval}
	} else {
		s.progress = rate.Sometimes{Every: 1}
	}
	return s
}

// Run 运行到会话结束, 返回时设备和文件都已关闭
func (s *Session) Run(ctx context.Context) (res model.SessionResult) {
	res = model.SessionResult{ID: s.id, Started: s.deps.Now()}
	defer func() {
		res.State = s.state
		res.File = s.file
		res.Bytes = s.total
		res.Device = s.device
		res.Ended = s.deps.Now()
		s.deps.Recorder.SessionEnded(res)
	}()

	s.setState(model.AwaitingDevice)
	if s.stopping(ctx) {
		s.setState(model.Closed)
		return
	}

	devPath := filepath.Join(s.cfg.WatchDir, s.cfg.Device)
	s.log.Info("⏳ Waiting for device", zap.String("path", devPath))
	if err := s.deps.Watcher.WaitForArrival(ctx, s.cfg.WatchDir, s.cfg.Device); err != nil {
		if errors.Is(err, watcher.ErrCancelled) || s.stopping(ctx) {
			s.setState(model.Closed)
			return
		}
		res.Err = s.fail("wait for device", err)
		return
	}
	s.log.Info("✅ Device created", zap.String("path", devPath))

	s.setState(model.Opening)
	// 等待设备稳定 (枚举, 权限)
	if err := s.deps.Settle(ctx, devPath, s.cfg.SettleDelay); err != nil {
		if s.stopping(ctx) {
			s.setState(model.Closed)
			return
		}
		s.log.Warn("Device node not settled", zap.Error(err))
	}

	s.device = s.deps.Identify(s.cfg.Device)
	s.log.Info("device information",
		zap.String("vid", s.device.VendorID),
		zap.String("pid", s.device.ProductID),
		zap.String("serial", s.device.Serial),
		zap.String("product", s.device.Product),
		zap.Strings("interfaces", s.device.Interfaces),
	)
	if s.deps.Policy != nil {
		blocked, reason, err := s.deps.Policy.IsBlocked(s.device.VendorID, s.device.ProductID, s.device.Serial)
		if err != nil {
			// 策略库不可用时放行
			s.log.Warn("⚠️ Policy lookup failed, capturing anyway", zap.Error(err))
		}
		if blocked {
			res.Err = s.fail("policy", fmt.Errorf("%w: %s", ErrDeviceBlocked, reason))
			return
		}
	}

	res.Err = s.capture(ctx, devPath)
	return
}

// capture 打开设备和输出文件, 两者在任何退出路径上都会关闭
func (s *Session) capture(ctx context.Context, devPath string) (err error) {
	src, err := s.deps.Open(devPath)
	if err != nil {
		return s.fail("open device", err)
	}

	var out *sink.Sink
	defer func() {
		closeErr := src.Close()
		if out != nil {
			closeErr = multierr.Append(closeErr, out.Close())
		}
		if closeErr == nil {
			return
		}
		if err == nil {
			err = s.fail("release", closeErr)
			return
		}
		s.log.Warn("Release failed", zap.Error(closeErr))
	}()

	if s.cfg.Baud > 0 {
		if c, ok := src.(configurer); ok {
			if cerr := c.Configure(s.cfg.Baud); cerr != nil {
				s.log.Warn("Line setup failed, capturing as-is", zap.Int("baud", s.cfg.Baud), zap.Error(cerr))
			}
		}
	}

	file := filepath.Join(s.cfg.OutputDir, s.deps.Name())
	s.log.Info("📄 Trace file", zap.String("file", file))
	out, err = s.deps.Create(file)
	if err != nil {
		return s.fail("create trace file", err)
	}
	s.file = out.Path()
	s.deps.Recorder.FileOpened(s.id, file)

	return s.stream(ctx, src, out)
}

func (s *Session) stream(ctx context.Context, src device.Source, out *sink.Sink) error {
	s.setState(model.Streaming)
	for !s.stopping(ctx) {
		// 超时后回到循环顶部检查退出标志
		ready, err := src.Poll(s.cfg.PollTimeout)
		if err != nil {
			return s.fail("poll device", err)
		}
		if !ready {
			continue
		}

		n, err := src.Read(s.buf)
		if errors.Is(err, device.ErrWouldBlock) {
			continue
		}
		if err != nil {
			return s.fail("read device", err)
		}
		if n == 0 {
			s.log.Debug("no trace data available, reading again")
			continue
		}

		if _, err := out.Write(s.buf[:n]); err != nil {
			return s.fail("write trace file", err)
		}
		s.total += uint64(n)
		s.deps.Recorder.BytesCaptured(n)
		s.progress.Do(func() {
			s.log.Info("written",
				zap.String("size", humanize.Bytes(s.total)),
				zap.Uint64("bytes", s.total),
				zap.String("file", s.file),
			)
		})
	}
	s.setState(model.Closed)
	return nil
}

func (s *Session) stopping(ctx context.Context) bool {
	return s.flag.IsSet() || ctx.Err() != nil
}

func (s *Session) setState(state model.SessionState) {
	s.state = state
	s.deps.Recorder.StateChanged(s.id, state)
	s.log.Debug("session state", zap.Stringer("state", state))
}

func (s *Session) fail(step string, err error) error {
	s.setState(model.Failed)
	s.log.Error("Session failed", zap.String("step", step), zap.Error(err))
	return fmt.Errorf("%s: %w", step, err)
}

// elapsed 用于会话摘要
func elapsed(res model.SessionResult) time.Duration {
	return res.Ended.Sub(res.Started).Round(time.Millisecond)
}
