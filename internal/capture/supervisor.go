package capture

import (
	"context"
	"errors"

	"github.com/Hara602/devreader/internal/model"
	"github.com/Hara602/devreader/internal/shutdown"
	"github.com/Hara602/devreader/internal/watcher"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Supervisor 依次运行会话直到退出标志置位, 会话之间不共享状态
type Supervisor struct {
	cfg      Config
	deps     Deps
	flag     *shutdown.Flag
	sessions int
}

func NewSupervisor(cfg Config, deps Deps, flag *shutdown.Flag) (*Supervisor, error) {
	cfg.fillDefaults()
	deps.fillDefaults()
	if err := watcher.ValidateName(cfg.Device); err != nil {
		return nil, err
	}
	if deps.Watcher == nil {
		w, err := watcher.New(watcher.BackendInotify, deps.Log)
		if err != nil {
			return nil, err
		}
		deps.Watcher = w
	}
	deps.Name = Distinct(deps.Name)
	if flag == nil {
		flag = shutdown.New()
	}
	return &Supervisor{cfg: cfg, deps: deps, flag: flag}, nil
}

// Run 只有监控机制初始化失败时返回错误
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := s.flag.Context(ctx)
	defer cancel()

	log := s.deps.Log
	for !s.flag.IsSet() && ctx.Err() == nil {
		s.sessions++
		res := NewSession(s.cfg, s.deps, s.flag).Run(ctx)
		if errors.Is(res.Err, watcher.ErrWatchInit) {
			return res.Err
		}
		if res.File != "" || res.State == model.Failed {
			log.Info("Session finished",
				zap.String("session", res.ID[:8]),
				zap.Stringer("state", res.State),
				zap.String("file", res.File),
				zap.String("size", humanize.Bytes(res.Bytes)),
				zap.Duration("duration", elapsed(res)),
			)
		}
	}
	return nil
}

// Sessions 已启动的会话数
func (s *Supervisor) Sessions() int { return s.sessions }
