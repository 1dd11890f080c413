package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/Hara602/devreader/internal/capture"
	"github.com/Hara602/devreader/internal/config"
	"github.com/Hara602/devreader/internal/metrics"
	"github.com/Hara602/devreader/internal/policy"
	"github.com/Hara602/devreader/internal/shutdown"
	"github.com/Hara602/devreader/internal/sysutil"
	"github.com/Hara602/devreader/internal/watcher"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// 命令行参数与配置键的对应关系
var flagKeys = map[string]string{
	"dir":               "watch.dir",
	"device":            "watch.device",
	"backend":           "watch.backend",
	"output-dir":        "capture.output_dir",
	"prefix":            "capture.prefix",
	"poll-timeout":      "capture.poll_timeout",
	"settle-delay":      "capture.settle_delay",
	"baud":              "capture.baud",
	"progress-interval": "capture.progress_interval",
	"policy-db":         "policy.db",
	"metrics-addr":      "metrics.addr",
	"log-level":         "log.level",
	"log-file":          "log.file",
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "devreader",
		Short: "Capture the byte stream of a hot-plugged character device",
		Long: `devreader waits for a device node (default /dev/ttyACM1) to appear,
streams everything it produces into a timestamped file and goes back to
waiting when the device disappears. SIGINT/SIGTERM stop it cleanly.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			return runCapture(cmd, cfg)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.String("policy-db", "", "sqlite database with blocked devices")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-file", "", "also write logs to this file (rotated)")

	f := cmd.Flags()
	f.String("dir", "/dev", "directory to watch")
	f.String("device", "ttyACM1", "device node name inside --dir")
	f.String("backend", watcher.BackendInotify, "arrival backend: inotify, fsnotify or udev")
	f.String("output-dir", ".", "directory for capture files")
	f.String("prefix", capture.DefaultPrefix, "capture file name prefix")
	f.Duration("poll-timeout", capture.DefaultPollTimeout, "readiness wait between shutdown checks")
	f.Duration("settle-delay", capture.DefaultSettleDelay, "wait after arrival before opening")
	f.Int("baud", 0, "configure a tty to raw mode at this speed (0 leaves it alone)")
	f.Duration("progress-interval", capture.DefaultProgressInterval, "minimum gap between progress logs")
	f.String("metrics-addr", "", "serve /metrics, /health and /status on this address")

	bindFlags(v, pf)
	bindFlags(v, f)

	cmd.AddCommand(newPolicyCmd(v, &cfgFile))
	return cmd
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(fl *pflag.Flag) {
		if key, ok := flagKeys[fl.Name]; ok {
			_ = v.BindPFlag(key, fl)
		}
	})
}

func runCapture(cmd *cobra.Command, cfg *config.Config) error {
	if err := sysutil.InitLogger(sysutil.LogOptions{
		Level:     cfg.Log.Level,
		File:      cfg.Log.File,
		MaxSizeMB: cfg.Log.MaxSizeMB,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer sysutil.Log.Sync()
	log := sysutil.Log

	log.Info("🔌 devreader starting",
		zap.String("dir", cfg.Watch.Dir),
		zap.String("device", cfg.Watch.Device),
		zap.String("backend", cfg.Watch.Backend),
		zap.String("output", cfg.Capture.OutputDir),
	)

	flag := shutdown.New()
	stop := flag.Notify(os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := flag.Context(cmd.Context())
	defer cancel()

	devWatcher, err := watcher.New(cfg.Watch.Backend, log)
	if err != nil {
		log.Error("Watcher init failed", zap.Error(err))
		return err
	}

	deps := capture.Deps{
		Watcher: devWatcher,
		Name:    capture.TimestampNamer(cfg.Capture.Prefix, time.Now),
		Log:     log,
	}

	if cfg.Policy.DB != "" {
		store, err := policy.Open(cfg.Policy.DB)
		if err != nil {
			return err
		}
		defer store.Close()
		deps.Policy = store
	}

	if cfg.Metrics.Addr != "" {
		collector := metrics.NewCollector()
		deps.Recorder = collector
		go func() {
			if err := collector.Serve(ctx, cfg.Metrics.Addr, log); err != nil {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	sup, err := capture.NewSupervisor(cfg.CaptureSettings(), deps, flag)
	if err != nil {
		return err
	}
	if err := sup.Run(ctx); err != nil {
		log.Error("Watcher init failed", zap.Error(err))
		return err
	}

	log.Info("Shutting down...", zap.Int("sessions", sup.Sessions()))
	return nil
}
