// Package config 读取命令行, 配置文件和环境变量 (DEVREADER_*).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Hara602/devreader/internal/capture"
	"github.com/Hara602/devreader/internal/watcher"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const EnvPrefix = "DEVREADER"

type Config struct {
	Watch   WatchConfig   `mapstructure:"watch"`
	Capture CaptureConfig `mapstructure:"capture"`
	Policy  PolicyConfig  `mapstructure:"policy"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

type WatchConfig struct {
	Dir     string `mapstructure:"dir"`
	Device  string `mapstructure:"device"`
	Backend string `mapstructure:"backend"`
}

type CaptureConfig struct {
	OutputDir        string        `mapstructure:"output_dir"`
	Prefix           string        `mapstructure:"prefix"`
	PollTimeout      time.Duration `mapstructure:"poll_timeout"`
	SettleDelay      time.Duration `mapstructure:"settle_delay"`
	Baud             int           `mapstructure:"baud"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

type PolicyConfig struct {
	DB string `mapstructure:"db"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	File      string `mapstructure:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}

// 默认值与最初的 devreader 行为一致
var defaults = map[string]any{
	"watch.dir":                 "/dev",
	"watch.device":              "ttyACM1",
	"watch.backend":             watcher.BackendInotify,
	"capture.output_dir":        ".",
	"capture.prefix":            capture.DefaultPrefix,
	"capture.poll_timeout":      capture.DefaultPollTimeout,
	"capture.settle_delay":      capture.DefaultSettleDelay,
	"capture.baud":              0,
	"capture.progress_interval": capture.DefaultProgressInterval,
	"policy.db":                 "",
	"metrics.addr":              "",
	"log.level":                 "info",
	"log.file":                  "",
	"log.max_size_mb":           10,
}

// NewViper 带默认值和环境变量映射, watch.device -> DEVREADER_WATCH_DEVICE
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load 读取可选的配置文件并校验
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var err error
	if c.Watch.Dir == "" {
		err = multierr.Append(err, errors.New("watch.dir is required"))
	}
	if nameErr := watcher.ValidateName(c.Watch.Device); nameErr != nil {
		err = multierr.Append(err, fmt.Errorf("watch.device: %w", nameErr))
	}
	switch c.Watch.Backend {
	case watcher.BackendInotify, watcher.BackendFsnotify, watcher.BackendUdev:
	default:
		err = multierr.Append(err, fmt.Errorf("watch.backend: unknown backend %q", c.Watch.Backend))
	}
	if c.Capture.Prefix == "" || strings.ContainsAny(c.Capture.Prefix, "/\x00") {
		err = multierr.Append(err, fmt.Errorf("capture.prefix: invalid %q", c.Capture.Prefix))
	}
	if c.Capture.PollTimeout < time.Millisecond {
		err = multierr.Append(err, errors.New("capture.poll_timeout must be at least 1ms"))
	}
	if c.Capture.SettleDelay < 0 {
		err = multierr.Append(err, errors.New("capture.settle_delay must not be negative"))
	}
	if c.Capture.Baud < 0 {
		err = multierr.Append(err, errors.New("capture.baud must not be negative"))
	}
	return err
}

// CaptureSettings 转换为 capture.Config
func (c *Config) CaptureSettings() capture.Config {
	return capture.Config{
		WatchDir:         c.Watch.Dir,
		Device:           c.Watch.Device,
		OutputDir:        c.Capture.OutputDir,
		PollTimeout:      c.Capture.PollTimeout,
		SettleDelay:      c.Capture.SettleDelay,
		Baud:             c.Capture.Baud,
		ProgressInterval: c.Capture.ProgressInterval,
	}
}
