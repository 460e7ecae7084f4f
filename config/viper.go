package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/xerrors"
)

type loader struct {
	v      *viper.Viper
	cfg    *Config
	logger clog.Logger

	mu        sync.Mutex
	watches   map[string][]chan Event
	oldValues map[string]any
}

func newLoader(cfg *Config, o *options) *loader {
	return &loader{
		v:         viper.New(),
		cfg:       cfg,
		logger:    o.logger,
		watches:   make(map[string][]chan Event),
		oldValues: make(map[string]any),
	}
}

func (l *loader) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.v.SetConfigName(l.cfg.Name)
	l.v.SetConfigType(l.cfg.FileType)
	for _, p := range l.cfg.Paths {
		l.v.AddConfigPath(p)
	}

	// 环境变量优先级最高：http.addr -> VOTEGUARD_HTTP_ADDR
	l.v.SetEnvPrefix(l.cfg.EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// .env 只补充尚未设置的环境变量
	l.loadDotEnv()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return xerrors.WithCode(xerrors.Wrapf(err, "read config file %s", l.cfg.Name), xerrors.CodeInvalidInput)
		}
		l.logger.Warn("no configuration file found", clog.String("name", l.cfg.Name), clog.Any("paths", l.cfg.Paths))
	}

	if err := l.mergeEnvironmentConfig(); err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}

	l.captureCurrentValues()

	if l.v.ConfigFileUsed() != "" {
		l.v.OnConfigChange(func(e fsnotify.Event) {
			if err := l.mergeEnvironmentConfig(); err != nil {
				l.logger.Error("reload environment config failed", clog.Error(err))
			}
			l.logger.Info("configuration reloaded", clog.String("file", e.Name), clog.String("op", e.Op.String()))
			l.notifyWatches()
		})
		l.v.WatchConfig()
	}
	return nil
}

func (l *loader) loadDotEnv() {
	files := []string{".env"}
	for _, p := range l.cfg.Paths {
		files = append(files, filepath.Join(p, ".env"))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			l.logger.Warn("load .env failed", clog.String("file", f), clog.Error(err))
			continue
		}
		l.logger.Debug("loaded .env", clog.String("file", f))
	}
}

// mergeEnvironmentConfig 合并 config.<env>.yaml，env 取自 <PREFIX>_ENV
func (l *loader) mergeEnvironmentConfig() error {
	env := os.Getenv(l.cfg.EnvPrefix + "_ENV")
	if env == "" {
		return nil
	}

	name := fmt.Sprintf("%s.%s", l.cfg.Name, env)
	l.v.SetConfigName(name)
	defer l.v.SetConfigName(l.cfg.Name)

	if err := l.v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return xerrors.WithCode(xerrors.Wrapf(err, "merge environment config %s", name), xerrors.CodeInvalidInput)
		}
		l.logger.Debug("no environment configuration file", clog.String("env", env))
		return nil
	}
	l.logger.Info("loaded environment configuration", clog.String("env", env))
	return nil
}

func (l *loader) captureCurrentValues() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.watches {
		l.oldValues[key] = l.v.Get(key)
	}
}

func (l *loader) Get(key string) any {
	return l.v.Get(key)
}

func (l *loader) Unmarshal(v any) error {
	return xerrors.Wrap(l.v.Unmarshal(v, decodeHook), "unmarshal config")
}

func (l *loader) UnmarshalKey(key string, v any) error {
	return xerrors.Wrapf(l.v.UnmarshalKey(key, v, decodeHook), "unmarshal config key %s", key)
}

// decodeHook 在 viper 默认的 duration、逗号分隔切片之外，支持 RFC3339 时间
var decodeHook = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
	mapstructure.StringToSliceHookFunc(","),
	mapstructure.StringToTimeHookFunc(time.RFC3339),
))

func (l *loader) Watch(ctx context.Context, key string) (<-chan Event, error) {
	if key == "" {
		return nil, xerrors.Wrap(ErrValidationFailed, "watch key is empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan Event, 10)
	l.watches[key] = append(l.watches[key], ch)
	l.oldValues[key] = l.v.Get(key)

	go func() {
		<-ctx.Done()
		l.removeWatch(key, ch)
	}()
	return ch, nil
}

func (l *loader) removeWatch(key string, ch chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chans := l.watches[key]
	for i, c := range chans {
		if c == ch {
			l.watches[key] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(l.watches[key]) == 0 {
		delete(l.watches, key)
		delete(l.oldValues, key)
	}
	close(ch)
}

// Validate 空配置视为无效
func (l *loader) Validate() error {
	if len(l.v.AllSettings()) == 0 {
		return xerrors.Wrap(ErrValidationFailed, "configuration is empty")
	}
	return nil
}

func (l *loader) notifyWatches() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, chans := range l.watches {
		newValue := l.v.Get(key)
		oldValue := l.oldValues[key]
		if reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		l.oldValues[key] = newValue

		ev := Event{Key: key, Value: newValue, OldValue: oldValue, Source: "file", Timestamp: time.Now()}
		for _, ch := range chans {
			select {
			case ch <- ev:
			default:
				l.logger.Warn("watch channel is full, event dropped", clog.String("key", key))
			}
		}
	}
}
