package main

import (
	"context"

	"github.com/ceyewan/voteguard/api"
	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/config"
	"github.com/ceyewan/voteguard/connector"
	"github.com/ceyewan/voteguard/invoker"
	"github.com/ceyewan/voteguard/metrics"
	"github.com/ceyewan/voteguard/ratelimit"
	"github.com/ceyewan/voteguard/trace"
	"github.com/ceyewan/voteguard/voting"
)

// AppConfig voteguard 进程配置
type AppConfig struct {
	Log       clog.Config           `mapstructure:"log"`
	Metrics   metrics.Config        `mapstructure:"metrics"`
	Trace     trace.Config          `mapstructure:"trace"`
	Redis     connector.RedisConfig `mapstructure:"redis"`
	KeyPrefix string                `mapstructure:"key_prefix"`
	Invoker   invoker.Config        `mapstructure:"invoker"`
	Voting    voting.Config         `mapstructure:"voting"`
	HTTP      api.Config            `mapstructure:"http"`
	RateLimit ratelimit.Config      `mapstructure:"ratelimit"`
}

// defaultPaths 配置文件搜索路径
var defaultPaths = []string{".", "./cmd/voteguard", "/etc/voteguard"}

// loadConfig 读取配置，返回的 Loader 用于后续 Watch
func loadConfig(ctx context.Context, logger clog.Logger, paths ...string) (*AppConfig, config.Loader, error) {
	if len(paths) == 0 {
		paths = defaultPaths
	}
	loader, err := config.New(&config.Config{Name: "config", Paths: paths}, config.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	if err := loader.Load(ctx); err != nil {
		return nil, nil, err
	}

	cfg := &AppConfig{}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}
