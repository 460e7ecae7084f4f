package main

import (
	"context"
	"errors"

	"github.com/ceyewan/voteguard/api"
	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/config"
	"github.com/ceyewan/voteguard/connector"
	"github.com/ceyewan/voteguard/invoker"
	"github.com/ceyewan/voteguard/metrics"
	"github.com/ceyewan/voteguard/ratelimit"
	"github.com/ceyewan/voteguard/trace"
	"github.com/ceyewan/voteguard/voting"
	"github.com/ceyewan/voteguard/xerrors"
)

// app 组装好的进程，按创建的逆序释放
type app struct {
	logger  clog.Logger
	meter   metrics.Meter
	redis   connector.RedisConnector
	invoker *invoker.Invoker
	service *voting.Service
	server  *api.Server

	closers []func(context.Context) error
}

// newApp 按依赖顺序组装进程；任一步失败时释放已创建的资源
func newApp(ctx context.Context, cfg *AppConfig, logger clog.Logger) (*app, error) {
	a := &app{logger: logger}
	if err := a.build(ctx, cfg); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context, cfg *AppConfig) error {
	logger := a.logger
	traceShutdown, err := trace.Init(&cfg.Trace)
	if err != nil {
		return xerrors.Wrap(err, "init trace")
	}
	a.closers = append(a.closers, traceShutdown)

	if a.meter, err = metrics.New(&cfg.Metrics, metrics.WithLogger(logger)); err != nil {
		return xerrors.Wrap(err, "init metrics")
	}
	a.closers = append(a.closers, a.meter.Shutdown)

	if a.redis, err = connector.NewRedis(&cfg.Redis, connector.WithLogger(logger)); err != nil {
		return xerrors.Wrap(err, "create redis connector")
	}
	a.closers = append(a.closers, func(context.Context) error { return a.redis.Close() })
	if err = a.redis.Connect(ctx); err != nil {
		return err
	}

	if a.invoker, err = invoker.New(&cfg.Invoker, invoker.WithLogger(logger), invoker.WithMeter(a.meter)); err != nil {
		return xerrors.Wrap(err, "create invoker")
	}
	a.closers = append(a.closers, func(context.Context) error { return a.invoker.Close() })

	backend := voting.NewRedisBackend(a.redis.GetClient(), cfg.KeyPrefix)
	if a.service, err = voting.New(&cfg.Voting, backend, a.invoker,
		voting.WithLogger(logger), voting.WithMeter(a.meter)); err != nil {
		return xerrors.Wrap(err, "create voting service")
	}

	apiOpts := []api.Option{api.WithLogger(logger), api.WithMeter(a.meter)}
	if cfg.RateLimit.Enabled() {
		limiter, err := ratelimit.New(&cfg.RateLimit, ratelimit.WithLogger(logger),
			ratelimit.WithMeter(a.meter), ratelimit.WithRedisConnector(a.redis))
		if err != nil {
			return xerrors.Wrap(err, "create vote rate limiter")
		}
		a.closers = append(a.closers, func(context.Context) error { return limiter.Close() })
		apiOpts = append(apiOpts, api.WithVoteLimiter(limiter))
	}

	if a.server, err = api.New(&cfg.HTTP, a.service, apiOpts...); err != nil {
		return xerrors.Wrap(err, "create api server")
	}
	return nil
}

// run 运行投票服务与 HTTP 服务，任一退出或 ctx 结束时停止另一个
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- a.service.Run(ctx) }()
	go func() { errCh <- a.server.Run(ctx) }()

	var c xerrors.Collector
	for range 2 {
		err := <-errCh
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			c.Collect(err)
		}
	}
	return c.Err()
}

// watchLogLevel 配置文件中的 log.level 变化时调整日志级别
func (a *app) watchLogLevel(ctx context.Context, loader config.Loader) {
	events, err := loader.Watch(ctx, "log.level")
	if err != nil {
		a.logger.Warn("watch log level failed", clog.Error(err))
		return
	}
	go func() {
		for ev := range events {
			s, _ := ev.Value.(string)
			level, err := clog.ParseLevel(s)
			if err != nil {
				a.logger.Warn("ignore invalid log level", clog.String("level", s))
				continue
			}
			if err := a.logger.SetLevel(level); err != nil {
				a.logger.Warn("set log level failed", clog.Error(err))
				continue
			}
			a.logger.Info("log level changed", clog.String("level", level.String()))
		}
	}()
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", clog.Error(err))
		}
	}
	a.closers = nil
}
