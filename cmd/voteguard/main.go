// voteguard 投票服务：对投票存储的调用经过排队、熔断与重试保护，
// 周期性拉取计票并维护实时排行，通过 HTTP 提供查询与投票接口。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ceyewan/voteguard/clog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot, _ := clog.New(clog.NewProdDefaultConfig(), clog.WithNamespace("voteguard"))
	cfg, loader, err := loadConfig(ctx, boot)
	if err != nil {
		boot.Fatal("load config failed", clog.Error(err))
	}

	logger, err := clog.New(&cfg.Log, clog.WithNamespace("voteguard"), clog.WithStandardContext())
	if err != nil {
		boot.Fatal("create logger failed", clog.Error(err))
	}
	defer logger.Flush()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("start voteguard failed", clog.Error(err))
	}
	a.watchLogLevel(ctx, loader)

	logger.Info("voteguard started", clog.String("http_addr", cfg.HTTP.Addr))
	runErr := a.run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.close(shutdownCtx)

	if runErr != nil {
		logger.Error("voteguard stopped with error", clog.Error(runErr))
		os.Exit(1)
	}
	logger.Info("voteguard stopped")
}
