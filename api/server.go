// Package api 提供 voteguard 的 HTTP 接口：实体状态、排行、投票提交，以及熔断与耗时统计。
package api

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/voteguard/breaker"
	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/metrics"
	"github.com/ceyewan/voteguard/perf"
	"github.com/ceyewan/voteguard/queue"
	"github.com/ceyewan/voteguard/rank"
	"github.com/ceyewan/voteguard/ratelimit"
	"github.com/ceyewan/voteguard/trace"
	"github.com/ceyewan/voteguard/vote"
	"github.com/ceyewan/voteguard/voting"
	"github.com/ceyewan/voteguard/xerrors"
)

// Service api 依赖的投票服务能力，*voting.Service 实现了该接口
type Service interface {
	Entities() []vote.EntityStatus
	Entity(id string) (vote.EntityStatus, bool)
	RankedView(id string, n int) rank.View
	SubmitVote(ctx context.Context, entityID, voterID, itemID string) (rank.Tally, error)
	CircuitStats(policy string) (breaker.Stats, error)
	PerfSnapshot() map[string]perf.Stats
	QueueStats() map[string]queue.Stats
}

var _ Service = (*voting.Service)(nil)

// Server HTTP 服务
type Server struct {
	cfg    Config
	svc    Service
	logger clog.Logger
	engine *gin.Engine
	srv    *http.Server
}

// New 创建 HTTP 服务并注册路由
func New(cfg *Config, svc Service, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, xerrors.Newf(xerrors.CodeInvalidInput, "api: service is required")
	}
	o := options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	c := cfg.withDefaults()

	httpMetrics, err := metrics.NewHTTPServerMetrics(o.meter, metrics.DefaultHTTPServerMetricsConfig(c.ServiceName))
	if err != nil {
		return nil, xerrors.Wrap(err, "create http metrics")
	}

	s := &Server{
		cfg:    c,
		svc:    svc,
		logger: o.logger.WithNamespace("api"),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(trace.GinMiddleware(c.ServiceName))
	r.Use(metrics.GinHTTPMiddleware(httpMetrics))
	r.Use(requestID(), accessLog(s.logger))

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler(o.meter)))

	v1 := r.Group("/v1")
	v1.GET("/entities", s.listEntities)
	v1.GET("/entities/:id", s.getEntity)
	v1.GET("/entities/:id/ranking", s.getRanking)
	voteChain := []gin.HandlerFunc{}
	if o.voteLimiter != nil {
		voteChain = append(voteChain, ratelimit.GinMiddleware(o.voteLimiter, ratelimit.ClientIP, s.logger))
	}
	v1.POST("/entities/:id/votes", append(voteChain, s.submitVote)...)
	v1.GET("/breakers/:policy", s.getBreaker)
	v1.GET("/perf", s.getPerf)

	s.engine = r
	s.srv = &http.Server{
		Addr:              c.Addr,
		Handler:           r,
		ReadHeaderTimeout: c.ReadHeaderTimeout,
	}
	return s, nil
}

// Handler 返回路由，便于测试或挂到其他 Server 上
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 监听并服务，ctx 结束后在 ShutdownTimeout 内优雅关闭
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return xerrors.Wrapf(err, "listen %s", s.cfg.Addr)
	}
	return s.Serve(ctx, lis)
}

// Serve 在给定的 listener 上服务
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", clog.String("addr", lis.Addr().String()))
		errCh <- s.srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return xerrors.Wrap(err, "shutdown http server")
	}
	return nil
}
