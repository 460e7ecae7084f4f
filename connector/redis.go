package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/xerrors"
)

type redisConnector struct {
	cfg     *RedisConfig
	client  *redis.Client
	logger  clog.Logger
	healthy atomic.Bool

	mu     sync.Mutex
	closed bool
}

// NewRedis 创建 Redis 连接器，不会立即连接
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "redis config is nil")
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	rc := &redisConnector{
		cfg:    &c,
		logger: opt.logger.With(clog.String("connector", "redis"), clog.String("name", c.Name)),
	}
	rc.client = redis.NewClient(&redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	if c.EnableTracing {
		if err := redisotel.InstrumentTracing(rc.client); err != nil {
			_ = rc.client.Close()
			return nil, xerrors.Wrap(err, "instrument redis tracing")
		}
	}
	if c.EnableMetrics {
		if err := redisotel.InstrumentMetrics(rc.client); err != nil {
			_ = rc.client.Close()
			return nil, xerrors.Wrap(err, "instrument redis metrics")
		}
	}
	return rc, nil
}

// Connect 建立连接
func (c *redisConnector) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if c.healthy.Load() {
		return nil
	}

	c.logger.Info("attempting to connect to redis", clog.String("addr", c.cfg.Addr))
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.logger.Error("failed to connect to redis", clog.Error(err), clog.String("addr", c.cfg.Addr))
		return xerrors.Join(ErrConnection, xerrors.Wrapf(err, "redis connector[%s]", c.cfg.Name))
	}

	c.healthy.Store(true)
	c.logger.Info("successfully connected to redis", clog.String("addr", c.cfg.Addr))
	return nil
}

// Close 关闭连接
func (c *redisConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.healthy.Store(false)

	c.logger.Info("closing redis connection", clog.String("addr", c.cfg.Addr))
	if err := c.client.Close(); err != nil {
		c.logger.Error("failed to close redis connection", clog.Error(err))
		return err
	}
	return nil
}

// HealthCheck 检查连接健康状态
func (c *redisConnector) HealthCheck(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("redis health check failed", clog.Error(err))
		return xerrors.Join(ErrHealthCheck, xerrors.Wrapf(err, "redis connector[%s]", c.cfg.Name))
	}

	c.healthy.Store(true)
	return nil
}

// IsHealthy 返回缓存的健康状态
func (c *redisConnector) IsHealthy() bool {
	return c.healthy.Load()
}

// Name 返回连接器名称
func (c *redisConnector) Name() string {
	return c.cfg.Name
}

// GetClient 返回 Redis 客户端
func (c *redisConnector) GetClient() *redis.Client {
	return c.client
}

func (c *redisConnector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
