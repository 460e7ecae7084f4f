// Package connector 管理 voteguard 依赖的外部存储连接。
//
// 目前只有 Redis：投票后端的选票与计票都存放在 Redis 中。
// NewRedis 只创建客户端，Connect 时才会真正建立连接；Connector 拥有客户端的生命周期，
// 借用客户端的组件（如 voting.RedisBackend）不应调用 Close。
//
//	conn, err := connector.NewRedis(&cfg.Redis, connector.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//	backend := voting.NewRedisBackend(conn.GetClient(), "")
package connector

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Connector 连接器的通用行为，方法均可并发调用
type Connector interface {
	// Connect 建立连接，可重复调用
	Connect(ctx context.Context) error

	// Close 关闭连接，可重复调用
	Close() error

	// HealthCheck 发送探测请求并更新 IsHealthy 的缓存结果
	HealthCheck(ctx context.Context) error

	IsHealthy() bool
	Name() string
}

// TypedConnector 带类型化客户端的连接器
type TypedConnector[T any] interface {
	Connector
	GetClient() T
}

// RedisConnector Redis 连接器
type RedisConnector interface {
	TypedConnector[*redis.Client]
}
