package ratelimit

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	clocks "github.com/vimeo/go-clocks"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/xerrors"
)

// tokenBucketScript 基于时间戳的令牌桶。
// KEYS[1]: 桶键；ARGV: rate, burst, now(秒，浮点), n
// 键里保存下一次可放行的时间戳，返回 {allowed, remaining}。
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local interval = 1 / rate
local fill_time = burst * interval

local last = tonumber(redis.call("GET", KEYS[1]))
if last == nil then
  last = now
end

local next_at = math.max(last, now)
local reserved = next_at + requested * interval
local horizon = now + fill_time

if reserved <= horizon then
  redis.call("SET", KEYS[1], tostring(reserved), "EX", math.ceil(fill_time * 2))
  return {1, math.floor((horizon - reserved) / interval)}
end
return {0, math.floor((horizon - next_at) / interval)}
`

type distributedLimiter struct {
	limit   Limit
	client  *redis.Client
	prefix  string
	script  *redis.Script
	clock   clocks.Clock
	logger  clog.Logger
	metrics counters
}

func newDistributed(cfg Config, o options) (*distributedLimiter, error) {
	if o.conn == nil {
		return nil, ErrConnectorNil
	}
	l := &distributedLimiter{
		limit:   cfg.limit(),
		client:  o.conn.GetClient(),
		prefix:  cfg.Prefix,
		script:  redis.NewScript(tokenBucketScript),
		clock:   o.clock,
		logger:  o.logger,
		metrics: newCounters(o.meter, ModeDistributed),
	}
	l.logger.Info("distributed rate limiter created",
		clog.String("prefix", l.prefix),
		clog.Float64("rate", l.limit.Rate),
		clog.Int("burst", l.limit.Burst))
	return l, nil
}

func (l *distributedLimiter) Limit() Limit { return l.limit }

func (l *distributedLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *distributedLimiter) AllowN(ctx context.Context, key string, n int) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	if n <= 0 {
		return false, ErrInvalidLimit
	}

	now := float64(l.clock.Now().UnixNano()) / 1e9
	res, err := l.script.Run(ctx, l.client, []string{l.prefix + key},
		strconv.FormatFloat(l.limit.Rate, 'f', -1, 64),
		l.limit.Burst,
		strconv.FormatFloat(now, 'f', 6, 64),
		n,
	).Int64Slice()
	if err != nil {
		l.logger.ErrorContext(ctx, "rate limit script failed", clog.String("key", key), clog.Error(err))
		return false, xerrors.WithCode(xerrors.Wrap(err, "run token bucket script"), xerrors.CodeDBConnection)
	}
	if len(res) != 2 {
		return false, xerrors.Newf(xerrors.CodeDBConnection, "ratelimit: unexpected script result %v", res)
	}

	allowed := res[0] == 1
	l.metrics.record(ctx, allowed)
	l.logger.DebugContext(ctx, "rate limit check",
		clog.String("key", key),
		clog.Bool("allowed", allowed),
		clog.Int64("remaining", res[1]),
		clog.Int("requested", n))
	return allowed, nil
}

// Close 连接由 connector 管理，这里无需释放
func (l *distributedLimiter) Close() error { return nil }
