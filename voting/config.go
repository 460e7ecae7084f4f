package voting

import (
	"time"

	"github.com/ceyewan/voteguard/rank"
	"github.com/ceyewan/voteguard/vote"
)

// Config 投票服务配置
type Config struct {
	// Vote 状态引擎配置，TickPeriod 同时是计票轮询周期
	Vote vote.Config `mapstructure:"vote" yaml:"vote" json:"vote"`

	// TopN 排行默认名次数
	TopN int `mapstructure:"top_n" yaml:"top_n" json:"top_n"`

	// PollBackoff 单个实体拉取计票失败后的退避
	PollBackoff BackoffConfig `mapstructure:"poll_backoff" yaml:"poll_backoff" json:"poll_backoff"`

	// Entities 启动时注册的投票实体
	Entities []EntityConfig `mapstructure:"entities" yaml:"entities" json:"entities"`
}

// BackoffConfig 退避参数
type BackoffConfig struct {
	Min time.Duration `mapstructure:"min" yaml:"min" json:"min"`
	Max time.Duration `mapstructure:"max" yaml:"max" json:"max"`
}

// EntityConfig 投票实体及其候选项
type EntityConfig struct {
	ID      string    `mapstructure:"id" yaml:"id" json:"id"`
	StartAt time.Time `mapstructure:"start_at" yaml:"start_at" json:"start_at"`
	StopAt  time.Time `mapstructure:"stop_at" yaml:"stop_at" json:"stop_at"`
	Items   []string  `mapstructure:"items" yaml:"items" json:"items"`
}

// 默认值
const (
	DefaultPollBackoffMin = time.Second
	DefaultPollBackoffMax = 30 * time.Second
)

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.TopN <= 0 {
		out.TopN = rank.DefaultTopN
	}
	if out.PollBackoff.Min <= 0 {
		out.PollBackoff.Min = DefaultPollBackoffMin
	}
	if out.PollBackoff.Max < out.PollBackoff.Min {
		out.PollBackoff.Max = max(DefaultPollBackoffMax, out.PollBackoff.Min)
	}
	return out
}
