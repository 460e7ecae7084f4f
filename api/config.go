package api

import "time"

// Config HTTP 服务配置
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" json:"addr"`
	ServiceName       string        `mapstructure:"service_name" yaml:"service_name" json:"service_name"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// 默认值
const (
	DefaultAddr              = ":8080"
	DefaultServiceName       = "voteguard"
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
)

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Addr == "" {
		out.Addr = DefaultAddr
	}
	if out.ServiceName == "" {
		out.ServiceName = DefaultServiceName
	}
	if out.ReadHeaderTimeout <= 0 {
		out.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = DefaultShutdownTimeout
	}
	return out
}
