package metrics

import "github.com/ceyewan/voteguard/xerrors"

// Config 指标配置
//
//	metrics:
//	  enabled: true
//	  service_name: "voteguard"
//	  port: 9090
//	  path: "/metrics"
type Config struct {
	// Enabled 为 false 时 New 返回 Discard()
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	Version     string `mapstructure:"version" yaml:"version"`

	// Port 大于 0 时启动独立的 Prometheus HTTP 服务；为 0 时可通过 Handler 挂到已有路由上
	Port int    `mapstructure:"port" yaml:"port"`
	Path string `mapstructure:"path" yaml:"path"`

	// EnableRuntime 采集 Go 运行时指标（GC、goroutine、内存）
	EnableRuntime bool `mapstructure:"enable_runtime" yaml:"enable_runtime"`
}

// NewDevDefaultConfig 开发环境默认配置，不单独监听端口
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     "dev",
		Path:        "/metrics",
	}
}

func (c *Config) validate() error {
	if c.ServiceName == "" {
		c.ServiceName = "voteguard"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
	if c.Path[0] != '/' {
		return xerrors.Newf(xerrors.CodeInvalidInput, "metrics path must start with '/': %s", c.Path)
	}
	if c.Port < 0 || c.Port > 65535 {
		return xerrors.Newf(xerrors.CodeInvalidInput, "invalid metrics port: %d", c.Port)
	}
	return nil
}
