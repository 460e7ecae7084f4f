package trace

import "github.com/ceyewan/voteguard/xerrors"

// Config 配置
type Config struct {
	// Enabled 为 false 时不导出，只在进程内生成 TraceID
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name" json:"service_name"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	Sampler     float64 `mapstructure:"sampler" yaml:"sampler" json:"sampler"`
	Batcher     string  `mapstructure:"batcher" yaml:"batcher" json:"batcher"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure" json:"insecure"`
}

// DefaultConfig 返回默认配置
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Endpoint:    "localhost:4317",
		Sampler:     1.0,
		Batcher:     "batch",
		Insecure:    true,
	}
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "config is required")
	}
	if cfg.ServiceName == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "service_name is required")
	}
	if cfg.Endpoint == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "endpoint is required")
	}
	if cfg.Sampler < 0 || cfg.Sampler > 1 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "sampler must be between 0 and 1, got %v", cfg.Sampler)
	}
	if cfg.Batcher != "" && cfg.Batcher != "batch" && cfg.Batcher != "simple" {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "batcher must be \"batch\" or \"simple\", got %q", cfg.Batcher)
	}
	return nil
}
