package config

import (
	"context"
	"strings"
)

// DefaultEnvPrefix 默认环境变量前缀，例如 VOTEGUARD_HTTP_ADDR 覆盖 http.addr
const DefaultEnvPrefix = "VOTEGUARD"

// Config 配置加载器自身的配置
type Config struct {
	Name      string   // 配置文件名称（不含扩展名），默认 "config"
	Paths     []string // 搜索路径，默认 [".", "./config"]
	FileType  string   // yaml | json | toml，默认 yaml
	EnvPrefix string   // 环境变量前缀，默认 VOTEGUARD
}

func (c *Config) validate() error {
	if c.Name == "" {
		c.Name = "config"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = DefaultEnvPrefix
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
	return nil
}

// New 创建配置加载器，cfg 为 nil 时使用默认配置。需要调用 Load 才会读取配置。
func New(cfg *Config, opts ...Option) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newLoader(cfg, applyOptions(opts...)), nil
}

// MustLoad 创建并加载配置，失败时 panic。仅用于 main 初始化阶段。
func MustLoad(cfg *Config, opts ...Option) Loader {
	l, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	if err := l.Load(context.Background()); err != nil {
		panic(err)
	}
	return l
}
