package clog

import (
	"fmt"
	"strings"
)

const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config 日志配置
//
//	Level:  debug|info|warn|error|fatal
//	Format: json|console
//	Output: stdout|stderr|<文件路径>
//
// Output 为文件路径时，MaxSizeMB/MaxBackups/MaxAgeDays 控制文件切割。
type Config struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	Output     string `mapstructure:"output" yaml:"output"`
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	SourceRoot string `mapstructure:"source_root" yaml:"source_root"` // 用于裁剪文件路径

	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// NewDevDefaultConfig 开发环境默认配置：debug 级别、console 格式、输出到 stdout
func NewDevDefaultConfig() *Config {
	return &Config{
		Level:      "debug",
		Format:     "console",
		Output:     "stdout",
		AddSource:  true,
		SourceRoot: "voteguard",
	}
}

// NewProdDefaultConfig 生产环境默认配置：info 级别、json 格式
func NewProdDefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}

// validate 填充默认值并检查 Level/Format
func (c *Config) validate() error {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 100
	}

	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	format := strings.ToLower(c.Format)
	if format != "json" && format != "console" {
		return fmt.Errorf("invalid format: %s, must be json or console", c.Format)
	}
	if c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("invalid rotation: max_backups and max_age_days must be >= 0")
	}
	return nil
}
