package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级行为：监听端口、日志、缓存目录与回源地址。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	CachePath       string   `mapstructure:"CachePath"`
	SitePath        string   `mapstructure:"SitePath"`
	Subfolder       string   `mapstructure:"Subfolder"`
	FrontController string   `mapstructure:"FrontController"`
	Upstream        string   `mapstructure:"Upstream"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	DefaultTTL      Duration `mapstructure:"DefaultTTL"`
	MetricsEnabled  bool     `mapstructure:"MetricsEnabled"`
	// AdminToken 保护会修改缓存的 /-/ 接口；为空时这些接口一律拒绝。
	AdminToken string `mapstructure:"AdminToken"`
}

// RuleConfig 按路径前缀覆盖整页缓存的 TTL，或直接跳过缓存。
type RuleConfig struct {
	Prefix string   `mapstructure:"Prefix"`
	TTL    Duration `mapstructure:"TTL"`
	Bypass bool     `mapstructure:"Bypass"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Rules  []RuleConfig `mapstructure:"Rule"`
}

// FrontendRoot 返回前端缓存根目录：优先 <CachePath>/frontend，
// 未配置 CachePath 时退回 <SitePath>/protected/cache/frontend。
func (g GlobalConfig) FrontendRoot() string {
	if g.CachePath != "" {
		return filepath.Join(g.CachePath, "frontend")
	}
	return filepath.Join(g.SitePath, "protected", "cache", "frontend")
}

// EffectiveTTL 返回规则生效的 TTL，未覆盖时回退至 DefaultTTL。
func (c *Config) EffectiveTTL(rule RuleConfig) time.Duration {
	if rule.TTL.DurationValue() > 0 {
		return rule.TTL.DurationValue()
	}
	return c.Global.DefaultTTL.DurationValue()
}
