package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// adminTokenEnv 允许不把管理口令写进配置文件。
const adminTokenEnv = "FRONTCACHE_ADMIN_TOKEN"

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Rules {
		applyRuleDefaults(&cfg.Rules[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Global.CachePath != "" {
		abs, err := filepath.Abs(cfg.Global.CachePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Global.CachePath = abs
	}
	if cfg.Global.SitePath != "" {
		abs, err := filepath.Abs(cfg.Global.SitePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析站点目录: %w", err)
		}
		cfg.Global.SitePath = abs
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8080)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CachePath", "./cache")
	v.SetDefault("Subfolder", "/")
	v.SetDefault("FrontController", "index.php")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("DefaultTTL", 60)
	v.SetDefault("MetricsEnabled", true)
	v.SetDefault("AdminToken", "")
	_ = v.BindEnv("AdminToken", adminTokenEnv)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 8080
	}
	if g.DefaultTTL.DurationValue() == 0 {
		g.DefaultTTL = Duration(60 * time.Second)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if strings.TrimSpace(g.Subfolder) == "" {
		g.Subfolder = "/"
	}
	if strings.TrimSpace(g.FrontController) == "" {
		g.FrontController = "index.php"
	}
	g.Upstream = strings.TrimRight(strings.TrimSpace(g.Upstream), "/")
}

func applyRuleDefaults(r *RuleConfig) {
	r.Prefix = strings.TrimSpace(r.Prefix)
	if r.TTL.DurationValue() < 0 {
		r.TTL = Duration(0)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
