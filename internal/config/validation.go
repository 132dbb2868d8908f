package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/frontcache/frontcache/internal/pagecache"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.CachePath == "" && g.SitePath == "" {
		return newFieldError("Global.CachePath", "CachePath 与 SitePath 不能同时为空")
	}
	if g.DefaultTTL.DurationValue() <= 0 {
		return newFieldError("Global.DefaultTTL", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if strings.ContainsAny(g.FrontController, `/\`) {
		return newFieldError("Global.FrontController", "不允许包含路径分隔符")
	}
	if !strings.HasPrefix(g.Subfolder, "/") {
		return newFieldError("Global.Subfolder", "必须以 / 开头")
	}
	if err := validateUpstream(g.Upstream); err != nil {
		return fmt.Errorf("Global.Upstream: %w", err)
	}
	if err := validateAdminToken(g.AdminToken); err != nil {
		return err
	}

	seen := map[string]struct{}{}
	for i := range c.Rules {
		rule := c.Rules[i]
		if rule.Prefix == "" {
			return newFieldError("Rule[].Prefix", "不能为空")
		}
		if !strings.HasPrefix(rule.Prefix, "/") {
			return newFieldError(ruleField(rule.Prefix, "Prefix"), "必须以 / 开头")
		}
		if _, exists := seen[rule.Prefix]; exists {
			return newFieldError(ruleField(rule.Prefix, "Prefix"), "重复")
		}
		seen[rule.Prefix] = struct{}{}
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}

// MinAdminTokenLength 是管理口令的最短长度。
const MinAdminTokenLength = 16

func validateAdminToken(token string) error {
	if token == "" {
		return nil
	}
	if len(token) < MinAdminTokenLength {
		return newFieldError("Global.AdminToken", fmt.Sprintf("长度至少 %d 个字符", MinAdminTokenLength))
	}
	if strings.IndexFunc(token, unicode.IsSpace) >= 0 {
		return newFieldError("Global.AdminToken", "不能包含空白字符")
	}
	return nil
}

// CacheOptions 将配置映射为 pagecache.Options，调用方再按需注入 Fs/Recorder。
func (c *Config) CacheOptions() pagecache.Options {
	return pagecache.Options{
		Root:            c.Global.FrontendRoot(),
		Subfolder:       c.Global.Subfolder,
		FrontController: c.Global.FrontController,
	}
}
