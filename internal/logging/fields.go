package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供路径、命中规则与缓存状态字段，供页面请求日志复用。
func RequestFields(requestID, path, rule string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"path":       path,
		"rule":       rule,
		"cache_hit":  cacheHit,
	}
}

// FlushFields 描述一次缓存清理，供管理接口与 CLI 共用。
func FlushFields(scope, target string, deleted int, elapsed time.Duration) logrus.Fields {
	return logrus.Fields{
		"action":     "flush",
		"scope":      scope,
		"target":     target,
		"deleted":    deleted,
		"elapsed_ms": elapsed.Milliseconds(),
	}
}
