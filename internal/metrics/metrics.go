package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "frontcache"

// Collector 以独立 Registry 暴露页面缓存指标，并实现 pagecache.Recorder。
type Collector struct {
	registry *prometheus.Registry
	lookups  *prometheus.CounterVec
	writes   *prometheus.CounterVec
	flushed  *prometheus.CounterVec
}

// New 创建 Collector。withRuntime 为 true 时同时注册 Go 运行时与进程指标。
func New(withRuntime bool) *Collector {
	registry := prometheus.NewRegistry()
	if withRuntime {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	c := &Collector{
		registry: registry,
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Cache lookups by entry kind and result.",
		}, []string{"kind", "result"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Captured outputs persisted to disk, by result.",
		}, []string{"result"}),
		flushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushed_files_total",
			Help:      "Cache files deleted by flush scope.",
		}, []string{"scope"}),
	}
	registry.MustRegister(c.lookups, c.writes, c.flushed)
	return c
}

// Lookup 记录一次读检查。
func (c *Collector) Lookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.lookups.WithLabelValues(kind, result).Inc()
}

// Write 记录一次落盘结果。
func (c *Collector) Write(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.writes.WithLabelValues(result).Inc()
}

// Flushed 累加删除的文件数。
func (c *Collector) Flushed(scope string, n int) {
	if n <= 0 {
		return
	}
	c.flushed.WithLabelValues(scope).Add(float64(n))
}

// Registry 返回底层 Registry，便于测试读取。
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 Prometheus 文本格式的 http.Handler。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
