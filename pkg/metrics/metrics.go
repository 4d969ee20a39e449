// Package metrics 提供 Prometheus 指标集合与 /metrics 处理器
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "optionpricing"

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// 定价计算次数，按模型与结果
	PricingCalculations *prometheus.CounterVec
	// 定价耗时
	PricingDuration *prometheus.HistogramVec
	// 蒙特卡洛单次计算样本数
	MCSamples prometheus.Histogram
	// 达到样本上限仍未满足容差的次数
	MCExhausted prometheus.Counter
	// 有限差分实际重算次数（缓存未命中）
	FDRecalculations prometheus.Counter
	// 结果缓存命中
	CacheLookups *prometheus.CounterVec
	// Outbox 转发到 Kafka 的消息数
	OutboxRelayed *prometheus.CounterVec
}

// New 创建指标实例并注册到独立的 Registry
func New(serviceName string) *Metrics {
	serviceName = subsystem(serviceName)
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		PricingCalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "calculations_total",
			Help:      "Pricing calculations by model and outcome",
		}, []string{"model", "outcome"}),
		PricingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "calculation_duration_seconds",
			Help:      "Pricing calculation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
		}, []string{"model"}),
		MCSamples: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "mc_samples",
			Help:      "Samples drawn per Monte Carlo calculation",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 12),
		}),
		MCExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "mc_exhausted_total",
			Help:      "Monte Carlo runs that hit max samples before reaching the tolerance",
		}),
		FDRecalculations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "fd_recalculations_total",
			Help:      "Finite-difference rollbacks actually performed",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "result_cache_lookups_total",
			Help:      "Pricing result cache lookups by result",
		}, []string{"result"}),
		OutboxRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "outbox_relayed_total",
			Help:      "Outbox messages relayed to Kafka by outcome",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PricingCalculations,
		m.PricingDuration,
		m.MCSamples,
		m.MCExhausted,
		m.FDRecalculations,
		m.CacheLookups,
		m.OutboxRelayed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// subsystem 将服务名转换为合法的指标名片段
func subsystem(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCalculation 记录一次定价
func (m *Metrics) RecordCalculation(model string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.PricingCalculations.WithLabelValues(model, outcome).Inc()
	m.PricingDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordCacheLookup 记录缓存查找
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}
