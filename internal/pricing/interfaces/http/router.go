package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
	"github.com/wyfcoding/optionpricing/pkg/middleware"
	"github.com/wyfcoding/optionpricing/pkg/ratelimit"
)

// RouterOptions 路由构造参数
type RouterOptions struct {
	ServiceName string
	Metrics     *metrics.Metrics
	MetricsPath string
	// nil 表示不限流
	Limiter   ratelimit.RateLimiter
	RateLimit ratelimit.Limit
}

// NewRouter 创建 Gin 引擎并挂载中间件、业务路由、健康检查与指标端点
func NewRouter(h *PricingHandler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.GinRecoveryMiddleware(),
		middleware.GinLoggingMiddleware(opts.Metrics),
		middleware.GinCORSMiddleware(),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"service":   opts.ServiceName,
			"timestamp": time.Now().Unix(),
		})
	})
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(opts.Metrics.Handler()))
	}

	api := r.Group("", middleware.RateLimitMiddleware(opts.Limiter, opts.RateLimit))
	h.RegisterRoutes(api)
	return r
}
