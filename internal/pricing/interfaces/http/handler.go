package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/optionpricing/internal/pricing/application"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/pkg/response"
)

// HTTP 处理器
// 负责处理与定价相关的 HTTP 请求
type PricingHandler struct {
	svc *application.PricingService
}

// 创建 HTTP 处理器实例
func NewPricingHandler(svc *application.PricingService) *PricingHandler {
	return &PricingHandler{svc: svc}
}

// 注册路由
// 将处理器方法绑定到 Gin 路由引擎
func (h *PricingHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/pricing")
	{
		api.POST("/fd/price", h.PriceFiniteDifference)
		api.POST("/fd/volatility", h.UpdateVolatility)
		api.POST("/mc/forward", h.PriceForwardMonteCarlo)
		api.POST("/batch", h.BatchPrice)
		api.GET("/results/:symbol/latest", h.GetLatestResult)
		api.GET("/results/:symbol/history", h.GetHistory)
	}
}

// PriceFiniteDifference 有限差分定价
func (h *PricingHandler) PriceFiniteDifference(c *gin.Context) {
	var req application.PriceFiniteDifferenceCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	result, err := h.svc.PriceFiniteDifference(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Failed to price option by finite difference", err)
		return
	}
	response.Success(c, application.ToDTO(result))
}

// PriceForwardMonteCarlo 远期生效期权蒙特卡洛定价
func (h *PricingHandler) PriceForwardMonteCarlo(c *gin.Context) {
	var req application.PriceForwardMonteCarloCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	result, err := h.svc.PriceForwardMonteCarlo(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Failed to price forward start option", err)
		return
	}
	response.Success(c, application.ToDTO(result))
}

// UpdateVolatility 更新已簿记合约的波动率
func (h *PricingHandler) UpdateVolatility(c *gin.Context) {
	var req application.UpdateVolatilityCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	if err := h.svc.UpdateVolatility(c.Request.Context(), req); err != nil {
		h.fail(c, "Failed to update volatility", err)
		return
	}
	response.Success(c, gin.H{
		"symbol":     req.Symbol,
		"volatility": req.NewVolatility,
	})
}

// BatchPrice 批量有限差分定价
func (h *PricingHandler) BatchPrice(c *gin.Context) {
	var req application.BatchPriceOptionsCommand
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	batch, err := h.svc.BatchPriceOptions(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Failed to run batch pricing", err)
		return
	}
	response.Success(c, gin.H{
		"batch_id":      batch.BatchID,
		"results":       application.ToDTOs(batch.Results),
		"failures":      batch.Failures,
		"success_count": batch.SuccessCount,
		"failure_count": batch.FailureCount,
		"average_time":  batch.AverageTime,
	})
}

// GetLatestResult 获取最新定价结果
func (h *PricingHandler) GetLatestResult(c *gin.Context) {
	result, err := h.svc.GetLatestResult(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.fail(c, "Failed to get latest pricing result", err)
		return
	}
	response.Success(c, application.ToDTO(result))
}

// GetHistory 获取历史定价结果
func (h *PricingHandler) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid limit", raw)
			return
		}
		limit = n
	}

	results, err := h.svc.GetHistory(c.Request.Context(), c.Param("symbol"), limit)
	if err != nil {
		h.fail(c, "Failed to get pricing history", err)
		return
	}
	response.Success(c, application.ToDTOs(results))
}

func (h *PricingHandler) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), msg, "error", err)
	} else {
		logger.Warn(c.Request.Context(), msg, "error", err)
	}
	response.ErrorWithStatus(c, status, err.Error(), domain.ErrorCode(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInstrumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrInvalidMarketData):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
