package application

import (
	"context"
	"fmt"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// PricingQueryService 处理所有定价相关的查询操作（Queries）。
type PricingQueryService struct {
	repo    domain.PricingRepository
	cache   domain.PricingResultCache
	metrics *metrics.Metrics
}

// NewPricingQueryService 构造函数。cache 与 m 可为 nil。
func NewPricingQueryService(repo domain.PricingRepository, cache domain.PricingResultCache, m *metrics.Metrics) *PricingQueryService {
	return &PricingQueryService{
		repo:    repo,
		cache:   cache,
		metrics: m,
	}
}

// GetLatestResult 获取最新定价结果，先查缓存，未命中时回源并回填
func (s *PricingQueryService) GetLatestResult(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, symbol)
		if err != nil {
			logger.Warn(ctx, "pricing result cache lookup failed", "symbol", symbol, "error", err)
		}
		if s.metrics != nil && err == nil {
			s.metrics.RecordCacheLookup(cached != nil)
		}
		if cached != nil {
			return cached, nil
		}
	}

	result, err := s.repo.GetLatest(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest pricing result for %s: %w", symbol, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: no pricing result for %s", domain.ErrInstrumentNotFound, symbol)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, result); err != nil {
			logger.Warn(ctx, "failed to backfill pricing result cache", "symbol", symbol, "error", err)
		}
	}
	return result, nil
}

// GetHistory 按计算时间倒序返回历史结果，limit 非正时取默认值
func (s *PricingQueryService) GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	results, err := s.repo.GetHistory(ctx, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing history for %s: %w", symbol, err)
	}
	return results, nil
}
