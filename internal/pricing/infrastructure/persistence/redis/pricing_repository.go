package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/cache"
)

const (
	resultPrefix = "pricing_result:"
	defaultTTL   = 15 * time.Minute
)

// PricingResultCache 以 Redis 缓存每个合约的最新定价结果
type PricingResultCache struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewPricingResultCache ttl 非正时使用 15 分钟
func NewPricingResultCache(c *cache.RedisCache, ttl time.Duration) *PricingResultCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &PricingResultCache{cache: c, ttl: ttl}
}

func (r *PricingResultCache) Set(ctx context.Context, result *domain.PricingResult) error {
	if result == nil {
		return nil
	}
	return r.cache.SetJSON(ctx, resultKey(result.Symbol), result, r.ttl)
}

func (r *PricingResultCache) Get(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	if symbol == "" {
		return nil, nil
	}
	var result domain.PricingResult
	found, err := r.cache.GetJSON(ctx, resultKey(symbol), &result)
	if err != nil || !found {
		return nil, err
	}
	return &result, nil
}

func (r *PricingResultCache) Delete(ctx context.Context, symbol string) error {
	return r.cache.Delete(ctx, resultKey(symbol))
}

func resultKey(symbol string) string {
	return fmt.Sprintf("%s%s", resultPrefix, symbol)
}
