package domain

import (
	"context"
)

// PricingRepository 定价历史仓储接口
type PricingRepository interface {
	// WithTx 在同一事务内执行 fn，事务通过 ctx 传递
	WithTx(ctx context.Context, fn func(txCtx context.Context) error) error
	Save(ctx context.Context, result *PricingResult) error
	// GetLatest 不存在时返回 (nil, nil)
	GetLatest(ctx context.Context, symbol string) (*PricingResult, error)
	GetHistory(ctx context.Context, symbol string, limit int) ([]*PricingResult, error)
}

// PricingResultCache 最新定价结果缓存
type PricingResultCache interface {
	Set(ctx context.Context, result *PricingResult) error
	// Get 未命中时返回 (nil, nil)
	Get(ctx context.Context, symbol string) (*PricingResult, error)
	Delete(ctx context.Context, symbol string) error
}
