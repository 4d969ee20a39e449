package application

import (
	"context"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

// PricingService 定价门面服务。
type PricingService struct {
	Command *PricingCommandService
	Query   *PricingQueryService
}

// NewPricingService 构造函数。
func NewPricingService(command *PricingCommandService, query *PricingQueryService) *PricingService {
	return &PricingService{
		Command: command,
		Query:   query,
	}
}

// --- Command Facade ---

func (s *PricingService) PriceFiniteDifference(ctx context.Context, cmd PriceFiniteDifferenceCommand) (*domain.PricingResult, error) {
	return s.Command.PriceFiniteDifference(ctx, cmd)
}

func (s *PricingService) PriceForwardMonteCarlo(ctx context.Context, cmd PriceForwardMonteCarloCommand) (*domain.PricingResult, error) {
	return s.Command.PriceForwardMonteCarlo(ctx, cmd)
}

func (s *PricingService) UpdateVolatility(ctx context.Context, cmd UpdateVolatilityCommand) error {
	return s.Command.UpdateVolatility(ctx, cmd)
}

func (s *PricingService) BatchPriceOptions(ctx context.Context, cmd BatchPriceOptionsCommand) (*BatchPricingResult, error) {
	return s.Command.BatchPriceOptions(ctx, cmd)
}

// --- Query Facade ---

func (s *PricingService) GetLatestResult(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	return s.Query.GetLatestResult(ctx, symbol)
}

func (s *PricingService) GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	return s.Query.GetHistory(ctx, symbol, limit)
}
