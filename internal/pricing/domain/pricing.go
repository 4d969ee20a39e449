package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingResult 定价结果实体
type PricingResult struct {
	ID              uint                `json:"id"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Symbol          string              `json:"symbol"`
	OptionType      OptionType          `json:"option_type"`
	PricingModel    PricingModel        `json:"pricing_model"`
	OptionPrice     decimal.Decimal     `json:"option_price"`
	UnderlyingPrice decimal.Decimal     `json:"underlying_price"`
	StrikePrice     decimal.Decimal     `json:"strike_price"`
	Volatility      decimal.Decimal     `json:"volatility"`
	Delta           decimal.Decimal     `json:"delta"`
	Gamma           decimal.Decimal     `json:"gamma"`
	Theta           decimal.Decimal     `json:"theta"`
	Vega            decimal.Decimal     `json:"vega"`
	Rho             decimal.Decimal     `json:"rho"`
	ErrorEstimate   decimal.NullDecimal `json:"error_estimate"`
	Samples         int                 `json:"samples"`
	Status          string              `json:"status"`
	CalculatedAt    int64               `json:"calculated_at"`
}

// NewFiniteDifferenceResult 由有限差分计算结果构造实体
func NewFiniteDifferenceResult(symbol string, p FDOptionParams, value float64, g Greeks, at time.Time) *PricingResult {
	return &PricingResult{
		Symbol:          symbol,
		OptionType:      p.Type,
		PricingModel:    PricingModelFiniteDifference,
		OptionPrice:     decimal.NewFromFloat(value),
		UnderlyingPrice: decimal.NewFromFloat(p.Underlying),
		StrikePrice:     decimal.NewFromFloat(p.Strike),
		Volatility:      decimal.NewFromFloat(p.Volatility),
		Delta:           decimal.NewFromFloat(g.Delta),
		Gamma:           decimal.NewFromFloat(g.Gamma),
		Theta:           decimal.NewFromFloat(g.Theta),
		Vega:            decimal.NewFromFloat(g.Vega),
		Rho:             decimal.NewFromFloat(g.Rho),
		Status:          string(StatusReported),
		CalculatedAt:    at.UnixMilli(),
	}
}

// NewMonteCarloResult 由蒙特卡洛计算结果构造实体，行权价以 moneyness 记录
func NewMonteCarloResult(symbol string, args ForwardOptionArguments, spot, volatility float64, r MonteCarloResults, at time.Time) *PricingResult {
	res := &PricingResult{
		Symbol:          symbol,
		OptionType:      args.Type,
		PricingModel:    PricingModelMonteCarloForward,
		OptionPrice:     decimal.NewFromFloat(r.Value),
		UnderlyingPrice: decimal.NewFromFloat(spot),
		StrikePrice:     decimal.NewFromFloat(args.Moneyness),
		Volatility:      decimal.NewFromFloat(volatility),
		Samples:         r.Samples,
		Status:          string(r.Status),
		CalculatedAt:    at.UnixMilli(),
	}
	if r.HasErrorEstimate {
		res.ErrorEstimate = decimal.NewNullDecimal(decimal.NewFromFloat(r.ErrorEstimate))
	}
	return res
}
