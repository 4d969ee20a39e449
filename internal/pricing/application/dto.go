package application

import (
	"time"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

// PricingResultDTO 定价结果的对外表示
type PricingResultDTO struct {
	Symbol          string    `json:"symbol"`
	OptionType      string    `json:"option_type"`
	PricingModel    string    `json:"pricing_model"`
	OptionPrice     float64   `json:"option_price"`
	UnderlyingPrice float64   `json:"underlying_price"`
	StrikePrice     float64   `json:"strike_price"`
	Volatility      float64   `json:"volatility"`
	Delta           float64   `json:"delta"`
	Gamma           float64   `json:"gamma"`
	Theta           float64   `json:"theta"`
	Vega            float64   `json:"vega"`
	Rho             float64   `json:"rho"`
	ErrorEstimate   *float64  `json:"error_estimate,omitempty"`
	Samples         int       `json:"samples,omitempty"`
	Status          string    `json:"status"`
	CalculatedAt    time.Time `json:"calculated_at"`
}

// ToDTO 转换为 DTO，nil 返回 nil
func ToDTO(r *domain.PricingResult) *PricingResultDTO {
	if r == nil {
		return nil
	}
	dto := &PricingResultDTO{
		Symbol:          r.Symbol,
		OptionType:      string(r.OptionType),
		PricingModel:    string(r.PricingModel),
		OptionPrice:     r.OptionPrice.InexactFloat64(),
		UnderlyingPrice: r.UnderlyingPrice.InexactFloat64(),
		StrikePrice:     r.StrikePrice.InexactFloat64(),
		Volatility:      r.Volatility.InexactFloat64(),
		Delta:           r.Delta.InexactFloat64(),
		Gamma:           r.Gamma.InexactFloat64(),
		Theta:           r.Theta.InexactFloat64(),
		Vega:            r.Vega.InexactFloat64(),
		Rho:             r.Rho.InexactFloat64(),
		Samples:         r.Samples,
		Status:          r.Status,
		CalculatedAt:    time.UnixMilli(r.CalculatedAt).UTC(),
	}
	if r.ErrorEstimate.Valid {
		e := r.ErrorEstimate.Decimal.InexactFloat64()
		dto.ErrorEstimate = &e
	}
	return dto
}

// ToDTOs 批量转换
func ToDTOs(results []*domain.PricingResult) []*PricingResultDTO {
	dtos := make([]*PricingResultDTO, 0, len(results))
	for _, r := range results {
		dtos = append(dtos, ToDTO(r))
	}
	return dtos
}
