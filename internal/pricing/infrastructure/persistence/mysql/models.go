package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

// PricingResultModel 定价结果数据库模型
type PricingResultModel struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
	Symbol          string    `gorm:"column:symbol;type:varchar(64);not null;index:idx_symbol_calculated,priority:1"`
	OptionType      string    `gorm:"column:option_type;type:varchar(16);not null"`
	PricingModel    string    `gorm:"column:pricing_model;type:varchar(32);not null"`
	OptionPrice     string    `gorm:"column:option_price;type:decimal(32,18);not null"`
	UnderlyingPrice string    `gorm:"column:underlying_price;type:decimal(32,18);not null"`
	StrikePrice     string    `gorm:"column:strike_price;type:decimal(32,18)"`
	Volatility      string    `gorm:"column:volatility;type:decimal(32,18)"`
	Delta           string    `gorm:"column:delta;type:decimal(32,18)"`
	Gamma           string    `gorm:"column:gamma;type:decimal(32,18)"`
	Theta           string    `gorm:"column:theta;type:decimal(32,18)"`
	Vega            string    `gorm:"column:vega;type:decimal(32,18)"`
	Rho             string    `gorm:"column:rho;type:decimal(32,18)"`
	ErrorEstimate   *string   `gorm:"column:error_estimate;type:decimal(32,18)"`
	Samples         int       `gorm:"column:samples"`
	Status          string    `gorm:"column:status;type:varchar(20)"`
	CalculatedAt    int64     `gorm:"column:calculated_at;type:bigint;not null;index:idx_symbol_calculated,priority:2"`
}

func (PricingResultModel) TableName() string { return "pricing_results" }

// mapping helpers

func toPricingResultModel(res *domain.PricingResult) *PricingResultModel {
	if res == nil {
		return nil
	}
	m := &PricingResultModel{
		ID:              res.ID,
		CreatedAt:       res.CreatedAt,
		UpdatedAt:       res.UpdatedAt,
		Symbol:          res.Symbol,
		OptionType:      string(res.OptionType),
		PricingModel:    string(res.PricingModel),
		OptionPrice:     res.OptionPrice.String(),
		UnderlyingPrice: res.UnderlyingPrice.String(),
		StrikePrice:     res.StrikePrice.String(),
		Volatility:      res.Volatility.String(),
		Delta:           res.Delta.String(),
		Gamma:           res.Gamma.String(),
		Theta:           res.Theta.String(),
		Vega:            res.Vega.String(),
		Rho:             res.Rho.String(),
		Samples:         res.Samples,
		Status:          res.Status,
		CalculatedAt:    res.CalculatedAt,
	}
	if res.ErrorEstimate.Valid {
		s := res.ErrorEstimate.Decimal.String()
		m.ErrorEstimate = &s
	}
	return m
}

func toPricingResult(m *PricingResultModel) *domain.PricingResult {
	if m == nil {
		return nil
	}
	res := &domain.PricingResult{
		ID:              m.ID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		Symbol:          m.Symbol,
		OptionType:      domain.OptionType(m.OptionType),
		PricingModel:    domain.PricingModel(m.PricingModel),
		OptionPrice:     parseDecimal(m.OptionPrice),
		UnderlyingPrice: parseDecimal(m.UnderlyingPrice),
		StrikePrice:     parseDecimal(m.StrikePrice),
		Volatility:      parseDecimal(m.Volatility),
		Delta:           parseDecimal(m.Delta),
		Gamma:           parseDecimal(m.Gamma),
		Theta:           parseDecimal(m.Theta),
		Vega:            parseDecimal(m.Vega),
		Rho:             parseDecimal(m.Rho),
		Samples:         m.Samples,
		Status:          m.Status,
		CalculatedAt:    m.CalculatedAt,
	}
	if m.ErrorEstimate != nil {
		res.ErrorEstimate = decimal.NewNullDecimal(parseDecimal(*m.ErrorEstimate))
	}
	return res
}

func parseDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}
