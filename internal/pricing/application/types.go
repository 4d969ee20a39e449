package application

import (
	"time"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

// PriceFiniteDifferenceCommand 有限差分定价命令，Symbol 同时作为簿记中的合约标识。
// 合约已簿记时，零值的正数参数与 nil 的利率字段沿用簿记值，
// 因此经 UpdateVolatility 通知的波动率会在下一次定价时生效。
type PriceFiniteDifferenceCommand struct {
	Symbol        string   `json:"symbol" binding:"required"`
	OptionType    string   `json:"option_type" binding:"required"`
	Underlying    float64  `json:"underlying"`
	Strike        float64  `json:"strike"`
	DividendYield *float64 `json:"dividend_yield"`
	RiskFreeRate  *float64 `json:"risk_free_rate"`
	ResidualTime  float64  `json:"residual_time"`
	Volatility    float64  `json:"volatility"`
	// 0 表示使用配置默认值
	GridPoints int `json:"grid_points"`
	TimeSteps  int `json:"time_steps"`
}

// PriceForwardMonteCarloCommand 远期生效期权蒙特卡洛定价命令。
// 零值与 nil 字段使用配置默认值。
type PriceForwardMonteCarloCommand struct {
	Symbol        string    `json:"symbol" binding:"required"`
	OptionType    string    `json:"option_type" binding:"required"`
	Style         string    `json:"style"`
	Moneyness     float64   `json:"moneyness"`
	Spot          float64   `json:"spot"`
	RiskFreeRate  float64   `json:"risk_free_rate"`
	DividendYield float64   `json:"dividend_yield"`
	Volatility    float64   `json:"volatility"`
	ReferenceDate time.Time `json:"reference_date"`
	ResetDate     time.Time `json:"reset_date" binding:"required"`
	ExerciseDate  time.Time `json:"exercise_date" binding:"required"`

	TimeSteps         int      `json:"time_steps"`
	TimeStepsPerYear  int      `json:"time_steps_per_year"`
	BrownianBridge    *bool    `json:"brownian_bridge"`
	AntitheticVariate *bool    `json:"antithetic_variate"`
	RequiredSamples   int      `json:"required_samples"`
	RequiredTolerance *float64 `json:"required_tolerance"`
	MaxSamples        int      `json:"max_samples"`
	Seed              *uint64  `json:"seed"`
	Sequence          string   `json:"sequence"`
	Workers           int      `json:"workers"`
}

// UpdateVolatilityCommand 更新已簿记合约的波动率
type UpdateVolatilityCommand struct {
	Symbol        string  `json:"symbol" binding:"required"`
	NewVolatility float64 `json:"volatility"`
	Reason        string  `json:"reason"`
}

// BatchPriceOptionsCommand 批量有限差分定价命令
type BatchPriceOptionsCommand struct {
	BatchID   string                         `json:"batch_id"`
	Contracts []PriceFiniteDifferenceCommand `json:"contracts" binding:"required,min=1,dive"`
}

// BatchFailure 批量定价中的单条失败
type BatchFailure struct {
	Symbol    string `json:"symbol"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

// BatchPricingResult 批量定价结果
type BatchPricingResult struct {
	BatchID      string                  `json:"batch_id"`
	Results      []*domain.PricingResult `json:"results"`
	Failures     []BatchFailure          `json:"failures,omitempty"`
	SuccessCount int                     `json:"success_count"`
	FailureCount int                     `json:"failure_count"`
	// 单条平均耗时（秒）
	AverageTime float64 `json:"average_time"`
}
