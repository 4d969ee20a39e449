// 包 定价服务的领域模型：有限差分与蒙特卡洛两类数值定价引擎。
package domain

import (
	"fmt"
	"math"
	"strings"
)

// OptionType 期权类型
type OptionType string

const (
	OptionTypeCall     OptionType = "CALL"     // 看涨期权
	OptionTypePut      OptionType = "PUT"      // 看跌期权
	OptionTypeStraddle OptionType = "STRADDLE" // 跨式组合
)

// ParseOptionType 解析期权类型，大小写不敏感
func ParseOptionType(s string) (OptionType, error) {
	t := OptionType(strings.ToUpper(strings.TrimSpace(s)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// Validate 校验期权类型是否受支持
func (t OptionType) Validate() error {
	switch t {
	case OptionTypeCall, OptionTypePut, OptionTypeStraddle:
		return nil
	default:
		return fmt.Errorf("%w: invalid option type %q", ErrConfiguration, string(t))
	}
}

// Payoff 计算标的价格为 spot、行权价为 strike 时的到期收益
func (t OptionType) Payoff(spot, strike float64) (float64, error) {
	switch t {
	case OptionTypeCall:
		return math.Max(spot-strike, 0), nil
	case OptionTypePut:
		return math.Max(strike-spot, 0), nil
	case OptionTypeStraddle:
		return math.Abs(strike - spot), nil
	default:
		return 0, fmt.Errorf("%w: invalid option type %q", ErrConfiguration, string(t))
	}
}

// PricingModel 定价模型
type PricingModel string

const (
	PricingModelFiniteDifference  PricingModel = "FiniteDifference"
	PricingModelMonteCarloForward PricingModel = "MonteCarloForward"
)

// Greeks 希腊字母
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}
