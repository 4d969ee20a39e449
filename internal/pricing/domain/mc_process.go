package domain

import (
	"fmt"
	"math"
	"time"
)

// 实际天数/365 计息
const daysPerYear = 365.0

// StochasticProcess 蒙特卡洛引擎所需的最小随机过程描述
type StochasticProcess interface {
	// Factors 驱动因子个数
	Factors() int
	// Time 将日期映射为过程时间（年）
	Time(date time.Time) float64
	// InitialValue t=0 时的状态
	InitialValue() float64
	// Evolve 以标准正态增量 dw 将状态从 t0 推进 dt
	Evolve(t0, x0, dt, dw float64) float64
	// Discount 无风险贴现因子
	Discount(t float64) float64
	// Subscribe 订阅参数变化
	Subscribe(fn func()) (unsubscribe func())
}

// BlackScholesProcess 常系数几何布朗运动 dS = (r-q)S dt + σS dW，按对数正态精确演化
type BlackScholesProcess struct {
	Observable

	referenceDate time.Time
	spot          float64
	riskFreeRate  float64
	dividendYield float64
	volatility    float64
}

// NewBlackScholesProcess 创建过程，referenceDate 对应过程时间 0
func NewBlackScholesProcess(referenceDate time.Time, spot, riskFreeRate, dividendYield, volatility float64) (*BlackScholesProcess, error) {
	if spot <= 0 || volatility < 0 {
		return nil, fmt.Errorf("%w: spot=%g volatility=%g", ErrInvalidMarketData, spot, volatility)
	}
	return &BlackScholesProcess{
		referenceDate: truncateToDay(referenceDate),
		spot:          spot,
		riskFreeRate:  riskFreeRate,
		dividendYield: dividendYield,
		volatility:    volatility,
	}, nil
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (p *BlackScholesProcess) Factors() int {
	return 1
}

// Time 实际天数/365
func (p *BlackScholesProcess) Time(date time.Time) float64 {
	days := truncateToDay(date).Sub(p.referenceDate).Hours() / 24
	return math.Round(days) / daysPerYear
}

func (p *BlackScholesProcess) InitialValue() float64 {
	return p.spot
}

func (p *BlackScholesProcess) Evolve(_, x0, dt, dw float64) float64 {
	drift := (p.riskFreeRate - p.dividendYield - 0.5*p.volatility*p.volatility) * dt
	return x0 * math.Exp(drift+p.volatility*math.Sqrt(dt)*dw)
}

func (p *BlackScholesProcess) Discount(t float64) float64 {
	return math.Exp(-p.riskFreeRate * t)
}

// ReferenceDate 过程时间原点
func (p *BlackScholesProcess) ReferenceDate() time.Time {
	return p.referenceDate
}

func (p *BlackScholesProcess) Spot() float64          { return p.spot }
func (p *BlackScholesProcess) RiskFreeRate() float64  { return p.riskFreeRate }
func (p *BlackScholesProcess) DividendYield() float64 { return p.dividendYield }
func (p *BlackScholesProcess) Volatility() float64    { return p.volatility }

// SetSpot 更新标的价格并通知订阅者
func (p *BlackScholesProcess) SetSpot(v float64) {
	p.set(&p.spot, v)
}

// SetRiskFreeRate 更新无风险利率并通知订阅者
func (p *BlackScholesProcess) SetRiskFreeRate(v float64) {
	p.set(&p.riskFreeRate, v)
}

// SetDividendYield 更新股息率并通知订阅者
func (p *BlackScholesProcess) SetDividendYield(v float64) {
	p.set(&p.dividendYield, v)
}

// SetVolatility 更新波动率并通知订阅者
func (p *BlackScholesProcess) SetVolatility(v float64) {
	p.set(&p.volatility, v)
}

func (p *BlackScholesProcess) set(field *float64, v float64) {
	if *field == v {
		return
	}
	*field = v
	p.NotifyObservers()
}
