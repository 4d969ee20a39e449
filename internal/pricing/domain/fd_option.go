package domain

import (
	"fmt"
)

// 参数扰动重定价时使用的相对步长
const bumpRelativeStep = 1e-4

// FDOptionParams 有限差分期权的合约与市场参数
type FDOptionParams struct {
	Type          OptionType
	Underlying    float64
	Strike        float64
	DividendYield float64
	RiskFreeRate  float64
	ResidualTime  float64
	Volatility    float64
	GridPoints    int
	TimeSteps     int
}

// Validate 校验构造期即可发现的配置错误
func (p FDOptionParams) Validate() error {
	if err := p.Type.Validate(); err != nil {
		return err
	}
	if p.GridPoints < 3 {
		return fmt.Errorf("%w: grid points must be at least 3, got %d", ErrConfiguration, p.GridPoints)
	}
	if p.TimeSteps <= 0 {
		return fmt.Errorf("%w: time steps must be positive, got %d", ErrConfiguration, p.TimeSteps)
	}
	return nil
}

type fdResults struct {
	value float64
	delta float64
	gamma float64
	theta float64

	vega     float64
	vegaDone bool
	rho      float64
	rhoDone  bool
}

// FiniteDifferenceOption 基于对数网格与 Crank-Nicolson 格式的欧式期权数值定价。
// 结果惰性计算并缓存，任一参数变化都会使缓存失效。非并发安全。
type FiniteDifferenceOption struct {
	LazyObject

	params        FDOptionParams
	limits        GridLimits
	fixedLimits   *GridLimits
	grid          LogGrid
	initialPrices []float64
	prices        []float64
	results       fdResults
}

// NewFiniteDifferenceOption 创建有限差分期权
func NewFiniteDifferenceOption(params FDOptionParams) (*FiniteDifferenceOption, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &FiniteDifferenceOption{params: params}, nil
}

// Params 当前参数
func (o *FiniteDifferenceOption) Params() FDOptionParams {
	return o.params
}

// SetUnderlying 更新标的价格
func (o *FiniteDifferenceOption) SetUnderlying(v float64) {
	o.update(&o.params.Underlying, v)
}

// SetStrike 更新行权价
func (o *FiniteDifferenceOption) SetStrike(v float64) {
	o.update(&o.params.Strike, v)
}

// SetVolatility 更新波动率
func (o *FiniteDifferenceOption) SetVolatility(v float64) {
	o.update(&o.params.Volatility, v)
}

// SetRiskFreeRate 更新无风险利率
func (o *FiniteDifferenceOption) SetRiskFreeRate(v float64) {
	o.update(&o.params.RiskFreeRate, v)
}

// SetDividendYield 更新股息率
func (o *FiniteDifferenceOption) SetDividendYield(v float64) {
	o.update(&o.params.DividendYield, v)
}

// SetResidualTime 更新剩余期限
func (o *FiniteDifferenceOption) SetResidualTime(v float64) {
	o.update(&o.params.ResidualTime, v)
}

// SetOptionType 更新期权类型
func (o *FiniteDifferenceOption) SetOptionType(t OptionType) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if o.params.Type != t {
		o.params.Type = t
		o.Invalidate()
	}
	return nil
}

func (o *FiniteDifferenceOption) update(field *float64, v float64) {
	if *field == v {
		return
	}
	*field = v
	o.Invalidate()
}

// Value 期权价值
func (o *FiniteDifferenceOption) Value() (float64, error) {
	if err := o.Calculate(o.calculate); err != nil {
		return 0, err
	}
	return o.results.value, nil
}

// Delta 对标的价格的一阶导数
func (o *FiniteDifferenceOption) Delta() (float64, error) {
	if err := o.Calculate(o.calculate); err != nil {
		return 0, err
	}
	return o.results.delta, nil
}

// Gamma 对标的价格的二阶导数
func (o *FiniteDifferenceOption) Gamma() (float64, error) {
	if err := o.Calculate(o.calculate); err != nil {
		return 0, err
	}
	return o.results.gamma, nil
}

// Theta 由 BS 偏微分方程推出的时间导数
func (o *FiniteDifferenceOption) Theta() (float64, error) {
	if err := o.Calculate(o.calculate); err != nil {
		return 0, err
	}
	return o.results.theta, nil
}

// Vega 波动率扰动重定价
func (o *FiniteDifferenceOption) Vega() (float64, error) {
	if err := o.Calculate(o.calculate); err != nil {
		return 0, err
	}
	if !o.results.vegaDone {
		bump := bumpSize(o.params.Volatility)
		v, err := o.bumpedValue(func(p *FDOptionParams) { p.Volatility += bump })
		if err != nil {
			return 0, err
		}
		o.results.vega = (v - o.results.value) / bump
		o.results.vegaDone = true
	}
	return o.results.vega, nil
}

// Rho 利率扰动重定价
func (o *FiniteDifferenceOption) Rho() (float64, error) {
	if err := o.Calculate(o.calculate); err != nil {
		return 0, err
	}
	if !o.results.rhoDone {
		bump := bumpSize(o.params.RiskFreeRate)
		v, err := o.bumpedValue(func(p *FDOptionParams) { p.RiskFreeRate += bump })
		if err != nil {
			return 0, err
		}
		o.results.rho = (v - o.results.value) / bump
		o.results.rhoDone = true
	}
	return o.results.rho, nil
}

// Greeks 一次性读取全部希腊字母
func (o *FiniteDifferenceOption) Greeks() (Greeks, error) {
	var g Greeks
	var err error
	if g.Delta, err = o.Delta(); err != nil {
		return Greeks{}, err
	}
	if g.Gamma, err = o.Gamma(); err != nil {
		return Greeks{}, err
	}
	if g.Theta, err = o.Theta(); err != nil {
		return Greeks{}, err
	}
	if g.Vega, err = o.Vega(); err != nil {
		return Greeks{}, err
	}
	if g.Rho, err = o.Rho(); err != nil {
		return Greeks{}, err
	}
	return g, nil
}

// Grid 最近一次计算使用的价格网格
func (o *FiniteDifferenceOption) Grid() []float64 {
	return append([]float64(nil), o.grid.Points...)
}

// InitialPrices 最近一次计算使用的到期收益
func (o *FiniteDifferenceOption) InitialPrices() []float64 {
	return append([]float64(nil), o.initialPrices...)
}

// Limits 最近一次计算使用的价格区间
func (o *FiniteDifferenceOption) Limits() GridLimits {
	return o.limits
}

func bumpSize(x float64) float64 {
	if x == 0 {
		return bumpRelativeStep
	}
	return x * bumpRelativeStep
}

func (o *FiniteDifferenceOption) bumpedValue(bump func(*FDOptionParams)) (float64, error) {
	p := o.params
	bump(&p)
	clone, err := NewFiniteDifferenceOption(p)
	if err != nil {
		return 0, err
	}
	// 扰动后的定价沿用同一价格区间
	limits := o.limits
	clone.fixedLimits = &limits
	return clone.Value()
}

// calculate 网格 → 初始条件 → 算子 → 时间推进 → 中心估计，全部成功才写回结果
func (o *FiniteDifferenceOption) calculate() error {
	p := o.params
	limits, err := SetGridLimits(p.Underlying, p.Strike, p.Volatility, p.ResidualTime)
	if err != nil {
		return err
	}
	if o.fixedLimits != nil {
		limits = *o.fixedLimits
	}
	points := SafeGridPoints(p.GridPoints, p.ResidualTime)
	if err := o.grid.Reset(limits.SMin, limits.SMax, points); err != nil {
		return err
	}
	o.limits = limits

	o.initialPrices, err = InitialCondition(p.Type, o.grid.Points, p.Strike, o.initialPrices)
	if err != nil {
		return err
	}
	o.prices = resize(o.prices, points)
	copy(o.prices, o.initialPrices)

	lower, upper := NeumannBoundaries(o.initialPrices)
	op, err := NewBSMOperator(points, o.grid.LogSpacing, p.RiskFreeRate, p.DividendYield, p.Volatility, lower, upper)
	if err != nil {
		return err
	}
	if err := op.RollbackCrankNicolson(o.prices, p.ResidualTime, p.TimeSteps); err != nil {
		return err
	}

	value := valueAtCenter(o.prices)
	delta := firstDerivativeAtCenter(o.prices, o.grid.Points)
	gamma := secondDerivativeAtCenter(o.prices, o.grid.Points)
	s := p.Underlying
	theta := p.RiskFreeRate*value - (p.RiskFreeRate-p.DividendYield)*s*delta -
		0.5*p.Volatility*p.Volatility*s*s*gamma

	o.results = fdResults{value: value, delta: delta, gamma: gamma, theta: theta}
	return nil
}

// InitialCondition 在网格每一点上计算到期收益，复用 dst 的底层数组
func InitialCondition(t OptionType, grid []float64, strike float64, dst []float64) ([]float64, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	dst = resize(dst, len(grid))
	for j, s := range grid {
		v, err := t.Payoff(s, strike)
		if err != nil {
			return nil, err
		}
		dst[j] = v
	}
	return dst, nil
}

func resize(buf []float64, n int) []float64 {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]float64, n)
}
