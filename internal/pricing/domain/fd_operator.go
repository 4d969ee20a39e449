package domain

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BoundarySide 边界条件所在的网格端
type BoundarySide int

const (
	BoundaryLower BoundarySide = iota
	BoundaryUpper
)

// BoundaryCondition Neumann 边界条件：固定边界处相邻两点的差分值
type BoundaryCondition struct {
	Side  BoundarySide
	Value float64
}

// applyBeforeSolving 隐式求解前替换边界行：-x[i] + x[i+1] = value
func (bc BoundaryCondition) applyBeforeSolving(dl, d, du, rhs []float64) {
	n := len(d)
	switch bc.Side {
	case BoundaryLower:
		d[0], du[0] = -1, 1
		rhs[0] = bc.Value
	case BoundaryUpper:
		dl[n-2], d[n-1] = -1, 1
		rhs[n-1] = bc.Value
	}
}

// NeumannBoundaries 由初始条件在两端的斜率推导上下边界条件
func NeumannBoundaries(initialPrices []float64) (lower, upper BoundaryCondition) {
	n := len(initialPrices)
	lower = BoundaryCondition{Side: BoundaryLower, Value: initialPrices[1] - initialPrices[0]}
	upper = BoundaryCondition{Side: BoundaryUpper, Value: initialPrices[n-1] - initialPrices[n-2]}
	return lower, upper
}

// BSMOperator 对数价格坐标下的 Black-Scholes-Merton 三对角算子 L，
// 满足 dV/dτ = -L V，τ 为剩余期限。
type BSMOperator struct {
	size  int
	pd    float64
	pm    float64
	pu    float64
	lower BoundaryCondition
	upper BoundaryCondition
}

// NewBSMOperator 由网格间距与市场参数构造算子
func NewBSMOperator(size int, dx, riskFreeRate, dividendYield, volatility float64, lower, upper BoundaryCondition) (*BSMOperator, error) {
	if size < 3 {
		return nil, fmt.Errorf("%w: operator needs at least 3 points, got %d", ErrConfiguration, size)
	}
	if dx <= 0 {
		return nil, fmt.Errorf("%w: non-positive grid spacing %g", ErrConfiguration, dx)
	}
	sigma2 := volatility * volatility
	nu := riskFreeRate - dividendYield - sigma2/2
	return &BSMOperator{
		size:  size,
		pd:    -(sigma2/dx - nu) / (2 * dx),
		pu:    -(sigma2/dx + nu) / (2 * dx),
		pm:    sigma2/(dx*dx) + riskFreeRate,
		lower: lower,
		upper: upper,
	}, nil
}

// Size 算子维度
func (op *BSMOperator) Size() int {
	return op.size
}

// Coefficients 内部行的 (下, 主, 上) 对角系数
func (op *BSMOperator) Coefficients() (pd, pm, pu float64) {
	return op.pd, op.pm, op.pu
}

// bands 返回 I + a·L 的三条对角线
func (op *BSMOperator) bands(a float64) (dl, d, du []float64) {
	n := op.size
	dl = make([]float64, n-1)
	d = make([]float64, n)
	du = make([]float64, n-1)
	for i := range n {
		d[i] = 1 + a*op.pm
	}
	for i := range n - 1 {
		dl[i] = a * op.pd
		du[i] = a * op.pu
	}
	// 边界行保持恒等，由边界条件覆盖
	d[0], du[0] = 1, 0
	dl[n-2], d[n-1] = 0, 1
	return dl, d, du
}

// RollbackCrankNicolson 从到期日向后推进 residualTime，共 steps 步：
// (I + dt/2·L) V_new = (I - dt/2·L) V_old
// values 就地更新。
func (op *BSMOperator) RollbackCrankNicolson(values []float64, residualTime float64, steps int) error {
	if len(values) != op.size {
		return fmt.Errorf("%w: values size %d does not match operator size %d", ErrConfiguration, len(values), op.size)
	}
	if steps <= 0 {
		return fmt.Errorf("%w: non-positive time steps %d", ErrConfiguration, steps)
	}
	if residualTime <= 0 {
		return fmt.Errorf("%w: non-positive residual time %g", ErrInvalidMarketData, residualTime)
	}
	dt := residualTime / float64(steps)

	edl, ed, edu := op.bands(-dt / 2)
	explicit := mat.NewTridiag(op.size, edl, ed, edu)

	idl, id, idu := op.bands(dt / 2)
	rhs := make([]float64, op.size)
	op.lower.applyBeforeSolving(idl, id, idu, rhs)
	op.upper.applyBeforeSolving(idl, id, idu, rhs)
	implicit := mat.NewTridiag(op.size, idl, id, idu)
	lowerRHS, upperRHS := rhs[0], rhs[op.size-1]

	v := mat.NewVecDense(op.size, values)
	tmp := mat.NewVecDense(op.size, nil)
	for range steps {
		explicit.MulVecTo(tmp, false, v)
		raw := tmp.RawVector().Data
		raw[0], raw[op.size-1] = lowerRHS, upperRHS
		if err := implicit.SolveVecTo(v, false, tmp); err != nil {
			return fmt.Errorf("crank-nicolson solve: %w", err)
		}
	}
	return nil
}
