package domain

import (
	"fmt"
	"math"
)

const (
	minGridPoints        = 10
	gridPointsPerYear    = 2
	gridSafetyZoneFactor = 1.1
)

// GridLimits 价格网格的上下边界
type GridLimits struct {
	SMin float64
	SMax float64
}

// SafeGridPoints 保证期限较长时网格点数不低于按年递增的下限
func SafeGridPoints(gridPoints int, residualTime float64) int {
	floor := minGridPoints
	if residualTime > 1.0 {
		floor = int(minGridPoints + (residualTime-1.0)*gridPointsPerYear)
	}
	return max(gridPoints, floor)
}

// SetGridLimits 根据波动率与期限确定价格区间，并保证行权价位于网格内部。
// 标的价格始终处于网格的几何中心。
func SetGridLimits(underlying, strike, volatility, residualTime float64) (GridLimits, error) {
	if underlying <= 0 || strike <= 0 || volatility <= 0 || residualTime <= 0 {
		return GridLimits{}, fmt.Errorf("%w: underlying=%g strike=%g volatility=%g residualTime=%g",
			ErrInvalidMarketData, underlying, strike, volatility, residualTime)
	}

	volSqrtTime := volatility * math.Sqrt(residualTime)
	// 小波动率修正
	prefactor := 1.0 + 0.02/volSqrtTime
	minMaxFactor := math.Exp(4.0 * prefactor * volSqrtTime)

	sMin := underlying / minMaxFactor
	sMax := underlying * minMaxFactor

	if sMin > strike/gridSafetyZoneFactor {
		sMin = strike / gridSafetyZoneFactor
		sMax = underlying / (sMin / underlying)
	}
	if sMax < strike*gridSafetyZoneFactor {
		sMax = strike * gridSafetyZoneFactor
		sMin = underlying / (sMax / underlying)
	}
	return GridLimits{SMin: sMin, SMax: sMax}, nil
}

// LogGrid 对数等距价格网格
type LogGrid struct {
	Points     []float64
	LogSpacing float64
}

// NewLogGrid 在 [sMin, sMax] 上构造 points 个对数等距的网格点
func NewLogGrid(sMin, sMax float64, points int) (*LogGrid, error) {
	g := &LogGrid{}
	if err := g.Reset(sMin, sMax, points); err != nil {
		return nil, err
	}
	return g, nil
}

// Reset 复用已有缓冲区重新生成网格，点数不变时不重新分配
func (g *LogGrid) Reset(sMin, sMax float64, points int) error {
	if points < 3 {
		return fmt.Errorf("%w: grid needs at least 3 points, got %d", ErrConfiguration, points)
	}
	if sMin <= 0 || sMax <= sMin {
		return fmt.Errorf("%w: invalid grid limits [%g, %g]", ErrInvalidMarketData, sMin, sMax)
	}
	if cap(g.Points) >= points {
		g.Points = g.Points[:points]
	} else {
		g.Points = make([]float64, points)
	}

	g.LogSpacing = (math.Log(sMax) - math.Log(sMin)) / float64(points-1)
	edx := math.Exp(g.LogSpacing)
	g.Points[0] = sMin
	for j := 1; j < points; j++ {
		g.Points[j] = g.Points[j-1] * edx
	}
	return nil
}

// Size 网格点数
func (g *LogGrid) Size() int {
	return len(g.Points)
}

// valueAtCenter 网格中心处的值，偶数点取中间两点的平均
func valueAtCenter(a []float64) float64 {
	jmid := len(a) / 2
	if len(a)%2 == 1 {
		return a[jmid]
	}
	return (a[jmid] + a[jmid-1]) / 2.0
}

// firstDerivativeAtCenter 网格中心处的一阶导数
func firstDerivativeAtCenter(a, g []float64) float64 {
	jmid := len(a) / 2
	if len(a)%2 == 1 {
		return (a[jmid+1] - a[jmid-1]) / (g[jmid+1] - g[jmid-1])
	}
	return (a[jmid] - a[jmid-1]) / (g[jmid] - g[jmid-1])
}

// secondDerivativeAtCenter 网格中心处的二阶导数
func secondDerivativeAtCenter(a, g []float64) float64 {
	jmid := len(a) / 2
	if len(a)%2 == 1 {
		deltaPlus := (a[jmid+1] - a[jmid]) / (g[jmid+1] - g[jmid])
		deltaMinus := (a[jmid] - a[jmid-1]) / (g[jmid] - g[jmid-1])
		dS := (g[jmid+1] - g[jmid-1]) / 2.0
		return (deltaPlus - deltaMinus) / dS
	}
	deltaPlus := (a[jmid+1] - a[jmid-1]) / (g[jmid+1] - g[jmid-1])
	deltaMinus := (a[jmid] - a[jmid-2]) / (g[jmid] - g[jmid-2])
	return (deltaPlus - deltaMinus) / (g[jmid] - g[jmid-1])
}
