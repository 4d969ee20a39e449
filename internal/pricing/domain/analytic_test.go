package domain

import (
	"math"
)

// bsResult 解析解，仅用作数值引擎的对照
type bsResult struct {
	Price float64
	Delta float64
	Gamma float64
	Theta float64
}

// blackScholes 带连续股息率的 Black-Scholes 价格与希腊字母
func blackScholes(t OptionType, s, k, r, q, v, T float64) bsResult {
	if t == OptionTypeStraddle {
		c := blackScholes(OptionTypeCall, s, k, r, q, v, T)
		p := blackScholes(OptionTypePut, s, k, r, q, v, T)
		return bsResult{
			Price: c.Price + p.Price,
			Delta: c.Delta + p.Delta,
			Gamma: c.Gamma + p.Gamma,
			Theta: c.Theta + p.Theta,
		}
	}
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(s/k) + (r-q+0.5*v*v)*T) / (v * sqrtT)
	d2 := d1 - v*sqrtT
	dq := math.Exp(-q * T)
	dr := math.Exp(-r * T)

	res := bsResult{Gamma: dq * normPdf(d1) / (s * v * sqrtT)}
	decay := -s * dq * normPdf(d1) * v / (2 * sqrtT)
	if t == OptionTypeCall {
		res.Price = s*dq*normCdf(d1) - k*dr*normCdf(d2)
		res.Delta = dq * normCdf(d1)
		res.Theta = decay + q*s*dq*normCdf(d1) - r*k*dr*normCdf(d2)
	} else {
		res.Price = k*dr*normCdf(-d2) - s*dq*normCdf(-d1)
		res.Delta = dq * (normCdf(d1) - 1)
		res.Theta = decay - q*s*dq*normCdf(-d1) + r*k*dr*normCdf(-d2)
	}
	return res
}

// forwardStartAnalytic 远期生效期权解析价：S0·e^{-q·t1}·BS(1, m, t2-t1)
func forwardStartAnalytic(t OptionType, style ForwardStyle, s0, m, r, q, v, t1, t2 float64) float64 {
	unit := blackScholes(t, 1, m, r, q, v, t2-t1).Price
	if style == ForwardPerformance {
		return math.Exp(-r*t1) * unit
	}
	return s0 * math.Exp(-q*t1) * unit
}

// normCdf 标准正态分布累积分布函数
func normCdf(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPdf 标准正态分布概率密度函数
func normPdf(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
