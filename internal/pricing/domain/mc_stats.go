package domain

import (
	"fmt"
	"math"
)

// Statistics 样本统计累加器
type Statistics interface {
	Add(value, weight float64)
	// Merge 合并另一批独立样本，满足结合律
	Merge(other Statistics) error
	Samples() int
	WeightSum() float64
	Mean() float64
	Variance() float64
	ErrorEstimate() float64
	Reset()
}

// SampleAccumulator 加权 Welford 在线均值方差
type SampleAccumulator struct {
	samples   int
	weightSum float64
	mean      float64
	m2        float64
}

// NewSampleAccumulator 创建空累加器
func NewSampleAccumulator() Statistics {
	return &SampleAccumulator{}
}

func (a *SampleAccumulator) Add(value, weight float64) {
	if weight <= 0 {
		return
	}
	a.samples++
	a.weightSum += weight
	delta := value - a.mean
	a.mean += delta * weight / a.weightSum
	a.m2 += weight * delta * (value - a.mean)
}

func (a *SampleAccumulator) Merge(other Statistics) error {
	o, ok := other.(*SampleAccumulator)
	if !ok {
		return fmt.Errorf("%w: cannot merge %T into SampleAccumulator", ErrConfiguration, other)
	}
	if o.samples == 0 {
		return nil
	}
	if a.samples == 0 {
		*a = *o
		return nil
	}
	w := a.weightSum + o.weightSum
	delta := o.mean - a.mean
	a.mean += delta * o.weightSum / w
	a.m2 += o.m2 + delta*delta*a.weightSum*o.weightSum/w
	a.weightSum = w
	a.samples += o.samples
	return nil
}

func (a *SampleAccumulator) Samples() int {
	return a.samples
}

func (a *SampleAccumulator) WeightSum() float64 {
	return a.weightSum
}

func (a *SampleAccumulator) Mean() float64 {
	return a.mean
}

// Variance 无偏方差估计，样本不足两个时为 0
func (a *SampleAccumulator) Variance() float64 {
	if a.samples < 2 {
		return 0
	}
	n := float64(a.samples)
	return a.m2 / a.weightSum * n / (n - 1)
}

// ErrorEstimate 均值的标准误差 sqrt(var/n)
func (a *SampleAccumulator) ErrorEstimate() float64 {
	if a.samples < 2 {
		return 0
	}
	return math.Sqrt(a.Variance() / float64(a.samples))
}

func (a *SampleAccumulator) Reset() {
	*a = SampleAccumulator{}
}
