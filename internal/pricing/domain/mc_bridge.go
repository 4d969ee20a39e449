package domain

import (
	"fmt"
	"math"
)

// BrownianBridge 先生成终点再逐级二分填充中间点的布朗运动构造。
// 输入为独立标准正态变量，输出为按 sqrt(dt) 归一化后的各区间增量。
type BrownianBridge struct {
	size        int
	sqrtdt      []float64
	bridgeIndex []int
	leftIndex   []int
	rightIndex  []int
	leftWeight  []float64
	rightWeight []float64
	stdDev      []float64
	work        []float64
}

// NewBrownianBridge 基于时间网格（不含 0 之前的点）构造
func NewBrownianBridge(grid *TimeGrid) (*BrownianBridge, error) {
	times := grid.Times()[1:]
	size := len(times)
	if size == 0 {
		return nil, fmt.Errorf("%w: brownian bridge needs at least one interval", ErrConfiguration)
	}
	b := &BrownianBridge{
		size:        size,
		sqrtdt:      make([]float64, size),
		bridgeIndex: make([]int, size),
		leftIndex:   make([]int, size),
		rightIndex:  make([]int, size),
		leftWeight:  make([]float64, size),
		rightWeight: make([]float64, size),
		stdDev:      make([]float64, size),
		work:        make([]float64, size),
	}
	b.sqrtdt[0] = math.Sqrt(times[0])
	for i := 1; i < size; i++ {
		b.sqrtdt[i] = math.Sqrt(times[i] - times[i-1])
	}

	// map[i] 记录第 i 个时点由第几个变量生成，0 表示尚未生成
	mapped := make([]int, size)
	mapped[size-1] = 1
	b.bridgeIndex[0] = size - 1
	b.stdDev[0] = math.Sqrt(times[size-1])

	j := 0
	for i := 1; i < size; i++ {
		for mapped[j] != 0 {
			j++
		}
		k := j
		for mapped[k] == 0 {
			k++
		}
		l := j + ((k - 1 - j) >> 1)
		mapped[l] = i

		b.bridgeIndex[i] = l
		b.leftIndex[i] = j
		b.rightIndex[i] = k
		if j != 0 {
			span := times[k] - times[j-1]
			b.leftWeight[i] = (times[k] - times[l]) / span
			b.rightWeight[i] = (times[l] - times[j-1]) / span
			b.stdDev[i] = math.Sqrt((times[l] - times[j-1]) * (times[k] - times[l]) / span)
		} else {
			b.leftWeight[i] = (times[k] - times[l]) / times[k]
			b.rightWeight[i] = times[l] / times[k]
			b.stdDev[i] = math.Sqrt(times[l] * (times[k] - times[l]) / times[k])
		}
		j = k + 1
		if j >= size {
			j = 0
		}
	}
	return b, nil
}

// Size 区间个数
func (b *BrownianBridge) Size() int {
	return b.size
}

// Transform 将 input 变换为归一化增量写入 output，二者长度须等于 Size
func (b *BrownianBridge) Transform(input, output []float64) {
	w := b.work
	w[b.size-1] = b.stdDev[0] * input[0]
	for i := 1; i < b.size; i++ {
		j, k, l := b.leftIndex[i], b.rightIndex[i], b.bridgeIndex[i]
		if j != 0 {
			w[l] = b.leftWeight[i]*w[j-1] + b.rightWeight[i]*w[k] + b.stdDev[i]*input[i]
		} else {
			w[l] = b.rightWeight[i]*w[k] + b.stdDev[i]*input[i]
		}
	}
	for i := b.size - 1; i >= 1; i-- {
		output[i] = (w[i] - w[i-1]) / b.sqrtdt[i]
	}
	output[0] = w[0] / b.sqrtdt[0]
}
