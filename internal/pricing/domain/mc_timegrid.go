package domain

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// TimeGrid 模拟使用的时间剖分，起点为 0，强制包含所有关键时点
type TimeGrid struct {
	times     []float64
	mandatory []float64
}

// NewTimeGrid 在 [0, max(mandatory)] 上生成 steps 个区间。
// 各关键时点之间按长度分配步数（最大余数法，每段至少一步），
// 段端点直接取关键时点本身，保证精确命中。
func NewTimeGrid(mandatory []float64, steps int) (*TimeGrid, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("%w: time steps must be positive, got %d", ErrConfiguration, steps)
	}
	if len(mandatory) == 0 {
		return nil, fmt.Errorf("%w: time grid needs at least one mandatory time", ErrConfiguration)
	}
	ends := make([]float64, 0, len(mandatory))
	for _, t := range mandatory {
		if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("%w: invalid mandatory time %g", ErrConfiguration, t)
		}
		if t > 0 {
			ends = append(ends, t)
		}
	}
	slices.Sort(ends)
	ends = slices.Compact(ends)
	if len(ends) == 0 {
		return nil, fmt.Errorf("%w: time grid horizon must be positive", ErrConfiguration)
	}

	horizon := ends[len(ends)-1]
	alloc := allocateSteps(ends, horizon, max(steps, len(ends)))

	times := make([]float64, 1, 1+max(steps, len(ends)))
	times[0] = 0
	start := 0.0
	for i, end := range ends {
		n := alloc[i]
		dt := (end - start) / float64(n)
		for k := 1; k < n; k++ {
			times = append(times, start+float64(k)*dt)
		}
		times = append(times, end)
		start = end
	}
	return &TimeGrid{times: times, mandatory: ends}, nil
}

// allocateSteps 按段长比例分配步数，总和恰为 total
func allocateSteps(ends []float64, horizon float64, total int) []int {
	type share struct {
		idx  int
		frac float64
	}
	alloc := make([]int, len(ends))
	shares := make([]share, len(ends))
	sum := 0
	start := 0.0
	for i, end := range ends {
		ideal := float64(total) * (end - start) / horizon
		base := int(math.Floor(ideal))
		alloc[i] = max(base, 1)
		shares[i] = share{idx: i, frac: ideal - float64(alloc[i])}
		sum += alloc[i]
		start = end
	}
	// 剩余步数给余数最大的段，超出时从余数最小的段收回
	sort.SliceStable(shares, func(a, b int) bool { return shares[a].frac > shares[b].frac })
	for i := 0; sum < total; i = (i + 1) % len(shares) {
		alloc[shares[i].idx]++
		sum++
	}
	for i := len(shares) - 1; sum > total; i-- {
		if i < 0 {
			i = len(shares) - 1
		}
		if alloc[shares[i].idx] > 1 {
			alloc[shares[i].idx]--
			sum--
		}
	}
	return alloc
}

// Times 全部时间点（含 0）
func (g *TimeGrid) Times() []float64 {
	return g.times
}

// Len 时间点个数
func (g *TimeGrid) Len() int {
	return len(g.times)
}

// Intervals 区间个数
func (g *TimeGrid) Intervals() int {
	return len(g.times) - 1
}

// Horizon 终点时间
func (g *TimeGrid) Horizon() float64 {
	return g.times[len(g.times)-1]
}

// At 第 i 个时间点
func (g *TimeGrid) At(i int) float64 {
	return g.times[i]
}

// Dt 第 i 个区间的长度，i 从 1 开始
func (g *TimeGrid) Dt(i int) float64 {
	return g.times[i] - g.times[i-1]
}

// MandatoryTimes 去重排序后的关键时点
func (g *TimeGrid) MandatoryTimes() []float64 {
	return g.mandatory
}

// Index 返回精确等于 t 的时间点下标
func (g *TimeGrid) Index(t float64) (int, error) {
	i, found := slices.BinarySearch(g.times, t)
	if !found {
		return 0, fmt.Errorf("%w: time %g is not on the grid", ErrConfiguration, t)
	}
	return i, nil
}
