package domain

import (
	"fmt"
	"slices"
)

// Path 一条模拟路径，Values[i] 为 TimeGrid 第 i 个时点的标的水平
type Path struct {
	Grid   *TimeGrid
	Values []float64
}

// Front 起点
func (p *Path) Front() float64 {
	return p.Values[0]
}

// Back 终点
func (p *Path) Back() float64 {
	return p.Values[len(p.Values)-1]
}

// PathGenerator 组合随机过程、随机序列与可选的布朗桥生成路径。
// 正向路径与对偶路径各自使用独立缓冲区，彼此互不覆盖。
type PathGenerator struct {
	process   StochasticProcess
	grid      *TimeGrid
	generator RandomSequenceGenerator
	bridge    *BrownianBridge

	increments []float64
	next       Path
	antithetic Path
}

// NewPathGenerator 创建路径生成器，序列维度须等于因子数乘以区间数
func NewPathGenerator(process StochasticProcess, grid *TimeGrid, generator RandomSequenceGenerator, brownianBridge bool) (*PathGenerator, error) {
	if process.Factors() != 1 {
		return nil, fmt.Errorf("%w: path generator supports single-factor processes, got %d factors", ErrConfiguration, process.Factors())
	}
	dim := process.Factors() * grid.Intervals()
	if generator.Dimension() != dim {
		return nil, fmt.Errorf("%w: sequence dimension %d does not match %d", ErrConfiguration, generator.Dimension(), dim)
	}
	g := &PathGenerator{
		process:    process,
		grid:       grid,
		generator:  generator,
		increments: make([]float64, dim),
		next:       Path{Grid: grid, Values: make([]float64, grid.Len())},
		antithetic: Path{Grid: grid, Values: make([]float64, grid.Len())},
	}
	if brownianBridge {
		b, err := NewBrownianBridge(grid)
		if err != nil {
			return nil, err
		}
		g.bridge = b
	}
	return g, nil
}

// Reset 换用新的时间网格与随机序列，路径与增量缓冲区原样复用。
// 网格时点变化时重建布朗桥。
func (g *PathGenerator) Reset(grid *TimeGrid, generator RandomSequenceGenerator) error {
	dim := g.process.Factors() * grid.Intervals()
	if dim != len(g.increments) || grid.Len() != len(g.next.Values) {
		return fmt.Errorf("%w: cannot reuse path buffers of dimension %d for %d", ErrConfiguration, len(g.increments), dim)
	}
	if generator.Dimension() != dim {
		return fmt.Errorf("%w: sequence dimension %d does not match %d", ErrConfiguration, generator.Dimension(), dim)
	}
	if g.bridge != nil && !slices.Equal(g.grid.Times(), grid.Times()) {
		b, err := NewBrownianBridge(grid)
		if err != nil {
			return err
		}
		g.bridge = b
	}
	g.grid = grid
	g.next.Grid = grid
	g.antithetic.Grid = grid
	g.generator = generator
	return nil
}

// Dimension 每条路径消耗的随机数个数
func (g *PathGenerator) Dimension() int {
	return len(g.increments)
}

// Next 抽取新的随机序列并生成路径
func (g *PathGenerator) Next() *Path {
	draws := g.generator.NextSequence()
	if g.bridge != nil {
		g.bridge.Transform(draws, g.increments)
	} else {
		copy(g.increments, draws)
	}
	g.fill(&g.next, 1)
	return &g.next
}

// Antithetic 用上一次 Next 的增量取反生成镜像路径
func (g *PathGenerator) Antithetic() *Path {
	g.fill(&g.antithetic, -1)
	return &g.antithetic
}

func (g *PathGenerator) fill(path *Path, sign float64) {
	v := path.Values
	v[0] = g.process.InitialValue()
	for i := 1; i < len(v); i++ {
		v[i] = g.process.Evolve(g.grid.At(i-1), v[i-1], g.grid.Dt(i), sign*g.increments[i-1])
	}
}
