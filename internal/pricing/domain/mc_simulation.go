package domain

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// SimulationStatus 单次计算的状态机：
// Unconfigured → TimeGridBuilt → Sampling → Converged|Exhausted → Reported
type SimulationStatus string

const (
	StatusUnconfigured  SimulationStatus = "Unconfigured"
	StatusTimeGridBuilt SimulationStatus = "TimeGridBuilt"
	StatusSampling      SimulationStatus = "Sampling"
	StatusConverged     SimulationStatus = "Converged"
	StatusExhausted     SimulationStatus = "Exhausted"
	StatusReported      SimulationStatus = "Reported"
)

const (
	// 仅指定容差时的最小批量
	defaultMinSamples = 1023
	defaultMaxSamples = math.MaxInt32
	// 按误差外推下一批样本量时的保守系数
	batchGrowthFactor = 0.8
)

// ConvergenceCriteria 一次计算的收敛条件，零值表示未设置
type ConvergenceCriteria struct {
	RequiredSamples   int
	RequiredTolerance float64
	MaxSamples        int
}

// Validate 校验收敛条件，低差异序列不支持容差判据
func (c ConvergenceCriteria) Validate(kind SequenceKind) error {
	if c.RequiredSamples < 0 || c.RequiredTolerance < 0 || c.MaxSamples < 0 {
		return fmt.Errorf("%w: negative convergence criteria %+v", ErrConfiguration, c)
	}
	if c.RequiredSamples == 0 && c.RequiredTolerance == 0 {
		return fmt.Errorf("%w: neither required samples nor required tolerance given", ErrConfiguration)
	}
	if c.RequiredTolerance > 0 && !kind.AllowsErrorEstimate() {
		return fmt.Errorf("%w: %s sequence provides no error estimate for a tolerance criterion", ErrConfiguration, kind)
	}
	return nil
}

func (c ConvergenceCriteria) maxSamples() int {
	if c.MaxSamples == 0 {
		return defaultMaxSamples
	}
	return c.MaxSamples
}

// PathPricer 计算单条路径的贴现收益
type PathPricer interface {
	Price(path *Path) (float64, error)
}

// PathPricerFunc 函数适配器
type PathPricerFunc func(path *Path) (float64, error)

func (f PathPricerFunc) Price(path *Path) (float64, error) {
	return f(path)
}

// PathGeneratorFactory 为第 stream 个（共 streams 个）工作者创建路径生成器
type PathGeneratorFactory func(stream, streams int) (*PathGenerator, error)

// MonteCarloModelConfig 模拟模型配置
type MonteCarloModelConfig struct {
	Workers       int
	Antithetic    bool
	NewStatistics func() Statistics
}

type mcWorker struct {
	generator *PathGenerator
	stats     Statistics
}

// MonteCarloModel 路径生成、路径定价与统计累加的组合。
// 多个工作者各自持有生成器与累加器，每批结束后按工作者顺序合并。
type MonteCarloModel struct {
	workers    []*mcWorker
	pricer     PathPricer
	antithetic bool
	stats      Statistics
}

// NewMonteCarloModel 创建模拟模型
func NewMonteCarloModel(newGenerator PathGeneratorFactory, pricer PathPricer, cfg MonteCarloModelConfig) (*MonteCarloModel, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.NewStatistics == nil {
		cfg.NewStatistics = NewSampleAccumulator
	}
	m := &MonteCarloModel{
		workers:    make([]*mcWorker, cfg.Workers),
		pricer:     pricer,
		antithetic: cfg.Antithetic,
		stats:      cfg.NewStatistics(),
	}
	for w := range cfg.Workers {
		gen, err := newGenerator(w, cfg.Workers)
		if err != nil {
			return nil, err
		}
		m.workers[w] = &mcWorker{generator: gen, stats: cfg.NewStatistics()}
	}
	return m, nil
}

// Statistics 所有工作者合并后的统计量
func (m *MonteCarloModel) Statistics() Statistics {
	return m.stats
}

// AddSamples 追加 n 个样本；开启对偶变量时每个样本为一对路径收益的均值
func (m *MonteCarloModel) AddSamples(n int) error {
	if n <= 0 {
		return nil
	}
	count := len(m.workers)
	var g errgroup.Group
	for w, worker := range m.workers {
		quota := n / count
		if w < n%count {
			quota++
		}
		if quota == 0 {
			continue
		}
		g.Go(func() error {
			return m.sample(worker, quota)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.stats.Reset()
	for _, worker := range m.workers {
		if err := m.stats.Merge(worker.stats); err != nil {
			return err
		}
	}
	return nil
}

func (m *MonteCarloModel) sample(worker *mcWorker, n int) error {
	for range n {
		value, err := m.pricer.Price(worker.generator.Next())
		if err != nil {
			return err
		}
		if m.antithetic {
			mirror, err := m.pricer.Price(worker.generator.Antithetic())
			if err != nil {
				return err
			}
			value = (value + mirror) / 2
		}
		worker.stats.Add(value, 1)
	}
	return nil
}

// Run 按收敛条件采样，返回 StatusConverged 或 StatusExhausted。
// 达到样本上限而未满足容差不视为错误。
func (m *MonteCarloModel) Run(c ConvergenceCriteria, kind SequenceKind) (SimulationStatus, error) {
	if err := c.Validate(kind); err != nil {
		return StatusUnconfigured, err
	}
	maxSamples := c.maxSamples()

	if c.RequiredTolerance == 0 {
		target := min(c.RequiredSamples, maxSamples)
		if err := m.AddSamples(target - m.stats.Samples()); err != nil {
			return StatusSampling, err
		}
		if m.stats.Samples() < c.RequiredSamples {
			return StatusExhausted, nil
		}
		return StatusConverged, nil
	}

	minSamples := c.RequiredSamples
	if minSamples == 0 {
		minSamples = defaultMinSamples
	}
	minSamples = min(max(minSamples, 2), maxSamples)

	n := m.stats.Samples()
	if n < minSamples {
		if err := m.AddSamples(minSamples - n); err != nil {
			return StatusSampling, err
		}
		n = m.stats.Samples()
	}
	for {
		errEstimate := m.stats.ErrorEstimate()
		if errEstimate <= c.RequiredTolerance && n >= c.RequiredSamples {
			return StatusConverged, nil
		}
		order := errEstimate * errEstimate / (c.RequiredTolerance * c.RequiredTolerance)
		next := math.Max(float64(n)*order*batchGrowthFactor-float64(n), float64(minSamples))
		next = math.Min(next, float64(maxSamples-n))
		if next < 1 {
			return StatusExhausted, nil
		}
		if err := m.AddSamples(int(next)); err != nil {
			return StatusSampling, err
		}
		n = m.stats.Samples()
	}
}
