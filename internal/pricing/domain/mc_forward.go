package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ForwardStyle 远期生效期权的收益形式
type ForwardStyle int

const (
	ForwardVanilla     ForwardStyle = iota // 重置日按 moneyness·S(t1) 定行权价
	ForwardPerformance                     // 以 S(t2)/S(t1) 为标的、moneyness 为行权价
)

func (s ForwardStyle) String() string {
	switch s {
	case ForwardVanilla:
		return "vanilla"
	case ForwardPerformance:
		return "performance"
	default:
		return fmt.Sprintf("ForwardStyle(%d)", int(s))
	}
}

// ParseForwardStyle 解析收益形式，空串视为 vanilla
func ParseForwardStyle(s string) (ForwardStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "vanilla":
		return ForwardVanilla, nil
	case "performance":
		return ForwardPerformance, nil
	default:
		return 0, fmt.Errorf("%w: unknown forward style %q", ErrConfiguration, s)
	}
}

// ForwardOptionArguments 远期生效期权条款
type ForwardOptionArguments struct {
	Type         OptionType
	Style        ForwardStyle
	Moneyness    float64
	ResetDate    time.Time
	ExerciseDate time.Time
}

// Validate 校验条款
func (a ForwardOptionArguments) Validate() error {
	if err := a.Type.Validate(); err != nil {
		return err
	}
	if a.Style != ForwardVanilla && a.Style != ForwardPerformance {
		return fmt.Errorf("%w: unknown forward style %d", ErrConfiguration, int(a.Style))
	}
	if a.Moneyness <= 0 {
		return fmt.Errorf("%w: moneyness must be positive, got %g", ErrConfiguration, a.Moneyness)
	}
	if a.ExerciseDate.Before(a.ResetDate) {
		return fmt.Errorf("%w: exercise date %s before reset date %s", ErrConfiguration,
			a.ExerciseDate.Format(time.DateOnly), a.ResetDate.Format(time.DateOnly))
	}
	return nil
}

// MonteCarloResults 一次蒙特卡洛计算的结果
type MonteCarloResults struct {
	Value            float64
	ErrorEstimate    float64
	HasErrorEstimate bool
	Samples          int
	Status           SimulationStatus
	ToleranceReached bool
	ResetTime        float64
	ExerciseTime     float64
	TimeSteps        int
}

type engineConfig struct {
	timeSteps         *int
	timeStepsPerYear  *int
	brownianBridge    bool
	antitheticVariate bool
	requiredSamples   int
	requiredTolerance float64
	maxSamples        int
	seed              uint64
	sequence          SequenceKind
	workers           int
}

// EngineOption 引擎可选配置
type EngineOption func(*engineConfig)

// WithTimeSteps 固定时间步数，与 WithTimeStepsPerYear 二选一
func WithTimeSteps(n int) EngineOption {
	return func(c *engineConfig) { c.timeSteps = &n }
}

// WithTimeStepsPerYear 按年化密度确定时间步数，与 WithTimeSteps 二选一
func WithTimeStepsPerYear(n int) EngineOption {
	return func(c *engineConfig) { c.timeStepsPerYear = &n }
}

// WithBrownianBridge 启用布朗桥构造
func WithBrownianBridge(enabled bool) EngineOption {
	return func(c *engineConfig) { c.brownianBridge = enabled }
}

// WithAntitheticVariate 启用对偶变量
func WithAntitheticVariate(enabled bool) EngineOption {
	return func(c *engineConfig) { c.antitheticVariate = enabled }
}

// WithRequiredSamples 最少样本数
func WithRequiredSamples(n int) EngineOption {
	return func(c *engineConfig) { c.requiredSamples = n }
}

// WithRequiredTolerance 目标误差
func WithRequiredTolerance(tol float64) EngineOption {
	return func(c *engineConfig) { c.requiredTolerance = tol }
}

// WithMaxSamples 样本上限
func WithMaxSamples(n int) EngineOption {
	return func(c *engineConfig) { c.maxSamples = n }
}

// WithSeed 随机种子
func WithSeed(seed uint64) EngineOption {
	return func(c *engineConfig) { c.seed = seed }
}

// WithSequence 随机序列类型
func WithSequence(kind SequenceKind) EngineOption {
	return func(c *engineConfig) { c.sequence = kind }
}

// WithWorkers 并行工作者数量
func WithWorkers(n int) EngineOption {
	return func(c *engineConfig) { c.workers = n }
}

func (c engineConfig) validate() error {
	switch {
	case c.timeSteps == nil && c.timeStepsPerYear == nil:
		return fmt.Errorf("%w: no time steps provided", ErrConfiguration)
	case c.timeSteps != nil && c.timeStepsPerYear != nil:
		return fmt.Errorf("%w: both time steps and time steps per year were provided", ErrConfiguration)
	case c.timeSteps != nil && *c.timeSteps <= 0:
		return fmt.Errorf("%w: timeSteps must be positive, %d not allowed", ErrConfiguration, *c.timeSteps)
	case c.timeStepsPerYear != nil && *c.timeStepsPerYear <= 0:
		return fmt.Errorf("%w: timeStepsPerYear must be positive, %d not allowed", ErrConfiguration, *c.timeStepsPerYear)
	case c.workers < 0:
		return fmt.Errorf("%w: negative worker count %d", ErrConfiguration, c.workers)
	}
	if c.sequence != SequencePseudoRandom && c.sequence != SequenceLowDiscrepancy {
		return fmt.Errorf("%w: unknown sequence kind %d", ErrConfiguration, int(c.sequence))
	}
	return c.criteria().Validate(c.sequence)
}

func (c engineConfig) criteria() ConvergenceCriteria {
	return ConvergenceCriteria{
		RequiredSamples:   c.requiredSamples,
		RequiredTolerance: c.requiredTolerance,
		MaxSamples:        c.maxSamples,
	}
}

// ForwardVanillaEngine 远期生效期权的蒙特卡洛定价引擎。
// 订阅随机过程的参数变化，变化后缓存结果失效。
type ForwardVanillaEngine struct {
	LazyObject

	process     StochasticProcess
	cfg         engineConfig
	args        *ForwardOptionArguments
	unsubscribe func()
	state       SimulationStatus
	results     MonteCarloResults

	// 按工作者缓存，网格长度与维度不变时跨计算复用缓冲区
	generators []*PathGenerator
}

// NewForwardVanillaEngine 创建引擎并校验采样配置
func NewForwardVanillaEngine(process StochasticProcess, opts ...EngineOption) (*ForwardVanillaEngine, error) {
	if process == nil {
		return nil, fmt.Errorf("%w: nil stochastic process", ErrConfiguration)
	}
	cfg := engineConfig{workers: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &ForwardVanillaEngine{
		process: process,
		cfg:     cfg,
		state:   StatusUnconfigured,
	}
	e.unsubscribe = process.Subscribe(e.Invalidate)
	return e, nil
}

// Close 取消对随机过程的订阅
func (e *ForwardVanillaEngine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// SetArguments 设置期权条款，缓存失效
func (e *ForwardVanillaEngine) SetArguments(args ForwardOptionArguments) error {
	if err := args.Validate(); err != nil {
		return err
	}
	e.args = &args
	e.Invalidate()
	return nil
}

// State 当前状态
func (e *ForwardVanillaEngine) State() SimulationStatus {
	return e.state
}

// Results 最近一次计算结果
func (e *ForwardVanillaEngine) Results() MonteCarloResults {
	return e.results
}

func (e *ForwardVanillaEngine) mandatoryTimes() (t1, t2 float64, err error) {
	if e.args == nil {
		return 0, 0, fmt.Errorf("%w: option arguments not set", ErrConfiguration)
	}
	t1 = e.process.Time(e.args.ResetDate)
	t2 = e.process.Time(e.args.ExerciseDate)
	if t1 < 0 || t2 <= 0 {
		return 0, 0, fmt.Errorf("%w: reset time %g and exercise time %g must lie after the reference date",
			ErrInvalidMarketData, t1, t2)
	}
	return t1, t2, nil
}

// TimeGrid 以重置时点与到期时点为必含点的时间网格
func (e *ForwardVanillaEngine) TimeGrid() (*TimeGrid, error) {
	t1, t2, err := e.mandatoryTimes()
	if err != nil {
		return nil, err
	}
	var steps int
	if e.cfg.timeSteps != nil {
		steps = *e.cfg.timeSteps
	} else {
		steps = max(int(math.Round(float64(*e.cfg.timeStepsPerYear)*t2)), 1)
	}
	return NewTimeGrid([]float64{t1, t2}, steps)
}

// PathGenerator 单工作者的路径生成器
func (e *ForwardVanillaEngine) PathGenerator() (*PathGenerator, error) {
	grid, err := e.TimeGrid()
	if err != nil {
		return nil, err
	}
	return e.pathGenerator(grid, 0, 1)
}

func (e *ForwardVanillaEngine) pathGenerator(grid *TimeGrid, stream, streams int) (*PathGenerator, error) {
	dim := e.process.Factors() * grid.Intervals()
	seq, err := e.cfg.sequence.NewSequenceGenerator(dim, e.cfg.seed, stream, streams)
	if err != nil {
		return nil, err
	}
	return NewPathGenerator(e.process, grid, seq, e.cfg.brownianBridge)
}

// workerGenerator 取第 stream 个工作者的缓存生成器，随机序列每次重新播种以保证可复现
func (e *ForwardVanillaEngine) workerGenerator(grid *TimeGrid, stream, streams int) (*PathGenerator, error) {
	if len(e.generators) != streams {
		e.generators = make([]*PathGenerator, streams)
	}
	dim := e.process.Factors() * grid.Intervals()
	if g := e.generators[stream]; g != nil && g.Dimension() == dim && len(g.next.Values) == grid.Len() {
		seq, err := e.cfg.sequence.NewSequenceGenerator(dim, e.cfg.seed, stream, streams)
		if err != nil {
			return nil, err
		}
		if err := g.Reset(grid, seq); err != nil {
			return nil, err
		}
		return g, nil
	}
	g, err := e.pathGenerator(grid, stream, streams)
	if err != nil {
		return nil, err
	}
	e.generators[stream] = g
	return g, nil
}

// Calculate 运行完整采样循环；参数未变化时直接返回缓存结果
func (e *ForwardVanillaEngine) Calculate() (MonteCarloResults, error) {
	if err := e.LazyObject.Calculate(e.calculate); err != nil {
		e.state = StatusUnconfigured
		return MonteCarloResults{}, err
	}
	return e.results, nil
}

func (e *ForwardVanillaEngine) calculate() error {
	e.state = StatusUnconfigured
	grid, err := e.TimeGrid()
	if err != nil {
		return err
	}
	e.state = StatusTimeGridBuilt

	t1, t2, _ := e.mandatoryTimes()
	resetIndex, err := grid.Index(t1)
	if err != nil {
		return err
	}
	pricer := forwardPathPricer{
		optionType: e.args.Type,
		style:      e.args.Style,
		moneyness:  e.args.Moneyness,
		resetIndex: resetIndex,
		discount:   e.process.Discount(t2),
	}
	model, err := NewMonteCarloModel(
		func(stream, streams int) (*PathGenerator, error) {
			return e.workerGenerator(grid, stream, streams)
		},
		pricer,
		MonteCarloModelConfig{Workers: e.cfg.workers, Antithetic: e.cfg.antitheticVariate},
	)
	if err != nil {
		return err
	}

	e.state = StatusSampling
	status, err := model.Run(e.cfg.criteria(), e.cfg.sequence)
	if err != nil {
		return err
	}
	e.state = status

	stats := model.Statistics()
	results := MonteCarloResults{
		Value:            stats.Mean(),
		Samples:          stats.Samples(),
		Status:           status,
		ToleranceReached: status == StatusConverged && e.cfg.requiredTolerance > 0,
		ResetTime:        t1,
		ExerciseTime:     t2,
		TimeSteps:        grid.Intervals(),
	}
	if e.cfg.sequence.AllowsErrorEstimate() {
		results.ErrorEstimate = stats.ErrorEstimate()
		results.HasErrorEstimate = true
	}
	e.results = results
	e.state = StatusReported
	return nil
}

// forwardPathPricer 远期生效期权的路径收益
type forwardPathPricer struct {
	optionType OptionType
	style      ForwardStyle
	moneyness  float64
	resetIndex int
	discount   float64
}

func (p forwardPathPricer) Price(path *Path) (float64, error) {
	s1 := path.Values[p.resetIndex]
	s2 := path.Back()
	var payoff float64
	var err error
	switch p.style {
	case ForwardVanilla:
		payoff, err = p.optionType.Payoff(s2, p.moneyness*s1)
	case ForwardPerformance:
		payoff, err = p.optionType.Payoff(s2/s1, p.moneyness)
	default:
		err = fmt.Errorf("%w: unknown forward style %d", ErrConfiguration, int(p.style))
	}
	if err != nil {
		return 0, err
	}
	return payoff * p.discount, nil
}
