package application

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

type bookEntry struct {
	mu     sync.Mutex
	option *domain.FiniteDifferenceOption
}

// OptionBook 已簿记的有限差分合约。
// 同一合约的访问串行化，不同合约可并发定价。
type OptionBook struct {
	mu      sync.RWMutex
	entries map[string]*bookEntry
}

// NewOptionBook 创建空簿记
func NewOptionBook() *OptionBook {
	return &OptionBook{entries: make(map[string]*bookEntry)}
}

func (b *OptionBook) entry(id string, create bool) *bookEntry {
	b.mu.RLock()
	e, ok := b.entries[id]
	b.mu.RUnlock()
	if ok || !create {
		return e
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok = b.entries[id]; ok {
		return e
	}
	e = &bookEntry{}
	b.entries[id] = e
	return e
}

// FDQuote 一次定价请求携带的合约参数。
// 正数参数为 0、利率为 nil 时表示沿用簿记值，首次簿记时利率缺省为 0。
type FDQuote struct {
	Type          domain.OptionType
	Underlying    float64
	Strike        float64
	DividendYield *float64
	RiskFreeRate  *float64
	ResidualTime  float64
	Volatility    float64
	GridPoints    int
	TimeSteps     int
}

// mergeInto 以 cur 为底合并请求参数
func (q FDQuote) mergeInto(cur domain.FDOptionParams) domain.FDOptionParams {
	p := cur
	p.Type = q.Type
	p.Underlying = keepPositive(q.Underlying, cur.Underlying)
	p.Strike = keepPositive(q.Strike, cur.Strike)
	p.ResidualTime = keepPositive(q.ResidualTime, cur.ResidualTime)
	p.Volatility = keepPositive(q.Volatility, cur.Volatility)
	if q.DividendYield != nil {
		p.DividendYield = *q.DividendYield
	}
	if q.RiskFreeRate != nil {
		p.RiskFreeRate = *q.RiskFreeRate
	}
	p.GridPoints = q.GridPoints
	p.TimeSteps = q.TimeSteps
	return p
}

func keepPositive(v, cur float64) float64 {
	if v == 0 {
		return cur
	}
	return v
}

// Apply 取得或创建合约并把请求参数合并进去，随后在合约锁内执行 fn。
// 只有变化的参数经 setter 写入，未变化时缓存结果保持有效。
func (b *OptionBook) Apply(id string, q FDQuote, fn func(*domain.FiniteDifferenceOption) error) error {
	e := b.entry(id, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.option == nil {
		opt, err := domain.NewFiniteDifferenceOption(q.mergeInto(domain.FDOptionParams{}))
		if err != nil {
			b.remove(id, e)
			return err
		}
		e.option = opt
		// 首次定价失败的合约不留在簿记中
		if err := fn(opt); err != nil {
			e.option = nil
			b.remove(id, e)
			return err
		}
		return nil
	}

	params := q.mergeInto(e.option.Params())
	if needsRebuild(e.option.Params(), params) {
		opt, err := domain.NewFiniteDifferenceOption(params)
		if err != nil {
			return err
		}
		e.option = opt
	} else if err := syncParams(e.option, params); err != nil {
		return err
	}
	return fn(e.option)
}

// Update 在合约锁内修改已簿记合约，不存在时返回 ErrInstrumentNotFound
func (b *OptionBook) Update(id string, fn func(*domain.FiniteDifferenceOption) error) error {
	e := b.entry(id, false)
	if e == nil {
		return fmt.Errorf("%w: %s", domain.ErrInstrumentNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.option == nil {
		return fmt.Errorf("%w: %s", domain.ErrInstrumentNotFound, id)
	}
	return fn(e.option)
}

// Remove 移除合约
func (b *OptionBook) Remove(id string) {
	b.mu.Lock()
	delete(b.entries, id)
	b.mu.Unlock()
}

func (b *OptionBook) remove(id string, e *bookEntry) {
	b.mu.Lock()
	if b.entries[id] == e {
		delete(b.entries, id)
	}
	b.mu.Unlock()
}

// Symbols 已簿记的合约标识，按字典序
func (b *OptionBook) Symbols() []string {
	b.mu.RLock()
	ids := make([]string, 0, len(b.entries))
	for id := range b.entries {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// 网格规模没有 setter，变化时重建
func needsRebuild(cur, next domain.FDOptionParams) bool {
	return cur.GridPoints != next.GridPoints || cur.TimeSteps != next.TimeSteps
}

// setter 对相同值不触发失效
func syncParams(opt *domain.FiniteDifferenceOption, p domain.FDOptionParams) error {
	if err := opt.SetOptionType(p.Type); err != nil {
		return err
	}
	opt.SetUnderlying(p.Underlying)
	opt.SetStrike(p.Strike)
	opt.SetDividendYield(p.DividendYield)
	opt.SetRiskFreeRate(p.RiskFreeRate)
	opt.SetResidualTime(p.ResidualTime)
	opt.SetVolatility(p.Volatility)
	return nil
}
