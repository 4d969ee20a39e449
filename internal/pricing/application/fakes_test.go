package application

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/config"
	"github.com/wyfcoding/pkg/contextx"
)

type memTx struct{ id int }

type memRepository struct {
	mu      sync.Mutex
	results []*domain.PricingResult
	txs     int
	saveErr error
}

func (r *memRepository) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	r.mu.Lock()
	r.txs++
	tx := &memTx{id: r.txs}
	r.mu.Unlock()

	// fn 失败时丢弃事务内保存的结果
	var staged []*domain.PricingResult
	txCtx := contextx.WithTx(context.WithValue(ctx, stageKey{}, &staged), tx)
	if err := fn(txCtx); err != nil {
		return err
	}
	r.mu.Lock()
	r.results = append(r.results, staged...)
	r.mu.Unlock()
	return nil
}

type stageKey struct{}

func (r *memRepository) Save(ctx context.Context, result *domain.PricingResult) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	result.ID = uint(len(r.results) + 1)
	if staged, ok := ctx.Value(stageKey{}).(*[]*domain.PricingResult); ok {
		*staged = append(*staged, result)
		return nil
	}
	r.results = append(r.results, result)
	return nil
}

func (r *memRepository) GetLatest(_ context.Context, symbol string) (*domain.PricingResult, error) {
	history, _ := r.GetHistory(context.Background(), symbol, 1)
	if len(history) == 0 {
		return nil, nil
	}
	return history[0], nil
}

func (r *memRepository) GetHistory(_ context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PricingResult
	for _, res := range r.results {
		if res.Symbol == symbol {
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CalculatedAt > out[j].CalculatedAt })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]*domain.PricingResult
	getErr  error
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*domain.PricingResult)}
}

func (c *memCache) Set(_ context.Context, result *domain.PricingResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[result.Symbol] = result
	return nil
}

func (c *memCache) Get(_ context.Context, symbol string) (*domain.PricingResult, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[symbol], nil
}

func (c *memCache) Delete(_ context.Context, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, symbol)
	return nil
}

type publishedEvent struct {
	eventType string
	key       string
	event     any
	inTx      bool
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	txErr  error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{eventType: eventType, key: key, event: event})
	return nil
}

func (p *recordingPublisher) PublishInTx(_ context.Context, tx any, eventType, key string, event any) error {
	if p.txErr != nil {
		return p.txErr
	}
	if _, ok := tx.(*memTx); !ok {
		return errors.New("publish outside transaction")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{eventType: eventType, key: key, event: event, inTx: true})
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testPricingConfig() config.PricingConfig {
	return config.PricingConfig{
		FD: config.FDConfig{GridPoints: 101, TimeSteps: 100},
		MC: config.MCConfig{
			TimeStepsPerYear:  12,
			AntitheticVariate: true,
			RequiredTolerance: 0.05,
			MaxSamples:        200000,
			Seed:              7,
			Sequence:          "pseudorandom",
			Workers:           2,
		},
		BatchConcurrency: 2,
	}
}
