package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/config"
	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
	"github.com/wyfcoding/optionpricing/pkg/tracing"
	"github.com/wyfcoding/pkg/contextx"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// PricingCommandService 处理定价相关的命令操作
// 使用 Outbox 发布领域事件
type PricingCommandService struct {
	repo      domain.PricingRepository
	cache     domain.PricingResultCache
	publisher domain.EventPublisher
	book      *OptionBook
	defaults  config.PricingConfig
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewPricingCommandService 创建新的 PricingCommandService 实例。
// cache、publisher、m 可为 nil。
func NewPricingCommandService(
	repo domain.PricingRepository,
	cache domain.PricingResultCache,
	publisher domain.EventPublisher,
	book *OptionBook,
	defaults config.PricingConfig,
	m *metrics.Metrics,
) *PricingCommandService {
	if book == nil {
		book = NewOptionBook()
	}
	return &PricingCommandService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		book:      book,
		defaults:  defaults,
		metrics:   m,
		now:       time.Now,
	}
}

type outboxEvent struct {
	eventType string
	payload   any
}

// PriceFiniteDifference 有限差分定价并计算希腊字母
func (c *PricingCommandService) PriceFiniteDifference(ctx context.Context, cmd PriceFiniteDifferenceCommand) (*domain.PricingResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pricing.PriceFiniteDifference",
		attribute.String("symbol", cmd.Symbol),
		attribute.String("option_type", cmd.OptionType),
	)
	start := time.Now()
	result, err := c.priceFiniteDifference(ctx, cmd)
	c.record(domain.PricingModelFiniteDifference, start, err)
	tracing.EndSpan(span, err)
	if err != nil {
		c.reportError(ctx, cmd.Symbol, cmd.OptionType, domain.PricingModelFiniteDifference, err)
		return nil, err
	}
	return result, nil
}

func (c *PricingCommandService) priceFiniteDifference(ctx context.Context, cmd PriceFiniteDifferenceCommand) (*domain.PricingResult, error) {
	if cmd.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrConfiguration)
	}
	optionType, err := domain.ParseOptionType(cmd.OptionType)
	if err != nil {
		return nil, err
	}
	quote := FDQuote{
		Type:          optionType,
		Underlying:    cmd.Underlying,
		Strike:        cmd.Strike,
		DividendYield: cmd.DividendYield,
		RiskFreeRate:  cmd.RiskFreeRate,
		ResidualTime:  cmd.ResidualTime,
		Volatility:    cmd.Volatility,
		GridPoints:    orDefault(cmd.GridPoints, c.defaults.FD.GridPoints),
		TimeSteps:     orDefault(cmd.TimeSteps, c.defaults.FD.TimeSteps),
	}

	var (
		params domain.FDOptionParams
		value  float64
		greeks domain.Greeks
	)
	err = c.book.Apply(cmd.Symbol, quote, func(opt *domain.FiniteDifferenceOption) error {
		params = opt.Params()
		before := opt.Calculations()
		v, err := opt.Value()
		if err != nil {
			return err
		}
		g, err := opt.Greeks()
		if err != nil {
			return err
		}
		if n := opt.Calculations() - before; n > 0 && c.metrics != nil {
			c.metrics.FDRecalculations.Add(float64(n))
		}
		value, greeks = v, g
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finite difference pricing for %s failed: %w", cmd.Symbol, err)
	}

	now := c.now()
	result := domain.NewFiniteDifferenceResult(cmd.Symbol, params, value, greeks, now)
	priced := domain.OptionPricedEvent{
		Symbol:          cmd.Symbol,
		OptionType:      optionType,
		PricingModel:    domain.PricingModelFiniteDifference,
		StrikePrice:     params.Strike,
		OptionPrice:     value,
		UnderlyingPrice: params.Underlying,
		Volatility:      params.Volatility,
		RiskFreeRate:    params.RiskFreeRate,
		DividendYield:   params.DividendYield,
		Status:          result.Status,
		CalculatedAt:    result.CalculatedAt,
		OccurredOn:      now,
	}
	greeksEvent := domain.GreeksCalculatedEvent{
		Symbol:          cmd.Symbol,
		OptionType:      optionType,
		StrikePrice:     params.Strike,
		UnderlyingPrice: params.Underlying,
		Delta:           greeks.Delta,
		Gamma:           greeks.Gamma,
		Theta:           greeks.Theta,
		Vega:            greeks.Vega,
		Rho:             greeks.Rho,
		CalculatedAt:    result.CalculatedAt,
		OccurredOn:      now,
	}
	if err := c.persist(ctx, result,
		outboxEvent{domain.OptionPricedEventType, priced},
		outboxEvent{domain.GreeksCalculatedEventType, greeksEvent},
	); err != nil {
		return nil, err
	}
	c.cacheResult(ctx, result)

	logger.Info(ctx, "finite difference option priced",
		"symbol", cmd.Symbol,
		"option_type", optionType,
		"value", value,
		"delta", greeks.Delta,
	)
	return result, nil
}

// PriceForwardMonteCarlo 远期生效期权蒙特卡洛定价
func (c *PricingCommandService) PriceForwardMonteCarlo(ctx context.Context, cmd PriceForwardMonteCarloCommand) (*domain.PricingResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pricing.PriceForwardMonteCarlo",
		attribute.String("symbol", cmd.Symbol),
		attribute.String("option_type", cmd.OptionType),
		attribute.String("style", cmd.Style),
	)
	start := time.Now()
	result, err := c.priceForwardMonteCarlo(ctx, cmd)
	c.record(domain.PricingModelMonteCarloForward, start, err)
	if result != nil {
		span.SetAttributes(
			attribute.Int("mc.samples", result.Samples),
			attribute.String("mc.status", result.Status),
		)
	}
	tracing.EndSpan(span, err)
	if err != nil {
		c.reportError(ctx, cmd.Symbol, cmd.OptionType, domain.PricingModelMonteCarloForward, err)
		return nil, err
	}
	return result, nil
}

func (c *PricingCommandService) priceForwardMonteCarlo(ctx context.Context, cmd PriceForwardMonteCarloCommand) (*domain.PricingResult, error) {
	if cmd.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrConfiguration)
	}
	optionType, err := domain.ParseOptionType(cmd.OptionType)
	if err != nil {
		return nil, err
	}
	style, err := domain.ParseForwardStyle(cmd.Style)
	if err != nil {
		return nil, err
	}
	opts, err := c.engineOptions(cmd)
	if err != nil {
		return nil, err
	}

	referenceDate := cmd.ReferenceDate
	if referenceDate.IsZero() {
		referenceDate = c.now()
	}
	process, err := domain.NewBlackScholesProcess(referenceDate, cmd.Spot, cmd.RiskFreeRate, cmd.DividendYield, cmd.Volatility)
	if err != nil {
		return nil, err
	}
	engine, err := domain.NewForwardVanillaEngine(process, opts...)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	args := domain.ForwardOptionArguments{
		Type:         optionType,
		Style:        style,
		Moneyness:    cmd.Moneyness,
		ResetDate:    cmd.ResetDate,
		ExerciseDate: cmd.ExerciseDate,
	}
	if err := engine.SetArguments(args); err != nil {
		return nil, err
	}
	res, err := engine.Calculate()
	if err != nil {
		return nil, fmt.Errorf("monte carlo pricing for %s failed: %w", cmd.Symbol, err)
	}

	if c.metrics != nil {
		c.metrics.MCSamples.Observe(float64(res.Samples))
	}
	if res.Status == domain.StatusExhausted {
		if c.metrics != nil {
			c.metrics.MCExhausted.Inc()
		}
		logger.Warn(ctx, "monte carlo sampling stopped at max samples before reaching tolerance",
			"symbol", cmd.Symbol,
			"samples", res.Samples,
			"error_estimate", res.ErrorEstimate,
		)
	}

	now := c.now()
	result := domain.NewMonteCarloResult(cmd.Symbol, args, cmd.Spot, cmd.Volatility, res, now)
	priced := domain.OptionPricedEvent{
		Symbol:          cmd.Symbol,
		OptionType:      optionType,
		PricingModel:    domain.PricingModelMonteCarloForward,
		StrikePrice:     cmd.Moneyness,
		OptionPrice:     res.Value,
		UnderlyingPrice: cmd.Spot,
		Volatility:      cmd.Volatility,
		RiskFreeRate:    cmd.RiskFreeRate,
		DividendYield:   cmd.DividendYield,
		Samples:         res.Samples,
		Status:          result.Status,
		CalculatedAt:    result.CalculatedAt,
		OccurredOn:      now,
	}
	if res.HasErrorEstimate {
		e := res.ErrorEstimate
		priced.ErrorEstimate = &e
	}
	if err := c.persist(ctx, result, outboxEvent{domain.OptionPricedEventType, priced}); err != nil {
		return nil, err
	}
	c.cacheResult(ctx, result)

	logger.Info(ctx, "forward start option priced",
		"symbol", cmd.Symbol,
		"style", style,
		"value", res.Value,
		"error_estimate", res.ErrorEstimate,
		"samples", res.Samples,
		"time_steps", res.TimeSteps,
		"status", res.Status,
	)
	return result, nil
}

// engineOptions 合并命令与配置默认值
func (c *PricingCommandService) engineOptions(cmd PriceForwardMonteCarloCommand) ([]domain.EngineOption, error) {
	d := c.defaults.MC

	sequence := cmd.Sequence
	if sequence == "" {
		sequence = d.Sequence
	}
	kind, err := domain.ParseSequenceKind(sequence)
	if err != nil {
		return nil, err
	}
	opts := []domain.EngineOption{domain.WithSequence(kind)}

	// 两者同时给出时交由引擎报配置错误
	if cmd.TimeSteps == 0 && cmd.TimeStepsPerYear == 0 {
		opts = append(opts, domain.WithTimeStepsPerYear(d.TimeStepsPerYear))
	}
	if cmd.TimeSteps != 0 {
		opts = append(opts, domain.WithTimeSteps(cmd.TimeSteps))
	}
	if cmd.TimeStepsPerYear != 0 {
		opts = append(opts, domain.WithTimeStepsPerYear(cmd.TimeStepsPerYear))
	}

	bridge := d.BrownianBridge
	if cmd.BrownianBridge != nil {
		bridge = *cmd.BrownianBridge
	}
	antithetic := d.AntitheticVariate
	if cmd.AntitheticVariate != nil {
		antithetic = *cmd.AntitheticVariate
	}

	samples := cmd.RequiredSamples
	var tolerance float64
	if cmd.RequiredTolerance != nil {
		tolerance = *cmd.RequiredTolerance
	}
	if cmd.RequiredSamples == 0 && cmd.RequiredTolerance == nil {
		samples = d.RequiredSamples
		// 低差异序列没有误差估计，不套用默认精度
		if kind.AllowsErrorEstimate() {
			tolerance = d.RequiredTolerance
		}
	}

	seed := d.Seed
	if cmd.Seed != nil {
		seed = *cmd.Seed
	}

	opts = append(opts,
		domain.WithBrownianBridge(bridge),
		domain.WithAntitheticVariate(antithetic),
		domain.WithRequiredSamples(samples),
		domain.WithRequiredTolerance(tolerance),
		domain.WithMaxSamples(orDefault(cmd.MaxSamples, d.MaxSamples)),
		domain.WithSeed(seed),
		domain.WithWorkers(orDefault(cmd.Workers, d.Workers)),
	)
	return opts, nil
}

// UpdateVolatility 更新已簿记合约的波动率，合约缓存结果随之失效
func (c *PricingCommandService) UpdateVolatility(ctx context.Context, cmd UpdateVolatilityCommand) error {
	ctx, span := tracing.StartSpan(ctx, "pricing.UpdateVolatility", attribute.String("symbol", cmd.Symbol))
	err := c.updateVolatility(ctx, cmd)
	tracing.EndSpan(span, err)
	if err != nil {
		logger.Error(ctx, "failed to update volatility", "symbol", cmd.Symbol, "error", err)
	}
	return err
}

func (c *PricingCommandService) updateVolatility(ctx context.Context, cmd UpdateVolatilityCommand) error {
	if cmd.NewVolatility <= 0 {
		return fmt.Errorf("%w: volatility must be positive, got %g", domain.ErrInvalidMarketData, cmd.NewVolatility)
	}

	var old float64
	err := c.book.Update(cmd.Symbol, func(opt *domain.FiniteDifferenceOption) error {
		old = opt.Params().Volatility
		opt.SetVolatility(cmd.NewVolatility)
		return nil
	})
	if err != nil {
		return err
	}

	if c.cache != nil {
		if err := c.cache.Delete(ctx, cmd.Symbol); err != nil {
			logger.Warn(ctx, "failed to evict cached pricing result", "symbol", cmd.Symbol, "error", err)
		}
	}

	if c.publisher != nil {
		now := c.now()
		event := domain.VolatilityUpdatedEvent{
			Symbol:        cmd.Symbol,
			OldVolatility: old,
			NewVolatility: cmd.NewVolatility,
			UpdateReason:  cmd.Reason,
			UpdatedAt:     now.UnixMilli(),
			OccurredOn:    now,
		}
		if err := c.publisher.Publish(ctx, domain.VolatilityUpdatedEventType, cmd.Symbol, event); err != nil {
			return fmt.Errorf("failed to publish volatility update for %s: %w", cmd.Symbol, err)
		}
	}

	logger.Info(ctx, "volatility updated",
		"symbol", cmd.Symbol,
		"old_volatility", old,
		"new_volatility", cmd.NewVolatility,
		"reason", cmd.Reason,
	)
	return nil
}

// BatchPriceOptions 批量有限差分定价，单条失败不影响其他合约
func (c *PricingCommandService) BatchPriceOptions(ctx context.Context, cmd BatchPriceOptionsCommand) (*BatchPricingResult, error) {
	if cmd.BatchID == "" {
		cmd.BatchID = uuid.New().String()
	}
	ctx, span := tracing.StartSpan(ctx, "pricing.BatchPriceOptions",
		attribute.String("batch_id", cmd.BatchID),
		attribute.Int("contracts", len(cmd.Contracts)),
	)
	defer span.End()

	type outcome struct {
		result   *domain.PricingResult
		err      error
		duration time.Duration
	}
	outcomes := make([]outcome, len(cmd.Contracts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.defaults.BatchConcurrency, 1))
	for i, contract := range cmd.Contracts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			start := time.Now()
			result, err := c.PriceFiniteDifference(gctx, contract)
			outcomes[i] = outcome{result: result, err: err, duration: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	batch := &BatchPricingResult{
		BatchID: cmd.BatchID,
		Results: make([]*domain.PricingResult, 0, len(cmd.Contracts)),
	}
	var total time.Duration
	for i, o := range outcomes {
		total += o.duration
		if o.err != nil {
			batch.FailureCount++
			batch.Failures = append(batch.Failures, BatchFailure{
				Symbol:    cmd.Contracts[i].Symbol,
				Error:     o.err.Error(),
				ErrorCode: domain.ErrorCode(o.err),
			})
			continue
		}
		batch.Results = append(batch.Results, o.result)
		batch.SuccessCount++
	}
	if len(cmd.Contracts) > 0 {
		batch.AverageTime = total.Seconds() / float64(len(cmd.Contracts))
	}

	if c.publisher != nil {
		now := c.now()
		event := domain.BatchPricingCompletedEvent{
			BatchID:        cmd.BatchID,
			Symbols:        extractSymbols(cmd.Contracts),
			TotalContracts: len(cmd.Contracts),
			SuccessCount:   batch.SuccessCount,
			FailureCount:   batch.FailureCount,
			AverageTime:    batch.AverageTime,
			CompletedAt:    now.UnixMilli(),
			OccurredOn:     now,
		}
		if err := c.publisher.Publish(ctx, domain.BatchPricingCompletedEventType, cmd.BatchID, event); err != nil {
			logger.Warn(ctx, "failed to publish batch completion", "batch_id", cmd.BatchID, "error", err)
		}
	}

	logger.Info(ctx, "batch pricing completed",
		"batch_id", cmd.BatchID,
		"success", batch.SuccessCount,
		"failure", batch.FailureCount,
	)
	return batch, nil
}

// persist 在同一事务内保存结果并写入 outbox
func (c *PricingCommandService) persist(ctx context.Context, result *domain.PricingResult, events ...outboxEvent) error {
	err := c.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := c.repo.Save(txCtx, result); err != nil {
			return err
		}
		if c.publisher == nil {
			return nil
		}
		tx := contextx.GetTx(txCtx)
		for _, e := range events {
			if err := c.publisher.PublishInTx(txCtx, tx, e.eventType, result.Symbol, e.payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist pricing result for %s: %w", result.Symbol, err)
	}
	return nil
}

func (c *PricingCommandService) cacheResult(ctx context.Context, result *domain.PricingResult) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, result); err != nil {
		logger.Warn(ctx, "failed to cache pricing result", "symbol", result.Symbol, "error", err)
	}
}

func (c *PricingCommandService) record(model domain.PricingModel, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.RecordCalculation(string(model), time.Since(start), err)
	}
}

// reportError 记录错误并尽力发布 PricingError 事件
func (c *PricingCommandService) reportError(ctx context.Context, symbol, optionType string, model domain.PricingModel, err error) {
	logger.Error(ctx, "option pricing failed",
		"symbol", symbol,
		"pricing_model", model,
		"error", err,
	)
	if c.publisher == nil {
		return
	}
	now := c.now()
	event := domain.PricingErrorEvent{
		Symbol:       symbol,
		OptionType:   domain.OptionType(strings.ToUpper(optionType)),
		PricingModel: model,
		Error:        err.Error(),
		ErrorCode:    domain.ErrorCode(err),
		OccurredAt:   now.UnixMilli(),
		OccurredOn:   now,
	}
	if pubErr := c.publisher.Publish(ctx, domain.PricingErrorEventType, symbol, event); pubErr != nil {
		logger.Warn(ctx, "failed to publish pricing error", "symbol", symbol, "error", pubErr)
	}
}

// extractSymbols 提取去重后的合约标识
func extractSymbols(contracts []PriceFiniteDifferenceCommand) []string {
	symbols := make([]string, 0, len(contracts))
	seen := make(map[string]struct{}, len(contracts))
	for _, contract := range contracts {
		if _, ok := seen[contract.Symbol]; ok {
			continue
		}
		seen[contract.Symbol] = struct{}{}
		symbols = append(symbols, contract.Symbol)
	}
	return symbols
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
