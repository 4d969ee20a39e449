package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
)

type commandFixture struct {
	repo      *memRepository
	cache     *memCache
	publisher *recordingPublisher
	metrics   *metrics.Metrics
	svc       *PricingCommandService
}

func newCommandFixture() *commandFixture {
	f := &commandFixture{
		repo:      &memRepository{},
		cache:     newMemCache(),
		publisher: &recordingPublisher{},
		metrics:   metrics.New("pricing-test"),
	}
	f.svc = NewPricingCommandService(f.repo, f.cache, f.publisher, NewOptionBook(), testPricingConfig(), f.metrics)
	f.svc.now = func() time.Time { return time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC) }
	return f
}

func atmCall(symbol string) PriceFiniteDifferenceCommand {
	return PriceFiniteDifferenceCommand{
		Symbol:       symbol,
		OptionType:   "call",
		Underlying:   100,
		Strike:       100,
		RiskFreeRate: rate(0.05),
		ResidualTime: 1,
		Volatility:   0.2,
	}
}

func rate(v float64) *float64 { return &v }

func TestPriceFiniteDifference_PersistsPublishesAndCaches(t *testing.T) {
	f := newCommandFixture()
	ctx := context.Background()

	result, err := f.svc.PriceFiniteDifference(ctx, atmCall("AAPL-C100"))
	require.NoError(t, err)

	assert.Equal(t, domain.PricingModelFiniteDifference, result.PricingModel)
	assert.Equal(t, domain.OptionTypeCall, result.OptionType)
	// Black-Scholes 参考值 10.4506
	assert.InDelta(t, 10.45, result.OptionPrice.InexactFloat64(), 0.1)
	assert.InDelta(t, 0.637, result.Delta.InexactFloat64(), 0.02)
	assert.Positive(t, result.Vega.InexactFloat64())
	assert.Equal(t, time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC).UnixMilli(), result.CalculatedAt)

	assert.Equal(t, 1, f.repo.count())
	cached, _ := f.cache.Get(ctx, "AAPL-C100")
	assert.Same(t, result, cached)

	priced := f.publisher.ofType(domain.OptionPricedEventType)
	require.Len(t, priced, 1)
	assert.True(t, priced[0].inTx)
	assert.Equal(t, "AAPL-C100", priced[0].key)
	greeks := f.publisher.ofType(domain.GreeksCalculatedEventType)
	require.Len(t, greeks, 1)
	assert.True(t, greeks[0].inTx)
	ev := greeks[0].event.(domain.GreeksCalculatedEvent)
	assert.Equal(t, result.Delta.InexactFloat64(), ev.Delta)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FDRecalculations))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PricingCalculations.WithLabelValues("FiniteDifference", "success")))
}

func TestPriceFiniteDifference_ReusesBookedInstrument(t *testing.T) {
	f := newCommandFixture()
	ctx := context.Background()

	first, err := f.svc.PriceFiniteDifference(ctx, atmCall("AAPL-C100"))
	require.NoError(t, err)
	second, err := f.svc.PriceFiniteDifference(ctx, atmCall("AAPL-C100"))
	require.NoError(t, err)
	assert.True(t, first.OptionPrice.Equal(second.OptionPrice))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FDRecalculations), "unchanged parameters must not recalculate")

	cmd := atmCall("AAPL-C100")
	cmd.Volatility = 0.3
	third, err := f.svc.PriceFiniteDifference(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, third.OptionPrice.GreaterThan(first.OptionPrice))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.FDRecalculations))
	assert.Equal(t, 3, f.repo.count())
}

func TestPriceFiniteDifference_RejectsBadInput(t *testing.T) {
	f := newCommandFixture()
	ctx := context.Background()

	cmd := atmCall("AAPL-X")
	cmd.OptionType = "binary"
	_, err := f.svc.PriceFiniteDifference(ctx, cmd)
	require.ErrorIs(t, err, domain.ErrConfiguration)

	cmd = atmCall("AAPL-NEG")
	cmd.Underlying = -1
	_, err = f.svc.PriceFiniteDifference(ctx, cmd)
	require.ErrorIs(t, err, domain.ErrInvalidMarketData)

	_, err = f.svc.PriceFiniteDifference(ctx, PriceFiniteDifferenceCommand{OptionType: "call"})
	require.ErrorIs(t, err, domain.ErrConfiguration)

	assert.Zero(t, f.repo.count())
	errs := f.publisher.ofType(domain.PricingErrorEventType)
	require.Len(t, errs, 3)
	assert.False(t, errs[0].inTx)
	assert.Equal(t, "CONFIGURATION", errs[0].event.(domain.PricingErrorEvent).ErrorCode)
	assert.Equal(t, "INVALID_MARKET_DATA", errs[1].event.(domain.PricingErrorEvent).ErrorCode)
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.PricingCalculations.WithLabelValues("FiniteDifference", "failure")))
}

func TestPriceFiniteDifference_OutboxFailureRollsBack(t *testing.T) {
	f := newCommandFixture()
	f.publisher.txErr = errors.New("outbox unavailable")

	_, err := f.svc.PriceFiniteDifference(context.Background(), atmCall("AAPL-C100"))
	require.ErrorContains(t, err, "outbox unavailable")
	assert.Zero(t, f.repo.count())
	cached, _ := f.cache.Get(context.Background(), "AAPL-C100")
	assert.Nil(t, cached)
}

func TestUpdateVolatility(t *testing.T) {
	f := newCommandFixture()
	ctx := context.Background()

	err := f.svc.UpdateVolatility(ctx, UpdateVolatilityCommand{Symbol: "UNKNOWN", NewVolatility: 0.3})
	require.ErrorIs(t, err, domain.ErrInstrumentNotFound)

	before, err := f.svc.PriceFiniteDifference(ctx, atmCall("AAPL-C100"))
	require.NoError(t, err)

	err = f.svc.UpdateVolatility(ctx, UpdateVolatilityCommand{Symbol: "AAPL-C100", NewVolatility: -0.1})
	require.ErrorIs(t, err, domain.ErrInvalidMarketData)

	require.NoError(t, f.svc.UpdateVolatility(ctx, UpdateVolatilityCommand{
		Symbol:        "AAPL-C100",
		NewVolatility: 0.35,
		Reason:        "implied vol surface refresh",
	}))

	events := f.publisher.ofType(domain.VolatilityUpdatedEventType)
	require.Len(t, events, 1)
	ev := events[0].event.(domain.VolatilityUpdatedEvent)
	assert.Equal(t, 0.2, ev.OldVolatility)
	assert.Equal(t, 0.35, ev.NewVolatility)
	assert.Equal(t, "implied vol surface refresh", ev.UpdateReason)

	cached, _ := f.cache.Get(ctx, "AAPL-C100")
	assert.Nil(t, cached, "stale result must be evicted")

	// 不带波动率再次定价，沿用通知的 0.35 并惰性重算
	reprice := atmCall("AAPL-C100")
	reprice.Volatility = 0
	after, err := f.svc.PriceFiniteDifference(ctx, reprice)
	require.NoError(t, err)
	assert.True(t, after.OptionPrice.GreaterThan(before.OptionPrice))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.FDRecalculations))

	repriced := f.publisher.ofType(domain.OptionPricedEventType)
	require.Len(t, repriced, 2)
	assert.Equal(t, 0.35, repriced[1].event.(domain.OptionPricedEvent).Volatility)

	// 显式波动率覆盖簿记值
	back, err := f.svc.PriceFiniteDifference(ctx, atmCall("AAPL-C100"))
	require.NoError(t, err)
	assert.True(t, back.OptionPrice.Equal(before.OptionPrice))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.FDRecalculations))
}

func TestPriceFiniteDifference_OmittedFieldsKeepBookedValues(t *testing.T) {
	f := newCommandFixture()
	ctx := context.Background()

	first, err := f.svc.PriceFiniteDifference(ctx, atmCall("AAPL-C100"))
	require.NoError(t, err)

	// 只带类型的重复请求命中已计算的合约
	again, err := f.svc.PriceFiniteDifference(ctx, PriceFiniteDifferenceCommand{Symbol: "AAPL-C100", OptionType: "call"})
	require.NoError(t, err)
	assert.True(t, first.OptionPrice.Equal(again.OptionPrice))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FDRecalculations))

	// 显式零利率与缺省利率不同
	zero := atmCall("AAPL-C100")
	zero.RiskFreeRate = rate(0)
	lower, err := f.svc.PriceFiniteDifference(ctx, zero)
	require.NoError(t, err)
	assert.True(t, lower.OptionPrice.LessThan(first.OptionPrice))

	// 首次簿记仍需完整参数
	_, err = f.svc.PriceFiniteDifference(ctx, PriceFiniteDifferenceCommand{Symbol: "NEW-C100", OptionType: "call"})
	require.ErrorIs(t, err, domain.ErrInvalidMarketData)
	_, err = f.svc.PriceFiniteDifference(ctx, PriceFiniteDifferenceCommand{Symbol: "NEW-C100", OptionType: "call", Volatility: 0.3})
	require.ErrorIs(t, err, domain.ErrInvalidMarketData)
}

func forwardCommand() PriceForwardMonteCarloCommand {
	seed := uint64(11)
	return PriceForwardMonteCarloCommand{
		Symbol:        "SPX-FWD",
		OptionType:    "call",
		Moneyness:     1.0,
		Spot:          100,
		RiskFreeRate:  0.04,
		Volatility:    0.25,
		ReferenceDate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		ResetDate:     time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC),
		ExerciseDate:  time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		TimeSteps:     4,
		Seed:          &seed,
	}
}

func TestPriceForwardMonteCarlo_Converges(t *testing.T) {
	f := newCommandFixture()

	result, err := f.svc.PriceForwardMonteCarlo(context.Background(), forwardCommand())
	require.NoError(t, err)

	assert.Equal(t, domain.PricingModelMonteCarloForward, result.PricingModel)
	assert.Equal(t, string(domain.StatusConverged), result.Status)
	require.True(t, result.ErrorEstimate.Valid)
	assert.LessOrEqual(t, result.ErrorEstimate.Decimal.InexactFloat64(), 0.05)
	assert.Positive(t, result.Samples)
	assert.Equal(t, 1.0, result.StrikePrice.InexactFloat64(), "moneyness recorded as strike")

	priced := f.publisher.ofType(domain.OptionPricedEventType)
	require.Len(t, priced, 1)
	ev := priced[0].event.(domain.OptionPricedEvent)
	require.NotNil(t, ev.ErrorEstimate)
	assert.Equal(t, result.Samples, ev.Samples)
	assert.Zero(t, testutil.ToFloat64(f.metrics.MCExhausted))
}

func TestPriceForwardMonteCarlo_ExhaustedIsReportedNotFailed(t *testing.T) {
	f := newCommandFixture()
	cmd := forwardCommand()
	tol := 1e-6
	cmd.RequiredTolerance = &tol
	cmd.MaxSamples = 1000

	result, err := f.svc.PriceForwardMonteCarlo(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusExhausted), result.Status)
	assert.Equal(t, 1000, result.Samples)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MCExhausted))
	assert.Equal(t, 1, f.repo.count())
}

func TestPriceForwardMonteCarlo_ConfigurationErrors(t *testing.T) {
	f := newCommandFixture()
	ctx := context.Background()

	cmd := forwardCommand()
	cmd.TimeStepsPerYear = 52
	_, err := f.svc.PriceForwardMonteCarlo(ctx, cmd)
	require.ErrorIs(t, err, domain.ErrConfiguration, "both step settings given")

	cmd = forwardCommand()
	tol := 0.01
	cmd.Sequence = "halton"
	cmd.RequiredTolerance = &tol
	_, err = f.svc.PriceForwardMonteCarlo(ctx, cmd)
	require.ErrorIs(t, err, domain.ErrConfiguration, "low discrepancy with tolerance")

	cmd = forwardCommand()
	cmd.Style = "cliquet"
	_, err = f.svc.PriceForwardMonteCarlo(ctx, cmd)
	require.ErrorIs(t, err, domain.ErrConfiguration)

	cmd = forwardCommand()
	cmd.ExerciseDate = cmd.ResetDate.AddDate(0, 0, -1)
	_, err = f.svc.PriceForwardMonteCarlo(ctx, cmd)
	require.ErrorIs(t, err, domain.ErrConfiguration)

	assert.Zero(t, f.repo.count())
	assert.Len(t, f.publisher.ofType(domain.PricingErrorEventType), 4)
}

func TestPriceForwardMonteCarlo_HaltonUsesRequiredSamples(t *testing.T) {
	f := newCommandFixture()
	cmd := forwardCommand()
	cmd.Sequence = "halton"
	cmd.RequiredSamples = 2048

	result, err := f.svc.PriceForwardMonteCarlo(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, 2048, result.Samples)
	assert.False(t, result.ErrorEstimate.Valid)
}

func TestBatchPriceOptions(t *testing.T) {
	f := newCommandFixture()
	put := atmCall("AAPL-P100")
	put.OptionType = "put"
	bad := atmCall("AAPL-BAD")
	bad.OptionType = "digital"

	batch, err := f.svc.BatchPriceOptions(context.Background(), BatchPriceOptionsCommand{
		Contracts: []PriceFiniteDifferenceCommand{atmCall("AAPL-C100"), bad, put},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, batch.BatchID)
	assert.Equal(t, 2, batch.SuccessCount)
	assert.Equal(t, 1, batch.FailureCount)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, "AAPL-C100", batch.Results[0].Symbol)
	assert.Equal(t, "AAPL-P100", batch.Results[1].Symbol)
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, "AAPL-BAD", batch.Failures[0].Symbol)
	assert.Equal(t, "CONFIGURATION", batch.Failures[0].ErrorCode)

	completed := f.publisher.ofType(domain.BatchPricingCompletedEventType)
	require.Len(t, completed, 1)
	ev := completed[0].event.(domain.BatchPricingCompletedEvent)
	assert.Equal(t, batch.BatchID, ev.BatchID)
	assert.Equal(t, 3, ev.TotalContracts)
	assert.Equal(t, []string{"AAPL-C100", "AAPL-BAD", "AAPL-P100"}, ev.Symbols)
}
