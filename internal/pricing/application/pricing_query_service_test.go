package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
)

func storedResult(symbol string, price float64, at time.Time) *domain.PricingResult {
	return &domain.PricingResult{
		Symbol:       symbol,
		OptionType:   domain.OptionTypePut,
		PricingModel: domain.PricingModelFiniteDifference,
		OptionPrice:  decimal.NewFromFloat(price),
		Status:       string(domain.StatusReported),
		CalculatedAt: at.UnixMilli(),
	}
}

func TestGetLatestResult_ReadThrough(t *testing.T) {
	ctx := context.Background()
	repo := &memRepository{}
	cache := newMemCache()
	m := metrics.New("pricing-test")
	svc := NewPricingQueryService(repo, cache, m)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, storedResult("MSFT-P", 4.1, base)))
	require.NoError(t, repo.Save(ctx, storedResult("MSFT-P", 4.3, base.Add(time.Minute))))

	got, err := svc.GetLatestResult(ctx, "MSFT-P")
	require.NoError(t, err)
	assert.Equal(t, 4.3, got.OptionPrice.InexactFloat64())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))

	cached, _ := cache.Get(ctx, "MSFT-P")
	require.NotNil(t, cached, "miss must backfill the cache")

	again, err := svc.GetLatestResult(ctx, "MSFT-P")
	require.NoError(t, err)
	assert.Same(t, cached, again)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
}

func TestGetLatestResult_NotFound(t *testing.T) {
	svc := NewPricingQueryService(&memRepository{}, nil, nil)
	_, err := svc.GetLatestResult(context.Background(), "NONE")
	require.ErrorIs(t, err, domain.ErrInstrumentNotFound)
}

func TestGetLatestResult_CacheErrorFallsBackToRepository(t *testing.T) {
	ctx := context.Background()
	repo := &memRepository{}
	require.NoError(t, repo.Save(ctx, storedResult("MSFT-P", 4.1, time.Now())))
	cache := newMemCache()
	cache.getErr = errors.New("redis: connection refused")

	got, err := NewPricingQueryService(repo, cache, nil).GetLatestResult(ctx, "MSFT-P")
	require.NoError(t, err)
	assert.Equal(t, "MSFT-P", got.Symbol)
}

func TestGetHistory_LimitClamp(t *testing.T) {
	ctx := context.Background()
	repo := &memRepository{}
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := range 30 {
		require.NoError(t, repo.Save(ctx, storedResult("MSFT-P", float64(i), base.Add(time.Duration(i)*time.Second))))
	}
	svc := NewPricingQueryService(repo, nil, nil)

	history, err := svc.GetHistory(ctx, "MSFT-P", 0)
	require.NoError(t, err)
	assert.Len(t, history, defaultHistoryLimit)
	assert.Equal(t, 29.0, history[0].OptionPrice.InexactFloat64(), "newest first")

	history, err = svc.GetHistory(ctx, "MSFT-P", 5)
	require.NoError(t, err)
	assert.Len(t, history, 5)

	history, err = svc.GetHistory(ctx, "MSFT-P", 10_000)
	require.NoError(t, err)
	assert.Len(t, history, 30)
}

func TestToDTO(t *testing.T) {
	r := storedResult("MSFT-P", 4.25, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	assert.Nil(t, ToDTO(nil))

	dto := ToDTO(r)
	assert.Equal(t, 4.25, dto.OptionPrice)
	assert.Equal(t, "PUT", dto.OptionType)
	assert.Nil(t, dto.ErrorEstimate)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), dto.CalculatedAt)

	r.ErrorEstimate = decimal.NewNullDecimal(decimal.NewFromFloat(0.012))
	dto = ToDTO(r)
	require.NotNil(t, dto.ErrorEstimate)
	assert.Equal(t, 0.012, *dto.ErrorEstimate)
	assert.Len(t, ToDTOs([]*domain.PricingResult{r, r}), 2)
}
