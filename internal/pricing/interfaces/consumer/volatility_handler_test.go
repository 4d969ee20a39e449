package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/optionpricing/internal/pricing/application"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
)

type fakeUpdater struct {
	calls []application.UpdateVolatilityCommand
	err   error
}

func (f *fakeUpdater) UpdateVolatility(_ context.Context, cmd application.UpdateVolatilityCommand) error {
	f.calls = append(f.calls, cmd)
	return f.err
}

func TestVolatilityHandler_Handle(t *testing.T) {
	u := &fakeUpdater{}
	h := NewVolatilityHandler(u)

	err := h.Handle(context.Background(), kafka.Message{
		Value: []byte(`{"instrument_id":"AAPL-C100","volatility":0.27,"reason":"surface refit"}`),
	})
	require.NoError(t, err)
	require.Len(t, u.calls, 1)
	assert.Equal(t, "AAPL-C100", u.calls[0].Symbol)
	assert.Equal(t, 0.27, u.calls[0].NewVolatility)
	assert.Equal(t, "surface refit", u.calls[0].Reason)
}

func TestVolatilityHandler_FallsBackToMessageKey(t *testing.T) {
	u := &fakeUpdater{}
	h := NewVolatilityHandler(u)

	require.NoError(t, h.Handle(context.Background(), kafka.Message{
		Key:   []byte("MSFT-P300"),
		Value: []byte(`{"volatility":0.31}`),
	}))
	require.Len(t, u.calls, 1)
	assert.Equal(t, "MSFT-P300", u.calls[0].Symbol)
	assert.Equal(t, "market data", u.calls[0].Reason)

	err := h.Handle(context.Background(), kafka.Message{Value: []byte(`{"volatility":0.31}`)})
	assert.Error(t, err)
}

func TestVolatilityHandler_Errors(t *testing.T) {
	u := &fakeUpdater{}
	h := NewVolatilityHandler(u)

	assert.Error(t, h.Handle(context.Background(), kafka.Message{Value: []byte("{bad json")}))
	assert.Empty(t, u.calls)

	u.err = domain.ErrInstrumentNotFound
	assert.NoError(t, h.Handle(context.Background(), kafka.Message{Value: []byte(`{"instrument_id":"X","volatility":0.2}`)}),
		"unknown instruments are committed")

	u.err = errors.New("db down")
	assert.ErrorContains(t, h.Handle(context.Background(), kafka.Message{Value: []byte(`{"instrument_id":"X","volatility":0.2}`)}), "db down")
}
