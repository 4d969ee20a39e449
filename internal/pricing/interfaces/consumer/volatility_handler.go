package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/optionpricing/internal/pricing/application"
	"github.com/wyfcoding/optionpricing/internal/pricing/domain"
	"github.com/wyfcoding/optionpricing/pkg/logger"
)

// VolatilityUpdater 波动率更新入口
type VolatilityUpdater interface {
	UpdateVolatility(ctx context.Context, cmd application.UpdateVolatilityCommand) error
}

// volatilityMessage 行情侧推送的波动率消息
type volatilityMessage struct {
	InstrumentID string  `json:"instrument_id"`
	Volatility   float64 `json:"volatility"`
	Reason       string  `json:"reason"`
}

type VolatilityHandler struct {
	updater VolatilityUpdater
}

func NewVolatilityHandler(updater VolatilityUpdater) *VolatilityHandler {
	return &VolatilityHandler{updater: updater}
}

// Handle 消费一条波动率消息。未簿记的合约直接跳过并提交偏移量
func (h *VolatilityHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var payload volatilityMessage
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		logger.Error(ctx, "failed to unmarshal volatility message", "offset", msg.Offset, "error", err)
		return err
	}
	if payload.InstrumentID == "" {
		payload.InstrumentID = string(msg.Key)
	}
	if payload.InstrumentID == "" {
		return fmt.Errorf("volatility message at offset %d has no instrument_id", msg.Offset)
	}

	reason := payload.Reason
	if reason == "" {
		reason = "market data"
	}
	err := h.updater.UpdateVolatility(ctx, application.UpdateVolatilityCommand{
		Symbol:        payload.InstrumentID,
		NewVolatility: payload.Volatility,
		Reason:        reason,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInstrumentNotFound), errors.Is(err, domain.ErrInvalidMarketData):
		// 重放不会成功，丢弃
		logger.Warn(ctx, "volatility message skipped", "instrument_id", payload.InstrumentID, "error", err)
		return nil
	default:
		return err
	}
}
