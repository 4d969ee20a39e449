package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/optionpricing/pkg/logger"
	"github.com/wyfcoding/optionpricing/pkg/metrics"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// OutboxMessage 消息队列
type OutboxMessage struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	EventID   string    `gorm:"type:varchar(36);index"`
	EventType string    `gorm:"type:varchar(100);index"`
	EventKey  string    `gorm:"type:varchar(64)"`
	Payload   string    `gorm:"type:text"`
	Status    string    `gorm:"type:varchar(20);index;default:'pending'"`
	Attempts  int       `gorm:"default:0"`
	LastError string    `gorm:"type:varchar(512)"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "pricing_outbox_messages"
}

// Envelope 投递到 Kafka 的消息体
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Producer 向消息队列写入消息
type Producer interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// OutboxEventPublisher 实现 EventPublisher 接口，使用 Outbox 模式
type OutboxEventPublisher struct {
	db       *gorm.DB
	producer Producer
	topic    string
	metrics  *metrics.Metrics
}

// NewOutboxEventPublisher 创建新的 OutboxEventPublisher 实例。
// producer 为 nil 时只写入 outbox，不做投递。
func NewOutboxEventPublisher(db *gorm.DB, producer Producer, topic string, m *metrics.Metrics) *OutboxEventPublisher {
	return &OutboxEventPublisher{db: db, producer: producer, topic: topic, metrics: m}
}

// AutoMigrate 创建 outbox 表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&OutboxMessage{})
}

// Publish 独立写入 outbox
func (p *OutboxEventPublisher) Publish(ctx context.Context, eventType, key string, event any) error {
	return p.publishEvent(p.db.WithContext(ctx), eventType, key, event)
}

// PublishInTx 写入调用方事务，随业务数据一起提交
func (p *OutboxEventPublisher) PublishInTx(ctx context.Context, tx any, eventType, key string, event any) error {
	if tx == nil {
		return p.Publish(ctx, eventType, key, event)
	}
	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return errors.New("invalid transaction")
	}
	return p.publishEvent(gormTx.WithContext(ctx), eventType, key, event)
}

// publishEvent 通用事件发布方法
func (p *OutboxEventPublisher) publishEvent(db *gorm.DB, eventType, key string, event any) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	now := time.Now()
	message := OutboxMessage{
		ID:        uuid.New().String(),
		EventID:   uuid.New().String(),
		EventType: eventType,
		EventKey:  key,
		Payload:   string(eventData),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return db.Create(&message).Error
}

// ProcessOutboxMessages 按写入顺序投递待处理消息，返回成功条数。
// 投递失败时停止本批次，保持同一批次内的顺序。
func (p *OutboxEventPublisher) ProcessOutboxMessages(ctx context.Context, batchSize int) (int, error) {
	if p.producer == nil {
		return 0, nil
	}
	var messages []OutboxMessage
	if err := p.db.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}}).
		Limit(batchSize).
		Find(&messages).Error; err != nil {
		return 0, err
	}

	sent := 0
	for i := range messages {
		msg := &messages[i]
		body, err := json.Marshal(Envelope{
			EventID:    msg.EventID,
			EventType:  msg.EventType,
			OccurredAt: msg.CreatedAt,
			Payload:    json.RawMessage(msg.Payload),
		})
		if err != nil {
			return sent, err
		}

		if err := p.producer.Publish(ctx, p.topic, msg.EventKey, body); err != nil {
			p.observe("failure")
			lastErr := err.Error()
			if len(lastErr) > 512 {
				lastErr = lastErr[:512]
			}
			if updErr := p.db.WithContext(ctx).Model(msg).Updates(map[string]any{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": lastErr,
			}).Error; updErr != nil {
				logger.Error(ctx, "failed to record outbox attempt", "id", msg.ID, "error", updErr)
			}
			return sent, fmt.Errorf("failed to relay outbox message %s: %w", msg.ID, err)
		}

		if err := p.db.WithContext(ctx).Model(msg).Update("status", StatusSent).Error; err != nil {
			return sent, err
		}
		p.observe("success")
		sent++
	}
	return sent, nil
}

// CleanupProcessedMessages 清理已处理的消息
func (p *OutboxEventPublisher) CleanupProcessedMessages(ctx context.Context, before time.Time) (int64, error) {
	res := p.db.WithContext(ctx).Where("status = ? AND updated_at < ?", StatusSent, before).Delete(&OutboxMessage{})
	return res.RowsAffected, res.Error
}

// Run 周期性投递与清理，ctx 取消时返回 nil
func (p *OutboxEventPublisher) Run(ctx context.Context, interval time.Duration, batchSize int, retention time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lastCleanup := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if n, err := p.ProcessOutboxMessages(ctx, batchSize); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn(ctx, "outbox relay interrupted", "sent", n, "error", err)
		}

		if retention > 0 && time.Since(lastCleanup) >= time.Hour {
			if n, err := p.CleanupProcessedMessages(ctx, time.Now().Add(-retention)); err != nil {
				logger.Warn(ctx, "outbox cleanup failed", "error", err)
			} else if n > 0 {
				logger.Info(ctx, "outbox cleanup completed", "deleted", n)
			}
			lastCleanup = time.Now()
		}
	}
}

func (p *OutboxEventPublisher) observe(outcome string) {
	if p.metrics != nil {
		p.metrics.OutboxRelayed.WithLabelValues(outcome).Inc()
	}
}
