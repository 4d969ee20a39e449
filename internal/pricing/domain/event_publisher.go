package domain

import "context"

// EventPublisher 事件发布者接口。
// PublishInTx 将事件写入与业务数据相同的事务（outbox），Publish 独立写入。
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, event any) error
	PublishInTx(ctx context.Context, tx any, eventType, key string, event any) error
}
