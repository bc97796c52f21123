package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"clipsync/internal/domain"
)

// RedisPublisher 把事件发布到 Redis 频道 <prefix>room:<channel>，
// 供自建的推送网关订阅。
type RedisPublisher struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisPublisher 创建 RedisPublisher 实例
func NewRedisPublisher(client *redis.Client, keyPrefix string) *RedisPublisher {
	if client == nil {
		panic("redis client cannot be nil for RedisPublisher")
	}
	return &RedisPublisher{client: client, keyPrefix: keyPrefix}
}

// ChannelName 返回事件频道在 Redis 中的名字
func (p *RedisPublisher) ChannelName(channel string) string {
	return fmt.Sprintf("%sroom:%s", p.keyPrefix, channel)
}

// Publish 实现发布器接口
func (p *RedisPublisher) Publish(ctx context.Context, channel string, kind domain.EventKind, payload map[string]any) error {
	redisChannel := p.ChannelName(channel)
	body, err := json.Marshal(Envelope{Event: kind, Data: payload})
	if err != nil {
		return fmt.Errorf("redis: marshal event %s for publish: %w", kind, err)
	}
	if err := p.client.Publish(ctx, redisChannel, body).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      redisChannel,
			"event":        kind,
			"payload_size": len(body),
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish event to channel %s: %w", redisChannel, err)
	}
	return nil
}
