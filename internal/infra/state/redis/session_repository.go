package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"clipsync/internal/domain"
	"clipsync/internal/repository"
)

// maxTxAttempts 是乐观事务的最大尝试次数
const maxTxAttempts = 50

// RedisSessionRepository 是 SessionRepository 接口的 Redis 实现。
// 每个会话是一个 JSON 字符串，键为 <prefix>session:<invite_code>。
type RedisSessionRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSessionRepository 创建 RedisSessionRepository 实例
func NewRedisSessionRepository(client *redis.Client, keyPrefix string) *RedisSessionRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisSessionRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "clip:" // 默认前缀
	}
	return &RedisSessionRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (r *RedisSessionRepository) sessionKey(inviteCode string) string {
	return fmt.Sprintf("%ssession:%s", r.keyPrefix, inviteCode)
}

// Get 使用 GETEX 读取会话并同时重置过期时间
func (r *RedisSessionRepository) Get(ctx context.Context, inviteCode string, ttl time.Duration) (*domain.Session, error) {
	key := r.sessionKey(inviteCode)
	raw, err := r.client.GetEx(ctx, key, ttl).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis: failed to get session from %s: %w", key, err)
	}
	return r.decode(ctx, key, raw)
}

// Save 写入会话并设置过期时间
func (r *RedisSessionRepository) Save(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("redis: refusing to save session: %w", err)
	}
	key := r.sessionKey(session.InviteCode)
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal session (room %s): %w", session.RoomID, err)
	}
	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set session on key %s: %w", key, err)
	}
	return nil
}

// AddParticipant 在 WATCH/MULTI 事务中追加参与者并重置过期时间。
// 事务因并发写入失败时重新读取，超过 maxTxAttempts 次返回 ErrConcurrentUpdate。
func (r *RedisSessionRepository) AddParticipant(ctx context.Context, inviteCode string, participant domain.Participant, ttl time.Duration) (*domain.Session, error) {
	key := r.sessionKey(inviteCode)
	var session *domain.Session
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return repository.ErrSessionNotFound
			}
			return fmt.Errorf("redis: failed to get session from %s: %w", key, err)
		}
		current, err := r.decode(ctx, key, raw)
		if err != nil {
			return err
		}
		if current.InviteCode != inviteCode {
			return repository.ErrSessionNotFound
		}
		if current.HasParticipant(participant.UserID) {
			return repository.ErrDuplicateEntry
		}
		current.Participants = append(current.Participants, participant)
		payload, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("redis: failed to marshal session (room %s): %w", current.RoomID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		session = current
		return nil
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return session, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrDuplicateEntry):
			return nil, err
		default:
			return nil, fmt.Errorf("redis: failed to add participant to %s: %w", key, err)
		}
	}
	return nil, fmt.Errorf("redis: session %s kept changing: %w", key, repository.ErrConcurrentUpdate)
}

// decode 解析会话载荷。无法解析或校验失败的条目无法恢复，删除后按不存在处理。
func (r *RedisSessionRepository) decode(ctx context.Context, key, raw string) (*domain.Session, error) {
	var session domain.Session
	err := json.Unmarshal([]byte(raw), &session)
	if err == nil {
		err = session.Validate()
	}
	if err != nil {
		logrus.WithField("key", key).WithError(err).Warn("Dropping malformed session entry")
		_ = r.client.Del(ctx, key).Err()
		return nil, repository.ErrSessionNotFound
	}
	return &session, nil
}

// Delete 删除会话条目，条目不存在时不报错
func (r *RedisSessionRepository) Delete(ctx context.Context, inviteCode string) error {
	key := r.sessionKey(inviteCode)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to delete session %s: %w", key, err)
	}
	return nil
}

// IsInviteCodeExists 检查邀请码是否被存活会话占用
func (r *RedisSessionRepository) IsInviteCodeExists(ctx context.Context, code string) (bool, error) {
	key := r.sessionKey(code)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to check session %s: %w", key, err)
	}
	return n > 0, nil
}
