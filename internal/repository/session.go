package repository

import (
	"context"
	"time"

	"clipsync/internal/domain"
)

// SessionRepository 定义了匿名会话的缓存操作，通常由 Redis 实现。
type SessionRepository interface {
	// Get 按邀请码读取会话，并把过期时间重置为 ttl (滑动过期)。
	// 条目不存在时返回 ErrSessionNotFound。
	Get(ctx context.Context, inviteCode string, ttl time.Duration) (*domain.Session, error)

	// Save 写入会话，过期时间为 ttl。
	Save(ctx context.Context, session *domain.Session, ttl time.Duration) error

	// AddParticipant 原子地向会话追加参与者，并把过期时间重置为 ttl，返回追加后的会话。
	// 条目不存在时返回 ErrSessionNotFound，参与者已存在时返回 ErrDuplicateEntry，
	// 持续的并发写入导致无法提交时返回 ErrConcurrentUpdate。
	AddParticipant(ctx context.Context, inviteCode string, participant domain.Participant, ttl time.Duration) (*domain.Session, error)

	// Delete 删除会话条目。
	Delete(ctx context.Context, inviteCode string) error

	// IsInviteCodeExists 检查邀请码是否被某个存活的会话占用，不刷新过期时间。
	IsInviteCodeExists(ctx context.Context, code string) (bool, error)
}
