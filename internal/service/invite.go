package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	inviteCodeLength   = 6
	inviteCodeAttempts = 10
	// DefaultInviteCodePrefix 是房间和会话共用的邀请码命名空间
	DefaultInviteCodePrefix = "CLIP"
)

// InviteCodeChecker 检查邀请码是否已被占用，房间仓库和会话仓库都实现了它
type InviteCodeChecker interface {
	IsInviteCodeExists(ctx context.Context, code string) (bool, error)
}

// InviteCodeGenerator 生成 <prefix>-<6 位随机字母数字> 格式的邀请码，
// 并在所有注册的 checker 中确认唯一。
type InviteCodeGenerator struct {
	prefix   string
	checkers []InviteCodeChecker
	random   io.Reader
}

// NewInviteCodeGenerator 创建邀请码生成器
func NewInviteCodeGenerator(prefix string, checkers ...InviteCodeChecker) *InviteCodeGenerator {
	if len(checkers) == 0 {
		panic("at least one InviteCodeChecker is required for InviteCodeGenerator")
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), "-")
	if prefix == "" {
		prefix = DefaultInviteCodePrefix
	}
	return &InviteCodeGenerator{prefix: prefix, checkers: checkers, random: rand.Reader}
}

// Prefix 返回邀请码前缀
func (g *InviteCodeGenerator) Prefix() string { return g.prefix }

// Generate 生成一个在所有存储中都未被占用的邀请码。
// 连续 10 次冲突后返回错误，调用方应视为内部错误。
func (g *InviteCodeGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		suffix, err := g.randomSuffix()
		if err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		code := g.prefix + "-" + suffix

		taken, err := g.isTaken(ctx, code)
		if err != nil {
			logrus.WithError(err).WithField("invite_code", code).Error("Store error checking invite code uniqueness")
			return "", fmt.Errorf("store error checking invite code: %w", err)
		}
		if !taken {
			logrus.WithField("invite_code", code).Debugf("Generated unique invite code after %d attempt(s).", attempt+1)
			return code, nil
		}
		logrus.WithField("invite_code", code).Warnf("Generated invite code already exists, retrying (attempt %d)...", attempt+1)
	}
	logrus.Errorf("Failed to generate a unique invite code after %d attempts", inviteCodeAttempts)
	return "", fmt.Errorf("failed to generate a unique invite code after %d attempts", inviteCodeAttempts)
}

func (g *InviteCodeGenerator) isTaken(ctx context.Context, code string) (bool, error) {
	for _, checker := range g.checkers {
		exists, err := checker.IsInviteCodeExists(ctx, code)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

// randomSuffix 使用 rand.Int 从字母表中均匀取字符
func (g *InviteCodeGenerator) randomSuffix() (string, error) {
	max := big.NewInt(int64(len(inviteCodeAlphabet)))
	var b strings.Builder
	b.Grow(inviteCodeLength)
	for i := 0; i < inviteCodeLength; i++ {
		n, err := rand.Int(g.random, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(inviteCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
