package service

import "io"

// SetRandomSource 替换邀请码生成器的随机源，仅供测试使用
func (g *InviteCodeGenerator) SetRandomSource(r io.Reader) { g.random = r }

// MaxMutationAttempts 暴露成员变更的重试上限，仅供测试使用
const MaxMutationAttempts = maxMutationAttempts
