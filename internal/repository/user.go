package repository

import (
	"context"

	"clipsync/internal/domain"
)

// UserRepository 定义了用户数据的存储和检索操作。
type UserRepository interface {
	// FindByEmail 根据邮箱查找用户，不存在时返回 ErrUserNotFound。
	FindByEmail(ctx context.Context, email string) (*domain.User, error)

	// FindByID 根据用户 ID 查找用户。
	FindByID(ctx context.Context, id string) (*domain.User, error)

	// CreateWithDevice 在同一事务中创建用户和它的第一台设备，任一写入失败都不留下记录。
	// 邮箱冲突时返回 ErrDuplicateEntry。
	CreateWithDevice(ctx context.Context, user *domain.User, device *domain.Device) error
}
