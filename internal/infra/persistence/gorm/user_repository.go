package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"clipsync/internal/domain"
	"clipsync/internal/repository"
)

// GormUserRepository 是 UserRepository 接口的 GORM 实现
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository 创建 GormUserRepository 实例
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	if db == nil {
		panic("database connection cannot be nil for GormUserRepository")
	}
	return &GormUserRepository{db: db}
}

// FindByEmail 根据邮箱查找用户
func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user by email '%s': %w", email, err)
	}
	return &user, nil
}

// FindByID 根据用户 ID 查找用户
func (r *GormUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user by id '%s': %w", id, err)
	}
	return &user, nil
}

// CreateWithDevice 在一个事务中插入用户和设备。
// 主键为字符串，调用方需要在创建前填好 ID。只有用户插入的唯一约束冲突映射为 ErrDuplicateEntry。
func (r *GormUserRepository) CreateWithDevice(ctx context.Context, user *domain.User, device *domain.Device) error {
	var userErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if userErr = tx.Create(user).Error; userErr != nil {
			return userErr
		}
		if err := tx.Create(device).Error; err != nil {
			return fmt.Errorf("create first device (id: %s): %w", device.ID, err)
		}
		return nil
	})
	if err != nil {
		if userErr != nil && isDuplicateEntryError(userErr) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: register user (id: %s, email: %s): %w", user.ID, user.Email, err)
	}
	return nil
}
