package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"clipsync/internal/domain"
	"clipsync/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id '%s': %w", id, err)
	}
	return &room, nil
}

// FindActiveByInviteCode 根据邀请码查找活跃房间
func (r *GormRoomRepository) FindActiveByInviteCode(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).
		Where("invitation_code = ? AND is_active = ?", code, true).
		First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by invite code '%s': %w", code, err)
	}
	return &room, nil
}

// FindActiveByMembership 通过成员指纹精确匹配活跃房间。
// 只有活跃房间的 membership_key 非空，因此无需额外过滤 is_active。
func (r *GormRoomRepository) FindActiveByMembership(ctx context.Context, devices []string) (*domain.Room, error) {
	key := domain.MembershipKey(devices)
	var room domain.Room
	err := r.db.WithContext(ctx).Where("membership_key = ?", key).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by membership: %w", err)
	}
	return &room, nil
}

// List 分页列出房间，按创建时间倒序
func (r *GormRoomRepository) List(ctx context.Context, offset, limit int) ([]domain.Room, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Room{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("gorm: count rooms: %w", err)
	}
	rooms := make([]domain.Room, 0, limit)
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&rooms).Error
	if err != nil {
		return nil, 0, fmt.Errorf("gorm: list rooms (offset %d, limit %d): %w", offset, limit, err)
	}
	return rooms, total, nil
}

// Create 插入新房间
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := room.Validate(); err != nil {
		return fmt.Errorf("gorm: refusing to create room '%s': %w", room.ID, err)
	}
	room.SyncMembershipKey()
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room (id: %s, invite_code: %s): %w", room.ID, room.InvitationCode, err)
	}
	return nil
}

// Update 按版本号条件覆盖已有房间的全部字段。
// 版本号每次都会变化，因此 RowsAffected 为 0 只说明版本不匹配或记录不存在。
func (r *GormRoomRepository) Update(ctx context.Context, room *domain.Room) error {
	if err := room.Validate(); err != nil {
		return fmt.Errorf("gorm: refusing to update room '%s': %w", room.ID, err)
	}
	room.SyncMembershipKey()
	expected := room.Version
	room.Version = expected + 1
	result := r.db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ? AND version = ?", room.ID, expected).
		Select("name", "is_active", "devices", "created_by", "membership_key", "version", "updated_at").
		Updates(room)
	if result.Error != nil {
		room.Version = expected
		if isDuplicateEntryError(result.Error) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: update room (id: %s): %w", room.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		room.Version = expected
		return repository.ErrConcurrentUpdate
	}
	return nil
}

// Delete 删除房间
func (r *GormRoomRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Room{})
	if result.Error != nil {
		return fmt.Errorf("gorm: delete room '%s': %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrRoomNotFound
	}
	return nil
}

// IsInviteCodeExists 检查邀请码是否存在
func (r *GormRoomRepository) IsInviteCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("invitation_code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by invite code '%s': %w", code, err)
	}
	return count > 0, nil
}
