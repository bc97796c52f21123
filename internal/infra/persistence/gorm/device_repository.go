package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"clipsync/internal/domain"
	"clipsync/internal/repository"
)

// GormDeviceRepository 是 DeviceRepository 接口的 GORM 实现
type GormDeviceRepository struct {
	db *gorm.DB
}

// NewGormDeviceRepository 创建 GormDeviceRepository 实例
func NewGormDeviceRepository(db *gorm.DB) *GormDeviceRepository {
	if db == nil {
		panic("database connection cannot be nil for GormDeviceRepository")
	}
	return &GormDeviceRepository{db: db}
}

// ExistingIDs 返回 ids 中存在于 devices 表的子集
func (r *GormDeviceRepository) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	found := make([]string, 0, len(ids))
	if len(ids) == 0 {
		return found, nil // 避免空的 IN 查询
	}
	err := r.db.WithContext(ctx).
		Model(&domain.Device{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find existing devices: %w", err)
	}
	return found, nil
}

// FindByID 根据设备 ID 查找设备
func (r *GormDeviceRepository) FindByID(ctx context.Context, id string) (*domain.Device, error) {
	var device domain.Device
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("gorm: find device by id '%s': %w", id, err)
	}
	return &device, nil
}

// FindOrCreate 按用户和客户端特征查找设备，不存在则创建
func (r *GormDeviceRepository) FindOrCreate(ctx context.Context, device *domain.Device) (*domain.Device, error) {
	query := r.db.WithContext(ctx).Where(
		"operating_system = ? AND browser = ? AND device_family = ?",
		device.OperatingSystem, device.Browser, device.DeviceFamily,
	)
	if device.UserID != nil {
		query = query.Where("user_id = ?", *device.UserID)
	} else {
		query = query.Where("user_id IS NULL")
	}

	var existing domain.Device
	err := query.First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("gorm: find device by client info: %w", err)
	}

	created := *device
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(&created).Error; err != nil {
		if isDuplicateEntryError(err) {
			return nil, repository.ErrDuplicateEntry
		}
		return nil, fmt.Errorf("gorm: create device (name: %s): %w", created.DeviceName, err)
	}
	return &created, nil
}
