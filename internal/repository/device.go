package repository

import (
	"context"

	"clipsync/internal/domain"
)

// DeviceRepository 是设备目录，房间只能引用其中存在的设备。
type DeviceRepository interface {
	// ExistingIDs 返回 ids 中实际存在的子集。
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)

	// FindByID 根据设备 ID 查找设备。
	FindByID(ctx context.Context, id string) (*domain.Device, error)

	// FindOrCreate 查找与 device 的用户和客户端特征相同的设备，不存在时创建。
	FindOrCreate(ctx context.Context, device *domain.Device) (*domain.Device, error)
}
