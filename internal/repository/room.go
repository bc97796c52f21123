package repository

import (
	"context"

	"clipsync/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间，不存在时返回 ErrRoomNotFound。
	FindByID(ctx context.Context, id string) (*domain.Room, error)

	// FindActiveByInviteCode 根据邀请码查找活跃房间。
	FindActiveByInviteCode(ctx context.Context, code string) (*domain.Room, error)

	// FindActiveByMembership 查找成员集合与 devices 完全相同的活跃房间 (与顺序无关)。
	FindActiveByMembership(ctx context.Context, devices []string) (*domain.Room, error)

	// List 分页列出房间，同时返回总数。
	List(ctx context.Context, offset, limit int) ([]domain.Room, int64, error)

	// Create 插入新房间。违反唯一约束时返回 ErrDuplicateEntry。
	Create(ctx context.Context, room *domain.Room) error

	// Update 覆盖已有房间，只有 room.Version 与存储中的版本一致时才写入，
	// 成功后 room.Version 递增。版本不一致或记录已删除时返回 ErrConcurrentUpdate，
	// 违反唯一约束时返回 ErrDuplicateEntry。
	Update(ctx context.Context, room *domain.Room) error

	// Delete 删除房间，不存在时返回 ErrRoomNotFound。
	Delete(ctx context.Context, id string) error

	// IsInviteCodeExists 检查邀请码是否已被房间占用。
	IsInviteCodeExists(ctx context.Context, code string) (bool, error)
}
