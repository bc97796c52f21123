package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clipsync/internal/domain"
	"clipsync/internal/repository"
)

// DefaultStoreTimeout 是单次存储调用的默认超时
const DefaultStoreTimeout = 5 * time.Second

// maxMutationAttempts 是成员变更遇到并发修改时的最大尝试次数
const maxMutationAttempts = 10

// EventNotifier 接收成员变化事件，实现必须不阻塞调用方
type EventNotifier interface {
	Notify(event domain.Event)
}

// CodeGenerator 生成全局唯一的邀请码
type CodeGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// RoomPatch 描述一次部分更新，nil 字段保持原值
type RoomPatch struct {
	Name     *string
	Devices  []string
	IsActive *bool
}

// RoomService 负责房间成员关系和邀请流程相关的业务逻辑。
type RoomService struct {
	roomRepo     repository.RoomRepository
	deviceRepo   repository.DeviceRepository
	codes        CodeGenerator
	events       EventNotifier
	storeTimeout time.Duration
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(
	roomRepo repository.RoomRepository,
	deviceRepo repository.DeviceRepository,
	codes CodeGenerator,
	events EventNotifier,
	storeTimeout time.Duration,
) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if deviceRepo == nil {
		panic("DeviceRepository cannot be nil for RoomService")
	}
	if codes == nil {
		panic("CodeGenerator cannot be nil for RoomService")
	}
	if events == nil {
		panic("EventNotifier cannot be nil for RoomService")
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &RoomService{
		roomRepo:     roomRepo,
		deviceRepo:   deviceRepo,
		codes:        codes,
		events:       events,
		storeTimeout: storeTimeout,
	}
}

// Create 创建一个新房间。devices 必须非空、包含 createdBy、全部存在，
// 且不能与已有活跃房间的成员集合相同。
func (s *RoomService) Create(ctx context.Context, devices []string, createdBy, name string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"created_by": createdBy, "devices": devices})

	ids := domain.UniqueDeviceIDs(devices)
	if err := validateMembership(ids, createdBy); err != nil {
		logCtx.WithError(err).Warn("Create room rejected")
		return nil, err
	}
	if err := s.ensureDevicesExist(ctx, ids); err != nil {
		logCtx.WithError(err).Warn("Create room rejected: device check failed")
		return nil, err
	}
	if err := s.ensureUniqueMembership(ctx, ids, ""); err != nil {
		logCtx.WithError(err).Warn("Create room rejected: membership check failed")
		return nil, err
	}

	inviteCode, err := s.generateCode(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate unique invite code")
		return nil, InternalError("failed to generate invitation code", err)
	}
	logCtx = logCtx.WithField("invite_code", inviteCode)

	room, err := domain.NewRoom(uuid.NewString(), strings.TrimSpace(name), inviteCode, ids, createdBy)
	if err != nil {
		// 前面已经校验过，出现这里说明构造逻辑有误
		logCtx.WithError(err).Error("Room construction failed after validation")
		return nil, InternalError("failed to construct room", err)
	}

	if err := s.persist(ctx, room, true); err != nil {
		logCtx.WithError(err).Error("Failed to save new room")
		return nil, err
	}
	logCtx = logCtx.WithField("room_id", room.ID)

	s.events.Notify(domain.NewEvent(room.ID, domain.EventRoomCreated, map[string]any{
		"room_id":    room.ID,
		"created_by": room.CreatedBy,
		"devices":    room.DeviceIDs(),
	}))
	logCtx.Info("Room created successfully")
	return room, nil
}

// Get 根据 ID 获取房间
func (s *RoomService) Get(ctx context.Context, id string) (*domain.Room, error) {
	room, err := s.load(ctx, id)
	if err != nil {
		logrus.WithField("room_id", id).WithError(err).Warn("Get room failed")
		return nil, err
	}
	return room, nil
}

// RoomPage 是一页房间及实际生效的分页参数
type RoomPage struct {
	Rooms []domain.Room
	Total int64
	Page  int
	Size  int
}

// List 分页列出房间，page 从 1 开始。越界的 page/size 会被修正，修正后的值随结果返回。
func (s *RoomService) List(ctx context.Context, page, size int) (*RoomPage, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	rooms, total, err := s.roomRepo.List(storeCtx, (page-1)*size, size)
	if err != nil {
		logrus.WithFields(logrus.Fields{"page": page, "size": size}).WithError(err).Error("List rooms failed")
		return nil, mapRepoError(err, nil)
	}
	return &RoomPage{Rooms: rooms, Total: total, Page: page, Size: size}, nil
}

// Update 部分更新房间。提供 Devices 时按创建规则重新校验新的完整集合，
// 重新激活房间时同样检查成员集合唯一。
func (s *RoomService) Update(ctx context.Context, id string, patch RoomPatch) (*domain.Room, error) {
	logCtx := logrus.WithField("room_id", id)

	current, err := s.load(ctx, id)
	if err != nil {
		logCtx.WithError(err).Warn("Update room failed")
		return nil, err
	}
	var ids []string
	if patch.Devices != nil {
		ids = domain.UniqueDeviceIDs(patch.Devices)
		if err := validateMembership(ids, current.CreatedBy); err != nil {
			logCtx.WithError(err).Warn("Update room rejected")
			return nil, err
		}
		if err := s.ensureDevicesExist(ctx, ids); err != nil {
			logCtx.WithError(err).Warn("Update room rejected: device check failed")
			return nil, err
		}
	}

	room, err := s.mutateRoom(ctx, func() (*domain.Room, error) {
		return s.load(ctx, id)
	}, func(room *domain.Room) (bool, error) {
		wasActive := room.IsActive
		membershipChanged := false
		if ids != nil {
			if err := validateMembership(ids, room.CreatedBy); err != nil {
				return false, err
			}
			membershipChanged = !domain.SameMembership(ids, room.Devices)
			room.Devices = append([]string(nil), ids...)
		}
		if patch.Name != nil {
			room.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.IsActive != nil {
			room.IsActive = *patch.IsActive
		}
		if room.IsActive && (membershipChanged || !wasActive) {
			if err := s.ensureUniqueMembership(ctx, room.Devices, room.ID); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		logCtx.WithError(err).Warn("Update room failed")
		return nil, err
	}
	logCtx.Info("Room updated successfully")
	return room, nil
}

// AddDevices 把设备加入房间。所有设备必须存在，已是成员的设备忽略。
func (s *RoomService) AddDevices(ctx context.Context, id string, deviceIDs []string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": id, "devices": deviceIDs})

	ids := domain.UniqueDeviceIDs(deviceIDs)
	if len(ids) == 0 {
		return nil, ValidationError("devices must not be empty")
	}
	if _, err := s.load(ctx, id); err != nil {
		logCtx.WithError(err).Warn("Add devices failed")
		return nil, err
	}
	if err := s.ensureDevicesExist(ctx, ids); err != nil {
		logCtx.WithError(err).Warn("Add devices rejected: device check failed")
		return nil, err
	}

	var added []string
	room, err := s.mutateRoom(ctx, func() (*domain.Room, error) {
		return s.load(ctx, id)
	}, func(room *domain.Room) (bool, error) {
		added = room.AddDevices(ids)
		if len(added) == 0 {
			return false, nil
		}
		return true, s.ensureUniqueAfterChange(ctx, room)
	})
	if err != nil {
		logCtx.WithError(err).Warn("Add devices failed")
		return nil, err
	}
	if len(added) == 0 {
		logCtx.Debug("Add devices was a no-op, all devices already members")
		return room, nil
	}

	for _, deviceID := range added {
		s.events.Notify(domain.NewEvent(room.ID, domain.EventDeviceConnected, map[string]any{
			"room_id":   room.ID,
			"device_id": deviceID,
		}))
	}
	logCtx.WithField("added", added).Info("Devices added to room")
	return room, nil
}

// RemoveDevices 把设备移出房间，非成员忽略。不允许移除创建者。
func (s *RoomService) RemoveDevices(ctx context.Context, id string, deviceIDs []string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": id, "devices": deviceIDs})

	ids := domain.UniqueDeviceIDs(deviceIDs)
	if len(ids) == 0 {
		return nil, ValidationError("devices must not be empty")
	}

	var removed []string
	room, err := s.mutateRoom(ctx, func() (*domain.Room, error) {
		return s.load(ctx, id)
	}, func(room *domain.Room) (bool, error) {
		for _, deviceID := range ids {
			if deviceID == room.CreatedBy {
				return false, ValidationError("room creator %s cannot be removed; leave or delete the room instead", deviceID)
			}
		}
		removed = room.RemoveDevices(ids)
		if len(removed) == 0 {
			return false, nil
		}
		return true, s.ensureUniqueAfterChange(ctx, room)
	})
	if err != nil {
		logCtx.WithError(err).Warn("Remove devices failed")
		return nil, err
	}
	if len(removed) == 0 {
		logCtx.Debug("Remove devices was a no-op, no device was a member")
		return room, nil
	}

	for _, deviceID := range removed {
		s.events.Notify(domain.NewEvent(room.ID, domain.EventDeviceDisconnected, map[string]any{
			"room_id":   room.ID,
			"device_id": deviceID,
		}))
	}
	logCtx.WithField("removed", removed).Info("Devices removed from room")
	return room, nil
}

// JoinByInvitationCode 让设备通过邀请码加入活跃房间
func (s *RoomService) JoinByInvitationCode(ctx context.Context, code, deviceID string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"invite_code": code, "device_id": deviceID})

	if strings.TrimSpace(code) == "" {
		return nil, ValidationError("invitation code is required")
	}
	if err := s.ensureDevicesExist(ctx, []string{deviceID}); err != nil {
		logCtx.WithError(err).Warn("Join room rejected: device check failed")
		return nil, err
	}

	room, err := s.mutateRoom(ctx, func() (*domain.Room, error) {
		return s.loadByInviteCode(ctx, code)
	}, func(room *domain.Room) (bool, error) {
		if room.HasDevice(deviceID) {
			return false, ConflictError("device %s already joined this room", deviceID)
		}
		room.AddDevices([]string{deviceID})
		return true, s.ensureUniqueAfterChange(ctx, room)
	})
	if err != nil {
		logCtx.WithError(err).Warn("Join room failed")
		return nil, err
	}
	logCtx = logCtx.WithField("room_id", room.ID)

	s.events.Notify(domain.NewEvent(room.ID, domain.EventRoomJoined, map[string]any{
		"room_id":   room.ID,
		"device_id": deviceID,
	}))
	logCtx.Info("Device joined room successfully")
	return room, nil
}

// Leave 让设备离开房间。创建者离开时由剩余成员中最早加入的设备接任；
// 唯一成员不能离开，只能删除房间。
func (s *RoomService) Leave(ctx context.Context, id, deviceID string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": id, "device_id": deviceID})

	room, err := s.mutateRoom(ctx, func() (*domain.Room, error) {
		return s.load(ctx, id)
	}, func(room *domain.Room) (bool, error) {
		if !room.HasDevice(deviceID) {
			return false, NotFoundError("device %s is not a member of room %s", deviceID, id)
		}
		if len(room.Devices) == 1 {
			return false, ForbiddenError("the only member cannot leave the room; delete it instead")
		}
		room.RemoveDevices([]string{deviceID})
		if room.CreatedBy == deviceID {
			room.CreatedBy = room.Devices[0]
		}
		return true, s.ensureUniqueAfterChange(ctx, room)
	})
	if err != nil {
		logCtx.WithError(err).Warn("Leave room failed")
		return nil, err
	}

	s.events.Notify(domain.NewEvent(room.ID, domain.EventRoomLeft, map[string]any{
		"room_id":    room.ID,
		"device_id":  deviceID,
		"created_by": room.CreatedBy,
	}))
	logCtx.WithField("created_by", room.CreatedBy).Info("Device left room")
	return room, nil
}

// Delete 删除房间，只有创建者可以删除
func (s *RoomService) Delete(ctx context.Context, id, requester string) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": id, "requester": requester})

	room, err := s.load(ctx, id)
	if err != nil {
		logCtx.WithError(err).Warn("Delete room failed")
		return err
	}
	if room.CreatedBy != requester {
		logCtx.Warn("Delete room rejected: requester is not the creator")
		return ForbiddenError("only the room creator can delete the room")
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.roomRepo.Delete(storeCtx, id); err != nil {
		logCtx.WithError(err).Error("Failed to delete room")
		return mapRepoError(err, ErrRoomNotFound)
	}

	s.events.Notify(domain.NewEvent(room.ID, domain.EventRoomDeleted, map[string]any{
		"room_id": room.ID,
	}))
	logCtx.Info("Room deleted")
	return nil
}

// InvitationCode 返回房间的邀请码 (用于生成二维码)，只有创建者可以获取
func (s *RoomService) InvitationCode(ctx context.Context, id, requester string) (string, error) {
	room, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	if room.CreatedBy != requester {
		logrus.WithFields(logrus.Fields{"room_id": id, "requester": requester}).
			Warn("Invitation code rejected: requester is not the creator")
		return "", ForbiddenError("only the room creator can get the invitation code")
	}
	return room.InvitationCode, nil
}

// --- 私有辅助函数 ---

func (s *RoomService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *RoomService) load(ctx context.Context, id string) (*domain.Room, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	room, err := s.roomRepo.FindByID(storeCtx, id)
	if err != nil {
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	return room, nil
}

func (s *RoomService) loadByInviteCode(ctx context.Context, code string) (*domain.Room, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	room, err := s.roomRepo.FindActiveByInviteCode(storeCtx, code)
	if err != nil {
		return nil, mapRepoError(err, ErrInvalidInviteCode)
	}
	return room, nil
}

func (s *RoomService) generateCode(ctx context.Context) (string, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.codes.Generate(storeCtx)
}

// validateMembership 检查成员集合的结构规则
func validateMembership(ids []string, createdBy string) error {
	if len(ids) == 0 {
		return ValidationError("devices must not be empty")
	}
	for _, id := range ids {
		if id == createdBy {
			return nil
		}
	}
	return ValidationError("created_by %s must be one of the room devices", createdBy)
}

// ensureDevicesExist 等待设备目录的查询结果，并列出所有不存在的设备
func (s *RoomService) ensureDevicesExist(ctx context.Context, ids []string) error {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	found, err := s.deviceRepo.ExistingIDs(storeCtx, ids)
	if err != nil {
		return mapRepoError(err, nil)
	}
	known := make(map[string]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return InvalidReferenceError("unknown devices: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ensureUniqueMembership 检查没有其他活跃房间拥有完全相同的成员集合
func (s *RoomService) ensureUniqueMembership(ctx context.Context, ids []string, excludeID string) error {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	existing, err := s.roomRepo.FindActiveByMembership(storeCtx, ids)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return mapRepoError(err, nil)
	}
	if existing.ID == excludeID {
		return nil
	}
	return ConflictError("an active room with the same devices already exists (room %s)", existing.ID)
}

// ensureUniqueAfterChange 在成员变化后重新检查活跃房间的成员集合唯一性
func (s *RoomService) ensureUniqueAfterChange(ctx context.Context, room *domain.Room) error {
	if !room.IsActive {
		return nil
	}
	return s.ensureUniqueMembership(ctx, room.Devices, room.ID)
}

// mutateRoom 以乐观锁执行一次读-改-写。apply 返回 false 时不写入。
// 写入时版本不一致说明有并发修改，重新读取并重放 apply，超过次数后返回 ConflictError。
func (s *RoomService) mutateRoom(ctx context.Context, find func() (*domain.Room, error), apply func(room *domain.Room) (bool, error)) (*domain.Room, error) {
	for attempt := 1; attempt <= maxMutationAttempts; attempt++ {
		room, err := find()
		if err != nil {
			return nil, err
		}
		changed, err := apply(room)
		if err != nil {
			return nil, err
		}
		if !changed {
			return room, nil
		}
		err = s.persist(ctx, room, false)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, repository.ErrConcurrentUpdate) {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{"room_id": room.ID, "attempt": attempt}).
			Debug("Room changed concurrently, retrying")
	}
	return nil, ConflictError("room was modified concurrently, please retry")
}

// persist 写入房间。唯一索引冲突时重新查询，确认是成员集合冲突则返回 ConflictError。
func (s *RoomService) persist(ctx context.Context, room *domain.Room, create bool) error {
	storeCtx, cancel := s.storeCtx(ctx)
	var err error
	if create {
		err = s.roomRepo.Create(storeCtx, room)
	} else {
		err = s.roomRepo.Update(storeCtx, room)
	}
	cancel()
	if err == nil || errors.Is(err, repository.ErrConcurrentUpdate) {
		return err
	}
	if errors.Is(err, repository.ErrDuplicateEntry) && room.IsActive {
		// 并发请求可能在检查之后抢先写入了相同的成员集合
		if conflict := s.ensureUniqueMembership(ctx, room.Devices, room.ID); errors.Is(conflict, ErrConflict) {
			return conflict
		}
	}
	return mapRepoError(err, ErrRoomNotFound)
}
