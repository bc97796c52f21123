package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ErrCreatorNotMember 表示房间的 created_by 不在 devices 中，这是不可修复的构造错误。
var ErrCreatorNotMember = errors.New("room creator must be a member of the room")

// ErrEmptyMembership 表示房间没有任何设备。
var ErrEmptyMembership = errors.New("room must contain at least one device")

// Room 是已注册设备组成的持久化成员组。
// Room ID 同时作为推送网关的频道名。
type Room struct {
	ID             string                      `gorm:"primaryKey;size:36" json:"id"`
	Name           string                      `gorm:"size:191" json:"name,omitempty"`
	InvitationCode string                      `gorm:"uniqueIndex;size:32;not null" json:"invitation_code"`
	IsActive       bool                        `gorm:"not null" json:"is_active"`
	Devices        datatypes.JSONSlice[string] `gorm:"not null" json:"devices"`
	CreatedBy      string                      `gorm:"index;size:36;not null" json:"created_by"`
	// MembershipKey 只在房间活跃时非空，唯一索引保证活跃房间的成员集合不重复。
	MembershipKey *string `gorm:"uniqueIndex;size:64" json:"-"`
	// Version 每次写入递增，更新时用作乐观锁。
	Version   int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewRoom 构造一个新的活跃房间。devices 会按首次出现的顺序去重。
// createdBy 不在 devices 中时返回 ErrCreatorNotMember，不会自动补上。
func NewRoom(id, name, invitationCode string, devices []string, createdBy string) (*Room, error) {
	room := &Room{
		ID:             id,
		Name:           name,
		InvitationCode: invitationCode,
		IsActive:       true,
		Devices:        datatypes.JSONSlice[string](UniqueDeviceIDs(devices)),
		CreatedBy:      createdBy,
	}
	if err := room.Validate(); err != nil {
		return nil, err
	}
	return room, nil
}

// Validate 检查房间的成员不变量。
func (r *Room) Validate() error {
	if len(r.Devices) == 0 {
		return ErrEmptyMembership
	}
	if !r.HasDevice(r.CreatedBy) {
		return fmt.Errorf("%w: %s", ErrCreatorNotMember, r.CreatedBy)
	}
	return nil
}

// HasDevice 判断设备是否为房间成员。
func (r *Room) HasDevice(deviceID string) bool {
	for _, id := range r.Devices {
		if id == deviceID {
			return true
		}
	}
	return false
}

// DeviceIDs 返回成员列表的副本。
func (r *Room) DeviceIDs() []string {
	out := make([]string, len(r.Devices))
	copy(out, r.Devices)
	return out
}

// AddDevices 追加新成员，已存在的设备忽略。返回实际新增的设备。
func (r *Room) AddDevices(ids []string) []string {
	added := make([]string, 0, len(ids))
	for _, id := range UniqueDeviceIDs(ids) {
		if r.HasDevice(id) {
			continue
		}
		r.Devices = append(r.Devices, id)
		added = append(added, id)
	}
	return added
}

// RemoveDevices 移除成员，非成员忽略。返回实际移除的设备。
func (r *Room) RemoveDevices(ids []string) []string {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := make([]string, 0, len(r.Devices))
	removed := make([]string, 0)
	for _, id := range r.Devices {
		if _, ok := drop[id]; ok {
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	r.Devices = datatypes.JSONSlice[string](kept)
	return removed
}

// SyncMembershipKey 根据当前成员和活跃状态刷新 MembershipKey。
func (r *Room) SyncMembershipKey() {
	if !r.IsActive || len(r.Devices) == 0 {
		r.MembershipKey = nil
		return
	}
	key := MembershipKey(r.Devices)
	r.MembershipKey = &key
}

// MembershipKey 计算成员集合的指纹，与顺序和重复无关。
func MembershipKey(devices []string) string {
	ids := UniqueDeviceIDs(devices)
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "\n")))
	return hex.EncodeToString(sum[:])
}

// UniqueDeviceIDs 按首次出现顺序去重，并丢弃空 ID。
func UniqueDeviceIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SameMembership 判断两组设备是否构成相同集合。
func SameMembership(a, b []string) bool {
	return MembershipKey(a) == MembershipKey(b)
}
