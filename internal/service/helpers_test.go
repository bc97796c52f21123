package service_test

import (
	"context"
	"sync"

	"clipsync/internal/domain"
	"clipsync/internal/repository"
)

// memRoomStore 是带唯一约束的内存房间存储，用于场景测试
type memRoomStore struct {
	mu    sync.Mutex
	rooms map[string]domain.Room
}

func newMemRoomStore() *memRoomStore {
	return &memRoomStore{rooms: make(map[string]domain.Room)}
}

func cloneRoom(r domain.Room) *domain.Room {
	r.Devices = append([]string(nil), r.Devices...)
	return &r
}

func (s *memRoomStore) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return cloneRoom(r), nil
}

func (s *memRoomStore) FindActiveByInviteCode(ctx context.Context, code string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.IsActive && r.InvitationCode == code {
			return cloneRoom(r), nil
		}
	}
	return nil, repository.ErrRoomNotFound
}

func (s *memRoomStore) FindActiveByMembership(ctx context.Context, devices []string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.IsActive && domain.SameMembership(r.Devices, devices) {
			return cloneRoom(r), nil
		}
	}
	return nil, repository.ErrRoomNotFound
}

func (s *memRoomStore) List(ctx context.Context, offset, limit int) ([]domain.Room, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, *cloneRoom(r))
	}
	total := int64(len(out))
	if offset >= len(out) {
		return []domain.Room{}, total, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], total, nil
}

func (s *memRoomStore) violates(room *domain.Room) bool {
	for id, r := range s.rooms {
		if id == room.ID {
			continue
		}
		if r.InvitationCode == room.InvitationCode {
			return true
		}
		if r.IsActive && room.IsActive && domain.SameMembership(r.Devices, room.Devices) {
			return true
		}
	}
	return false
}

func (s *memRoomStore) Create(ctx context.Context, room *domain.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[room.ID]; exists || s.violates(room) {
		return repository.ErrDuplicateEntry
	}
	s.rooms[room.ID] = *cloneRoom(*room)
	return nil
}

func (s *memRoomStore) Update(ctx context.Context, room *domain.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.rooms[room.ID]
	if !ok || stored.Version != room.Version {
		return repository.ErrConcurrentUpdate
	}
	if s.violates(room) {
		return repository.ErrDuplicateEntry
	}
	room.Version++
	s.rooms[room.ID] = *cloneRoom(*room)
	return nil
}

func (s *memRoomStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return repository.ErrRoomNotFound
	}
	delete(s.rooms, id)
	return nil
}

func (s *memRoomStore) IsInviteCodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.InvitationCode == code {
			return true, nil
		}
	}
	return false, nil
}

// memDeviceDirectory 只实现 ExistingIDs，其他方法不会在房间测试中被调用
type memDeviceDirectory struct {
	repository.DeviceRepository
	known map[string]bool
}

func newDeviceDirectory(ids ...string) *memDeviceDirectory {
	d := &memDeviceDirectory{known: make(map[string]bool)}
	for _, id := range ids {
		d.known[id] = true
	}
	return d
}

func (d *memDeviceDirectory) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if d.known[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// recordingNotifier 记录所有事件
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) Notify(event domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) kinds() []domain.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.EventKind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

func (n *recordingNotifier) last() domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

// stubCodes 返回固定的邀请码或错误
type stubCodes struct {
	code string
	err  error
}

func (c stubCodes) Generate(ctx context.Context) (string, error) { return c.code, c.err }
