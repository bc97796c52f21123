package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clipsync/internal/domain"
	gormpersistence "clipsync/internal/infra/persistence/gorm"
	"clipsync/internal/repository"
	"clipsync/internal/service"
)

// slowInviteRooms 在按邀请码读取之后停顿，让并发加入的读-改-写相互交错
type slowInviteRooms struct {
	*gormpersistence.GormRoomRepository
	delay time.Duration
}

func (r slowInviteRooms) FindActiveByInviteCode(ctx context.Context, code string) (*domain.Room, error) {
	room, err := r.GormRoomRepository.FindActiveByInviteCode(ctx, code)
	time.Sleep(r.delay)
	return room, err
}

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&domain.Device{}, &domain.Room{}))
	return db
}

func TestRoomService_Join_ConcurrentJoinsAllPersist(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()

	joiners := make([]string, 10)
	for i := range joiners {
		joiners[i] = fmt.Sprintf("J%d", i)
	}
	for _, id := range append([]string{"A"}, joiners...) {
		require.NoError(t, db.Create(&domain.Device{ID: id, DeviceName: "device-" + id}).Error)
	}

	rooms := slowInviteRooms{GormRoomRepository: gormpersistence.NewGormRoomRepository(db), delay: 20 * time.Millisecond}
	notifier := &recordingNotifier{}
	svc := service.NewRoomService(rooms, gormpersistence.NewGormDeviceRepository(db),
		service.NewInviteCodeGenerator("CLIP", rooms), notifier, 5*time.Second)

	room, err := svc.Create(ctx, []string{"A"}, "A", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, len(joiners))
	for i, id := range joiners {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = svc.JoinByInvitationCode(ctx, room.InvitationCode, id)
		}(i, id)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "join of %s", joiners[i])
	}

	got, err := svc.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, append([]string{"A"}, joiners...), got.DeviceIDs(), "每个成功的加入都必须留在成员列表中")

	joined := 0
	for _, kind := range notifier.kinds() {
		if kind == domain.EventRoomJoined {
			joined++
		}
	}
	assert.Equal(t, len(joiners), joined)
}

// interleavingRoomStore 在第一次 FindByID 之后模拟另一个写入者抢先修改房间
type interleavingRoomStore struct {
	*memRoomStore
	once         sync.Once
	concurrently func(store *memRoomStore)
}

func (s *interleavingRoomStore) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	room, err := s.memRoomStore.FindByID(ctx, id)
	s.once.Do(func() { s.concurrently(s.memRoomStore) })
	return room, err
}

func TestRoomService_Leave_ReplaysAfterConcurrentChange(t *testing.T) {
	base := newMemRoomStore()
	store := &interleavingRoomStore{memRoomStore: base}
	notifier := &recordingNotifier{}
	svc := service.NewRoomService(store, newDeviceDirectory("A", "B", "C", "D"),
		service.NewInviteCodeGenerator("CLIP", store), notifier, time.Second)
	ctx := context.Background()

	room, err := domain.NewRoom("room-1", "", "CLIP-abcdef", []string{"A", "B", "C"}, "A")
	require.NoError(t, err)
	require.NoError(t, base.Create(ctx, room))

	store.concurrently = func(inner *memRoomStore) {
		current, err := inner.FindByID(ctx, "room-1")
		require.NoError(t, err)
		current.AddDevices([]string{"D"})
		require.NoError(t, inner.Update(ctx, current))
	}

	got, err := svc.Leave(ctx, "room-1", "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "D"}, got.DeviceIDs(), "并发加入的设备不能被覆盖")

	stored, err := base.FindByID(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "D"}, stored.DeviceIDs())
}

// contendedRoomStore 的每次更新都因版本冲突失败
type contendedRoomStore struct {
	*memRoomStore
	mu      sync.Mutex
	updates int
}

func (s *contendedRoomStore) Update(ctx context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	return repository.ErrConcurrentUpdate
}

func TestRoomService_Join_RetriesExhaustedIsConflict(t *testing.T) {
	store := &contendedRoomStore{memRoomStore: newMemRoomStore()}
	notifier := &recordingNotifier{}
	svc := service.NewRoomService(store, newDeviceDirectory("A", "B"),
		service.NewInviteCodeGenerator("CLIP", store), notifier, time.Second)
	ctx := context.Background()

	room, err := svc.Create(ctx, []string{"A"}, "A", "")
	require.NoError(t, err)

	_, err = svc.JoinByInvitationCode(ctx, room.InvitationCode, "B")
	assert.ErrorIs(t, err, service.ErrConflict)
	assert.Equal(t, service.MaxMutationAttempts, store.updates)
	assert.Equal(t, []domain.EventKind{domain.EventRoomCreated}, notifier.kinds())
}
