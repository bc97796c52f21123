package redisstate_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipsync/internal/domain"
	redisstate "clipsync/internal/infra/state/redis"
	"clipsync/internal/repository"
)

const sessionTTL = 30 * time.Minute

func newTestRepo(t *testing.T) (*redisstate.RedisSessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstate.NewRedisSessionRepository(client, "test:"), mr
}

func sampleSession() *domain.Session {
	return &domain.Session{
		RoomID:     "room-1",
		InviteCode: "CLIP-Ab12Cd",
		CreatedBy:  "user-1",
		Username:   "Linux Firefox",
		Participants: []domain.Participant{
			{UserID: "user-1", Username: "Linux Firefox", JoinedAt: time.Now().UTC().Truncate(time.Second)},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestRedisSessionRepository_SaveGetDelete(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()
	session := sampleSession()

	require.NoError(t, repo.Save(ctx, session, sessionTTL))
	assert.True(t, mr.Exists("test:session:CLIP-Ab12Cd"))

	got, err := repo.Get(ctx, session.InviteCode, sessionTTL)
	require.NoError(t, err)
	assert.Equal(t, session.RoomID, got.RoomID)
	assert.Equal(t, session.Participants, got.Participants)

	exists, err := repo.IsInviteCodeExists(ctx, session.InviteCode)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.Delete(ctx, session.InviteCode))
	_, err = repo.Get(ctx, session.InviteCode, sessionTTL)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestRedisSessionRepository_SlidingExpiry(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()
	session := sampleSession()
	require.NoError(t, repo.Save(ctx, session, sessionTTL))

	// 每次读取都把过期时间重置为完整窗口
	mr.FastForward(29 * time.Minute)
	_, err := repo.Get(ctx, session.InviteCode, sessionTTL)
	require.NoError(t, err)

	mr.FastForward(29 * time.Minute)
	_, err = repo.Get(ctx, session.InviteCode, sessionTTL)
	require.NoError(t, err, "读取后应从读取时刻重新计时")

	mr.FastForward(sessionTTL - time.Second)
	assert.True(t, mr.Exists("test:session:CLIP-Ab12Cd"))

	mr.FastForward(2 * time.Second)
	_, err = repo.Get(ctx, session.InviteCode, sessionTTL)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestRedisSessionRepository_ExistsDoesNotRefresh(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()
	session := sampleSession()
	require.NoError(t, repo.Save(ctx, session, sessionTTL))

	mr.FastForward(20 * time.Minute)
	exists, err := repo.IsInviteCodeExists(ctx, session.InviteCode)
	require.NoError(t, err)
	assert.True(t, exists)

	mr.FastForward(11 * time.Minute)
	exists, err = repo.IsInviteCodeExists(ctx, session.InviteCode)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisSessionRepository_MalformedEntry(t *testing.T) {
	cases := map[string]string{
		"missing fields": `{"room_id":"r"}`,
		"not json":       "not-json",
		"wrong shape":    `["room_id"]`,
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			repo, mr := newTestRepo(t)
			require.NoError(t, mr.Set("test:session:CLIP-broken", value))

			_, err := repo.Get(context.Background(), "CLIP-broken", sessionTTL)
			assert.ErrorIs(t, err, repository.ErrSessionNotFound)
			assert.False(t, mr.Exists("test:session:CLIP-broken"), "损坏的条目必须被删除")

			_, err = repo.AddParticipant(context.Background(), "CLIP-broken", domain.Participant{UserID: "u"}, sessionTTL)
			assert.ErrorIs(t, err, repository.ErrSessionNotFound)
		})
	}
}

func TestRedisSessionRepository_AddParticipant(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()
	session := sampleSession()
	require.NoError(t, repo.Save(ctx, session, sessionTTL))
	mr.FastForward(20 * time.Minute)

	guest := domain.Participant{UserID: "user-2", Username: "iOS Safari", JoinedAt: time.Now().UTC().Truncate(time.Second)}
	got, err := repo.AddParticipant(ctx, session.InviteCode, guest, sessionTTL)
	require.NoError(t, err)
	assert.Equal(t, []domain.Participant{session.Participants[0], guest}, got.Participants)
	assert.Equal(t, sessionTTL, mr.TTL("test:session:CLIP-Ab12Cd"), "追加参与者会重置过期时间")

	stored, err := repo.Get(ctx, session.InviteCode, sessionTTL)
	require.NoError(t, err)
	assert.Len(t, stored.Participants, 2)

	_, err = repo.AddParticipant(ctx, session.InviteCode, guest, sessionTTL)
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)

	_, err = repo.AddParticipant(ctx, "CLIP-nope00", guest, sessionTTL)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestRedisSessionRepository_AddParticipantCodeMismatch(t *testing.T) {
	repo, mr := newTestRepo(t)
	session := sampleSession()
	payload, err := json.Marshal(session)
	require.NoError(t, err)
	// 键与载荷中的邀请码不一致
	require.NoError(t, mr.Set("test:session:CLIP-other0", string(payload)))

	_, err = repo.AddParticipant(context.Background(), "CLIP-other0", domain.Participant{UserID: "u"}, sessionTTL)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	raw, err := mr.Get("test:session:CLIP-other0")
	require.NoError(t, err)
	assert.Equal(t, string(payload), raw, "不匹配的条目不会被改写")
}

func TestRedisSessionRepository_ConcurrentAddParticipant(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	session := sampleSession()
	require.NoError(t, repo.Save(ctx, session, sessionTTL))

	const joiners = 20
	var wg sync.WaitGroup
	errs := make([]error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.AddParticipant(ctx, session.InviteCode, domain.Participant{UserID: fmt.Sprintf("guest-%d", i)}, sessionTTL)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "guest-%d", i)
	}

	stored, err := repo.Get(ctx, session.InviteCode, sessionTTL)
	require.NoError(t, err)
	require.Len(t, stored.Participants, joiners+1)
	for i := 0; i < joiners; i++ {
		assert.True(t, stored.HasParticipant(fmt.Sprintf("guest-%d", i)))
	}
}

func TestRedisSessionRepository_SaveRejectsInvalid(t *testing.T) {
	repo, _ := newTestRepo(t)
	err := repo.Save(context.Background(), &domain.Session{RoomID: "r"}, sessionTTL)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
}
