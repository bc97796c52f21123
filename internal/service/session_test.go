package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"clipsync/internal/domain"
	redisstate "clipsync/internal/infra/state/redis"
	"clipsync/internal/repository"
	"clipsync/internal/repository/mocks"
	"clipsync/internal/service"
)

const (
	testTTL       = 30 * time.Minute
	macUserAgent  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iphoneUserAge = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

type sessionFixture struct {
	svc      *service.SessionService
	mr       *miniredis.Miniredis
	notifier *recordingNotifier
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := redisstate.NewRedisSessionRepository(client, "test:")
	notifier := &recordingNotifier{}
	codes := service.NewInviteCodeGenerator("CLIP", sessions)
	svc := service.NewSessionService(sessions, codes, notifier, testTTL, time.Second)
	return &sessionFixture{svc: svc, mr: mr, notifier: notifier}
}

// stateOf 模拟客户端在下一次请求中带回的 cookie
func stateOf(g *service.SessionGrant) service.ClientState {
	descriptor := g.Descriptor
	identity := g.Identity
	return service.ClientState{Descriptor: &descriptor, Identity: &identity}
}

func TestSessionService_CreateAndCurrent(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	grant, err := f.svc.Create(ctx, service.ClientState{}, service.ClientMetadata{UserAgent: macUserAgent})
	require.NoError(t, err)
	assert.Regexp(t, inviteCodePattern, grant.Descriptor.InviteCode)
	assert.Equal(t, testTTL, grant.TTL)
	assert.Equal(t, grant.Identity.UserID, grant.Descriptor.CreatedBy)
	assert.NotEmpty(t, grant.Identity.Username)
	require.Len(t, grant.Session.Participants, 1)

	current, err := f.svc.Current(ctx, stateOf(grant))
	require.NoError(t, err)
	assert.Equal(t, grant.Descriptor.RoomID, current.RoomID)

	evt := f.notifier.last()
	assert.Equal(t, domain.EventRoomCreated, evt.Kind)
	assert.Equal(t, grant.Identity.UserID, evt.Payload["user_id"])
}

func TestSessionService_CreateWhileInSessionForbidden(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	grant, err := f.svc.Create(ctx, service.ClientState{}, service.ClientMetadata{})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, stateOf(grant), service.ClientMetadata{})
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestSessionService_StaleCookieIsIgnored(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	stale := service.ClientState{Descriptor: &domain.SessionDescriptor{RoomID: "gone", InviteCode: "CLIP-gone00"}}
	grant, err := f.svc.Create(ctx, stale, service.ClientMetadata{})
	require.NoError(t, err)

	// room_id 不一致的描述等同于没有会话
	mismatched := stateOf(grant)
	mismatched.Descriptor.RoomID = "other"
	_, err = f.svc.Current(ctx, mismatched)
	assert.ErrorIs(t, err, service.ErrNoActiveSession)
}

func TestSessionService_Join(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	host, err := f.svc.Create(ctx, service.ClientState{}, service.ClientMetadata{UserAgent: macUserAgent})
	require.NoError(t, err)

	guest, err := f.svc.Join(ctx, host.Descriptor.InviteCode, service.ClientState{}, service.ClientMetadata{UserAgent: iphoneUserAge})
	require.NoError(t, err)
	assert.Equal(t, host.Descriptor, guest.Descriptor)
	assert.NotEqual(t, host.Identity.UserID, guest.Identity.UserID)
	assert.Len(t, guest.Session.Participants, 2)
	assert.True(t, guest.Session.HasParticipant(guest.Identity.UserID))
	assert.Equal(t, domain.EventRoomJoined, f.notifier.last().Kind)

	// 已在会话中的客户端不能再次加入
	_, err = f.svc.Join(ctx, host.Descriptor.InviteCode, stateOf(guest), service.ClientMetadata{})
	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestSessionService_JoinErrors(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.Join(ctx, "", service.ClientState{}, service.ClientMetadata{})
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = f.svc.Join(ctx, "CLIP-nope00", service.ClientState{}, service.ClientMetadata{})
	assert.ErrorIs(t, err, service.ErrInvalidInviteCode)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestSessionService_QRPayload(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	host, err := f.svc.Create(ctx, service.ClientState{}, service.ClientMetadata{})
	require.NoError(t, err)
	guest, err := f.svc.Join(ctx, host.Descriptor.InviteCode, service.ClientState{}, service.ClientMetadata{})
	require.NoError(t, err)

	payload, err := f.svc.QRPayload(ctx, stateOf(host))
	require.NoError(t, err)
	assert.Equal(t, host.Descriptor.InviteCode, string(payload))

	_, err = f.svc.QRPayload(ctx, stateOf(guest))
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = f.svc.QRPayload(ctx, service.ClientState{})
	assert.ErrorIs(t, err, service.ErrBadRequest)
}

func TestSessionService_SendMessage(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	grant, err := f.svc.Create(ctx, service.ClientState{}, service.ClientMetadata{})
	require.NoError(t, err)
	state := stateOf(grant)

	_, err = f.svc.SendMessage(ctx, state, "", "")
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = f.svc.SendMessage(ctx, state, "hello", "https://cdn.example.com/a.png")
	assert.ErrorIs(t, err, service.ErrValidation)

	ack, err := f.svc.SendMessage(ctx, state, "hello", "")
	require.NoError(t, err)
	assert.NotEmpty(t, ack.MessageID)
	assert.Equal(t, grant.Descriptor.RoomID, ack.RoomID)

	evt := f.notifier.last()
	assert.Equal(t, domain.EventDevicePublish, evt.Kind)
	assert.Equal(t, grant.Descriptor.RoomID, evt.Channel)
	assert.Equal(t, "hello", evt.Payload["text"])
	assert.NotContains(t, evt.Payload, "media")
	assert.Equal(t, ack.MessageID, evt.Payload["message_id"])

	_, err = f.svc.SendMessage(ctx, service.ClientState{}, "hello", "")
	assert.ErrorIs(t, err, service.ErrBadRequest)
}

func TestSessionService_Leave(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	grant, err := f.svc.Create(ctx, service.ClientState{}, service.ClientMetadata{})
	require.NoError(t, err)
	state := stateOf(grant)

	require.NoError(t, f.svc.Leave(ctx, state))
	assert.Equal(t, domain.EventRoomLeft, f.notifier.last().Kind)

	err = f.svc.Leave(ctx, state)
	assert.ErrorIs(t, err, service.ErrNoActiveSession)

	// 离开后可以重新创建
	_, err = f.svc.Create(ctx, state, service.ClientMetadata{})
	assert.NoError(t, err)
}

func TestSessionService_SlidingExpiry(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	grant, err := f.svc.Create(ctx, service.ClientState{}, service.ClientMetadata{})
	require.NoError(t, err)
	state := stateOf(grant)

	// 每次访问都把过期时间推后一个完整窗口
	f.mr.FastForward(29 * time.Minute)
	_, err = f.svc.Current(ctx, state)
	require.NoError(t, err)
	f.mr.FastForward(29 * time.Minute)
	_, err = f.svc.Current(ctx, state)
	require.NoError(t, err)

	f.mr.FastForward(testTTL + time.Second)
	_, err = f.svc.Current(ctx, state)
	assert.ErrorIs(t, err, service.ErrNoActiveSession)
}

func TestSessionService_StoreFailureIsInternal(t *testing.T) {
	sessions := new(mocks.SessionRepository)
	svc := service.NewSessionService(sessions, stubCodes{code: "CLIP-aaaaaa"}, &recordingNotifier{}, testTTL, time.Second)

	sessions.On("Get", mock.Anything, "CLIP-aaaaaa", testTTL).Return(nil, errors.New("connection reset")).Once()
	state := service.ClientState{Descriptor: &domain.SessionDescriptor{RoomID: "r", InviteCode: "CLIP-aaaaaa"}}

	_, err := svc.Current(context.Background(), state)
	assert.ErrorIs(t, err, service.ErrInternal)
	sessions.AssertExpectations(t)
}

func TestSessionService_CreateCodeFailure(t *testing.T) {
	sessions := new(mocks.SessionRepository)
	svc := service.NewSessionService(sessions, stubCodes{err: errors.New("exhausted")}, &recordingNotifier{}, testTTL, time.Second)

	_, err := svc.Create(context.Background(), service.ClientState{}, service.ClientMetadata{})
	assert.ErrorIs(t, err, service.ErrInternal)
	sessions.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestSessionService_ConcurrentJoinsKeepEveryParticipant(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	host, err := f.svc.Create(ctx, service.ClientState{}, service.ClientMetadata{})
	require.NoError(t, err)

	const joiners = 20
	var wg sync.WaitGroup
	grants := make([]*service.SessionGrant, joiners)
	errs := make([]error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			grants[i], errs[i] = f.svc.Join(ctx, host.Descriptor.InviteCode, service.ClientState{}, service.ClientMetadata{UserAgent: iphoneUserAge})
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
	}
	current, err := f.svc.Current(ctx, stateOf(host))
	require.NoError(t, err)
	require.Len(t, current.Participants, joiners+1)
	for _, g := range grants {
		assert.True(t, current.HasParticipant(g.Identity.UserID), "参与者 %s 丢失", g.Identity.UserID)
	}
}

func TestSessionService_CorruptEntryDoesNotBlockClient(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mr.Set("test:session:CLIP-zzzzzz", "not-json"))
	stale := service.ClientState{Descriptor: &domain.SessionDescriptor{RoomID: "r", InviteCode: "CLIP-zzzzzz"}}

	_, err := f.svc.Current(ctx, stale)
	assert.ErrorIs(t, err, service.ErrBadRequest)
	assert.False(t, f.mr.Exists("test:session:CLIP-zzzzzz"))

	_, err = f.svc.Create(ctx, stale, service.ClientMetadata{})
	assert.NoError(t, err, "损坏的条目不能阻止客户端创建新会话")
}

func TestSessionService_JoinConcurrentUpdateIsConflict(t *testing.T) {
	sessions := new(mocks.SessionRepository)
	notifier := &recordingNotifier{}
	svc := service.NewSessionService(sessions, stubCodes{code: "CLIP-aaaaaa"}, notifier, testTTL, time.Second)

	sessions.On("AddParticipant", mock.Anything, "CLIP-aaaaaa", mock.AnythingOfType("domain.Participant"), testTTL).
		Return(nil, repository.ErrConcurrentUpdate).Once()

	_, err := svc.Join(context.Background(), "CLIP-aaaaaa", service.ClientState{}, service.ClientMetadata{})
	assert.ErrorIs(t, err, service.ErrConflict)
	assert.Empty(t, notifier.kinds())
	sessions.AssertExpectations(t)
}
