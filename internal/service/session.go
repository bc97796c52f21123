package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"clipsync/internal/domain"
	"clipsync/internal/repository"
)

// DefaultSessionTTL 是匿名会话的滑动过期窗口
const DefaultSessionTTL = 30 * time.Minute

// ClientState 是客户端 cookie 中携带的会话状态，两项都可能为空
type ClientState struct {
	Descriptor *domain.SessionDescriptor
	Identity   *domain.ParticipantIdentity
}

// ClientMetadata 是从请求中获取的客户端信息
type ClientMetadata struct {
	UserAgent string
}

// SessionGrant 是创建或加入会话后需要写回客户端的全部内容
type SessionGrant struct {
	Session    *domain.Session
	Descriptor domain.SessionDescriptor
	Identity   domain.ParticipantIdentity
	TTL        time.Duration
}

// MessageAck 是发送剪贴板内容后的回执
type MessageAck struct {
	MessageID string    `json:"message_id"`
	RoomID    string    `json:"room_id"`
	SentAt    time.Time `json:"sent_at"`
}

// SessionService 负责匿名会话的生命周期。会话只存在于缓存中，
// 客户端通过 cookie 持有描述信息，每次成功解析都会刷新过期时间。
type SessionService struct {
	sessions     repository.SessionRepository
	codes        CodeGenerator
	events       EventNotifier
	ttl          time.Duration
	storeTimeout time.Duration
}

// NewSessionService 创建 SessionService 实例。
func NewSessionService(sessions repository.SessionRepository, codes CodeGenerator, events EventNotifier, ttl, storeTimeout time.Duration) *SessionService {
	if sessions == nil {
		panic("SessionRepository cannot be nil for SessionService")
	}
	if codes == nil {
		panic("CodeGenerator cannot be nil for SessionService")
	}
	if events == nil {
		panic("EventNotifier cannot be nil for SessionService")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &SessionService{
		sessions:     sessions,
		codes:        codes,
		events:       events,
		ttl:          ttl,
		storeTimeout: storeTimeout,
	}
}

// TTL 返回会话的过期窗口，cookie 使用相同的有效期
func (s *SessionService) TTL() time.Duration { return s.ttl }

// Create 为没有活跃会话的客户端创建新会话
func (s *SessionService) Create(ctx context.Context, state ClientState, meta ClientMetadata) (*SessionGrant, error) {
	live, err := s.resolve(ctx, state)
	if err != nil {
		return nil, err
	}
	if live != nil {
		logrus.WithField("invite_code", live.InviteCode).Warn("Create session rejected: client already in a session")
		return nil, ErrAlreadyInSession
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	inviteCode, err := s.codes.Generate(storeCtx)
	cancel()
	if err != nil {
		logrus.WithError(err).Error("Failed to generate unique invite code for session")
		return nil, InternalError("failed to generate invitation code", err)
	}

	now := time.Now().UTC()
	creator := domain.Participant{
		UserID:   uuid.NewString(),
		Username: ParseClientInfo(meta.UserAgent).Username(),
		JoinedAt: now,
	}
	session := &domain.Session{
		RoomID:       uuid.NewString(),
		InviteCode:   inviteCode,
		CreatedBy:    creator.UserID,
		Username:     creator.Username,
		Participants: []domain.Participant{creator},
		CreatedAt:    now,
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": session.RoomID, "invite_code": inviteCode})

	if err := s.save(ctx, session); err != nil {
		logCtx.WithError(err).Error("Failed to store new session")
		return nil, err
	}

	s.events.Notify(domain.NewEvent(session.RoomID, domain.EventRoomCreated, map[string]any{
		"room_id":  session.RoomID,
		"user_id":  creator.UserID,
		"username": creator.Username,
	}))
	logCtx.Info("Session created successfully")
	return s.grant(session, creator), nil
}

// Join 让没有活跃会话的客户端通过邀请码加入会话
func (s *SessionService) Join(ctx context.Context, code string, state ClientState, meta ClientMetadata) (*SessionGrant, error) {
	logCtx := logrus.WithField("invite_code", code)

	live, err := s.resolve(ctx, state)
	if err != nil {
		return nil, err
	}
	if live != nil {
		logCtx.Warn("Join session rejected: client already in a session")
		return nil, ErrAlreadyInSession
	}
	if code == "" {
		return nil, ValidationError("invitation code is required")
	}

	participant := domain.Participant{
		UserID:   uuid.NewString(),
		Username: ParseClientInfo(meta.UserAgent).Username(),
		JoinedAt: time.Now().UTC(),
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	session, err := s.sessions.AddParticipant(storeCtx, code, participant, s.ttl)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionNotFound):
			logCtx.Warn("Join session rejected: invite code does not resolve")
			return nil, ErrInvalidInviteCode
		case errors.Is(err, repository.ErrConcurrentUpdate), errors.Is(err, repository.ErrDuplicateEntry):
			logCtx.WithError(err).Warn("Join session failed: session changed concurrently")
			return nil, ConflictError("session was modified concurrently, please retry")
		}
		logCtx.WithError(err).Error("Failed to add participant to session")
		return nil, mapRepoError(err, nil)
	}
	logCtx = logCtx.WithField("room_id", session.RoomID)

	s.events.Notify(domain.NewEvent(session.RoomID, domain.EventRoomJoined, map[string]any{
		"room_id":  session.RoomID,
		"user_id":  participant.UserID,
		"username": participant.Username,
	}))
	logCtx.WithField("user_id", participant.UserID).Info("Participant joined session")
	return s.grant(session, participant), nil
}

// Current 返回客户端当前的活跃会话，并刷新过期时间
func (s *SessionService) Current(ctx context.Context, state ClientState) (*domain.Session, error) {
	session, err := s.resolve(ctx, state)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoActiveSession
	}
	return session, nil
}

// Leave 删除客户端所在的会话条目，调用方需要清除 cookie
func (s *SessionService) Leave(ctx context.Context, state ClientState) error {
	session, err := s.resolve(ctx, state)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrNoActiveSession
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": session.RoomID, "invite_code": session.InviteCode})

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.sessions.Delete(storeCtx, session.InviteCode); err != nil {
		logCtx.WithError(err).Error("Failed to delete session")
		return mapRepoError(err, nil)
	}

	payload := map[string]any{"room_id": session.RoomID}
	if state.Identity != nil {
		payload["user_id"] = state.Identity.UserID
	}
	s.events.Notify(domain.NewEvent(session.RoomID, domain.EventRoomLeft, payload))
	logCtx.Info("Session left")
	return nil
}

// QRPayload 返回会话邀请码的字节，只有会话创建者可以获取
func (s *SessionService) QRPayload(ctx context.Context, state ClientState) ([]byte, error) {
	session, err := s.resolve(ctx, state)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoActiveSession
	}
	if state.Identity == nil || state.Identity.UserID != session.CreatedBy {
		logrus.WithField("room_id", session.RoomID).Warn("QR payload rejected: requester is not the session creator")
		return nil, ForbiddenError("only the session creator can get the invitation code")
	}
	return []byte(session.InviteCode), nil
}

// SendMessage 向会话广播一条剪贴板内容，text 和 media 必须恰好提供一个
func (s *SessionService) SendMessage(ctx context.Context, state ClientState, text, media string) (*MessageAck, error) {
	session, err := s.resolve(ctx, state)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoActiveSession
	}
	if (text == "") == (media == "") {
		return nil, ValidationError("exactly one of text or media is required")
	}

	ack := &MessageAck{
		MessageID: uuid.NewString(),
		RoomID:    session.RoomID,
		SentAt:    time.Now().UTC(),
	}
	payload := map[string]any{
		"message_id": ack.MessageID,
		"room_id":    ack.RoomID,
		"sent_at":    ack.SentAt,
	}
	if state.Identity != nil {
		payload["user_id"] = state.Identity.UserID
		payload["username"] = state.Identity.Username
	}
	if text != "" {
		payload["text"] = text
	} else {
		payload["media"] = media
	}
	s.events.Notify(domain.NewEvent(session.RoomID, domain.EventDevicePublish, payload))
	return ack, nil
}

// --- 私有辅助函数 ---

// resolve 根据客户端状态查找存活的会话。没有会话时返回 (nil, nil)。
// 描述中的 room_id 与缓存不一致时视为没有会话。
func (s *SessionService) resolve(ctx context.Context, state ClientState) (*domain.Session, error) {
	if state.Descriptor == nil || state.Descriptor.InviteCode == "" {
		return nil, nil
	}
	session, err := s.get(ctx, state.Descriptor.InviteCode)
	if err != nil || session == nil {
		return nil, err
	}
	if session.RoomID != state.Descriptor.RoomID {
		return nil, nil
	}
	return session, nil
}

// get 读取会话并刷新过期时间，不存在时返回 (nil, nil)
func (s *SessionService) get(ctx context.Context, code string) (*domain.Session, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	session, err := s.sessions.Get(storeCtx, code, s.ttl)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil
		}
		logrus.WithField("invite_code", code).WithError(err).Error("Failed to read session from cache")
		return nil, mapRepoError(err, nil)
	}
	return session, nil
}

func (s *SessionService) save(ctx context.Context, session *domain.Session) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.sessions.Save(storeCtx, session, s.ttl); err != nil {
		return mapRepoError(err, nil)
	}
	return nil
}

func (s *SessionService) grant(session *domain.Session, participant domain.Participant) *SessionGrant {
	return &SessionGrant{
		Session:    session,
		Descriptor: session.Descriptor(),
		Identity:   domain.ParticipantIdentity{UserID: participant.UserID, Username: participant.Username},
		TTL:        s.ttl,
	}
}
