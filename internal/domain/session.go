package domain

import (
	"errors"
	"time"
)

// ErrInvalidSession 表示缓存中的会话载荷缺少必要字段。
var ErrInvalidSession = errors.New("invalid session payload")

// Participant 是匿名会话中的一个参与者。
type Participant struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

// Session 是匿名用户使用的临时房间，只存在于缓存中，以邀请码为键。
type Session struct {
	RoomID       string        `json:"room_id"`
	InviteCode   string        `json:"invite_code"`
	CreatedBy    string        `json:"created_by"`
	Username     string        `json:"username"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Validate 在缓存边界校验会话载荷。
func (s *Session) Validate() error {
	if s.RoomID == "" || s.InviteCode == "" || s.CreatedBy == "" {
		return ErrInvalidSession
	}
	return nil
}

// HasParticipant 判断用户是否已在会话中。
func (s *Session) HasParticipant(userID string) bool {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Descriptor 返回客户端持有的会话描述。
func (s *Session) Descriptor() SessionDescriptor {
	return SessionDescriptor{RoomID: s.RoomID, InviteCode: s.InviteCode, CreatedBy: s.CreatedBy}
}

// SessionDescriptor 存放在客户端 cookie 中，用于定位缓存条目。
type SessionDescriptor struct {
	RoomID     string `json:"room_id"`
	InviteCode string `json:"invite_code"`
	CreatedBy  string `json:"created_by"`
}

// ParticipantIdentity 存放在客户端 cookie 中，标识当前参与者。
type ParticipantIdentity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}
