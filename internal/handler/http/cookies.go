package http

import (
	"crypto/sha256"
	"crypto/sha512"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus"

	"clipsync/internal/domain"
	"clipsync/internal/service"
)

const (
	SessionCookieName     = "clip_session"
	ParticipantCookieName = "clip_participant"
)

// SessionCookies 负责匿名会话 cookie 的签名、加密和读写
type SessionCookies struct {
	codec  *securecookie.SecureCookie
	secure bool
}

// NewSessionCookies 从一个配置密钥派生签名密钥和加密密钥。
// maxAge 同时限制 cookie 中时间戳的有效期。
func NewSessionCookies(secret string, secure bool, maxAge time.Duration) *SessionCookies {
	if secret == "" {
		panic("cookie secret cannot be empty for SessionCookies")
	}
	hashKey := sha512.Sum512([]byte(secret))
	blockKey := sha256.Sum256([]byte("block:" + secret))

	codec := securecookie.New(hashKey[:], blockKey[:])
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(maxAge.Seconds()))
	return &SessionCookies{codec: codec, secure: secure}
}

// Read 解码请求中的会话 cookie，缺失或无法解码的 cookie 视为空
func (s *SessionCookies) Read(c *gin.Context) service.ClientState {
	var state service.ClientState

	var descriptor domain.SessionDescriptor
	if s.decode(c, SessionCookieName, &descriptor) {
		state.Descriptor = &descriptor
	}
	var identity domain.ParticipantIdentity
	if s.decode(c, ParticipantCookieName, &identity) {
		state.Identity = &identity
	}
	return state
}

// Write 写入两个会话 cookie，Max-Age 与会话过期窗口一致
func (s *SessionCookies) Write(c *gin.Context, descriptor domain.SessionDescriptor, identity domain.ParticipantIdentity, ttl time.Duration) error {
	if err := s.set(c, SessionCookieName, descriptor, ttl); err != nil {
		return err
	}
	return s.set(c, ParticipantCookieName, identity, ttl)
}

// Refresh 在会话被成功解析后重写 cookie，使其与缓存条目一起续期
func (s *SessionCookies) Refresh(c *gin.Context, state service.ClientState, ttl time.Duration) {
	if state.Descriptor != nil {
		if err := s.set(c, SessionCookieName, *state.Descriptor, ttl); err != nil {
			logrus.WithError(err).Warn("Failed to refresh session cookie")
		}
	}
	if state.Identity != nil {
		if err := s.set(c, ParticipantCookieName, *state.Identity, ttl); err != nil {
			logrus.WithError(err).Warn("Failed to refresh participant cookie")
		}
	}
}

// Clear 删除两个会话 cookie
func (s *SessionCookies) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", s.secure, true)
	c.SetCookie(ParticipantCookieName, "", -1, "/", "", s.secure, true)
}

func (s *SessionCookies) set(c *gin.Context, name string, value any, ttl time.Duration) error {
	encoded, err := s.codec.Encode(name, value)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, encoded, int(ttl.Seconds()), "/", "", s.secure, true)
	return nil
}

func (s *SessionCookies) decode(c *gin.Context, name string, dst any) bool {
	raw, err := c.Cookie(name)
	if err != nil || raw == "" {
		return false
	}
	if err := s.codec.Decode(name, raw, dst); err != nil {
		logrus.WithError(err).WithField("cookie", name).Debug("Ignoring undecodable cookie")
		return false
	}
	return true
}
