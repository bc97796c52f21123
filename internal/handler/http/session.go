package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"clipsync/internal/service"
)

// SessionHandler 封装了匿名会话相关的 HTTP 处理逻辑，会话状态保存在 cookie 中
type SessionHandler struct {
	sessionService *service.SessionService
	cookies        *SessionCookies
}

// NewSessionHandler 创建 SessionHandler 实例
func NewSessionHandler(sessionService *service.SessionService, cookies *SessionCookies) *SessionHandler {
	return &SessionHandler{sessionService: sessionService, cookies: cookies}
}

// JoinSessionRequest 定义加入会话的请求体
type JoinSessionRequest struct {
	InviteCode string `json:"invite_code"`
}

// SendMessageRequest 定义发送剪贴板内容的请求体，text 和 media 只能提供一个
type SendMessageRequest struct {
	Text  string `json:"text"`
	Media string `json:"media"`
}

// SessionResponse 是创建、加入、查询会话时返回的数据
type SessionResponse struct {
	RoomID       string `json:"room_id"`
	InviteCode   string `json:"invite_code"`
	CreatedBy    string `json:"created_by"`
	UserID       string `json:"user_id,omitempty"`
	Username     string `json:"username,omitempty"`
	Participants int    `json:"participants"`
}

func (h *SessionHandler) meta(c *gin.Context) service.ClientMetadata {
	return service.ClientMetadata{UserAgent: c.Request.UserAgent()}
}

func (h *SessionHandler) respondGrant(c *gin.Context, code int, message string, grant *service.SessionGrant) {
	if err := h.cookies.Write(c, grant.Descriptor, grant.Identity, grant.TTL); err != nil {
		logrus.WithError(err).Error("Failed to encode session cookies")
		HandleServiceError(c, service.InternalError("failed to write session cookies", err))
		return
	}
	SuccessResponse(c, code, message, SessionResponse{
		RoomID:       grant.Descriptor.RoomID,
		InviteCode:   grant.Descriptor.InviteCode,
		CreatedBy:    grant.Descriptor.CreatedBy,
		UserID:       grant.Identity.UserID,
		Username:     grant.Identity.Username,
		Participants: len(grant.Session.Participants),
	})
}

// CreateSession 为当前客户端创建新会话
func (h *SessionHandler) CreateSession(c *gin.Context) {
	grant, err := h.sessionService.Create(c.Request.Context(), h.cookies.Read(c), h.meta(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.respondGrant(c, http.StatusCreated, "Session created successfully", grant)
}

// JoinSession 通过邀请码加入会话
func (h *SessionHandler) JoinSession(c *gin.Context) {
	var req JoinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	grant, err := h.sessionService.Join(c.Request.Context(), req.InviteCode, h.cookies.Read(c), h.meta(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.respondGrant(c, http.StatusOK, "Joined session successfully", grant)
}

// CurrentSession 返回当前会话并续期 cookie
func (h *SessionHandler) CurrentSession(c *gin.Context) {
	state := h.cookies.Read(c)
	session, err := h.sessionService.Current(c.Request.Context(), state)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.cookies.Refresh(c, state, h.sessionService.TTL())

	resp := SessionResponse{
		RoomID:       session.RoomID,
		InviteCode:   session.InviteCode,
		CreatedBy:    session.CreatedBy,
		Participants: len(session.Participants),
	}
	if state.Identity != nil {
		resp.UserID = state.Identity.UserID
		resp.Username = state.Identity.Username
	}
	SuccessResponse(c, http.StatusOK, "", resp)
}

// LeaveSession 删除当前会话并清除 cookie
func (h *SessionHandler) LeaveSession(c *gin.Context) {
	if err := h.sessionService.Leave(c.Request.Context(), h.cookies.Read(c)); err != nil {
		HandleServiceError(c, err)
		return
	}
	h.cookies.Clear(c)
	SuccessResponse(c, http.StatusOK, "Left session successfully", nil)
}

// QRCode 返回会话邀请码的二维码，只有会话创建者可以获取
func (h *SessionHandler) QRCode(c *gin.Context) {
	state := h.cookies.Read(c)
	payload, err := h.sessionService.QRPayload(c.Request.Context(), state)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.cookies.Refresh(c, state, h.sessionService.TTL())
	writeQRCode(c, payload)
}

// SendMessage 向当前会话广播剪贴板内容
func (h *SessionHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	state := h.cookies.Read(c)
	ack, err := h.sessionService.SendMessage(c.Request.Context(), state, req.Text, req.Media)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	h.cookies.Refresh(c, state, h.sessionService.TTL())
	SuccessResponse(c, http.StatusAccepted, "Message sent", ack)
}
