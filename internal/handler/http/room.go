package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"clipsync/internal/middleware"
	"clipsync/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

// CreateRoomRequest 定义创建房间的请求体，创建者为当前认证设备
type CreateRoomRequest struct {
	Name    string   `json:"name"`
	Devices []string `json:"devices"`
}

// UpdateRoomRequest 定义部分更新的请求体，未提供的字段保持原值
type UpdateRoomRequest struct {
	Name     *string  `json:"name"`
	Devices  []string `json:"devices"`
	IsActive *bool    `json:"is_active"`
}

// DevicesRequest 定义添加或移除设备的请求体
type DevicesRequest struct {
	Devices []string `json:"devices"`
}

// JoinRoomRequest 定义加入房间的请求体
type JoinRoomRequest struct {
	InvitationCode string `json:"invitation_code"`
}

// ListRoomsResponse 是分页列表的响应数据
type ListRoomsResponse struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// requireDevice 从上下文中读取认证中间件写入的设备 ID
func requireDevice(c *gin.Context) (string, bool) {
	deviceID, ok := middleware.DeviceID(c)
	if !ok {
		logrus.WithField("path", c.FullPath()).Warn("Device ID not found in context, middleware missing or failed?")
		ErrorResponse(c, http.StatusUnauthorized, string(service.KindUnauthorized), "Device not authenticated")
		return "", false
	}
	return deviceID, true
}

// ListRooms 分页列出房间
func (h *RoomHandler) ListRooms(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	result, err := h.roomService.List(c.Request.Context(), page, size)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", ListRoomsResponse{Items: result.Rooms, Total: result.Total, Page: result.Page, Size: result.Size})
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	room, err := h.roomService.Create(c.Request.Context(), req.Devices, deviceID, req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "Room created successfully", room)
}

// GetRoom 返回单个房间
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.roomService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "", room)
}

// UpdateRoom 部分更新房间
func (h *RoomHandler) UpdateRoom(c *gin.Context) {
	var req UpdateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	room, err := h.roomService.Update(c.Request.Context(), c.Param("id"), service.RoomPatch{
		Name:     req.Name,
		Devices:  req.Devices,
		IsActive: req.IsActive,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Room updated successfully", room)
}

// DeleteRoom 删除房间，只有创建者可以删除
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	if err := h.roomService.Delete(c.Request.Context(), c.Param("id"), deviceID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Room deleted successfully", nil)
}

// JoinRoom 处理设备通过邀请码加入房间的请求
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	room, err := h.roomService.JoinByInvitationCode(c.Request.Context(), req.InvitationCode, deviceID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Joined room successfully", room)
}

// LeaveRoom 让当前设备离开房间
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	room, err := h.roomService.Leave(c.Request.Context(), c.Param("id"), deviceID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Left room successfully", room)
}

// AddDevices 把设备加入房间
func (h *RoomHandler) AddDevices(c *gin.Context) {
	var req DevicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	room, err := h.roomService.AddDevices(c.Request.Context(), c.Param("id"), req.Devices)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Devices added successfully", room)
}

// RemoveDevices 把设备移出房间
func (h *RoomHandler) RemoveDevices(c *gin.Context) {
	var req DevicesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	room, err := h.roomService.RemoveDevices(c.Request.Context(), c.Param("id"), req.Devices)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Devices removed successfully", room)
}

// QRCode 返回房间邀请码的二维码，只有创建者可以获取
func (h *RoomHandler) QRCode(c *gin.Context) {
	deviceID, ok := requireDevice(c)
	if !ok {
		return
	}
	code, err := h.roomService.InvitationCode(c.Request.Context(), c.Param("id"), deviceID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	writeQRCode(c, []byte(code))
}
