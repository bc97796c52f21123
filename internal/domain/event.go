package domain

import "time"

// EventKind 是推送到网关的事件类型。
type EventKind string

const (
	EventRoomCreated        EventKind = "ROOM_CREATED"
	EventRoomJoined         EventKind = "ROOM_JOINED"
	EventRoomLeft           EventKind = "ROOM_LEFT"
	EventRoomDeleted        EventKind = "ROOM_DELETED"
	EventDeviceConnected    EventKind = "DEVICE_CONNECTED"
	EventDeviceDisconnected EventKind = "DEVICE_DISCONNECTED"
	EventDevicePublish      EventKind = "DEVICE_PUBLISH"
)

// Event 是一条成员变化通知，Channel 为房间或会话的 room_id。
type Event struct {
	Channel    string         `json:"channel"`
	Kind       EventKind      `json:"event"`
	Payload    map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewEvent 创建一个带时间戳的事件。
func NewEvent(channel string, kind EventKind, payload map[string]any) Event {
	return Event{Channel: channel, Kind: kind, Payload: payload, OccurredAt: time.Now().UTC()}
}
