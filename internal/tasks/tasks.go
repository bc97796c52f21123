package tasks

import (
	"encoding/json"
	"time"

	"clipsync/internal/domain"
)

// 定义任务类型常量
const (
	TypeEventPublish = "event:publish" // 事件推送任务类型
)

// QueueEvents 是事件推送任务专用的队列
const QueueEvents = "events"

// EventPublishTimeout 是单次推送任务的执行上限
const EventPublishTimeout = 10 * time.Second

// EventPublishPayload 定义了事件推送任务的数据结构
type EventPublishPayload struct {
	Event domain.Event `json:"event"`
}

// NewEventPublishTask 创建一个新的事件推送任务，返回序列化后的 payload
func NewEventPublishTask(event domain.Event) ([]byte, error) {
	payload := EventPublishPayload{Event: event}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return payloadBytes, nil
}

// ParseEventPublishTask 解析事件推送任务的 payload
func ParseEventPublishTask(data []byte) (EventPublishPayload, error) {
	var payload EventPublishPayload
	err := json.Unmarshal(data, &payload)
	return payload, err
}
