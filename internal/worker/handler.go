package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"clipsync/internal/notifier"
	"clipsync/internal/tasks"
)

// EventPublishHandler 处理事件推送任务
type EventPublishHandler struct {
	publisher notifier.Publisher
}

// NewEventPublishHandler 创建 Handler 实例
func NewEventPublishHandler(publisher notifier.Publisher) *EventPublishHandler {
	if publisher == nil {
		panic("publisher cannot be nil for EventPublishHandler")
	}
	return &EventPublishHandler{publisher: publisher}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *EventPublishHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})

	payload, err := tasks.ParseEventPublishTask(t.Payload())
	if err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	event := payload.Event
	if event.Channel == "" || event.Kind == "" {
		logCtx.Error("Event publish task has no channel or kind")
		return fmt.Errorf("event publish task missing channel or kind: %w", asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"channel": event.Channel, "event": event.Kind})

	if err := h.publisher.Publish(ctx, event.Channel, event.Kind, event.Payload); err != nil {
		logCtx.WithError(err).Warn("Failed to publish event, will retry")
		return fmt.Errorf("failed to publish event %s to %s: %w", event.Kind, event.Channel, err)
	}

	logCtx.Debug("Event publish task processed successfully")
	return nil
}
