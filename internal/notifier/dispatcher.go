package notifier

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"clipsync/internal/domain"
	"clipsync/internal/tasks"
)

// Publisher 是推送网关的最小接口，gateway 包中的发布器都实现了它
type Publisher interface {
	Publish(ctx context.Context, channel string, kind domain.EventKind, payload map[string]any) error
}

// DirectDispatcher 在 Notifier 的 goroutine 中直接调用推送网关
type DirectDispatcher struct {
	publisher Publisher
}

// NewDirectDispatcher 创建 DirectDispatcher
func NewDirectDispatcher(publisher Publisher) *DirectDispatcher {
	if publisher == nil {
		panic("publisher cannot be nil for DirectDispatcher")
	}
	return &DirectDispatcher{publisher: publisher}
}

// Dispatch 实现 Dispatcher 接口
func (d *DirectDispatcher) Dispatch(ctx context.Context, event domain.Event) error {
	return d.publisher.Publish(ctx, event.Channel, event.Kind, event.Payload)
}

// Enqueuer 抽象了 asynq.Client 的入队能力
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueDispatcher 把事件写入 asynq 队列，由 worker 负责推送和重试
type QueueDispatcher struct {
	enqueuer Enqueuer
	maxRetry int
}

// NewQueueDispatcher 创建 QueueDispatcher
func NewQueueDispatcher(enqueuer Enqueuer, maxRetry int) *QueueDispatcher {
	if enqueuer == nil {
		panic("enqueuer cannot be nil for QueueDispatcher")
	}
	if maxRetry < 0 {
		maxRetry = 0
	}
	return &QueueDispatcher{enqueuer: enqueuer, maxRetry: maxRetry}
}

// Dispatch 实现 Dispatcher 接口
func (d *QueueDispatcher) Dispatch(ctx context.Context, event domain.Event) error {
	payload, err := tasks.NewEventPublishTask(event)
	if err != nil {
		return fmt.Errorf("failed to create event publish task payload: %w", err)
	}
	task := asynq.NewTask(tasks.TypeEventPublish, payload)
	_, err = d.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(tasks.QueueEvents),
		asynq.MaxRetry(d.maxRetry),
		asynq.Timeout(tasks.EventPublishTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue event %s for channel %s: %w", event.Kind, event.Channel, err)
	}
	return nil
}
