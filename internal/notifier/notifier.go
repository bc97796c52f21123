// Package notifier 把成员变化事件从请求路径中解耦出来。
// 业务代码调用 Notify 入队后立即返回，后台 goroutine 负责投递，
// 投递失败只记录日志，不会影响已经提交的状态变更。
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"clipsync/internal/domain"
)

// Dispatcher 负责把单个事件送往推送网关或任务队列
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.Event) error
}

// Notifier 是一个有界的内存事件队列
type Notifier struct {
	queue      chan domain.Event
	dispatcher Dispatcher
	timeout    time.Duration
	log        *logrus.Entry

	mu     sync.RWMutex
	closed bool
}

// New 创建 Notifier。bufferSize 为队列容量，timeout 为单次投递的超时时间。
func New(dispatcher Dispatcher, bufferSize int, timeout time.Duration, logger *logrus.Logger) *Notifier {
	if dispatcher == nil {
		panic("dispatcher cannot be nil for Notifier")
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Notifier{
		queue:      make(chan domain.Event, bufferSize),
		dispatcher: dispatcher,
		timeout:    timeout,
		log:        logger.WithField("component", "notifier"),
	}
}

// Notify 非阻塞地入队事件。队列已满或已关闭时丢弃并记录日志。
func (n *Notifier) Notify(event domain.Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	logCtx := n.log.WithFields(logrus.Fields{"channel": event.Channel, "event": event.Kind})
	if n.closed {
		logCtx.Warn("Notifier closed, dropping event")
		return
	}
	select {
	case n.queue <- event:
	default:
		logCtx.Warn("Notifier queue full, dropping event")
	}
}

// Run 持续投递队列中的事件，直到 ctx 结束或队列被 Close 且排空。
// 应在单独的 goroutine 中调用。
func (n *Notifier) Run(ctx context.Context) {
	n.log.Info("Notifier started")
	defer n.log.Info("Notifier stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-n.queue:
			if !ok {
				return
			}
			n.dispatch(ctx, event)
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, event domain.Event) {
	dispatchCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.dispatcher.Dispatch(dispatchCtx, event); err != nil {
		n.log.WithFields(logrus.Fields{
			"channel": event.Channel,
			"event":   event.Kind,
		}).WithError(err).Error("Failed to dispatch event")
	}
}

// Close 停止接收新事件，已入队的事件仍会被 Run 投递完
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.queue)
}
