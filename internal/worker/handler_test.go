package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipsync/internal/domain"
	"clipsync/internal/tasks"
	"clipsync/internal/worker"
)

type stubPublisher struct {
	calls int
	kind  domain.EventKind
	err   error
}

func (p *stubPublisher) Publish(ctx context.Context, channel string, kind domain.EventKind, payload map[string]any) error {
	p.calls++
	p.kind = kind
	return p.err
}

func newEventTask(t *testing.T, event domain.Event) *asynq.Task {
	t.Helper()
	payload, err := tasks.NewEventPublishTask(event)
	require.NoError(t, err)
	return asynq.NewTask(tasks.TypeEventPublish, payload)
}

func TestEventPublishHandler_Success(t *testing.T) {
	pub := &stubPublisher{}
	h := worker.NewEventPublishHandler(pub)

	err := h.ProcessTask(context.Background(), newEventTask(t, domain.NewEvent("room-1", domain.EventRoomJoined, nil)))
	require.NoError(t, err)
	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, domain.EventRoomJoined, pub.kind)
}

func TestEventPublishHandler_BadPayloadSkipsRetry(t *testing.T) {
	h := worker.NewEventPublishHandler(&stubPublisher{})

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeEventPublish, []byte("not-json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.ProcessTask(context.Background(), newEventTask(t, domain.Event{}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestEventPublishHandler_PublishFailureRetries(t *testing.T) {
	pub := &stubPublisher{err: errors.New("gateway down")}
	h := worker.NewEventPublishHandler(pub)

	err := h.ProcessTask(context.Background(), newEventTask(t, domain.NewEvent("room-1", domain.EventRoomLeft, nil)))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry, "推送失败应交给 asynq 重试")
}
