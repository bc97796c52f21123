package worker

import (
	"context"
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"clipsync/internal/notifier"
	"clipsync/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server    *asynq.Server
	log       *logrus.Entry
	publisher notifier.Publisher
}

// NewWorkerServer 创建一个新的 WorkerServer 实例
func NewWorkerServer(redisOpt asynq.RedisClientOpt, publisher notifier.Publisher, concurrency int, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")
	if concurrency <= 0 {
		concurrency = 10
	}

	// 最后一次重试失败后事件被丢弃
	errorHandler := asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		taskID := ""
		if rw := task.ResultWriter(); rw != nil {
			taskID = rw.TaskID()
		}
		retryCount, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		entry := logEntry.WithFields(logrus.Fields{
			"task_id":   taskID,
			"task_type": task.Type(),
			"retries":   retryCount,
			"max_retry": maxRetry,
		}).WithError(err)
		if retryCount >= maxRetry {
			entry.Error("Event publish task exhausted retries, event dropped")
			return
		}
		entry.Warn("Event publish task failed, will retry")
	})

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:  concurrency,
		Queues:       map[string]int{tasks.QueueEvents: 1},
		ErrorHandler: errorHandler,
	})

	return &WorkerServer{
		server:    server,
		log:       logEntry,
		publisher: publisher,
	}
}

// Mux 返回注册好所有任务处理器的 ServeMux
func (ws *WorkerServer) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeEventPublish, NewEventPublishHandler(ws.publisher))
	return mux
}

// Start 运行 Worker Server
// 它应该在一个单独的 goroutine 中调用
func (ws *WorkerServer) Start() {
	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(ws.Mux()); err != nil {
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Errorf("Could not run worker server: %v", err)
		} else {
			ws.log.Info("Worker server stopped.")
		}
	}
}

// Shutdown 优雅地关闭 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
