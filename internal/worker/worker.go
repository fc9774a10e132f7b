package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/apperr"
)

type Handler interface {
	Kind() string
	Process(ctx context.Context, payload json.RawMessage) error
}

type Queue interface {
	Dequeue(ctx context.Context) (*model.Job, error)
	Ack(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, reason string) error
	Nack(ctx context.Context, job *model.Job, reason string) error
}

// Worker consumes jobs with a fixed number of goroutines. Each claimed
// job is settled exactly once: acked on success, nacked for retry on
// transient failures, failed permanently otherwise.
type Worker struct {
	queue       Queue
	handlers    map[string]Handler
	concurrency int
}

func New(queue Queue, concurrency int, handlers ...Handler) (*Worker, error) {
	if queue == nil {
		return nil, apperr.New(apperr.KindConfiguration, "worker: queue is required")
	}
	if concurrency <= 0 {
		return nil, apperr.New(apperr.KindConfiguration, "worker: concurrency must be positive")
	}
	if len(handlers) == 0 {
		return nil, apperr.New(apperr.KindConfiguration, "worker: at least one handler is required")
	}
	byKind := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		byKind[h.Kind()] = h
	}
	return &Worker{queue: queue, handlers: byKind, concurrency: concurrency}, nil
}

// Run blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	logger := logutil.GetLogger(ctx)
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			logger.Error("dequeue job", zap.Error(err))
			continue
		}
		w.handle(ctx, job)
	}
}

func (w *Worker) handle(ctx context.Context, job *model.Job) {
	logger := logutil.GetLogger(ctx).With(
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.Int("attempt", job.Attempts))

	handler := w.handlers[job.Kind]
	if handler == nil {
		logger.Error("no handler for job kind")
		w.settle(ctx, logger, func() error {
			return w.queue.Fail(ctx, job.ID, "no handler for kind "+job.Kind)
		})
		return
	}

	err := handler.Process(ctx, job.Payload)
	switch {
	case err == nil:
		w.settle(ctx, logger, func() error { return w.queue.Ack(ctx, job.ID) })
	case apperr.IsRetryable(err):
		logger.Warn("job failed, scheduling retry", zap.Error(err))
		w.settle(ctx, logger, func() error { return w.queue.Nack(ctx, job, err.Error()) })
	default:
		logger.Error("job failed permanently", zap.Error(err))
		w.settle(ctx, logger, func() error { return w.queue.Fail(ctx, job.ID, err.Error()) })
	}
}

func (w *Worker) settle(ctx context.Context, logger *zap.Logger, fn func() error) {
	if err := fn(); err != nil {
		// the visibility timeout will eventually recover the job
		logger.Error("settle job", zap.Error(err))
	}
}
