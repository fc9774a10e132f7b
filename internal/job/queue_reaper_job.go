package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/edustack/tutord/internal/jobqueue"
)

// QueueReaperJob returns jobs whose consumer died mid-run to the queue
// once their visibility timeout has expired.
type QueueReaperJob struct {
	queue *jobqueue.Queue
}

func NewQueueReaperJob(queue *jobqueue.Queue) *QueueReaperJob {
	return &QueueReaperJob{queue: queue}
}

func (j *QueueReaperJob) Name() string {
	return "queue_reaper"
}

func (j *QueueReaperJob) Run(ctx context.Context) error {
	n, err := j.queue.RequeueExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logutil.GetLogger(ctx).Info("requeued expired jobs", zap.Int("count", n))
	}
	return nil
}
