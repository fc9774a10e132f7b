package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/edustack/tutord/internal/jobqueue"
	"github.com/edustack/tutord/internal/repo"
)

// TraceCleanupJob trims old answer traces and settled queue jobs so
// the audit tables stay bounded.
type TraceCleanupJob struct {
	traces   *repo.TraceRepo
	queue    *jobqueue.Queue
	keepDays int
}

func NewTraceCleanupJob(traces *repo.TraceRepo, queue *jobqueue.Queue, keepDays int) *TraceCleanupJob {
	if keepDays <= 0 {
		keepDays = 30
	}
	return &TraceCleanupJob{traces: traces, queue: queue, keepDays: keepDays}
}

func (j *TraceCleanupJob) Name() string {
	return "trace_cleanup"
}

func (j *TraceCleanupJob) Run(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -j.keepDays)
	logger := logutil.GetLogger(ctx)

	removed, err := j.traces.DeleteBefore(ctx, cutoff.Unix())
	if err != nil {
		return err
	}
	if removed > 0 {
		logger.Info("deleted old answer traces", zap.Int("count", removed))
	}

	jobs, err := j.queue.DeleteSettled(ctx, cutoff)
	if err != nil {
		return err
	}
	if jobs > 0 {
		logger.Info("deleted settled jobs", zap.Int("count", jobs))
	}
	return nil
}
