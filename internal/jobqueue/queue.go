package jobqueue

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/apperr"
	"github.com/edustack/tutord/internal/pkg/dbutil"
)

type Config struct {
	VisibilityTimeout time.Duration
	MaxAttempts       int
	RetryBase         time.Duration
	RetryMax          time.Duration
	PollInterval      time.Duration
}

// Queue is a durable job queue on top of Postgres. Claims use
// FOR UPDATE SKIP LOCKED so concurrent consumers never receive the
// same job, and a claimed job stays invisible until its visibility
// timeout expires or the consumer settles it.
type Queue struct {
	db  *sqlx.DB
	cfg Config
}

func New(db *sqlx.DB, cfg Config) (*Queue, error) {
	if db == nil {
		return nil, apperr.New(apperr.KindConfiguration, "jobqueue: db is required")
	}
	if cfg.VisibilityTimeout <= 0 {
		return nil, apperr.New(apperr.KindConfiguration, "jobqueue: visibility timeout must be positive")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, apperr.New(apperr.KindConfiguration, "jobqueue: max attempts must be positive")
	}
	if cfg.RetryBase <= 0 || cfg.RetryMax < cfg.RetryBase {
		return nil, apperr.New(apperr.KindConfiguration, "jobqueue: retry bounds are invalid")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Queue{db: db, cfg: cfg}, nil
}

const jobColumns = "id, kind, payload, state, attempts, max_attempts, visible_at, dedupe_key, last_error, ctime, mtime"

// Enqueue inserts a queued job. When dedupeKey is non-empty and an
// active job (queued or running) already carries the same key, the
// existing job is returned instead of creating a duplicate.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload interface{}, dedupeKey string) (*model.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "encode job payload")
	}
	now := time.Now().Unix()
	job := &model.Job{
		ID:          newID(),
		Kind:        kind,
		Payload:     data,
		State:       model.JobStateQueued,
		MaxAttempts: q.cfg.MaxAttempts,
		VisibleAt:   now,
		DedupeKey:   dedupeKey,
		Ctime:       now,
		Mtime:       now,
	}
	_, err = q.db.ExecContext(ctx, `
INSERT INTO jobs (id, kind, payload, state, attempts, max_attempts, visible_at, dedupe_key, last_error, ctime, mtime)
VALUES ($1, $2, $3, 'queued', 0, $4, $5, $6, '', $7, $8)`,
		job.ID, job.Kind, string(job.Payload), job.MaxAttempts, job.VisibleAt, job.DedupeKey, job.Ctime, job.Mtime)
	if err == nil {
		return job, nil
	}
	if !dbutil.IsConflict(err) || dedupeKey == "" {
		return nil, apperr.Wrap(apperr.KindTransient, err, "enqueue job")
	}
	existing, lookupErr := q.activeByDedupeKey(ctx, dedupeKey)
	if lookupErr != nil {
		return nil, lookupErr
	}
	return existing, nil
}

func (q *Queue) activeByDedupeKey(ctx context.Context, dedupeKey string) (*model.Job, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT `+jobColumns+` FROM jobs
WHERE dedupe_key = $1 AND state IN ('queued', 'running')
LIMIT 1`, dedupeKey)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindNotFound, "active job vanished after dedupe conflict")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, err, "lookup deduped job")
	}
	return job, nil
}

// Dequeue blocks until a job is claimed or ctx is done. The returned
// job is in state running with its visibility timeout armed.
func (q *Queue) Dequeue(ctx context.Context) (*model.Job, error) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()
	for {
		job, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *Queue) claim(ctx context.Context) (*model.Job, error) {
	now := time.Now()
	row := q.db.QueryRowContext(ctx, `
UPDATE jobs
SET state = 'running', attempts = attempts + 1, visible_at = $1, mtime = $2
WHERE id = (
    SELECT id FROM jobs
    WHERE state = 'queued' AND visible_at <= $3
    ORDER BY ctime
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING `+jobColumns,
		now.Add(q.cfg.VisibilityTimeout).Unix(), now.Unix(), now.Unix())
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, err, "claim job")
	}
	return job, nil
}

// Ack marks a running job succeeded.
func (q *Queue) Ack(ctx context.Context, jobID string) error {
	return q.settle(ctx, jobID, model.JobStateSucceeded, "")
}

// Fail marks a running job failed permanently, without retry.
func (q *Queue) Fail(ctx context.Context, jobID string, reason string) error {
	return q.settle(ctx, jobID, model.JobStateFailed, reason)
}

// Nack returns a failed attempt to the queue with exponential backoff,
// or dead-letters the job once its attempt budget is spent.
func (q *Queue) Nack(ctx context.Context, job *model.Job, reason string) error {
	state, delay := nackOutcome(job.Attempts, job.MaxAttempts, q.cfg.RetryBase, q.cfg.RetryMax)
	if state == model.JobStateDeadLettered {
		return q.settle(ctx, job.ID, state, reason)
	}
	now := time.Now()
	_, err := q.db.ExecContext(ctx, `
UPDATE jobs SET state = 'queued', visible_at = $1, last_error = $2, mtime = $3
WHERE id = $4 AND state = 'running'`,
		now.Add(delay).Unix(), reason, now.Unix(), job.ID)
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, err, "requeue job")
	}
	return nil
}

func (q *Queue) settle(ctx context.Context, jobID string, state model.JobState, reason string) error {
	_, err := q.db.ExecContext(ctx, `
UPDATE jobs SET state = $1, last_error = $2, mtime = $3
WHERE id = $4 AND state = 'running'`,
		string(state), reason, time.Now().Unix(), jobID)
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, err, "settle job")
	}
	return nil
}

// RequeueExpired returns running jobs whose visibility timeout has
// passed to the queue, dead-lettering those out of attempts. It is the
// recovery path for consumers that died mid-job.
func (q *Queue) RequeueExpired(ctx context.Context) (int, error) {
	now := time.Now().Unix()
	res, err := q.db.ExecContext(ctx, `
UPDATE jobs
SET state = CASE WHEN attempts >= max_attempts THEN 'dead_lettered' ELSE 'queued' END,
    last_error = 'visibility timeout expired',
    mtime = $1
WHERE state = 'running' AND visible_at <= $2`, now, now)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindTransient, err, "requeue expired jobs")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteSettled removes succeeded jobs older than the cutoff.
func (q *Queue) DeleteSettled(ctx context.Context, before time.Time) (int, error) {
	res, err := q.db.ExecContext(ctx,
		"DELETE FROM jobs WHERE state = 'succeeded' AND mtime < $1", before.Unix())
	if err != nil {
		return 0, apperr.Wrap(apperr.KindTransient, err, "delete settled jobs")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

// nackOutcome decides where a failed attempt goes: back to the queue
// after a backoff delay, or dead-lettered once attempts reach the bound.
func nackOutcome(attempts, maxAttempts int, base, max time.Duration) (model.JobState, time.Duration) {
	if attempts >= maxAttempts {
		return model.JobStateDeadLettered, 0
	}
	return model.JobStateQueued, Backoff(base, max, attempts)
}

// Backoff returns the delay before retry number attempt+1: base doubled
// per completed attempt, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var job model.Job
	var payload string
	var state string
	if err := row.Scan(&job.ID, &job.Kind, &payload, &state, &job.Attempts,
		&job.MaxAttempts, &job.VisibleAt, &job.DedupeKey, &job.LastError,
		&job.Ctime, &job.Mtime); err != nil {
		return nil, err
	}
	job.Payload = json.RawMessage(payload)
	job.State = model.JobState(state)
	return &job, nil
}

func newID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
