package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	DefaultMaxRetry  = 5
	DefaultTimeout   = 3 * time.Minute
	DefaultRetention = 24 * time.Hour
)

// ErrDuplicateJob is returned when a task for the same job is still pending,
// running or retained.
var ErrDuplicateJob = errors.New("job already enqueued")

// Options tune how transform tasks are enqueued. Zero values use the defaults.
type Options struct {
	Queue     string
	MaxRetry  int
	Timeout   time.Duration
	Retention time.Duration
}

// Enqueued describes an accepted task.
type Enqueued struct {
	TaskID    string
	Queue     string
	State     string
	ProcessAt time.Time
}

type Client struct {
	client *asynq.Client
	opts   Options
}

func NewClient(redisOpt asynq.RedisClientOpt, opts Options) *Client {
	if opts.Queue == "" {
		opts.Queue = "default"
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = DefaultMaxRetry
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Client{client: asynq.NewClient(redisOpt), opts: opts}
}

// EnqueueTransform schedules the job's transform task. The job id doubles as
// the task id, so a job cannot be queued twice while its task is retained.
func (c *Client) EnqueueTransform(ctx context.Context, payload TransformImagePayload) (Enqueued, error) {
	task, err := NewTransformImageTask(payload)
	if err != nil {
		return Enqueued{}, err
	}

	info, err := c.client.EnqueueContext(ctx, task, c.taskOptions(payload.JobID)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return Enqueued{}, fmt.Errorf("%w: %s", ErrDuplicateJob, payload.JobID)
	}
	if err != nil {
		return Enqueued{}, fmt.Errorf("enqueue job %s: %w", payload.JobID, err)
	}

	return Enqueued{
		TaskID:    info.ID,
		Queue:     info.Queue,
		State:     info.State.String(),
		ProcessAt: info.NextProcessAt,
	}, nil
}

func (c *Client) taskOptions(jobID string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(c.opts.Queue),
		asynq.TaskID(jobID),
		asynq.MaxRetry(c.opts.MaxRetry),
		asynq.Timeout(c.opts.Timeout),
		asynq.Retention(c.opts.Retention),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}
