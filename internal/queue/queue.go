// Package queue carries prediction jobs from the API to workers over a
// Redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const jobsKey = "prediction_jobs"

// ErrEmpty is returned by PopJob when no job arrived within the timeout.
var ErrEmpty = errors.New("queue empty")

type Job struct {
	ID          string    `json:"id"`
	Transcript  string    `json:"transcript"`
	CurrentDate string    `json:"current_date,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

type Queue struct {
	client *redis.Client
}

func New(url string) (*Queue, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Queue{client: redis.NewClient(opt)}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// PushJob enqueues job, assigning an id and timestamp when missing.
func (q *Queue) PushJob(ctx context.Context, job Job) (Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return job, err
	}
	return job, q.client.LPush(ctx, jobsKey, data).Err()
}

// PopJob blocks up to timeout for the oldest job.
func (q *Queue) PopJob(ctx context.Context, timeout time.Duration) (Job, error) {
	res, err := q.client.BRPop(ctx, timeout, jobsKey).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrEmpty
	}
	if err != nil {
		return Job{}, err
	}
	if len(res) < 2 {
		return Job{}, ErrEmpty
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, jobsKey).Result()
}

func (q *Queue) Close() error {
	return q.client.Close()
}
