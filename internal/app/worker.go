package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"callsense/internal/api"
	"callsense/internal/queue"
)

// JobSource yields queued prediction jobs.
type JobSource interface {
	PopJob(ctx context.Context, timeout time.Duration) (queue.Job, error)
}

// Worker drains the job queue through the model and records each outcome.
type Worker struct {
	Jobs       JobSource
	Model      api.Predictor
	Store      api.PredictionStore
	Logger     *zap.Logger
	PopTimeout time.Duration
	// Backoff is the pause after a queue error.
	Backoff time.Duration
	// OnJob, when set, is called after every job with its final status.
	OnJob func(ctx context.Context, status string)
}

func (a *App) Worker() (*Worker, error) {
	if a.Queue == nil {
		return nil, errors.New("worker needs redis.url (CS_REDIS_URL)")
	}
	w := &Worker{
		Jobs:       a.Queue,
		Model:      a.Model,
		Logger:     a.Logger,
		PopTimeout: a.Config.Worker.PopTimeout,
		OnJob:      a.Metrics.RecordJob,
	}
	if a.Store != nil {
		w.Store = a.Store
	} else {
		a.Logger.Warn("no database configured, worker results are only logged")
	}
	return w, nil
}

// Run processes jobs until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	backoff := w.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	logger.Info("worker started")
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := w.Jobs.PopJob(ctx, w.PopTimeout)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("pop job", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		w.Process(ctx, job)
	}
}

// Process predicts one job and returns its status.
func (w *Worker) Process(ctx context.Context, job queue.Job) string {
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out, err := w.Model.Run(ctx, job.Transcript, job.CurrentDate)
	status := "ok"
	if err != nil {
		status = "failed"
		logger.Warn("job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	if w.Store != nil {
		if _, rerr := api.RecordOutcome(ctx, w.Store, job.ID, w.Model.EngineName(), out, err); rerr != nil {
			status = "unrecorded"
			logger.Error("record job", zap.String("job_id", job.ID), zap.Error(rerr))
		}
	}
	if status == "ok" {
		logger.Info("job done",
			zap.String("job_id", job.ID),
			zap.String("payment_disposition", out.Result.PaymentDisposition),
			zap.Duration("latency", out.Latency))
	}
	if w.OnJob != nil {
		w.OnJob(ctx, status)
	}
	return status
}
