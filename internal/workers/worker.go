// Package workers implements the cooperative job poller and the per-kind
// pipeline handlers: each Worker claims a bounded batch of jobs of its
// configured kinds, runs them with injected cancellation support, and
// reports progress/completion back through the queue.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/models"
	"github.com/AdamA817/printarr-sub001/internal/observability/logging"
	"github.com/AdamA817/printarr-sub001/internal/observability/metrics"
	"github.com/AdamA817/printarr-sub001/internal/queue"
)

// DefaultPollInterval is how often an idle Worker checks the queue again.
const DefaultPollInterval = 2 * time.Second

// cancelPollInterval is how often a running job's context is checked
// against the queue for an operator-initiated Cancel.
const cancelPollInterval = 1 * time.Second

// Handler processes one claimed job and returns its result blob, or an
// error to be classified by the queue's retry policy.
type Handler func(ctx context.Context, job models.Job) (any, error)

// Worker polls the queue for jobs of Kinds and dispatches them to Handler,
// running up to Concurrency jobs at once.
type Worker struct {
	Queue        *queue.Queue
	Kinds        []models.JobKind
	Concurrency  int
	PollInterval time.Duration
	Handler      Handler
	Logger       *slog.Logger
	Metrics      *metrics.Recorder
}

// Run polls until ctx is cancelled, claiming and dispatching jobs. It
// blocks until every in-flight job has returned.
func (w *Worker) Run(ctx context.Context) {
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	pollInterval := w.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := w.Metrics
	if rec == nil {
		rec = metrics.Default()
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return
		}

		select {
		case <-ctx.Done():
			sem.Release(1)
			wg.Wait()
			return
		case <-ticker.C:
		}

		jobs, err := w.Queue.Claim(ctx, w.Kinds, 1)
		if err != nil {
			sem.Release(1)
			if ctx.Err() != nil {
				continue
			}
			logger.Error("claim jobs failed", "kinds", w.Kinds, "error", err)
			continue
		}
		if len(jobs) == 0 {
			sem.Release(1)
			continue
		}

		job := jobs[0]
		rec.WorkerStarted()
		rec.ObserveJobEvent(string(job.Kind), "started")
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			defer rec.WorkerFinished()
			w.process(ctx, job, logger, rec)
		}()
	}
}

// process runs one job to completion, watching for operator-initiated
// cancellation in a background goroutine so the handler's context is
// cancelled promptly without the worker blocking on a queue poll itself.
func (w *Worker) process(ctx context.Context, job models.Job, logger *slog.Logger, rec *metrics.Recorder) {
	jobCtx, cancel := context.WithCancel(logging.ContextWithJobID(ctx, job.ID))
	defer cancel()
	logger = logging.WithJob(logger, job.ID, string(job.Kind), job.Attempts)

	canceledByOperator := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		ticker := time.NewTicker(cancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				current, err := w.Queue.GetJob(ctx, job.ID)
				if err != nil {
					continue
				}
				if current.Status == models.JobCanceled {
					close(canceledByOperator)
					cancel()
					return
				}
			}
		}
	}()

	result, err := w.Handler(jobCtx, job)
	cancel()
	<-watchDone

	select {
	case <-canceledByOperator:
		logger.Info("job canceled")
		rec.ObserveJobEvent(string(job.Kind), "canceled")
		return
	default:
	}

	if err != nil {
		if apperr.Is(err, apperr.KindPermanent) {
			logger.Warn("job failed permanently", "error", err)
		} else {
			logger.Warn("job failed", "error", err)
		}
		if failErr := w.Queue.Fail(ctx, job.ID, err); failErr != nil {
			logger.Error("record job failure failed", "error", failErr)
		}
		if updated, getErr := w.Queue.GetJob(ctx, job.ID); getErr == nil && updated.Status == models.JobQueued {
			rec.ObserveJobEvent(string(job.Kind), "retried")
		} else {
			rec.ObserveJobEvent(string(job.Kind), "failed")
		}
		return
	}

	if completeErr := w.Queue.Complete(ctx, job.ID, result); completeErr != nil {
		logger.Error("record job completion failed", "error", completeErr)
		return
	}
	rec.ObserveJobEvent(string(job.Kind), "succeeded")
}
