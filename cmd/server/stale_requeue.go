package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AdamA817/printarr-sub001/internal/queue"
)

// staleJobRequeuer returns RUNNING jobs whose claiming worker is no longer
// alive back to QUEUED. queueStaleRequeuer is the production implementation
// over *queue.Queue; the interface exists so the periodic poller below can
// be driven by a fake in tests.
type staleJobRequeuer interface {
	RequeueStale(ctx context.Context) (int, error)
}

type queueStaleRequeuer struct {
	queue      *queue.Queue
	staleAfter time.Duration
}

func (r *queueStaleRequeuer) RequeueStale(ctx context.Context) (int, error) {
	return r.queue.RequeueStale(ctx, r.staleAfter)
}

type requeueTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) requeueTicker

// startStaleJobRequeueWorker runs RequeueStale on a fixed interval until
// the returned stop function is called or ctx is done, so a job abandoned
// by a crashed worker process doesn't wait until the next full restart to
// be picked back up.
func startStaleJobRequeueWorker(ctx context.Context, logger *slog.Logger, requeuer staleJobRequeuer, interval time.Duration) func() {
	return startStaleJobRequeueWorkerWithTicker(ctx, logger, requeuer, interval, func(d time.Duration) requeueTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startStaleJobRequeueWorkerWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	requeuer staleJobRequeuer,
	interval time.Duration,
	newTicker tickerFactory,
) func() {
	if requeuer == nil || interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				if n, err := requeuer.RequeueStale(workerCtx); err != nil {
					if logger != nil {
						logger.Error("failed to requeue stale running jobs", "error", err)
					}
				} else if n > 0 && logger != nil {
					logger.Info("requeued stale running jobs", "count", n)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
