package main

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

type fakeRequeuer struct {
	called chan struct{}
	n      int
	err    error
}

func newFakeRequeuer() *fakeRequeuer {
	return &fakeRequeuer{called: make(chan struct{}, 1)}
}

func (f *fakeRequeuer) RequeueStale(ctx context.Context) (int, error) {
	select {
	case f.called <- struct{}{}:
	default:
	}
	return f.n, f.err
}

type manualTicker struct {
	ch chan time.Time
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time, 1)}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}
func (m *manualTicker) fire()               { m.ch <- time.Now() }

func TestStaleJobRequeueWorkerFiresOnTick(t *testing.T) {
	requeuer := newFakeRequeuer()
	requeuer.n = 2
	ticker := newManualTicker()
	stop := startStaleJobRequeueWorkerWithTicker(context.Background(), slog.Default(), requeuer, time.Second, func(time.Duration) requeueTicker {
		return ticker
	})
	defer stop()

	ticker.fire()
	select {
	case <-requeuer.called:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for RequeueStale to be called")
	}
}

func TestStaleJobRequeueWorkerStopIsIdempotent(t *testing.T) {
	requeuer := newFakeRequeuer()
	ticker := newManualTicker()
	stop := startStaleJobRequeueWorkerWithTicker(context.Background(), slog.Default(), requeuer, time.Second, func(time.Duration) requeueTicker {
		return ticker
	})
	stop()
	stop() // must not panic or block
}

func TestStaleJobRequeueWorkerNilRequeuerIsNoop(t *testing.T) {
	stop := startStaleJobRequeueWorker(context.Background(), slog.Default(), nil, time.Second)
	stop() // should return immediately without a background goroutine
}

func TestStaleJobRequeueWorkerZeroIntervalIsNoop(t *testing.T) {
	requeuer := newFakeRequeuer()
	stop := startStaleJobRequeueWorker(context.Background(), slog.Default(), requeuer, 0)
	stop()
}
