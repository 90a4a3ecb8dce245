package federation

import (
	"context"
	"time"

	"github.com/marmos91/sbrokerd/internal/logger"
)

// Notifier receives lifecycle callbacks from the worker loop so the
// dispatcher can react to the master link coming up or going down
// (re-arming folded notifications, invalidating the remote server
// cache, and so on).
type Notifier interface {
	MasterConnected()
	MasterDisconnected()
}

// Worker drives an Adapter's connection lifecycle on its own
// goroutine, mirroring the original's single dedicated worker thread:
// while disconnected it drains pending jobs as failures and retries
// on an interval; while connected it flushes the queue and pings on
// the configured interval, reconnecting on any transport failure.
type Worker struct {
	adapter  *Adapter
	notifier Notifier
	trigger  chan struct{}

	reconnectDelay time.Duration
	pingInterval   time.Duration
}

// NewWorker builds a worker for adapter, delivering lifecycle events
// to notifier.
func NewWorker(adapter *Adapter, notifier Notifier) *Worker {
	return &Worker{
		adapter:        adapter,
		notifier:       notifier,
		trigger:        make(chan struct{}, 1),
		reconnectDelay: ReconnectDelay,
		pingInterval:   PingInterval,
	}
}

// Trigger wakes the worker loop early, called by the dispatcher right
// after Adapter.Eval enqueues a new job.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run executes the worker loop until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			w.adapter.RemovePending()
			w.adapter.Disconnect()
			return
		}

		if !w.adapter.IsConnected() {
			w.adapter.RemovePending()
			if err := w.adapter.Connect(ctx); err != nil {
				logger.Warn("master connect failed", logger.Err(err))
				w.sleep(ctx, w.reconnectDelay)
				continue
			}
			w.notifier.MasterConnected()
			continue
		}

		ok := w.adapter.ExecutePending()
		if ok {
			if err := w.adapter.SendPing(); err != nil {
				ok = false
			}
		}
		if !ok {
			w.adapter.Disconnect()
			w.notifier.MasterDisconnected()
			continue
		}

		w.sleep(ctx, w.pingInterval)
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-w.trigger:
	}
}
