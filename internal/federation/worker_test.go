package federation

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingNotifier struct {
	connected    atomic.Int32
	disconnected atomic.Int32
}

func (n *countingNotifier) MasterConnected()    { n.connected.Add(1) }
func (n *countingNotifier) MasterDisconnected() { n.disconnected.Add(1) }

func TestWorkerConnectsAndStopsOnCancel(t *testing.T) {
	addr, stop := fakeMaster(t)
	defer stop()

	a := NewAdapter(addr, 1000)
	notifier := &countingNotifier{}
	w := NewWorker(a, notifier)
	w.pingInterval = 20 * time.Millisecond
	w.reconnectDelay = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}

	assert.GreaterOrEqual(t, notifier.connected.Load(), int32(1))
	assert.False(t, a.IsConnected())
}

func TestWorkerRetriesOnConnectFailure(t *testing.T) {
	a := NewAdapter("127.0.0.1:1", 1000)
	notifier := &countingNotifier{}
	w := NewWorker(a, notifier)
	w.reconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}

	assert.Equal(t, int32(0), notifier.connected.Load())
}
