// Package broker implements the service broker daemon: the socket
// listeners, the per-connection readers, and the single serializing
// dispatch goroutine that mutates the registry and notification state.
package broker

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/marmos91/sbrokerd/internal/federation"
	"github.com/marmos91/sbrokerd/internal/logger"
	"github.com/marmos91/sbrokerd/internal/metrics"
	"github.com/marmos91/sbrokerd/internal/notify"
	"github.com/marmos91/sbrokerd/internal/party"
	"github.com/marmos91/sbrokerd/internal/registry"
)

// Config holds the daemon's runtime configuration: listen addresses
// and federation/tree-mode parameters.
type Config struct {
	// UnixSocketPath is the local control socket applications connect
	// to; empty disables it.
	UnixSocketPath string
	// MasterListenAddr is the TCP address slaves connect to when this
	// broker acts as a master; empty disables it.
	MasterListenAddr string
	// SlaveListenAddr is the slave-port TCP address derived from
	// -t/-b; Serve opens no listener on it.
	SlaveListenAddr string

	// ExtendedID identifies this broker in a federation. Classic
	// (non tree-mode) slaves use party.ExtendedIDSlave.
	ExtendedID uint32

	// MasterAddress, if non-empty, makes this broker a slave
	// connecting upstream to the given host:port.
	MasterAddress string

	// Local lists interface names that must never be forwarded
	// upstream, per the config file's [LOCAL] section.
	Local map[string]struct{}
	// Forward lists interface names that are explicitly forwarded
	// even when not attached locally, per [FORWARD]. ForwardAll means
	// [FORWARD] held a bare "*".
	Forward    map[string]struct{}
	ForwardAll bool

	// TreeMode is true when the broker was started with -i: client ids
	// are minted from ExtendedID rather than inherited from the
	// resolved server's extendedId.
	TreeMode bool

	// CacheEnabled turns on the remote server cache, requires TreeMode.
	CacheEnabled bool

	// AsyncAttach makes ATTACH_INTERFACE_EXTENDED's fold-upstream path
	// reply immediately with the notification id once the upstream job
	// is enqueued, rather than deferring the response until the job
	// resolves. Set by -a/--async-attach.
	AsyncAttach bool

	// Metrics receives the broker's Prometheus collectors. Nil
	// disables collection with zero overhead.
	Metrics *metrics.Metrics
}

func (c Config) forwardable(name string) bool {
	if _, local := c.Local[name]; local {
		return false
	}
	if c.ForwardAll {
		return true
	}
	_, ok := c.Forward[name]
	return ok
}

// Broker is the top-level daemon: registry, notification engine,
// optional federation adapter, and the connection listeners that feed
// the single dispatch goroutine.
type Broker struct {
	cfg Config

	registry  *registry.Registry
	notifs    *notify.List
	pools     *notify.PoolTable
	channels  *notify.ChannelManager
	remoteSrv *registry.RemoteServerCache

	adapter *federation.Adapter
	worker  *federation.Worker
	metrics *metrics.Metrics

	// notifOwners and listChangeNotifs are touched only from the
	// single dispatch goroutine, so neither needs its own lock.
	notifOwners      map[uint64]*conn
	listChangeNotifs []*notify.Notification

	requests chan *request

	mu       sync.Mutex
	listeners []net.Listener
	wg        sync.WaitGroup
	shutdown  chan struct{}
	shutdownOnce sync.Once
}

// New builds a Broker from cfg. Call Serve to start accepting
// connections and dispatching requests.
func New(cfg Config) *Broker {
	b := &Broker{
		cfg:       cfg,
		registry:  registry.NewRegistry(),
		notifs:    notify.NewList(),
		pools:     notify.NewPoolTable(),
		channels:  notify.NewChannelManager(),
		remoteSrv: registry.NewRemoteServerCache(),
		notifOwners: make(map[uint64]*conn),
		requests:  make(chan *request, 256),
		shutdown:  make(chan struct{}),
		metrics:   cfg.Metrics,
	}

	if cfg.MasterAddress != "" {
		b.adapter = federation.NewAdapter(cfg.MasterAddress, cfg.ExtendedID)
		b.worker = federation.NewWorker(b.adapter, b)
	}

	return b
}

// Serve starts every configured listener and the dispatch goroutine,
// blocking until ctx is cancelled.
func (b *Broker) Serve(ctx context.Context) error {
	if b.cfg.UnixSocketPath != "" {
		ln, err := net.Listen("unix", b.cfg.UnixSocketPath)
		if err != nil {
			return fmt.Errorf("listen unix %s: %w", b.cfg.UnixSocketPath, err)
		}
		b.addListener(ln)
		b.wg.Add(1)
		go b.acceptLoop(ctx, ln, false)
	}

	if b.cfg.MasterListenAddr != "" {
		ln, err := net.Listen("tcp", b.cfg.MasterListenAddr)
		if err != nil {
			return fmt.Errorf("listen tcp %s: %w", b.cfg.MasterListenAddr, err)
		}
		b.addListener(ln)
		b.wg.Add(1)
		go b.acceptLoop(ctx, ln, true)
	}

	b.wg.Add(1)
	go b.dispatchLoop(ctx)

	if b.worker != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.worker.Run(ctx)
		}()
	}

	go func() {
		<-ctx.Done()
		b.Stop()
	}()

	b.wg.Wait()
	return nil
}

// Stop closes every listener and the dispatch channel exactly once.
func (b *Broker) Stop() {
	b.shutdownOnce.Do(func() {
		close(b.shutdown)
		b.mu.Lock()
		for _, ln := range b.listeners {
			_ = ln.Close()
		}
		b.mu.Unlock()
	})
}

func (b *Broker) addListener(ln net.Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, ln)
}

func (b *Broker) acceptLoop(ctx context.Context, ln net.Listener, isRemote bool) {
	defer b.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-b.shutdown:
				return
			default:
				logger.Debug("accept error", logger.Err(err))
				return
			}
		}

		b.wg.Add(1)
		go func(c net.Conn) {
			defer b.wg.Done()
			b.handleConn(ctx, c, isRemote)
		}(conn)
	}
}

// Inspect runs fn on the dispatch goroutine and blocks until it
// returns, giving a caller outside the reactor (the HTTP status page)
// a consistent snapshot of registry/notification state without a
// second lock protecting them. Safe to call concurrently; it queues
// like any other request.
func (b *Broker) Inspect(fn func(b *Broker)) {
	done := make(chan struct{})
	wrapped := &request{fn: func(b *Broker) {
		fn(b)
		close(done)
	}}

	select {
	case b.requests <- wrapped:
	case <-b.shutdown:
		return
	}

	select {
	case <-done:
	case <-b.shutdown:
	}
}

// Servers returns every registered server, for reporting. Must be
// called from inside an Inspect callback (it reads registry state with
// no synchronization of its own, same as every dispatch-goroutine
// handler).
func (b *Broker) Servers() []*registry.ServerEntry {
	return b.registry.ListServers(nil)
}

// Clients returns every attached client, for reporting. Same calling
// convention as Servers.
func (b *Broker) Clients() []*registry.ClientEntry {
	return b.registry.ListClients()
}

// Notifications returns every armed notification of the given kind,
// for reporting. Same calling convention as Servers.
func (b *Broker) Notifications(kind notify.Kind) []*notify.Notification {
	return b.notifs.Snapshot(kind)
}

// ListChangeNotifications returns every armed interface-list-change
// notification, for reporting. Same calling convention as Servers.
func (b *Broker) ListChangeNotifications() []*notify.Notification {
	out := make([]*notify.Notification, len(b.listChangeNotifs))
	copy(out, b.listChangeNotifs)
	return out
}

// DisconnectServer forcibly evicts the server identified by id,
// exactly as if its owning connection had sent UNREGISTER_INTERFACE,
// for the status page's disconnect=<id> command.
func (b *Broker) DisconnectServer(id party.ID) error {
	var err error
	b.Inspect(func(b *Broker) {
		_, err = b.evictServer(id)
	})
	return err
}

// Reload swaps in a new Local/Forward/ForwardAll set, for a service
// file watch picking up an edit on a running daemon. Takes effect on
// the dispatch goroutine so it can never race a forwardJob check.
func (b *Broker) Reload(local, forward map[string]struct{}, forwardAll bool) {
	b.Inspect(func(b *Broker) {
		b.cfg.Local = local
		b.cfg.Forward = forward
		b.cfg.ForwardAll = forwardAll
	})
}

// MasterConnected implements federation.Notifier.
func (b *Broker) MasterConnected() {
	logger.Info("master link up")
}

// MasterDisconnected implements federation.Notifier. The cache is
// emptied before any pool is torn down, so nothing derived from a
// cache entry can fire against a resolution that is about to be
// invalidated anyway. Every proxy pool is then destroyed: with the
// upstream link gone there is no way left to confirm or clear a fold,
// so every notification still waiting on one fires now rather than
// hanging forever.
func (b *Broker) MasterDisconnected() {
	logger.Warn("master link down")

	b.remoteSrv.Clear()

	for _, entry := range b.pools.Clear() {
		fired := b.notifs.TriggerPool(entry.PoolID)
		b.fireAndForget(fired)
	}

	fired := b.notifs.TriggerNotLocal(b.cfg.ExtendedID)
	for _, n := range fired {
		b.deliverPulse(n)
	}
}
