package registry

import (
	"sync"

	"github.com/marmos91/sbrokerd/internal/iface"
	"github.com/marmos91/sbrokerd/internal/party"
)

// OCB is the per-connection client state: the set of resources a
// single socket has created, so they can be torn down atomically when
// the connection drops.
type OCB struct {
	mu            sync.Mutex
	ExtendedID    uint32
	IsSlave       bool
	servers       map[party.ID]struct{}
	clients       map[party.ID]struct{}
	notifications map[uint64]struct{}
}

// NewOCB builds an empty per-connection state block.
func NewOCB() *OCB {
	return &OCB{
		servers:       make(map[party.ID]struct{}),
		clients:       make(map[party.ID]struct{}),
		notifications: make(map[uint64]struct{}),
	}
}

// AddServer records a server registered over this connection.
func (o *OCB) AddServer(id party.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.servers[id] = struct{}{}
}

// RemoveServer forgets a server that was unregistered explicitly.
func (o *OCB) RemoveServer(id party.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.servers, id)
}

// AddClient records a client attached over this connection.
func (o *OCB) AddClient(id party.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clients[id] = struct{}{}
}

// RemoveClient forgets a client that was detached explicitly.
func (o *OCB) RemoveClient(id party.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.clients, id)
}

// AddNotification records a notification armed over this connection.
func (o *OCB) AddNotification(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifications[id] = struct{}{}
}

// RemoveNotification forgets a notification that fired or was cleared
// explicitly.
func (o *OCB) RemoveNotification(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.notifications, id)
}

// Drain empties the OCB and returns everything it held, for the
// connection-close teardown sequence: servers are unregistered and
// fire disconnect pulses, clients are detached and fire detach
// pulses, notifications are cleared.
func (o *OCB) Drain() (servers []party.ID, clients []party.ID, notifications []uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	servers = make([]party.ID, 0, len(o.servers))
	for id := range o.servers {
		servers = append(servers, id)
	}
	clients = make([]party.ID, 0, len(o.clients))
	for id := range o.clients {
		clients = append(clients, id)
	}
	notifications = make([]uint64, 0, len(o.notifications))
	for id := range o.notifications {
		notifications = append(notifications, id)
	}

	o.servers = make(map[party.ID]struct{})
	o.clients = make(map[party.ID]struct{})
	o.notifications = make(map[uint64]struct{})
	return servers, clients, notifications
}

// RemoteServerInfo is a cached resolution of an interface against an
// upstream broker: the channel to deliver on and the server id the
// upstream assigned.
type RemoteServerInfo struct {
	Channel  party.Channel
	ServerID party.ID
}

// RemoteServerCache maps interface descriptions to cached upstream
// resolutions, used in tree mode to short-circuit repeated upstream
// lookups for the same interface.
type RemoteServerCache struct {
	mu      sync.RWMutex
	entries map[iface.Description]RemoteServerInfo
}

// NewRemoteServerCache builds an empty cache.
func NewRemoteServerCache() *RemoteServerCache {
	return &RemoteServerCache{entries: make(map[iface.Description]RemoteServerInfo)}
}

// Get returns the cached resolution for d, if any.
func (c *RemoteServerCache) Get(d iface.Description) (RemoteServerInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.entries[d]
	return info, ok
}

// Put records a resolution for d.
func (c *RemoteServerCache) Put(d iface.Description, info RemoteServerInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[d] = info
}

// Invalidate drops any cached resolution for d, called when the
// upstream reports the server gone.
func (c *RemoteServerCache) Invalidate(d iface.Description) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, d)
}

// Clear empties the cache entirely, called when the upstream link
// drops and every cached resolution becomes unverifiable.
func (c *RemoteServerCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[iface.Description]RemoteServerInfo)
}
