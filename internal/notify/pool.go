package notify

import (
	"sync"

	"github.com/marmos91/sbrokerd/internal/iface"
	"github.com/marmos91/sbrokerd/internal/party"
)

// PoolState is a NotificationPoolEntry's position in the proxy-folding
// state machine.
type PoolState int

const (
	// StateDeferred means the fold is recorded but no upstream job has
	// been sent yet (waiting for the dispatcher to flush its batch).
	StateDeferred PoolState = iota
	// StateConnecting means the upstream NOTIFY_SERVER_AVAILABLE_EX
	// job is in flight.
	StateConnecting
	// StateConnected means the upstream server is known present; the
	// pool is armed to fire on upstream disconnect.
	StateConnected
	// StatePrecaching means a GET_SERVER_INFORMATION-equivalent probe
	// is in flight to warm RemoteServerCache before folding further
	// attaches.
	StatePrecaching
	// StateMonitorDisconnect means the pool is only watching for the
	// upstream server to disappear; any connect-oriented folding is
	// done.
	StateMonitorDisconnect
)

func (s PoolState) String() string {
	switch s {
	case StateDeferred:
		return "DEFERRED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StatePrecaching:
		return "PRECACHING"
	case StateMonitorDisconnect:
		return "MONITOR_DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// PoolKey identifies a fold predicate: either an interface name tuple
// (for NOTIFY_SERVER_AVAILABLE folding) or a remote server party id
// (for NOTIFY_SERVER_DISCONNECT folding). Exactly one of the two is
// set, distinguished by Kind.
type PoolKey struct {
	Kind     PoolKeyKind
	Iface    iface.Description
	ServerID party.ID
}

// PoolKeyKind distinguishes the two predicate shapes a pool can fold.
type PoolKeyKind int

const (
	// PoolKeyIface folds NOTIFY_SERVER_AVAILABLE[_EX] requests for the
	// same interface+version.
	PoolKeyIface PoolKeyKind = iota
	// PoolKeyServer folds NOTIFY_SERVER_DISCONNECT requests for the
	// same remote server party id.
	PoolKeyServer
)

// Entry is a per-master proxy folding many local notifications with
// the same predicate into one upstream registration.
type Entry struct {
	PoolID        uint64
	Key           PoolKey
	State         PoolState
	MasterNotifID uint64
	RefCount      int
}

// PoolTable tracks active proxy pools, keyed by predicate so a second
// local notification with the same predicate reuses the existing
// pool instead of sending a second upstream job.
type PoolTable struct {
	mu      sync.Mutex
	byKey   map[PoolKey]*Entry
	byID    map[uint64]*Entry
	poolIDs *party.Generator
}

// NewPoolTable builds an empty pool table.
func NewPoolTable() *PoolTable {
	return &PoolTable{
		byKey:   make(map[PoolKey]*Entry),
		byID:    make(map[uint64]*Entry),
		poolIDs: party.NewGenerator(1),
	}
}

// GetOrCreate returns the existing pool for key, or creates one in
// StateDeferred and reports created=true so the caller knows to send
// the upstream job.
func (t *PoolTable) GetOrCreate(key PoolKey) (entry *Entry, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.byKey[key]; ok {
		e.RefCount++
		return e, false
	}

	e := &Entry{
		PoolID:   t.poolIDs.Next(),
		Key:      key,
		State:    StateDeferred,
		RefCount: 1,
	}
	t.byKey[key] = e
	t.byID[e.PoolID] = e
	return e, true
}

// Get looks up a pool by id.
func (t *PoolTable) Get(poolID uint64) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[poolID]
	return e, ok
}

// SetState transitions a pool's state. Called by the federation
// completion handler as the upstream job progresses.
func (t *PoolTable) SetState(poolID uint64, state PoolState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byID[poolID]; ok {
		e.State = state
	}
}

// SetMasterNotifID records the upstream notification id once the
// NOTIFY_SERVER_AVAILABLE_EX response arrives.
func (t *PoolTable) SetMasterNotifID(poolID uint64, masterNotifID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byID[poolID]; ok {
		e.MasterNotifID = masterNotifID
	}
}

// Release drops one reference from the pool. When the refcount
// reaches zero it removes the pool and returns it so the caller can
// send the CLEAR_NOTIFICATION job for MasterNotifID, if any.
func (t *PoolTable) Release(poolID uint64) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[poolID]
	if !ok {
		return nil, false
	}
	e.RefCount--
	if e.RefCount > 0 {
		return nil, false
	}

	delete(t.byID, poolID)
	delete(t.byKey, e.Key)
	return e, true
}

// Clear removes every pool from the table and returns the removed
// entries, for use when the upstream link drops and nothing folded
// into any pool can ever be confirmed or cleared properly again.
func (t *PoolTable) Clear() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make([]*Entry, 0, len(t.byID))
	for _, e := range t.byID {
		entries = append(entries, e)
	}
	t.byID = make(map[uint64]*Entry)
	t.byKey = make(map[PoolKey]*Entry)
	return entries
}
