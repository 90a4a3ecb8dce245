// Package notify implements the broker's notification engine: armed
// notifications waiting for a trigger, proxy pools that fold many
// local notifications into one upstream registration, and pulse
// delivery over refcounted sockets.
package notify

import (
	"sync"

	"github.com/marmos91/sbrokerd/internal/iface"
	"github.com/marmos91/sbrokerd/internal/party"
)

// Pulse is the fixed payload delivered when a notification fires.
type Pulse struct {
	Code  int32
	Value int32
}

// Notification is one armed wait: a party waiting to be told about a
// server appearing, disappearing, or an interface list changing.
type Notification struct {
	ID               uint64
	MasterNotifID    uint64
	PoolID           uint64
	HostOCB          uint64
	TargetParty      party.ID
	Iface            iface.Description
	Pulse            Pulse
	TargetNode       uint32
	TargetPid        uint32
	TargetChid       uint32
	ConnectionHandle uint64
	Active           bool
	Local            bool
	Pattern          string
	Kind             Kind

	// WatcherUID is the arming connection's peer uid, checked against a
	// group-restricted server's gid before delivery. UnknownUID means
	// the watcher's credentials could not be determined (a TCP peer),
	// which only uid-0 servers (GroupID == registry.UnknownGroupID)
	// ever satisfy.
	WatcherUID uint32
}

// UnknownUID marks a notification armed by a connection whose peer uid
// could not be determined.
const UnknownUID uint32 = 0xffffffff

// Kind classifies an armed notification for reporting purposes; it has
// no effect on arming, firing, or delivery, which key off Iface and
// TargetParty alone.
type Kind int

const (
	KindConnect Kind = iota
	KindServerDisconnect
	KindClientDetach
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindServerDisconnect:
		return "server-disconnect"
	case KindClientDetach:
		return "client-detach"
	default:
		return "unknown"
	}
}

// List is an ordered collection of armed notifications, indexed by id
// and by the predicates handlers need to scan against: interface
// name, target party, and pool id.
type List struct {
	mu            sync.Mutex
	order         []uint64
	byID          map[uint64]*Notification
	byIfaceName   map[string]map[uint64]struct{}
	byTargetParty map[party.ID]map[uint64]struct{}
	byPoolID      map[uint64]map[uint64]struct{}

	ids *party.Generator
}

// NewList builds an empty notification list with its id generator
// seeded at 1, per the algorithmic notes.
func NewList() *List {
	return &List{
		byID:          make(map[uint64]*Notification),
		byIfaceName:   make(map[string]map[uint64]struct{}),
		byTargetParty: make(map[party.ID]map[uint64]struct{}),
		byPoolID:      make(map[uint64]map[uint64]struct{}),
		ids:           party.NewGenerator(1),
	}
}

// NextID mints the next notification id.
func (l *List) NextID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ids.Next()
}

// Add arms n and indexes it.
func (l *List) Add(n *Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n.Active = true
	l.order = append(l.order, n.ID)
	l.byID[n.ID] = n

	if l.byIfaceName[n.Iface.Name] == nil {
		l.byIfaceName[n.Iface.Name] = make(map[uint64]struct{})
	}
	l.byIfaceName[n.Iface.Name][n.ID] = struct{}{}

	if l.byTargetParty[n.TargetParty] == nil {
		l.byTargetParty[n.TargetParty] = make(map[uint64]struct{})
	}
	l.byTargetParty[n.TargetParty][n.ID] = struct{}{}

	if n.PoolID != 0 {
		if l.byPoolID[n.PoolID] == nil {
			l.byPoolID[n.PoolID] = make(map[uint64]struct{})
		}
		l.byPoolID[n.PoolID][n.ID] = struct{}{}
	}
}

// Remove drops n's id from every index.
func (l *List) Remove(id uint64) (*Notification, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.removeLocked(id)
}

func (l *List) removeLocked(id uint64) (*Notification, bool) {
	n, ok := l.byID[id]
	if !ok {
		return nil, false
	}

	delete(l.byID, id)
	delete(l.byIfaceName[n.Iface.Name], id)
	delete(l.byTargetParty[n.TargetParty], id)
	if n.PoolID != 0 {
		delete(l.byPoolID[n.PoolID], id)
	}
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return n, true
}

// Get returns the armed notification for id, if present.
func (l *List) Get(id uint64) (*Notification, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.byID[id]
	return n, ok
}

// Snapshot returns every currently armed notification of the given
// kind, in arming order, without removing them. Used by the read-only
// status report; never mutates state.
func (l *List) Snapshot(kind Kind) []*Notification {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Notification, 0, len(l.order))
	for _, id := range l.order {
		n := l.byID[id]
		if n != nil && n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Count returns the number of notifications targeting party p.
func (l *List) Count(p party.ID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byTargetParty[p])
}

// TriggerParty fires and removes the notification armed for the given
// target party, if any, and reports whether one fired.
func (l *List) TriggerParty(target party.ID) (*Notification, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id := range l.byTargetParty[target] {
		n, ok := l.removeLocked(id)
		if ok {
			return n, true
		}
	}
	return nil, false
}

// TriggerIface fires every notification armed for d's interface name
// whose version is compatible with d and, for group-restricted
// deliveries, whose caller gid is authorized. Notifications that fail
// the gid check are retained but marked inactive so they do not refire
// against the same registration. Returns the fired notifications.
func (l *List) TriggerIface(d iface.Description, gidAuthorized func(*Notification) bool) []*Notification {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := l.byIfaceName[d.Name]
	fired := make([]*Notification, 0, len(ids))
	for id := range ids {
		n := l.byID[id]
		if n == nil || !n.Iface.CompatibleWith(d) {
			continue
		}
		if gidAuthorized != nil && !gidAuthorized(n) {
			n.Active = false
			continue
		}
		if _, ok := l.removeLocked(id); ok {
			fired = append(fired, n)
		}
	}
	return fired
}

// TriggerNotif fires the notification with the given id directly, as
// used by CLEAR_NOTIFICATION and explicit disconnect/detach pulses.
// When remove is false the notification stays armed (used for the
// persistent interface-list-change notification).
func (l *List) TriggerNotif(id uint64, remove bool) (*Notification, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if remove {
		return l.removeLocked(id)
	}
	n, ok := l.byID[id]
	return n, ok
}

// TriggerPool fires every notification folded into poolID, used when
// an upstream proxy pool's notification arrives.
func (l *List) TriggerPool(poolID uint64) []*Notification {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := l.byPoolID[poolID]
	fired := make([]*Notification, 0, len(ids))
	for id := range ids {
		if n, ok := l.removeLocked(id); ok {
			fired = append(fired, n)
		}
	}
	return fired
}

// TriggerAll fires every armed notification, optionally restricted to
// those matching a given interface name, in arming order.
func (l *List) TriggerAll(ifaceName string) []*Notification {
	l.mu.Lock()
	defer l.mu.Unlock()

	fired := make([]*Notification, 0, len(l.order))
	for _, id := range append([]uint64(nil), l.order...) {
		n := l.byID[id]
		if n == nil {
			continue
		}
		if ifaceName != "" && n.Iface.Name != ifaceName {
			continue
		}
		if removed, ok := l.removeLocked(id); ok {
			fired = append(fired, removed)
		}
	}
	return fired
}

// TriggerNotLocal fires every notification NOT owned by extendedID,
// used when a slave link drops and the master must fire every
// notification armed by other connections against that slave's
// servers.
func (l *List) TriggerNotLocal(extendedID uint32) []*Notification {
	return l.triggerByOwnership(extendedID, false)
}

// TriggerLocal fires every notification owned by extendedID.
func (l *List) TriggerLocal(extendedID uint32) []*Notification {
	return l.triggerByOwnership(extendedID, true)
}

func (l *List) triggerByOwnership(extendedID uint32, local bool) []*Notification {
	l.mu.Lock()
	defer l.mu.Unlock()

	fired := make([]*Notification, 0)
	for _, id := range append([]uint64(nil), l.order...) {
		n := l.byID[id]
		if n == nil {
			continue
		}
		owned := n.TargetParty.ExtendedID == extendedID
		if owned != local {
			continue
		}
		if removed, ok := l.removeLocked(id); ok {
			fired = append(fired, removed)
		}
	}
	return fired
}
