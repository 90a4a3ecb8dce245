// Package registry holds the broker's in-memory tables of registered
// servers, attached clients, and the per-connection state that ties
// them to a socket.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/sbrokerd/internal/iface"
	"github.com/marmos91/sbrokerd/internal/party"
)

// UnknownGroupID marks a ServerEntry that is not group-restricted.
const UnknownGroupID uint32 = 0xffffffff

// ForwardingMasterID is the masterId sentinel for a ServerEntry whose
// upstream registration is in flight.
const ForwardingMasterID uint32 = 0xffffffff

// ServerEntry is a registered interface implementation.
type ServerEntry struct {
	ID          party.ID
	PartyID     party.ID
	MasterID    uint32
	Node        uint32
	Pid         uint32
	Chid        uint32
	Iface       iface.Description
	ImplVersion uint32
	GroupID     uint32
	Local       bool
}

// GroupRestricted reports whether only members of GroupID (plus uid 0)
// may attach to this server.
func (s *ServerEntry) GroupRestricted() bool {
	return s.GroupID != UnknownGroupID
}

// ClientEntry is a successful attach: it exists from ATTACH_INTERFACE
// until the matching DETACH_INTERFACE or until its server disappears.
type ClientEntry struct {
	ClientID party.ID
	ServerID party.ID
}

// Registry is the broker's mutex-guarded identity tables: servers by
// party id and by interface name, clients by party id.
type Registry struct {
	mu              sync.RWMutex
	serversByID     map[party.ID]*ServerEntry
	serversByName   map[string]*ServerEntry
	clientsByID     map[party.ID]*ClientEntry
	clientsByServer map[party.ID]map[party.ID]struct{}

	serverIDs *party.Generator
	clientIDs *party.Generator
}

// NewRegistry builds an empty registry with the monotonic id
// generators seeded per the algorithmic notes: servers start at
// 500001, clients at 100001.
func NewRegistry() *Registry {
	r := &Registry{
		serversByID:     make(map[party.ID]*ServerEntry),
		serversByName:   make(map[string]*ServerEntry),
		clientsByID:     make(map[party.ID]*ClientEntry),
		clientsByServer: make(map[party.ID]map[party.ID]struct{}),
	}
	r.serverIDs = party.NewGenerator(500001)
	r.clientIDs = party.NewGenerator(100001)
	return r
}

// NextServerLocalID mints the next local id for a new ServerEntry.
func (r *Registry) NextServerLocalID() uint32 {
	return uint32(r.serverIDs.Next())
}

// NextClientLocalID mints the next local id for a new ClientEntry.
func (r *Registry) NextClientLocalID() uint32 {
	return uint32(r.clientIDs.Next())
}

// RegisterServer adds a new server entry. Returns
// InterfaceAlreadyRegistered-flavored error if the interface name
// collides.
func (r *Registry) RegisterServer(entry *ServerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.serversByName[entry.Iface.Name]; exists {
		return fmt.Errorf("interface %q already registered", entry.Iface.Name)
	}

	r.serversByID[entry.PartyID] = entry
	r.serversByName[entry.Iface.Name] = entry
	return nil
}

// UnregisterServer removes a server entry by party id.
func (r *Registry) UnregisterServer(id party.ID) (*ServerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.serversByID[id]
	if !exists {
		return nil, fmt.Errorf("server %s not found", id)
	}

	delete(r.serversByID, id)
	delete(r.serversByName, entry.Iface.Name)
	return entry, nil
}

// GetServerByID looks up a server by party id.
func (r *Registry) GetServerByID(id party.ID) (*ServerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.serversByID[id]
	return entry, exists
}

// FindCompatibleServer returns the registered server whose interface
// is version-compatible with requested, if one exists.
func (r *Registry) FindCompatibleServer(requested iface.Description) (*ServerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.serversByName[requested.Name]
	if !exists {
		return nil, false
	}
	if !entry.Iface.CompatibleWith(requested) {
		return nil, false
	}
	return entry, true
}

// ListServers returns a snapshot of all registered servers, optionally
// matching names against pattern (nil matcher means no filter). The
// slice is sorted by interface name, matching the original dumpStats
// ordering.
func (r *Registry) ListServers(match func(name string) bool) []*ServerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ServerEntry, 0, len(r.serversByName))
	for name, entry := range r.serversByName {
		if match == nil || match(name) {
			out = append(out, entry)
		}
	}
	sortServersByName(out)
	return out
}

// CountServers returns the number of registered servers.
func (r *Registry) CountServers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.serversByID)
}

// RegisterClient adds a new client entry.
func (r *Registry) RegisterClient(entry *ClientEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clientsByID[entry.ClientID] = entry

	if r.clientsByServer[entry.ServerID] == nil {
		r.clientsByServer[entry.ServerID] = make(map[party.ID]struct{})
	}
	r.clientsByServer[entry.ServerID][entry.ClientID] = struct{}{}
}

// UnregisterClient removes a client entry by party id.
func (r *Registry) UnregisterClient(id party.ID) (*ClientEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.clientsByID[id]
	if !exists {
		return nil, fmt.Errorf("client %s not found", id)
	}
	delete(r.clientsByID, id)
	delete(r.clientsByServer[entry.ServerID], id)
	return entry, nil
}

// ClientsOfServer returns the ids of every client currently attached
// to serverID, used to evict dependents when the server unregisters.
func (r *Registry) ClientsOfServer(serverID party.ID) []party.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.clientsByServer[serverID]
	out := make([]party.ID, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

// ListClients returns a snapshot of every attached client, sorted by
// client id for stable reporting.
func (r *Registry) ListClients() []*ClientEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ClientEntry, 0, len(r.clientsByID))
	for _, entry := range r.clientsByID {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClientID.ExtendedID != out[j].ClientID.ExtendedID {
			return out[i].ClientID.ExtendedID < out[j].ClientID.ExtendedID
		}
		return out[i].ClientID.LocalID < out[j].ClientID.LocalID
	})
	return out
}

// GetClientByID looks up a client by party id.
func (r *Registry) GetClientByID(id party.ID) (*ClientEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, exists := r.clientsByID[id]
	return entry, exists
}

// CountClients returns the number of attached clients.
func (r *Registry) CountClients() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clientsByID)
}

func sortServersByName(entries []*ServerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Iface.Name < entries[j].Iface.Name
	})
}
