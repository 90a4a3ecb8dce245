package broker

import (
	"encoding/binary"
	"net"
	"regexp"

	"github.com/marmos91/sbrokerd/internal/federation"
	"github.com/marmos91/sbrokerd/internal/iface"
	"github.com/marmos91/sbrokerd/internal/logger"
	"github.com/marmos91/sbrokerd/internal/notify"
	"github.com/marmos91/sbrokerd/internal/party"
	"github.com/marmos91/sbrokerd/internal/registry"
	"github.com/marmos91/sbrokerd/internal/wire"
)

// localNode is the nid sentinel for a server registered by a local
// application rather than forwarded from a slave link.
const localNode uint32 = 0

// compilePattern compiles a MATCH_INTERFACELIST/NOTIFY_INTERFACELIST_MATCH
// pattern with POSIX ERE syntax and leftmost-longest matching.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.CompilePOSIX(pattern)
}

// decodeCookieResults parses a NotifyServerAvailableExResponse body: a
// flat run of {cookie, notificationId} uint64 pairs.
func decodeCookieResults(body []byte) []wire.NotifyServerAvailableExCookieResult {
	const entrySize = 16
	out := make([]wire.NotifyServerAvailableExCookieResult, 0, len(body)/entrySize)
	for off := 0; off+entrySize <= len(body); off += entrySize {
		out = append(out, wire.NotifyServerAvailableExCookieResult{
			Cookie:         binary.LittleEndian.Uint64(body[off : off+8]),
			NotificationID: binary.LittleEndian.Uint64(body[off+8 : off+16]),
		})
	}
	return out
}

// checkVersion reports whether v can be served by this broker,
// returning the failure status callers should reply with when it
// cannot.
func checkVersion(v wire.SBVersion) (wire.Status, bool) {
	if !v.Compatible() {
		return wire.BadFoundationVersion, false
	}
	return wire.OK, true
}

func (b *Broker) handleRegisterInterface(req *request) (wire.Status, []byte, error) {
	var m wire.RegisterInterfaceRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}

	entry, status, err := b.registerOne(req, m.Iface, m.ImplVersion, m.Chid, m.Pid, registry.UnknownGroupID)
	if status != wire.OK {
		return status, nil, err
	}

	resp := wire.ServerIDListResponse{IDs: []party.ID{entry.PartyID}}
	return wire.OK, resp.Encode(), nil
}

func (b *Broker) handleRegisterInterfaceGroupID(req *request) (wire.Status, []byte, error) {
	var m wire.RegisterInterfaceGroupIDRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}

	entry, status, err := b.registerOne(req, m.Iface, m.ImplVersion, m.Chid, m.Pid, m.GroupID)
	if status != wire.OK {
		return status, nil, err
	}

	resp := wire.ServerIDListResponse{IDs: []party.ID{entry.PartyID}}
	return wire.OK, resp.Encode(), nil
}

// registerOne validates and installs a single interface registration,
// common to REGISTER_INTERFACE and REGISTER_INTERFACE_GROUPID.
// REGISTER_INTERFACE is only ever sent by a local application, never
// forwarded from a slave link.
func (b *Broker) registerOne(req *request, d iface.Description, implVersion, chid, pid, groupID uint32) (*registry.ServerEntry, wire.Status, error) {
	if req.conn.isRemote {
		return nil, wire.AccessDenied, statusErrorf(wire.AccessDenied, "register_interface: not allowed from a non-local connection")
	}
	if err := d.Validate(); err != nil {
		return nil, wire.BadArgument, err
	}

	entry := &registry.ServerEntry{
		PartyID:     party.ID{ExtendedID: b.cfg.ExtendedID, LocalID: b.registry.NextServerLocalID()},
		Node:        localNode,
		Pid:         pid,
		Chid:        chid,
		Iface:       d,
		ImplVersion: implVersion,
		GroupID:     groupID,
		Local:       true,
	}
	entry.ID = entry.PartyID

	if err := b.registry.RegisterServer(entry); err != nil {
		return nil, wire.InterfaceAlreadyRegistered, err
	}
	req.conn.ocb.AddServer(entry.PartyID)

	logger.Debug("interface registered", logger.IfaceName(d.Name), partyLog(entry.PartyID)[0])

	b.fireServerAvailable(entry)
	b.fireListChange(d.Name)
	if b.cfg.forwardable(d.Name) {
		b.forwardRegister([]*registry.ServerEntry{entry})
	}

	return entry, wire.OK, nil
}

func (b *Broker) handleRegisterInterfaceEx(req *request) (wire.Status, []byte, error) {
	var m wire.RegisterInterfaceExRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}
	if req.conn.isRemote {
		return wire.AccessDenied, nil, statusErrorf(wire.AccessDenied, "register_interface_ex: not allowed from a non-local connection")
	}

	ids := make([]party.ID, 0, len(m.Interfaces))
	var newlyRegistered []*registry.ServerEntry
	var changedNames []string

	for _, d := range m.Interfaces {
		if err := d.Validate(); err != nil {
			ids = append(ids, party.Zero)
			continue
		}

		if existing, ok := b.registry.FindCompatibleServer(d); ok && existing.Iface.Name == d.Name {
			// A duplicate name within the same batch (or a
			// concurrently-registered one) reuses the existing
			// entry's id rather than failing the whole request.
			ids = append(ids, existing.PartyID)
			continue
		}

		entry := &registry.ServerEntry{
			PartyID:     party.ID{ExtendedID: b.cfg.ExtendedID, LocalID: b.registry.NextServerLocalID()},
			Node:        localNode,
			Pid:         m.Pid,
			Chid:        m.Chid,
			Iface:       d,
			ImplVersion: m.ImplVersion,
			GroupID:     registry.UnknownGroupID,
			Local:       true,
		}
		entry.ID = entry.PartyID

		if err := b.registry.RegisterServer(entry); err != nil {
			ids = append(ids, party.Zero)
			continue
		}
		req.conn.ocb.AddServer(entry.PartyID)
		ids = append(ids, entry.PartyID)

		b.fireServerAvailable(entry)
		changedNames = append(changedNames, d.Name)
		if b.cfg.forwardable(d.Name) {
			newlyRegistered = append(newlyRegistered, entry)
		}
	}

	b.fireListChange(changedNames...)
	b.forwardRegister(newlyRegistered)

	resp := wire.ServerIDListResponse{IDs: ids}
	return wire.OK, resp.Encode(), nil
}

func (b *Broker) handleRegisterMasterInterfaceEx(req *request) (wire.Status, []byte, error) {
	var m wire.RegisterMasterInterfaceExRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}
	if !req.conn.isRemote {
		return wire.AccessDenied, nil, statusErrorf(wire.AccessDenied, "register_master_interface_ex: only allowed from a slave link")
	}

	ids := make([]party.ID, 0, len(m.Entries))
	var changedNames []string

	for _, e := range m.Entries {
		if err := e.Iface.Validate(); err != nil {
			ids = append(ids, party.Zero)
			continue
		}

		if e.ServerID.ExtendedID == b.cfg.ExtendedID {
			// The slave's own extendedId collides with ours: record
			// the collision in the returned id's localId so the slave
			// can correlate the failure, but never register it.
			ids = append(ids, party.ID{ExtendedID: e.ServerID.LocalID, LocalID: ^uint32(0)})
			continue
		}

		pid := rewritePid(e.Iface, e.Pid, req.conn)

		entry := &registry.ServerEntry{
			// The master-side localId deliberately mirrors the
			// slave's own localId, allowing the slave to correlate
			// its local registration with the master's copy without
			// a separate lookup table.
			PartyID:     party.ID{ExtendedID: b.cfg.ExtendedID, LocalID: e.ServerID.LocalID},
			Node:        e.Node,
			Pid:         pid,
			Chid:        e.Chid,
			Iface:       e.Iface,
			ImplVersion: e.ImplVersion,
			GroupID:     registry.UnknownGroupID,
			Local:       false,
		}
		entry.ID = entry.PartyID

		if err := b.registry.RegisterServer(entry); err != nil {
			ids = append(ids, party.Zero)
			continue
		}
		req.conn.ocb.AddServer(entry.PartyID)
		ids = append(ids, entry.PartyID)

		b.fireServerAvailable(entry)
		changedNames = append(changedNames, e.Iface.Name)
	}

	b.fireListChange(changedNames...)

	resp := wire.ServerIDListResponse{IDs: ids}
	return wire.OK, resp.Encode(), nil
}

func (b *Broker) handleUnregisterInterface(req *request) (wire.Status, []byte, error) {
	var m wire.UnregisterInterfaceRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}

	entry, err := b.evictServer(m.ServerID)
	if err != nil {
		return wire.InvalidServerID, nil, err
	}
	req.conn.ocb.RemoveServer(entry.PartyID)

	return wire.OK, nil, nil
}

// evictServer unregisters a server, fires its armed disconnect
// notification, detaches every dependent client (firing their
// client-detach notifications in turn), forwards the unregistration
// upstream when it was itself forwarded, and fires an interface-list
// change. Shared by UNREGISTER_INTERFACE and the status page's
// disconnect=<id> runtime command, which evicts a server the same way
// a client-initiated unregister would.
func (b *Broker) evictServer(id party.ID) (*registry.ServerEntry, error) {
	entry, err := b.registry.UnregisterServer(id)
	if err != nil {
		return nil, err
	}

	if n, ok := b.notifs.TriggerParty(entry.PartyID); ok {
		b.deliverPulse(n)
		b.forgetOwner(n.ID)
	}

	for _, clientID := range b.registry.ClientsOfServer(entry.PartyID) {
		if client, err := b.registry.UnregisterClient(clientID); err == nil {
			if n, ok := b.notifs.TriggerParty(client.ClientID); ok {
				b.deliverPulse(n)
				b.forgetOwner(n.ID)
			}
		}
	}

	if entry.MasterID != 0 && entry.MasterID != registry.ForwardingMasterID {
		unreg := wire.UnregisterInterfaceRequest{
			Version:  wire.SBVersion{Major: wire.ProtocolMajor, Minor: wire.ProtocolMinor},
			ServerID: entry.PartyID,
		}
		b.forwardJob(wire.CmdUnregisterInterface, unreg.Encode(), nil)
	}

	b.fireListChange(entry.Iface.Name)
	logger.Debug("interface unregistered", logger.IfaceName(entry.Iface.Name), partyLog(entry.PartyID)[0])

	return entry, nil
}

func (b *Broker) handleAttachInterface(req *request) (wire.Status, []byte, error) {
	var m wire.AttachInterfaceRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}
	if err := iface.ValidateName(m.Iface.Name); err != nil {
		return wire.BadArgument, nil, err
	}

	entry, ok := b.registry.FindCompatibleServer(m.Iface)
	if !ok {
		if cached, ok := b.remoteSrv.Get(m.Iface); ok && b.cfg.CacheEnabled {
			resp := wire.AttachInterfaceResponse{
				IfaceVersion: wire.SBVersion{Major: wire.ProtocolMajor, Minor: wire.ProtocolMinor},
				Channel:      cached.Channel,
				ServerID:     cached.ServerID,
				ClientID:     b.mintClientIDFromParty(cached.ServerID),
			}
			return wire.OK, resp.Encode(), nil
		}

		if b.adapter != nil && b.cfg.forwardable(m.Iface.Name) {
			areq := wire.AttachInterfaceRequest{Version: m.Version, Iface: m.Iface}
			b.forwardJob(wire.CmdAttachInterface, areq.Encode(), func(b *Broker, res federation.Result) {
				status, body := b.resolveForwardedAttach(req, m.Iface, res)
				b.replyLater(req, status, body)
			})
			return 0, nil, errDeferred
		}

		return wire.UnknownInterface, nil, nil
	}

	if entry.GroupRestricted() && !req.conn.authorizedFor(entry.GroupID) {
		return wire.AccessDenied, nil, statusErrorf(wire.AccessDenied, "attach_interface: caller not in required group")
	}

	clientID := b.mintClientID(entry)
	b.registry.RegisterClient(&registry.ClientEntry{ClientID: clientID, ServerID: entry.PartyID})
	req.conn.ocb.AddClient(clientID)

	pid := entry.Pid
	if pid == party.LoopbackPid && iface.IsForwardableTCPName(entry.Iface.Name) && req.conn.raw != nil {
		if tcpAddr, ok := req.conn.raw.LocalAddr().(*net.TCPAddr); ok {
			if ip4 := tcpAddr.IP.To4(); ip4 != nil {
				pid = binary.BigEndian.Uint32(ip4)
			}
		}
	}

	resp := wire.AttachInterfaceResponse{
		IfaceVersion: wire.SBVersion{Major: entry.Iface.Major, Minor: entry.Iface.Minor},
		Channel:      party.Channel{Node: entry.Node, Pid: pid, Chid: entry.Chid},
		ServerID:     entry.PartyID,
		ClientID:     clientID,
	}
	return wire.OK, resp.Encode(), nil
}

// resolveForwardedAttach decodes the response to an ATTACH_INTERFACE
// job forwarded upstream, populating the remote server cache on a
// successful reply and minting a local client id for the caller.
func (b *Broker) resolveForwardedAttach(req *request, d iface.Description, res federation.Result) (wire.Status, []byte) {
	if res.Err != nil || res.Status != wire.OK {
		return wire.UnknownInterface, nil
	}

	var aresp wire.AttachInterfaceResponse
	if err := aresp.Decode(res.Body); err != nil {
		return wire.UnknownInterface, nil
	}

	if b.cfg.CacheEnabled {
		b.remoteSrv.Put(d, registry.RemoteServerInfo{Channel: aresp.Channel, ServerID: aresp.ServerID})
	}

	clientID := b.mintClientIDFromParty(aresp.ServerID)
	b.registry.RegisterClient(&registry.ClientEntry{ClientID: clientID, ServerID: aresp.ServerID})
	req.conn.ocb.AddClient(clientID)

	resp := wire.AttachInterfaceResponse{
		IfaceVersion: aresp.IfaceVersion,
		Channel:      aresp.Channel,
		ServerID:     aresp.ServerID,
		ClientID:     clientID,
	}
	return wire.OK, resp.Encode()
}

func (b *Broker) mintClientIDFromParty(serverID party.ID) party.ID {
	extID := serverID.ExtendedID
	if b.cfg.TreeMode {
		extID = b.cfg.ExtendedID
	}
	return party.ID{ExtendedID: extID, LocalID: b.registry.NextClientLocalID()}
}

func (b *Broker) handleAttachInterfaceExtended(req *request) (wire.Status, []byte, error) {
	var m wire.AttachInterfaceExtendedRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}
	if err := iface.ValidateName(m.Iface.Name); err != nil {
		return wire.BadArgument, nil, err
	}

	notifID := b.notifs.NextID()

	if entry, ok := b.registry.FindCompatibleServer(m.Iface); ok {
		if entry.GroupRestricted() && !req.conn.authorizedFor(entry.GroupID) {
			return wire.AccessDenied, nil, statusErrorf(wire.AccessDenied, "attach_interface_extended: caller not in required group")
		}

		clientID := b.mintClientID(entry)
		b.registry.RegisterClient(&registry.ClientEntry{ClientID: clientID, ServerID: entry.PartyID})
		req.conn.ocb.AddClient(clientID)

		disc := &notify.Notification{
			ID:          notifID,
			TargetParty: entry.PartyID,
			Pulse:       notify.Pulse{Code: m.Pulse.Code, Value: m.Pulse.Value},
			WatcherUID:  watcherUID(req.conn),
			Kind:        notify.KindServerDisconnect,
		}
		b.armLocal(req.conn, disc)

		resp := wire.AttachInterfaceExtendedResponse{
			Channel:        party.Channel{Node: entry.Node, Pid: entry.Pid, Chid: entry.Chid},
			ServerID:       entry.PartyID,
			ClientID:       clientID,
			NotificationID: notifID,
		}
		return wire.OK, resp.Encode(), nil
	}

	if cached, ok := b.remoteSrv.Get(m.Iface); ok && b.cfg.CacheEnabled {
		clientID := b.mintClientIDFromParty(cached.ServerID)
		b.registry.RegisterClient(&registry.ClientEntry{ClientID: clientID, ServerID: cached.ServerID})
		req.conn.ocb.AddClient(clientID)

		disc := &notify.Notification{
			ID:          notifID,
			TargetParty: cached.ServerID,
			Pulse:       notify.Pulse{Code: m.Pulse.Code, Value: m.Pulse.Value},
			WatcherUID:  watcherUID(req.conn),
			Kind:        notify.KindServerDisconnect,
		}
		b.foldServerDisconnectUpstream(req.conn, disc)

		resp := wire.AttachInterfaceExtendedResponse{
			Channel:        cached.Channel,
			ServerID:       cached.ServerID,
			ClientID:       clientID,
			NotificationID: notifID,
		}
		return wire.OK, resp.Encode(), nil
	}

	n := &notify.Notification{
		ID:         notifID,
		Iface:      m.Iface,
		Pulse:      notify.Pulse{Code: m.Pulse.Code, Value: m.Pulse.Value},
		TargetNode: m.Channel.Node,
		TargetPid:  m.Channel.Pid,
		TargetChid: m.Channel.Chid,
		WatcherUID: watcherUID(req.conn),
		Kind:       notify.KindConnect,
	}

	if b.adapter != nil && b.cfg.forwardable(m.Iface.Name) {
		return b.foldAttachExtendedUpstream(req, n, notifID)
	}

	b.armLocal(req.conn, n)
	resp := wire.AttachInterfaceExtendedResponse{NotificationID: notifID}
	return wire.OK, resp.Encode(), nil
}

// foldAttachExtendedUpstream folds n's connect-watch into the shared
// interface proxy pool and, the first time the pool is created, sends
// one NOTIFY_SERVER_AVAILABLE_EX job upstream on its behalf. A caller
// joining a fold already in flight gets its notification id back
// immediately without waiting on that earlier job. Otherwise, the
// reply carries only the notification id (no connection info is known
// yet): in async mode (-a) it is sent back right away; in the default
// sync mode it is deferred until the upstream job resolves.
//
// n's pool id is assigned before it is armed, so the notification list
// indexes it under its pool from the moment it becomes visible to
// TriggerPool.
func (b *Broker) foldAttachExtendedUpstream(req *request, n *notify.Notification, notifID uint64) (wire.Status, []byte, error) {
	key := notify.PoolKey{Kind: notify.PoolKeyIface, Iface: n.Iface}
	entry, created := b.pools.GetOrCreate(key)
	n.PoolID = entry.PoolID
	b.armLocal(req.conn, n)

	resp := wire.AttachInterfaceExtendedResponse{NotificationID: notifID}

	if !created {
		return wire.UnknownInterface, resp.Encode(), nil
	}

	areq := wire.NotifyServerAvailableExRequest{
		Version: wire.SBVersion{Major: wire.ProtocolMajor, Minor: wire.ProtocolMinor},
		Entries: []wire.NotifyServerAvailableExCookieEntry{
			{Cookie: entry.PoolID, Pulse: wire.Pulse{Code: n.Pulse.Code, Value: n.Pulse.Value}, Iface: n.Iface},
		},
	}
	b.pools.SetState(entry.PoolID, notify.StateConnecting)
	b.forwardJob(wire.CmdNotifyServerAvailableEx, areq.Encode(), func(b *Broker, res federation.Result) {
		if res.Err == nil {
			for _, r := range decodeCookieResults(res.Body) {
				if r.Cookie == entry.PoolID {
					b.pools.SetMasterNotifID(entry.PoolID, r.NotificationID)
					b.pools.SetState(entry.PoolID, notify.StateConnected)
				}
			}
		}
		if !b.cfg.AsyncAttach {
			b.replyLater(req, wire.UnknownInterface, resp.Encode())
		}
	})

	if b.cfg.AsyncAttach {
		return wire.UnknownInterface, resp.Encode(), nil
	}
	return 0, nil, errDeferred
}

// watcherUID records the arming connection's peer uid, or UnknownUID
// when it could not be determined (TCP peers never have one).
func watcherUID(c *conn) uint32 {
	if c.peerUID == unknownCred {
		return notify.UnknownUID
	}
	return c.peerUID
}

func (b *Broker) handleGetServerInformation(req *request) (wire.Status, []byte, error) {
	var m wire.GetServerInformationRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}

	entry, ok := b.registry.FindCompatibleServer(m.Iface)
	if !ok {
		if cached, ok := b.remoteSrv.Get(m.Iface); ok && b.cfg.CacheEnabled {
			resp := wire.GetServerInformationResponse{Channel: cached.Channel, ServerID: cached.ServerID}
			return wire.OK, resp.Encode(), nil
		}

		if b.adapter != nil && b.cfg.forwardable(m.Iface.Name) {
			greq := wire.GetServerInformationRequest{Version: m.Version, Iface: m.Iface}
			b.forwardJob(wire.CmdGetServerInformation, greq.Encode(), func(b *Broker, res federation.Result) {
				status, body := b.resolveForwardedGetServerInformation(m.Iface, res)
				b.replyLater(req, status, body)
			})
			return 0, nil, errDeferred
		}

		return wire.UnknownInterface, nil, nil
	}
	if entry.GroupRestricted() && !req.conn.authorizedFor(entry.GroupID) {
		return wire.AccessDenied, nil, statusErrorf(wire.AccessDenied, "get_server_information: caller not in required group")
	}

	resp := wire.GetServerInformationResponse{
		Channel:  party.Channel{Node: entry.Node, Pid: entry.Pid, Chid: entry.Chid},
		ServerID: entry.PartyID,
	}
	return wire.OK, resp.Encode(), nil
}

// resolveForwardedGetServerInformation decodes the response to a
// GET_SERVER_INFORMATION job forwarded upstream, populating the remote
// server cache on a successful reply.
func (b *Broker) resolveForwardedGetServerInformation(d iface.Description, res federation.Result) (wire.Status, []byte) {
	if res.Err != nil || res.Status != wire.OK {
		return wire.UnknownInterface, nil
	}

	var gresp wire.GetServerInformationResponse
	if err := gresp.Decode(res.Body); err != nil {
		return wire.UnknownInterface, nil
	}

	if b.cfg.CacheEnabled {
		b.remoteSrv.Put(d, registry.RemoteServerInfo{Channel: gresp.Channel, ServerID: gresp.ServerID})
	}

	return wire.OK, gresp.Encode()
}

func (b *Broker) handleDetachInterface(req *request) (wire.Status, []byte, error) {
	var m wire.DetachInterfaceRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}

	client, err := b.registry.UnregisterClient(m.ClientID)
	if err != nil {
		return wire.InvalidClientID, nil, err
	}
	req.conn.ocb.RemoveClient(client.ClientID)

	if n, ok := b.notifs.TriggerParty(client.ClientID); ok {
		b.deliverPulse(n)
		b.forgetOwner(n.ID)
	}

	return wire.OK, nil, nil
}

func (b *Broker) handleNotifyServerAvailable(req *request) (wire.Status, []byte, error) {
	var m wire.NotifyServerAvailableRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}
	if err := iface.ValidateName(m.Iface.Name); err != nil {
		return wire.BadArgument, nil, err
	}

	if entry, ok := b.registry.FindCompatibleServer(m.Iface); ok {
		if b.authorizedForGroup(watcherUID(req.conn), entry) {
			n := &notify.Notification{
				ID:         b.notifs.NextID(),
				Iface:      m.Iface,
				Pulse:      notify.Pulse{Code: m.Pulse.Code, Value: m.Pulse.Value},
				TargetNode: m.Channel.Node,
				TargetPid:  m.Channel.Pid,
				TargetChid: m.Channel.Chid,
				Kind:       notify.KindConnect,
			}
			b.deliverPulse(n)
			resp := wire.NotificationIDResponse{NotificationID: n.ID}
			return wire.OK, resp.Encode(), nil
		}
	}

	notifID := b.notifs.NextID()
	n := &notify.Notification{
		ID:         notifID,
		Iface:      m.Iface,
		Pulse:      notify.Pulse{Code: m.Pulse.Code, Value: m.Pulse.Value},
		TargetNode: m.Channel.Node,
		TargetPid:  m.Channel.Pid,
		TargetChid: m.Channel.Chid,
		WatcherUID: watcherUID(req.conn),
		Kind:       notify.KindConnect,
	}

	if b.adapter != nil && b.cfg.forwardable(m.Iface.Name) {
		b.foldServerAvailableUpstream(req.conn, n)
	} else {
		b.armLocal(req.conn, n)
	}

	resp := wire.NotificationIDResponse{NotificationID: notifID}
	return wire.OK, resp.Encode(), nil
}

// foldServerAvailableUpstream registers n against a shared proxy pool
// for its interface predicate, sending at most one upstream
// NOTIFY_SERVER_AVAILABLE_EX job no matter how many local
// notifications fold into it. n's pool id is assigned before it is
// armed, so the notification list indexes it under its pool from the
// moment it becomes visible to TriggerPool.
func (b *Broker) foldServerAvailableUpstream(c *conn, n *notify.Notification) {
	key := notify.PoolKey{Kind: notify.PoolKeyIface, Iface: n.Iface}
	entry, created := b.pools.GetOrCreate(key)
	n.PoolID = entry.PoolID
	b.armLocal(c, n)

	if !created {
		return
	}

	req := wire.NotifyServerAvailableExRequest{
		Version: wire.SBVersion{Major: wire.ProtocolMajor, Minor: wire.ProtocolMinor},
		Entries: []wire.NotifyServerAvailableExCookieEntry{
			{Cookie: entry.PoolID, Pulse: wire.Pulse{Code: n.Pulse.Code, Value: n.Pulse.Value}, Iface: n.Iface},
		},
	}
	b.pools.SetState(entry.PoolID, notify.StateConnecting)
	b.forwardJob(wire.CmdNotifyServerAvailableEx, req.Encode(), func(b *Broker, res federation.Result) {
		if res.Err != nil {
			return
		}
		var resp wire.NotifyServerAvailableExResponse
		for _, r := range decodeCookieResults(res.Body) {
			resp.Results = append(resp.Results, r)
		}
		for _, r := range resp.Results {
			if r.Cookie == entry.PoolID {
				b.pools.SetMasterNotifID(entry.PoolID, r.NotificationID)
				b.pools.SetState(entry.PoolID, notify.StateConnected)
			}
		}
	})
}

func (b *Broker) handleNotifyServerAvailableEx(req *request) (wire.Status, []byte, error) {
	var m wire.NotifyServerAvailableExRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}
	if !req.conn.isRemote {
		return wire.AccessDenied, nil, statusErrorf(wire.AccessDenied, "notify_server_available_ex: only allowed from a slave link")
	}

	resp := wire.NotifyServerAvailableExResponse{}
	for _, e := range m.Entries {
		notifID := b.notifs.NextID()
		n := &notify.Notification{
			ID:            notifID,
			MasterNotifID: e.Cookie,
			Iface:         e.Iface,
			Pulse:         notify.Pulse{Code: e.Pulse.Code, Value: e.Pulse.Value},
			TargetNode:    req.conn.peerPID,
			Kind:          notify.KindConnect,
		}
		if _, ok := b.registry.FindCompatibleServer(e.Iface); ok {
			b.deliverPulse(n)
			resp.Results = append(resp.Results, wire.NotifyServerAvailableExCookieResult{Cookie: e.Cookie, NotificationID: notifID})
			continue
		}
		b.notifs.Add(n)
		resp.Results = append(resp.Results, wire.NotifyServerAvailableExCookieResult{Cookie: e.Cookie, NotificationID: notifID})
	}

	return wire.OK, resp.Encode(), nil
}

func (b *Broker) handleNotifyServerDisconnect(req *request) (wire.Status, []byte, error) {
	var m wire.NotifyServerDisconnectRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}

	notifID := b.notifs.NextID()
	n := &notify.Notification{
		ID:          notifID,
		TargetParty: m.ServerID,
		Pulse:       notify.Pulse{Code: m.Pulse.Code, Value: m.Pulse.Value},
		WatcherUID:  watcherUID(req.conn),
		Kind:        notify.KindServerDisconnect,
	}

	if _, ok := b.registry.GetServerByID(m.ServerID); !ok {
		b.deliverPulse(n)
		resp := wire.NotificationIDResponse{NotificationID: notifID}
		return wire.OK, resp.Encode(), nil
	}

	b.armLocal(req.conn, n)
	resp := wire.NotificationIDResponse{NotificationID: notifID}
	return wire.OK, resp.Encode(), nil
}

func (b *Broker) handleNotifyClientDetach(req *request) (wire.Status, []byte, error) {
	var m wire.NotifyClientDetachRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}

	notifID := b.notifs.NextID()
	n := &notify.Notification{
		ID:          notifID,
		TargetParty: m.ClientID,
		Pulse:       notify.Pulse{Code: m.Pulse.Code, Value: m.Pulse.Value},
		WatcherUID:  watcherUID(req.conn),
		Kind:        notify.KindClientDetach,
	}

	if _, ok := b.registry.GetClientByID(m.ClientID); !ok {
		b.deliverPulse(n)
		resp := wire.NotificationIDResponse{NotificationID: notifID}
		return wire.OK, resp.Encode(), nil
	}

	b.armLocal(req.conn, n)
	resp := wire.NotificationIDResponse{NotificationID: notifID}
	return wire.OK, resp.Encode(), nil
}

func (b *Broker) handleClearNotification(req *request) (wire.Status, []byte, error) {
	var m wire.ClearNotificationRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}

	if b.removeListChange(m.NotificationID) {
		b.forgetOwner(m.NotificationID)
		return wire.OK, nil, nil
	}

	if n, ok := b.notifs.Remove(m.NotificationID); ok {
		b.forgetOwner(m.NotificationID)
		b.releasePool(n)
		return wire.OK, nil, nil
	}

	return wire.InvalidNotificationID, nil, nil
}

func (b *Broker) handleGetInterfaceList(req *request) (wire.Status, []byte, error) {
	var m wire.GetInterfaceListRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}

	entries := b.registry.ListServers(nil)
	if m.MaxCount > 0 && uint32(len(entries)) > m.MaxCount {
		entries = entries[:m.MaxCount]
	}

	resp := wire.InterfaceListResponse{Interfaces: make([]iface.Description, len(entries))}
	for i, e := range entries {
		resp.Interfaces[i] = e.Iface
	}
	return wire.OK, resp.Encode(), nil
}

func (b *Broker) handleMatchInterfaceList(req *request) (wire.Status, []byte, error) {
	var m wire.MatchInterfaceListRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}

	re, err := compilePattern(m.Pattern)
	if err != nil {
		return wire.RegularExpression, nil, err
	}

	entries := b.registry.ListServers(func(name string) bool { return re.MatchString(name) })
	if m.MaxCount > 0 && uint32(len(entries)) > m.MaxCount {
		entries = entries[:m.MaxCount]
	}

	resp := wire.InterfaceListResponse{Interfaces: make([]iface.Description, len(entries))}
	for i, e := range entries {
		resp.Interfaces[i] = e.Iface
	}
	return wire.OK, resp.Encode(), nil
}

func (b *Broker) handleNotifyInterfaceListChange(req *request) (wire.Status, []byte, error) {
	var m wire.NotifyInterfaceListChangeRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}

	n := &notify.Notification{
		ID:    b.notifs.NextID(),
		Pulse: notify.Pulse{Code: m.Pulse.Code, Value: m.Pulse.Value},
	}
	b.armListChange(req.conn, n)

	resp := wire.NotificationIDResponse{NotificationID: n.ID}
	return wire.OK, resp.Encode(), nil
}

func (b *Broker) handleNotifyInterfaceListMatch(req *request) (wire.Status, []byte, error) {
	var m wire.NotifyInterfaceListMatchRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}

	if _, err := compilePattern(m.Pattern); err != nil {
		return wire.RegularExpression, nil, err
	}

	n := &notify.Notification{
		ID:      b.notifs.NextID(),
		Pulse:   notify.Pulse{Code: m.Pulse.Code, Value: m.Pulse.Value},
		Pattern: m.Pattern,
	}
	b.armListChange(req.conn, n)

	resp := wire.NotificationIDResponse{NotificationID: n.ID}
	return wire.OK, resp.Encode(), nil
}

func (b *Broker) handleMasterPingID(req *request) (wire.Status, []byte, error) {
	var m wire.MasterPingIDRequest
	if err := m.Decode(req.body); err != nil {
		return wire.BadArgument, nil, err
	}
	if status, ok := checkVersion(m.Version); !ok {
		return status, nil, nil
	}

	req.conn.setExtendedID(m.ExtendedID)
	logger.Info("slave identified", logger.ExtendedID(m.ExtendedID), logger.ConnectionID(req.conn.id))
	return wire.OK, nil, nil
}

// dispatchTeardown releases every resource a dropped connection held:
// its registered servers (firing disconnect pulses and evicting
// dependent clients), its attached clients (firing detach pulses),
// and its armed notifications. Runs on the single dispatch goroutine
// like every other mutation.
func (b *Broker) dispatchTeardown(c *conn) {
	servers, clients, notifIDs := c.ocb.Drain()

	for _, serverID := range servers {
		entry, err := b.registry.UnregisterServer(serverID)
		if err != nil {
			continue
		}
		if n, ok := b.notifs.TriggerParty(entry.PartyID); ok {
			b.deliverPulse(n)
			b.forgetOwner(n.ID)
		}
		for _, clientID := range b.registry.ClientsOfServer(entry.PartyID) {
			if client, err := b.registry.UnregisterClient(clientID); err == nil {
				if n, ok := b.notifs.TriggerParty(client.ClientID); ok {
					b.deliverPulse(n)
					b.forgetOwner(n.ID)
				}
			}
		}
		b.fireListChange(entry.Iface.Name)
	}

	for _, clientID := range clients {
		client, err := b.registry.UnregisterClient(clientID)
		if err != nil {
			continue
		}
		if n, ok := b.notifs.TriggerParty(client.ClientID); ok {
			b.deliverPulse(n)
			b.forgetOwner(n.ID)
		}
	}

	for _, notifID := range notifIDs {
		if b.removeListChange(notifID) {
			continue
		}
		if n, ok := b.notifs.Remove(notifID); ok {
			b.releasePool(n)
		}
	}

	logger.Debug("connection torn down", logger.ConnectionID(c.id))
}
