package broker

import (
	"encoding/binary"
	"fmt"
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

// armLocal records ownership of a locally-armed notification so it can
// be dropped from its connection's OCB once it fires or is explicitly
// cleared, and adds it to the notification list.
func (b *Broker) armLocal(c *conn, n *notify.Notification) {
	b.notifs.Add(n)
	c.ocb.AddNotification(n.ID)
	b.notifOwners[n.ID] = c
}

// fireAndForget triggers every notification a predicate-based trigger
// call returns, delivering a pulse for each and forgetting local
// ownership.
func (b *Broker) fireAndForget(fired []*notify.Notification) {
	for _, n := range fired {
		b.deliverPulse(n)
		b.forgetOwner(n.ID)
	}
}

func (b *Broker) forgetOwner(notifID uint64) {
	if c, ok := b.notifOwners[notifID]; ok {
		c.ocb.RemoveNotification(notifID)
		delete(b.notifOwners, notifID)
	}
}

// deliverPulse opens or reuses the channel for n's target and writes
// its pulse. A failure is logged and the pulse dropped, per the
// fire-and-forget delivery contract; the notification is consumed
// either way.
func (b *Broker) deliverPulse(n *notify.Notification) {
	b.metrics.RecordNotification(n.Kind.String())

	key, err := b.channels.Attach(n.TargetNode, n.TargetPid, n.TargetChid)
	if err != nil {
		logger.Warn("pulse channel unavailable", logger.NotificationID(n.ID), logger.Err(err))
		return
	}
	defer b.channels.Detach(key)

	if err := b.channels.Send(key, n.Pulse.Code, n.Pulse.Value); err != nil {
		logger.Warn("pulse delivery failed", logger.NotificationID(n.ID), logger.Err(err))
	}
}

// fireServerAvailable triggers every armed connect-notification whose
// interface name and version are satisfied by entry, honoring
// group-restricted delivery.
func (b *Broker) fireServerAvailable(entry *registry.ServerEntry) {
	fired := b.notifs.TriggerIface(entry.Iface, func(n *notify.Notification) bool {
		return b.authorizedForGroup(n.WatcherUID, entry)
	})
	b.fireAndForget(fired)
}

func (b *Broker) authorizedForGroup(watcherUID uint32, entry *registry.ServerEntry) bool {
	if !entry.GroupRestricted() {
		return true
	}
	if watcherUID == notify.UnknownUID {
		return false
	}
	return watcherUID == 0 || watcherUID == entry.GroupID
}

// fireListChange triggers every persistent interface-list-change
// notification whose optional pattern matches at least one of names
// (or is unset), delivering one pulse per notification. Called once
// per batch of registry mutations induced by a single request.
func (b *Broker) fireListChange(names ...string) {
	if len(names) == 0 {
		return
	}
	for _, n := range b.listChangeNotifs {
		if n.Pattern != "" {
			re, err := compilePattern(n.Pattern)
			if err != nil || !matchesAny(re, names) {
				continue
			}
		}
		b.deliverPulse(n)
	}
}

func matchesAny(re *regexp.Regexp, names []string) bool {
	for _, name := range names {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// armListChange registers a persistent list-change notification; it
// is never removed by delivery, only by CLEAR_NOTIFICATION or
// connection teardown.
func (b *Broker) armListChange(c *conn, n *notify.Notification) {
	c.ocb.AddNotification(n.ID)
	b.notifOwners[n.ID] = c
	b.listChangeNotifs = append(b.listChangeNotifs, n)
}

func (b *Broker) removeListChange(id uint64) bool {
	for i, n := range b.listChangeNotifs {
		if n.ID == id {
			b.listChangeNotifs = append(b.listChangeNotifs[:i], b.listChangeNotifs[i+1:]...)
			return true
		}
	}
	return false
}

// peerIP4 extracts the remote IPv4 address of a TCP connection as a
// packed uint32, used for the slave-peer IP-translation rule.
func peerIP4(c *conn) (uint32, error) {
	tcpAddr, ok := c.raw.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("connection has no TCP peer address")
	}
	ip4 := tcpAddr.IP.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("peer address %s is not IPv4", tcpAddr.IP)
	}
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3]), nil
}

// rewritePid applies the IP_TRANSLATE rule: a slave that registered an
// interface ending in "_tcp" from its own loopback address gets that
// pid rewritten to its peer IP as seen by the master.
func rewritePid(d iface.Description, pid uint32, c *conn) uint32 {
	if !c.isRemote || pid != party.LoopbackPid || !iface.IsForwardableTCPName(d.Name) {
		return pid
	}
	if rewritten, err := peerIP4(c); err == nil {
		return rewritten
	}
	return pid
}

// mintClientID implements the client-id allocation rule verbatim,
// collision risk and all: in tree mode the id is minted from this
// broker's own extendedId; otherwise it inherits the resolved
// server's extendedId, which can collide if two masters are
// accidentally peered.
func (b *Broker) mintClientID(entry *registry.ServerEntry) party.ID {
	extID := entry.PartyID.ExtendedID
	if b.cfg.TreeMode {
		extID = b.cfg.ExtendedID
	}
	return party.ID{ExtendedID: extID, LocalID: b.registry.NextClientLocalID()}
}

// forwardJob enqueues a job for the master adapter's worker, waking it
// immediately, and optionally schedules onDone to run back on the
// dispatch goroutine once the job resolves. A nil adapter (no master
// configured) makes this a no-op.
func (b *Broker) forwardJob(cmd wire.Command, body []byte, onDone func(b *Broker, res federation.Result)) {
	if b.adapter == nil {
		return
	}
	b.metrics.RecordForward(cmd.String())
	job := federation.NewJob(cmd, body)
	b.adapter.Eval(job)
	b.worker.Trigger()

	if onDone != nil {
		go func() {
			res := <-job.Done
			b.deferLater(func(b *Broker) { onDone(b, res) })
		}()
	}
}

// foldServerDisconnectUpstream registers n against a shared proxy pool
// keyed on the remote server's party id, so an upstream master is
// asked to watch a given remote server's disconnect at most once no
// matter how many local watchers fold into it, then arms it. The pool
// id is assigned before n is armed, so the notification list indexes
// it under its pool from the moment it becomes visible to TriggerPool.
func (b *Broker) foldServerDisconnectUpstream(c *conn, n *notify.Notification) {
	key := notify.PoolKey{Kind: notify.PoolKeyServer, ServerID: n.TargetParty}
	entry, created := b.pools.GetOrCreate(key)
	n.PoolID = entry.PoolID
	b.armLocal(c, n)

	if !created || b.adapter == nil {
		return
	}

	req := wire.NotifyServerDisconnectRequest{
		Version:  wire.SBVersion{Major: wire.ProtocolMajor, Minor: wire.ProtocolMinor},
		ServerID: n.TargetParty,
		Pulse:    wire.Pulse{Code: n.Pulse.Code, Value: n.Pulse.Value},
	}
	b.pools.SetState(entry.PoolID, notify.StateMonitorDisconnect)
	b.forwardJob(wire.CmdNotifyServerDisconnect, req.Encode(), func(b *Broker, res federation.Result) {
		if res.Err != nil {
			return
		}
		var resp wire.NotificationIDResponse
		if err := resp.Decode(res.Body); err == nil {
			b.pools.SetMasterNotifID(entry.PoolID, resp.NotificationID)
		}
	})
}

// releasePool drops n's reference on its proxy pool, if any. When that
// was the last reference, it forwards CLEAR_NOTIFICATION upstream for
// the pool's master-side notification id so the master stops tracking
// it too.
func (b *Broker) releasePool(n *notify.Notification) {
	if n.PoolID == 0 {
		return
	}
	entry, destroyed := b.pools.Release(n.PoolID)
	if !destroyed || entry.MasterNotifID == 0 {
		return
	}
	req := wire.ClearNotificationRequest{
		Version:        wire.SBVersion{Major: wire.ProtocolMajor, Minor: wire.ProtocolMinor},
		NotificationID: entry.MasterNotifID,
	}
	b.forwardJob(wire.CmdClearNotification, req.Encode(), nil)
}

// decodeServerIDs parses a ServerIDListResponse body: a flat run of
// {extendedId, localId} uint32 pairs, one per registered interface.
func decodeServerIDs(body []byte) []party.ID {
	const idSize = 8
	ids := make([]party.ID, 0, len(body)/idSize)
	for off := 0; off+idSize <= len(body); off += idSize {
		ids = append(ids, party.ID{
			ExtendedID: binary.LittleEndian.Uint32(body[off : off+4]),
			LocalID:    binary.LittleEndian.Uint32(body[off+4 : off+8]),
		})
	}
	return ids
}

// batchServerEntries splits entries into chunks of at most size, per the ≤32
// upstream batching rule.
func batchServerEntries(entries []*registry.ServerEntry, size int) [][]*registry.ServerEntry {
	var out [][]*registry.ServerEntry
	for len(entries) > 0 {
		n := size
		if n > len(entries) {
			n = len(entries)
		}
		out = append(out, entries[:n])
		entries = entries[n:]
	}
	return out
}

const maxForwardBatch = 32

// forwardRegister forwards newly registered entries upstream in
// batches of at most 32, as REGISTER_MASTER_INTERFACE_EX jobs.
func (b *Broker) forwardRegister(entries []*registry.ServerEntry) {
	if b.adapter == nil || len(entries) == 0 {
		return
	}
	for _, batch := range batchServerEntries(entries, maxForwardBatch) {
		req := wire.RegisterMasterInterfaceExRequest{
			Version: wire.SBVersion{Major: wire.ProtocolMajor, Minor: wire.ProtocolMinor},
		}
		for _, e := range batch {
			req.Entries = append(req.Entries, wire.RegisterMasterInterfaceExEntry{
				ImplVersion: e.ImplVersion,
				Chid:        e.Chid,
				Pid:         e.Pid,
				Node:        e.Node,
				ServerID:    e.PartyID,
				Iface:       e.Iface,
			})
		}
		entriesCopy := batch
		b.forwardJob(wire.CmdRegisterMasterInterfaceEx, req.Encode(), func(b *Broker, res federation.Result) {
			if res.Err != nil {
				logger.Warn("forward register failed", logger.Err(res.Err))
				return
			}
			ids := decodeServerIDs(res.Body)
			for i := 0; i < len(ids) && i < len(entriesCopy); i++ {
				entriesCopy[i].MasterID = ids[i].LocalID
			}
		})
	}
}
