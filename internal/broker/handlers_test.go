package broker

import (
	"net"
	"testing"

	"github.com/marmos91/sbrokerd/internal/iface"
	"github.com/marmos91/sbrokerd/internal/party"
	"github.com/marmos91/sbrokerd/internal/registry"
	"github.com/marmos91/sbrokerd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T, isRemote bool) *conn {
	t.Helper()
	_, server := net.Pipe()
	t.Cleanup(func() { _ = server.Close() })
	return newConn(server, isRemote)
}

func TestRegisterInterfaceThenAttach(t *testing.T) {
	b := New(Config{ExtendedID: party.ExtendedIDSlave})
	d := iface.Description{Name: "fs.test", Major: 1, Minor: 0}

	status, body, err := b.route(&request{
		conn: newTestConn(t, false),
		cmd:  wire.CmdRegisterInterface,
		body: buildRegisterInterfaceBody(d, 7, 1, 100),
	})
	require.NoError(t, err)
	require.Equal(t, wire.OK, status)
	ids := decodeServerIDs(body)
	require.Len(t, ids, 1)
	serverID := ids[0]
	assert.Equal(t, party.ExtendedIDSlave, serverID.ExtendedID)

	status, body, err = b.route(&request{
		conn: newTestConn(t, false),
		cmd:  wire.CmdAttachInterface,
		body: buildAttachInterfaceBody(d),
	})
	require.NoError(t, err)
	require.Equal(t, wire.OK, status)
	ch, gotServerID, clientID := decodeAttachInterfaceResponse(body)
	assert.Equal(t, serverID, gotServerID)
	assert.Equal(t, uint32(1), ch.Chid)
	assert.Equal(t, uint32(100), ch.Pid)
	assert.NotZero(t, clientID.LocalID)
}

func TestAttachInterfaceUnknown(t *testing.T) {
	b := New(Config{})
	d := iface.Description{Name: "fs.missing", Major: 1, Minor: 0}

	status, _, err := b.route(&request{
		conn: newTestConn(t, false),
		cmd:  wire.CmdAttachInterface,
		body: buildAttachInterfaceBody(d),
	})
	require.NoError(t, err)
	assert.Equal(t, wire.UnknownInterface, status)
}

func TestAttachInterfaceGroupRestricted(t *testing.T) {
	b := New(Config{ExtendedID: party.ExtendedIDSlave})
	d := iface.Description{Name: "fs.restricted", Major: 1, Minor: 0}

	status, _, err := b.route(&request{
		conn: newTestConn(t, false),
		cmd:  wire.CmdRegisterInterfaceGroupID,
		body: buildRegisterInterfaceGroupIDBody(d, 1, 1, 100, 42),
	})
	require.NoError(t, err)
	require.Equal(t, wire.OK, status)

	unauthorized := newTestConn(t, false)
	unauthorized.peerUID = 1000
	unauthorized.peerGID = 99
	status, _, err = b.route(&request{conn: unauthorized, cmd: wire.CmdAttachInterface, body: buildAttachInterfaceBody(d)})
	require.Error(t, err)
	assert.Equal(t, wire.AccessDenied, status)

	authorized := newTestConn(t, false)
	authorized.peerUID = 1000
	authorized.peerGID = 42
	status, _, err = b.route(&request{conn: authorized, cmd: wire.CmdAttachInterface, body: buildAttachInterfaceBody(d)})
	require.NoError(t, err)
	assert.Equal(t, wire.OK, status)
}

func TestAttachInterfaceExtendedArmsNotificationWhenMissing(t *testing.T) {
	b := New(Config{})
	d := iface.Description{Name: "fs.pending", Major: 1, Minor: 0}

	status, body, err := b.route(&request{
		conn: newTestConn(t, false),
		cmd:  wire.CmdAttachInterfaceExtended,
		body: buildAttachInterfaceExtendedBody(wire.Pulse{Code: 1, Value: 2}, party.Channel{Node: localNode, Pid: 1, Chid: 2}, d),
	})
	require.NoError(t, err)
	require.Equal(t, wire.OK, status)
	_, _, _, notifID := decodeAttachInterfaceExtendedResponse(body)
	_, armed := b.notifOwners[notifID]
	assert.True(t, armed)
}

func TestAttachInterfaceExtendedArmsDisconnectNotificationWhenPresent(t *testing.T) {
	b := New(Config{ExtendedID: party.ExtendedIDSlave})
	d := iface.Description{Name: "fs.present", Major: 1, Minor: 0}

	_, _, err := b.route(&request{
		conn: newTestConn(t, false),
		cmd:  wire.CmdRegisterInterface,
		body: buildRegisterInterfaceBody(d, 1, 1, 100),
	})
	require.NoError(t, err)

	status, body, err := b.route(&request{
		conn: newTestConn(t, false),
		cmd:  wire.CmdAttachInterfaceExtended,
		body: buildAttachInterfaceExtendedBody(wire.Pulse{Code: 1, Value: 2}, party.Channel{}, d),
	})
	require.NoError(t, err)
	require.Equal(t, wire.OK, status)

	_, _, _, notifID := decodeAttachInterfaceExtendedResponse(body)
	assert.NotZero(t, notifID, "server-present branch must arm a disconnect notification, not leave the id zero")
	_, armed := b.notifOwners[notifID]
	assert.True(t, armed)
}

func TestAttachInterfaceExtendedUsesRemoteServerCacheWhenMissingLocally(t *testing.T) {
	b := New(Config{CacheEnabled: true, TreeMode: true})
	d := iface.Description{Name: "fs.remotecached", Major: 1, Minor: 0}
	cachedServerID := party.ID{ExtendedID: 77, LocalID: 3}
	b.remoteSrv.Put(d, registry.RemoteServerInfo{ServerID: cachedServerID, Channel: party.Channel{Node: 1, Pid: 2, Chid: 3}})

	status, body, err := b.route(&request{
		conn: newTestConn(t, false),
		cmd:  wire.CmdAttachInterfaceExtended,
		body: buildAttachInterfaceExtendedBody(wire.Pulse{Code: 1, Value: 2}, party.Channel{}, d),
	})
	require.NoError(t, err)
	require.Equal(t, wire.OK, status)

	_, gotServerID, _, notifID := decodeAttachInterfaceExtendedResponse(body)
	assert.Equal(t, cachedServerID, gotServerID)
	assert.NotZero(t, notifID)
	_, armed := b.notifOwners[notifID]
	assert.True(t, armed)
}

func TestRegisterInterfaceRejectsIncompatibleVersion(t *testing.T) {
	b := New(Config{})
	d := iface.Description{Name: "fs.version", Major: 1, Minor: 0}
	body := buildRegisterInterfaceBody(d, 1, 1, 100)
	body[0] = byte(wire.ProtocolMajor + 1)
	body[1] = 0

	status, _, err := b.route(&request{conn: newTestConn(t, false), cmd: wire.CmdRegisterInterface, body: body})
	require.NoError(t, err)
	assert.Equal(t, wire.BadFoundationVersion, status)
}

func TestRegisterInterfaceDeniedFromRemote(t *testing.T) {
	b := New(Config{})
	d := iface.Description{Name: "fs.remote", Major: 1, Minor: 0}

	status, _, err := b.route(&request{
		conn: newTestConn(t, true),
		cmd:  wire.CmdRegisterInterface,
		body: buildRegisterInterfaceBody(d, 1, 1, 100),
	})
	require.Error(t, err)
	assert.Equal(t, wire.AccessDenied, status)
}

func TestRegisterInterfaceExReusesDuplicateName(t *testing.T) {
	b := New(Config{ExtendedID: party.ExtendedIDSlave})
	d := iface.Description{Name: "fs.batch", Major: 1, Minor: 0}

	_, body, err := b.route(&request{
		conn: newTestConn(t, false),
		cmd:  wire.CmdRegisterInterfaceEx,
		body: buildRegisterInterfaceExBody(1, 1, 100, []iface.Description{d, d}),
	})
	require.NoError(t, err)
	ids := decodeServerIDs(body)
	require.Len(t, ids, 2)
	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, 1, b.registry.CountServers())
}

func TestUnregisterFiresDisconnectAndEvictsClients(t *testing.T) {
	b := New(Config{ExtendedID: party.ExtendedIDSlave})
	d := iface.Description{Name: "fs.eviction", Major: 1, Minor: 0}

	regConn := newTestConn(t, false)
	_, body, err := b.route(&request{conn: regConn, cmd: wire.CmdRegisterInterface, body: buildRegisterInterfaceBody(d, 1, 1, 100)})
	require.NoError(t, err)
	serverID := decodeServerIDs(body)[0]

	_, body, err = b.route(&request{conn: newTestConn(t, false), cmd: wire.CmdAttachInterface, body: buildAttachInterfaceBody(d)})
	require.NoError(t, err)
	_, _, clientID := decodeAttachInterfaceResponse(body)

	status, body, err := b.route(&request{
		conn: newTestConn(t, false),
		cmd:  wire.CmdNotifyServerDisconnect,
		body: buildNotifyServerDisconnectBody(serverID, wire.Pulse{Code: 3, Value: 4}),
	})
	require.NoError(t, err)
	require.Equal(t, wire.OK, status)
	notifID := decodeNotificationIDResponse(body)
	_, armed := b.notifOwners[notifID]
	require.True(t, armed)

	status, _, err = b.route(&request{conn: regConn, cmd: wire.CmdUnregisterInterface, body: buildUnregisterInterfaceBody(serverID)})
	require.NoError(t, err)
	require.Equal(t, wire.OK, status)

	_, stillArmed := b.notifOwners[notifID]
	assert.False(t, stillArmed)
	_, serverExists := b.registry.GetServerByID(serverID)
	assert.False(t, serverExists)
	_, clientExists := b.registry.GetClientByID(clientID)
	assert.False(t, clientExists)
}

func TestDispatchTeardownDrainsConnection(t *testing.T) {
	b := New(Config{ExtendedID: party.ExtendedIDSlave})
	c := newTestConn(t, false)
	d := iface.Description{Name: "fs.teardown", Major: 1, Minor: 0}

	_, body, err := b.route(&request{conn: c, cmd: wire.CmdRegisterInterface, body: buildRegisterInterfaceBody(d, 1, 1, 100)})
	require.NoError(t, err)
	serverID := decodeServerIDs(body)[0]

	b.dispatchTeardown(c)

	_, ok := b.registry.GetServerByID(serverID)
	assert.False(t, ok)
}

func TestGetAndMatchInterfaceList(t *testing.T) {
	b := New(Config{ExtendedID: party.ExtendedIDSlave})
	c := newTestConn(t, false)
	names := []string{"fs.alpha", "fs.beta", "net.gamma"}
	for _, name := range names {
		_, _, err := b.route(&request{
			conn: c, cmd: wire.CmdRegisterInterface,
			body: buildRegisterInterfaceBody(iface.Description{Name: name, Major: 1, Minor: 0}, 1, 1, 100),
		})
		require.NoError(t, err)
	}

	_, body, err := b.route(&request{conn: c, cmd: wire.CmdGetInterfaceList, body: buildGetInterfaceListBody(0)})
	require.NoError(t, err)
	var list wire.InterfaceListResponse
	require.NoError(t, list.Decode(body))
	assert.Len(t, list.Interfaces, 3)

	status, body, err := b.route(&request{conn: c, cmd: wire.CmdMatchInterfaceList, body: buildMatchInterfaceListBody(0, `^fs\.`)})
	require.NoError(t, err)
	require.Equal(t, wire.OK, status)
	list = wire.InterfaceListResponse{}
	require.NoError(t, list.Decode(body))
	assert.Len(t, list.Interfaces, 2)
}

func TestMatchInterfaceListBadPattern(t *testing.T) {
	b := New(Config{})
	status, _, err := b.route(&request{
		conn: newTestConn(t, false),
		cmd:  wire.CmdMatchInterfaceList,
		body: buildMatchInterfaceListBody(0, "[invalid"),
	})
	require.Error(t, err)
	assert.Equal(t, wire.RegularExpression, status)
}

func TestNotifyServerAvailableExRequiresRemoteLink(t *testing.T) {
	b := New(Config{})
	req := wire.NotifyServerAvailableExRequest{Version: testVersion()}
	status, _, err := b.route(&request{conn: newTestConn(t, false), cmd: wire.CmdNotifyServerAvailableEx, body: req.Encode()})
	require.Error(t, err)
	assert.Equal(t, wire.AccessDenied, status)
}

func TestMasterPingIDSetsExtendedID(t *testing.T) {
	b := New(Config{})
	c := newTestConn(t, true)
	req := wire.MasterPingIDRequest{Version: testVersion(), ExtendedID: 4242}

	status, _, err := b.route(&request{conn: c, cmd: wire.CmdMasterPingID, body: req.Encode()})
	require.NoError(t, err)
	require.Equal(t, wire.OK, status)

	gotID, isSlave := c.getExtendedID()
	assert.True(t, isSlave)
	assert.Equal(t, uint32(4242), gotID)
}

func TestClearNotificationRemovesListChange(t *testing.T) {
	b := New(Config{})
	c := newTestConn(t, false)

	status, body, err := b.route(&request{
		conn: c, cmd: wire.CmdNotifyInterfaceListChange,
		body: buildNotifyInterfaceListChangeBody(wire.Pulse{Code: 1, Value: 2}),
	})
	require.NoError(t, err)
	require.Equal(t, wire.OK, status)
	notifID := decodeNotificationIDResponse(body)
	require.Len(t, b.listChangeNotifs, 1)

	status, _, err = b.route(&request{conn: c, cmd: wire.CmdClearNotification, body: buildClearNotificationBody(notifID)})
	require.NoError(t, err)
	assert.Equal(t, wire.OK, status)
	assert.Len(t, b.listChangeNotifs, 0)
}

func TestClearNotificationUnknownID(t *testing.T) {
	b := New(Config{})
	status, _, err := b.route(&request{conn: newTestConn(t, false), cmd: wire.CmdClearNotification, body: buildClearNotificationBody(999999)})
	require.NoError(t, err)
	assert.Equal(t, wire.InvalidNotificationID, status)
}

func TestDetachInterfaceUnknownClient(t *testing.T) {
	b := New(Config{})
	status, _, err := b.route(&request{
		conn: newTestConn(t, false),
		cmd:  wire.CmdDetachInterface,
		body: buildDetachInterfaceBody(party.ID{ExtendedID: 1, LocalID: 1}),
	})
	require.Error(t, err)
	assert.Equal(t, wire.InvalidClientID, status)
}

func TestUnregisterInterfaceUnknownServer(t *testing.T) {
	b := New(Config{})
	status, _, err := b.route(&request{
		conn: newTestConn(t, false),
		cmd:  wire.CmdUnregisterInterface,
		body: buildUnregisterInterfaceBody(party.ID{ExtendedID: 1, LocalID: 1}),
	})
	require.Error(t, err)
	assert.Equal(t, wire.InvalidServerID, status)
}

func TestRegisterMasterInterfaceExRejectsSelfExtendedID(t *testing.T) {
	b := New(Config{ExtendedID: 1000})
	d := iface.Description{Name: "fs.loop", Major: 1, Minor: 0}
	req := wire.RegisterMasterInterfaceExRequest{
		Version: testVersion(),
		Entries: []wire.RegisterMasterInterfaceExEntry{
			{ServerID: party.ID{ExtendedID: 1000, LocalID: 77}, Iface: d, Pid: 1, Chid: 1},
		},
	}

	status, body, err := b.route(&request{conn: newTestConn(t, true), cmd: wire.CmdRegisterMasterInterfaceEx, body: req.Encode()})
	require.NoError(t, err)
	require.Equal(t, wire.OK, status)
	ids := decodeServerIDs(body)
	require.Len(t, ids, 1)
	assert.Equal(t, uint32(77), ids[0].ExtendedID)
	assert.Equal(t, ^uint32(0), ids[0].LocalID)
	assert.Equal(t, 0, b.registry.CountServers())
}

func TestRegisterMasterInterfaceExDeniedFromLocal(t *testing.T) {
	b := New(Config{})
	req := wire.RegisterMasterInterfaceExRequest{Version: testVersion()}
	status, _, err := b.route(&request{conn: newTestConn(t, false), cmd: wire.CmdRegisterMasterInterfaceEx, body: req.Encode()})
	require.Error(t, err)
	assert.Equal(t, wire.AccessDenied, status)
}

func TestRegisterOneAssignsConsistentID(t *testing.T) {
	b := New(Config{ExtendedID: party.ExtendedIDSlave})
	c := newTestConn(t, false)
	d := iface.Description{Name: "fs.consistent", Major: 1, Minor: 0}

	entry, status, err := b.registerOne(&request{conn: c}, d, 1, 1, 100, registry.UnknownGroupID)
	require.NoError(t, err)
	require.Equal(t, wire.OK, status)
	assert.Equal(t, entry.ID, entry.PartyID)
}
