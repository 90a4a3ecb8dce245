package registry

import (
	"testing"

	"github.com/marmos91/sbrokerd/internal/iface"
	"github.com/marmos91/sbrokerd/internal/party"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOCBDrain(t *testing.T) {
	ocb := NewOCB()
	serverID := party.ID{ExtendedID: 1000, LocalID: 500001}
	clientID := party.ID{ExtendedID: 1000, LocalID: 100001}

	ocb.AddServer(serverID)
	ocb.AddClient(clientID)
	ocb.AddNotification(7)

	servers, clients, notifications := ocb.Drain()
	assert.Equal(t, []party.ID{serverID}, servers)
	assert.Equal(t, []party.ID{clientID}, clients)
	assert.Equal(t, []uint64{7}, notifications)

	servers, clients, notifications = ocb.Drain()
	assert.Empty(t, servers)
	assert.Empty(t, clients)
	assert.Empty(t, notifications)
}

func TestOCBRemoveBeforeDrain(t *testing.T) {
	ocb := NewOCB()
	serverID := party.ID{ExtendedID: 1000, LocalID: 500001}
	ocb.AddServer(serverID)
	ocb.RemoveServer(serverID)

	servers, _, _ := ocb.Drain()
	assert.Empty(t, servers)
}

func TestRemoteServerCache(t *testing.T) {
	c := NewRemoteServerCache()
	d := iface.Description{Name: "fs.mount", Major: 1, Minor: 0}

	_, ok := c.Get(d)
	assert.False(t, ok)

	info := RemoteServerInfo{
		Channel:  party.Channel{Node: 1, Pid: 2, Chid: 3},
		ServerID: party.ID{ExtendedID: 1, LocalID: 500001},
	}
	c.Put(d, info)

	got, ok := c.Get(d)
	require.True(t, ok)
	assert.Equal(t, info, got)

	c.Invalidate(d)
	_, ok = c.Get(d)
	assert.False(t, ok)
}
