package registry

import (
	"testing"

	"github.com/marmos91/sbrokerd/internal/iface"
	"github.com/marmos91/sbrokerd/internal/party"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySeedsIDGenerators(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, uint32(500001), r.NextServerLocalID())
	assert.Equal(t, uint32(500002), r.NextServerLocalID())
	assert.Equal(t, uint32(100001), r.NextClientLocalID())
}

func TestRegisterServer(t *testing.T) {
	r := NewRegistry()
	entry := &ServerEntry{
		PartyID: party.ID{ExtendedID: party.ExtendedIDSlave, LocalID: r.NextServerLocalID()},
		Iface:   iface.Description{Name: "fs.mount", Major: 1, Minor: 0},
	}
	require.NoError(t, r.RegisterServer(entry))
	assert.Equal(t, 1, r.CountServers())

	got, ok := r.GetServerByID(entry.PartyID)
	require.True(t, ok)
	assert.Equal(t, entry, got)
}

func TestRegisterServerRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	d := iface.Description{Name: "fs.mount", Major: 1, Minor: 0}
	require.NoError(t, r.RegisterServer(&ServerEntry{
		PartyID: party.ID{ExtendedID: 1000, LocalID: r.NextServerLocalID()},
		Iface:   d,
	}))

	err := r.RegisterServer(&ServerEntry{
		PartyID: party.ID{ExtendedID: 1000, LocalID: r.NextServerLocalID()},
		Iface:   d,
	})
	assert.Error(t, err)
}

func TestUnregisterServer(t *testing.T) {
	r := NewRegistry()
	id := party.ID{ExtendedID: 1000, LocalID: r.NextServerLocalID()}
	require.NoError(t, r.RegisterServer(&ServerEntry{
		PartyID: id,
		Iface:   iface.Description{Name: "fs.mount", Major: 1, Minor: 0},
	}))

	entry, err := r.UnregisterServer(id)
	require.NoError(t, err)
	assert.Equal(t, "fs.mount", entry.Iface.Name)
	assert.Equal(t, 0, r.CountServers())

	_, err = r.UnregisterServer(id)
	assert.Error(t, err)
}

func TestFindCompatibleServer(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterServer(&ServerEntry{
		PartyID: party.ID{ExtendedID: 1000, LocalID: r.NextServerLocalID()},
		Iface:   iface.Description{Name: "fs.mount", Major: 1, Minor: 2},
	}))

	t.Run("compatible minor downgrade", func(t *testing.T) {
		entry, ok := r.FindCompatibleServer(iface.Description{Name: "fs.mount", Major: 1, Minor: 0})
		require.True(t, ok)
		assert.Equal(t, uint16(2), entry.Iface.Minor)
	})

	t.Run("incompatible minor upgrade", func(t *testing.T) {
		_, ok := r.FindCompatibleServer(iface.Description{Name: "fs.mount", Major: 1, Minor: 5})
		assert.False(t, ok)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, ok := r.FindCompatibleServer(iface.Description{Name: "fs.other", Major: 1, Minor: 0})
		assert.False(t, ok)
	})
}

func TestGroupRestricted(t *testing.T) {
	open := &ServerEntry{GroupID: UnknownGroupID}
	assert.False(t, open.GroupRestricted())

	restricted := &ServerEntry{GroupID: 42}
	assert.True(t, restricted.GroupRestricted())
}

func TestListServersSortedByName(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mu"} {
		require.NoError(t, r.RegisterServer(&ServerEntry{
			PartyID: party.ID{ExtendedID: 1000, LocalID: r.NextServerLocalID()},
			Iface:   iface.Description{Name: name, Major: 1, Minor: 0},
		}))
	}

	servers := r.ListServers(nil)
	require.Len(t, servers, 3)
	assert.Equal(t, []string{"alpha", "mu", "zeta"}, []string{
		servers[0].Iface.Name, servers[1].Iface.Name, servers[2].Iface.Name,
	})
}

func TestListServersFiltersByMatch(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"fs.mount", "fs.read", "net.listen"} {
		require.NoError(t, r.RegisterServer(&ServerEntry{
			PartyID: party.ID{ExtendedID: 1000, LocalID: r.NextServerLocalID()},
			Iface:   iface.Description{Name: name, Major: 1, Minor: 0},
		}))
	}

	servers := r.ListServers(func(name string) bool {
		return len(name) >= 3 && name[:3] == "fs."
	})
	assert.Len(t, servers, 2)
}

func TestClientLifecycle(t *testing.T) {
	r := NewRegistry()
	clientID := party.ID{ExtendedID: 1000, LocalID: r.NextClientLocalID()}
	r.RegisterClient(&ClientEntry{ClientID: clientID, ServerID: party.ID{ExtendedID: 1000, LocalID: 500001}})
	assert.Equal(t, 1, r.CountClients())

	got, ok := r.GetClientByID(clientID)
	require.True(t, ok)
	assert.Equal(t, clientID, got.ClientID)

	_, err := r.UnregisterClient(clientID)
	require.NoError(t, err)
	assert.Equal(t, 0, r.CountClients())

	_, err = r.UnregisterClient(clientID)
	assert.Error(t, err)
}
