package federation

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/marmos91/sbrokerd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMaster accepts one connection, validates the AUTH preamble and
// MASTER_PING_ID handshake, then echoes OK to every subsequent
// request.
func fakeMaster(t *testing.T) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		if _, err := wire.ReadAuthPreamble(conn); err != nil {
			return
		}
		cmd, _, err := wire.ReadRequest(conn)
		if err != nil || cmd != wire.CmdMasterPingID {
			return
		}
		if err := wire.WriteResponse(conn, wire.OK, nil); err != nil {
			return
		}

		for {
			cmd, _, err := wire.ReadRequest(conn)
			if err != nil {
				return
			}
			_ = cmd
			if err := wire.WriteResponse(conn, wire.OK, nil); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestAdapterConnect(t *testing.T) {
	addr, stop := fakeMaster(t)
	defer stop()

	a := NewAdapter(addr, 1000)
	require.NoError(t, a.Connect(context.Background()))
	assert.True(t, a.IsConnected())

	a.Disconnect()
	assert.False(t, a.IsConnected())
}

func TestAdapterSendPing(t *testing.T) {
	addr, stop := fakeMaster(t)
	defer stop()

	a := NewAdapter(addr, 1000)
	require.NoError(t, a.Connect(context.Background()))
	defer a.Disconnect()

	assert.NoError(t, a.SendPing())
}

func TestAdapterExecutePending(t *testing.T) {
	addr, stop := fakeMaster(t)
	defer stop()

	a := NewAdapter(addr, 1000)
	require.NoError(t, a.Connect(context.Background()))
	defer a.Disconnect()

	job := NewJob(wire.CmdNotifyServerAvailable, nil)
	a.Eval(job)

	ok := a.ExecutePending()
	assert.True(t, ok)

	select {
	case res := <-job.Done:
		assert.NoError(t, res.Err)
		assert.Equal(t, wire.OK, res.Status)
	case <-time.After(time.Second):
		t.Fatal("job never completed")
	}
}

func TestAdapterRemovePending(t *testing.T) {
	a := NewAdapter("127.0.0.1:1", 1000)
	job := NewJob(wire.CmdNotifyServerAvailable, nil)
	a.Eval(job)

	a.RemovePending()

	select {
	case res := <-job.Done:
		assert.Error(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("job never completed")
	}
}

func TestNormalizeListStatus(t *testing.T) {
	assert.Equal(t, wire.OK, normalizeListStatus(wire.Status(-5)))
	assert.Equal(t, wire.UnknownInterface, normalizeListStatus(wire.UnknownInterface))
}
