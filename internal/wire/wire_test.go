package wire

import (
	"bytes"
	"testing"

	"github.com/marmos91/sbrokerd/internal/iface"
	"github.com/marmos91/sbrokerd/internal/party"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, WriteRequest(&buf, CmdAttachInterface, body))

	cmd, got, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdAttachInterface, cmd)
	assert.Equal(t, body, got)
}

func TestResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte{0xaa, 0xbb}
	require.NoError(t, WriteResponse(&buf, UnknownInterface, body))

	status, got, err := ReadResponse(&buf)
	require.NoError(t, err)
	assert.Equal(t, UnknownInterface, status)
	assert.Equal(t, body, got)
}

func TestReadRequestRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0, 8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	_, _, err := ReadRequest(&buf)
	assert.Error(t, err)
}

func TestReadRequestRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	hdr := make([]byte, envelopeSize)
	writeEnvelopeHeader(hdr, MaxFrameSize+1)
	buf.Write(hdr)
	_, _, err := ReadRequest(&buf)
	assert.Error(t, err)
}

func TestAuthPreambleRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAuthPreamble(&buf, 4242))
	pid, err := ReadAuthPreamble(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(4242), pid)
}

func TestAuthPreambleRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("XXXX")
	buf.Write([]byte{0, 0, 0, 0})
	_, err := ReadAuthPreamble(&buf)
	assert.Error(t, err)
}

func TestRegisterInterfaceRequestDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, buf.WriteByte(0)) // placeholder, overwritten below
	buf.Reset()

	body := make([]byte, 0, ifaceWireSize+16)
	versionBuf := make([]byte, 4)
	_ = encodeVersion(versionBuf, SBVersion{Major: 1, Minor: 0})
	body = append(body, versionBuf...)

	ifaceBuf := make([]byte, ifaceWireSize)
	_ = encodeIface(ifaceBuf, iface.Description{Name: "fs.mount", Major: 1, Minor: 2})
	body = append(body, ifaceBuf...)

	tail := make([]byte, 12)
	body = append(body, tail...)

	var req RegisterInterfaceRequest
	require.NoError(t, req.Decode(body))
	assert.Equal(t, SBVersion{Major: 1, Minor: 0}, req.Version)
	assert.Equal(t, "fs.mount", req.Iface.Name)
	assert.Equal(t, uint16(1), req.Iface.Major)
	assert.Equal(t, uint16(2), req.Iface.Minor)
}

func TestServerIDListResponseEncode(t *testing.T) {
	resp := ServerIDListResponse{IDs: []party.ID{
		{ExtendedID: 1, LocalID: 500001},
		{ExtendedID: 1, LocalID: 500002},
	}}
	buf := resp.Encode()
	assert.Len(t, buf, 2*partyWireSize)

	id, n, err := decodeParty(buf)
	require.NoError(t, err)
	assert.Equal(t, party.ID{ExtendedID: 1, LocalID: 500001}, id)
	id2, _, err := decodeParty(buf[n:])
	require.NoError(t, err)
	assert.Equal(t, party.ID{ExtendedID: 1, LocalID: 500002}, id2)
}

func TestAttachInterfaceExtendedResponseEncode(t *testing.T) {
	resp := AttachInterfaceExtendedResponse{
		Channel:        party.Channel{Node: 0, Pid: 99, Chid: 1},
		ServerID:       party.ID{ExtendedID: 1, LocalID: 500001},
		ClientID:       party.ID{ExtendedID: 1000, LocalID: 100001},
		NotificationID: 7,
	}
	buf := resp.Encode()
	assert.Len(t, buf, channelWireSize+partyWireSize*2+8)
}

func TestNotifyServerAvailableExRoundTrip(t *testing.T) {
	req := NotifyServerAvailableExRequest{
		Version: SBVersion{Major: 1, Minor: 0},
		Entries: []NotifyServerAvailableExCookieEntry{
			{Cookie: 1, Pulse: Pulse{Code: 10, Value: 20}, Iface: iface.Description{Name: "svc", Major: 1, Minor: 0}},
			{Cookie: 2, Pulse: Pulse{Code: 11, Value: 21}, Iface: iface.Description{Name: "svc2", Major: 2, Minor: 1}},
		},
	}
	body := req.Encode()

	var got NotifyServerAvailableExRequest
	require.NoError(t, got.Decode(body))
	assert.Equal(t, req.Version, got.Version)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, uint64(1), got.Entries[0].Cookie)
	assert.Equal(t, "svc2", got.Entries[1].Iface.Name)
}

func TestInterfaceListResponseRoundTrip(t *testing.T) {
	resp := InterfaceListResponse{Interfaces: []iface.Description{
		{Name: "a", Major: 1, Minor: 0},
		{Name: "b", Major: 2, Minor: 3},
	}}
	body := resp.Encode()

	var got InterfaceListResponse
	require.NoError(t, got.Decode(body))
	assert.Equal(t, resp.Interfaces, got.Interfaces)
}

func TestMatchInterfaceListRequestDecode(t *testing.T) {
	versionBuf := make([]byte, 4)
	_ = encodeVersion(versionBuf, SBVersion{Major: 1, Minor: 0})
	body := append(versionBuf, 0, 0, 0, 10)
	body = append(body, []byte("^fs\\..*$")...)

	var req MatchInterfaceListRequest
	require.NoError(t, req.Decode(body))
	assert.Equal(t, "^fs\\..*$", req.Pattern)
}

func TestMasterPingIDRoundTrip(t *testing.T) {
	req := MasterPingIDRequest{Version: SBVersion{Major: 1, Minor: 0}, ExtendedID: 7}
	body := req.Encode()

	var got MasterPingIDRequest
	require.NoError(t, got.Decode(body))
	assert.Equal(t, uint32(7), got.ExtendedID)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "REGISTER_INTERFACE", CmdRegisterInterface.String())
	assert.Equal(t, "MASTER_PING_ID", CmdMasterPingID.String())
	assert.Equal(t, "UNKNOWN_COMMAND", Command(9999).String())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "OK", OK.String())
	assert.Equal(t, "InternalError", InternalError.String())
}

func TestSBVersionCompatible(t *testing.T) {
	assert.True(t, SBVersion{Major: ProtocolMajor, Minor: 5}.Compatible())
	assert.False(t, SBVersion{Major: ProtocolMajor + 1, Minor: 0}.Compatible())
}
