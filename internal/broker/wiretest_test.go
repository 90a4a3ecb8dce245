package broker

import (
	"encoding/binary"

	"github.com/marmos91/sbrokerd/internal/iface"
	"github.com/marmos91/sbrokerd/internal/party"
	"github.com/marmos91/sbrokerd/internal/wire"
)

// The handlers under test only expose Decode on most request bodies
// (a real client encodes them, this broker only ever receives them),
// so these helpers hand-encode request bytes the way a client would,
// matching the layout in wire/codec.go and wire/messages.go exactly.

func testVersion() wire.SBVersion {
	return wire.SBVersion{Major: wire.ProtocolMajor, Minor: wire.ProtocolMinor}
}

func putVersion(buf []byte, v wire.SBVersion) {
	binary.LittleEndian.PutUint16(buf[0:2], v.Major)
	binary.LittleEndian.PutUint16(buf[2:4], v.Minor)
}

func putIface(buf []byte, d iface.Description) {
	copy(buf[0:256], d.Name)
	binary.LittleEndian.PutUint16(buf[256:258], d.Major)
	binary.LittleEndian.PutUint16(buf[258:260], d.Minor)
}

func putChannel(buf []byte, c party.Channel) {
	binary.LittleEndian.PutUint32(buf[0:4], c.Node)
	binary.LittleEndian.PutUint32(buf[4:8], c.Pid)
	binary.LittleEndian.PutUint32(buf[8:12], c.Chid)
}

func putPulse(buf []byte, p wire.Pulse) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.Code))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.Value))
}

func putParty(buf []byte, id party.ID) {
	binary.LittleEndian.PutUint32(buf[0:4], id.ExtendedID)
	binary.LittleEndian.PutUint32(buf[4:8], id.LocalID)
}

const (
	testIfaceSize   = 260
	testChannelSize = 12
	testPulseSize   = 8
	testPartySize   = 8
)

func buildRegisterInterfaceBody(d iface.Description, implVersion, chid, pid uint32) []byte {
	buf := make([]byte, 4+testIfaceSize+12)
	putVersion(buf, testVersion())
	putIface(buf[4:], d)
	off := 4 + testIfaceSize
	binary.LittleEndian.PutUint32(buf[off:off+4], implVersion)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], chid)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], pid)
	return buf
}

func buildRegisterInterfaceGroupIDBody(d iface.Description, implVersion, chid, pid, groupID uint32) []byte {
	base := buildRegisterInterfaceBody(d, implVersion, chid, pid)
	buf := make([]byte, len(base)+4)
	copy(buf, base)
	binary.LittleEndian.PutUint32(buf[len(base):], groupID)
	return buf
}

func buildRegisterInterfaceExBody(implVersion, chid, pid uint32, descs []iface.Description) []byte {
	buf := make([]byte, 4+16+len(descs)*testIfaceSize)
	putVersion(buf, testVersion())
	off := 4
	binary.LittleEndian.PutUint32(buf[off:off+4], implVersion)
	binary.LittleEndian.PutUint32(buf[off+4:off+8], chid)
	binary.LittleEndian.PutUint32(buf[off+8:off+12], pid)
	binary.LittleEndian.PutUint32(buf[off+12:off+16], uint32(len(descs)))
	off += 16
	for _, d := range descs {
		putIface(buf[off:], d)
		off += testIfaceSize
	}
	return buf
}

func buildUnregisterInterfaceBody(id party.ID) []byte {
	buf := make([]byte, 4+testPartySize)
	putVersion(buf, testVersion())
	putParty(buf[4:], id)
	return buf
}

func buildAttachInterfaceBody(d iface.Description) []byte {
	buf := make([]byte, 4+testIfaceSize)
	putVersion(buf, testVersion())
	putIface(buf[4:], d)
	return buf
}

func buildAttachInterfaceExtendedBody(p wire.Pulse, c party.Channel, d iface.Description) []byte {
	buf := make([]byte, 4+testPulseSize+testChannelSize+testIfaceSize)
	putVersion(buf, testVersion())
	off := 4
	putPulse(buf[off:], p)
	off += testPulseSize
	putChannel(buf[off:], c)
	off += testChannelSize
	putIface(buf[off:], d)
	return buf
}

func buildDetachInterfaceBody(id party.ID) []byte {
	buf := make([]byte, 4+testPartySize)
	putVersion(buf, testVersion())
	putParty(buf[4:], id)
	return buf
}

// buildNotifyServerAvailableBody shares ATTACH_INTERFACE_EXTENDED's
// wire shape.
func buildNotifyServerAvailableBody(p wire.Pulse, c party.Channel, d iface.Description) []byte {
	return buildAttachInterfaceExtendedBody(p, c, d)
}

func buildNotifyServerDisconnectBody(id party.ID, p wire.Pulse) []byte {
	buf := make([]byte, 4+testPartySize+testPulseSize)
	putVersion(buf, testVersion())
	off := 4
	putParty(buf[off:], id)
	off += testPartySize
	putPulse(buf[off:], p)
	return buf
}

func buildNotifyClientDetachBody(id party.ID, p wire.Pulse) []byte {
	return buildNotifyServerDisconnectBody(id, p)
}

func buildClearNotificationBody(notifID uint64) []byte {
	buf := make([]byte, 4+8)
	putVersion(buf, testVersion())
	binary.LittleEndian.PutUint64(buf[4:12], notifID)
	return buf
}

func buildGetInterfaceListBody(maxCount uint32) []byte {
	buf := make([]byte, 8)
	putVersion(buf, testVersion())
	binary.LittleEndian.PutUint32(buf[4:8], maxCount)
	return buf
}

func buildMatchInterfaceListBody(maxCount uint32, pattern string) []byte {
	buf := make([]byte, 8+len(pattern))
	putVersion(buf, testVersion())
	binary.LittleEndian.PutUint32(buf[4:8], maxCount)
	copy(buf[8:], pattern)
	return buf
}

func buildNotifyInterfaceListChangeBody(p wire.Pulse) []byte {
	buf := make([]byte, 4+testPulseSize)
	putVersion(buf, testVersion())
	putPulse(buf[4:], p)
	return buf
}

func buildNotifyInterfaceListMatchBody(p wire.Pulse, pattern string) []byte {
	buf := make([]byte, 4+testPulseSize+len(pattern))
	putVersion(buf, testVersion())
	off := 4
	putPulse(buf[off:], p)
	off += testPulseSize
	copy(buf[off:], pattern)
	return buf
}

func decodeAttachInterfaceResponse(body []byte) (ch party.Channel, serverID, clientID party.ID) {
	off := 4
	ch = party.Channel{
		Node: binary.LittleEndian.Uint32(body[off : off+4]),
		Pid:  binary.LittleEndian.Uint32(body[off+4 : off+8]),
		Chid: binary.LittleEndian.Uint32(body[off+8 : off+12]),
	}
	off += testChannelSize
	serverID = party.ID{ExtendedID: binary.LittleEndian.Uint32(body[off : off+4]), LocalID: binary.LittleEndian.Uint32(body[off+4 : off+8])}
	off += testPartySize
	clientID = party.ID{ExtendedID: binary.LittleEndian.Uint32(body[off : off+4]), LocalID: binary.LittleEndian.Uint32(body[off+4 : off+8])}
	return
}

func decodeAttachInterfaceExtendedResponse(body []byte) (ch party.Channel, serverID, clientID party.ID, notifID uint64) {
	off := 0
	ch = party.Channel{
		Node: binary.LittleEndian.Uint32(body[off : off+4]),
		Pid:  binary.LittleEndian.Uint32(body[off+4 : off+8]),
		Chid: binary.LittleEndian.Uint32(body[off+8 : off+12]),
	}
	off += testChannelSize
	serverID = party.ID{ExtendedID: binary.LittleEndian.Uint32(body[off : off+4]), LocalID: binary.LittleEndian.Uint32(body[off+4 : off+8])}
	off += testPartySize
	clientID = party.ID{ExtendedID: binary.LittleEndian.Uint32(body[off : off+4]), LocalID: binary.LittleEndian.Uint32(body[off+4 : off+8])}
	off += testPartySize
	notifID = binary.LittleEndian.Uint64(body[off : off+8])
	return
}

func decodeNotificationIDResponse(body []byte) uint64 {
	return binary.LittleEndian.Uint64(body)
}
