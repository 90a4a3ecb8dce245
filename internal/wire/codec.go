package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/marmos91/sbrokerd/internal/iface"
	"github.com/marmos91/sbrokerd/internal/party"
)

// ifaceWireSize is the on-wire size of an interface description: a
// fixed 256-byte NUL-terminated name buffer plus major/minor uint16s.
const ifaceWireSize = 256 + 2 + 2

// partyWireSize is the on-wire size of a PartyID: two uint32s.
const partyWireSize = 8

// channelWireSize is the on-wire size of a Channel: three uint32s.
const channelWireSize = 12

// pulseWireSize is the on-wire size of a Pulse: two int32s.
const pulseWireSize = 8

// Pulse is the fixed {code, value} payload delivered to a notification
// target, and the spec for arming one (as carried inline in several
// request bodies).
type Pulse struct {
	Code  int32
	Value int32
}

func encodeIface(buf []byte, d iface.Description) error {
	if len(buf) < ifaceWireSize {
		return fmt.Errorf("iface encode: buffer too small")
	}
	if len(d.Name) > 255 {
		return fmt.Errorf("iface encode: name too long")
	}
	clear(buf[0:256])
	copy(buf[0:255], d.Name)
	binary.LittleEndian.PutUint16(buf[256:258], d.Major)
	binary.LittleEndian.PutUint16(buf[258:260], d.Minor)
	return nil
}

func decodeIface(buf []byte) (iface.Description, int, error) {
	if len(buf) < ifaceWireSize {
		return iface.Description{}, 0, fmt.Errorf("iface decode: buffer too small, got %d need %d", len(buf), ifaceWireSize)
	}
	nameEnd := 0
	for nameEnd < 256 && buf[nameEnd] != 0 {
		nameEnd++
	}
	name := string(buf[0:nameEnd])
	major := binary.LittleEndian.Uint16(buf[256:258])
	minor := binary.LittleEndian.Uint16(buf[258:260])
	return iface.Description{Name: name, Major: major, Minor: minor}, ifaceWireSize, nil
}

func encodeParty(buf []byte, id party.ID) error {
	if len(buf) < partyWireSize {
		return fmt.Errorf("party encode: buffer too small")
	}
	binary.LittleEndian.PutUint32(buf[0:4], id.ExtendedID)
	binary.LittleEndian.PutUint32(buf[4:8], id.LocalID)
	return nil
}

func decodeParty(buf []byte) (party.ID, int, error) {
	if len(buf) < partyWireSize {
		return party.ID{}, 0, fmt.Errorf("party decode: buffer too small")
	}
	return party.ID{
		ExtendedID: binary.LittleEndian.Uint32(buf[0:4]),
		LocalID:    binary.LittleEndian.Uint32(buf[4:8]),
	}, partyWireSize, nil
}

func encodeChannel(buf []byte, c party.Channel) error {
	if len(buf) < channelWireSize {
		return fmt.Errorf("channel encode: buffer too small")
	}
	binary.LittleEndian.PutUint32(buf[0:4], c.Node)
	binary.LittleEndian.PutUint32(buf[4:8], c.Pid)
	binary.LittleEndian.PutUint32(buf[8:12], c.Chid)
	return nil
}

func decodeChannel(buf []byte) (party.Channel, int, error) {
	if len(buf) < channelWireSize {
		return party.Channel{}, 0, fmt.Errorf("channel decode: buffer too small")
	}
	return party.Channel{
		Node: binary.LittleEndian.Uint32(buf[0:4]),
		Pid:  binary.LittleEndian.Uint32(buf[4:8]),
		Chid: binary.LittleEndian.Uint32(buf[8:12]),
	}, channelWireSize, nil
}

func encodePulse(buf []byte, p Pulse) error {
	if len(buf) < pulseWireSize {
		return fmt.Errorf("pulse encode: buffer too small")
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.Code))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.Value))
	return nil
}

func decodePulse(buf []byte) (Pulse, int, error) {
	if len(buf) < pulseWireSize {
		return Pulse{}, 0, fmt.Errorf("pulse decode: buffer too small")
	}
	return Pulse{
		Code:  int32(binary.LittleEndian.Uint32(buf[0:4])),
		Value: int32(binary.LittleEndian.Uint32(buf[4:8])),
	}, pulseWireSize, nil
}

func decodeVersion(buf []byte) (SBVersion, int, error) {
	if len(buf) < 4 {
		return SBVersion{}, 0, fmt.Errorf("version decode: buffer too small")
	}
	return SBVersion{
		Major: binary.LittleEndian.Uint16(buf[0:2]),
		Minor: binary.LittleEndian.Uint16(buf[2:4]),
	}, 4, nil
}

func encodeVersion(buf []byte, v SBVersion) error {
	if len(buf) < 4 {
		return fmt.Errorf("version encode: buffer too small")
	}
	binary.LittleEndian.PutUint16(buf[0:2], v.Major)
	binary.LittleEndian.PutUint16(buf[2:4], v.Minor)
	return nil
}
