package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/marmos91/sbrokerd/internal/iface"
	"github.com/marmos91/sbrokerd/internal/party"
)

// RegisterInterfaceRequest is the body of REGISTER_INTERFACE.
type RegisterInterfaceRequest struct {
	Version     SBVersion
	Iface       iface.Description
	ImplVersion uint32
	Chid        uint32
	Pid         uint32
}

// Decode parses a REGISTER_INTERFACE body.
func (m *RegisterInterfaceRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	d, n, err := decodeIface(buf)
	if err != nil {
		return err
	}
	m.Iface = d
	buf = buf[n:]

	if len(buf) < 12 {
		return fmt.Errorf("register_interface: truncated body")
	}
	m.ImplVersion = binary.LittleEndian.Uint32(buf[0:4])
	m.Chid = binary.LittleEndian.Uint32(buf[4:8])
	m.Pid = binary.LittleEndian.Uint32(buf[8:12])
	return nil
}

// RegisterInterfaceGroupIDRequest is the body of
// REGISTER_INTERFACE_GROUPID: REGISTER_INTERFACE plus a trailing gid.
type RegisterInterfaceGroupIDRequest struct {
	RegisterInterfaceRequest
	GroupID uint32
}

// Decode parses a REGISTER_INTERFACE_GROUPID body.
func (m *RegisterInterfaceGroupIDRequest) Decode(buf []byte) error {
	if err := m.RegisterInterfaceRequest.Decode(buf); err != nil {
		return err
	}
	offset := 4 + ifaceWireSize + 12
	if len(buf) < offset+4 {
		return fmt.Errorf("register_interface_groupid: truncated body")
	}
	m.GroupID = binary.LittleEndian.Uint32(buf[offset : offset+4])
	return nil
}

// RegisterInterfaceExEntry is one element of a REGISTER_INTERFACE_EX
// request: an interface description bundled with the implementation
// metadata that in the single-interface form lives at top level.
type RegisterInterfaceExEntry struct {
	Iface       iface.Description
	ImplVersion uint32
	Chid        uint32
	Pid         uint32
}

// RegisterInterfaceExRequest is the body of REGISTER_INTERFACE_EX: a
// batch registration of up to many interfaces in one request.
type RegisterInterfaceExRequest struct {
	Version     SBVersion
	ImplVersion uint32
	Chid        uint32
	Pid         uint32
	Interfaces  []iface.Description
}

// Decode parses a REGISTER_INTERFACE_EX body.
func (m *RegisterInterfaceExRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	if len(buf) < 16 {
		return fmt.Errorf("register_interface_ex: truncated header")
	}
	m.ImplVersion = binary.LittleEndian.Uint32(buf[0:4])
	m.Chid = binary.LittleEndian.Uint32(buf[4:8])
	m.Pid = binary.LittleEndian.Uint32(buf[8:12])
	count := binary.LittleEndian.Uint32(buf[12:16])
	buf = buf[16:]

	m.Interfaces = make([]iface.Description, 0, count)
	for i := uint32(0); i < count; i++ {
		d, n, err := decodeIface(buf)
		if err != nil {
			return fmt.Errorf("register_interface_ex: entry %d: %w", i, err)
		}
		m.Interfaces = append(m.Interfaces, d)
		buf = buf[n:]
	}
	return nil
}

// ServerIDListResponse is the output of REGISTER_INTERFACE_EX and
// REGISTER_MASTER_INTERFACE_EX: one party id per input interface, in
// the same order, so the caller can correlate.
type ServerIDListResponse struct {
	IDs []party.ID
}

// Encode serializes a server id list response body.
func (m *ServerIDListResponse) Encode() []byte {
	buf := make([]byte, len(m.IDs)*partyWireSize)
	for i, id := range m.IDs {
		_ = encodeParty(buf[i*partyWireSize:], id)
	}
	return buf
}

// RegisterMasterInterfaceExEntry is one forwarded registration a slave
// sends to its master.
type RegisterMasterInterfaceExEntry struct {
	ImplVersion uint32
	Chid        uint32
	Pid         uint32
	Node        uint32
	ServerID    party.ID
	Iface       iface.Description
}

// RegisterMasterInterfaceExRequest is the body of
// REGISTER_MASTER_INTERFACE_EX.
type RegisterMasterInterfaceExRequest struct {
	Version SBVersion
	Entries []RegisterMasterInterfaceExEntry
}

// Decode parses a REGISTER_MASTER_INTERFACE_EX body.
func (m *RegisterMasterInterfaceExRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	if len(buf) < 4 {
		return fmt.Errorf("register_master_interface_ex: truncated header")
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]

	m.Entries = make([]RegisterMasterInterfaceExEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < 16 {
			return fmt.Errorf("register_master_interface_ex: entry %d truncated", i)
		}
		e := RegisterMasterInterfaceExEntry{
			ImplVersion: binary.LittleEndian.Uint32(buf[0:4]),
			Chid:        binary.LittleEndian.Uint32(buf[4:8]),
			Pid:         binary.LittleEndian.Uint32(buf[8:12]),
			Node:        binary.LittleEndian.Uint32(buf[12:16]),
		}
		buf = buf[16:]

		id, n, err := decodeParty(buf)
		if err != nil {
			return fmt.Errorf("register_master_interface_ex: entry %d serverId: %w", i, err)
		}
		e.ServerID = id
		buf = buf[n:]

		d, n, err := decodeIface(buf)
		if err != nil {
			return fmt.Errorf("register_master_interface_ex: entry %d iface: %w", i, err)
		}
		e.Iface = d
		buf = buf[n:]

		m.Entries = append(m.Entries, e)
	}
	return nil
}

// Encode serializes a REGISTER_MASTER_INTERFACE_EX body (used on the
// slave side when forwarding registrations upstream).
func (m *RegisterMasterInterfaceExRequest) Encode() []byte {
	size := 4 + 4 + len(m.Entries)*(16+partyWireSize+ifaceWireSize)
	buf := make([]byte, size)
	_ = encodeVersion(buf, m.Version)
	offset := 4
	binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(len(m.Entries)))
	offset += 4
	for _, e := range m.Entries {
		binary.LittleEndian.PutUint32(buf[offset:offset+4], e.ImplVersion)
		binary.LittleEndian.PutUint32(buf[offset+4:offset+8], e.Chid)
		binary.LittleEndian.PutUint32(buf[offset+8:offset+12], e.Pid)
		binary.LittleEndian.PutUint32(buf[offset+12:offset+16], e.Node)
		offset += 16
		_ = encodeParty(buf[offset:], e.ServerID)
		offset += partyWireSize
		_ = encodeIface(buf[offset:], e.Iface)
		offset += ifaceWireSize
	}
	return buf
}

// UnregisterInterfaceRequest is the body of UNREGISTER_INTERFACE.
type UnregisterInterfaceRequest struct {
	Version  SBVersion
	ServerID party.ID
}

// Decode parses an UNREGISTER_INTERFACE body.
func (m *UnregisterInterfaceRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	id, _, err := decodeParty(buf)
	if err != nil {
		return err
	}
	m.ServerID = id
	return nil
}

// Encode serializes an UNREGISTER_INTERFACE body, for forwarding the
// command upstream.
func (m *UnregisterInterfaceRequest) Encode() []byte {
	buf := make([]byte, 4+partyWireSize)
	_ = encodeVersion(buf, m.Version)
	_ = encodeParty(buf[4:], m.ServerID)
	return buf
}

// AttachInterfaceRequest is the body of ATTACH_INTERFACE.
type AttachInterfaceRequest struct {
	Version SBVersion
	Iface   iface.Description
}

// Decode parses an ATTACH_INTERFACE body.
func (m *AttachInterfaceRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	d, _, err := decodeIface(buf)
	if err != nil {
		return err
	}
	m.Iface = d
	return nil
}

// Encode serializes an ATTACH_INTERFACE body, for forwarding the
// command (or a GET_SERVER_INFORMATION request, its type alias) to an
// upstream master.
func (m *AttachInterfaceRequest) Encode() []byte {
	buf := make([]byte, 4+ifaceWireSize)
	_ = encodeVersion(buf, m.Version)
	_ = encodeIface(buf[4:], m.Iface)
	return buf
}

// AttachInterfaceResponse is the output of ATTACH_INTERFACE.
type AttachInterfaceResponse struct {
	IfaceVersion SBVersion
	Channel      party.Channel
	ServerID     party.ID
	ClientID     party.ID
}

// Encode serializes an ATTACH_INTERFACE response body.
func (m *AttachInterfaceResponse) Encode() []byte {
	buf := make([]byte, 4+channelWireSize+partyWireSize*2)
	_ = encodeVersion(buf, m.IfaceVersion)
	offset := 4
	_ = encodeChannel(buf[offset:], m.Channel)
	offset += channelWireSize
	_ = encodeParty(buf[offset:], m.ServerID)
	offset += partyWireSize
	_ = encodeParty(buf[offset:], m.ClientID)
	return buf
}

// Decode parses an ATTACH_INTERFACE response body, for reading back
// the result of forwarding the command to an upstream master.
func (m *AttachInterfaceResponse) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.IfaceVersion = v
	buf = buf[n:]

	c, n, err := decodeChannel(buf)
	if err != nil {
		return err
	}
	m.Channel = c
	buf = buf[n:]

	id, n, err := decodeParty(buf)
	if err != nil {
		return err
	}
	m.ServerID = id
	buf = buf[n:]

	id2, _, err := decodeParty(buf)
	if err != nil {
		return err
	}
	m.ClientID = id2
	return nil
}

// AttachInterfaceExtendedRequest is the body of
// ATTACH_INTERFACE_EXTENDED: an attach fused with an arming pulse.
type AttachInterfaceExtendedRequest struct {
	Version SBVersion
	Pulse   Pulse
	Channel party.Channel
	Iface   iface.Description
}

// Decode parses an ATTACH_INTERFACE_EXTENDED body.
func (m *AttachInterfaceExtendedRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	p, n, err := decodePulse(buf)
	if err != nil {
		return err
	}
	m.Pulse = p
	buf = buf[n:]

	c, n, err := decodeChannel(buf)
	if err != nil {
		return err
	}
	m.Channel = c
	buf = buf[n:]

	d, _, err := decodeIface(buf)
	if err != nil {
		return err
	}
	m.Iface = d
	return nil
}

// AttachInterfaceExtendedResponse is the output of
// ATTACH_INTERFACE_EXTENDED: connection info (when resolved locally or
// from cache) plus the armed notification id.
type AttachInterfaceExtendedResponse struct {
	Channel        party.Channel
	ServerID       party.ID
	ClientID       party.ID
	NotificationID uint64
}

// Encode serializes an ATTACH_INTERFACE_EXTENDED response body.
func (m *AttachInterfaceExtendedResponse) Encode() []byte {
	buf := make([]byte, channelWireSize+partyWireSize*2+8)
	offset := 0
	_ = encodeChannel(buf[offset:], m.Channel)
	offset += channelWireSize
	_ = encodeParty(buf[offset:], m.ServerID)
	offset += partyWireSize
	_ = encodeParty(buf[offset:], m.ClientID)
	offset += partyWireSize
	binary.LittleEndian.PutUint64(buf[offset:offset+8], m.NotificationID)
	return buf
}

// GetServerInformationRequest is the body of GET_SERVER_INFORMATION:
// identical shape to ATTACH_INTERFACE, but the handler does not mint a
// client id.
type GetServerInformationRequest = AttachInterfaceRequest

// GetServerInformationResponse is the output of GET_SERVER_INFORMATION.
type GetServerInformationResponse struct {
	Channel  party.Channel
	ServerID party.ID
}

// Encode serializes a GET_SERVER_INFORMATION response body.
func (m *GetServerInformationResponse) Encode() []byte {
	buf := make([]byte, channelWireSize+partyWireSize)
	_ = encodeChannel(buf, m.Channel)
	_ = encodeParty(buf[channelWireSize:], m.ServerID)
	return buf
}

// Decode parses a GET_SERVER_INFORMATION response body, for reading
// back the result of forwarding the command to an upstream master.
func (m *GetServerInformationResponse) Decode(buf []byte) error {
	c, n, err := decodeChannel(buf)
	if err != nil {
		return err
	}
	m.Channel = c
	buf = buf[n:]

	id, _, err := decodeParty(buf)
	if err != nil {
		return err
	}
	m.ServerID = id
	return nil
}

// DetachInterfaceRequest is the body of DETACH_INTERFACE.
type DetachInterfaceRequest struct {
	Version  SBVersion
	ClientID party.ID
}

// Decode parses a DETACH_INTERFACE body.
func (m *DetachInterfaceRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	id, _, err := decodeParty(buf)
	if err != nil {
		return err
	}
	m.ClientID = id
	return nil
}

// NotifyServerAvailableRequest is the body of NOTIFY_SERVER_AVAILABLE.
type NotifyServerAvailableRequest struct {
	Version SBVersion
	Pulse   Pulse
	Channel party.Channel
	Iface   iface.Description
}

// Decode parses a NOTIFY_SERVER_AVAILABLE body (same shape as an
// ATTACH_INTERFACE_EXTENDED request: pulse + channel + iface).
func (m *NotifyServerAvailableRequest) Decode(buf []byte) error {
	var inner AttachInterfaceExtendedRequest
	if err := inner.Decode(buf); err != nil {
		return err
	}
	m.Version = inner.Version
	m.Pulse = inner.Pulse
	m.Channel = inner.Channel
	m.Iface = inner.Iface
	return nil
}

// NotificationIDResponse is the output of every NOTIFY_* and
// NOTIFY_INTERFACELIST_* command.
type NotificationIDResponse struct {
	NotificationID uint64
}

// Encode serializes a notification id response body.
func (m *NotificationIDResponse) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, m.NotificationID)
	return buf
}

// Decode parses a notification id response body, for reading back the
// result of forwarding a NOTIFY_* command to an upstream master.
func (m *NotificationIDResponse) Decode(buf []byte) error {
	if len(buf) < 8 {
		return fmt.Errorf("notification_id_response: truncated body")
	}
	m.NotificationID = binary.LittleEndian.Uint64(buf[0:8])
	return nil
}

// NotifyServerAvailableExCookieEntry is one arming request in a batch
// NOTIFY_SERVER_AVAILABLE_EX job sent upstream by a slave.
type NotifyServerAvailableExCookieEntry struct {
	Cookie uint64
	Pulse  Pulse
	Iface  iface.Description
}

// NotifyServerAvailableExRequest is the body of
// NOTIFY_SERVER_AVAILABLE_EX.
type NotifyServerAvailableExRequest struct {
	Version SBVersion
	Entries []NotifyServerAvailableExCookieEntry
}

// Decode parses a NOTIFY_SERVER_AVAILABLE_EX body.
func (m *NotifyServerAvailableExRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	if len(buf) < 4 {
		return fmt.Errorf("notify_server_available_ex: truncated header")
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]

	m.Entries = make([]NotifyServerAvailableExCookieEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < 8 {
			return fmt.Errorf("notify_server_available_ex: entry %d truncated", i)
		}
		cookie := binary.LittleEndian.Uint64(buf[0:8])
		buf = buf[8:]

		p, n, err := decodePulse(buf)
		if err != nil {
			return fmt.Errorf("notify_server_available_ex: entry %d pulse: %w", i, err)
		}
		buf = buf[n:]

		d, n, err := decodeIface(buf)
		if err != nil {
			return fmt.Errorf("notify_server_available_ex: entry %d iface: %w", i, err)
		}
		buf = buf[n:]

		m.Entries = append(m.Entries, NotifyServerAvailableExCookieEntry{Cookie: cookie, Pulse: p, Iface: d})
	}
	return nil
}

// Encode serializes a NOTIFY_SERVER_AVAILABLE_EX body.
func (m *NotifyServerAvailableExRequest) Encode() []byte {
	size := 4 + 4 + len(m.Entries)*(8+pulseWireSize+ifaceWireSize)
	buf := make([]byte, size)
	_ = encodeVersion(buf, m.Version)
	offset := 4
	binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(len(m.Entries)))
	offset += 4
	for _, e := range m.Entries {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], e.Cookie)
		offset += 8
		_ = encodePulse(buf[offset:], e.Pulse)
		offset += pulseWireSize
		_ = encodeIface(buf[offset:], e.Iface)
		offset += ifaceWireSize
	}
	return buf
}

// NotifyServerAvailableExCookieResult pairs a cookie with the upstream
// notification id allocated for it.
type NotifyServerAvailableExCookieResult struct {
	Cookie         uint64
	NotificationID uint64
}

// NotifyServerAvailableExResponse is the output of
// NOTIFY_SERVER_AVAILABLE_EX.
type NotifyServerAvailableExResponse struct {
	Results []NotifyServerAvailableExCookieResult
}

// Encode serializes a NOTIFY_SERVER_AVAILABLE_EX response body.
func (m *NotifyServerAvailableExResponse) Encode() []byte {
	buf := make([]byte, len(m.Results)*16)
	for i, r := range m.Results {
		binary.LittleEndian.PutUint64(buf[i*16:i*16+8], r.Cookie)
		binary.LittleEndian.PutUint64(buf[i*16+8:i*16+16], r.NotificationID)
	}
	return buf
}

// NotifyServerDisconnectRequest is the body of NOTIFY_SERVER_DISCONNECT.
type NotifyServerDisconnectRequest struct {
	Version  SBVersion
	ServerID party.ID
	Pulse    Pulse
}

// Decode parses a NOTIFY_SERVER_DISCONNECT body.
func (m *NotifyServerDisconnectRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	id, n, err := decodeParty(buf)
	if err != nil {
		return err
	}
	m.ServerID = id
	buf = buf[n:]

	p, _, err := decodePulse(buf)
	if err != nil {
		return err
	}
	m.Pulse = p
	return nil
}

// Encode serializes a NOTIFY_SERVER_DISCONNECT body, for forwarding a
// cached remote server's disconnect-watch to an upstream master.
func (m *NotifyServerDisconnectRequest) Encode() []byte {
	buf := make([]byte, 4+partyWireSize+pulseWireSize)
	_ = encodeVersion(buf, m.Version)
	offset := 4
	_ = encodeParty(buf[offset:], m.ServerID)
	offset += partyWireSize
	_ = encodePulse(buf[offset:], m.Pulse)
	return buf
}

// NotifyClientDetachRequest is the body of NOTIFY_CLIENT_DETACH.
type NotifyClientDetachRequest struct {
	Version  SBVersion
	ClientID party.ID
	Pulse    Pulse
}

// Decode parses a NOTIFY_CLIENT_DETACH body.
func (m *NotifyClientDetachRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	id, n, err := decodeParty(buf)
	if err != nil {
		return err
	}
	m.ClientID = id
	buf = buf[n:]

	p, _, err := decodePulse(buf)
	if err != nil {
		return err
	}
	m.Pulse = p
	return nil
}

// ClearNotificationRequest is the body of CLEAR_NOTIFICATION.
type ClearNotificationRequest struct {
	Version        SBVersion
	NotificationID uint64
}

// Decode parses a CLEAR_NOTIFICATION body.
func (m *ClearNotificationRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	if len(buf) < 8 {
		return fmt.Errorf("clear_notification: truncated body")
	}
	m.NotificationID = binary.LittleEndian.Uint64(buf[0:8])
	return nil
}

// Encode serializes a CLEAR_NOTIFICATION body, for forwarding a pool's
// upstream notification release to the master.
func (m *ClearNotificationRequest) Encode() []byte {
	buf := make([]byte, 4+8)
	_ = encodeVersion(buf, m.Version)
	binary.LittleEndian.PutUint64(buf[4:12], m.NotificationID)
	return buf
}

// GetInterfaceListRequest is the body of GET_INTERFACELIST.
type GetInterfaceListRequest struct {
	Version  SBVersion
	MaxCount uint32
}

// Decode parses a GET_INTERFACELIST body.
func (m *GetInterfaceListRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	if len(buf) < 4 {
		return fmt.Errorf("get_interfacelist: truncated body")
	}
	m.MaxCount = binary.LittleEndian.Uint32(buf[0:4])
	return nil
}

// MatchInterfaceListRequest is the body of MATCH_INTERFACELIST:
// GET_INTERFACELIST plus a trailing POSIX ERE pattern.
type MatchInterfaceListRequest struct {
	Version  SBVersion
	MaxCount uint32
	Pattern  string
}

// Decode parses a MATCH_INTERFACELIST body. The pattern occupies the
// remainder of the buffer as a NUL-terminated or plain string.
func (m *MatchInterfaceListRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	if len(buf) < 4 {
		return fmt.Errorf("match_interfacelist: truncated header")
	}
	m.MaxCount = binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]

	end := len(buf)
	for i, b := range buf {
		if b == 0 {
			end = i
			break
		}
	}
	m.Pattern = string(buf[:end])
	return nil
}

// InterfaceListResponse is the output of GET_INTERFACELIST and
// MATCH_INTERFACELIST: one description per listed server. The
// envelope's return code is OK or an error status; the entry count is
// the number of descriptions in the body.
type InterfaceListResponse struct {
	Interfaces []iface.Description
}

// Encode serializes an interface list response body.
func (m *InterfaceListResponse) Encode() []byte {
	buf := make([]byte, len(m.Interfaces)*ifaceWireSize)
	for i, d := range m.Interfaces {
		_ = encodeIface(buf[i*ifaceWireSize:], d)
	}
	return buf
}

// Decode parses an interface list response body.
func (m *InterfaceListResponse) Decode(buf []byte) error {
	m.Interfaces = m.Interfaces[:0]
	for len(buf) >= ifaceWireSize {
		d, n, err := decodeIface(buf)
		if err != nil {
			return err
		}
		m.Interfaces = append(m.Interfaces, d)
		buf = buf[n:]
	}
	return nil
}

// NotifyInterfaceListChangeRequest is the body of
// NOTIFY_INTERFACELIST_CHANGE.
type NotifyInterfaceListChangeRequest struct {
	Version SBVersion
	Pulse   Pulse
}

// Decode parses a NOTIFY_INTERFACELIST_CHANGE body.
func (m *NotifyInterfaceListChangeRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	p, _, err := decodePulse(buf)
	if err != nil {
		return err
	}
	m.Pulse = p
	return nil
}

// NotifyInterfaceListMatchRequest is the body of
// NOTIFY_INTERFACELIST_MATCH: a persistent change notification scoped
// to interface names matching a regex.
type NotifyInterfaceListMatchRequest struct {
	Version SBVersion
	Pulse   Pulse
	Pattern string
}

// Decode parses a NOTIFY_INTERFACELIST_MATCH body.
func (m *NotifyInterfaceListMatchRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	p, n, err := decodePulse(buf)
	if err != nil {
		return err
	}
	m.Pulse = p
	buf = buf[n:]

	end := len(buf)
	for i, b := range buf {
		if b == 0 {
			end = i
			break
		}
	}
	m.Pattern = string(buf[:end])
	return nil
}

// MasterPingIDRequest is the body of MASTER_PING_ID: a slave
// identifies its extendedId to the master immediately after the auth
// preamble.
type MasterPingIDRequest struct {
	Version    SBVersion
	ExtendedID uint32
}

// Decode parses a MASTER_PING_ID body.
func (m *MasterPingIDRequest) Decode(buf []byte) error {
	v, n, err := decodeVersion(buf)
	if err != nil {
		return err
	}
	m.Version = v
	buf = buf[n:]

	if len(buf) < 4 {
		return fmt.Errorf("master_ping_id: truncated body")
	}
	m.ExtendedID = binary.LittleEndian.Uint32(buf[0:4])
	return nil
}

// Encode serializes a MASTER_PING_ID body.
func (m *MasterPingIDRequest) Encode() []byte {
	buf := make([]byte, 8)
	_ = encodeVersion(buf, m.Version)
	binary.LittleEndian.PutUint32(buf[4:8], m.ExtendedID)
	return buf
}
