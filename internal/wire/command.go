package wire

// Command is the wire-level opcode carried in a request header.
type Command uint32

const (
	CmdRegisterInterface Command = iota + 1
	CmdRegisterInterfaceEx
	CmdRegisterInterfaceGroupID
	CmdRegisterMasterInterfaceEx
	CmdUnregisterInterface
	CmdAttachInterface
	CmdAttachInterfaceExtended
	CmdGetServerInformation
	CmdDetachInterface
	CmdNotifyServerAvailable
	CmdNotifyServerAvailableEx
	CmdNotifyServerDisconnect
	CmdNotifyClientDetach
	CmdClearNotification
	CmdGetInterfaceList
	CmdNotifyInterfaceListChange
	CmdMatchInterfaceList
	CmdNotifyInterfaceListMatch
	CmdMasterPing
	CmdMasterPingID
)

func (c Command) String() string {
	switch c {
	case CmdRegisterInterface:
		return "REGISTER_INTERFACE"
	case CmdRegisterInterfaceEx:
		return "REGISTER_INTERFACE_EX"
	case CmdRegisterInterfaceGroupID:
		return "REGISTER_INTERFACE_GROUPID"
	case CmdRegisterMasterInterfaceEx:
		return "REGISTER_MASTER_INTERFACE_EX"
	case CmdUnregisterInterface:
		return "UNREGISTER_INTERFACE"
	case CmdAttachInterface:
		return "ATTACH_INTERFACE"
	case CmdAttachInterfaceExtended:
		return "ATTACH_INTERFACE_EXTENDED"
	case CmdGetServerInformation:
		return "GET_SERVER_INFORMATION"
	case CmdDetachInterface:
		return "DETACH_INTERFACE"
	case CmdNotifyServerAvailable:
		return "NOTIFY_SERVER_AVAILABLE"
	case CmdNotifyServerAvailableEx:
		return "NOTIFY_SERVER_AVAILABLE_EX"
	case CmdNotifyServerDisconnect:
		return "NOTIFY_SERVER_DISCONNECT"
	case CmdNotifyClientDetach:
		return "NOTIFY_CLIENT_DETACH"
	case CmdClearNotification:
		return "CLEAR_NOTIFICATION"
	case CmdGetInterfaceList:
		return "GET_INTERFACELIST"
	case CmdNotifyInterfaceListChange:
		return "NOTIFY_INTERFACELIST_CHANGE"
	case CmdMatchInterfaceList:
		return "MATCH_INTERFACELIST"
	case CmdNotifyInterfaceListMatch:
		return "NOTIFY_INTERFACELIST_MATCH"
	case CmdMasterPing:
		return "MASTER_PING"
	case CmdMasterPingID:
		return "MASTER_PING_ID"
	default:
		return "UNKNOWN_COMMAND"
	}
}

// ProtocolVersion is the current SB protocol major/minor carried as
// the first 4 bytes of every request body (2 uint16s).
const (
	ProtocolMajor uint16 = 1
	ProtocolMinor uint16 = 0
)

// SBVersion is the {major, minor} pair validated at the top of every
// request body.
type SBVersion struct {
	Major uint16
	Minor uint16
}

// Compatible reports whether a request's declared version can be
// served by this broker: same major, any minor (the broker is always
// the newer or equal side).
func (v SBVersion) Compatible() bool {
	return v.Major == ProtocolMajor
}
