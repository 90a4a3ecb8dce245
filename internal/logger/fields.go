package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so aggregation
// and querying stay stable.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Dispatch & Command
	// ========================================================================
	KeyCommand   = "command"    // wire command name, e.g. REGISTER_INTERFACE
	KeyStatus    = "status"     // wire result code returned to the caller
	KeyStatusMsg = "status_msg" // human-readable status message
	KeyOperation = "operation"  // sub-operation within a handler

	// ========================================================================
	// Party & Interface Identity
	// ========================================================================
	KeyPartyID    = "party_id"    // "extendedId:localId"
	KeyExtendedID = "extended_id" // node id in tree/federation mode
	KeyLocalID    = "local_id"    // local id within a node
	KeyIfaceName  = "iface_name"  // interface name string
	KeyIfaceMajor = "iface_major" // interface major version
	KeyIfaceMinor = "iface_minor" // interface minor version
	KeyNotifID    = "notification_id"
	KeyPoolID     = "pool_id"
	KeyGroupID    = "group_id"

	// ========================================================================
	// Connection & Peer Identification
	// ========================================================================
	KeyConnectionID = "conn_id"   // per-connection correlation id
	KeyPeerAddr     = "peer_addr" // remote address of the connection
	KeyPeerPID      = "peer_pid"  // peer process id (SO_PEERCRED)
	KeyUID          = "uid"       // peer uid (SO_PEERCRED)
	KeyGID          = "gid"       // peer gid (SO_PEERCRED)
	KeyIsSlave      = "is_slave"  // connection identified as a slave link
	KeyIsMaster     = "is_master" // connection is this node's master link

	// ========================================================================
	// Federation
	// ========================================================================
	KeyMasterAddr = "master_addr"
	KeyJobCommand = "federation_command"
	KeyJobID      = "job_id"
	KeyPending    = "pending_jobs"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeySource     = "source"
	KeyAttempt    = "attempt"
	KeyMaxRetries = "max_retries"

	// ========================================================================
	// Config & Service File
	// ========================================================================
	KeyConfigPath = "config_path"
	KeySection    = "config_section"
	KeyPattern    = "pattern" // POSIX ERE pattern used for interface matching
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Command returns a slog.Attr for the dispatched wire command name
func Command(name string) slog.Attr {
	return slog.String(KeyCommand, name)
}

// Status returns a slog.Attr for the wire result code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for a human-readable status message
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// Operation returns a slog.Attr for a sub-operation label
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// PartyID returns a slog.Attr for a party id formatted "extendedId:localId"
func PartyID(extendedID, localID uint32) slog.Attr {
	return slog.String(KeyPartyID, fmt.Sprintf("%d:%d", extendedID, localID))
}

// ExtendedID returns a slog.Attr for a node's extended id
func ExtendedID(id uint32) slog.Attr {
	return slog.Any(KeyExtendedID, id)
}

// LocalID returns a slog.Attr for a local id
func LocalID(id uint32) slog.Attr {
	return slog.Any(KeyLocalID, id)
}

// IfaceName returns a slog.Attr for an interface name
func IfaceName(name string) slog.Attr {
	return slog.String(KeyIfaceName, name)
}

// IfaceVersion returns slog.Attrs for an interface's major/minor version
func IfaceVersion(major, minor uint16) []slog.Attr {
	return []slog.Attr{
		slog.Int(KeyIfaceMajor, int(major)),
		slog.Int(KeyIfaceMinor, int(minor)),
	}
}

// NotificationID returns a slog.Attr for a notification id
func NotificationID(id uint64) slog.Attr {
	return slog.Uint64(KeyNotifID, id)
}

// PoolID returns a slog.Attr for a proxy pool id
func PoolID(id uint64) slog.Attr {
	return slog.Uint64(KeyPoolID, id)
}

// GroupID returns a slog.Attr for a registration group id
func GroupID(id uint32) slog.Attr {
	return slog.Any(KeyGroupID, id)
}

// ConnectionID returns a slog.Attr for a connection correlation id
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// PeerAddr returns a slog.Attr for a connection's remote address
func PeerAddr(addr string) slog.Attr {
	return slog.String(KeyPeerAddr, addr)
}

// PeerPID returns a slog.Attr for the peer process id
func PeerPID(pid int32) slog.Attr {
	return slog.Any(KeyPeerPID, pid)
}

// UID returns a slog.Attr for the peer uid
func UID(uid uint32) slog.Attr {
	return slog.Any(KeyUID, uid)
}

// GID returns a slog.Attr for the peer gid
func GID(gid uint32) slog.Attr {
	return slog.Any(KeyGID, gid)
}

// IsSlave returns a slog.Attr for slave-link status
func IsSlave(v bool) slog.Attr {
	return slog.Bool(KeyIsSlave, v)
}

// IsMaster returns a slog.Attr for master-link status
func IsMaster(v bool) slog.Attr {
	return slog.Bool(KeyIsMaster, v)
}

// MasterAddr returns a slog.Attr for the configured master address
func MasterAddr(addr string) slog.Attr {
	return slog.String(KeyMasterAddr, addr)
}

// JobCommand returns a slog.Attr for a federation job's command name
func JobCommand(name string) slog.Attr {
	return slog.String(KeyJobCommand, name)
}

// JobID returns a slog.Attr for a federation job id
func JobID(id uint64) slog.Attr {
	return slog.Uint64(KeyJobID, id)
}

// Pending returns a slog.Attr for the number of pending federation jobs
func Pending(n int) slog.Attr {
	return slog.Int(KeyPending, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric error code
func ErrorCode(code int) slog.Attr {
	return slog.Int(KeyErrorCode, code)
}

// Source returns a slog.Attr for a data source label
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the maximum retry count
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// ConfigPath returns a slog.Attr for a config file path
func ConfigPath(p string) slog.Attr {
	return slog.String(KeyConfigPath, p)
}

// Section returns a slog.Attr for a service-file section name
func Section(name string) slog.Attr {
	return slog.String(KeySection, name)
}

// Pattern returns a slog.Attr for a POSIX ERE match pattern
func Pattern(p string) slog.Attr {
	return slog.String(KeyPattern, p)
}
