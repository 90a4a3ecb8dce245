package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for broker spans.
const (
	AttrCommand      = "sb.command"       // wire command name, e.g. REGISTER_INTERFACE
	AttrPartyID      = "sb.party_id"      // "extendedId:localId"
	AttrIfaceName    = "sb.iface.name"
	AttrIfaceMajor   = "sb.iface.major"
	AttrIfaceMinor   = "sb.iface.minor"
	AttrNotifID      = "sb.notification_id"
	AttrPoolID       = "sb.pool_id"
	AttrConnRemote   = "sb.conn.remote"
	AttrConnIsSlave  = "sb.conn.is_slave"
	AttrResultStatus = "sb.status"
	AttrJobCommand   = "sb.federation.command"
)

// Command returns an attribute for the dispatched wire command name.
func Command(name string) attribute.KeyValue {
	return attribute.String(AttrCommand, name)
}

// PartyID returns an attribute identifying a party.
func PartyID(s string) attribute.KeyValue {
	return attribute.String(AttrPartyID, s)
}

// Interface returns attributes describing an interface description.
func Interface(name string, major, minor uint16) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrIfaceName, name),
		attribute.Int(AttrIfaceMajor, int(major)),
		attribute.Int(AttrIfaceMinor, int(minor)),
	}
}

// NotificationID returns an attribute for a notification id.
func NotificationID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrNotifID, int64(id))
}

// PoolID returns an attribute for a proxy pool id.
func PoolID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrPoolID, int64(id))
}

// ConnRemote returns an attribute for the connection's remote address.
func ConnRemote(addr string) attribute.KeyValue {
	return attribute.String(AttrConnRemote, addr)
}

// ResultStatus returns an attribute for the wire result code.
func ResultStatus(status string) attribute.KeyValue {
	return attribute.String(AttrResultStatus, status)
}

// JobCommand returns an attribute for a federation job's command.
func JobCommand(name string) attribute.KeyValue {
	return attribute.String(AttrJobCommand, name)
}

// StartDispatchSpan starts a span around a single dispatched request.
func StartDispatchSpan(ctx context.Context, command string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Command(command)}, attrs...)
	return StartSpan(ctx, "broker.dispatch."+command, trace.WithAttributes(allAttrs...))
}

// StartFederationSpan starts a span around a job executed against the master.
func StartFederationSpan(ctx context.Context, command string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{JobCommand(command)}, attrs...)
	return StartSpan(ctx, "broker.federation."+command, trace.WithAttributes(allAttrs...))
}
