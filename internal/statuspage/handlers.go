package statuspage

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/marmos91/sbrokerd/internal/broker"
	"github.com/marmos91/sbrokerd/internal/logger"
	"github.com/marmos91/sbrokerd/internal/notify"
	"github.com/marmos91/sbrokerd/internal/party"
	"github.com/marmos91/sbrokerd/internal/registry"
)

type handler struct {
	broker *broker.Broker
}

func newHandler(b *broker.Broker) *handler {
	return &handler{broker: b}
}

// full handles GET / — the sbcat-style dump of every table in one
// report.
func (h *handler) full(w http.ResponseWriter, r *http.Request) {
	var buf strings.Builder
	h.broker.Inspect(func(b *broker.Broker) {
		writeServers(&buf, b.Servers())
		buf.WriteByte('\n')
		writeClients(&buf, b.Clients())
		buf.WriteByte('\n')
		writeNotifications(&buf, "CONNECT NOTIFICATIONS", b.Notifications(notify.KindConnect))
		buf.WriteByte('\n')
		writeNotifications(&buf, "DISCONNECT NOTIFICATIONS", b.Notifications(notify.KindServerDisconnect))
		buf.WriteByte('\n')
		writeNotifications(&buf, "CLIENT-DETACH NOTIFICATIONS", b.Notifications(notify.KindClientDetach))
		buf.WriteByte('\n')
		writeListChangeNotifications(&buf, b.ListChangeNotifications())
	})
	writeText(w, buf.String())
}

func (h *handler) servers(w http.ResponseWriter, r *http.Request) {
	var buf strings.Builder
	h.broker.Inspect(func(b *broker.Broker) { writeServers(&buf, b.Servers()) })
	writeText(w, buf.String())
}

func (h *handler) clients(w http.ResponseWriter, r *http.Request) {
	var buf strings.Builder
	h.broker.Inspect(func(b *broker.Broker) { writeClients(&buf, b.Clients()) })
	writeText(w, buf.String())
}

func (h *handler) connectNotifications(w http.ResponseWriter, r *http.Request) {
	var buf strings.Builder
	h.broker.Inspect(func(b *broker.Broker) {
		writeNotifications(&buf, "CONNECT NOTIFICATIONS", b.Notifications(notify.KindConnect))
	})
	writeText(w, buf.String())
}

func (h *handler) disconnectNotifications(w http.ResponseWriter, r *http.Request) {
	var buf strings.Builder
	h.broker.Inspect(func(b *broker.Broker) {
		writeNotifications(&buf, "DISCONNECT NOTIFICATIONS", b.Notifications(notify.KindServerDisconnect))
	})
	writeText(w, buf.String())
}

func (h *handler) detachNotifications(w http.ResponseWriter, r *http.Request) {
	var buf strings.Builder
	h.broker.Inspect(func(b *broker.Broker) {
		writeNotifications(&buf, "CLIENT-DETACH NOTIFICATIONS", b.Notifications(notify.KindClientDetach))
	})
	writeText(w, buf.String())
}

// command handles POST / — a body of newline- or &-separated
// key=value pairs applying runtime commands against the live broker.
func (h *handler) command(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var results []string
	for _, pair := range strings.FieldsFunc(string(body), func(r rune) bool { return r == '&' || r == '\n' }) {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		results = append(results, h.applyCommand(strings.TrimSpace(key), strings.TrimSpace(value)))
	}

	writeText(w, strings.Join(results, "\n"))
}

func (h *handler) applyCommand(key, value string) string {
	switch key {
	case "verbose":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Sprintf("verbose: invalid value %q", value)
		}
		logger.SetVerbosity(n)
		return fmt.Sprintf("verbose=%d applied", n)

	case "console":
		enabled := value == "1"
		logger.SetConsole(enabled)
		return fmt.Sprintf("console=%s applied", value)

	case "disconnect":
		id, err := parsePartyID(value)
		if err != nil {
			return fmt.Sprintf("disconnect: invalid id %q", value)
		}
		if err := h.broker.DisconnectServer(id); err != nil {
			return fmt.Sprintf("disconnect=%s failed: %v", value, err)
		}
		return fmt.Sprintf("disconnect=%s applied", value)

	case "shutdown":
		h.broker.Stop()
		return "shutdown applied"

	default:
		return fmt.Sprintf("unknown command %q", key)
	}
}

// parsePartyID accepts the same "extendedId:localId" form party.ID's
// String method produces, or a bare local id against extended id 0.
func parsePartyID(s string) (party.ID, error) {
	ext, local, ok := strings.Cut(s, ":")
	if !ok {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return party.ID{}, err
		}
		return party.ID{LocalID: uint32(n)}, nil
	}
	extID, err := strconv.ParseUint(ext, 10, 32)
	if err != nil {
		return party.ID{}, err
	}
	localID, err := strconv.ParseUint(local, 10, 32)
	if err != nil {
		return party.ID{}, err
	}
	return party.ID{ExtendedID: uint32(extID), LocalID: uint32(localID)}, nil
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
	if !strings.HasSuffix(body, "\n") {
		_, _ = io.WriteString(w, "\n")
	}
}

func writeServers(buf *strings.Builder, servers []*registry.ServerEntry) {
	fmt.Fprintf(buf, "SERVERS (%d)\n", len(servers))
	for _, s := range servers {
		fmt.Fprintf(buf, "  %-32s v%d.%d  id=%s  channel=%d:%d:%d",
			s.Iface.Name, s.Iface.Major, s.Iface.Minor, s.PartyID, s.Node, s.Pid, s.Chid)
		if s.GroupRestricted() {
			fmt.Fprintf(buf, "  group=%d", s.GroupID)
		}
		buf.WriteByte('\n')
	}
}

func writeClients(buf *strings.Builder, clients []*registry.ClientEntry) {
	fmt.Fprintf(buf, "CLIENTS (%d)\n", len(clients))
	for _, c := range clients {
		fmt.Fprintf(buf, "  %s -> server %s\n", c.ClientID, c.ServerID)
	}
}

func writeNotifications(buf *strings.Builder, title string, notifs []*notify.Notification) {
	fmt.Fprintf(buf, "%s (%d)\n", title, len(notifs))
	for _, n := range notifs {
		fmt.Fprintf(buf, "  id=%d target=%s iface=%s pulse={%d,%d}\n",
			n.ID, n.TargetParty, n.Iface.Name, n.Pulse.Code, n.Pulse.Value)
	}
}

func writeListChangeNotifications(buf *strings.Builder, notifs []*notify.Notification) {
	fmt.Fprintf(buf, "INTERFACE-LIST-CHANGE NOTIFICATIONS (%d)\n", len(notifs))
	for _, n := range notifs {
		fmt.Fprintf(buf, "  id=%d pattern=%q pulse={%d,%d}\n", n.ID, n.Pattern, n.Pulse.Code, n.Pulse.Value)
	}
}
