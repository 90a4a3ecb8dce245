package broker

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/marmos91/sbrokerd/internal/logger"
	"github.com/marmos91/sbrokerd/internal/party"
	"github.com/marmos91/sbrokerd/internal/registry"
	"github.com/marmos91/sbrokerd/internal/wire"
	"github.com/google/uuid"
)

// unknownCred marks a uid/gid that could not be determined: every TCP
// peer, since only the declared pid is authoritative there.
const unknownCred uint32 = 0xffffffff

// conn is the per-socket state a reader goroutine feeds into the
// dispatch loop and the dispatch loop writes responses back through.
// Every write to the underlying net.Conn goes through writeMu so a
// deferred federation completion can reply on the same socket a later
// synchronous request is also replying on.
type conn struct {
	id       string
	raw      net.Conn
	isRemote bool

	peerPID uint32
	peerUID uint32
	peerGID uint32

	writeMu sync.Mutex

	ocb *registry.OCB

	mu         sync.Mutex
	extendedID uint32
	isSlave    bool
}

func newConn(raw net.Conn, isRemote bool) *conn {
	return &conn{
		id:       uuid.NewString(),
		raw:      raw,
		isRemote: isRemote,
		ocb:      registry.NewOCB(),
		peerUID:  unknownCred,
		peerGID:  unknownCred,
	}
}

// authorizedFor reports whether this connection's peer may attach to a
// group-restricted server: uid 0 or membership in the server's gid.
// TCP peers never have a known uid and are denied any restricted
// server.
func (c *conn) authorizedFor(gid uint32) bool {
	if c.peerUID == unknownCred {
		return false
	}
	return c.peerUID == 0 || c.peerGID == gid
}

func (c *conn) setExtendedID(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extendedID = id
	c.isSlave = true
}

func (c *conn) getExtendedID() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extendedID, c.isSlave
}

func (c *conn) writeResponse(status wire.Status, body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteResponse(c.raw, status, body)
}

// request is one unit of work handed to the dispatch goroutine: either
// a decoded frame from a connection's reader goroutine, or a
// continuation closure run once a federation job completes. Routing
// both through the same channel is what keeps registry and
// notification mutation single-threaded without a reactor-wide lock.
type request struct {
	conn *conn
	cmd  wire.Command
	body []byte

	// fn, when set, is run directly instead of command-dispatching
	// conn/cmd/body; used for federation-completion continuations.
	fn func(b *Broker)
}

// handleConn runs a connection's entire lifecycle: the AUTH preamble
// (required on every connection; one that is missing or malformed
// drops the connection), the read loop feeding decoded frames to the dispatch
// channel, and teardown once the peer disconnects.
func (b *Broker) handleConn(ctx context.Context, raw net.Conn, isRemote bool) {
	defer raw.Close()

	c := newConn(raw, isRemote)
	logger.Debug("connection accepted", logger.ConnectionID(c.id), logger.PeerAddr(raw.RemoteAddr().String()), logger.IsMaster(isRemote))

	pid, err := wire.ReadAuthPreamble(raw)
	if err != nil {
		logger.Warn("auth preamble rejected", logger.ConnectionID(c.id), logger.Err(err))
		return
	}
	c.peerPID = pid

	if uc, ok := raw.(*net.UnixConn); ok {
		if uid, gid, err := peerCredentials(uc); err == nil {
			c.peerUID, c.peerGID = uid, gid
		} else {
			logger.Debug("peer credential lookup failed", logger.ConnectionID(c.id), logger.Err(err))
		}
	}

	logger.Debug("connection authenticated", logger.ConnectionID(c.id), logger.PeerPID(int32(pid)), logger.UID(c.peerUID), logger.GID(c.peerGID))

	for {
		cmd, body, err := wire.ReadRequest(raw)
		if err != nil {
			break
		}

		// Requests are processed in order by the single dispatch
		// goroutine; this reader keeps reading the next frame
		// immediately rather than waiting for the response, since a
		// slow peer write never blocks the dispatcher draining other
		// connections.
		select {
		case b.requests <- &request{conn: c, cmd: cmd, body: body}:
		case <-ctx.Done():
			return
		}
	}

	select {
	case b.requests <- &request{conn: c, cmd: cmdTeardown}:
	case <-ctx.Done():
	}
	logger.Debug("connection closed", logger.ConnectionID(c.id))
}

// cmdTeardown is a sentinel below every real wire.Command value (which
// start at 1), used internally to route a dropped connection's cleanup
// through the same serializing dispatch goroutine that handles every
// other mutation.
const cmdTeardown wire.Command = 0

func partyLog(id party.ID) []any {
	return []any{logger.PartyID(id.ExtendedID, id.LocalID)}
}

func statusErrorf(status wire.Status, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), status)
}
