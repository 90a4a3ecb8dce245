package broker

import (
	"context"
	"errors"

	"github.com/marmos91/sbrokerd/internal/logger"
	"github.com/marmos91/sbrokerd/internal/wire"
)

// errDeferred is returned by route (via a handler) to signal that the
// handler has already arranged for the response to be written later,
// from a federation-completion continuation scheduled through
// deferLater. dispatch must not write a second response in that case.
var errDeferred = errors.New("broker: response deferred")

// dispatchLoop is the single goroutine that mutates the registry,
// notification list, and pool table. It drains one channel fed by
// every connection's reader goroutine and by federation-completion
// continuations, so no two commands are ever processed concurrently
// regardless of how many sockets are open.
func (b *Broker) dispatchLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-b.requests:
			b.dispatch(req)
		}
	}
}

func (b *Broker) dispatch(req *request) {
	if req.fn != nil {
		req.fn(b)
		return
	}

	if req.cmd == cmdTeardown {
		b.dispatchTeardown(req.conn)
		return
	}

	status, body, err := b.route(req)
	if errors.Is(err, errDeferred) {
		return
	}
	b.metrics.RecordCommand(req.cmd.String(), status.String())
	if b.metrics != nil {
		b.metrics.SetActive(len(b.registry.ListServers(nil)), len(b.registry.ListClients()))
	}
	if err != nil {
		logger.Debug("handler error", logger.Command(req.cmd.String()), logger.ConnectionID(req.conn.id), logger.Err(err))
	}
	if err := req.conn.writeResponse(status, body); err != nil {
		logger.Debug("write response failed", logger.Command(req.cmd.String()), logger.ConnectionID(req.conn.id), logger.Err(err))
	}
}

// replyLater writes a response and records its command metric from a
// federation-completion continuation, after a handler has returned
// errDeferred to skip dispatch's own write.
func (b *Broker) replyLater(req *request, status wire.Status, body []byte) {
	b.metrics.RecordCommand(req.cmd.String(), status.String())
	if err := req.conn.writeResponse(status, body); err != nil {
		logger.Debug("write response failed", logger.Command(req.cmd.String()), logger.ConnectionID(req.conn.id), logger.Err(err))
	}
}

// route rejects a body too short to carry the 4-byte protocol version
// and switches on command to the handler that implements it; each
// handler checks the version itself. A
// handler may return errDeferred alongside a zero status and nil body
// instead of a final response; those commands reply later by calling
// replyLater from a federation-completion continuation scheduled
// through deferLater, rather than from this call.
func (b *Broker) route(req *request) (wire.Status, []byte, error) {
	if len(req.body) < 4 {
		return wire.BadArgument, nil, nil
	}

	switch req.cmd {
	case wire.CmdRegisterInterface:
		return b.handleRegisterInterface(req)
	case wire.CmdRegisterInterfaceGroupID:
		return b.handleRegisterInterfaceGroupID(req)
	case wire.CmdRegisterInterfaceEx:
		return b.handleRegisterInterfaceEx(req)
	case wire.CmdRegisterMasterInterfaceEx:
		return b.handleRegisterMasterInterfaceEx(req)
	case wire.CmdUnregisterInterface:
		return b.handleUnregisterInterface(req)
	case wire.CmdAttachInterface:
		return b.handleAttachInterface(req)
	case wire.CmdAttachInterfaceExtended:
		return b.handleAttachInterfaceExtended(req)
	case wire.CmdGetServerInformation:
		return b.handleGetServerInformation(req)
	case wire.CmdDetachInterface:
		return b.handleDetachInterface(req)
	case wire.CmdNotifyServerAvailable:
		return b.handleNotifyServerAvailable(req)
	case wire.CmdNotifyServerAvailableEx:
		return b.handleNotifyServerAvailableEx(req)
	case wire.CmdNotifyServerDisconnect:
		return b.handleNotifyServerDisconnect(req)
	case wire.CmdNotifyClientDetach:
		return b.handleNotifyClientDetach(req)
	case wire.CmdClearNotification:
		return b.handleClearNotification(req)
	case wire.CmdGetInterfaceList:
		return b.handleGetInterfaceList(req)
	case wire.CmdMatchInterfaceList:
		return b.handleMatchInterfaceList(req)
	case wire.CmdNotifyInterfaceListChange:
		return b.handleNotifyInterfaceListChange(req)
	case wire.CmdNotifyInterfaceListMatch:
		return b.handleNotifyInterfaceListMatch(req)
	case wire.CmdMasterPing:
		return wire.OK, nil, nil
	case wire.CmdMasterPingID:
		return b.handleMasterPingID(req)
	default:
		return wire.UnknownCommand, nil, nil
	}
}

// deferLater enqueues fn to run on the dispatch goroutine once the
// federation job it closes over completes. A handler pairs this with
// returning errDeferred from route, so dispatch never writes its own
// response; fn is expected to call replyLater once the job resolves.
func (b *Broker) deferLater(fn func(b *Broker)) {
	go func() {
		select {
		case b.requests <- &request{fn: fn}:
		case <-b.shutdown:
		}
	}()
}
