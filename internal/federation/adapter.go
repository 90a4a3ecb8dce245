package federation

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/marmos91/sbrokerd/internal/logger"
	"github.com/marmos91/sbrokerd/internal/wire"
)

// Default timeouts per the worker thread's pseudocode.
const (
	SendTimeout    = 2 * time.Second
	RecvTimeout    = 5 * time.Second
	PingInterval   = 2 * time.Second
	ReconnectDelay = 5 * time.Second
)

// Adapter encapsulates the slave side's single TCP connection to the
// upstream master: connect/disconnect, ping, and synchronous
// request/response execution over that one socket.
type Adapter struct {
	address    string
	extendedID uint32

	mu       sync.Mutex
	conn     net.Conn
	queue    *Queue
	dialFunc func(ctx context.Context, address string) (net.Conn, error)
}

// NewAdapter builds an adapter for the upstream master at address
// (host:port), identifying this broker with extendedID on connect.
func NewAdapter(address string, extendedID uint32) *Adapter {
	return &Adapter{
		address:    address,
		extendedID: extendedID,
		queue:      NewQueue(),
		dialFunc: func(ctx context.Context, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", address)
		},
	}
}

// Queue returns the adapter's pending-job queue, for Eval callers and
// the status page's job-count report.
func (a *Adapter) Queue() *Queue { return a.queue }

// Eval enqueues a job for the worker loop to send upstream.
func (a *Adapter) Eval(j *Job) {
	a.queue.Push(j)
}

// IsConnected reports whether the adapter currently holds a live
// connection to the master.
func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// Connect dials the master, sends the AUTH preamble and a
// MASTER_PING_ID announcing extendedID. On any failure it closes
// whatever it opened and returns the error.
func (a *Adapter) Connect(ctx context.Context) error {
	conn, err := a.dialFunc(ctx, a.address)
	if err != nil {
		return fmt.Errorf("dial master %s: %w", a.address, err)
	}

	if err := wire.WriteAuthPreamble(conn, uint32(os.Getpid())); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send auth preamble: %w", err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	idReq := wire.MasterPingIDRequest{
		Version:    wire.SBVersion{Major: wire.ProtocolMajor, Minor: wire.ProtocolMinor},
		ExtendedID: a.extendedID,
	}
	if _, err := a.roundTrip(wire.CmdMasterPingID, idReq.Encode()); err != nil {
		a.Disconnect()
		return fmt.Errorf("id ping: %w", err)
	}

	logger.Info("connected to master", logger.MasterAddr(a.address), logger.ExtendedID(a.extendedID))
	return nil
}

// Disconnect closes the master connection, if any.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

// SendPing sends the keepalive MASTER_PING with no body.
func (a *Adapter) SendPing() error {
	_, err := a.roundTrip(wire.CmdMasterPing, nil)
	return err
}

// SendIDPing re-sends the MASTER_PING_ID announcement, used after a
// reconnect.
func (a *Adapter) SendIDPing() error {
	req := wire.MasterPingIDRequest{
		Version:    wire.SBVersion{Major: wire.ProtocolMajor, Minor: wire.ProtocolMinor},
		ExtendedID: a.extendedID,
	}
	_, err := a.roundTrip(wire.CmdMasterPingID, req.Encode())
	return err
}

// Execute runs job synchronously over the master connection and
// writes its Result to job.Done.
func (a *Adapter) Execute(job *Job) {
	status, body, err := a.roundTrip(job.Command, job.Body)
	job.Done <- Result{Status: status, Body: body, Err: err}
}

// ExecutePending drains and executes every job currently queued,
// stopping at the first transport failure (the remaining jobs stay
// queued for the next attempt once reconnected). Returns false if a
// failure occurred.
func (a *Adapter) ExecutePending() bool {
	for {
		job := a.queue.Pop()
		if job == nil {
			return true
		}
		status, body, err := a.roundTrip(job.Command, job.Body)
		job.Done <- Result{Status: status, Body: body, Err: err}
		if err != nil {
			return false
		}
	}
}

// RemovePending drains the queue without sending anything, reporting
// each job as a transport failure. Used when the adapter gives up on
// reconnecting or is shutting down.
func (a *Adapter) RemovePending() {
	for {
		job := a.queue.Pop()
		if job == nil {
			return
		}
		job.Done <- Result{Err: fmt.Errorf("master link unavailable")}
	}
}

func (a *Adapter) roundTrip(cmd wire.Command, body []byte) (wire.Status, []byte, error) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return 0, nil, fmt.Errorf("not connected to master")
	}

	_ = conn.SetWriteDeadline(time.Now().Add(SendTimeout))
	if err := wire.WriteRequest(conn, cmd, body); err != nil {
		return 0, nil, fmt.Errorf("write request: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(RecvTimeout))
	status, respBody, err := wire.ReadResponse(conn)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return normalizeListStatus(status), respBody, nil
}

// normalizeListStatus folds the list-command negative-count
// convention (negative return values mean "n entries") back into a
// non-negative Status, per §4.5's adapter translation note: every
// negative status becomes OK and the count it carried is dropped (the
// entries themselves travel in the response body). Non-negative
// statuses pass through unchanged.
func normalizeListStatus(s wire.Status) wire.Status {
	if s < 0 {
		return wire.OK
	}
	return s
}
