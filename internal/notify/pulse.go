package notify

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// LocalNode is the nid sentinel meaning "this broker's own node": a
// pulse target with this nid is dialed over a Unix abstract-namespace
// socket rather than TCP.
const LocalNode uint32 = 0

// channelKey identifies one (node, pid, chid) pulse destination.
type channelKey struct {
	node uint32
	pid  uint32
	chid uint32
}

// channel is a refcounted connection to a pulse target.
type channel struct {
	conn     net.Conn
	refCount int
}

// ChannelManager hands out refcounted connections to pulse targets
// and serializes delivery of {code, value} payloads over them. Local
// targets (nid == LocalNode) dial a Unix socket in the abstract
// namespace derived from (pid, chid); remote targets dial TCP to
// (pid interpreted as an IPv4 address, chid interpreted as a port).
type ChannelManager struct {
	mu       sync.Mutex
	channels map[channelKey]*channel

	dialTimeout time.Duration
}

// NewChannelManager builds an empty manager.
func NewChannelManager() *ChannelManager {
	return &ChannelManager{
		channels:    make(map[channelKey]*channel),
		dialTimeout: 2 * time.Second,
	}
}

// Attach acquires (dialing if necessary) the channel for the given
// target, incrementing its refcount. The returned key must be passed
// to Detach when the caller is done with the connection.
func (m *ChannelManager) Attach(node, pid, chid uint32) (channelKey, error) {
	key := channelKey{node: node, pid: pid, chid: chid}

	m.mu.Lock()
	if ch, ok := m.channels[key]; ok {
		ch.refCount++
		m.mu.Unlock()
		return key, nil
	}
	m.mu.Unlock()

	conn, err := m.dial(key)
	if err != nil {
		return channelKey{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[key]; ok {
		// Lost the race to dial the same target twice; keep the
		// winner's connection and drop ours.
		ch.refCount++
		_ = conn.Close()
		return key, nil
	}
	m.channels[key] = &channel{conn: conn, refCount: 1}
	return key, nil
}

func (m *ChannelManager) dial(key channelKey) (net.Conn, error) {
	if key.node == LocalNode {
		return dialUnixAbstract(key.pid, key.chid, m.dialTimeout)
	}

	addr := ipv4FromUint32(key.pid)
	if key.pid == 0 {
		addr = ipv4FromUint32(key.node)
	}
	return net.DialTimeout("tcp", fmt.Sprintf("%s:%d", addr, key.chid), m.dialTimeout)
}

// Detach decrements the channel's refcount, closing the connection on
// last release.
func (m *ChannelManager) Detach(key channelKey) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[key]
	if !ok {
		return
	}
	ch.refCount--
	if ch.refCount <= 0 {
		_ = ch.conn.Close()
		delete(m.channels, key)
	}
}

// Send delivers a {code, value} pulse to the channel identified by
// key. A failure is logged by the caller and the pulse is dropped;
// Send never retries beyond the EINTR-equivalent Go already absorbs
// in net.Conn.Write.
func (m *ChannelManager) Send(key channelKey, code, value int32) error {
	m.mu.Lock()
	ch, ok := m.channels[key]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("pulse channel %+v not attached", key)
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(code))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(value))

	_, err := ch.conn.Write(buf)
	return err
}

func ipv4FromUint32(v uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// dialUnixAbstract connects to the Linux abstract-namespace socket
// path derived from (pid, chid), matching the original's
// make_unix_path scheme of encoding both values into the path.
func dialUnixAbstract(pid, chid uint32, timeout time.Duration) (net.Conn, error) {
	name := fmt.Sprintf("sbrokerd/%d/%d", pid, chid)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("open abstract socket: %w", err)
	}

	sa := &unix.SockaddrUnix{Name: "@" + name}

	done := make(chan error, 1)
	go func() { done <- unix.Connect(fd, sa) }()

	select {
	case err := <-done:
		if err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("connect abstract socket %s: %w", name, err)
		}
	case <-time.After(timeout):
		_ = unix.Close(fd)
		return nil, fmt.Errorf("connect abstract socket %s: timed out", name)
	}

	conn, err := newFileConn(fd, name)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("wrap abstract socket %s: %w", name, err)
	}
	return conn, nil
}
