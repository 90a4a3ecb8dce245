//go:build !linux

package broker

import (
	"fmt"
	"net"
)

// peerCredentials has no portable equivalent to Linux's SO_PEERCRED;
// non-Linux builds always fall back to the TCP "unknown uid" path.
func peerCredentials(c *net.UnixConn) (uid, gid uint32, err error) {
	return 0, 0, fmt.Errorf("peer credentials unsupported on this platform")
}
