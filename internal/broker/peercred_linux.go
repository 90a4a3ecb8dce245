//go:build linux

package broker

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials reads the kernel-attached SO_PEERCRED uid/gid for a
// Unix-domain connection, the authoritative credential source for
// group-restricted access checks.
func peerCredentials(c *net.UnixConn) (uid, gid uint32, err error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return 0, 0, err
	}

	var ucred *unix.Ucred
	var ctrlErr error
	err = raw.Control(func(fd uintptr) {
		ucred, ctrlErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return 0, 0, err
	}
	if ctrlErr != nil {
		return 0, 0, ctrlErr
	}
	return ucred.Uid, ucred.Gid, nil
}
