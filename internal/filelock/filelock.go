// Package filelock implements the advisory single-instance lock the
// daemon takes on its mountpoint before binding any listener,
// preventing two daemons from serving the same path.
package filelock

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// pathBufSize mirrors the original's fixed 256-byte path buffer: a
// path longer than this is silently truncated when stored, exactly as
// the C implementation's strncpy into a char[256] did. Kept as-is,
// not fixed — Release() will unlink the truncated path, not the real
// one, if the two differ.
const pathBufSize = 256

// Lock is an advisory exclusive lock on a path, held for the life of
// the process that acquired it.
type Lock struct {
	fd   int
	path [pathBufSize]byte
}

// Acquire opens (creating if necessary) and flocks path exclusively,
// non-blocking, and stamps the file with the caller's pid. Acquire
// fails if another process already holds the lock.
func Acquire(path string) (*Lock, error) {
	l := &Lock{fd: -1}
	n := copy(l.path[:], path)
	if n == pathBufSize {
		l.path[pathBufSize-1] = 0
	}

	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CREAT, 0666)
	if err != nil {
		return nil, fmt.Errorf("lockfile %q: open/create failed: %w", path, err)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = unix.Close(fd)
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("lockfile %q: already locked by another instance", path)
		}
		return nil, fmt.Errorf("lockfile %q: lock failed: %w", path, err)
	}

	l.fd = fd

	_ = unix.Ftruncate(fd, 0)
	pid := []byte(strconv.Itoa(os.Getpid()))
	_, _ = unix.Write(fd, pid)
	_ = unix.Fsync(fd)

	return l, nil
}

// Release unlocks, closes, and removes the lock file. Safe to call
// once on a successfully acquired Lock.
func (l *Lock) Release() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Flock(l.fd, unix.LOCK_UN)
	_ = unix.Close(l.fd)
	l.fd = -1

	n := 0
	for n < pathBufSize && l.path[n] != 0 {
		n++
	}
	_ = os.Remove(string(l.path[:n]))
	return err
}
