package notify

import (
	"net"
	"os"
)

// newFileConn wraps a raw socket fd (already connected) as a net.Conn,
// used for the abstract-namespace Unix sockets the stdlib net package
// cannot dial directly (it has no syntax for "@name" abstract paths).
func newFileConn(fd int, name string) (net.Conn, error) {
	f := os.NewFile(uintptr(fd), name)
	conn, err := net.FileConn(f)
	_ = f.Close()
	return conn, err
}
