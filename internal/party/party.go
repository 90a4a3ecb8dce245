// Package party defines the identity types used to name servers and
// clients across a federation of brokers.
package party

import (
	"fmt"
	"sync/atomic"
)

// ExtendedIDSlave is the extendedId a classic (non tree-mode) slave
// broker uses for every party it mints.
const ExtendedIDSlave uint32 = 1000

// ID is a 64-bit composite identity: {extendedId, localId}. extendedId
// identifies the originating broker; localId is monotonically
// allocated per broker. No two live parties in a federation share the
// same pair.
type ID struct {
	ExtendedID uint32
	LocalID    uint32
}

// Zero is the unset party id.
var Zero = ID{}

// IsZero reports whether id is the unset value.
func (id ID) IsZero() bool {
	return id.ExtendedID == 0 && id.LocalID == 0
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.ExtendedID, id.LocalID)
}

// Channel addresses a pulse target: the node, process, and channel id
// an application registered for asynchronous delivery.
type Channel struct {
	Node uint32
	Pid  uint32
	Chid uint32
}

func (c Channel) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Node, c.Pid, c.Chid)
}

// LoopbackPid is the IP_TRANSLATE sentinel: a slave that registered an
// interface from its own loopback address gets its pid rewritten to
// the slave's peer IP on the master side when the interface name ends
// in "_tcp".
const LoopbackPid uint32 = 0x7f000001

// Generator mints monotonically increasing ids starting at seed. Safe
// for concurrent use, though in practice only the dispatcher goroutine
// calls Next.
type Generator struct {
	next atomic.Uint64
}

// NewGenerator returns a Generator that yields seed, seed+1, seed+2, ...
func NewGenerator(seed uint64) *Generator {
	g := &Generator{}
	g.next.Store(seed)
	return g
}

// Next returns the next id in the sequence. The generator grows past
// 32 bits rather than overflow, per the algorithmic notes: overflow is
// not expected within a process lifetime but 64-bit counters cost
// nothing to carry.
func (g *Generator) Next() uint64 {
	return g.next.Add(1) - 1
}
