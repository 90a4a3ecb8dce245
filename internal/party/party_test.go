package party

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDString(t *testing.T) {
	id := ID{ExtendedID: 1000, LocalID: 500001}
	assert.Equal(t, "1000:500001", id.String())
}

func TestIDIsZero(t *testing.T) {
	assert.True(t, Zero.IsZero())
	assert.False(t, ID{ExtendedID: 1, LocalID: 0}.IsZero())
}

func TestGeneratorSeeding(t *testing.T) {
	g := NewGenerator(500001)
	assert.Equal(t, uint64(500001), g.Next())
	assert.Equal(t, uint64(500002), g.Next())
	assert.Equal(t, uint64(500003), g.Next())
}

func TestGeneratorIndependentSequences(t *testing.T) {
	servers := NewGenerator(500001)
	clients := NewGenerator(100001)
	notifs := NewGenerator(1)

	assert.Equal(t, uint64(500001), servers.Next())
	assert.Equal(t, uint64(100001), clients.Next())
	assert.Equal(t, uint64(1), notifs.Next())
}

func TestChannelString(t *testing.T) {
	c := Channel{Node: 1, Pid: 2, Chid: 3}
	assert.Equal(t, "1/2/3", c.String())
}
