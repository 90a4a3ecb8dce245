package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigForwardableLocalWins(t *testing.T) {
	cfg := Config{
		Local:      map[string]struct{}{"fs.local": {}},
		Forward:    map[string]struct{}{"fs.local": {}},
		ForwardAll: true,
	}
	assert.False(t, cfg.forwardable("fs.local"))
}

func TestConfigForwardableAll(t *testing.T) {
	cfg := Config{ForwardAll: true}
	assert.True(t, cfg.forwardable("anything"))
}

func TestConfigForwardableExplicitList(t *testing.T) {
	cfg := Config{Forward: map[string]struct{}{"fs.shared": {}}}
	assert.True(t, cfg.forwardable("fs.shared"))
	assert.False(t, cfg.forwardable("fs.other"))
}

func TestNewBrokerHasNoAdapterWithoutMasterAddress(t *testing.T) {
	b := New(Config{})
	assert.Nil(t, b.adapter)
	assert.Nil(t, b.worker)
}

func TestNewBrokerBuildsAdapterWithMasterAddress(t *testing.T) {
	b := New(Config{MasterAddress: "127.0.0.1:9999", ExtendedID: 1000})
	assert.NotNil(t, b.adapter)
	assert.NotNil(t, b.worker)
}
