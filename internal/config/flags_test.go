package config

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsAppliesEnvDefaults(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()

	flags := BindFlags(cmd, v)

	assert.Equal(t, 3746, flags.MasterPort)
	assert.Equal(t, 3747, flags.SlavePort)
	assert.Equal(t, 3744, flags.HTTPPort)
	assert.Equal(t, "/var/run/servicebroker/", flags.Root)
}

func TestBindFlagsHonorsRootEnvOverride(t *testing.T) {
	t.Setenv("FND_SERVICEBROKER_ROOT", "/custom/root/")

	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	flags := BindFlags(cmd, v)

	assert.Equal(t, "/custom/root/", flags.Root)
}

func TestValidateRequiresMountPoint(t *testing.T) {
	flags := &Flags{Root: "/var/run/servicebroker/", MasterPort: 3746, SlavePort: 3747, HTTPPort: 3744}
	assert.Error(t, flags.Validate())

	flags.MountPoint = "/servicebroker"
	assert.NoError(t, flags.Validate())
}

func TestValidateCacheRequiresTreeMode(t *testing.T) {
	flags := &Flags{
		MountPoint: "/servicebroker",
		Root:       "/var/run/servicebroker/",
		MasterPort: 3746, SlavePort: 3747, HTTPPort: 3744,
		CacheEnabled: true,
	}
	err := flags.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires --id")

	flags.ExtendedID = 1
	assert.NoError(t, flags.Validate())
}

func TestSocketPathAndHTTPPortFile(t *testing.T) {
	flags := &Flags{Root: "/var/run/servicebroker", MountPoint: "/servicebroker"}
	assert.Equal(t, "/var/run/servicebroker/servicebroker", flags.SocketPath())
	assert.Equal(t, "/var/run/servicebroker/servicebroker.http", flags.HTTPPortFile())
}
