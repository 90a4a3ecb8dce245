// Package config implements the daemon's two configuration surfaces:
// the [LOCAL]/[GLOBAL]/[FORWARD] service file (ServiceFile) and the
// CLI/environment flag surface (Flags), built with cobra and viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags is the parsed CLI surface plus the environment-overridable
// port/root settings.
type Flags struct {
	Verbosity       int  `validate:"gte=0"`
	Foreground      bool
	EchoConsole     bool
	EnableTCPMaster bool
	BindIPs         []string
	MasterAddr      string
	ConfigFile      string
	ExtendedID      uint32
	AsyncAttach     bool
	CacheEnabled    bool

	MountPoint string `validate:"required"`
	Root       string `validate:"required"`
	MasterPort int    `validate:"gte=1,lte=65535"`
	SlavePort  int    `validate:"gte=1,lte=65535"`
	HTTPPort   int    `validate:"gte=1,lte=65535"`

	// TelemetryEnabled/TelemetryEndpoint configure the ambient
	// OpenTelemetry tracing stack, overridable via SB_TELEMETRY_ENABLED
	// and SB_TELEMETRY_ENDPOINT. Off by default, matching the teacher's
	// own opt-in telemetry convention.
	TelemetryEnabled  bool
	TelemetryEndpoint string
}

// TreeMode reports whether -i was given an extendedId of at least 1.
func (f *Flags) TreeMode() bool {
	return f.ExtendedID >= 1
}

// SocketPath is the Unix control socket path applications connect to:
// ${root}${mountpoint}.
func (f *Flags) SocketPath() string {
	return filepath.Join(f.Root, f.MountPoint)
}

// HTTPPortFile is the sidecar file recording the HTTP status page's
// actual bound port: ${root}${mountpoint}.http.
func (f *Flags) HTTPPortFile() string {
	return f.SocketPath() + ".http"
}

// BindFlags registers the CLI surface on cmd and configures v to read
// SB_MASTER_PORT, SB_SLAVE_PORT, SB_HTTP_PORT, and
// FND_SERVICEBROKER_ROOT environment variable overrides. The returned
// Flags has its env-derived fields populated immediately; CLI-derived
// fields are populated once cobra parses flags ahead of the command's
// RunE.
func BindFlags(cmd *cobra.Command, v *viper.Viper) *Flags {
	flags := &Flags{}

	cmd.Flags().CountVarP(&flags.Verbosity, "verbose", "v", "verbosity (stackable: -vvv)")
	cmd.Flags().StringVarP(&flags.MountPoint, "mount", "p", "/servicebroker", "mountpoint name")
	cmd.Flags().BoolVarP(&flags.Foreground, "foreground", "d", false, "log to stdout instead of stderr (the process never detaches, with or without -d)")
	cmd.Flags().BoolVarP(&flags.EchoConsole, "console", "c", false, "echo log output to stderr, also under -d")
	cmd.Flags().BoolVarP(&flags.EnableTCPMaster, "tcp-master", "t", false, "enable the TCP master acceptor")
	cmd.Flags().StringSliceVarP(&flags.BindIPs, "bind", "b", nil, "comma-separated IP list to bind the master/slave listeners to")
	cmd.Flags().StringVarP(&flags.MasterAddr, "master", "m", "", "upstream master address (ip:port), makes this broker a slave")
	cmd.Flags().StringVarP(&flags.ConfigFile, "file", "f", "", "service config file ([LOCAL]/[GLOBAL]/[FORWARD])")
	cmd.Flags().Uint32VarP(&flags.ExtendedID, "id", "i", 0, "tree-mode extendedId (>=1 enables tree mode)")
	cmd.Flags().BoolVarP(&flags.AsyncAttach, "async-attach", "a", false, "enable async attach-extended")
	cmd.Flags().BoolVarP(&flags.CacheEnabled, "cache", "C", false, "enable the remote server cache (requires -i)")

	v.SetEnvPrefix("SB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("master_port", 3746)
	v.SetDefault("slave_port", 3747)
	v.SetDefault("http_port", 3744)
	v.SetDefault("root", "/var/run/servicebroker/")
	_ = v.BindEnv("root", "FND_SERVICEBROKER_ROOT")
	v.SetDefault("telemetry_enabled", false)
	v.SetDefault("telemetry_endpoint", "localhost:4317")

	flags.Root = v.GetString("root")
	flags.MasterPort = v.GetInt("master_port")
	flags.SlavePort = v.GetInt("slave_port")
	flags.HTTPPort = v.GetInt("http_port")
	flags.TelemetryEnabled = v.GetBool("telemetry_enabled")
	flags.TelemetryEndpoint = v.GetString("telemetry_endpoint")

	return flags
}

// Validate checks Flags against constraints CLI parsing can't express
// directly: port ranges, required mountpoint/root, and the -C/-i
// dependency.
func (f *Flags) Validate() error {
	if err := validator.New().Struct(f); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if f.CacheEnabled && !f.TreeMode() {
		return fmt.Errorf("--cache requires --id (tree mode)")
	}
	return nil
}
