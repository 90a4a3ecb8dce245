// Package commands implements the sbrokerd CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sbrokerd",
	Short: "service broker daemon",
	Long: `sbrokerd is a registry of named interfaces (services): servers
register an interface name and version, clients attach to it by name,
and either side can arm a pulse notification for connect, disconnect,
or client-detach events. A broker can also run in tree mode, forwarding
selected interfaces to an upstream master and relaying notifications
across the tree.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runStart,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("sbrokerd %s (commit: %s, built: %s)\n", Version, Commit, Date)
		return nil
	},
}

var appViper = viper.New()
