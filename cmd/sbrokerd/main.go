// Command sbrokerd is the service broker daemon: a registry of named
// interfaces, an attach/notify protocol over it, and an optional
// tree-mode federation with upstream/downstream brokers.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/sbrokerd/cmd/sbrokerd/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
