// Command imgprefetch preloads the images listed in a manifest through the
// adaptive engine and reports the resulting cache state.
package main

import (
	"fmt"
	"os"

	"github.com/IvanBrykalov/imgprefetch/cmd/imgprefetch/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version, commands.Commit, commands.Date = version, commit, date
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
