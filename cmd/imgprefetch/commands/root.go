// Package commands implements the imgprefetch CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "imgprefetch",
	Short: "Adaptive image preloader",
	Long: `imgprefetch preloads image variants with a concurrency ceiling and a
memory budget derived from the device and network tiers of the client.

All configuration options can be overridden with environment variables:
IMGPREFETCH_<SECTION>_<KEY>, e.g. IMGPREFETCH_LOGGING_LEVEL=DEBUG.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/imgprefetch/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
