package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "janus",
	Short: "Janus - L7 reverse proxy data plane",
	Long: `Janus is an HTTP-aware reverse proxy: it terminates HTTP/1.1 on an
event-loop data plane, routes requests onto upstream clusters whose
membership is static or fed by service discovery, and balances load with
round-robin, least-request or random policies, zone-aware when the
topology allows it.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
