package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meridian-hq/janus/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the proxy.

Exits non-zero and prints the first problem found when the configuration
is invalid.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s is valid: %d listener(s), %d cluster(s)\n",
			cfgFile, len(cfg.Listeners), len(cfg.Clusters))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
