// Package cmd implements the blockwatch command-line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/blockwatch/cmd/serve"
	cmdwatch "github.com/jonesrussell/blockwatch/cmd/watch"
)

// version can be set at build time via -ldflags.
var version = "dev"

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "blockwatch",
		Short: "Watch blocklist build jobs in real time",
		Long: `Blockwatch follows the blocklist build pipeline over its push
stream: job lifecycle, per-source download progress, whitelist filtering and
output generation, reconciled into a consistent local view that survives
reconnects.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment overrides are visible to config loading.
	_ = godotenv.Load()

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("blockwatch version %s\n", version)
		},
	})

	rootCmd.AddCommand(cmdwatch.Command(&cfgFile, &debug))
	rootCmd.AddCommand(serve.Command(&cfgFile, &debug))
}
